// Copyright (c) 2024 The proxytester Authors. All rights reserved.
// This software is licensed under a 3-clause BSD license. Please consult the
// LICENSE file distributed with the sources of this project regarding your
// rights to use or distribute this software.

// Package childprocess launches and supervises one proxy-core binary
// invocation per test task, per spec.md §4.2.
package childprocess

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"net"
	"os"
	"os/exec"
	"sync"
	"time"

	"github.com/proxycore/tester/internal/pkg/sylog"
)

// ReadyState is the lifecycle state of a ChildProcessHandle.
type ReadyState int

const (
	Starting ReadyState = iota
	Ready
	Dead
)

func (s ReadyState) String() string {
	switch s {
	case Starting:
		return "starting"
	case Ready:
		return "ready"
	case Dead:
		return "dead"
	default:
		return "unknown"
	}
}

// ReadinessDeadline bounds how long Start waits for the child's
// inbound port to accept TCP before giving up with port_conflict.
const ReadinessDeadline = 2 * time.Second

// killGrace is how long Stop waits after os.Interrupt (SIGINT) before
// SIGKILL.
const killGrace = 500 * time.Millisecond

// tailBufferSize is how much of stdout/stderr combined is retained
// for diagnostics in TestResultData.Message on failure.
const tailBufferSize = 4 * 1024 // 4 KiB

// ErrLaunchFailed means the core binary could not be exec'd at all.
var ErrLaunchFailed = errors.New("childprocess: failed to launch core binary")

// ErrNotReady means the child never accepted TCP on its bound port
// within ReadinessDeadline.
var ErrNotReady = errors.New("childprocess: core binary did not become ready in time")

// Handle is owned exclusively by the task that created it, and is
// destroyed (by Stop) when that task ends.
type Handle struct {
	PID         int
	Deadline    time.Time
	ConfigPath  string

	mu       sync.Mutex
	state    ReadyState
	cmd      *exec.Cmd
	tail     *tailBuffer
	waitDone chan struct{} // closed once the single cmd.Wait() goroutine returns
}

func (h *Handle) State() ReadyState {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.state
}

// Tail returns up to tailBufferSize bytes of the child's most recent
// combined stdout/stderr, for use in a failure's diagnostic message.
func (h *Handle) Tail() string {
	if h.tail == nil {
		return ""
	}
	return h.tail.String()
}

// tailBuffer is a small ring buffer so a chatty or stuck child never
// blocks on a full pipe and never grows without bound.
type tailBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
	cap int
}

func newTailBuffer(capacity int) *tailBuffer {
	return &tailBuffer{cap: capacity}
}

func (t *tailBuffer) Write(p []byte) (int, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.buf.Write(p)
	if extra := t.buf.Len() - t.cap; extra > 0 {
		t.buf.Next(extra)
	}
	return len(p), nil
}

func (t *tailBuffer) String() string {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.buf.String()
}

// Start execs coreBinary against configPath (already written by the
// caller, see WriteConfig), and waits for 127.0.0.1:port
// to accept a TCP connection before returning a Ready handle.
//
// Exactly one Handle is ever outstanding per task; callers must call
// Stop on every exit path, including panics, to release the PID slot
// and the temp config file.
func Start(ctx context.Context, coreBinary, configPath string, port int) (*Handle, error) {
	deadline := time.Now().Add(ReadinessDeadline)

	tail := newTailBuffer(tailBufferSize)
	cmd := exec.CommandContext(ctx, coreBinary, "run", "-c", configPath)
	cmd.Stdout = tail
	cmd.Stderr = tail

	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrLaunchFailed, err)
	}

	h := &Handle{
		PID:        cmd.Process.Pid,
		Deadline:   deadline,
		ConfigPath: configPath,
		state:      Starting,
		cmd:        cmd,
		tail:       tail,
		waitDone:   make(chan struct{}),
	}

	// Exactly one goroutine ever calls cmd.Wait(); Stop/terminate
	// signal the process and then wait on h.waitDone rather than
	// calling Wait() themselves, since exec.Cmd.Wait must only be
	// called once. This also reaps the process even if the caller
	// never reaches Stop (e.g. a panic escapes before the deferred
	// Stop runs — Stop is still safe to call afterward).
	go func() {
		_ = cmd.Wait()
		h.mu.Lock()
		h.state = Dead
		h.mu.Unlock()
		close(h.waitDone)
	}()

	if err := waitReady(ctx, port, deadline); err != nil {
		h.mu.Lock()
		h.state = Dead
		h.mu.Unlock()
		terminate(cmd, h.waitDone)
		return nil, fmt.Errorf("%w: %v", ErrNotReady, err)
	}

	h.mu.Lock()
	h.state = Ready
	h.mu.Unlock()
	return h, nil
}

func waitReady(ctx context.Context, port int, deadline time.Time) error {
	addr := fmt.Sprintf("127.0.0.1:%d", port)
	ticker := time.NewTicker(20 * time.Millisecond)
	defer ticker.Stop()

	for {
		conn, err := net.DialTimeout("tcp", addr, 100*time.Millisecond)
		if err == nil {
			_ = conn.Close()
			return nil
		}
		if time.Now().After(deadline) {
			return fmt.Errorf("no listener on %s after deadline: %w", addr, err)
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

// Stop terminates the child politely, then forcefully after
// killGrace, and removes the generated config file. Safe to call
// more than once; only the first call has any effect.
func Stop(h *Handle) {
	if h == nil {
		return
	}
	h.mu.Lock()
	cmd := h.cmd
	waitDone := h.waitDone
	h.cmd = nil // mark stopped so a second Stop() is a no-op past this point
	h.mu.Unlock()

	if cmd == nil {
		return
	}
	if cmd.Process != nil {
		terminate(cmd, waitDone)
	}
	if h.ConfigPath != "" {
		if err := os.Remove(h.ConfigPath); err != nil && !os.IsNotExist(err) {
			sylog.Debugf("childprocess: removing config %s: %v", h.ConfigPath, err)
		}
	}
}

func terminate(cmd *exec.Cmd, waitDone <-chan struct{}) {
	if cmd.Process == nil {
		return
	}
	_ = cmd.Process.Signal(os.Interrupt)

	select {
	case <-waitDone:
	case <-time.After(killGrace):
		_ = cmd.Process.Kill()
		<-waitDone
	}
}
