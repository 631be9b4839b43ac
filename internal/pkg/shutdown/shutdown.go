// Copyright (c) 2024 The proxytester Authors. All rights reserved.
// This software is licensed under a 3-clause BSD license. Please consult the
// LICENSE file distributed with the sources of this project regarding your
// rights to use or distribute this software.

// Package shutdown installs OS signal handlers and coordinates the
// two-stage drain/abort sequence from spec.md §4.9, generalizing the
// single Ctrl-C-cancels-a-context pattern used for command execution
// elsewhere in this tree.
package shutdown

import (
	"context"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/proxycore/tester/internal/pkg/sylog"
)

// State is a position in the Supervisor's state machine:
// Running → Draining → Stopped, or Running → Aborting → Stopped.
type State int

const (
	Running State = iota
	Draining
	Aborting
	Stopped
)

func (s State) String() string {
	switch s {
	case Running:
		return "running"
	case Draining:
		return "draining"
	case Aborting:
		return "aborting"
	case Stopped:
		return "stopped"
	default:
		return "unknown"
	}
}

// ExitCode is the process exit code spec.md §6 mandates for each
// termination path.
type ExitCode int

const (
	ExitSuccess     ExitCode = 0
	ExitSignalDrain ExitCode = 130
	ExitFatal       ExitCode = 1
)

// Supervisor installs signal handlers for SIGINT/SIGTERM, cancels a
// derived context on the first signal, and marks Aborted on a second
// signal or once GracefulTimeout has elapsed since the first,
// whichever comes first.
type Supervisor struct {
	GracefulTimeout time.Duration

	mu    sync.Mutex
	state State

	cancel context.CancelFunc
	sigCh  chan os.Signal
	abort  chan struct{} // closed when the drain window is blown
	done   chan struct{} // closed by Stop to unblock watch when no signal ever arrived
}

// Start installs signal handlers and returns a context cancelled on
// the first SIGINT/SIGTERM, plus the Supervisor tracking the
// subsequent drain/abort sequence. The caller must call Stop exactly
// once, typically deferred, to release the signal handler whether or
// not a signal ever arrived.
func Start(parent context.Context, gracefulTimeout time.Duration) (context.Context, *Supervisor) {
	ctx, cancel := context.WithCancel(parent)
	s := &Supervisor{
		GracefulTimeout: gracefulTimeout,
		state:           Running,
		cancel:          cancel,
		sigCh:           make(chan os.Signal, 2),
		abort:           make(chan struct{}),
		done:            make(chan struct{}),
	}
	signal.Notify(s.sigCh, os.Interrupt, syscall.SIGTERM)
	go s.watch()
	return ctx, s
}

func (s *Supervisor) watch() {
	select {
	case <-s.done:
		return
	case first := <-s.sigCh:
		sylog.Infof("shutdown: received %v, beginning graceful shutdown", first)
	}

	s.transition(Draining)
	s.cancel()

	timer := time.NewTimer(s.GracefulTimeout)
	defer timer.Stop()

	select {
	case <-s.done:
		return
	case second := <-s.sigCh:
		sylog.Warningf("shutdown: received %v during drain, aborting immediately", second)
	case <-timer.C:
		sylog.Warningf("shutdown: graceful timeout elapsed, aborting")
	}
	s.transition(Aborting)
	close(s.abort)
}

func (s *Supervisor) transition(next State) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state == Stopped {
		return
	}
	s.state = next
}

// State reports the Supervisor's current position in the state
// machine.
func (s *Supervisor) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Aborted returns a channel closed once the drain window has blown,
// signalling the caller to force-terminate any surviving children
// (e.g. kill any ChildProcess handle still outstanding) rather than
// waiting on their normal cancellation-bound teardown.
func (s *Supervisor) Aborted() <-chan struct{} {
	return s.abort
}

// Stop releases the signal handler and marks the Supervisor Stopped.
// Safe to call exactly once; the caller typically defers it.
func (s *Supervisor) Stop() {
	signal.Stop(s.sigCh)
	close(s.done)
	s.mu.Lock()
	if s.state == Running {
		s.state = Stopped
	}
	s.mu.Unlock()
}

// ExitCodeFor maps how a run ended to the exit code spec.md §6
// mandates: 0 on normal completion, 130 if a signal ever triggered a
// drain, 1 if runErr is non-nil (for example a collector decode
// error) and no signal was involved.
func (s *Supervisor) ExitCodeFor(runErr error) ExitCode {
	state := s.State()
	if state == Draining || state == Aborting {
		return ExitSignalDrain
	}
	if runErr != nil {
		return ExitFatal
	}
	return ExitSuccess
}
