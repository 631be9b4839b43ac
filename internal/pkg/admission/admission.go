// Copyright (c) 2024 The proxytester Authors. All rights reserved.
// This software is licensed under a 3-clause BSD license. Please consult the
// LICENSE file distributed with the sources of this project regarding your
// rights to use or distribute this software.

// Package admission gates task start on memory and active-process
// headroom, per spec.md §4.5.
package admission

import (
	"runtime"
	"sync/atomic"

	"golang.org/x/sync/semaphore"
)

// Controller tracks the two admission signals a task must clear
// before it may spawn a child process: resident memory below
// MaxMemoryMB, and fewer than MaxWorkers processes already active.
// Active-process accounting is a weighted semaphore sized MaxWorkers:
// TryAcquire(1) IS the active_processes check, race-free by
// construction rather than read-then-increment.
type Controller struct {
	maxMemoryMB int64
	sem         *semaphore.Weighted
	active      atomic.Int64
}

// New builds a Controller. maxWorkers bounds concurrent active
// processes; maxMemoryMB bounds resident memory as read from the Go
// runtime's allocator stats.
func New(maxWorkers int, maxMemoryMB int64) *Controller {
	return &Controller{
		maxMemoryMB: maxMemoryMB,
		sem:         semaphore.NewWeighted(int64(maxWorkers)),
	}
}

// Admission is returned by CanTest and must be released exactly once
// when the task it admitted has fully finished (success or failure),
// regardless of whether a child process was actually spawned.
type Admission struct {
	c *Controller
}

// Release frees the active-process slot. Safe to call on a nil
// Admission pointer, which a denied CanTest returns (no-op).
func (a *Admission) Release() {
	if a == nil {
		return
	}
	a.c.active.Add(-1)
	a.c.sem.Release(1)
}

// CanTest reports whether a task may proceed to spawn a child. On
// admission it returns a non-nil Admission that the caller must
// Release when the task ends; on denial it returns (nil, false) and
// the caller records resource_exhausted without ever calling Release.
//
// Checks are intentionally best-effort and race-tolerant per
// spec.md §4.5: a brief overshoot of MaxMemoryMB by a handful of MB
// while a task is already admitted is acceptable.
func (c *Controller) CanTest() (*Admission, bool) {
	if !c.sem.TryAcquire(1) {
		return nil, false
	}
	if c.residentMemoryMB() >= c.maxMemoryMB {
		c.sem.Release(1)
		return nil, false
	}
	c.active.Add(1)
	return &Admission{c: c}, true
}

func (c *Controller) residentMemoryMB() int64 {
	if mb, ok := residentMemoryMBPrecise(); ok {
		return mb
	}
	var m runtime.MemStats
	runtime.ReadMemStats(&m)
	return int64(m.Sys / (1024 * 1024))
}

// ActiveProcesses reports how many admissions are currently
// outstanding, for Metrics' active_processes gauge.
func (c *Controller) ActiveProcesses() int {
	return int(c.active.Load())
}
