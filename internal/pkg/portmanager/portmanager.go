// Copyright (c) 2024 The proxytester Authors. All rights reserved.
// This software is licensed under a 3-clause BSD license. Please consult the
// LICENSE file distributed with the sources of this project regarding your
// rights to use or distribute this software.

// Package portmanager leases TCP ports out of a fixed range to tasks
// and reclaims them when the task is done, per spec.md §4.1.
package portmanager

import (
	"fmt"
	"sync"

	"github.com/google/uuid"
)

// ErrPortExhausted is returned by Acquire when every port in the
// configured range is currently leased.
var ErrPortExhausted = fmt.Errorf("portmanager: no free port in range")

// Lease is an opaque handle binding a port number to the task that
// acquired it. Release is idempotent: releasing an unknown or
// already-released lease is a silent no-op (spec.md §4.1).
type Lease struct {
	Port  int
	token uuid.UUID
}

// Token returns the lease's unique correlation token, used by
// ChildProcess to build a collision-free temp config filename even
// when two leases happen to sit on adjacent port numbers.
func (l Lease) Token() string { return l.token.String() }

// Manager owns an ordered range [Start, End) and the set of ports
// currently on loan.
type Manager struct {
	start, end int

	mu     sync.Mutex
	leased map[int]uuid.UUID
	cursor int // next candidate to try, amortizes Acquire to O(1) in the common case
}

// New constructs a Manager over the half-open range [start, end).
func New(start, end int) *Manager {
	return &Manager{
		start:  start,
		end:    end,
		leased: make(map[int]uuid.UUID),
		cursor: start,
	}
}

// Acquire leases any port in the range not currently leased. It does
// not verify OS-level availability — that is ChildProcess's job at
// bind time; if the bind fails the caller releases this lease and
// reports port_conflict.
func (m *Manager) Acquire() (Lease, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	size := m.end - m.start
	if size <= 0 {
		return Lease{}, ErrPortExhausted
	}

	for i := 0; i < size; i++ {
		port := m.start + (m.cursor-m.start+i)%size
		if _, taken := m.leased[port]; !taken {
			token := uuid.New()
			m.leased[port] = token
			m.cursor = port + 1
			return Lease{Port: port, token: token}, nil
		}
	}
	return Lease{}, ErrPortExhausted
}

// Release returns lease's port to the pool. Safe to call more than
// once, and safe to call with a zero-value or already-released Lease.
func (m *Manager) Release(lease Lease) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if current, ok := m.leased[lease.Port]; ok && current == lease.token {
		delete(m.leased, lease.Port)
	}
}

// ReleaseAll drops every outstanding lease, for use during shutdown.
func (m *Manager) ReleaseAll() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.leased = make(map[int]uuid.UUID)
}

// OutstandingLeases reports how many ports are currently on loan,
// used to assert the spec.md §8 invariant that it returns to zero
// after every batch.
func (m *Manager) OutstandingLeases() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.leased)
}
