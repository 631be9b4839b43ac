// Copyright (c) 2024 The proxytester Authors. All rights reserved.
// This software is licensed under a 3-clause BSD license. Please consult the
// LICENSE file distributed with the sources of this project regarding your
// rights to use or distribute this software.

package portmanager

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAcquireReleaseRoundTrip(t *testing.T) {
	m := New(20000, 20010)

	lease, err := m.Acquire()
	require.NoError(t, err)
	assert.GreaterOrEqual(t, lease.Port, 20000)
	assert.Less(t, lease.Port, 20010)
	assert.Equal(t, 1, m.OutstandingLeases())

	m.Release(lease)
	assert.Equal(t, 0, m.OutstandingLeases())
}

func TestReleaseIsIdempotent(t *testing.T) {
	m := New(20000, 20010)
	lease, err := m.Acquire()
	require.NoError(t, err)

	m.Release(lease)
	m.Release(lease) // second call must be a silent no-op
	assert.Equal(t, 0, m.OutstandingLeases())
}

func TestReleaseUnknownLeaseIsNoop(t *testing.T) {
	m := New(20000, 20010)
	m.Release(Lease{Port: 29999})
	assert.Equal(t, 0, m.OutstandingLeases())
}

func TestExhaustion(t *testing.T) {
	m := New(20000, 20001) // range of size 1
	lease, err := m.Acquire()
	require.NoError(t, err)

	_, err = m.Acquire()
	assert.ErrorIs(t, err, ErrPortExhausted)

	m.Release(lease)
	_, err = m.Acquire()
	assert.NoError(t, err)
}

func TestNoDoubleLeaseUnderConcurrency(t *testing.T) {
	m := New(20000, 20020)
	const n = 20

	seen := make(chan int, n)
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			lease, err := m.Acquire()
			if err == nil {
				seen <- lease.Port
			}
		}()
	}
	wg.Wait()
	close(seen)

	ports := make(map[int]bool)
	for p := range seen {
		assert.False(t, ports[p], "port %d leased twice", p)
		ports[p] = true
	}
	assert.Equal(t, n, len(ports))
}
