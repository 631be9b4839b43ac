// Copyright (c) 2024 The proxytester Authors. All rights reserved.
// This software is licensed under a 3-clause BSD license. Please consult the
// LICENSE file distributed with the sources of this project regarding your
// rights to use or distribute this software.

package tester

import (
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestSubmitRunsAllTasks(t *testing.T) {
	p := NewWorkerPool(4)
	defer p.Stop()

	var n atomic.Int64
	var wg sync.WaitGroup
	wg.Add(10)
	for i := 0; i < 10; i++ {
		status := p.Submit(func() {
			defer wg.Done()
			n.Add(1)
		})
		assert.Equal(t, Submitted, status)
	}
	wg.Wait()
	assert.Equal(t, int64(10), n.Load())
}

func TestSubmitReturnsQueueFullWhenSaturated(t *testing.T) {
	p := NewWorkerPool(1)
	defer p.Stop()

	release := make(chan struct{})
	// occupy the single worker, then fill the 2-deep buffer behind it
	assert.Equal(t, Submitted, p.Submit(func() { <-release }))
	assert.Equal(t, Submitted, p.Submit(func() {}))
	assert.Equal(t, Submitted, p.Submit(func() {}))

	status := p.Submit(func() {})
	assert.Equal(t, QueueFull, status)
	close(release)
}

func TestSubmitAfterStopReturnsShuttingDown(t *testing.T) {
	p := NewWorkerPool(2)
	p.Stop()
	assert.Equal(t, ShuttingDown, p.Submit(func() {}))
}

func TestWorkerPanicDoesNotKillWorker(t *testing.T) {
	p := NewWorkerPool(1)
	defer p.Stop()

	p.Submit(func() { panic("boom") })

	var n atomic.Int64
	done := make(chan struct{})
	p.Submit(func() {
		n.Add(1)
		close(done)
	})

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("worker did not recover from panic and serve the next task")
	}
	assert.Equal(t, int64(1), n.Load())
}
