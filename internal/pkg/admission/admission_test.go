// Copyright (c) 2024 The proxytester Authors. All rights reserved.
// This software is licensed under a 3-clause BSD license. Please consult the
// LICENSE file distributed with the sources of this project regarding your
// rights to use or distribute this software.

package admission

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCanTestAdmitsWithinHeadroom(t *testing.T) {
	c := New(4, 1<<30) // 1 GiB ceiling, comfortably above test process RSS
	a, ok := c.CanTest()
	require.True(t, ok)
	require.NotNil(t, a)
	assert.Equal(t, 1, c.ActiveProcesses())

	a.Release()
	assert.Equal(t, 0, c.ActiveProcesses())
}

func TestCanTestDeniesOnActiveProcessCeiling(t *testing.T) {
	c := New(1, 1<<30)
	a1, ok := c.CanTest()
	require.True(t, ok)

	_, ok = c.CanTest()
	assert.False(t, ok)

	a1.Release()
	_, ok = c.CanTest()
	assert.True(t, ok)
}

func TestCanTestDeniesOnMemoryCeiling(t *testing.T) {
	c := New(4, 1) // 1 MB ceiling, below any running process's memory reading
	_, ok := c.CanTest()
	assert.False(t, ok)
	assert.Equal(t, 0, c.ActiveProcesses(), "a denied admission must not hold a semaphore slot")
}

func TestReleaseIsSafeOnNilAdmission(t *testing.T) {
	var a *Admission
	a.Release()
}
