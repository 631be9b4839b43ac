// Copyright (c) 2024 The proxytester Authors. All rights reserved.
// This software is licensed under a 3-clause BSD license. Please consult the
// LICENSE file distributed with the sources of this project regarding your
// rights to use or distribute this software.

package shutdown

import (
	"context"
	"os"
	"syscall"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStopWithoutSignalLeavesRunning(t *testing.T) {
	ctx, sup := Start(context.Background(), time.Second)
	defer sup.Stop()

	assert.Equal(t, Running, sup.State())
	assert.NoError(t, ctx.Err())
	assert.Equal(t, ExitSuccess, sup.ExitCodeFor(nil))
}

func TestSignalTransitionsToDrainingAndCancelsContext(t *testing.T) {
	ctx, sup := Start(context.Background(), 5*time.Second)
	defer sup.Stop()

	proc, err := os.FindProcess(os.Getpid())
	require.NoError(t, err)
	require.NoError(t, proc.Signal(syscall.SIGTERM))

	require.Eventually(t, func() bool { return sup.State() == Draining }, time.Second, time.Millisecond)
	<-ctx.Done()
	assert.Equal(t, ExitSignalDrain, sup.ExitCodeFor(nil))
}

func TestSecondSignalTransitionsToAborting(t *testing.T) {
	ctx, sup := Start(context.Background(), 5*time.Second)
	defer sup.Stop()

	proc, err := os.FindProcess(os.Getpid())
	require.NoError(t, err)
	require.NoError(t, proc.Signal(syscall.SIGTERM))
	require.Eventually(t, func() bool { return sup.State() == Draining }, time.Second, time.Millisecond)

	require.NoError(t, proc.Signal(syscall.SIGTERM))
	select {
	case <-sup.Aborted():
	case <-time.After(time.Second):
		t.Fatal("second signal did not trigger Aborted")
	}
	assert.Equal(t, Aborting, sup.State())
	<-ctx.Done()
}

func TestGracefulTimeoutTriggersAbortedWithoutSecondSignal(t *testing.T) {
	ctx, sup := Start(context.Background(), 20*time.Millisecond)
	defer sup.Stop()

	proc, err := os.FindProcess(os.Getpid())
	require.NoError(t, err)
	require.NoError(t, proc.Signal(syscall.SIGTERM))

	select {
	case <-sup.Aborted():
	case <-time.After(time.Second):
		t.Fatal("graceful timeout did not trigger Aborted")
	}
	<-ctx.Done()
}
