// Copyright (c) 2024 The proxytester Authors. All rights reserved.
// This software is licensed under a 3-clause BSD license. Please consult the
// LICENSE file distributed with the sources of this project regarding your
// rights to use or distribute this software.

package childprocess

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// writeStubBinary writes script into an executable /bin/sh wrapper
// that stands in for a real proxy-core; callers pass a script that
// either binds the readiness port (via socat or nc) or never does.
func writeStubBinary(t *testing.T, script string) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "stub-core")
	full := "#!/bin/sh\n" + script + "\n"
	require.NoError(t, os.WriteFile(path, []byte(full), 0o755))
	return path
}

func TestStartStopHappyPath(t *testing.T) {
	port := 21345
	bin := writeStubBinary(t, fmt.Sprintf(`exec socat TCP-LISTEN:%d,bind=127.0.0.1,reuseaddr,fork SYSTEM:"true" 2>/dev/null || exec nc -lk -p %d 127.0.0.1 2>/dev/null || sleep 5`, port, port))

	configPath := filepath.Join(t.TempDir(), "cfg.json")
	require.NoError(t, os.WriteFile(configPath, []byte(`{}`), 0o600))

	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()

	h, err := Start(ctx, bin, configPath, port)
	if err != nil {
		t.Skipf("no usable listener helper (socat/nc) on this system: %v", err)
	}
	require.NotNil(t, h)
	assert.Equal(t, Ready, h.State())

	Stop(h)
	Stop(h) // must not panic or double-release
	_, statErr := os.Stat(configPath)
	assert.True(t, os.IsNotExist(statErr), "config file should be removed after Stop")
}

func TestStartLaunchFailed(t *testing.T) {
	ctx := context.Background()
	_, err := Start(ctx, "/nonexistent/proxy-core-binary", "/tmp/does-not-matter.json", 21399)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrLaunchFailed)
}

func TestStartNeverReadyTimesOut(t *testing.T) {
	bin := writeStubBinary(t, "sleep 5")
	configPath := filepath.Join(t.TempDir(), "cfg.json")
	require.NoError(t, os.WriteFile(configPath, []byte(`{}`), 0o600))

	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()

	_, err := Start(ctx, bin, configPath, 21398) // nothing ever listens on this port
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrNotReady)
}

func TestStopIsSafeOnNilHandle(t *testing.T) {
	Stop(nil)
}
