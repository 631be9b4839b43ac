// Copyright (c) 2024 The proxytester Authors. All rights reserved.
// This software is licensed under a 3-clause BSD license. Please consult the
// LICENSE file distributed with the sources of this project regarding your
// rights to use or distribute this software.

package config

import (
	"testing"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	t.Setenv("XRAY_PATH", "/usr/bin/xray")

	v := viper.New()
	cfg, err := Load(v)
	require.NoError(t, err)

	assert.Equal(t, "/usr/bin/xray", cfg.XrayPath)
	assert.Equal(t, 100, cfg.MaxWorkers)
	assert.Equal(t, 100, cfg.BatchSize)
	assert.Equal(t, 10000, cfg.StartPort)
	assert.Equal(t, 20000, cfg.EndPort)
	assert.True(t, cfg.IncrementalSave)
	assert.NoError(t, cfg.Validate())
}

func TestLoadMissingXrayPathIsFatal(t *testing.T) {
	v := viper.New()
	cfg, err := Load(v)
	require.NoError(t, err)

	err = cfg.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "XRAY_PATH is required")
}

func TestValidateAggregatesAllProblems(t *testing.T) {
	cfg := &Config{
		MaxWorkers:  -1,
		BatchSize:   0,
		StartPort:   100,
		EndPort:     50,
		MaxMemoryMB: -1,
	}
	err := cfg.Validate()
	require.Error(t, err)
	msg := err.Error()
	assert.Contains(t, msg, "XRAY_PATH")
	assert.Contains(t, msg, "PROXY_MAX_WORKERS")
	assert.Contains(t, msg, "PROXY_BATCH_SIZE")
	assert.Contains(t, msg, "PROXY_START_PORT")
	assert.Contains(t, msg, "PROXY_MAX_MEMORY_MB")
}

func TestEnvOverride(t *testing.T) {
	t.Setenv("XRAY_PATH", "/bin/xray")
	t.Setenv("PROXY_MAX_WORKERS", "7")
	t.Setenv("PROXY_START_PORT", "30000")
	t.Setenv("PROXY_END_PORT", "30010")

	v := viper.New()
	cfg, err := Load(v)
	require.NoError(t, err)

	assert.Equal(t, 7, cfg.MaxWorkers)
	assert.Equal(t, 30000, cfg.StartPort)
	assert.Equal(t, 30010, cfg.EndPort)
}
