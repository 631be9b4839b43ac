// Copyright (c) 2024 The proxytester Authors. All rights reserved.
// This software is licensed under a 3-clause BSD license. Please consult the
// LICENSE file distributed with the sources of this project regarding your
// rights to use or distribute this software.

// Package config resolves the environment-variable surface documented
// in spec.md §6 using Viper, the same library the pack's agentpkg
// example uses for layered config resolution (see
// pkg/config/devconfig.go there). Unlike that example, every key here
// comes from the process environment, not a TOML file, since the
// spec defines no config file format for this harness.
package config

import (
	"fmt"
	"time"

	units "github.com/docker/go-units"
	"github.com/hashicorp/go-multierror"
	"github.com/spf13/viper"
)

// Config is every environment variable spec.md §6 recognizes.
type Config struct {
	XrayPath string

	MaxWorkers      int
	Timeout         time.Duration
	BatchSize       int
	IncrementalSave bool

	DataDir   string
	ConfigDir string
	LogDir    string

	StartPort int
	EndPort   int

	MaxMemoryMB int64

	EnableMetrics bool
	MetricsPort   int

	ProbeURL string

	GracefulTimeout time.Duration
	LogLevel        string
	NoColor         bool
	NoProgress      bool
}

// envBinding pairs a Viper key with the literal environment variable
// name from spec.md §6 — most carry a PROXY_ prefix, but XRAY_PATH
// notably does not, so each key is bound explicitly rather than via
// a single SetEnvPrefix call.
type envBinding struct {
	key     string
	envVar  string
	def     interface{}
}

var bindings = []envBinding{
	{"xray_path", "XRAY_PATH", ""},
	{"max_workers", "PROXY_MAX_WORKERS", 100},
	{"timeout_seconds", "PROXY_TIMEOUT", 3},
	{"batch_size", "PROXY_BATCH_SIZE", 100},
	{"incremental_save", "PROXY_INCREMENTAL_SAVE", true},
	{"data_dir", "PROXY_DATA_DIR", "./data"},
	{"config_dir", "PROXY_CONFIG_DIR", "./configs"},
	{"log_dir", "PROXY_LOG_DIR", "./logs"},
	{"start_port", "PROXY_START_PORT", 10000},
	{"end_port", "PROXY_END_PORT", 20000},
	{"max_memory_mb", "PROXY_MAX_MEMORY_MB", 1024},
	{"enable_metrics", "PROXY_ENABLE_METRICS", false},
	{"metrics_port", "PROXY_METRICS_PORT", 8080},
	{"probe_url", "PROXY_PROBE_URL", "http://www.gstatic.com/generate_204"},
	{"graceful_timeout_seconds", "PROXY_GRACEFUL_TIMEOUT", 10},
	{"log_level", "PROXY_LOG_LEVEL", "info"},
	{"no_color", "PROXY_NO_COLOR", false},
	{"no_progress", "PROXY_NO_PROGRESS", false},
}

// Load resolves Config from the process environment via Viper,
// falling back to the defaults in bindings. Values already Set on v
// take precedence over both; the run command passes a fresh Viper,
// so no command-line flag feeds into Config.
func Load(v *viper.Viper) (*Config, error) {
	for _, b := range bindings {
		v.SetDefault(b.key, b.def)
		if err := v.BindEnv(b.key, b.envVar); err != nil {
			return nil, fmt.Errorf("config: binding %s: %w", b.envVar, err)
		}
	}

	cfg := &Config{
		XrayPath:        v.GetString("xray_path"),
		MaxWorkers:      v.GetInt("max_workers"),
		Timeout:         time.Duration(v.GetInt("timeout_seconds")) * time.Second,
		BatchSize:       v.GetInt("batch_size"),
		IncrementalSave: v.GetBool("incremental_save"),
		DataDir:         v.GetString("data_dir"),
		ConfigDir:       v.GetString("config_dir"),
		LogDir:          v.GetString("log_dir"),
		StartPort:       v.GetInt("start_port"),
		EndPort:         v.GetInt("end_port"),
		MaxMemoryMB:     v.GetInt64("max_memory_mb"),
		EnableMetrics:   v.GetBool("enable_metrics"),
		MetricsPort:     v.GetInt("metrics_port"),
		ProbeURL:        v.GetString("probe_url"),
		GracefulTimeout: time.Duration(v.GetInt("graceful_timeout_seconds")) * time.Second,
		LogLevel:        v.GetString("log_level"),
		NoColor:         v.GetBool("no_color"),
		NoProgress:      v.GetBool("no_progress"),
	}
	return cfg, nil
}

// Validate turns configuration problems into the "fatal" error class
// from spec.md §7: every problem is collected so a single run reports
// them all, rather than stopping at the first.
func (c *Config) Validate() error {
	var result *multierror.Error

	if c.XrayPath == "" {
		result = multierror.Append(result, fmt.Errorf("XRAY_PATH is required"))
	}
	if c.MaxWorkers <= 0 {
		result = multierror.Append(result, fmt.Errorf("PROXY_MAX_WORKERS must be positive, got %d", c.MaxWorkers))
	}
	if c.BatchSize <= 0 {
		result = multierror.Append(result, fmt.Errorf("PROXY_BATCH_SIZE must be positive, got %d", c.BatchSize))
	}
	if c.StartPort <= 0 || c.EndPort <= c.StartPort {
		result = multierror.Append(result, fmt.Errorf("PROXY_START_PORT/PROXY_END_PORT must describe a non-empty range, got [%d,%d)", c.StartPort, c.EndPort))
	}
	if c.MaxMemoryMB <= 0 {
		result = multierror.Append(result, fmt.Errorf("PROXY_MAX_MEMORY_MB must be positive, got %d", c.MaxMemoryMB))
	}
	if c.ProbeURL == "" {
		result = multierror.Append(result, fmt.Errorf("PROXY_PROBE_URL must not be empty"))
	}

	return result.ErrorOrNil()
}

// MemoryBudgetString renders MaxMemoryMB the way docker/go-units
// renders size thresholds elsewhere in the pack ("1.0GiB" etc.),
// used for log messages rather than the wire format of /metrics.
func (c *Config) MemoryBudgetString() string {
	return units.BytesSize(float64(c.MaxMemoryMB) * 1024 * 1024)
}
