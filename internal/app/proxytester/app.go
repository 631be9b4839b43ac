// Copyright (c) 2024 The proxytester Authors. All rights reserved.
// This software is licensed under a 3-clause BSD license. Please consult the
// LICENSE file distributed with the sources of this project regarding your
// rights to use or distribute this software.

// Package proxytester wires the harness's components together the
// way this repository's internal/app packages assemble a runtime out
// of internal/pkg collaborators: it owns process lifetime, not
// behavior, which lives in internal/pkg.
package proxytester

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"github.com/gofrs/flock"
	"github.com/sirupsen/logrus"
	"github.com/spf13/viper"

	"github.com/proxycore/tester/internal/pkg/admission"
	"github.com/proxycore/tester/internal/pkg/batchdriver"
	"github.com/proxycore/tester/internal/pkg/collector"
	"github.com/proxycore/tester/internal/pkg/config"
	"github.com/proxycore/tester/internal/pkg/metrics"
	"github.com/proxycore/tester/internal/pkg/portmanager"
	"github.com/proxycore/tester/internal/pkg/progress"
	"github.com/proxycore/tester/internal/pkg/shutdown"
	"github.com/proxycore/tester/internal/pkg/sylog"
	"github.com/proxycore/tester/internal/pkg/tester"
)

// Run loads configuration, assembles the full pipeline, and drives
// inputPath (or stdin, given "-") through it until the stream drains
// or parentCtx is cancelled. It returns the process exit code spec.md
// §7 assigns to the outcome: 0 on a clean drain, 130 if a shutdown
// signal cut the run short, 1 on any other fatal error.
func Run(parentCtx context.Context, inputPath string) int {
	cfg, err := config.Load(viper.New())
	if err != nil {
		sylog.Errorf("loading configuration: %v", err)
		return 1
	}
	if err := cfg.Validate(); err != nil {
		sylog.Errorf("invalid configuration: %v", err)
		return 1
	}
	sylog.SetLevelString(cfg.LogLevel)
	if cfg.NoColor {
		sylog.DisableColor()
	}
	sylog.Infof("memory budget %s across up to %d workers", cfg.MemoryBudgetString(), cfg.MaxWorkers)

	for _, dir := range []string{cfg.DataDir, cfg.ConfigDir, cfg.LogDir} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			sylog.Errorf("creating %s: %v", dir, err)
			return 1
		}
	}

	// An advisory lock on DataDir keeps two proxytester runs from
	// clobbering each other's incremental batch files.
	lockPath := filepath.Join(cfg.DataDir, ".proxytester.lock")
	fl := flock.New(lockPath)
	locked, err := fl.TryLock()
	if err != nil {
		sylog.Errorf("locking %s: %v", lockPath, err)
		return 1
	}
	if !locked {
		sylog.Errorf("another proxytester run holds %s", lockPath)
		return 1
	}
	defer fl.Unlock()

	ctx, sup := shutdown.Start(parentCtx, cfg.GracefulTimeout)
	defer sup.Stop()

	// Once the drain window is blown (second signal or GracefulTimeout),
	// stop waiting on in-flight tasks and exit with the drain code.
	runDone := make(chan struct{})
	defer close(runDone)
	go func() {
		select {
		case <-sup.Aborted():
			sylog.Errorf("shutdown: drain window exceeded, exiting")
			os.Exit(int(shutdown.ExitSignalDrain))
		case <-runDone:
		}
	}()

	ports := portmanager.New(cfg.StartPort, cfg.EndPort)
	admissionCtl := admission.New(cfg.MaxWorkers, cfg.MaxMemoryMB)
	metricsReg := metrics.New(admissionCtl, cfg.EnableMetrics)

	// The sampler gets its own child context: it must keep polling for
	// the whole run even when ctx itself is never cancelled (the
	// common, signal-free path), and must stop once the run is over
	// regardless of how that happened.
	samplerCtx, samplerCancel := context.WithCancel(ctx)
	defer samplerCancel()
	samplerDone := make(chan struct{})
	go func() {
		defer close(samplerDone)
		metricsReg.RunSampler(samplerCtx)
	}()

	var metricsSrv *http.Server
	if cfg.EnableMetrics {
		metricsSrv = &http.Server{
			Addr:    fmt.Sprintf(":%d", cfg.MetricsPort),
			Handler: metricsReg.Handler(),
		}
		go func() {
			sylog.Infof("metrics server listening on %s", metricsSrv.Addr)
			if err := metricsSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				sylog.Errorf("metrics server: %v", err)
			}
		}()
	}

	t := &tester.Tester{
		CoreBinary:      cfg.XrayPath,
		ConfigDir:       cfg.ConfigDir,
		ProbeURL:        cfg.ProbeURL,
		Timeout:         cfg.Timeout,
		GracefulTimeout: cfg.GracefulTimeout,
		MaxWorkers:      cfg.MaxWorkers,
		Ports:           ports,
		Admission:       admissionCtl,
		Metrics:         metricsReg,
	}

	var bar *progress.Bar
	if !cfg.NoProgress && sylog.GetLevel() > logrus.ErrorLevel {
		bar = progress.New()
	}

	driver := &batchdriver.Driver{
		Tester:          t,
		BatchSize:       cfg.BatchSize,
		IncrementalSave: cfg.IncrementalSave,
		OutputDir:       filepath.Join(cfg.DataDir, "working_json"),
		Progress:        bar,
	}

	rc, err := collector.Open(inputPath)
	if err != nil {
		sylog.Errorf("opening input: %v", err)
		return 1
	}
	defer rc.Close()

	configs, collectErr := collector.StreamFile(rc)
	results, runErr := driver.Run(ctx, configs, collectErr)
	bar.Done()
	samplerCancel()
	if runErr != nil && !errors.Is(runErr, context.Canceled) {
		sylog.Errorf("batch run: %v", runErr)
	}

	if err := writeFinalReport(cfg.DataDir, results); err != nil {
		sylog.Errorf("writing final report: %v", err)
	}
	logSummary(results)

	if metricsSrv != nil {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		if err := metricsSrv.Shutdown(shutdownCtx); err != nil {
			sylog.Warningf("shutting down metrics server: %v", err)
		}
	}
	<-samplerDone

	return int(sup.ExitCodeFor(runErr))
}

func writeFinalReport(dataDir string, results []tester.ResultData) error {
	data, err := json.MarshalIndent(results, "", "  ")
	if err != nil {
		return fmt.Errorf("marshaling results: %w", err)
	}
	path := filepath.Join(dataDir, "results.json")
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("writing %s: %w", path, err)
	}
	return nil
}

func logSummary(results []tester.ResultData) {
	var succeeded int
	for _, r := range results {
		if r.Result == tester.Success {
			succeeded++
		}
	}
	sylog.Infof("tested %d configs, %d succeeded", len(results), succeeded)
}
