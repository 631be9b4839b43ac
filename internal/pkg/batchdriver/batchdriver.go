// Copyright (c) 2024 The proxytester Authors. All rights reserved.
// This software is licensed under a 3-clause BSD license. Please consult the
// LICENSE file distributed with the sources of this project regarding your
// rights to use or distribute this software.

// Package batchdriver slices the ProxyConfig stream produced by the
// collector into fixed-size batches and drives each through the
// Tester, per spec.md §4.8.
package batchdriver

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/proxycore/tester/internal/pkg/progress"
	"github.com/proxycore/tester/internal/pkg/sylog"
	"github.com/proxycore/tester/internal/pkg/tester"
	"github.com/proxycore/tester/pkg/proxyconfig"
)

// Tester is the subset of tester.Tester the driver depends on,
// narrowed to ease testing with a fake.
type Tester interface {
	TestBatch(ctx context.Context, batchID int64, configs []proxyconfig.Config) []tester.ResultData
}

// Driver slices the channel from collector.StreamFile into BatchSize
// batches and calls Tester.TestBatch on each.
type Driver struct {
	Tester          Tester
	BatchSize       int
	IncrementalSave bool
	OutputDir       string // DataDir/working_json, per spec.md §6

	// Progress, if set, has its total extended by one for each valid
	// config read and is advanced by a batch's result count once that
	// batch's TestBatch call returns. A nil Progress is a safe no-op.
	Progress *progress.Bar
}

// Run consumes configs until it closes (collector.StreamFile's
// contract), slicing it into batches as they fill or the stream
// drains, and returns every batch's results concatenated in batch
// order. collectErr surfaces a collector-side decode failure once
// the current in-flight batch finishes.
//
// If ctx is cancelled mid-stream, Run stops accepting new batches and
// returns what was collected so far alongside ctx.Err(); the caller
// maps that to exit 130.
func (d *Driver) Run(ctx context.Context, configs <-chan proxyconfig.Config, collectErr <-chan error) ([]tester.ResultData, error) {
	if d.IncrementalSave {
		if err := os.MkdirAll(d.OutputDir, 0o755); err != nil {
			return nil, fmt.Errorf("batchdriver: creating output dir: %w", err)
		}
	}

	var all []tester.ResultData
	var batchID int64
	batch := make([]proxyconfig.Config, 0, d.BatchSize)

	flush := func() {
		if len(batch) == 0 {
			return
		}
		batchID++
		results := d.Tester.TestBatch(ctx, batchID, batch)
		all = append(all, results...)
		d.Progress.IncrBy(len(results))
		if d.IncrementalSave {
			if err := d.save(batchID, results); err != nil {
				sylog.Errorf("batchdriver: saving batch %d: %v", batchID, err)
			}
		}
		batch = make([]proxyconfig.Config, 0, d.BatchSize)
	}

	for {
		select {
		case <-ctx.Done():
			flush()
			return all, ctx.Err()

		case cfg, ok := <-configs:
			if !ok {
				flush()
				return all, drainErr(collectErr)
			}
			if err := cfg.Validate(); err != nil {
				sylog.Warningf("batchdriver: skipping invalid config %q: %v", cfg.Tag, err)
				continue
			}
			d.Progress.IncrTotal(1)
			batch = append(batch, cfg)
			if len(batch) == d.BatchSize {
				flush()
			}
		}
	}
}

func drainErr(errCh <-chan error) error {
	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("batchdriver: collector: %w", err)
		}
	default:
	}
	return nil
}

func (d *Driver) save(batchID int64, results []tester.ResultData) error {
	path := filepath.Join(d.OutputDir, fmt.Sprintf("result_%d.json", batchID))
	data, err := json.MarshalIndent(results, "", "  ")
	if err != nil {
		return fmt.Errorf("marshaling batch %d results: %w", batchID, err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("writing %s: %w", path, err)
	}
	return nil
}
