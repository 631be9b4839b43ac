// Copyright (c) 2024 The proxytester Authors. All rights reserved.
// This software is licensed under a 3-clause BSD license. Please consult the
// LICENSE file distributed with the sources of this project regarding your
// rights to use or distribute this software.

package batchdriver

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/proxycore/tester/internal/pkg/tester"
	"github.com/proxycore/tester/pkg/proxyconfig"
)

type fakeTester struct {
	calls [][]proxyconfig.Config
}

func (f *fakeTester) TestBatch(_ context.Context, batchID int64, configs []proxyconfig.Config) []tester.ResultData {
	f.calls = append(f.calls, configs)
	results := make([]tester.ResultData, len(configs))
	for i, c := range configs {
		results[i] = tester.ResultData{Config: c, Result: tester.Success, BatchID: batchID}
	}
	return results
}

func feed(tags ...string) (<-chan proxyconfig.Config, <-chan error) {
	out := make(chan proxyconfig.Config, len(tags))
	errCh := make(chan error, 1)
	for _, tag := range tags {
		out <- proxyconfig.Config{Tag: tag, Type: proxyconfig.Socks, Server: "1.2.3.4", ServerPort: 1080}
	}
	close(out)
	close(errCh)
	return out, errCh
}

func TestRunSlicesIntoBatchSizedChunks(t *testing.T) {
	ft := &fakeTester{}
	d := &Driver{Tester: ft, BatchSize: 2}

	configs, errCh := feed("a", "b", "c", "d", "e")
	results, err := d.Run(context.Background(), configs, errCh)
	require.NoError(t, err)
	assert.Len(t, results, 5)
	require.Len(t, ft.calls, 3)
	assert.Len(t, ft.calls[0], 2)
	assert.Len(t, ft.calls[1], 2)
	assert.Len(t, ft.calls[2], 1)
}

func TestRunSkipsInvalidRecords(t *testing.T) {
	ft := &fakeTester{}
	d := &Driver{Tester: ft, BatchSize: 10}

	out := make(chan proxyconfig.Config, 2)
	out <- proxyconfig.Config{Tag: "", Type: proxyconfig.Socks, Server: "x", ServerPort: 1080}
	out <- proxyconfig.Config{Tag: "ok", Type: proxyconfig.Socks, Server: "1.2.3.4", ServerPort: 1080}
	close(out)
	errCh := make(chan error, 1)
	close(errCh)

	results, err := d.Run(context.Background(), out, errCh)
	require.NoError(t, err)
	assert.Len(t, results, 1)
	assert.Equal(t, "ok", results[0].Config.Tag)
}

func TestRunIncrementalSaveWritesOneFilePerBatch(t *testing.T) {
	ft := &fakeTester{}
	dir := t.TempDir()
	d := &Driver{Tester: ft, BatchSize: 2, IncrementalSave: true, OutputDir: dir}

	configs, errCh := feed("a", "b", "c")
	_, err := d.Run(context.Background(), configs, errCh)
	require.NoError(t, err)

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	assert.Len(t, entries, 2) // ceil(3/2) batches

	data, err := os.ReadFile(filepath.Join(dir, "result_1.json"))
	require.NoError(t, err)
	var decoded []tester.ResultData
	require.NoError(t, json.Unmarshal(data, &decoded))
	assert.Len(t, decoded, 2)
}

func TestRunCancelledMidStreamReturnsPartialAndError(t *testing.T) {
	ft := &fakeTester{}
	d := &Driver{Tester: ft, BatchSize: 1}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	out := make(chan proxyconfig.Config)
	errCh := make(chan error)
	results, err := d.Run(ctx, out, errCh)
	assert.Error(t, err)
	assert.Empty(t, results)
}

func TestRunEmptyInputReturnsNoResults(t *testing.T) {
	ft := &fakeTester{}
	d := &Driver{Tester: ft, BatchSize: 10}

	configs, errCh := feed()
	results, err := d.Run(context.Background(), configs, errCh)
	require.NoError(t, err)
	assert.Empty(t, results)
	assert.Empty(t, ft.calls)
}

func TestRunSurfacesCollectorErrorAfterDraining(t *testing.T) {
	ft := &fakeTester{}
	d := &Driver{Tester: ft, BatchSize: 10}

	out := make(chan proxyconfig.Config, 1)
	out <- proxyconfig.Config{Tag: "a", Type: proxyconfig.Socks, Server: "1.2.3.4", ServerPort: 1080}
	close(out)
	errCh := make(chan error, 1)
	errCh <- assert.AnError
	close(errCh)

	results, err := d.Run(context.Background(), out, errCh)
	assert.Error(t, err)
	assert.Len(t, results, 1)
}
