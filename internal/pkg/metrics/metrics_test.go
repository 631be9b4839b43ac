// Copyright (c) 2024 The proxytester Authors. All rights reserved.
// This software is licensed under a 3-clause BSD license. Please consult the
// LICENSE file distributed with the sources of this project regarding your
// rights to use or distribute this software.

package metrics

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeActive struct{ n int }

func (f fakeActive) ActiveProcesses() int { return f.n }

func TestRecordSuccessUpdatesRunningMean(t *testing.T) {
	r := New(nil, false)
	r.RecordSuccess(100 * time.Millisecond)
	r.RecordSuccess(300 * time.Millisecond)

	snap := r.Snapshot()
	assert.Equal(t, int64(2), snap.TotalTests)
	assert.Equal(t, int64(2), snap.SuccessfulTests)
	assert.InDelta(t, 0.2, snap.AvgResponseSeconds, 1e-9)
}

func TestRecordFailureExcludedFromAvgResponse(t *testing.T) {
	r := New(nil, false)
	r.RecordSuccess(200 * time.Millisecond)
	r.RecordFailure("timeout")

	snap := r.Snapshot()
	assert.Equal(t, int64(2), snap.TotalTests)
	assert.Equal(t, int64(1), snap.SuccessfulTests)
	assert.Equal(t, int64(1), snap.FailedTests)
	assert.InDelta(t, 0.2, snap.AvgResponseSeconds, 1e-9)
	assert.InDelta(t, 50.0, snap.SuccessRate, 1e-9)
}

func TestSnapshotReportsActiveProcessesFromSource(t *testing.T) {
	r := New(fakeActive{n: 3}, false)
	assert.Equal(t, 3, r.Snapshot().ActiveProcesses)
}

func TestHandlerServesJSONMetricsAndHealth(t *testing.T) {
	r := New(nil, false)
	r.RecordSuccess(50 * time.Millisecond)

	srv := httptest.NewServer(r.Handler())
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/metrics")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	var snap Snapshot
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&snap))
	assert.Equal(t, int64(1), snap.TotalTests)

	healthResp, err := http.Get(srv.URL + "/health")
	require.NoError(t, err)
	defer healthResp.Body.Close()
	assert.Equal(t, http.StatusOK, healthResp.StatusCode)
}

func TestHandlerServesPrometheusExpositionWhenEnabled(t *testing.T) {
	r := New(nil, true)
	r.RecordSuccess(10 * time.Millisecond)

	srv := httptest.NewServer(r.Handler())
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/metrics/prom")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}
