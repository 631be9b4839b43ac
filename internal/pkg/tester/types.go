// Copyright (c) 2024 The proxytester Authors. All rights reserved.
// This software is licensed under a 3-clause BSD license. Please consult the
// LICENSE file distributed with the sources of this project regarding your
// rights to use or distribute this software.

// Package tester implements the orchestrator described in spec.md
// §4.7: per-batch fan-out of ProxyConfig candidates into the worker
// pool, admission gating, and result collection.
package tester

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/proxycore/tester/pkg/proxyconfig"
)

// Result is the TestResult enum from spec.md §3.
type Result string

const (
	Success           Result = "success"
	Failure           Result = "failure"
	Timeout           Result = "timeout"
	PortConflict      Result = "port_conflict"
	ResourceExhausted Result = "resource_exhausted"
	LaunchFailed      Result = "launch_failed"
	ProbeFailed       Result = "probe_failed"
	Cancelled         Result = "cancelled"
)

func (r Result) valid() bool {
	switch r {
	case Success, Failure, Timeout, PortConflict, ResourceExhausted, LaunchFailed, ProbeFailed, Cancelled:
		return true
	default:
		return false
	}
}

func (r Result) MarshalJSON() ([]byte, error) {
	if !r.valid() {
		return nil, fmt.Errorf("tester: invalid result %q", string(r))
	}
	return json.Marshal(string(r))
}

func (r *Result) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	candidate := Result(s)
	if !candidate.valid() {
		return fmt.Errorf("tester: invalid result %q", s)
	}
	*r = candidate
	return nil
}

// ResultData is TestResultData from spec.md §3: created per task,
// owned exclusively by the batch result slice it is appended to.
type ResultData struct {
	Config       proxyconfig.Config `json:"config"`
	Result       Result             `json:"result"`
	Message      string             `json:"message,omitempty"`
	ResponseTime time.Duration      `json:"response_time_ns"`
	BatchID      int64              `json:"batch_id"`
	StartedAt    time.Time          `json:"started_at"`
}

// BatchRun is the record described in spec.md §3, one per call to
// Tester.TestBatch: TestBatch assembles one internally to log a
// per-batch summary once every task has landed a result.
type BatchRun struct {
	BatchID  int64
	Configs  []proxyconfig.Config
	Results  []ResultData
	Started  time.Time
	Finished time.Time
}
