// Copyright (c) 2024 The proxytester Authors. All rights reserved.
// This software is licensed under a 3-clause BSD license. Please consult the
// LICENSE file distributed with the sources of this project regarding your
// rights to use or distribute this software.

package tester

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/proxycore/tester/internal/pkg/admission"
	"github.com/proxycore/tester/internal/pkg/childprocess"
	"github.com/proxycore/tester/internal/pkg/metrics"
	"github.com/proxycore/tester/internal/pkg/portmanager"
	"github.com/proxycore/tester/internal/pkg/probe"
	"github.com/proxycore/tester/internal/pkg/sylog"
	"github.com/proxycore/tester/pkg/proxyconfig"
)

// portAcquirePoll is how often a task retries PortManager.Acquire
// while the range is exhausted. It is what makes spec.md §8's
// "port range of size 1 forces serialization" scenario work without
// the caller observing a single port_conflict.
const portAcquirePoll = 5 * time.Millisecond

// submitRetryPoll is how often Submit is retried on QueueFull.
const submitRetryPoll = 2 * time.Millisecond

// Tester is the orchestrator from spec.md §4.7.
type Tester struct {
	CoreBinary      string
	ConfigDir       string
	ProbeURL        string
	Timeout         time.Duration
	GracefulTimeout time.Duration
	MaxWorkers      int

	Ports     *portmanager.Manager
	Admission *admission.Controller
	Metrics   *metrics.Registry
}

// TestBatch fans configs out across a WorkerPool sized
// min(MaxWorkers, len(configs)) and collects one ResultData per
// config, per spec.md §4.7. If ctx is cancelled and some tasks have
// not landed a result within GracefulTimeout, the returned slice holds
// only the results collected by then.
func (t *Tester) TestBatch(ctx context.Context, batchID int64, configs []proxyconfig.Config) []ResultData {
	if len(configs) == 0 {
		return []ResultData{}
	}

	run := BatchRun{BatchID: batchID, Configs: configs, Started: time.Now()}

	poolSize := t.MaxWorkers
	if len(configs) < poolSize {
		poolSize = len(configs)
	}
	pool := NewWorkerPool(poolSize)
	defer pool.Stop()

	resultsCh := make(chan ResultData, len(configs))

	for _, cfg := range configs {
		cfg := cfg
		for {
			status := pool.Submit(func() {
				resultsCh <- t.runTask(ctx, batchID, cfg)
			})
			if status == Submitted {
				break
			}
			if status == ShuttingDown {
				resultsCh <- cancelledResult(batchID, cfg)
				break
			}
			select {
			case <-ctx.Done():
				resultsCh <- cancelledResult(batchID, cfg)
			case <-time.After(submitRetryPoll):
				continue
			}
			break
		}
	}

	run.Results = t.collect(ctx, resultsCh, len(configs))
	run.Finished = time.Now()
	t.logBatchRun(run)
	return run.Results
}

func (t *Tester) logBatchRun(run BatchRun) {
	var succeeded int
	for _, r := range run.Results {
		if r.Result == Success {
			succeeded++
		}
	}
	sylog.WithField("batch_id", run.BatchID).
		WithField("configs", len(run.Configs)).
		WithField("succeeded", succeeded).
		Debugf("batch finished in %s", run.Finished.Sub(run.Started))
}

func (t *Tester) collect(ctx context.Context, resultsCh <-chan ResultData, want int) []ResultData {
	results := make([]ResultData, 0, want)

	for len(results) < want {
		select {
		case r := <-resultsCh:
			results = append(results, r)
		case <-ctx.Done():
			return t.drain(resultsCh, results, want)
		}
	}
	return results
}

// drain gives in-flight tasks up to GracefulTimeout to land their
// result on the channel before returning whatever was collected, per
// spec.md §4.7 step 4. Tasks themselves observe ctx and resolve to
// cancelled promptly, so in practice this rarely times out.
func (t *Tester) drain(resultsCh <-chan ResultData, results []ResultData, want int) []ResultData {
	deadline := time.After(t.GracefulTimeout)
	for len(results) < want {
		select {
		case r := <-resultsCh:
			results = append(results, r)
		case <-deadline:
			sylog.Warningf("tester: graceful drain deadline hit with %d/%d results collected", len(results), want)
			return results
		}
	}
	return results
}

func cancelledResult(batchID int64, cfg proxyconfig.Config) ResultData {
	return ResultData{
		Config:    cfg,
		Result:    Cancelled,
		Message:   "batch context cancelled before task started",
		BatchID:   batchID,
		StartedAt: time.Now(),
	}
}

// runTask executes one candidate end to end: admission, port lease,
// child spawn, probe, teardown. It never panics past its own
// boundary — WorkerPool.run has a backstop recover, but runTask also
// guards itself so a panic still yields a well-formed Failure result
// rather than a silently dropped submission.
func (t *Tester) runTask(ctx context.Context, batchID int64, cfg proxyconfig.Config) (rd ResultData) {
	started := time.Now()
	rd = ResultData{Config: cfg, BatchID: batchID, StartedAt: started}

	defer func() {
		if r := recover(); r != nil {
			rd.Result = Failure
			rd.Message = fmt.Sprintf("panic: %v", r)
			t.Metrics.RecordFailure(string(rd.Result))
		}
	}()

	if ctx.Err() != nil {
		rd.Result = Cancelled
		rd.Message = "cancelled before admission"
		t.Metrics.RecordFailure(string(rd.Result))
		return rd
	}

	adm, ok := t.Admission.CanTest()
	if !ok {
		rd.Result = ResourceExhausted
		rd.Message = "admission denied: memory or active-process headroom exhausted"
		t.Metrics.RecordFailure(string(rd.Result))
		return rd
	}
	defer adm.Release()

	lease, err := t.acquirePort(ctx)
	if err != nil {
		rd.Result = Cancelled
		rd.Message = "cancelled while waiting for a free port"
		t.Metrics.RecordFailure(string(rd.Result))
		return rd
	}
	defer t.Ports.Release(lease)

	cfg = cfg.Clone()
	cfg.Port = lease.Port
	rd.Config = cfg

	configPath, err := childprocess.WriteConfig(t.ConfigDir, cfg, lease.Port, lease.Token())
	if err != nil {
		rd.Result = LaunchFailed
		rd.Message = err.Error()
		t.Metrics.RecordFailure(string(rd.Result))
		return rd
	}

	handle, err := childprocess.Start(ctx, t.CoreBinary, configPath, lease.Port)
	if err != nil {
		switch {
		case errors.Is(err, childprocess.ErrNotReady):
			rd.Result = PortConflict
		default:
			rd.Result = LaunchFailed
		}
		rd.Message = err.Error()
		t.Metrics.RecordFailure(string(rd.Result))
		return rd
	}
	defer childprocess.Stop(handle)

	probeCtx, cancel := context.WithTimeout(ctx, t.Timeout)
	defer cancel()

	result := probe.Run(probeCtx, cfg.Type.LocalInboundKind(), lease.Port, t.ProbeURL)
	rd.ResponseTime = result.ResponseTime
	rd.Message = result.Detail

	switch result.Outcome {
	case probe.Success:
		rd.Result = Success
		t.Metrics.RecordSuccess(result.ResponseTime)
	case probe.Timeout:
		rd.Result = Timeout
		t.Metrics.RecordFailure(string(rd.Result))
	case probe.Cancelled:
		rd.Result = Cancelled
		t.Metrics.RecordFailure(string(rd.Result))
	default:
		rd.Result = ProbeFailed
		t.Metrics.RecordFailure(string(rd.Result))
	}
	return rd
}

// acquirePort polls PortManager.Acquire until a port frees up or ctx
// is done. Polling rather than failing fast on ErrPortExhausted is
// what makes a port range smaller than MaxWorkers serialize tasks
// instead of reporting them as conflicts (spec.md §8 scenario 2).
func (t *Tester) acquirePort(ctx context.Context) (portmanager.Lease, error) {
	for {
		lease, err := t.Ports.Acquire()
		if err == nil {
			return lease, nil
		}
		select {
		case <-ctx.Done():
			return portmanager.Lease{}, ctx.Err()
		case <-time.After(portAcquirePoll):
		}
	}
}

