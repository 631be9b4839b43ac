// Copyright (c) 2024 The proxytester Authors. All rights reserved.
// This software is licensed under a 3-clause BSD license. Please consult the
// LICENSE file distributed with the sources of this project regarding your
// rights to use or distribute this software.

// Package metrics aggregates process-wide test counters and exposes
// them over HTTP, per spec.md §4.6. Prometheus registration is
// additive instrumentation on top of the spec-mandated JSON snapshot,
// gated behind EnableMetrics the same way the k8zner operator gates
// its controller metrics behind enableMetrics.
package metrics

import (
	"context"
	"encoding/json"
	"net/http"
	"runtime"
	"sync"
	"sync/atomic"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/proxycore/tester/internal/pkg/sylog"
)

// Snapshot mirrors the wire shape documented in spec.md §6.
type Snapshot struct {
	TotalTests        int64   `json:"total_tests"`
	SuccessfulTests    int64  `json:"successful_tests"`
	FailedTests        int64  `json:"failed_tests"`
	SuccessRate        float64 `json:"success_rate"`
	AvgResponseSeconds float64 `json:"avg_response_time_seconds"`
	MemoryUsageMB      float64 `json:"memory_usage_mb"`
	ActiveProcesses    int     `json:"active_processes"`
	UptimeSeconds      float64 `json:"uptime_seconds"`
}

// ActiveProcessSource is satisfied by admission.Controller; kept as
// an interface so Metrics does not import the admission package.
type ActiveProcessSource interface {
	ActiveProcesses() int
}

// Registry is the process-wide singleton described in spec.md §9:
// initialized once at Tester start, drained at stop. Counters are
// lock-free atomics; avgResponse is protected by mu since it is a
// read-modify-write running mean rather than a simple increment.
type Registry struct {
	startTime time.Time
	active    ActiveProcessSource

	total   atomic.Int64
	success atomic.Int64
	failure atomic.Int64

	mu          sync.RWMutex
	avgResponse float64 // seconds, successful samples only

	memoryUsageMB atomic.Int64 // updated by the 5s sampler, read lock-free

	promTotal     *prometheus.CounterVec
	promAvgRespGa prometheus.Gauge
	promMemoryGa  prometheus.Gauge
	promActiveGa  prometheus.Gauge
	enableProm    bool
}

// New initializes the singleton. active reports active_processes;
// pass nil to always report zero (e.g. in unit tests that don't wire
// an AdmissionController). When enableProm is set, counters are also
// registered with a private prometheus.Registry exposed at
// GET /metrics/prom, additive to the required JSON endpoint.
func New(active ActiveProcessSource, enableProm bool) *Registry {
	r := &Registry{
		startTime:  time.Now(),
		active:     active,
		enableProm: enableProm,
	}
	if enableProm {
		r.promTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "proxytester",
			Name:      "tests_total",
			Help:      "Total number of proxy tests completed, by result.",
		}, []string{"result"})
		r.promAvgRespGa = prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "proxytester",
			Name:      "avg_response_time_seconds",
			Help:      "Running mean response time of successful probes.",
		})
		r.promMemoryGa = prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "proxytester",
			Name:      "memory_usage_mb",
			Help:      "Memory obtained from the OS by the Go runtime (MemStats.Sys), sampled every 5s.",
		})
		r.promActiveGa = prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "proxytester",
			Name:      "active_processes",
			Help:      "Number of proxy-core child processes currently running.",
		})
	}
	return r
}

// Collectors returns the metric collectors for the caller to
// register with its prometheus.Registerer of choice, or nil if
// Prometheus export was not enabled.
func (r *Registry) Collectors() []prometheus.Collector {
	if !r.enableProm {
		return nil
	}
	return []prometheus.Collector{r.promTotal, r.promAvgRespGa, r.promMemoryGa, r.promActiveGa}
}

// RecordSuccess records one successful task completion and its
// response time, updating the incremental mean per spec.md §4.6.
func (r *Registry) RecordSuccess(responseTime time.Duration) {
	r.total.Add(1)
	n := r.success.Add(1)

	r.mu.Lock()
	r.avgResponse = (r.avgResponse*float64(n-1) + responseTime.Seconds()) / float64(n)
	r.mu.Unlock()

	if r.enableProm {
		r.promTotal.WithLabelValues("success").Inc()
		r.mu.RLock()
		r.promAvgRespGa.Set(r.avgResponse)
		r.mu.RUnlock()
	}
}

// RecordFailure records one non-successful task completion; result
// is the TestResult enum value, used only as the Prometheus label.
func (r *Registry) RecordFailure(result string) {
	r.total.Add(1)
	r.failure.Add(1)
	if r.enableProm {
		r.promTotal.WithLabelValues(result).Inc()
	}
}

// sampleInterval is the sampler goroutine period from spec.md §4.6.
const sampleInterval = 5 * time.Second

// RunSampler polls the allocator for memory_usage_mb every 5s until
// ctx is cancelled. Intended to run as its own goroutine for the
// lifetime of the Tester.
func (r *Registry) RunSampler(ctx context.Context) {
	ticker := time.NewTicker(sampleInterval)
	defer ticker.Stop()
	r.sample()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			r.sample()
		}
	}
}

func (r *Registry) sample() {
	var m runtime.MemStats
	runtime.ReadMemStats(&m)
	mb := int64(m.Sys / (1024 * 1024))
	r.memoryUsageMB.Store(mb)
	if r.enableProm {
		r.promMemoryGa.Set(float64(mb))
	}
}

// Snapshot returns the current counters per spec.md §6's JSON shape.
func (r *Registry) Snapshot() Snapshot {
	total := r.total.Load()
	success := r.success.Load()
	failure := r.failure.Load()

	var rate float64
	if total > 0 {
		rate = float64(success) / float64(total) * 100
	}

	r.mu.RLock()
	avg := r.avgResponse
	r.mu.RUnlock()

	active := 0
	if r.active != nil {
		active = r.active.ActiveProcesses()
		if r.enableProm {
			r.promActiveGa.Set(float64(active))
		}
	}

	return Snapshot{
		TotalTests:         total,
		SuccessfulTests:    success,
		FailedTests:        failure,
		SuccessRate:        rate,
		AvgResponseSeconds: avg,
		MemoryUsageMB:      float64(r.memoryUsageMB.Load()),
		ActiveProcesses:    active,
		UptimeSeconds:      time.Since(r.startTime).Seconds(),
	}
}

// Handler serves GET /metrics (JSON snapshot) and GET /health, per
// spec.md §6. If Prometheus export is enabled, GET /metrics/prom
// serves the additive text-format exposition.
func (r *Registry) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/metrics", func(w http.ResponseWriter, req *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		if err := json.NewEncoder(w).Encode(r.Snapshot()); err != nil {
			sylog.Errorf("metrics: encoding snapshot: %v", err)
		}
	})
	mux.HandleFunc("/health", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("OK"))
	})
	if r.enableProm {
		promReg := prometheus.NewRegistry()
		promReg.MustRegister(r.Collectors()...)
		mux.Handle("/metrics/prom", promhttp.HandlerFor(promReg, promhttp.HandlerOpts{}))
	}
	return mux
}
