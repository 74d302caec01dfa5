// Package profiler - Request stage timings and runtime statistics for /metrics.
package profiler

import (
	"context"
	"runtime"
	"sort"
	"strconv"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
)

// RuntimeProfiler records operation timings and custom metrics.
//
// It is safe for concurrent use. Start adds a periodic log report; without it
// the profiler only collects and serves snapshots.
type RuntimeProfiler struct {
	reportInterval time.Duration
	maxSamples     int

	ctx     context.Context
	cancel  context.CancelFunc
	wg      sync.WaitGroup
	mu      sync.RWMutex
	started time.Time
	running bool

	metrics    map[string]*metricTracker
	operations map[string]*timeTracker
}

type metricTracker struct {
	values []float64
	sum    float64
	min    float64
	max    float64
}

type timeTracker struct {
	durations []time.Duration
	total     time.Duration
	min       time.Duration
	max       time.Duration
	count     int64
}

// ProfilingOptions configures the runtime profiler.
type ProfilingOptions struct {
	// ReportInterval specifies how often Start logs a report (default: 1m)
	ReportInterval time.Duration
	// MaxSamples is the window size per operation and metric (default: 600)
	MaxSamples int
}

// NewRuntimeProfiler creates a profiler.
//
// Arguments:
// - opts: Configuration options for the profiler
//
// Returns:
// - A configured RuntimeProfiler instance
func NewRuntimeProfiler(opts ProfilingOptions) *RuntimeProfiler {
	if opts.ReportInterval == 0 {
		opts.ReportInterval = time.Minute
	}
	if opts.MaxSamples == 0 {
		opts.MaxSamples = 600
	}

	ctx, cancel := context.WithCancel(context.Background())
	return &RuntimeProfiler{
		reportInterval: opts.ReportInterval,
		maxSamples:     opts.MaxSamples,
		ctx:            ctx,
		cancel:         cancel,
		started:        time.Now(),
		metrics:        make(map[string]*metricTracker),
		operations:     make(map[string]*timeTracker),
	}
}

// Start logs a report every ReportInterval until Stop. Calling it twice is a no-op.
func (rp *RuntimeProfiler) Start(log logrus.FieldLogger) {
	rp.mu.Lock()
	defer rp.mu.Unlock()

	if rp.running {
		return
	}
	rp.running = true

	rp.wg.Add(1)
	go func() {
		defer rp.wg.Done()

		ticker := time.NewTicker(rp.reportInterval)
		defer ticker.Stop()

		for {
			select {
			case <-rp.ctx.Done():
				return
			case <-ticker.C:
				rp.report(log)
			}
		}
	}()
}

// Stop ends the report loop and waits for it to exit.
func (rp *RuntimeProfiler) Stop() {
	rp.mu.Lock()
	if !rp.running {
		rp.mu.Unlock()
		return
	}
	rp.running = false
	rp.mu.Unlock()

	rp.cancel()
	rp.wg.Wait()
}

// RecordMetric records a custom metric value.
//
// Arguments:
// - name: The name of the metric
// - value: The metric value to record
func (rp *RuntimeProfiler) RecordMetric(name string, value float64) {
	rp.mu.Lock()
	defer rp.mu.Unlock()

	tracker, ok := rp.metrics[name]
	if !ok {
		tracker = &metricTracker{min: value, max: value}
		rp.metrics[name] = tracker
	}

	tracker.values = append(tracker.values, value)
	tracker.sum += value
	if len(tracker.values) > rp.maxSamples {
		tracker.sum -= tracker.values[0]
		tracker.values = tracker.values[1:]
	}
	tracker.min = min(tracker.min, value)
	tracker.max = max(tracker.max, value)
}

// StartOperation begins timing an operation.
//
// Arguments:
// - name: The name of the operation to track
//
// Returns:
// - A function to call when the operation completes
//
// @example
// defer rp.StartOperation("inference")()
func (rp *RuntimeProfiler) StartOperation(name string) func() {
	start := time.Now()
	return func() {
		rp.RecordDuration(name, time.Since(start))
	}
}

// RecordDuration records a completed operation.
func (rp *RuntimeProfiler) RecordDuration(name string, d time.Duration) {
	rp.mu.Lock()
	defer rp.mu.Unlock()

	tracker, ok := rp.operations[name]
	if !ok {
		tracker = &timeTracker{min: d, max: d}
		rp.operations[name] = tracker
	}

	tracker.durations = append(tracker.durations, d)
	tracker.total += d
	if len(tracker.durations) > rp.maxSamples {
		tracker.total -= tracker.durations[0]
		tracker.durations = tracker.durations[1:]
	}
	tracker.count++
	tracker.min = min(tracker.min, d)
	tracker.max = max(tracker.max, d)
}

// OperationStats summarizes one operation. Averages cover the sample window;
// count, min and max cover the profiler lifetime.
type OperationStats struct {
	Count int64   `json:"count"`
	AvgMS float64 `json:"avg_ms"`
	MinMS float64 `json:"min_ms"`
	MaxMS float64 `json:"max_ms"`
}

// MetricStats summarizes one custom metric over the sample window.
type MetricStats struct {
	Avg     float64 `json:"avg"`
	Min     float64 `json:"min"`
	Max     float64 `json:"max"`
	Samples int     `json:"samples"`
}

// MemoryStats is the subset of runtime.MemStats reported.
type MemoryStats struct {
	Alloc         uint64  `json:"alloc"`
	TotalAlloc    uint64  `json:"total_alloc"`
	Sys           uint64  `json:"sys"`
	HeapAlloc     uint64  `json:"heap_alloc"`
	HeapObjects   uint64  `json:"heap_objects"`
	GCCycles      uint32  `json:"gc_cycles"`
	GCCPUFraction float64 `json:"gc_cpu_fraction"`
}

// Snapshot is a point-in-time copy of the profiler state.
type Snapshot struct {
	UptimeSeconds float64                   `json:"uptime_seconds"`
	Goroutines    int                       `json:"goroutines"`
	CgoCalls      int64                     `json:"cgo_calls"`
	Memory        MemoryStats               `json:"memory"`
	Operations    map[string]OperationStats `json:"operations"`
	Metrics       map[string]MetricStats    `json:"metrics"`
}

// Snapshot returns the current statistics.
func (rp *RuntimeProfiler) Snapshot() Snapshot {
	var mem runtime.MemStats
	runtime.ReadMemStats(&mem)

	rp.mu.RLock()
	defer rp.mu.RUnlock()

	snap := Snapshot{
		UptimeSeconds: time.Since(rp.started).Seconds(),
		Goroutines:    runtime.NumGoroutine(),
		CgoCalls:      runtime.NumCgoCall(),
		Memory: MemoryStats{
			Alloc:         mem.Alloc,
			TotalAlloc:    mem.TotalAlloc,
			Sys:           mem.Sys,
			HeapAlloc:     mem.HeapAlloc,
			HeapObjects:   mem.HeapObjects,
			GCCycles:      mem.NumGC,
			GCCPUFraction: mem.GCCPUFraction,
		},
		Operations: make(map[string]OperationStats, len(rp.operations)),
		Metrics:    make(map[string]MetricStats, len(rp.metrics)),
	}

	for name, t := range rp.operations {
		if len(t.durations) == 0 {
			continue
		}
		snap.Operations[name] = OperationStats{
			Count: t.count,
			AvgMS: milliseconds(t.total / time.Duration(len(t.durations))),
			MinMS: milliseconds(t.min),
			MaxMS: milliseconds(t.max),
		}
	}
	for name, t := range rp.metrics {
		if len(t.values) == 0 {
			continue
		}
		snap.Metrics[name] = MetricStats{
			Avg:     t.sum / float64(len(t.values)),
			Min:     t.min,
			Max:     t.max,
			Samples: len(t.values),
		}
	}
	return snap
}

func (rp *RuntimeProfiler) report(log logrus.FieldLogger) {
	snap := rp.Snapshot()

	log.WithFields(logrus.Fields{
		"uptime":     time.Duration(snap.UptimeSeconds * float64(time.Second)).Truncate(time.Second),
		"goroutines": snap.Goroutines,
		"heap_alloc": formatBytes(snap.Memory.HeapAlloc),
		"gc_cycles":  snap.Memory.GCCycles,
	}).Info("runtime profile")

	names := make([]string, 0, len(snap.Operations))
	for name := range snap.Operations {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		op := snap.Operations[name]
		log.WithFields(logrus.Fields{
			"operation": name,
			"count":     op.Count,
			"avg_ms":    op.AvgMS,
			"max_ms":    op.MaxMS,
		}).Info("operation timing")
	}
}

func milliseconds(d time.Duration) float64 {
	return float64(d) / float64(time.Millisecond)
}

// formatBytes formats byte counts in human-readable format.
func formatBytes(bytes uint64) string {
	const unit = 1024
	if bytes < unit {
		return strconv.FormatUint(bytes, 10) + " B"
	}
	div, exp := uint64(unit), 0
	for n := bytes / unit; n >= unit; n /= unit {
		div *= unit
		exp++
	}
	return strconv.FormatFloat(float64(bytes)/float64(div), 'f', 1, 64) + " " + string("KMGTPE"[exp]) + "B"
}
