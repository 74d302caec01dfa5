package profiler

import (
	"testing"
	"time"

	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRecordDuration(t *testing.T) {
	rp := NewRuntimeProfiler(ProfilingOptions{MaxSamples: 2})

	rp.RecordDuration("inference", 10*time.Millisecond)
	rp.RecordDuration("inference", 30*time.Millisecond)
	rp.RecordDuration("inference", 50*time.Millisecond)

	op, ok := rp.Snapshot().Operations["inference"]
	require.True(t, ok)

	assert.Equal(t, int64(3), op.Count)
	assert.InDelta(t, 40.0, op.AvgMS, 1e-9, "average over the last two samples")
	assert.InDelta(t, 10.0, op.MinMS, 1e-9)
	assert.InDelta(t, 50.0, op.MaxMS, 1e-9)
}

func TestStartOperation(t *testing.T) {
	rp := NewRuntimeProfiler(ProfilingOptions{})

	done := rp.StartOperation("decode")
	time.Sleep(time.Millisecond)
	done()

	op := rp.Snapshot().Operations["decode"]
	assert.Equal(t, int64(1), op.Count)
	assert.GreaterOrEqual(t, op.MinMS, 1.0)
}

func TestRecordMetric(t *testing.T) {
	rp := NewRuntimeProfiler(ProfilingOptions{MaxSamples: 3})

	for _, v := range []float64{4, 1, 7, 2} {
		rp.RecordMetric("detections", v)
	}

	m := rp.Snapshot().Metrics["detections"]
	assert.Equal(t, 3, m.Samples)
	assert.InDelta(t, 10.0/3.0, m.Avg, 1e-9)
	assert.Equal(t, 1.0, m.Min)
	assert.Equal(t, 7.0, m.Max)
}

func TestSnapshotEmpty(t *testing.T) {
	snap := NewRuntimeProfiler(ProfilingOptions{}).Snapshot()
	assert.NotNil(t, snap.Operations)
	assert.Empty(t, snap.Operations)
	assert.Positive(t, snap.Goroutines)
}

func TestStartStopReports(t *testing.T) {
	log, hook := test.NewNullLogger()
	rp := NewRuntimeProfiler(ProfilingOptions{ReportInterval: 5 * time.Millisecond})
	rp.RecordDuration("shape", time.Millisecond)

	rp.Start(log)
	rp.Start(log)
	require.Eventually(t, func() bool {
		return len(hook.AllEntries()) >= 2
	}, time.Second, 5*time.Millisecond)
	rp.Stop()
	rp.Stop()

	assert.Equal(t, "runtime profile", hook.AllEntries()[0].Message)
}

func TestFormatBytes(t *testing.T) {
	tests := []struct {
		in       uint64
		expected string
	}{
		{512, "512 B"},
		{2048, "2.0 KB"},
		{5 << 20, "5.0 MB"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.expected, formatBytes(tt.in))
	}
}
