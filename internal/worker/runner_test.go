package worker_test

import (
	"context"
	"errors"
	"testing"

	"github.com/sandevgo/memtier/internal/core"
	"github.com/sandevgo/memtier/internal/worker"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubProcessor struct {
	name  string
	stats core.ProcessStats
	err   error
	panic any
	calls int
}

func (p *stubProcessor) Name() string { return p.name }

func (p *stubProcessor) Process(context.Context) (core.ProcessStats, error) {
	p.calls++
	if p.panic != nil {
		panic(p.panic)
	}
	return p.stats, p.err
}

func TestRun_Success(t *testing.T) {
	proc := &stubProcessor{
		name:  "stub",
		stats: core.ProcessStats{Processed: 3, Skipped: 1},
	}
	runner := worker.NewRunner(proc)

	result := runner.Run(context.Background())

	assert.True(t, result.Success)
	assert.Equal(t, "stub", result.Worker)
	assert.Empty(t, result.Error)
	assert.Equal(t, 3, result.Stats.Processed)
	assert.Equal(t, 1, result.Stats.Skipped)
	assert.Equal(t, 1, result.Metrics.Runs)
	assert.Equal(t, 1, result.Metrics.Successes)
}

func TestRun_ErrorBecomesResult(t *testing.T) {
	proc := &stubProcessor{name: "stub", err: errors.New("store unavailable")}
	runner := worker.NewRunner(proc)

	result := runner.Run(context.Background())

	assert.False(t, result.Success)
	assert.Equal(t, "store unavailable", result.Error)
	assert.Equal(t, 1, result.Metrics.Failures)
	assert.Equal(t, "store unavailable", result.Metrics.LastError)
}

func TestRun_PanicBecomesResult(t *testing.T) {
	proc := &stubProcessor{name: "stub", panic: "index out of range"}
	runner := worker.NewRunner(proc)

	require.NotPanics(t, func() {
		result := runner.Run(context.Background())
		assert.False(t, result.Success)
		assert.Contains(t, result.Error, "worker panic")
		assert.Contains(t, result.Error, "index out of range")
	})
}

func TestMetrics_Accumulate(t *testing.T) {
	proc := &stubProcessor{name: "stub"}
	runner := worker.NewRunner(proc)
	ctx := context.Background()

	runner.Run(ctx)
	runner.Run(ctx)
	proc.err = errors.New("boom")
	runner.Run(ctx)

	metrics := runner.Metrics()
	assert.Equal(t, 3, metrics.Runs)
	assert.Equal(t, 2, metrics.Successes)
	assert.Equal(t, 1, metrics.Failures)
	assert.InDelta(t, 2.0/3.0, metrics.SuccessRate, 1e-9)
	assert.Equal(t, "boom", metrics.LastError)
	assert.False(t, metrics.LastRun.IsZero())
	assert.Equal(t, 3, proc.calls)
}

func TestMetrics_EmptySnapshot(t *testing.T) {
	runner := worker.NewRunner(&stubProcessor{name: "stub"})

	metrics := runner.Metrics()
	assert.Zero(t, metrics.Runs)
	assert.Zero(t, metrics.SuccessRate)
	assert.Zero(t, metrics.AvgDuration)
	assert.True(t, metrics.LastRun.IsZero())
}
