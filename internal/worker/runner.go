package worker

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/sandevgo/memtier/internal/core"
	"github.com/sandevgo/memtier/pkg/log"
)

// Processor is a unit of recurring work. Process does one bounded batch
// and reports what happened; per-item failures are its own responsibility
// to contain (count, log, continue).
type Processor interface {
	Name() string
	Process(ctx context.Context) (core.ProcessStats, error)
}

// Runner wraps a Processor with timing, cumulative metrics, and failure
// capture. It is the failure-isolation boundary of the system: nothing a
// Process call does — error or panic — escapes Run as anything but a
// structured result.
type Runner struct {
	proc Processor

	mu            sync.Mutex
	runs          int
	successes     int
	failures      int
	totalDuration time.Duration
	lastRun       time.Time
	lastError     string
}

func NewRunner(proc Processor) *Runner {
	return &Runner{proc: proc}
}

func (r *Runner) Name() string {
	return r.proc.Name()
}

// Run executes one cycle and always returns a result, never an error.
func (r *Runner) Run(ctx context.Context) core.RunResult {
	logger := log.FromCtx(ctx)
	start := time.Now()

	r.mu.Lock()
	r.runs++
	r.lastRun = start
	r.mu.Unlock()

	logger.Info().Str("worker", r.Name()).Msg("worker starting")

	stats, err := r.process(ctx)
	duration := time.Since(start)

	r.mu.Lock()
	if err != nil {
		r.failures++
		r.lastError = err.Error()
	} else {
		r.successes++
		r.totalDuration += duration
	}
	metrics := r.snapshotLocked()
	r.mu.Unlock()

	if err != nil {
		logger.Error().Err(err).
			Str("worker", r.Name()).
			Dur("duration", duration).
			Msg("worker failed")

		return core.RunResult{
			Worker:   r.Name(),
			Success:  false,
			Duration: duration,
			Error:    err.Error(),
			Metrics:  metrics,
		}
	}

	logger.Info().
		Str("worker", r.Name()).
		Dur("duration", duration).
		Int("processed", stats.Processed).
		Int("errors", stats.Errors).
		Msg("worker completed")

	return core.RunResult{
		Worker:   r.Name(),
		Success:  true,
		Duration: duration,
		Stats:    stats,
		Metrics:  metrics,
	}
}

// process shields the runner from a panicking Processor.
func (r *Runner) process(ctx context.Context) (stats core.ProcessStats, err error) {
	defer func() {
		if rec := recover(); rec != nil {
			err = fmt.Errorf("worker panic: %v", rec)
		}
	}()
	return r.proc.Process(ctx)
}

// Metrics returns the cumulative metrics snapshot.
func (r *Runner) Metrics() core.MetricsSnapshot {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.snapshotLocked()
}

func (r *Runner) snapshotLocked() core.MetricsSnapshot {
	snap := core.MetricsSnapshot{
		Runs:      r.runs,
		Successes: r.successes,
		Failures:  r.failures,
		LastRun:   r.lastRun,
		LastError: r.lastError,
	}
	if r.successes > 0 {
		snap.AvgDuration = r.totalDuration / time.Duration(r.successes)
	}
	if r.runs > 0 {
		snap.SuccessRate = float64(r.successes) / float64(r.runs)
	}
	return snap
}
