package core

import "time"

// ProcessStats is the outcome of a single Process invocation.
type ProcessStats struct {
	Processed int            `json:"processed"`
	Skipped   int            `json:"skipped"`
	Errors    int            `json:"errors"`
	Details   map[string]any `json:"details,omitempty"`
}

// MetricsSnapshot carries a worker's cumulative metrics. It is produced by
// the worker runner and never mutated by callers.
type MetricsSnapshot struct {
	Runs        int           `json:"runs"`
	Successes   int           `json:"successes"`
	Failures    int           `json:"failures"`
	AvgDuration time.Duration `json:"avg_duration"`
	SuccessRate float64       `json:"success_rate"`
	LastRun     time.Time     `json:"last_run"`
	LastError   string        `json:"last_error,omitempty"`
}

// RunResult is what a worker run reports back to the scheduler and to
// operator tooling. Failures are carried in Error; a run never surfaces
// as a Go error past the runner.
type RunResult struct {
	Worker   string          `json:"worker"`
	Success  bool            `json:"success"`
	Duration time.Duration   `json:"duration"`
	Error    string          `json:"error,omitempty"`
	Stats    ProcessStats    `json:"stats"`
	Metrics  MetricsSnapshot `json:"metrics"`
}
