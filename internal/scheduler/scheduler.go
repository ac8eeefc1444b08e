package scheduler

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/sandevgo/memtier/internal/core"
	"github.com/sandevgo/memtier/internal/worker"
	"github.com/sandevgo/memtier/pkg/log"
)

// cronParser accepts standard 5-field expressions.
var cronParser = cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow)

type job struct {
	name     string
	schedule string
	runner   *worker.Runner
	entryID  cron.EntryID

	// runMu serializes scheduled and manual runs of the same worker; an
	// overlapping scheduled fire is skipped, never queued beside itself.
	runMu sync.Mutex
}

// JobStatus describes one scheduled job.
type JobStatus struct {
	Name     string    `json:"name"`
	Schedule string    `json:"schedule"`
	NextRun  time.Time `json:"next_run"`
}

// Status is the operator-visible scheduler state.
type Status struct {
	Running     bool                            `json:"running"`
	Jobs        []JobStatus                     `json:"jobs"`
	LastResults map[string]core.RunResult       `json:"last_results"`
	Metrics     map[string]core.MetricsSnapshot `json:"worker_metrics"`
}

// Scheduler fires each registered worker on its own recurring cadence.
// Workers run concurrently with each other but never with themselves.
type Scheduler struct {
	cron *cron.Cron

	mu          sync.Mutex
	jobs        map[string]*job
	order       []string
	running     bool
	lastResults map[string]core.RunResult
}

func New() *Scheduler {
	return &Scheduler{
		cron:        cron.New(cron.WithParser(cronParser)),
		jobs:        make(map[string]*job),
		lastResults: make(map[string]core.RunResult),
	}
}

// Register adds a worker with its cron schedule. Must be called before
// Start; the expression is validated at Start time.
func (s *Scheduler) Register(schedule string, runner *worker.Runner) {
	s.mu.Lock()
	defer s.mu.Unlock()

	name := runner.Name()
	s.jobs[name] = &job{name: name, schedule: schedule, runner: runner}
	s.order = append(s.order, name)
}

// Start validates every schedule and begins firing jobs. An invalid
// expression aborts before any job is registered — configuration errors
// are the only class allowed to stop the process. Start is idempotent.
func (s *Scheduler) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.running {
		return nil
	}

	// fail fast on configuration before registering anything
	for _, name := range s.order {
		j := s.jobs[name]
		if _, err := cronParser.Parse(j.schedule); err != nil {
			return fmt.Errorf("invalid schedule %q for worker %s: %w", j.schedule, name, err)
		}
	}

	logger := log.FromCtx(ctx)
	for _, name := range s.order {
		j := s.jobs[name]
		entryID, err := s.cron.AddFunc(j.schedule, func() {
			s.runJob(ctx, j)
		})
		if err != nil {
			return fmt.Errorf("failed to schedule worker %s: %w", name, err)
		}
		j.entryID = entryID

		logger.Info().Str("worker", name).Str("schedule", j.schedule).Msg("scheduled worker")
	}

	s.cron.Start()
	s.running = true
	logger.Info().Int("workers", len(s.jobs)).Msg("scheduler started")
	return nil
}

// Shutdown stops firing and waits for in-flight jobs to complete.
func (s *Scheduler) Shutdown(ctx context.Context) error {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return nil
	}
	s.running = false
	s.mu.Unlock()

	stopCtx := s.cron.Stop()
	select {
	case <-stopCtx.Done():
	case <-time.After(30 * time.Second):
		return fmt.Errorf("timed out waiting for in-flight jobs")
	}

	log.FromCtx(ctx).Info().Msg("scheduler stopped")
	return nil
}

func (s *Scheduler) runJob(ctx context.Context, j *job) {
	if !j.runMu.TryLock() {
		log.FromCtx(ctx).Warn().Str("worker", j.name).Msg("previous run still executing, skipping")
		return
	}
	defer j.runMu.Unlock()

	result := j.runner.Run(ctx)

	s.mu.Lock()
	s.lastResults[j.name] = result
	s.mu.Unlock()
}

// RunNow triggers one worker outside its cadence and waits for the
// result. It serializes against that worker's scheduled runs.
func (s *Scheduler) RunNow(ctx context.Context, name string) (core.RunResult, error) {
	s.mu.Lock()
	j, ok := s.jobs[name]
	s.mu.Unlock()
	if !ok {
		return core.RunResult{}, fmt.Errorf("unknown worker: %s", name)
	}

	j.runMu.Lock()
	defer j.runMu.Unlock()

	result := j.runner.Run(ctx)

	s.mu.Lock()
	s.lastResults[name] = result
	s.mu.Unlock()

	return result, nil
}

// Status reports the running flag, per-job next fire times, last results
// and cumulative worker metrics.
func (s *Scheduler) Status() Status {
	s.mu.Lock()
	defer s.mu.Unlock()

	status := Status{
		Running:     s.running,
		LastResults: make(map[string]core.RunResult, len(s.lastResults)),
		Metrics:     make(map[string]core.MetricsSnapshot, len(s.jobs)),
	}

	for _, name := range s.order {
		j := s.jobs[name]
		js := JobStatus{Name: name, Schedule: j.schedule}
		if s.running {
			js.NextRun = s.cron.Entry(j.entryID).Next
		}
		status.Jobs = append(status.Jobs, js)
		status.Metrics[name] = j.runner.Metrics()
	}
	for name, result := range s.lastResults {
		status.LastResults[name] = result
	}

	return status
}

// Workers lists the registered worker names in registration order.
func (s *Scheduler) Workers() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.order...)
}
