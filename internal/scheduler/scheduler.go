// Package scheduler drives recurring testing runs from cron expressions.
package scheduler

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
)

// RunStarter is the interface the scheduler uses to kick off a testing run.
// Satisfied by thin glue around the pipeline (avoids import cycle).
type RunStarter interface {
	StartRun(ctx context.Context, jobID string) error
}

// Job is one recurring testing run registration. A job with a zero NextRunAt
// is due on the next tick.
type Job struct {
	ID             string
	CronExpression string
	NextRunAt      time.Time
	LastRunAt      time.Time
	LastRunStatus  string
}

// Scheduler checks registered jobs on a ticker and starts those that are due.
type Scheduler struct {
	runner   RunStarter
	parser   cron.Parser
	logger   *slog.Logger
	interval time.Duration
	cancel   context.CancelFunc
	done     chan struct{}
	mu       sync.Mutex

	jobsMu sync.Mutex
	jobs   map[string]*Job

	inflightMu sync.Mutex
	inflight   map[string]struct{} // job IDs currently executing (dedup)
}

// SchedulerOption configures a Scheduler.
type SchedulerOption func(*Scheduler)

// WithTickInterval overrides the 60s tick interval.
func WithTickInterval(d time.Duration) SchedulerOption {
	return func(s *Scheduler) {
		if d > 0 {
			s.interval = d
		}
	}
}

// WithLogger sets the scheduler's logger.
func WithLogger(l *slog.Logger) SchedulerOption {
	return func(s *Scheduler) { s.logger = l }
}

// NewScheduler creates a new Scheduler.
func NewScheduler(runner RunStarter, opts ...SchedulerOption) *Scheduler {
	s := &Scheduler{
		runner:   runner,
		parser:   cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow),
		logger:   slog.Default(),
		interval: 60 * time.Second,
		jobs:     make(map[string]*Job),
		inflight: make(map[string]struct{}),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// AddJob registers a recurring run. The cron expression is validated up
// front; the job first fires on the next tick and then follows its schedule.
func (s *Scheduler) AddJob(id, cronExpr string) error {
	if _, err := s.parser.Parse(cronExpr); err != nil {
		return fmt.Errorf("parse cron expression %q: %w", cronExpr, err)
	}

	s.jobsMu.Lock()
	defer s.jobsMu.Unlock()
	if _, exists := s.jobs[id]; exists {
		return fmt.Errorf("job %q already registered", id)
	}
	s.jobs[id] = &Job{ID: id, CronExpression: cronExpr}
	return nil
}

// RemoveJob unregisters a job. Removing an unknown job is a no-op.
func (s *Scheduler) RemoveJob(id string) {
	s.jobsMu.Lock()
	defer s.jobsMu.Unlock()
	delete(s.jobs, id)
}

// Jobs returns a snapshot of all registered jobs.
func (s *Scheduler) Jobs() []Job {
	s.jobsMu.Lock()
	defer s.jobsMu.Unlock()
	out := make([]Job, 0, len(s.jobs))
	for _, job := range s.jobs {
		out = append(out, *job)
	}
	return out
}

// Start launches the background scheduling loop.
func (s *Scheduler) Start(ctx context.Context) error {
	s.mu.Lock()
	if s.done != nil {
		s.mu.Unlock()
		return fmt.Errorf("scheduler already started")
	}

	schedCtx, cancel := context.WithCancel(ctx)
	s.cancel = cancel
	s.done = make(chan struct{})
	s.mu.Unlock()

	go s.loop(schedCtx)
	s.logger.Info("scheduler started")
	return nil
}

func (s *Scheduler) loop(ctx context.Context) {
	defer close(s.done)

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	// Run an initial tick immediately.
	s.tick(ctx)

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.tick(ctx)
		}
	}
}

// tick checks all jobs and runs those that are due.
func (s *Scheduler) tick(ctx context.Context) {
	now := time.Now().UTC()
	for _, job := range s.dueJobs(now) {
		if !s.tryAcquire(job.ID) {
			continue // already running (dedup)
		}
		if err := s.runJob(ctx, job.ID, now); err != nil {
			s.logger.Error("failed to run scheduled testing run",
				slog.String("job_id", job.ID),
				slog.String("error", err.Error()),
			)
		}
		s.releaseJob(job.ID)
	}
}

func (s *Scheduler) dueJobs(now time.Time) []Job {
	s.jobsMu.Lock()
	defer s.jobsMu.Unlock()
	var due []Job
	for _, job := range s.jobs {
		if job.NextRunAt.IsZero() || !job.NextRunAt.After(now) {
			due = append(due, *job)
		}
	}
	return due
}

// runJob starts one testing run and updates the job's timestamps.
func (s *Scheduler) runJob(ctx context.Context, jobID string, now time.Time) error {
	s.logger.Info("starting scheduled testing run", slog.String("job_id", jobID))

	err := s.runner.StartRun(ctx, jobID)
	status := "success"
	if err != nil {
		status = "error"
		s.logger.Error("scheduled testing run failed",
			slog.String("job_id", jobID),
			slog.String("error", err.Error()),
		)
	}

	return s.updateJobStatus(jobID, now, status)
}

func (s *Scheduler) updateJobStatus(jobID string, now time.Time, status string) error {
	s.jobsMu.Lock()
	defer s.jobsMu.Unlock()

	job, ok := s.jobs[jobID]
	if !ok {
		return nil // removed while running
	}

	nextRun, err := s.CalculateNextRun(job.CronExpression, now)
	if err != nil {
		return fmt.Errorf("calculate next run for job %q: %w", jobID, err)
	}
	job.LastRunAt = now
	job.NextRunAt = nextRun
	job.LastRunStatus = status
	return nil
}

// tryAcquire returns true and marks the job as in-flight if it is not already running.
func (s *Scheduler) tryAcquire(jobID string) bool {
	s.inflightMu.Lock()
	defer s.inflightMu.Unlock()
	if _, ok := s.inflight[jobID]; ok {
		return false
	}
	s.inflight[jobID] = struct{}{}
	return true
}

// releaseJob removes the job from the in-flight set.
func (s *Scheduler) releaseJob(jobID string) {
	s.inflightMu.Lock()
	defer s.inflightMu.Unlock()
	delete(s.inflight, jobID)
}

// CalculateNextRun computes the next run time for a cron expression.
func (s *Scheduler) CalculateNextRun(cronExpr string, from time.Time) (time.Time, error) {
	schedule, err := s.parser.Parse(cronExpr)
	if err != nil {
		return time.Time{}, fmt.Errorf("parse cron expression %q: %w", cronExpr, err)
	}
	return schedule.Next(from), nil
}

// Stop gracefully shuts down the scheduler.
func (s *Scheduler) Stop() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.cancel == nil {
		return nil
	}

	s.cancel()
	<-s.done
	s.cancel = nil
	s.done = nil

	s.logger.Info("scheduler stopped")
	return nil
}
