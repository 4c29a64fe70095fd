// Package cron runs periodic jobs inside the serve process.
package cron

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"
)

// Job represents a scheduled task.
type Job struct {
	Name     string
	Interval time.Duration
	Fn       func(ctx context.Context) error
	// RunAtStart fires the job once as soon as the scheduler starts.
	RunAtStart bool
}

// Scheduler runs each job on its own interval. A tick that arrives while the
// previous run of the same job is still active is skipped.
type Scheduler struct {
	jobs   []Job
	logger *slog.Logger
}

// NewScheduler creates a new scheduler.
func NewScheduler() *Scheduler {
	return &Scheduler{logger: slog.Default()}
}

// Add registers a job with the scheduler. Jobs without a positive interval
// are ignored.
func (s *Scheduler) Add(job Job) {
	if job.Interval <= 0 {
		s.logger.Warn("job disabled", "name", job.Name)
		return
	}
	s.jobs = append(s.jobs, job)
}

// Run blocks until ctx is cancelled, then waits for active runs to return.
func (s *Scheduler) Run(ctx context.Context) {
	s.logger.Info("scheduler started", "jobs", len(s.jobs))

	var wg sync.WaitGroup
	for _, job := range s.jobs {
		wg.Add(1)
		go func(job Job) {
			defer wg.Done()
			s.loop(ctx, job)
		}(job)
	}
	wg.Wait()
	s.logger.Info("scheduler stopped")
}

func (s *Scheduler) loop(ctx context.Context, job Job) {
	var running atomic.Bool
	var active sync.WaitGroup
	defer active.Wait()

	fire := func() {
		if !running.CompareAndSwap(false, true) {
			s.logger.Warn("job still running, tick skipped", "name", job.Name)
			return
		}
		active.Add(1)
		go func() {
			defer active.Done()
			defer running.Store(false)
			s.runJob(ctx, job)
		}()
	}

	if job.RunAtStart {
		fire()
	}

	ticker := time.NewTicker(job.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			fire()
		}
	}
}

func (s *Scheduler) runJob(ctx context.Context, job Job) {
	s.logger.Info("running job", "name", job.Name)
	start := time.Now()
	if err := job.Fn(ctx); err != nil {
		s.logger.Error("job failed", "name", job.Name, "error", err, "duration", time.Since(start))
		return
	}
	s.logger.Info("job completed", "name", job.Name, "duration", time.Since(start))
}

// RunOnce executes every registered job once in order and returns the
// first error.
func (s *Scheduler) RunOnce(ctx context.Context) error {
	for _, job := range s.jobs {
		s.logger.Info("running job", "name", job.Name)
		start := time.Now()
		if err := job.Fn(ctx); err != nil {
			s.logger.Error("job failed", "name", job.Name, "error", err, "duration", time.Since(start))
			return err
		}
		s.logger.Info("job completed", "name", job.Name, "duration", time.Since(start))
	}
	return nil
}
