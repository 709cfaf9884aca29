// Package scheduler drives the recurring ingest job families on
// fixed-delay timers.
package scheduler

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/weatherdepot/weatherdepot/internal/ingestlog"
	"go.uber.org/zap"
)

// stopGrace bounds how long Stop waits for each job family to drain.
const stopGrace = 3 * time.Second

// JobFunc is one invocation of a scheduled job, attributed to an open
// ingest run.
type JobFunc func(ctx context.Context, run *ingestlog.Run) error

// Job is a recurring job family: it reruns Interval after the previous
// invocation returns, not on a fixed wall-clock grid.
type Job struct {
	Name     string
	Interval time.Duration
	Run      JobFunc
}

// Scheduler owns one goroutine per job family.
type Scheduler struct {
	journal *ingestlog.Journal
	logger  *zap.SugaredLogger

	jobs   []Job
	cancel context.CancelFunc
	done   map[string]chan struct{}
	mu     sync.Mutex
}

// New creates a scheduler over the given job families.
func New(journal *ingestlog.Journal, logger *zap.SugaredLogger, jobs []Job) *Scheduler {
	return &Scheduler{
		journal: journal,
		logger:  logger,
		jobs:    jobs,
		done:    make(map[string]chan struct{}),
	}
}

// Start launches every job family. Each family runs once immediately
// and then on its fixed-delay interval.
func (s *Scheduler) Start(ctx context.Context) {
	ctx, s.cancel = context.WithCancel(ctx)

	s.mu.Lock()
	defer s.mu.Unlock()
	for _, job := range s.jobs {
		done := make(chan struct{})
		s.done[job.Name] = done
		go s.runFamily(ctx, job, done)
	}
	s.logger.Infow("scheduler started", "families", len(s.jobs))
}

// Stop cancels all families and waits a bounded grace period for each.
func (s *Scheduler) Stop() {
	if s.cancel != nil {
		s.cancel()
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	for name, done := range s.done {
		select {
		case <-done:
		case <-time.After(stopGrace):
			s.logger.Warnw("job family did not stop in time", "job", name)
		}
	}
}

// runFamily is the per-family loop: run, then sleep the interval.
func (s *Scheduler) runFamily(ctx context.Context, job Job, done chan struct{}) {
	defer close(done)

	logger := s.logger.With("job", job.Name)
	logger.Infow("job family started", "interval", job.Interval)

	timer := time.NewTimer(0)
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			logger.Info("job family stopped")
			return
		case <-timer.C:
		}

		s.invoke(ctx, job, logger)

		// Fixed delay: the interval starts after the invocation returns.
		timer.Reset(job.Interval)
	}
}

// invoke performs one journaled invocation. A panic aborts this
// invocation only and marks the run FAILED.
func (s *Scheduler) invoke(ctx context.Context, job Job, logger *zap.SugaredLogger) {
	runCtx, run, err := s.journal.StartRun(ctx, job.Name)
	if err != nil {
		logger.Errorw("could not open ingest run", "error", err)
		return
	}

	started := time.Now()
	logger.Infow("job started", "run_id", run.ID)

	var fatal error
	func() {
		defer func() {
			if r := recover(); r != nil {
				fatal = fmt.Errorf("job panicked: %v", r)
				logger.Errorw("job panicked", "run_id", run.ID, "panic", r)
			}
		}()
		fatal = job.Run(runCtx, run)
	}()

	s.journal.FinishRun(runCtx, run, fatal)

	if fatal != nil {
		logger.Errorw("job failed", "run_id", run.ID, "elapsed", time.Since(started), "error", fatal)
		return
	}
	logger.Infow("job finished", "run_id", run.ID, "elapsed", time.Since(started), "item_failures", run.Failures())
}
