package scheduler

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
)

// Job is one unit of periodic background work.
type Job interface {
	Name() string
	Run(ctx context.Context) error
}

// JobFunc adapts a function to Job.
type JobFunc struct {
	JobName string
	Fn      func(ctx context.Context) error
}

func (j JobFunc) Name() string                  { return j.JobName }
func (j JobFunc) Run(ctx context.Context) error { return j.Fn(ctx) }

type entry struct {
	job     Job
	running atomic.Bool
}

// Scheduler runs every job once per tick. A job still running from an
// earlier tick is skipped rather than stacked.
type Scheduler struct {
	interval time.Duration
	entries  []*entry
	logger   *zap.Logger

	cancel context.CancelFunc
	wg     sync.WaitGroup
}

func New(interval time.Duration, logger *zap.Logger, jobs ...Job) *Scheduler {
	entries := make([]*entry, len(jobs))
	for i, j := range jobs {
		entries[i] = &entry{job: j}
	}
	return &Scheduler{
		interval: interval,
		entries:  entries,
		logger:   logger,
	}
}

func (s *Scheduler) Start(ctx context.Context) {
	ctx, s.cancel = context.WithCancel(ctx)

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()

		ticker := time.NewTicker(s.interval)
		defer ticker.Stop()

		s.logger.Info("scheduler started",
			zap.Duration("interval", s.interval),
			zap.Int("jobs", len(s.entries)),
		)

		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				s.tick(ctx)
			}
		}
	}()
}

// Stop cancels in-flight jobs and waits for them to return.
func (s *Scheduler) Stop() {
	if s.cancel != nil {
		s.cancel()
	}
	s.wg.Wait()
	s.logger.Info("scheduler stopped")
}

func (s *Scheduler) tick(ctx context.Context) {
	for _, e := range s.entries {
		if !e.running.CompareAndSwap(false, true) {
			s.logger.Debug("job still running, skipping tick", zap.String("job", e.job.Name()))
			continue
		}

		s.wg.Add(1)
		go func(e *entry) {
			defer s.wg.Done()
			defer e.running.Store(false)
			s.runJob(ctx, e.job)
		}(e)
	}
}

func (s *Scheduler) runJob(ctx context.Context, job Job) {
	logger := s.logger.With(zap.String("job", job.Name()))

	defer func() {
		if r := recover(); r != nil {
			logger.Error("job panicked", zap.Error(fmt.Errorf("%v", r)))
		}
	}()

	start := time.Now()
	if err := job.Run(ctx); err != nil {
		logger.Error("job failed", zap.Error(err), zap.Duration("elapsed", time.Since(start)))
		return
	}
	logger.Debug("job finished", zap.Duration("elapsed", time.Since(start)))
}
