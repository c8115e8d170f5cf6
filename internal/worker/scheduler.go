package worker

import (
	"context"
	"fmt"
	"time"

	"capex/internal/log"

	"github.com/robfig/cron/v3"
)

// Job is one scheduled unit of work.
type Job struct {
	Name     string
	Schedule string
	Run      func(ctx context.Context) error
}

// Scheduler runs jobs on cron schedules. A failed run is logged and retried
// at the next tick.
type Scheduler struct {
	cron    *cron.Cron
	timeout time.Duration
	logger  *log.Logger
}

// NewScheduler registers jobs; an empty schedule disables its job. Each run
// gets its own context bounded by timeout.
func NewScheduler(loc *time.Location, timeout time.Duration, jobs ...Job) (*Scheduler, error) {
	if loc == nil {
		loc = time.UTC
	}
	s := &Scheduler{
		cron:    cron.New(cron.WithLocation(loc)),
		timeout: timeout,
		logger:  log.WithComponent(log.ComponentWorker),
	}
	for _, job := range jobs {
		if job.Schedule == "" {
			continue
		}
		if _, err := s.cron.AddFunc(job.Schedule, s.wrap(job)); err != nil {
			return nil, fmt.Errorf("schedule %s %q: %w", job.Name, job.Schedule, err)
		}
		s.logger.Info("Job scheduled", "job", job.Name, "schedule", job.Schedule)
	}
	return s, nil
}

func (s *Scheduler) wrap(job Job) func() {
	return func() {
		ctx := context.Background()
		if s.timeout > 0 {
			var cancel context.CancelFunc
			ctx, cancel = context.WithTimeout(ctx, s.timeout)
			defer cancel()
		}
		start := time.Now()
		if err := job.Run(ctx); err != nil {
			s.logger.ErrorContext(ctx, "Scheduled job failed", "job", job.Name, log.FieldError, err)
			return
		}
		s.logger.DebugContext(ctx, "Scheduled job done", "job", job.Name, log.FieldDuration, time.Since(start).Milliseconds())
	}
}

// Entries is the number of registered jobs.
func (s *Scheduler) Entries() int {
	return len(s.cron.Entries())
}

func (s *Scheduler) Start() {
	s.cron.Start()
}

// Stop waits for running jobs or ctx, whichever comes first.
func (s *Scheduler) Stop(ctx context.Context) error {
	done := s.cron.Stop()
	select {
	case <-done.Done():
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
