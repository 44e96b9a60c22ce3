// Package scheduler runs the service's background jobs: closing finished
// leaderboard periods and refreshing health checks. Jobs run on fixed
// intervals and never overlap with themselves.
package scheduler

import (
	"context"
	"fmt"
	"time"

	"github.com/go-co-op/gocron/v2"
	"github.com/sirupsen/logrus"

	"github.com/stagelight/fanquest/internal/infra/metrics"
)

// Job is one recurring task.
type Job struct {
	Name    string
	Every   time.Duration
	Timeout time.Duration // per run; zero means Every
	Run     func(ctx context.Context) error
}

// Scheduler wraps a gocron scheduler.
type Scheduler struct {
	cron   gocron.Scheduler
	ctx    context.Context
	cancel context.CancelFunc
	log    *logrus.Entry
}

// New creates a stopped scheduler.
func New(logger *logrus.Logger) (*Scheduler, error) {
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	cron, err := gocron.NewScheduler()
	if err != nil {
		return nil, fmt.Errorf("create scheduler: %w", err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Scheduler{
		cron:   cron,
		ctx:    ctx,
		cancel: cancel,
		log:    logger.WithField("component", "scheduler"),
	}, nil
}

// Add registers a job. With immediate set the first run starts right away
// instead of after one interval.
func (s *Scheduler) Add(job Job, immediate bool) error {
	if job.Every <= 0 {
		return fmt.Errorf("job %s: interval must be positive", job.Name)
	}
	timeout := job.Timeout
	if timeout <= 0 {
		timeout = job.Every
	}

	opts := []gocron.JobOption{
		gocron.WithName(job.Name),
		gocron.WithSingletonMode(gocron.LimitModeReschedule),
	}
	if immediate {
		opts = append(opts, gocron.WithStartAt(gocron.WithStartImmediately()))
	}

	_, err := s.cron.NewJob(
		gocron.DurationJob(job.Every),
		gocron.NewTask(func() { s.run(job, timeout) }),
		opts...,
	)
	if err != nil {
		return fmt.Errorf("schedule %s: %w", job.Name, err)
	}
	return nil
}

func (s *Scheduler) run(job Job, timeout time.Duration) {
	ctx, cancel := context.WithTimeout(s.ctx, timeout)
	defer cancel()

	start := time.Now()
	err := job.Run(ctx)
	entry := s.log.WithFields(logrus.Fields{"job": job.Name, "took": time.Since(start).Round(time.Millisecond)})
	if err != nil {
		metrics.JobRuns.WithLabelValues(job.Name, "error").Inc()
		entry.WithError(err).Warn("job failed")
		return
	}
	metrics.JobRuns.WithLabelValues(job.Name, "ok").Inc()
	entry.Debug("job done")
}

// Start begins running jobs.
func (s *Scheduler) Start() { s.cron.Start() }

// Shutdown cancels running jobs and waits for them to return.
func (s *Scheduler) Shutdown() error {
	s.cancel()
	return s.cron.Shutdown()
}
