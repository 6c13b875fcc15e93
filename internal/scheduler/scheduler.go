// Package scheduler runs the periodic cache maintenance jobs.
package scheduler

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/alikoudar/irobot-sub000/internal/core/ports"
)

const (
	JobPurgeExpired = "purge_expired"
	JobRollupStats  = "rollup_stats"

	defaultJobTimeout = 2 * time.Minute
)

// JobRecorder receives one observation per job run.
type JobRecorder interface {
	RecordJob(service, job string, duration time.Duration, err error)
}

type Config struct {
	Service        string
	PurgeSchedule  string
	RollupSchedule string
	JobTimeout     time.Duration
}

type Scheduler struct {
	cron     *cron.Cron
	cache    ports.CacheAdmin
	recorder JobRecorder
	logger   *slog.Logger
	service  string
	timeout  time.Duration
	now      func() time.Time
}

// New registers the maintenance jobs. An empty schedule disables that job.
func New(cfg Config, cache ports.CacheAdmin, recorder JobRecorder, logger *slog.Logger) (*Scheduler, error) {
	if logger == nil {
		logger = slog.Default()
	}
	timeout := cfg.JobTimeout
	if timeout <= 0 {
		timeout = defaultJobTimeout
	}
	cl := cronLogger{logger: logger}
	s := &Scheduler{
		cron: cron.New(
			cron.WithLocation(time.UTC),
			cron.WithLogger(cl),
			cron.WithChain(cron.Recover(cl), cron.SkipIfStillRunning(cl)),
		),
		cache:    cache,
		recorder: recorder,
		logger:   logger,
		service:  cfg.Service,
		timeout:  timeout,
		now:      func() time.Time { return time.Now().UTC() },
	}

	jobs := []struct {
		name     string
		schedule string
		run      func(context.Context) error
	}{
		{JobPurgeExpired, cfg.PurgeSchedule, s.RunPurge},
		{JobRollupStats, cfg.RollupSchedule, s.RunRollup},
	}
	for _, job := range jobs {
		if job.schedule == "" {
			continue
		}
		run := job.run
		if _, err := s.cron.AddFunc(job.schedule, func() {
			ctx, cancel := context.WithTimeout(context.Background(), s.timeout)
			defer cancel()
			_ = run(ctx)
		}); err != nil {
			return nil, fmt.Errorf("schedule %s %q: %w", job.name, job.schedule, err)
		}
		logger.Info("scheduler_job_registered", "job", job.name, "schedule", job.schedule)
	}
	return s, nil
}

func (s *Scheduler) Start() {
	s.cron.Start()
}

// Stop stops scheduling and waits for running jobs until ctx is done.
func (s *Scheduler) Stop(ctx context.Context) {
	done := s.cron.Stop()
	select {
	case <-done.Done():
	case <-ctx.Done():
		s.logger.Warn("scheduler_stop_timeout")
	}
}

// RunPurge removes expired cache entries and old tombstones.
func (s *Scheduler) RunPurge(ctx context.Context) error {
	return s.observe(JobPurgeExpired, func() error {
		removed, err := s.cache.PurgeExpired(ctx)
		if err != nil {
			return err
		}
		s.logger.Info("cache_purge_completed", "removed", removed)
		return nil
	})
}

// RunRollup recomputes the statistics of the current UTC day and the day
// before it, so counters written just before midnight are folded in.
func (s *Scheduler) RunRollup(ctx context.Context) error {
	return s.observe(JobRollupStats, func() error {
		today := s.now()
		for _, day := range []time.Time{today.AddDate(0, 0, -1), today} {
			stats, err := s.cache.RollupStatistics(ctx, day)
			if err != nil {
				return err
			}
			s.logger.Info("cache_stats_rolled_up",
				"date", stats.Date.Format(time.DateOnly),
				"requests", stats.TotalRequests,
				"hit_rate", stats.HitRate,
			)
		}
		return nil
	})
}

func (s *Scheduler) observe(job string, fn func() error) error {
	start := time.Now()
	err := fn()
	if s.recorder != nil {
		s.recorder.RecordJob(s.service, job, time.Since(start), err)
	}
	if err != nil {
		s.logger.Error("scheduler_job_failed", "job", job, "error", err)
	}
	return err
}

type cronLogger struct {
	logger *slog.Logger
}

func (l cronLogger) Info(msg string, keysAndValues ...any) {
	l.logger.Debug("cron_"+msg, keysAndValues...)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...any) {
	l.logger.Error("cron_"+msg, append(keysAndValues, "error", err)...)
}
