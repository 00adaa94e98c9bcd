package ingest

import (
	"context"
	"time"

	"github.com/go-co-op/gocron"
	"go.uber.org/zap"
)

// dailyJobsAt is the local time the previous day is finalised.
const dailyJobsAt = "06:05"

// Scheduler runs collection cycles on a fixed interval and the daily jobs
// once a day. A cycle still running when the next is due is not doubled up.
type Scheduler struct {
	collector *Collector
	daily     *DailyJobs
	interval  time.Duration
	loc       *time.Location
	logger    *zap.Logger
	cron      *gocron.Scheduler
}

func NewScheduler(collector *Collector, daily *DailyJobs, interval time.Duration, loc *time.Location, logger *zap.Logger) *Scheduler {
	if logger == nil {
		logger = zap.NewNop()
	}
	if loc == nil {
		loc = time.UTC
	}
	if interval <= 0 {
		interval = time.Hour
	}
	return &Scheduler{
		collector: collector,
		daily:     daily,
		interval:  interval,
		loc:       loc,
		logger:    logger.Named("scheduler"),
		cron:      gocron.NewScheduler(loc),
	}
}

// Run starts the jobs and blocks until ctx is cancelled. The first
// collection cycle starts immediately.
func (s *Scheduler) Run(ctx context.Context) error {
	_, err := s.cron.Every(s.interval).SingletonMode().Do(func() {
		if _, err := s.collector.RunOnce(ctx); err != nil {
			s.logger.Warn("collection cycle failed", zap.Error(err))
		}
	})
	if err != nil {
		return err
	}

	if s.daily != nil {
		_, err = s.cron.Every(1).Day().At(dailyJobsAt).SingletonMode().Do(func() {
			yesterday := time.Now().In(s.loc).AddDate(0, 0, -1)
			if err := s.daily.RunAll(ctx, yesterday); err != nil {
				s.logger.Warn("daily jobs failed", zap.Error(err))
			}
		})
		if err != nil {
			return err
		}
	}

	s.logger.Info("scheduler started",
		zap.Duration("interval", s.interval),
		zap.String("daily_at", dailyJobsAt),
		zap.String("timezone", s.loc.String()))
	s.cron.StartAsync()

	<-ctx.Done()
	s.logger.Info("scheduler shutting down")
	s.cron.Stop()
	return nil
}
