package jobs

import (
	"context"
	"log/slog"
	"time"

	"engagely/internal/retention"
	"engagely/internal/timeframe"
)

// CleanupJob deletes views, analytics and periods past their retention window.
type CleanupJob struct {
	sweeper *retention.Sweeper
	clock   timeframe.TimeProvider
	logger  *slog.Logger
}

func NewCleanupJob(sweeper *retention.Sweeper, logger *slog.Logger) *CleanupJob {
	return &CleanupJob{
		sweeper: sweeper,
		clock:   &timeframe.DefaultTimeProvider{},
		logger:  logger,
	}
}

// WithClock replaces the time source.
func (j *CleanupJob) WithClock(clock timeframe.TimeProvider) *CleanupJob {
	j.clock = clock
	return j
}

func (j *CleanupJob) Name() string { return "cleanup" }

func (j *CleanupJob) Run(ctx context.Context) error {
	now := j.clock.Now(time.UTC)
	counts, err := j.sweeper.PurgeExpired(ctx, now)

	attrs := []any{slog.Time("now", now)}
	for kind, n := range counts {
		attrs = append(attrs, slog.Int64(string(kind), n))
	}
	if err != nil {
		return err
	}
	j.logger.Info("Cleaned up expired analytics", attrs...)
	return nil
}
