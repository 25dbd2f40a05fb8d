package jobs

import (
	"context"
	"log/slog"
	"time"

	"engagely/internal/aggregation"
	"engagely/internal/config"
)

// AggregationJob rebuilds the base aggregates of recently active entities.
type AggregationJob struct {
	builder *aggregation.Builder
	window  time.Duration
	logger  *slog.Logger
}

func NewAggregationJob(builder *aggregation.Builder, cfg *config.Config, logger *slog.Logger) *AggregationJob {
	return &AggregationJob{
		builder: builder,
		window:  cfg.RecentWindow(),
		logger:  logger,
	}
}

func (j *AggregationJob) Name() string { return "aggregation" }

func (j *AggregationJob) Run(ctx context.Context) error {
	result, err := j.builder.RebuildRecent(ctx, j.window)
	if err != nil {
		return err
	}

	j.logger.Info("Aggregated recent entities",
		slog.Int("processed", result.Processed),
		slog.Int("failed", result.Failed),
		slog.Int("skipped", result.Skipped),
		slog.Duration("duration", result.Duration))
	return nil
}
