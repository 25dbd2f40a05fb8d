// Package aggregation rebuilds the base aggregate of each tracked entity
// from its per-actor rows.
package aggregation

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"github.com/karloscodes/cartridge"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"engagely/internal/config"
	"engagely/internal/engagement"
	"engagely/internal/metrics"
	"engagely/internal/models"
	"engagely/internal/rollup"
	"engagely/internal/timeframe"
)

var ErrNothingToAggregate = errors.New("entity has no per-actor analytics")

// RolledUpMetrics are refreshed in the period rollup after every rebuild.
var RolledUpMetrics = []string{
	"views_count",
	"likes_count",
	"shares_count",
	"clicks_count",
	"impressions_count",
	"unique_viewers",
}

// Result reports a batch rebuild.
type Result struct {
	Processed int           `json:"processed"`
	Failed    int           `json:"failed"`
	Skipped   int           `json:"skipped"`
	Duration  time.Duration `json:"duration"`
}

func (r *Result) add(other Result) {
	r.Processed += other.Processed
	r.Failed += other.Failed
	r.Skipped += other.Skipped
}

// Summary totals the base rows of every entity.
type Summary struct {
	Entities          int64      `json:"entities"`
	Views             int64      `json:"views"`
	UniqueViewers     int64      `json:"uniqueViewers"`
	Likes             int64      `json:"likes"`
	Shares            int64      `json:"shares"`
	Clicks            int64      `json:"clicks"`
	Periods           int64      `json:"periods"`
	LastAggregationAt *time.Time `json:"lastAggregationAt,omitempty"`
}

// Builder recomputes base rows. It never increments them.
type Builder struct {
	dbManager cartridge.DBManager
	logger    *slog.Logger
	rollup    *rollup.Engine
	weights   config.EngagementWeights
	batchSize int
	clock     timeframe.TimeProvider
}

// NewBuilder creates a builder configured from cfg.
func NewBuilder(cfg *config.Config, dbManager cartridge.DBManager, logger *slog.Logger) *Builder {
	batchSize := cfg.AggregationBatchSize
	if batchSize <= 0 {
		batchSize = 1000
	}
	return &Builder{
		dbManager: dbManager,
		logger:    logger,
		rollup:    rollup.NewEngine(dbManager, logger, cfg.Location()),
		weights:   cfg.EngagementWeights,
		batchSize: batchSize,
		clock:     &timeframe.DefaultTimeProvider{},
	}
}

// WithClock replaces the wall clock.
func (b *Builder) WithClock(clock timeframe.TimeProvider) *Builder {
	b.clock = clock
	return b
}

// Rollup returns the period engine the builder refreshes.
func (b *Builder) Rollup() *rollup.Engine {
	return b.rollup
}

// RebuildBase replaces the base row of an entity with the sums of its
// per-actor rows.
func (b *Builder) RebuildBase(ctx context.Context, entityType, entityID string) (*models.AnalyticRecord, error) {
	ref, err := models.ValidateEntity(models.EntityRef{Type: entityType, ID: entityID})
	if err != nil {
		return nil, err
	}

	db := b.dbManager.GetConnection().WithContext(ctx)

	sums, viewers, lastActivity, err := b.sumActors(db, ref)
	if err != nil {
		return nil, err
	}
	if viewers == 0 {
		return nil, fmt.Errorf("%w: %s", ErrNothingToAggregate, ref)
	}

	var contributors int64
	if err := actorRows(db, ref).
		Where("likes_count > 0 OR shares_count > 0 OR comments_count > 0 OR replies_count > 0 OR votes_count > 0").
		Count(&contributors).Error; err != nil {
		return nil, fmt.Errorf("aggregation: count contributors: %w", err)
	}

	sums.UniqueViewers = viewers
	derived := engagement.Compute(sums, b.weights)

	updates := make(map[string]any, len(sums.Map())+6)
	for column, value := range sums.Map() {
		updates[column] = value
	}
	updates["click_through_rate"] = derived.ClickThroughRate
	updates["trend_score"] = derived.TrendScore
	updates["reaction_counts"] = engagement.ReactionCounts(sums)
	updates["contributors_count"] = contributors
	updates["last_activity_at"] = lastActivity
	updates["updated_at"] = time.Now().UTC()

	var base models.AnalyticRecord
	err = models.PerformWrite(b.logger, db, func(tx *gorm.DB) error {
		row := models.AnalyticRecord{
			EntityType: ref.Type,
			EntityID:   ref.ID,
			ActorKey:   models.BaseActorKey,
			Status:     true,
		}
		if err := tx.Clauses(clause.OnConflict{DoNothing: true}).Create(&row).Error; err != nil {
			return fmt.Errorf("create base: %w", err)
		}
		if err := baseRow(tx, ref).Updates(updates).Error; err != nil {
			return fmt.Errorf("update base: %w", err)
		}
		return baseRow(tx, ref).Take(&base).Error
	})
	if err != nil {
		return nil, fmt.Errorf("aggregation: rebuild %s: %w", ref, err)
	}

	asOf := b.clock.Now(time.UTC)
	for _, metric := range RolledUpMetrics {
		value, _ := base.Counters.Get(metric)
		b.rollup.UpsertAll(ctx, base.ID, metric, value, asOf)
	}

	return &base, nil
}

func (b *Builder) sumActors(db *gorm.DB, ref models.EntityRef) (models.Counters, int64, *time.Time, error) {
	columns := models.AdditiveCounterColumns()
	selects := make([]string, 0, len(columns)+2)
	for _, column := range columns {
		selects = append(selects, fmt.Sprintf("COALESCE(SUM(%s), 0) AS %s", column, column))
	}
	selects = append(selects, "COUNT(*) AS unique_viewers")

	row := map[string]any{}
	if err := actorRows(db, ref).Select(strings.Join(selects, ", ")).Take(&row).Error; err != nil {
		return models.Counters{}, 0, nil, fmt.Errorf("aggregation: sum %s: %w", ref, err)
	}

	var sums models.Counters
	for _, column := range columns {
		if err := sums.Set(column, toInt64(row[column])); err != nil {
			return models.Counters{}, 0, nil, err
		}
	}

	var latest []time.Time
	if err := actorRows(db, ref).
		Where("last_activity_at IS NOT NULL").
		Order("last_activity_at DESC").
		Limit(1).
		Pluck("last_activity_at", &latest).Error; err != nil {
		return models.Counters{}, 0, nil, fmt.Errorf("aggregation: last activity %s: %w", ref, err)
	}
	var lastActivity *time.Time
	if len(latest) > 0 {
		t := latest[0].UTC()
		lastActivity = &t
	}
	return sums, toInt64(row["unique_viewers"]), lastActivity, nil
}

// RebuildAllForType rebuilds every entity of entityType, paging entity ids in
// batches.
func (b *Builder) RebuildAllForType(ctx context.Context, entityType string) (Result, error) {
	started := time.Now()
	db := b.dbManager.GetConnection().WithContext(ctx)

	var result Result
	lastID := ""
	for {
		if err := ctx.Err(); err != nil {
			return result, err
		}

		var ids []string
		if err := db.Model(&models.AnalyticRecord{}).
			Distinct("entity_id").
			Where("entity_type = ? AND actor_key <> ? AND entity_id > ?", entityType, models.BaseActorKey, lastID).
			Order("entity_id").
			Limit(b.batchSize).
			Pluck("entity_id", &ids).Error; err != nil {
			return result, fmt.Errorf("aggregation: list %s ids: %w", entityType, err)
		}
		if len(ids) == 0 {
			break
		}

		result.add(b.rebuildMany(ctx, entityType, ids))
		lastID = ids[len(ids)-1]
		if len(ids) < b.batchSize {
			break
		}
	}

	result.Duration = time.Since(started)
	metrics.AggregationBatchDuration.WithLabelValues("type").Observe(result.Duration.Seconds())
	b.logger.Info("Rebuilt base aggregates",
		slog.String("entity_type", entityType),
		slog.Int("processed", result.Processed),
		slog.Int("failed", result.Failed))
	return result, nil
}

// RebuildRecent rebuilds the entities whose per-actor rows were active or
// created within window.
func (b *Builder) RebuildRecent(ctx context.Context, window time.Duration) (Result, error) {
	if window <= 0 {
		window = 24 * time.Hour
	}
	started := time.Now()
	since := b.clock.Now(time.UTC).Add(-window)

	type entityKey struct {
		EntityType string
		EntityID   string
	}
	var keys []entityKey
	if err := b.dbManager.GetConnection().WithContext(ctx).
		Model(&models.AnalyticRecord{}).
		Distinct("entity_type", "entity_id").
		Where("actor_key <> ?", models.BaseActorKey).
		Where("last_activity_at >= ? OR created_at >= ?", since, since).
		Order("entity_type, entity_id").
		Scan(&keys).Error; err != nil {
		return Result{}, fmt.Errorf("aggregation: list recent entities: %w", err)
	}

	var result Result
	for _, key := range keys {
		if err := ctx.Err(); err != nil {
			return result, err
		}
		result.add(b.rebuildMany(ctx, key.EntityType, []string{key.EntityID}))
	}

	result.Duration = time.Since(started)
	metrics.AggregationBatchDuration.WithLabelValues("recent").Observe(result.Duration.Seconds())
	b.logger.Info("Rebuilt recent aggregates",
		slog.Duration("window", window),
		slog.Int("processed", result.Processed),
		slog.Int("failed", result.Failed))
	return result, nil
}

// RebuildAll rebuilds every entity of every type.
func (b *Builder) RebuildAll(ctx context.Context) (Result, error) {
	started := time.Now()

	var types []string
	if err := b.dbManager.GetConnection().WithContext(ctx).
		Model(&models.AnalyticRecord{}).
		Distinct("entity_type").
		Order("entity_type").
		Pluck("entity_type", &types).Error; err != nil {
		return Result{}, fmt.Errorf("aggregation: list entity types: %w", err)
	}

	var result Result
	for _, entityType := range types {
		partial, err := b.RebuildAllForType(ctx, entityType)
		result.add(partial)
		if err != nil {
			return result, err
		}
	}
	result.Duration = time.Since(started)
	return result, nil
}

func (b *Builder) rebuildMany(ctx context.Context, entityType string, ids []string) Result {
	var result Result
	for _, id := range ids {
		_, err := b.RebuildBase(ctx, entityType, id)
		switch {
		case err == nil:
			result.Processed++
			metrics.RecordAggregation("ok")
		case errors.Is(err, ErrNothingToAggregate):
			result.Skipped++
			metrics.RecordAggregation("skipped")
		default:
			result.Failed++
			metrics.RecordAggregation("error")
			b.logger.Error("Failed to rebuild base aggregate",
				slog.String("entity_type", entityType),
				slog.String("entity_id", id),
				slog.Any("error", err))
		}
	}
	return result
}

// Summary totals the base rows.
func (b *Builder) Summary(ctx context.Context) (Summary, error) {
	db := b.dbManager.GetConnection().WithContext(ctx)

	var summary Summary
	row := map[string]any{}
	if err := db.Model(&models.AnalyticRecord{}).
		Select("COUNT(*) AS entities, COALESCE(SUM(views_count), 0) AS views, COALESCE(SUM(unique_viewers), 0) AS unique_viewers, "+
			"COALESCE(SUM(likes_count), 0) AS likes, COALESCE(SUM(shares_count), 0) AS shares, COALESCE(SUM(clicks_count), 0) AS clicks").
		Where("actor_key = ?", models.BaseActorKey).
		Take(&row).Error; err != nil {
		return summary, fmt.Errorf("aggregation: summary: %w", err)
	}
	summary.Entities = toInt64(row["entities"])
	summary.Views = toInt64(row["views"])
	summary.UniqueViewers = toInt64(row["unique_viewers"])
	summary.Likes = toInt64(row["likes"])
	summary.Shares = toInt64(row["shares"])
	summary.Clicks = toInt64(row["clicks"])

	var latest []time.Time
	if err := db.Model(&models.AnalyticRecord{}).
		Where("actor_key = ?", models.BaseActorKey).
		Order("updated_at DESC").
		Limit(1).
		Pluck("updated_at", &latest).Error; err != nil {
		return summary, fmt.Errorf("aggregation: last aggregation: %w", err)
	}
	if len(latest) > 0 {
		t := latest[0].UTC()
		summary.LastAggregationAt = &t
	}

	if err := db.Model(&models.PeriodRecord{}).Count(&summary.Periods).Error; err != nil {
		return summary, fmt.Errorf("aggregation: count periods: %w", err)
	}
	return summary, nil
}

func actorRows(db *gorm.DB, ref models.EntityRef) *gorm.DB {
	return db.Model(&models.AnalyticRecord{}).
		Where("entity_type = ? AND entity_id = ? AND actor_key <> ?", ref.Type, ref.ID, models.BaseActorKey)
}

func baseRow(tx *gorm.DB, ref models.EntityRef) *gorm.DB {
	return tx.Model(&models.AnalyticRecord{}).
		Where("entity_type = ? AND entity_id = ? AND actor_key = ?", ref.Type, ref.ID, models.BaseActorKey)
}

func toInt64(v any) int64 {
	switch n := v.(type) {
	case int64:
		return n
	case int:
		return int64(n)
	case float64:
		return int64(n)
	case []byte:
		i, _ := strconv.ParseInt(string(n), 10, 64)
		return i
	case string:
		i, _ := strconv.ParseInt(n, 10, 64)
		return i
	default:
		return 0
	}
}
