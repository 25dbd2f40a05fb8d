// Package rollup maintains the calendar bucketed snapshots of analytic
// counters and their growth against the preceding bucket.
package rollup

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"github.com/karloscodes/cartridge"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"engagely/internal/engagement"
	"engagely/internal/metrics"
	"engagely/internal/models"
	"engagely/internal/timeframe"
)

// Engine writes PeriodRecords.
type Engine struct {
	dbManager cartridge.DBManager
	logger    *slog.Logger
	loc       *time.Location
}

// NewEngine creates an engine bucketing in loc. A nil loc means UTC.
func NewEngine(dbManager cartridge.DBManager, logger *slog.Logger, loc *time.Location) *Engine {
	if loc == nil {
		loc = time.UTC
	}
	return &Engine{dbManager: dbManager, logger: logger, loc: loc}
}

// Location is the timezone buckets are evaluated in.
func (e *Engine) Location() *time.Location {
	return e.loc
}

// GrowthRate returns the percentage change from previous to current, or nil
// when there is nothing to compare against.
func GrowthRate(current, previous int64) *float64 {
	if previous <= 0 {
		return nil
	}
	rate := engagement.Round2(float64(current-previous) / float64(previous) * 100)
	return &rate
}

// UpsertPeriod stores value as the snapshot of metric in the bucket of
// granularity g containing asOf, and recomputes its growth.
func (e *Engine) UpsertPeriod(ctx context.Context, analyticID, metric string, value int64, asOf time.Time, g timeframe.Granularity) (*models.PeriodRecord, error) {
	if !models.IsCounter(metric) {
		return nil, fmt.Errorf("rollup: %w: %s", models.ErrUnknownMetric, metric)
	}
	if _, err := timeframe.ParseGranularity(string(g)); err != nil {
		return nil, fmt.Errorf("rollup: %w", err)
	}

	start, end := timeframe.Bounds(asOf, g, e.loc)
	db := e.dbManager.GetConnection().WithContext(ctx)

	var record models.PeriodRecord
	err := models.PerformWrite(e.logger, db, func(tx *gorm.DB) error {
		row := models.PeriodRecord{
			AnalyticID:  analyticID,
			Metric:      metric,
			Granularity: g,
			PeriodStart: start,
			PeriodEnd:   end,
			Status:      true,
		}
		if err := tx.Clauses(clause.OnConflict{DoNothing: true}).Create(&row).Error; err != nil {
			return fmt.Errorf("create period: %w", err)
		}

		previous, err := previousPeriod(tx, analyticID, metric, g, start)
		if err != nil {
			return err
		}

		updates := growthColumns(value, previous)
		updates["value"] = value

		if err := periodKey(tx, analyticID, metric, g, start).Updates(updates).Error; err != nil {
			return fmt.Errorf("update period: %w", err)
		}
		return periodKey(tx, analyticID, metric, g, start).Take(&record).Error
	})
	if err != nil {
		metrics.RecordPeriodUpsert(string(g), "error")
		return nil, fmt.Errorf("rollup: upsert %s %s: %w", metric, g, err)
	}

	metrics.RecordPeriodUpsert(string(g), "ok")
	return &record, nil
}

// UpsertAll runs UpsertPeriod for every granularity. A failing granularity is
// logged and does not stop the others.
func (e *Engine) UpsertAll(ctx context.Context, analyticID, metric string, value int64, asOf time.Time) []models.PeriodRecord {
	records := make([]models.PeriodRecord, 0, len(timeframe.Granularities))
	for _, g := range timeframe.Granularities {
		record, err := e.UpsertPeriod(ctx, analyticID, metric, value, asOf, g)
		if err != nil {
			e.logger.Error("Failed to upsert period",
				slog.String("analytic_id", analyticID),
				slog.String("metric", metric),
				slog.String("granularity", string(g)),
				slog.Any("error", err))
			continue
		}
		records = append(records, *record)
	}
	return records
}

// Backfill creates the buckets missing between from and to, carrying forward
// the value of the latest earlier bucket, and recomputes the growth of every
// bucket in range. Buckets before the first stored one are not created.
// It returns the number of buckets created.
func (e *Engine) Backfill(ctx context.Context, analyticID, metric string, g timeframe.Granularity, from, to time.Time) (int, error) {
	if !models.IsCounter(metric) {
		return 0, fmt.Errorf("rollup: %w: %s", models.ErrUnknownMetric, metric)
	}
	starts := timeframe.BucketsBetween(from, to, g, e.loc)
	if len(starts) == 0 {
		return 0, nil
	}

	db := e.dbManager.GetConnection().WithContext(ctx)
	created := 0

	err := models.PerformWrite(e.logger, db, func(tx *gorm.DB) error {
		var existing []models.PeriodRecord
		if err := tx.Where("analytic_id = ? AND metric = ? AND granularity = ?", analyticID, metric, g).
			Order("period_start ASC").
			Find(&existing).Error; err != nil {
			return fmt.Errorf("load periods: %w", err)
		}

		byStart := make(map[int64]models.PeriodRecord, len(existing))
		for _, p := range existing {
			byStart[p.PeriodStart.Unix()] = p
		}

		var carry *models.PeriodRecord
		firstStart := starts[0].UTC()
		for i := range existing {
			if existing[i].PeriodStart.Before(firstStart) {
				carry = &existing[i]
			}
		}

		for _, localStart := range starts {
			start := localStart.UTC()
			if p, ok := byStart[start.Unix()]; ok {
				p := p
				carry = &p
				continue
			}
			if carry == nil {
				continue
			}
			row := models.PeriodRecord{
				AnalyticID:  analyticID,
				Metric:      metric,
				Granularity: g,
				PeriodStart: start,
				PeriodEnd:   timeframe.BucketEnd(localStart, g).UTC(),
				Value:       carry.Value,
				Status:      true,
			}
			if err := tx.Create(&row).Error; err != nil {
				return fmt.Errorf("create period %s: %w", start.Format(time.DateOnly), err)
			}
			byStart[start.Unix()] = row
			carry = &row
			created++
		}

		all := make([]models.PeriodRecord, 0, len(byStart))
		for _, p := range byStart {
			all = append(all, p)
		}
		sort.Slice(all, func(i, j int) bool { return all[i].PeriodStart.Before(all[j].PeriodStart) })

		lastStart := starts[len(starts)-1].UTC()
		for i, p := range all {
			if p.PeriodStart.Before(firstStart) || p.PeriodStart.After(lastStart) {
				continue
			}
			var previous *models.PeriodRecord
			if i > 0 {
				previous = &all[i-1]
			}
			if err := periodKey(tx, analyticID, metric, g, p.PeriodStart).Updates(growthColumns(p.Value, previous)).Error; err != nil {
				return fmt.Errorf("update growth: %w", err)
			}
		}
		return nil
	})
	if err != nil {
		return 0, fmt.Errorf("rollup: backfill %s %s: %w", metric, g, err)
	}

	e.logger.Info("Backfilled periods",
		slog.String("analytic_id", analyticID),
		slog.String("metric", metric),
		slog.String("granularity", string(g)),
		slog.Int("created", created))
	return created, nil
}

// BackfillEntity backfills every metric and granularity stored for the base
// row of ref.
func (e *Engine) BackfillEntity(ctx context.Context, ref models.EntityRef, from, to time.Time) (int, error) {
	db := e.dbManager.GetConnection().WithContext(ctx)

	var base models.AnalyticRecord
	if err := db.Where("entity_type = ? AND entity_id = ? AND actor_key = ?", ref.Type, ref.ID, models.BaseActorKey).
		Take(&base).Error; err != nil {
		return 0, fmt.Errorf("rollup: base row for %s: %w", ref, err)
	}

	type series struct {
		Metric      string
		Granularity timeframe.Granularity
	}
	var pairs []series
	if err := db.Model(&models.PeriodRecord{}).
		Distinct("metric", "granularity").
		Where("analytic_id = ?", base.ID).
		Order("metric, granularity").
		Scan(&pairs).Error; err != nil {
		return 0, fmt.Errorf("rollup: list series: %w", err)
	}

	total := 0
	for _, s := range pairs {
		n, err := e.Backfill(ctx, base.ID, s.Metric, s.Granularity, from, to)
		if err != nil {
			return total, err
		}
		total += n
	}
	return total, nil
}

func periodKey(tx *gorm.DB, analyticID, metric string, g timeframe.Granularity, start time.Time) *gorm.DB {
	return tx.Model(&models.PeriodRecord{}).
		Where("analytic_id = ? AND metric = ? AND granularity = ? AND period_start = ?", analyticID, metric, g, start.UTC())
}

func previousPeriod(tx *gorm.DB, analyticID, metric string, g timeframe.Granularity, start time.Time) (*models.PeriodRecord, error) {
	var previous models.PeriodRecord
	err := tx.Where("analytic_id = ? AND metric = ? AND granularity = ? AND period_start < ?", analyticID, metric, g, start.UTC()).
		Order("period_start DESC").
		Take(&previous).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("previous period: %w", err)
	}
	return &previous, nil
}

func growthColumns(value int64, previous *models.PeriodRecord) map[string]any {
	now := time.Now().UTC()
	if previous == nil {
		return map[string]any{"previous_value": int64(0), "growth_rate": nil, "updated_at": now}
	}
	return map[string]any{
		"previous_value": previous.Value,
		"growth_rate":    GrowthRate(value, previous.Value),
		"updated_at":     now,
	}
}
