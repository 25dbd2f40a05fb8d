// Package retention deletes analytics data past its retention window and
// rows whose entity no longer exists.
package retention

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"time"

	"github.com/karloscodes/cartridge"
	"gorm.io/gorm"

	"engagely/internal/config"
	"engagely/internal/metrics"
	"engagely/internal/models"
)

// Kind names a purgeable table.
type Kind string

const (
	KindViews     Kind = "views"
	KindAnalytics Kind = "analytics"
	KindPeriods   Kind = "periods"
)

// Kinds lists every kind, children before their owners.
var Kinds = []Kind{KindViews, KindPeriods, KindAnalytics}

var ErrUnknownKind = errors.New("unknown retention kind")

// ParseKind validates a kind name.
func ParseKind(s string) (Kind, error) {
	switch k := Kind(s); k {
	case KindViews, KindAnalytics, KindPeriods:
		return k, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrUnknownKind, s)
	}
}

// EntityResolver reports which entities of a type still exist.
type EntityResolver interface {
	LiveIDs(ctx context.Context, entityType string) ([]string, error)
}

// EntityResolverFunc adapts a function to EntityResolver.
type EntityResolverFunc func(ctx context.Context, entityType string) ([]string, error)

func (f EntityResolverFunc) LiveIDs(ctx context.Context, entityType string) ([]string, error) {
	return f(ctx, entityType)
}

// Sweeper deletes in batches so writers are never blocked for long.
type Sweeper struct {
	dbManager cartridge.DBManager
	logger    *slog.Logger
	days      map[Kind]int
	batchSize int
	pause     time.Duration
}

// NewSweeper creates a sweeper using the retention windows and batch size of cfg.
func NewSweeper(cfg *config.Config, dbManager cartridge.DBManager, logger *slog.Logger) *Sweeper {
	batchSize := cfg.AggregationBatchSize
	if batchSize <= 0 {
		batchSize = 1000
	}
	return &Sweeper{
		dbManager: dbManager,
		logger:    logger,
		days: map[Kind]int{
			KindViews:     cfg.RetentionViewsDays,
			KindAnalytics: cfg.RetentionAnalyticsDays,
			KindPeriods:   cfg.RetentionPeriodsDays,
		},
		batchSize: batchSize,
		pause:     100 * time.Millisecond,
	}
}

// WithPause sets the delay between delete batches.
func (s *Sweeper) WithPause(d time.Duration) *Sweeper {
	s.pause = d
	return s
}

// Days returns the configured retention window of kind.
func (s *Sweeper) Days(kind Kind) int {
	return s.days[kind]
}

// PurgeOlderThan deletes rows of kind created strictly before cutoff.
// Deleting analytics also deletes their views and periods.
func (s *Sweeper) PurgeOlderThan(ctx context.Context, kind Kind, cutoff time.Time) (int64, error) {
	if _, err := ParseKind(string(kind)); err != nil {
		return 0, err
	}
	cutoff = cutoff.UTC()

	s.logger.Info("Starting retention sweep",
		slog.String("kind", string(kind)),
		slog.Time("cutoff", cutoff))

	var deleted int64
	var err error
	switch kind {
	case KindAnalytics:
		deleted, err = s.deleteAnalytics(ctx, "created_at < ?", cutoff)
	case KindViews:
		deleted, err = s.deleteBatched(ctx, &models.ViewRecord{}, "created_at < ?", cutoff)
	case KindPeriods:
		deleted, err = s.deleteBatched(ctx, &models.PeriodRecord{}, "created_at < ?", cutoff)
	}
	metrics.RecordRetentionDeleted(string(kind), deleted)
	if err != nil {
		return deleted, fmt.Errorf("retention: purge %s: %w", kind, err)
	}

	s.logger.Info("Retention sweep finished",
		slog.String("kind", string(kind)),
		slog.Int64("deleted_count", deleted))
	return deleted, nil
}

// PurgeOrphaned deletes analytics of entities the resolver no longer knows.
// When the resolver fails for a type every row of that type is deleted.
func (s *Sweeper) PurgeOrphaned(ctx context.Context, resolver EntityResolver) (int64, error) {
	var types []string
	if err := s.dbManager.GetConnection().WithContext(ctx).
		Model(&models.AnalyticRecord{}).
		Distinct("entity_type").
		Order("entity_type").
		Pluck("entity_type", &types).Error; err != nil {
		return 0, fmt.Errorf("retention: list entity types: %w", err)
	}

	var total int64
	for _, entityType := range types {
		live, err := resolver.LiveIDs(ctx, entityType)

		var deleted int64
		switch {
		case err != nil:
			s.logger.Warn("Entity type cannot be resolved, deleting its analytics",
				slog.String("entity_type", entityType),
				slog.Any("error", err))
			deleted, err = s.deleteAnalytics(ctx, "entity_type = ?", entityType)
		case len(live) == 0:
			deleted, err = s.deleteAnalytics(ctx, "entity_type = ?", entityType)
		default:
			deleted, err = s.deleteMissing(ctx, entityType, live)
		}
		total += deleted
		if err != nil {
			metrics.RecordRetentionDeleted("orphans", total)
			return total, fmt.Errorf("retention: purge orphans of %s: %w", entityType, err)
		}
		if deleted > 0 {
			s.logger.Info("Deleted orphaned analytics",
				slog.String("entity_type", entityType),
				slog.Int64("deleted_count", deleted))
		}
	}

	metrics.RecordRetentionDeleted("orphans", total)
	return total, nil
}

// PurgeExpired applies the configured retention window of every kind. Kinds
// with a window of zero days are kept forever.
func (s *Sweeper) PurgeExpired(ctx context.Context, now time.Time) (map[Kind]int64, error) {
	counts := make(map[Kind]int64, len(Kinds))
	for _, kind := range Kinds {
		days := s.days[kind]
		if days <= 0 {
			continue
		}
		n, err := s.PurgeOlderThan(ctx, kind, now.AddDate(0, 0, -days))
		counts[kind] = n
		if err != nil {
			return counts, err
		}
	}
	return counts, nil
}

// orphanChunkSize bounds the ids bound into one delete; SQLite caps the
// number of variables per statement.
const orphanChunkSize = 500

// deleteMissing deletes the analytics of entityType whose entity id is not
// in live. The diff happens in memory so live may hold any number of ids.
func (s *Sweeper) deleteMissing(ctx context.Context, entityType string, live []string) (int64, error) {
	var stored []string
	if err := s.dbManager.GetConnection().WithContext(ctx).
		Model(&models.AnalyticRecord{}).
		Where("entity_type = ?", entityType).
		Distinct("entity_id").
		Pluck("entity_id", &stored).Error; err != nil {
		return 0, fmt.Errorf("list entity ids: %w", err)
	}

	alive := make(map[string]struct{}, len(live))
	for _, id := range live {
		alive[id] = struct{}{}
	}
	orphans := slices.DeleteFunc(stored, func(id string) bool {
		_, ok := alive[id]
		return ok
	})

	var total int64
	for chunk := range slices.Chunk(orphans, orphanChunkSize) {
		deleted, err := s.deleteAnalytics(ctx, "entity_type = ? AND entity_id IN ?", entityType, chunk)
		total += deleted
		if err != nil {
			return total, err
		}
	}
	return total, nil
}

// deleteAnalytics removes matching analytic rows with their views and
// periods, one batch per transaction.
func (s *Sweeper) deleteAnalytics(ctx context.Context, query string, args ...any) (int64, error) {
	db := s.dbManager.GetConnection().WithContext(ctx)

	var total int64
	for {
		var batch int64
		err := models.PerformWrite(s.logger, db, func(tx *gorm.DB) error {
			var ids []string
			if err := tx.Model(&models.AnalyticRecord{}).
				Where(query, args...).
				Limit(s.batchSize).
				Pluck("id", &ids).Error; err != nil {
				return err
			}
			if len(ids) == 0 {
				return nil
			}
			if err := tx.Where("analytic_id IN ?", ids).Delete(&models.ViewRecord{}).Error; err != nil {
				return fmt.Errorf("delete views: %w", err)
			}
			if err := tx.Where("analytic_id IN ?", ids).Delete(&models.PeriodRecord{}).Error; err != nil {
				return fmt.Errorf("delete periods: %w", err)
			}
			result := tx.Where("id IN ?", ids).Delete(&models.AnalyticRecord{})
			batch = result.RowsAffected
			return result.Error
		})
		if err != nil {
			return total, err
		}
		total += batch
		if batch < int64(s.batchSize) {
			return total, nil
		}
		if err := s.wait(ctx); err != nil {
			return total, err
		}
	}
}

func (s *Sweeper) deleteBatched(ctx context.Context, model any, query string, args ...any) (int64, error) {
	db := s.dbManager.GetConnection().WithContext(ctx)

	var total int64
	for {
		var batch int64
		err := models.PerformWrite(s.logger, db, func(tx *gorm.DB) error {
			ids := tx.Model(model).Select("id").Where(query, args...).Limit(s.batchSize)
			result := tx.Where("id IN (?)", ids).Delete(model)
			batch = result.RowsAffected
			return result.Error
		})
		if err != nil {
			return total, err
		}
		total += batch
		if batch < int64(s.batchSize) {
			return total, nil
		}
		if err := s.wait(ctx); err != nil {
			return total, err
		}
	}
}

func (s *Sweeper) wait(ctx context.Context) error {
	if s.pause <= 0 {
		return ctx.Err()
	}
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-time.After(s.pause):
		return nil
	}
}
