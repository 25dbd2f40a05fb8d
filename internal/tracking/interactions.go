package tracking

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/karloscodes/cartridge"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"engagely/internal/models"
	"engagely/internal/rollup"
)

var ErrInvalidAmount = errors.New("amount must be positive")

// Interactions records engagement other than views: likes, shares, clicks
// and the like. Domain code calls it directly where the interaction happens.
type Interactions struct {
	dbManager  cartridge.DBManager
	logger     *slog.Logger
	aggregator *Aggregator
	rollup     *rollup.Engine
}

// NewInteractions creates an interaction recorder sharing the aggregator's
// derived metric computation.
func NewInteractions(dbManager cartridge.DBManager, logger *slog.Logger, aggregator *Aggregator, engine *rollup.Engine) *Interactions {
	return &Interactions{dbManager: dbManager, logger: logger, aggregator: aggregator, rollup: engine}
}

// IncrementMetric adds n to metric on the row of actor, creating the row
// when needed.
func (i *Interactions) IncrementMetric(ctx context.Context, entity models.Trackable, actor models.Actor, metric string, n int64) (*models.AnalyticRecord, error) {
	return i.apply(ctx, entity, actor, metric, n, gorm.Expr(metric+" + ?", n), true)
}

// DecrementMetric subtracts n from metric, never going below zero. Actors
// without a row are left alone and yield a nil record.
func (i *Interactions) DecrementMetric(ctx context.Context, entity models.Trackable, actor models.Actor, metric string, n int64) (*models.AnalyticRecord, error) {
	return i.apply(ctx, entity, actor, metric, n, gorm.Expr("MAX("+metric+" - ?, 0)", n), false)
}

func (i *Interactions) apply(ctx context.Context, entity models.Trackable, actor models.Actor, metric string, n int64, expr clause.Expr, create bool) (*models.AnalyticRecord, error) {
	if !models.IsCounter(metric) || metric == "unique_viewers" {
		return nil, fmt.Errorf("%w: %s", models.ErrUnknownMetric, metric)
	}
	if n <= 0 {
		return nil, fmt.Errorf("%w: %d", ErrInvalidAmount, n)
	}
	ref, err := models.ValidateEntity(entity)
	if err != nil {
		return nil, err
	}
	actor = actor.Normalize()
	key, err := actor.Key()
	if err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	updated := false
	db := i.dbManager.GetConnection().WithContext(ctx)
	err = models.PerformWrite(i.logger, db, func(tx *gorm.DB) error {
		if create {
			if err := ensureActorRow(tx, ref, actor, key, ActionInput{}); err != nil {
				return err
			}
		}
		result := actorRow(tx, ref, key).Updates(map[string]any{
			metric:             expr,
			"last_activity_at": now,
			"updated_at":       now,
		})
		updated = result.RowsAffected > 0
		return result.Error
	})
	if err != nil {
		return nil, fmt.Errorf("update %s: %w", metric, err)
	}
	if !updated {
		return nil, nil
	}

	record, err := i.aggregator.refreshDerived(ctx, ref, key)
	if err != nil {
		return nil, err
	}

	value, _ := record.Counters.Get(metric)
	i.rollup.UpsertAll(ctx, record.ID, metric, value, now)
	return record, nil
}

func (i *Interactions) track(ctx context.Context, entity models.Trackable, actor models.Actor, metric string) *models.AnalyticRecord {
	record, err := i.IncrementMetric(ctx, entity, actor, metric, 1)
	if err != nil {
		i.logger.Warn("Failed to track interaction",
			slog.String("metric", metric),
			slog.Any("error", err))
		return nil
	}
	return record
}

func (i *Interactions) TrackLike(ctx context.Context, entity models.Trackable, actor models.Actor) *models.AnalyticRecord {
	return i.track(ctx, entity, actor, "likes_count")
}

func (i *Interactions) TrackShare(ctx context.Context, entity models.Trackable, actor models.Actor) *models.AnalyticRecord {
	return i.track(ctx, entity, actor, "shares_count")
}

func (i *Interactions) TrackClick(ctx context.Context, entity models.Trackable, actor models.Actor) *models.AnalyticRecord {
	return i.track(ctx, entity, actor, "clicks_count")
}

func (i *Interactions) TrackFollow(ctx context.Context, entity models.Trackable, actor models.Actor) *models.AnalyticRecord {
	return i.track(ctx, entity, actor, "follows_count")
}

func (i *Interactions) TrackBookmark(ctx context.Context, entity models.Trackable, actor models.Actor) *models.AnalyticRecord {
	return i.track(ctx, entity, actor, "bookmarks_count")
}

func (i *Interactions) TrackReply(ctx context.Context, entity models.Trackable, actor models.Actor) *models.AnalyticRecord {
	return i.track(ctx, entity, actor, "replies_count")
}

func (i *Interactions) TrackVote(ctx context.Context, entity models.Trackable, actor models.Actor) *models.AnalyticRecord {
	return i.track(ctx, entity, actor, "votes_count")
}

func (i *Interactions) TrackComplaint(ctx context.Context, entity models.Trackable, actor models.Actor) *models.AnalyticRecord {
	return i.track(ctx, entity, actor, "complaints_count")
}

func (i *Interactions) TrackImpression(ctx context.Context, entity models.Trackable, actor models.Actor) *models.AnalyticRecord {
	return i.track(ctx, entity, actor, "impressions_count")
}

func (i *Interactions) TrackComment(ctx context.Context, entity models.Trackable, actor models.Actor) *models.AnalyticRecord {
	return i.track(ctx, entity, actor, "comments_count")
}
