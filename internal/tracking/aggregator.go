package tracking

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/karloscodes/cartridge"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"engagely/internal/config"
	"engagely/internal/engagement"
	"engagely/internal/models"
)

// ActionInput is the request metadata refreshed on every tracked action.
type ActionInput struct {
	Action    string
	Path      string
	SessionID string
	IPAddress string
	IsBot     bool
	At        time.Time
}

// Aggregator maintains one AnalyticRecord per entity and actor.
type Aggregator struct {
	dbManager cartridge.DBManager
	logger    *slog.Logger
	weights   config.EngagementWeights
}

// NewAggregator creates an aggregator scoring with weights.
func NewAggregator(dbManager cartridge.DBManager, logger *slog.Logger, weights config.EngagementWeights) *Aggregator {
	return &Aggregator{dbManager: dbManager, logger: logger, weights: weights}
}

// RecordAction counts one view of entity by actor. Failures are logged and
// reported as a nil record.
func (a *Aggregator) RecordAction(ctx context.Context, entity models.Trackable, actor models.Actor, in ActionInput) *models.AnalyticRecord {
	ref, err := models.ValidateEntity(entity)
	if err != nil {
		a.logger.Debug("Skipping action", slog.Any("error", err))
		return nil
	}
	actor = actor.Normalize()
	key, err := actor.Key()
	if err != nil {
		a.logger.Debug("Skipping action", slog.String("entity", ref.String()), slog.Any("error", err))
		return nil
	}

	at := in.At
	if at.IsZero() {
		at = time.Now()
	}
	at = at.UTC()

	audience := "public_views"
	if actor.IsAuthenticated() {
		audience = "user_views"
	}
	traffic := "human_views"
	if in.IsBot {
		traffic = "bot_views"
	}

	db := a.dbManager.GetConnection().WithContext(ctx)
	err = models.PerformWrite(a.logger, db, func(tx *gorm.DB) error {
		if err := ensureActorRow(tx, ref, actor, key, in); err != nil {
			return err
		}
		return actorRow(tx, ref, key).Updates(map[string]any{
			"views_count":      gorm.Expr("views_count + ?", 1),
			"unique_viewers":   1,
			audience:           gorm.Expr(audience+" + ?", 1),
			traffic:            gorm.Expr(traffic+" + ?", 1),
			"ip_address":       in.IPAddress,
			"action_type":      in.Action,
			"request_path":     in.Path,
			"session_id":       in.SessionID,
			"last_activity_at": at,
			"updated_at":       time.Now().UTC(),
		}).Error
	})
	if err != nil {
		a.logger.Error("Failed to record action",
			slog.String("entity", ref.String()),
			slog.String("actor", key),
			slog.Any("error", err))
		return nil
	}

	record, err := a.refreshDerived(ctx, ref, key)
	if err != nil {
		a.logger.Error("Failed to refresh derived metrics",
			slog.String("entity", ref.String()),
			slog.String("actor", key),
			slog.Any("error", err))
		return nil
	}
	return record
}

// Find returns the row of actor on entity.
func (a *Aggregator) Find(ctx context.Context, entity models.Trackable, actor models.Actor) (*models.AnalyticRecord, error) {
	ref, err := models.ValidateEntity(entity)
	if err != nil {
		return nil, err
	}
	key, err := actor.Key()
	if err != nil {
		return nil, err
	}
	var record models.AnalyticRecord
	if err := actorRow(a.dbManager.GetConnection().WithContext(ctx), ref, key).Take(&record).Error; err != nil {
		return nil, err
	}
	return &record, nil
}

// refreshDerived re-reads the row and stores its click-through rate and
// engagement score.
func (a *Aggregator) refreshDerived(ctx context.Context, ref models.EntityRef, key string) (*models.AnalyticRecord, error) {
	db := a.dbManager.GetConnection().WithContext(ctx)

	var record models.AnalyticRecord
	err := models.PerformWrite(a.logger, db, func(tx *gorm.DB) error {
		if err := actorRow(tx, ref, key).Take(&record).Error; err != nil {
			return fmt.Errorf("reload: %w", err)
		}
		derived := engagement.Compute(record.Counters, a.weights)
		if err := actorRow(tx, ref, key).UpdateColumns(derived.Columns()).Error; err != nil {
			return fmt.Errorf("store derived metrics: %w", err)
		}
		record.ClickThroughRate = derived.ClickThroughRate
		record.TrendScore = derived.TrendScore
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &record, nil
}

// ensureActorRow inserts the row of an actor unless it exists. Concurrent
// creators converge on the same row through the unique index.
func ensureActorRow(tx *gorm.DB, ref models.EntityRef, actor models.Actor, key string, in ActionInput) error {
	row := models.AnalyticRecord{
		EntityType:   ref.Type,
		EntityID:     ref.ID,
		ActorKey:     key,
		UserID:       actor.UserIDPtr(),
		VisitorToken: actor.VisitorTokenPtr(),
		SessionID:    in.SessionID,
		IPAddress:    in.IPAddress,
		ActionType:   in.Action,
		RequestPath:  in.Path,
		Status:       true,
	}
	row.UniqueViewers = 1
	if err := tx.Clauses(clause.OnConflict{DoNothing: true}).Create(&row).Error; err != nil {
		return fmt.Errorf("create analytic: %w", err)
	}
	return nil
}

func actorRow(tx *gorm.DB, ref models.EntityRef, key string) *gorm.DB {
	return tx.Model(&models.AnalyticRecord{}).
		Where("entity_type = ? AND entity_id = ? AND actor_key = ?", ref.Type, ref.ID, key)
}
