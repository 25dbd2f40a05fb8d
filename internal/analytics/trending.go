package analytics

import (
	"fmt"
	"time"

	"gorm.io/gorm"

	"engagely/internal/models"
)

// TrendingEntity is a base aggregate ranked by trend score.
type TrendingEntity struct {
	Ref              models.EntityRef `json:"entity"`
	TrendScore       float64          `json:"trendScore"`
	ViewsCount       int64            `json:"viewsCount"`
	UniqueViewers    int64            `json:"uniqueViewers"`
	ClickThroughRate float64          `json:"clickThroughRate"`
	LastActivityAt   *time.Time       `json:"lastActivityAt,omitempty"`
}

// GetTrending returns the base aggregates of entityType with a trend score of
// at least minScore, highest first.
func GetTrending(db *gorm.DB, entityType string, minScore float64, limit int) ([]TrendingEntity, error) {
	if limit <= 0 {
		limit = defaultLimit
	}

	var records []models.AnalyticRecord
	if err := db.Where("entity_type = ? AND actor_key = ? AND status = 1 AND trend_score >= ?",
		entityType, models.BaseActorKey, minScore).
		Order("trend_score DESC, views_count DESC, entity_id ASC").
		Limit(limit).
		Find(&records).Error; err != nil {
		return nil, fmt.Errorf("error fetching trending entities: %w", err)
	}

	results := make([]TrendingEntity, len(records))
	for i, r := range records {
		results[i] = TrendingEntity{
			Ref:              r.Ref(),
			TrendScore:       r.TrendScore,
			ViewsCount:       r.ViewsCount,
			UniqueViewers:    r.UniqueViewers,
			ClickThroughRate: r.ClickThroughRate,
			LastActivityAt:   r.LastActivityAt,
		}
	}
	return results, nil
}
