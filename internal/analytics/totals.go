package analytics

import (
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"

	"engagely/internal/config"
	"engagely/internal/engagement"
	"engagely/internal/models"
)

// Totals are the base aggregate counters of an entity with derived rates.
type Totals struct {
	Ref               models.EntityRef `json:"entity"`
	Counters          models.Counters  `json:"counters"`
	ClickThroughRate  float64          `json:"clickThroughRate"`
	EngagementScore   float64          `json:"engagementScore"`
	EngagementRate    float64          `json:"engagementRate"`
	ConversionRate    float64          `json:"conversionRate"`
	PopularityScore   float64          `json:"popularityScore"`
	InteractionRate   float64          `json:"interactionRate"`
	ReactionCounts    int64            `json:"reactionCounts"`
	ContributorsCount int64            `json:"contributorsCount"`
	LastActivityAt    *time.Time       `json:"lastActivityAt,omitempty"`
	AggregatedAt      time.Time        `json:"aggregatedAt"`
}

// GetTotals reads the base aggregate of ref. It returns ErrNoData until the
// entity has been aggregated.
func GetTotals(db *gorm.DB, ref models.EntityRef, weights config.EngagementWeights) (*Totals, error) {
	var base models.AnalyticRecord
	err := db.Where("entity_type = ? AND entity_id = ? AND actor_key = ?", ref.Type, ref.ID, models.BaseActorKey).
		Take(&base).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, fmt.Errorf("%w: %s", ErrNoData, ref)
	}
	if err != nil {
		return nil, fmt.Errorf("error fetching totals: %w", err)
	}

	c := base.Counters
	return &Totals{
		Ref:               ref,
		Counters:          c,
		ClickThroughRate:  base.ClickThroughRate,
		EngagementScore:   engagement.Score(c, weights),
		EngagementRate:    engagement.EngagementRate(c, weights),
		ConversionRate:    engagement.ConversionRate(c),
		PopularityScore:   engagement.PopularityScore(c),
		InteractionRate:   engagement.InteractionRate(c),
		ReactionCounts:    base.ReactionCounts,
		ContributorsCount: base.ContributorsCount,
		LastActivityAt:    base.LastActivityAt,
		AggregatedAt:      base.UpdatedAt,
	}, nil
}
