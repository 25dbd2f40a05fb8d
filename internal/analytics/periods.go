package analytics

import (
	"fmt"
	"time"

	"gorm.io/gorm"

	"engagely/internal/models"
	"engagely/internal/timeframe"
)

// PeriodPoint is one bucket of a period series.
type PeriodPoint struct {
	Label           string    `json:"label"`
	PeriodStart     time.Time `json:"periodStart"`
	PeriodEnd       time.Time `json:"periodEnd"`
	Value           int64     `json:"value"`
	PreviousValue   int64     `json:"previousValue"`
	GrowthRate      *float64  `json:"growthRate"`
	FormattedGrowth string    `json:"formattedGrowth"`
	Indicator       string    `json:"indicator"`
}

func newPeriodPoint(p *models.PeriodRecord, loc *time.Location) PeriodPoint {
	return PeriodPoint{
		Label:           p.Label(loc),
		PeriodStart:     p.PeriodStart,
		PeriodEnd:       p.PeriodEnd,
		Value:           p.Value,
		PreviousValue:   p.PreviousValue,
		GrowthRate:      p.GrowthRate,
		FormattedGrowth: p.FormattedGrowth(),
		Indicator:       p.GrowthIndicator(),
	}
}

// PeriodSeriesParams selects a series of the base aggregate.
type PeriodSeriesParams struct {
	Ref         models.EntityRef
	Metric      string
	Granularity timeframe.Granularity
	From        time.Time // zero means unbounded
	To          time.Time // zero means unbounded
	Location    *time.Location
}

// GetPeriodSeries returns the stored buckets of the entity's base aggregate in
// ascending order.
func GetPeriodSeries(db *gorm.DB, params PeriodSeriesParams) ([]PeriodPoint, error) {
	if !models.IsCounter(params.Metric) {
		return nil, fmt.Errorf("%w: %s", models.ErrUnknownMetric, params.Metric)
	}
	loc := params.Location
	if loc == nil {
		loc = time.UTC
	}

	query := db.Model(&models.PeriodRecord{}).
		Joins("JOIN analytics ON analytics.id = periods.analytic_id").
		Where("analytics.entity_type = ? AND analytics.entity_id = ? AND analytics.actor_key = ?",
			params.Ref.Type, params.Ref.ID, models.BaseActorKey).
		Where("periods.metric = ? AND periods.granularity = ? AND periods.status = 1",
			params.Metric, params.Granularity)
	if !params.From.IsZero() {
		query = query.Where("periods.period_end >= ?", params.From.UTC())
	}
	if !params.To.IsZero() {
		query = query.Where("periods.period_start <= ?", params.To.UTC())
	}

	var records []models.PeriodRecord
	if err := query.Order("periods.period_start ASC").Find(&records).Error; err != nil {
		return nil, fmt.Errorf("error fetching period series: %w", err)
	}

	points := make([]PeriodPoint, len(records))
	for i := range records {
		points[i] = newPeriodPoint(&records[i], loc)
	}
	return points, nil
}

// Direction selects rising or falling periods.
type Direction string

const (
	Trending  Direction = "trending"
	Declining Direction = "declining"
)

// ParseDirection validates a movers direction.
func ParseDirection(s string) (Direction, error) {
	switch d := Direction(s); d {
	case Trending, Declining:
		return d, nil
	default:
		return "", fmt.Errorf("invalid direction %q", s)
	}
}

// PeriodMover is an entity whose latest bucket grew or shrank past the
// growth threshold.
type PeriodMover struct {
	Ref   models.EntityRef `json:"entity"`
	Point PeriodPoint      `json:"period"`
}

// PeriodMoversParams selects the movers of one granularity.
type PeriodMoversParams struct {
	Granularity timeframe.Granularity
	Direction   Direction
	Metric      string
	EntityType  string // empty means every type
	Limit       int
	Location    *time.Location
}

// GetPeriodMovers lists base aggregates whose periods are trending (growth
// above 10%) or declining (growth below -5%), strongest first.
func GetPeriodMovers(db *gorm.DB, params PeriodMoversParams) ([]PeriodMover, error) {
	if params.Metric == "" {
		params.Metric = "views_count"
	}
	if !models.IsCounter(params.Metric) {
		return nil, fmt.Errorf("%w: %s", models.ErrUnknownMetric, params.Metric)
	}
	limit := params.Limit
	if limit <= 0 {
		limit = defaultLimit
	}
	loc := params.Location
	if loc == nil {
		loc = time.UTC
	}

	query := db.Model(&models.PeriodRecord{}).
		Preload("Analytic").
		Joins("JOIN analytics ON analytics.id = periods.analytic_id").
		Where("analytics.actor_key = ? AND analytics.status = 1", models.BaseActorKey).
		Where("periods.metric = ? AND periods.granularity = ? AND periods.status = 1",
			params.Metric, params.Granularity)
	if params.EntityType != "" {
		query = query.Where("analytics.entity_type = ?", params.EntityType)
	}

	switch params.Direction {
	case Trending:
		query = query.Where("periods.growth_rate > ?", models.TrendingGrowthThreshold).
			Order("periods.growth_rate DESC")
	case Declining:
		query = query.Where("periods.growth_rate < ?", models.DecliningGrowthThreshold).
			Order("periods.growth_rate ASC")
	default:
		return nil, fmt.Errorf("invalid direction %q", params.Direction)
	}

	var records []models.PeriodRecord
	if err := query.Order("periods.period_start DESC").Limit(limit).Find(&records).Error; err != nil {
		return nil, fmt.Errorf("error fetching period movers: %w", err)
	}

	movers := make([]PeriodMover, 0, len(records))
	for i := range records {
		if records[i].Analytic == nil {
			continue
		}
		movers = append(movers, PeriodMover{
			Ref:   records[i].Analytic.Ref(),
			Point: newPeriodPoint(&records[i], loc),
		})
	}
	return movers, nil
}
