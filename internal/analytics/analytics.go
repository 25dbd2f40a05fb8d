// Package analytics provides the read side of engagely: pure queries over
// analytic, view and period records of a tracked entity.
//
// The package is organized into focused modules:
//   - totals.go: Base aggregate counters and derived rates
//   - metrics.go: Browser, OS, device, bot and geo breakdowns
//   - referrers.go: Traffic sources by referrer and medium
//   - periods.go: Period series and growth movers
//   - viewers.go: Unique viewer statistics
//   - times.go: Views by hour of day and weekday
//   - trending.go: Entities ranked by engagement score
package analytics

import (
	"errors"
	"time"

	"engagely/internal/models"
)

var ErrNoData = errors.New("no analytics recorded for entity")

const defaultLimit = 50

// MetricCountResult represents a generic key-count pair for query results
type MetricCountResult struct {
	Name  string `json:"name"`
	Count int64  `json:"count"`
}

// EntityScopedQueryParams contains common parameters for entity-scoped queries
type EntityScopedQueryParams struct {
	Ref   models.EntityRef
	From  time.Time // zero means unbounded
	To    time.Time // zero means unbounded
	Limit int
}

// NewEntityScopedQueryParams creates query params for ref without a time bound.
func NewEntityScopedQueryParams(ref models.EntityRef) EntityScopedQueryParams {
	return EntityScopedQueryParams{Ref: ref, Limit: defaultLimit}
}

func (p EntityScopedQueryParams) limit() int {
	if p.Limit <= 0 {
		return defaultLimit
	}
	return p.Limit
}

// viewScope returns the WHERE clause and arguments selecting the views of
// the entity within the time bounds.
func (p EntityScopedQueryParams) viewScope() (string, []any) {
	where := "entity_type = ? AND entity_id = ? AND status = 1"
	args := []any{p.Ref.Type, p.Ref.ID}
	if !p.From.IsZero() {
		where += " AND visited_at >= ?"
		args = append(args, p.From.UTC())
	}
	if !p.To.IsZero() {
		where += " AND visited_at <= ?"
		args = append(args, p.To.UTC())
	}
	return where, args
}
