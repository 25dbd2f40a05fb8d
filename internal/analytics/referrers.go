package analytics

import (
	"fmt"
	"sort"

	"gorm.io/gorm"

	"engagely/internal/pkg/referrers"
)

// ReferrerBreakdown groups human views by traffic source.
type ReferrerBreakdown struct {
	Sources []ReferrerCount     `json:"sources"`
	Mediums []MetricCountResult `json:"mediums"`
}

type ReferrerCount struct {
	Name   string           `json:"name"`
	Medium referrers.Medium `json:"medium"`
	Count  int64            `json:"count"`
}

// GetReferrerBreakdown counts human views per named referrer and per medium.
// Raw referrers are grouped in SQL and merged by source name in Go.
func GetReferrerBreakdown(db *gorm.DB, params EntityScopedQueryParams) (*ReferrerBreakdown, error) {
	where, args := params.viewScope()

	var rows []struct {
		Referer string
		Count   int64
	}
	query := fmt.Sprintf(`
    SELECT COALESCE(referer, '') as referer, COUNT(*) as count
    FROM views
    WHERE %s AND is_robot = 0
    GROUP BY referer
    `, where)
	if err := db.Raw(query, args...).Scan(&rows).Error; err != nil {
		return nil, fmt.Errorf("error grouping views by referrer: %w", err)
	}

	sources := make(map[referrers.Source]int64)
	mediums := make(map[referrers.Medium]int64)
	for _, r := range rows {
		source := referrers.Parse(r.Referer)
		sources[source] += r.Count
		mediums[source.Medium] += r.Count
	}

	out := &ReferrerBreakdown{
		Sources: make([]ReferrerCount, 0, len(sources)),
		Mediums: make([]MetricCountResult, 0, len(mediums)),
	}
	for s, n := range sources {
		out.Sources = append(out.Sources, ReferrerCount{Name: s.Name, Medium: s.Medium, Count: n})
	}
	for m, n := range mediums {
		out.Mediums = append(out.Mediums, MetricCountResult{Name: string(m), Count: n})
	}

	sort.Slice(out.Sources, func(i, j int) bool {
		a, b := out.Sources[i], out.Sources[j]
		if a.Count != b.Count {
			return a.Count > b.Count
		}
		return a.Name < b.Name
	})
	sort.Slice(out.Mediums, func(i, j int) bool {
		if out.Mediums[i].Count != out.Mediums[j].Count {
			return out.Mediums[i].Count > out.Mediums[j].Count
		}
		return out.Mediums[i].Name < out.Mediums[j].Name
	})
	if limit := params.limit(); len(out.Sources) > limit {
		out.Sources = out.Sources[:limit]
	}
	return out, nil
}
