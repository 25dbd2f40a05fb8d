// Package engagement computes the derived metrics of an analytic record.
// All rates are percentages rounded to two decimals.
package engagement

import (
	"math"

	"engagely/internal/config"
	"engagely/internal/models"
)

// Round2 rounds half away from zero to two decimals.
func Round2(v float64) float64 {
	return math.Round(v*100) / 100
}

func percent(part, whole int64) float64 {
	if whole <= 0 {
		return 0
	}
	return Round2(float64(part) / float64(whole) * 100)
}

// ClickThroughRate is clicks per impression; 0 without impressions.
func ClickThroughRate(c models.Counters) float64 {
	return percent(c.ClicksCount, c.ImpressionsCount)
}

// Score is the weighted sum of the seven engagement counters.
func Score(c models.Counters, w config.EngagementWeights) float64 {
	return Round2(float64(c.ViewsCount)*w.Views +
		float64(c.LikesCount)*w.Likes +
		float64(c.SharesCount)*w.Shares +
		float64(c.ClicksCount)*w.Clicks +
		float64(c.RepliesCount)*w.Replies +
		float64(c.FollowsCount)*w.Follows +
		float64(c.BookmarksCount)*w.Bookmarks)
}

// EngagementRate is the score per hundred views.
func EngagementRate(c models.Counters, w config.EngagementWeights) float64 {
	if c.ViewsCount <= 0 {
		return 0
	}
	return Round2(Score(c, w) / float64(c.ViewsCount) * 100)
}

// ConversionRate is orders per view.
func ConversionRate(c models.Counters) float64 {
	return percent(c.OrdersCount, c.ViewsCount)
}

// PopularityScore weights social signals only.
func PopularityScore(c models.Counters) float64 {
	return Round2(float64(c.LikesCount)*0.3 +
		float64(c.SharesCount)*0.25 +
		float64(c.FollowsCount)*0.2 +
		float64(c.RepliesCount)*0.15 +
		float64(c.BookmarksCount)*0.1)
}

// InteractionRate is likes, shares and replies per impression.
func InteractionRate(c models.Counters) float64 {
	return percent(c.LikesCount+c.SharesCount+c.RepliesCount, c.ImpressionsCount)
}

// ReactionCounts sums the reaction counters.
func ReactionCounts(c models.Counters) int64 {
	return c.LikesCount + c.RepliesCount + c.VotesCount + c.SharesCount
}

// Derived holds the stored derived columns.
type Derived struct {
	ClickThroughRate float64
	TrendScore       float64
}

// Compute returns the stored derived columns for c.
func Compute(c models.Counters, w config.EngagementWeights) Derived {
	return Derived{
		ClickThroughRate: ClickThroughRate(c),
		TrendScore:       Score(c, w),
	}
}

// Columns renders d as an update map.
func (d Derived) Columns() map[string]any {
	return map[string]any{
		"click_through_rate": d.ClickThroughRate,
		"trend_score":        d.TrendScore,
	}
}
