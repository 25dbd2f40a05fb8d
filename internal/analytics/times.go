package analytics

import (
	"fmt"
	"time"

	"gorm.io/gorm"

	"engagely/internal/models"
)

// TimeDistribution counts views by hour of day and by weekday in a timezone.
// Weekdays start on Monday.
type TimeDistribution struct {
	ByHour    [24]int64 `json:"byHour"`
	ByWeekday [7]int64  `json:"byWeekday"`
	Weekdays  [7]string `json:"weekdays"`
	PeakHour  int       `json:"peakHour"`
	PeakDay   string    `json:"peakDay"`
	Total     int64     `json:"total"`
	Timezone  string    `json:"timezone"`
}

var weekdayNames = [7]string{"Monday", "Tuesday", "Wednesday", "Thursday", "Friday", "Saturday", "Sunday"}

// GetTimeDistribution buckets the visit times of the entity. Bucketing is done
// in Go so any timezone works regardless of the database.
func GetTimeDistribution(db *gorm.DB, params EntityScopedQueryParams, loc *time.Location) (*TimeDistribution, error) {
	if loc == nil {
		loc = time.UTC
	}
	where, args := params.viewScope()

	var visits []time.Time
	if err := db.Model(&models.ViewRecord{}).Where(where, args...).Pluck("visited_at", &visits).Error; err != nil {
		return nil, fmt.Errorf("error fetching visit times: %w", err)
	}

	dist := &TimeDistribution{Weekdays: weekdayNames, Timezone: loc.String()}
	for _, v := range visits {
		local := v.In(loc)
		dist.ByHour[local.Hour()]++
		// time.Weekday starts on Sunday
		dist.ByWeekday[(int(local.Weekday())+6)%7]++
		dist.Total++
	}

	for h, n := range dist.ByHour {
		if n > dist.ByHour[dist.PeakHour] {
			dist.PeakHour = h
		}
	}
	peak := 0
	for d, n := range dist.ByWeekday {
		if n > dist.ByWeekday[peak] {
			peak = d
		}
	}
	if dist.Total > 0 {
		dist.PeakDay = weekdayNames[peak]
	}
	return dist, nil
}
