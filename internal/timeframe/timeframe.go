package timeframe

import (
	"fmt"
	"time"
)

// Granularity is the bucket size of a period rollup.
type Granularity string

const (
	Daily   Granularity = "daily"
	Weekly  Granularity = "weekly"
	Monthly Granularity = "monthly"
	Yearly  Granularity = "yearly"
)

// Granularities lists every rollup granularity, finest first.
var Granularities = []Granularity{Daily, Weekly, Monthly, Yearly}

// ParseGranularity validates a granularity name.
func ParseGranularity(s string) (Granularity, error) {
	switch g := Granularity(s); g {
	case Daily, Weekly, Monthly, Yearly:
		return g, nil
	default:
		return "", fmt.Errorf("timeframe: unknown granularity %q", s)
	}
}

// TimeProvider abstracts the clock so tests can pin "now".
type TimeProvider interface {
	Now(loc *time.Location) time.Time
}

// DefaultTimeProvider reads the wall clock.
type DefaultTimeProvider struct{}

// Now returns the current time in loc.
func (p *DefaultTimeProvider) Now(loc *time.Location) time.Time {
	return time.Now().In(loc)
}

// BucketStart truncates t to the start of its bucket, evaluated in loc.
// Weeks start on Monday.
func BucketStart(t time.Time, g Granularity, loc *time.Location) time.Time {
	localTime := t.In(loc)
	year, month, day := localTime.Year(), localTime.Month(), localTime.Day()

	switch g {
	case Yearly:
		return time.Date(year, 1, 1, 0, 0, 0, 0, loc)
	case Monthly:
		return time.Date(year, month, 1, 0, 0, 0, 0, loc)
	case Weekly:
		weekday := int(localTime.Weekday())
		if weekday == 0 { // Sunday
			weekday = 7
		}
		return time.Date(year, month, day-(weekday-1), 0, 0, 0, 0, loc)
	default:
		return time.Date(year, month, day, 0, 0, 0, 0, loc)
	}
}

// NextBucketStart returns the start of the bucket following the one that
// begins at start.
func NextBucketStart(start time.Time, g Granularity) time.Time {
	switch g {
	case Yearly:
		return start.AddDate(1, 0, 0)
	case Monthly:
		return start.AddDate(0, 1, 0)
	case Weekly:
		return start.AddDate(0, 0, 7)
	default:
		return start.AddDate(0, 0, 1)
	}
}

// PreviousBucketStart returns the start of the bucket before the one that
// begins at start.
func PreviousBucketStart(start time.Time, g Granularity) time.Time {
	switch g {
	case Yearly:
		return start.AddDate(-1, 0, 0)
	case Monthly:
		return start.AddDate(0, -1, 0)
	case Weekly:
		return start.AddDate(0, 0, -7)
	default:
		return start.AddDate(0, 0, -1)
	}
}

// BucketEnd is the last second belonging to the bucket starting at start.
func BucketEnd(start time.Time, g Granularity) time.Time {
	return NextBucketStart(start, g).Add(-time.Second)
}

// Bounds returns the UTC start and end of the bucket containing t.
func Bounds(t time.Time, g Granularity, loc *time.Location) (time.Time, time.Time) {
	start := BucketStart(t, g, loc)
	return start.UTC(), BucketEnd(start, g).UTC()
}

// BucketsBetween lists every bucket start from the bucket containing from up
// to and including the bucket containing to.
func BucketsBetween(from, to time.Time, g Granularity, loc *time.Location) []time.Time {
	if to.Before(from) {
		return nil
	}
	last := BucketStart(to, g, loc)
	var starts []time.Time
	for cur := BucketStart(from, g, loc); !cur.After(last); cur = NextBucketStart(cur, g) {
		starts = append(starts, cur)
	}
	return starts
}

// Label renders the human readable name of the bucket starting at start.
func Label(start time.Time, g Granularity) string {
	switch g {
	case Yearly:
		return start.Format("2006")
	case Monthly:
		return start.Format("January 2006")
	case Weekly:
		return "Week of " + start.Format("Jan 2, 2006")
	default:
		return start.Format("Jan 2, 2006")
	}
}
