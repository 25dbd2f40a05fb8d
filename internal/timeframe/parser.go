package timeframe

import (
	"fmt"
	"time"
)

// DefaultRangeDays is the lookback used when no from date is supplied.
const DefaultRangeDays = 30

// RangeParams holds the raw query values of a date range.
type RangeParams struct {
	FromDate string
	ToDate   string
	Tz       string
}

// Range is a closed interval in a timezone.
type Range struct {
	From time.Time
	To   time.Time
	Loc  *time.Location
}

type RangeParser struct {
	timeProvider TimeProvider
}

func NewRangeParser(timeProvider ...TimeProvider) *RangeParser {
	var provider TimeProvider = &DefaultTimeProvider{}
	if len(timeProvider) > 0 && timeProvider[0] != nil {
		provider = timeProvider[0]
	}

	return &RangeParser{
		timeProvider: provider,
	}
}

// Parse reads YYYY-MM-DD dates in the given timezone. From defaults to
// DefaultRangeDays before now and To defaults to now. To is extended to the
// last instant of its day.
func (p *RangeParser) Parse(params RangeParams) (*Range, error) {
	tz := params.Tz
	if tz == "" {
		tz = "UTC"
	}
	loc, err := time.LoadLocation(tz)
	if err != nil {
		return nil, fmt.Errorf("error loading timezone: %w", err)
	}
	now := p.timeProvider.Now(loc)

	from := BucketStart(now, Daily, loc).AddDate(0, 0, -DefaultRangeDays)
	if params.FromDate != "" {
		from, err = time.ParseInLocation("2006-01-02", params.FromDate, loc)
		if err != nil {
			return nil, fmt.Errorf("invalid 'from' date: %w", err)
		}
	}

	to := now
	if params.ToDate != "" {
		date, err := time.ParseInLocation("2006-01-02", params.ToDate, loc)
		if err != nil {
			return nil, fmt.Errorf("invalid 'to' date: %w", err)
		}
		to = time.Date(date.Year(), date.Month(), date.Day(), 23, 59, 59, 999999999, loc)
	}

	if to.Before(from) {
		return nil, fmt.Errorf("'to' date %s is before 'from' date %s", to.Format(time.DateOnly), from.Format(time.DateOnly))
	}

	return &Range{From: from, To: to, Loc: loc}, nil
}
