package timeframe_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"engagely/internal/timeframe"
)

type MockTimeProvider struct {
	FixedTime time.Time
}

func (m *MockTimeProvider) Now(loc *time.Location) time.Time {
	return m.FixedTime.In(loc)
}

func TestBucketStart(t *testing.T) {
	// Thursday, 1 January 2026, mid-afternoon
	at := time.Date(2026, 1, 1, 15, 30, 0, 0, time.UTC)

	testCases := []struct {
		name        string
		at          time.Time
		granularity timeframe.Granularity
		expected    time.Time
	}{
		{"daily", at, timeframe.Daily, time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)},
		{"weekly rolls back to monday across the year", at, timeframe.Weekly, time.Date(2025, 12, 29, 0, 0, 0, 0, time.UTC)},
		{"weekly on sunday belongs to the previous monday", time.Date(2026, 1, 4, 23, 0, 0, 0, time.UTC), timeframe.Weekly, time.Date(2025, 12, 29, 0, 0, 0, 0, time.UTC)},
		{"weekly on monday is its own start", time.Date(2026, 1, 5, 0, 0, 0, 0, time.UTC), timeframe.Weekly, time.Date(2026, 1, 5, 0, 0, 0, 0, time.UTC)},
		{"monthly", time.Date(2026, 2, 28, 8, 0, 0, 0, time.UTC), timeframe.Monthly, time.Date(2026, 2, 1, 0, 0, 0, 0, time.UTC)},
		{"yearly", time.Date(2026, 7, 14, 8, 0, 0, 0, time.UTC), timeframe.Yearly, time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.expected, timeframe.BucketStart(tc.at, tc.granularity, time.UTC))
		})
	}
}

func TestBucketStartHonoursTimezone(t *testing.T) {
	madrid, err := time.LoadLocation("Europe/Madrid")
	require.NoError(t, err)

	// 23:30 UTC on the 1st is already the 2nd in Madrid
	at := time.Date(2026, 3, 1, 23, 30, 0, 0, time.UTC)
	start := timeframe.BucketStart(at, timeframe.Daily, madrid)

	assert.Equal(t, 2, start.Day())
	assert.Equal(t, 0, start.Hour())
	assert.Equal(t, madrid, start.Location())
}

func TestBucketEnd(t *testing.T) {
	testCases := []struct {
		name        string
		start       time.Time
		granularity timeframe.Granularity
		expected    time.Time
	}{
		{"daily ends same day", time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC), timeframe.Daily, time.Date(2026, 1, 1, 23, 59, 59, 0, time.UTC)},
		{"weekly ends on sunday", time.Date(2025, 12, 29, 0, 0, 0, 0, time.UTC), timeframe.Weekly, time.Date(2026, 1, 4, 23, 59, 59, 0, time.UTC)},
		{"monthly ends on last day of february", time.Date(2028, 2, 1, 0, 0, 0, 0, time.UTC), timeframe.Monthly, time.Date(2028, 2, 29, 23, 59, 59, 0, time.UTC)},
		{"yearly ends on new year's eve", time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC), timeframe.Yearly, time.Date(2026, 12, 31, 23, 59, 59, 0, time.UTC)},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.expected, timeframe.BucketEnd(tc.start, tc.granularity))
		})
	}
}

func TestPreviousAndNextBucketStartAreInverse(t *testing.T) {
	start := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	for _, g := range timeframe.Granularities {
		t.Run(string(g), func(t *testing.T) {
			assert.Equal(t, start, timeframe.PreviousBucketStart(timeframe.NextBucketStart(start, g), g))
		})
	}
}

func TestBucketsBetween(t *testing.T) {
	from := time.Date(2026, 1, 30, 10, 0, 0, 0, time.UTC)
	to := time.Date(2026, 2, 2, 1, 0, 0, 0, time.UTC)

	days := timeframe.BucketsBetween(from, to, timeframe.Daily, time.UTC)
	require.Len(t, days, 4)
	assert.Equal(t, time.Date(2026, 1, 30, 0, 0, 0, 0, time.UTC), days[0])
	assert.Equal(t, time.Date(2026, 2, 2, 0, 0, 0, 0, time.UTC), days[3])

	months := timeframe.BucketsBetween(from, to, timeframe.Monthly, time.UTC)
	assert.Len(t, months, 2)

	assert.Nil(t, timeframe.BucketsBetween(to, from, timeframe.Daily, time.UTC))
}

func TestLabel(t *testing.T) {
	start := time.Date(2026, 1, 5, 0, 0, 0, 0, time.UTC)
	assert.Equal(t, "Jan 5, 2026", timeframe.Label(start, timeframe.Daily))
	assert.Equal(t, "Week of Jan 5, 2026", timeframe.Label(start, timeframe.Weekly))
	assert.Equal(t, "January 2026", timeframe.Label(start, timeframe.Monthly))
	assert.Equal(t, "2026", timeframe.Label(start, timeframe.Yearly))
}

func TestParseGranularity(t *testing.T) {
	g, err := timeframe.ParseGranularity("weekly")
	require.NoError(t, err)
	assert.Equal(t, timeframe.Weekly, g)

	_, err = timeframe.ParseGranularity("hourly")
	assert.Error(t, err)
}

func TestRangeParser(t *testing.T) {
	now := time.Date(2026, 3, 15, 12, 0, 0, 0, time.UTC)
	parser := timeframe.NewRangeParser(&MockTimeProvider{FixedTime: now})

	t.Run("defaults to the last thirty days", func(t *testing.T) {
		r, err := parser.Parse(timeframe.RangeParams{})
		require.NoError(t, err)
		assert.Equal(t, time.Date(2026, 2, 13, 0, 0, 0, 0, time.UTC), r.From)
		assert.Equal(t, now, r.To)
	})

	t.Run("explicit dates cover the whole end day", func(t *testing.T) {
		r, err := parser.Parse(timeframe.RangeParams{FromDate: "2026-03-01", ToDate: "2026-03-02", Tz: "UTC"})
		require.NoError(t, err)
		assert.Equal(t, time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC), r.From)
		assert.Equal(t, 23, r.To.Hour())
		assert.Equal(t, 2, r.To.Day())
	})

	t.Run("rejects inverted ranges", func(t *testing.T) {
		_, err := parser.Parse(timeframe.RangeParams{FromDate: "2026-03-05", ToDate: "2026-03-01"})
		assert.Error(t, err)
	})

	t.Run("rejects unknown timezones", func(t *testing.T) {
		_, err := parser.Parse(timeframe.RangeParams{Tz: "Mars/Olympus"})
		assert.Error(t, err)
	})
}
