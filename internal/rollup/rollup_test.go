package rollup_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"engagely/internal/models"
	"engagely/internal/rollup"
	"engagely/internal/testsupport"
	"engagely/internal/timeframe"
)

func setup(t *testing.T) (*rollup.Engine, models.AnalyticRecord, *testsupport.TestDBManager) {
	t.Helper()
	dbManager, logger := testsupport.SetupTestDBManager(t)
	testsupport.CleanAllTables(dbManager.GetConnection())

	record := testsupport.CreateAnalytic(t, dbManager.GetConnection(), models.AnalyticRecord{
		EntityType: "post",
		EntityID:   "1",
		ActorKey:   models.BaseActorKey,
	})
	return rollup.NewEngine(dbManager, logger, time.UTC), record, dbManager
}

func TestGrowthRate(t *testing.T) {
	testCases := []struct {
		name     string
		current  int64
		previous int64
		expected *float64
	}{
		{"growth", 15, 10, ptr(50)},
		{"decline", 5, 20, ptr(-75)},
		{"previous zero", 5, 0, nil},
		{"flat", 7, 7, ptr(0)},
		{"rounded", 2, 3, ptr(-33.33)},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.expected, rollup.GrowthRate(tc.current, tc.previous))
		})
	}
}

func TestUpsertPeriod(t *testing.T) {
	ctx := context.Background()
	day1 := time.Date(2026, 3, 10, 14, 0, 0, 0, time.UTC)
	day2 := day1.AddDate(0, 0, 1)

	t.Run("growth against previous bucket", func(t *testing.T) {
		engine, record, _ := setup(t)

		first, err := engine.UpsertPeriod(ctx, record.ID, "views_count", 10, day1, timeframe.Daily)
		require.NoError(t, err)
		assert.Nil(t, first.GrowthRate)
		assert.EqualValues(t, 10, first.Value)
		assert.Equal(t, "N/A", first.FormattedGrowth())

		second, err := engine.UpsertPeriod(ctx, record.ID, "views_count", 15, day2, timeframe.Daily)
		require.NoError(t, err)
		require.NotNil(t, second.GrowthRate)
		assert.Equal(t, 50.0, *second.GrowthRate)
		assert.EqualValues(t, 10, second.PreviousValue)
		assert.Equal(t, "+50.00%", second.FormattedGrowth())
		assert.Equal(t, models.GrowthPositive, second.GrowthIndicator())
	})

	t.Run("zero previous leaves growth unset", func(t *testing.T) {
		engine, record, _ := setup(t)

		_, err := engine.UpsertPeriod(ctx, record.ID, "likes_count", 0, day1, timeframe.Daily)
		require.NoError(t, err)
		second, err := engine.UpsertPeriod(ctx, record.ID, "likes_count", 5, day2, timeframe.Daily)
		require.NoError(t, err)

		assert.Nil(t, second.GrowthRate)
		assert.EqualValues(t, 0, second.PreviousValue)
		assert.EqualValues(t, 5, second.Value)
	})

	t.Run("same bucket is updated in place", func(t *testing.T) {
		engine, record, dbManager := setup(t)

		_, err := engine.UpsertPeriod(ctx, record.ID, "views_count", 1, day1, timeframe.Weekly)
		require.NoError(t, err)
		updated, err := engine.UpsertPeriod(ctx, record.ID, "views_count", 4, day1.Add(time.Hour), timeframe.Weekly)
		require.NoError(t, err)

		var count int64
		require.NoError(t, dbManager.GetConnection().Model(&models.PeriodRecord{}).Count(&count).Error)
		assert.EqualValues(t, 1, count)
		assert.EqualValues(t, 4, updated.Value)
		assert.Equal(t, time.Date(2026, 3, 9, 0, 0, 0, 0, time.UTC), updated.PeriodStart.UTC())
		assert.Equal(t, time.Date(2026, 3, 15, 23, 59, 59, 0, time.UTC), updated.PeriodEnd.UTC())
		assert.Equal(t, 7, updated.DurationDays())
	})

	t.Run("unknown metric", func(t *testing.T) {
		engine, record, _ := setup(t)

		_, err := engine.UpsertPeriod(ctx, record.ID, "nope", 1, day1, timeframe.Daily)
		assert.ErrorIs(t, err, models.ErrUnknownMetric)
	})
}

func TestUpsertAll(t *testing.T) {
	engine, record, _ := setup(t)

	records := engine.UpsertAll(context.Background(), record.ID, "views_count", 3, time.Date(2026, 1, 7, 8, 0, 0, 0, time.UTC))

	require.Len(t, records, 4)
	starts := map[timeframe.Granularity]time.Time{}
	for _, r := range records {
		starts[r.Granularity] = r.PeriodStart.UTC()
	}
	assert.Equal(t, time.Date(2026, 1, 7, 0, 0, 0, 0, time.UTC), starts[timeframe.Daily])
	assert.Equal(t, time.Date(2026, 1, 5, 0, 0, 0, 0, time.UTC), starts[timeframe.Weekly])
	assert.Equal(t, time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC), starts[timeframe.Monthly])
	assert.Equal(t, time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC), starts[timeframe.Yearly])
}

func TestBackfill(t *testing.T) {
	ctx := context.Background()
	engine, record, dbManager := setup(t)
	day := func(d int) time.Time { return time.Date(2026, 2, d, 12, 0, 0, 0, time.UTC) }

	_, err := engine.UpsertPeriod(ctx, record.ID, "views_count", 10, day(2), timeframe.Daily)
	require.NoError(t, err)
	_, err = engine.UpsertPeriod(ctx, record.ID, "views_count", 20, day(5), timeframe.Daily)
	require.NoError(t, err)

	created, err := engine.Backfill(ctx, record.ID, "views_count", timeframe.Daily, day(1), day(6))
	require.NoError(t, err)
	// Feb 1 precedes the first snapshot, Feb 3 and 4 carry 10 forward, Feb 6 carries 20.
	assert.Equal(t, 3, created)

	var periods []models.PeriodRecord
	require.NoError(t, dbManager.GetConnection().Order("period_start").Find(&periods).Error)
	require.Len(t, periods, 5)

	values := make([]int64, 0, len(periods))
	for _, p := range periods {
		values = append(values, p.Value)
	}
	assert.Equal(t, []int64{10, 10, 10, 20, 20}, values)

	assert.Nil(t, periods[0].GrowthRate)
	require.NotNil(t, periods[1].GrowthRate)
	assert.Equal(t, 0.0, *periods[1].GrowthRate)
	require.NotNil(t, periods[3].GrowthRate)
	assert.Equal(t, 100.0, *periods[3].GrowthRate)
	assert.EqualValues(t, 10, periods[3].PreviousValue)

	again, err := engine.Backfill(ctx, record.ID, "views_count", timeframe.Daily, day(1), day(6))
	require.NoError(t, err)
	assert.Zero(t, again)
}

func TestBackfillStampsUTC(t *testing.T) {
	local := time.Local
	time.Local = time.FixedZone("UTC+5", 5*60*60)
	t.Cleanup(func() { time.Local = local })

	ctx := context.Background()
	engine, record, dbManager := setup(t)
	day := func(d int) time.Time { return time.Date(2026, 3, d, 12, 0, 0, 0, time.UTC) }

	_, err := engine.UpsertPeriod(ctx, record.ID, "views_count", 4, day(1), timeframe.Daily)
	require.NoError(t, err)
	_, err = engine.Backfill(ctx, record.ID, "views_count", timeframe.Daily, day(1), day(3))
	require.NoError(t, err)

	var offsets []string
	require.NoError(t, dbManager.GetConnection().Model(&models.PeriodRecord{}).
		Pluck("substr(updated_at, -6)", &offsets).Error)
	require.Len(t, offsets, 3)
	for _, offset := range offsets {
		assert.Equal(t, "+00:00", offset)
	}
}

func TestBackfillEntity(t *testing.T) {
	ctx := context.Background()
	engine, record, _ := setup(t)

	_, err := engine.UpsertPeriod(ctx, record.ID, "likes_count", 4, time.Date(2026, 2, 1, 0, 0, 0, 0, time.UTC), timeframe.Monthly)
	require.NoError(t, err)

	created, err := engine.BackfillEntity(ctx, record.Ref(), time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC), time.Date(2026, 4, 30, 0, 0, 0, 0, time.UTC))
	require.NoError(t, err)
	assert.Equal(t, 2, created)

	_, err = engine.BackfillEntity(ctx, models.EntityRef{Type: "post", ID: "missing"}, time.Now(), time.Now())
	assert.Error(t, err)
}

func ptr(v float64) *float64 { return &v }
