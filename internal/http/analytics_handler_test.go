package http_test

import (
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"engagely/internal/analytics"
	"engagely/internal/models"
	"engagely/internal/testsupport"
)

func TestAnalyticsRoutesRequireToken(t *testing.T) {
	app, _ := setupApp(t)

	for _, path := range []string{
		"/api/v1/analytics/post/1/totals",
		"/api/v1/analytics/post/1",
		"/api/v1/analytics/post/trending",
	} {
		resp, err := app.Test(httptest.NewRequest("GET", path, nil))
		require.NoError(t, err)
		assert.Equal(t, fiber.StatusUnauthorized, resp.StatusCode, path)
	}
}

func TestAnalyticsTotalsAction(t *testing.T) {
	t.Run("no data before aggregation", func(t *testing.T) {
		app, db := setupApp(t)
		seedPost(t, db)

		var body map[string]any
		status := call(t, app, "GET", "/api/v1/analytics/post/1/totals", nil, &body)
		assert.Equal(t, fiber.StatusNotFound, status)
		assert.Equal(t, "NO_DATA", body["code"])
	})

	t.Run("base aggregate with derived rates", func(t *testing.T) {
		app, db := setupApp(t)
		seedPost(t, db)
		testsupport.CreateAnalytic(t, db, models.AnalyticRecord{
			EntityType: "post",
			EntityID:   "1",
			ActorKey:   models.BaseActorKey,
			Counters:   models.Counters{ViewsCount: 10, UniqueViewers: 2, LikesCount: 2, OrdersCount: 1},
		})

		var totals analytics.Totals
		status := call(t, app, "GET", "/api/v1/analytics/post/1/totals", nil, &totals)
		require.Equal(t, fiber.StatusOK, status)
		assert.EqualValues(t, 10, totals.Counters.ViewsCount)
		assert.Equal(t, 10.0, totals.ConversionRate)
		assert.Equal(t, models.EntityRef{Type: "post", ID: "1"}, totals.Ref)
	})
}

func TestAnalyticsBreakdownActions(t *testing.T) {
	app, db := setupApp(t)
	seedPost(t, db)

	t.Run("browsers", func(t *testing.T) {
		var browsers []analytics.MetricCountResult
		status := call(t, app, "GET", "/api/v1/analytics/post/1/browsers", nil, &browsers)
		require.Equal(t, fiber.StatusOK, status)
		assert.ElementsMatch(t, []analytics.MetricCountResult{
			{Name: "Chrome", Count: 1},
			{Name: "Firefox", Count: 1},
		}, browsers)
	})

	t.Run("limit", func(t *testing.T) {
		var browsers []analytics.MetricCountResult
		status := call(t, app, "GET", "/api/v1/analytics/post/1/browsers?limit=1", nil, &browsers)
		require.Equal(t, fiber.StatusOK, status)
		assert.Len(t, browsers, 1)
	})

	t.Run("time bounds exclude other days", func(t *testing.T) {
		var browsers []analytics.MetricCountResult
		status := call(t, app, "GET", "/api/v1/analytics/post/1/browsers?from=2026-03-03&to=2026-03-04", nil, &browsers)
		require.Equal(t, fiber.StatusOK, status)
		assert.Empty(t, browsers)
	})

	t.Run("referrers", func(t *testing.T) {
		var refs analytics.ReferrerBreakdown
		status := call(t, app, "GET", "/api/v1/analytics/post/1/referrers", nil, &refs)
		require.Equal(t, fiber.StatusOK, status)
		require.Len(t, refs.Sources, 1)
		assert.Equal(t, "Direct", refs.Sources[0].Name)
		assert.EqualValues(t, 2, refs.Sources[0].Count)
	})

	t.Run("geo", func(t *testing.T) {
		var geo analytics.GeoBreakdown
		status := call(t, app, "GET", "/api/v1/analytics/post/1/geo", nil, &geo)
		require.Equal(t, fiber.StatusOK, status)
		require.Len(t, geo.Countries, 2)
	})

	t.Run("viewers", func(t *testing.T) {
		var stats analytics.UniqueViewerStats
		status := call(t, app, "GET", "/api/v1/analytics/post/1/viewers", nil, &stats)
		require.Equal(t, fiber.StatusOK, status)
		assert.EqualValues(t, 2, stats.VisitorTokens)
		assert.EqualValues(t, 2, stats.GuestViews)
	})

	t.Run("times in the requested timezone", func(t *testing.T) {
		var dist analytics.TimeDistribution
		status := call(t, app, "GET", "/api/v1/analytics/post/1/times?tz=Europe/Berlin", nil, &dist)
		require.Equal(t, fiber.StatusOK, status)
		assert.EqualValues(t, 2, dist.ByHour[15])
		assert.Equal(t, 15, dist.PeakHour)
	})

	testCases := []struct {
		name string
		path string
	}{
		{name: "negative limit", path: "/api/v1/analytics/post/1/os?limit=-1"},
		{name: "unknown timezone", path: "/api/v1/analytics/post/1/devices?tz=Mars/Olympus"},
		{name: "inverted range", path: "/api/v1/analytics/post/1/bots?from=2026-03-05&to=2026-03-01"},
		{name: "unknown metric", path: "/api/v1/analytics/post/1/periods?metric=karma"},
		{name: "unknown granularity", path: "/api/v1/analytics/post/1/periods?granularity=hourly"},
		{name: "invalid min score", path: "/api/v1/analytics/post/trending?min_score=high"},
		{name: "invalid direction", path: "/api/v1/analytics/post/movers?direction=sideways"},
	}
	for _, tc := range testCases {
		t.Run("rejects "+tc.name, func(t *testing.T) {
			var body map[string]any
			status := call(t, app, "GET", tc.path, nil, &body)
			assert.Equal(t, fiber.StatusBadRequest, status)
			assert.Equal(t, "INVALID_QUERY", body["code"])
		})
	}
}

func TestAnalyticsOverviewAction(t *testing.T) {
	app, db := setupApp(t)
	seedPost(t, db)

	var overview struct {
		Totals   *analytics.Totals             `json:"totals"`
		Browsers []analytics.MetricCountResult `json:"browsers"`
		Times    *analytics.TimeDistribution   `json:"times"`
	}
	status := call(t, app, "GET", "/api/v1/analytics/post/1", nil, &overview)
	require.Equal(t, fiber.StatusOK, status)
	assert.Nil(t, overview.Totals)
	assert.Len(t, overview.Browsers, 2)
	require.NotNil(t, overview.Times)
	assert.EqualValues(t, 2, overview.Times.Total)
}

func TestAnalyticsPeriodsAndTrending(t *testing.T) {
	app, db := setupApp(t)
	seedPost(t, db)

	var result map[string]any
	require.Equal(t, fiber.StatusOK, call(t, app, "POST", "/admin/api/aggregate", map[string]any{"type": "post", "id": "1"}, &result))

	var series []analytics.PeriodPoint
	status := call(t, app, "GET", "/api/v1/analytics/post/1/periods?granularity=yearly", nil, &series)
	require.Equal(t, fiber.StatusOK, status)
	require.Len(t, series, 1)
	assert.EqualValues(t, 2, series[0].Value)
	assert.Equal(t, time.Now().UTC().Year(), series[0].PeriodStart.UTC().Year())

	var trending []analytics.TrendingEntity
	status = call(t, app, "GET", "/api/v1/analytics/post/trending", nil, &trending)
	require.Equal(t, fiber.StatusOK, status)
	require.Len(t, trending, 1)
	assert.Equal(t, "1", trending[0].Ref.ID)

	var movers []analytics.PeriodMover
	status = call(t, app, "GET", "/api/v1/analytics/post/movers?granularity=daily", nil, &movers)
	require.Equal(t, fiber.StatusOK, status)
	assert.Empty(t, movers)
}
