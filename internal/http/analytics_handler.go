package http

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/karloscodes/cartridge"

	"engagely/internal/analytics"
	"engagely/internal/config"
	"engagely/internal/models"
	"engagely/internal/pkg/async"
	"engagely/internal/timeframe"
)

const maxQueryLimit = 500

// errBadQuery marks query parameters the handler rejected itself.
var errBadQuery = errors.New("invalid query parameter")

// readQuery is the entity and time scope shared by the per-entity endpoints.
type readQuery struct {
	params analytics.EntityScopedQueryParams
	loc    *time.Location
}

func parseReadQuery(ctx *cartridge.Context) (*readQuery, error) {
	ref, err := models.ValidateEntity(models.EntityRef{Type: ctx.Params("type"), ID: ctx.Params("id")})
	if err != nil {
		return nil, err
	}

	q := &readQuery{params: analytics.NewEntityScopedQueryParams(ref)}
	if q.params.Limit, err = parseLimit(ctx); err != nil {
		return nil, err
	}

	cfg := ctx.Config.(*config.Config)
	tz := ctx.Query("tz", cfg.Timezone)

	from, to := ctx.Query("from"), ctx.Query("to")
	if from == "" && to == "" {
		loc, err := time.LoadLocation(tz)
		if err != nil {
			return nil, fmt.Errorf("%w: tz %q", errBadQuery, tz)
		}
		q.loc = loc
		return q, nil
	}

	r, err := timeframe.NewRangeParser().Parse(timeframe.RangeParams{FromDate: from, ToDate: to, Tz: tz})
	if err != nil {
		return nil, fmt.Errorf("%w: %v", errBadQuery, err)
	}
	q.params.From, q.params.To, q.loc = r.From, r.To, r.Loc
	return q, nil
}

func parseLimit(ctx *cartridge.Context) (int, error) {
	raw := ctx.Query("limit")
	if raw == "" {
		return 0, nil
	}
	limit, err := strconv.Atoi(raw)
	if err != nil || limit < 0 {
		return 0, fmt.Errorf("%w: limit %q", errBadQuery, raw)
	}
	return min(limit, maxQueryLimit), nil
}

func parseGranularity(ctx *cartridge.Context, fallback timeframe.Granularity) (timeframe.Granularity, error) {
	raw := ctx.Query("granularity")
	if raw == "" {
		return fallback, nil
	}
	g, err := timeframe.ParseGranularity(raw)
	if err != nil {
		return "", fmt.Errorf("%w: %v", errBadQuery, err)
	}
	return g, nil
}

// respondReadError maps read errors to JSON error bodies.
func respondReadError(ctx *cartridge.Context, err error, what string) error {
	switch {
	case errors.Is(err, analytics.ErrNoData):
		return ctx.Status(fiber.StatusNotFound).JSON(fiber.Map{
			"error": err.Error(),
			"code":  "NO_DATA",
		})
	case errors.Is(err, models.ErrInvalidEntity),
		errors.Is(err, models.ErrUnknownMetric),
		errors.Is(err, errBadQuery):
		return ctx.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": err.Error(),
			"code":  "INVALID_QUERY",
		})
	default:
		ctx.Logger.Error("Failed to read analytics",
			slog.String("query", what),
			slog.String("path", ctx.Path()),
			slog.Any("error", err))
		return ctx.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Failed to load " + what,
			"code":  "QUERY_ERROR",
		})
	}
}

// scopedAction adapts an entity-scoped query to a route handler.
func scopedAction[T any](what string, query func(ctx *cartridge.Context, q *readQuery) (T, error)) func(ctx *cartridge.Context) error {
	return func(ctx *cartridge.Context) error {
		q, err := parseReadQuery(ctx)
		if err != nil {
			return respondReadError(ctx, err, what)
		}
		result, err := query(ctx, q)
		if err != nil {
			return respondReadError(ctx, err, what)
		}
		return ctx.JSON(result)
	}
}

// AnalyticsTotalsAction returns the base aggregate with derived rates.
var AnalyticsTotalsAction = scopedAction("totals", func(ctx *cartridge.Context, q *readQuery) (*analytics.Totals, error) {
	cfg := ctx.Config.(*config.Config)
	return analytics.GetTotals(ctx.DB(), q.params.Ref, cfg.EngagementWeights)
})

var AnalyticsBrowsersAction = scopedAction("browsers", func(ctx *cartridge.Context, q *readQuery) ([]analytics.MetricCountResult, error) {
	return analytics.GetBrowserBreakdown(ctx.DB(), q.params)
})

var AnalyticsOSAction = scopedAction("operating systems", func(ctx *cartridge.Context, q *readQuery) ([]analytics.MetricCountResult, error) {
	return analytics.GetOSBreakdown(ctx.DB(), q.params)
})

var AnalyticsDevicesAction = scopedAction("devices", func(ctx *cartridge.Context, q *readQuery) ([]analytics.MetricCountResult, error) {
	return analytics.GetDeviceBreakdown(ctx.DB(), q.params)
})

var AnalyticsBotsAction = scopedAction("bots", func(ctx *cartridge.Context, q *readQuery) (*analytics.BotBreakdown, error) {
	return analytics.GetBotBreakdown(ctx.DB(), q.params)
})

var AnalyticsReferrersAction = scopedAction("referrers", func(ctx *cartridge.Context, q *readQuery) (*analytics.ReferrerBreakdown, error) {
	return analytics.GetReferrerBreakdown(ctx.DB(), q.params)
})

var AnalyticsGeoAction = scopedAction("geography", func(ctx *cartridge.Context, q *readQuery) (*analytics.GeoBreakdown, error) {
	return analytics.GetGeoBreakdown(ctx.DB(), q.params)
})

var AnalyticsViewersAction = scopedAction("viewers", func(ctx *cartridge.Context, q *readQuery) (*analytics.UniqueViewerStats, error) {
	return analytics.GetUniqueViewerStats(ctx.DB(), q.params)
})

var AnalyticsTimesAction = scopedAction("time distribution", func(ctx *cartridge.Context, q *readQuery) (*analytics.TimeDistribution, error) {
	return analytics.GetTimeDistribution(ctx.DB(), q.params, q.loc)
})

// AnalyticsPeriodsAction returns one metric of the period rollup.
// Query: metric (views_count), granularity (daily), from, to, tz.
var AnalyticsPeriodsAction = scopedAction("periods", func(ctx *cartridge.Context, q *readQuery) ([]analytics.PeriodPoint, error) {
	g, err := parseGranularity(ctx, timeframe.Daily)
	if err != nil {
		return nil, err
	}
	return analytics.GetPeriodSeries(ctx.DB(), analytics.PeriodSeriesParams{
		Ref:         q.params.Ref,
		Metric:      ctx.Query("metric", "views_count"),
		Granularity: g,
		From:        q.params.From,
		To:          q.params.To,
		Location:    q.loc,
	})
})

// EntityOverview bundles every per-entity read.
type EntityOverview struct {
	Totals   *analytics.Totals             `json:"totals"`
	Browsers []analytics.MetricCountResult `json:"browsers"`
	OS       []analytics.MetricCountResult `json:"os"`
	Devices  []analytics.MetricCountResult `json:"devices"`
	Bots     *analytics.BotBreakdown       `json:"bots"`
	Geo      *analytics.GeoBreakdown       `json:"geo"`
	Viewers  *analytics.UniqueViewerStats  `json:"viewers"`
	Times    *analytics.TimeDistribution   `json:"times"`
}

// AnalyticsOverviewAction runs every per-entity query concurrently. Totals
// may be missing before the first aggregation; the other sections are read
// from the views and always present.
func AnalyticsOverviewAction(ctx *cartridge.Context) error {
	q, err := parseReadQuery(ctx)
	if err != nil {
		return respondReadError(ctx, err, "overview")
	}
	cfg := ctx.Config.(*config.Config)
	db := ctx.DB()

	task := func(name string, fn func() (any, error)) async.Task[any] {
		return async.Task[any]{Name: name, Execute: func(_ context.Context) (any, error) { return fn() }}
	}
	tasks := []async.Task[any]{
		task("totals", func() (any, error) { return analytics.GetTotals(db, q.params.Ref, cfg.EngagementWeights) }),
		task("browsers", func() (any, error) { return analytics.GetBrowserBreakdown(db, q.params) }),
		task("os", func() (any, error) { return analytics.GetOSBreakdown(db, q.params) }),
		task("devices", func() (any, error) { return analytics.GetDeviceBreakdown(db, q.params) }),
		task("bots", func() (any, error) { return analytics.GetBotBreakdown(db, q.params) }),
		task("geo", func() (any, error) { return analytics.GetGeoBreakdown(db, q.params) }),
		task("viewers", func() (any, error) { return analytics.GetUniqueViewerStats(db, q.params) }),
		task("times", func() (any, error) { return analytics.GetTimeDistribution(db, q.params, q.loc) }),
	}

	results := async.NewPool[any](4).Execute(ctx.UserContext(), tasks)
	for _, t := range tasks {
		res, ok := results[t.Name]
		if !ok {
			return respondReadError(ctx, context.Canceled, "overview")
		}
		if res.Err != nil && !errors.Is(res.Err, analytics.ErrNoData) {
			return respondReadError(ctx, res.Err, t.Name)
		}
	}

	overview := EntityOverview{}
	overview.Totals, _ = results["totals"].Data.(*analytics.Totals)
	overview.Browsers, _ = results["browsers"].Data.([]analytics.MetricCountResult)
	overview.OS, _ = results["os"].Data.([]analytics.MetricCountResult)
	overview.Devices, _ = results["devices"].Data.([]analytics.MetricCountResult)
	overview.Bots, _ = results["bots"].Data.(*analytics.BotBreakdown)
	overview.Geo, _ = results["geo"].Data.(*analytics.GeoBreakdown)
	overview.Viewers, _ = results["viewers"].Data.(*analytics.UniqueViewerStats)
	overview.Times, _ = results["times"].Data.(*analytics.TimeDistribution)
	return ctx.JSON(overview)
}

// AnalyticsTrendingAction ranks the entities of a type by trend score.
// Query: min_score (0), limit.
func AnalyticsTrendingAction(ctx *cartridge.Context) error {
	entityType := ctx.Params("type")
	limit, err := parseLimit(ctx)
	if err != nil {
		return respondReadError(ctx, err, "trending")
	}
	minScore := 0.0
	if raw := ctx.Query("min_score"); raw != "" {
		if minScore, err = strconv.ParseFloat(raw, 64); err != nil {
			return respondReadError(ctx, fmt.Errorf("%w: min_score %q", errBadQuery, raw), "trending")
		}
	}

	trending, err := analytics.GetTrending(ctx.DB(), entityType, minScore, limit)
	if err != nil {
		return respondReadError(ctx, err, "trending")
	}
	return ctx.JSON(trending)
}

// AnalyticsMoversAction lists the entities of a type whose latest period
// grew or shrank past the growth thresholds.
// Query: direction (trending), granularity (weekly), metric, limit.
func AnalyticsMoversAction(ctx *cartridge.Context) error {
	cfg := ctx.Config.(*config.Config)
	limit, err := parseLimit(ctx)
	if err != nil {
		return respondReadError(ctx, err, "movers")
	}
	g, err := parseGranularity(ctx, timeframe.Weekly)
	if err != nil {
		return respondReadError(ctx, err, "movers")
	}
	direction, err := analytics.ParseDirection(ctx.Query("direction", string(analytics.Trending)))
	if err != nil {
		return respondReadError(ctx, fmt.Errorf("%w: %v", errBadQuery, err), "movers")
	}

	movers, err := analytics.GetPeriodMovers(ctx.DB(), analytics.PeriodMoversParams{
		Granularity: g,
		Direction:   direction,
		Metric:      ctx.Query("metric"),
		EntityType:  ctx.Params("type"),
		Limit:       limit,
		Location:    cfg.Location(),
	})
	if err != nil {
		return respondReadError(ctx, err, "movers")
	}
	return ctx.JSON(movers)
}
