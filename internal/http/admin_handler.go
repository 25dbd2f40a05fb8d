package http

import (
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/karloscodes/cartridge"
	"gorm.io/gorm"

	"engagely/internal/aggregation"
	"engagely/internal/models"
	"engagely/internal/retention"
	"engagely/internal/timeframe"
)

// AdminHandlers serve the token-protected maintenance API.
type AdminHandlers struct {
	Builder  *aggregation.Builder
	Sweeper  *retention.Sweeper
	Resolver retention.EntityResolver
	Clock    timeframe.TimeProvider
}

func (h *AdminHandlers) now() time.Time {
	if h.Clock == nil {
		return time.Now().UTC()
	}
	return h.Clock.Now(time.UTC)
}

// parseAdminParams reads params from a JSON body, or from the query string
// when the body is empty.
func parseAdminParams(ctx *cartridge.Context, params any) error {
	if len(ctx.Body()) == 0 {
		return ctx.QueryParser(params)
	}
	return ctx.BodyParser(params)
}

func badAdminRequest(ctx *cartridge.Context, msg string) error {
	return ctx.Status(fiber.StatusBadRequest).JSON(fiber.Map{
		"error": msg,
		"code":  "INVALID_REQUEST",
	})
}

func adminFailure(ctx *cartridge.Context, operation string, err error) error {
	ctx.Logger.Error("Admin operation failed",
		slog.String("operation", operation),
		slog.Any("error", err))
	return ctx.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
		"error": operation + " failed: " + err.Error(),
		"code":  "OPERATION_FAILED",
	})
}

type AggregateParams struct {
	EntityType string `json:"type" query:"type"`
	EntityID   string `json:"id" query:"id"`
	Recent     bool   `json:"recent" query:"recent"`
	Hours      int    `json:"hours" query:"hours"`
}

// AggregateAction rebuilds base aggregates: one entity when type and id are
// given, one type, the recently active entities, or everything.
func (h *AdminHandlers) AggregateAction(ctx *cartridge.Context) error {
	var params AggregateParams
	if err := parseAdminParams(ctx, &params); err != nil {
		return badAdminRequest(ctx, "Invalid aggregate parameters")
	}

	switch {
	case params.EntityID != "":
		base, err := h.Builder.RebuildBase(ctx.UserContext(), params.EntityType, params.EntityID)
		switch {
		case errors.Is(err, models.ErrInvalidEntity):
			return badAdminRequest(ctx, err.Error())
		case errors.Is(err, aggregation.ErrNothingToAggregate):
			return ctx.Status(fiber.StatusNotFound).JSON(fiber.Map{
				"error": err.Error(),
				"code":  "NOTHING_TO_AGGREGATE",
			})
		case err != nil:
			return adminFailure(ctx, "aggregate", err)
		}
		return ctx.JSON(fiber.Map{"scope": "entity", "aggregate": base})

	case params.EntityType != "":
		result, err := h.Builder.RebuildAllForType(ctx.UserContext(), params.EntityType)
		if err != nil {
			return adminFailure(ctx, "aggregate", err)
		}
		return ctx.JSON(fiber.Map{"scope": "type", "result": result})

	case params.Recent:
		window := time.Duration(params.Hours) * time.Hour
		result, err := h.Builder.RebuildRecent(ctx.UserContext(), window)
		if err != nil {
			return adminFailure(ctx, "aggregate", err)
		}
		return ctx.JSON(fiber.Map{"scope": "recent", "result": result})

	default:
		result, err := h.Builder.RebuildAll(ctx.UserContext())
		if err != nil {
			return adminFailure(ctx, "aggregate", err)
		}
		return ctx.JSON(fiber.Map{"scope": "all", "result": result})
	}
}

type CleanupParams struct {
	Kind string `json:"kind" query:"kind"`
	Days int    `json:"days" query:"days"`
}

// CleanupAction purges rows past retention. Without a kind every configured
// window applies; with a kind, days overrides its window.
func (h *AdminHandlers) CleanupAction(ctx *cartridge.Context) error {
	var params CleanupParams
	if err := parseAdminParams(ctx, &params); err != nil {
		return badAdminRequest(ctx, "Invalid cleanup parameters")
	}
	if params.Days < 0 {
		return badAdminRequest(ctx, "days must not be negative")
	}
	now := h.now()

	if params.Kind == "" {
		if params.Days > 0 {
			return badAdminRequest(ctx, "days requires a kind")
		}
		counts, err := h.Sweeper.PurgeExpired(ctx.UserContext(), now)
		if err != nil {
			return adminFailure(ctx, "cleanup", err)
		}
		return ctx.JSON(fiber.Map{"deleted": counts})
	}

	kind, err := retention.ParseKind(params.Kind)
	if err != nil {
		return badAdminRequest(ctx, err.Error())
	}
	days := params.Days
	if days == 0 {
		days = h.Sweeper.Days(kind)
	}
	if days <= 0 {
		return badAdminRequest(ctx, fmt.Sprintf("retention of %s is disabled; pass days", kind))
	}

	deleted, err := h.Sweeper.PurgeOlderThan(ctx.UserContext(), kind, now.AddDate(0, 0, -days))
	if err != nil {
		return adminFailure(ctx, "cleanup", err)
	}
	return ctx.JSON(fiber.Map{"deleted": map[retention.Kind]int64{kind: deleted}})
}

type OrphanParams struct {
	// Live lists the existing ids per entity type. Types not listed fall back
	// to the registered resolvers.
	Live map[string][]string `json:"live"`
}

// CleanupOrphansAction deletes analytics of entities that no longer exist.
func (h *AdminHandlers) CleanupOrphansAction(ctx *cartridge.Context) error {
	var params OrphanParams
	if len(ctx.Body()) > 0 {
		if err := ctx.BodyParser(&params); err != nil {
			return badAdminRequest(ctx, "Invalid orphan cleanup parameters")
		}
	}

	resolver := retention.FirstOf(retention.StaticResolver(params.Live), h.Resolver)
	deleted, err := h.Sweeper.PurgeOrphaned(ctx.UserContext(), resolver)
	if err != nil {
		return adminFailure(ctx, "orphan cleanup", err)
	}
	return ctx.JSON(fiber.Map{"deleted": deleted})
}

type BackfillParams struct {
	EntityType string `json:"type" query:"type"`
	EntityID   string `json:"id" query:"id"`
	From       string `json:"from" query:"from"`
	To         string `json:"to" query:"to"`
}

// BackfillAction fills gaps in the period series of one entity between two
// dates, carrying the last known value forward.
func (h *AdminHandlers) BackfillAction(ctx *cartridge.Context) error {
	var params BackfillParams
	if err := parseAdminParams(ctx, &params); err != nil {
		return badAdminRequest(ctx, "Invalid backfill parameters")
	}
	ref, err := models.ValidateEntity(models.EntityRef{Type: params.EntityType, ID: params.EntityID})
	if err != nil {
		return badAdminRequest(ctx, err.Error())
	}
	r, err := timeframe.NewRangeParser(h.Clock).Parse(timeframe.RangeParams{
		FromDate: params.From,
		ToDate:   params.To,
		Tz:       h.Builder.Rollup().Location().String(),
	})
	if err != nil {
		return badAdminRequest(ctx, err.Error())
	}

	created, err := h.Builder.Rollup().BackfillEntity(ctx.UserContext(), ref, r.From, r.To)
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return ctx.Status(fiber.StatusNotFound).JSON(fiber.Map{
			"error": "entity has not been aggregated: " + ref.String(),
			"code":  "NO_DATA",
		})
	}
	if err != nil {
		return adminFailure(ctx, "backfill", err)
	}
	return ctx.JSON(fiber.Map{"created": created})
}

// StatusAction summarises the stored aggregates.
func (h *AdminHandlers) StatusAction(ctx *cartridge.Context) error {
	summary, err := h.Builder.Summary(ctx.UserContext())
	if err != nil {
		return adminFailure(ctx, "status", err)
	}
	return ctx.JSON(summary)
}
