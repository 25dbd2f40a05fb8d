package v1

import (
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/karloscodes/cartridge"

	"engagely/internal/config"
	"engagely/internal/models"
	"engagely/internal/pkg/geoip"
	"engagely/internal/visitors"
)

const visitorViewLimit = 25

type visitorView struct {
	VisitedAt  time.Time `json:"visitedAt"`
	EntityType string    `json:"entityType"`
	EntityID   string    `json:"entityId"`
	Action     string    `json:"action"`
	URL        string    `json:"url"`
	Referrer   string    `json:"referrer,omitempty"`
}

// VisitorInfoHandler returns the anonymous identity the track endpoint would
// assign to the caller, with the caller's recent views.
func VisitorInfoHandler(locator geoip.Locator) func(ctx *cartridge.Context) error {
	return func(ctx *cartridge.Context) error {
		if strings.EqualFold(strings.TrimSpace(ctx.Get("Early-Data")), "1") {
			ctx.Logger.Info("Received early data request, returning 425 to force replay",
				slog.String("path", ctx.Path()))
			return ctx.Status(fiber.StatusTooEarly).JSON(fiber.Map{
				"error": "Replay required",
				"code":  "TOO_EARLY",
			})
		}

		cfg := ctx.Config.(*config.Config)
		clientIP := getClientIP(ctx.Ctx)
		token := strings.TrimSpace(ctx.Query("visitorToken"))
		if token == "" {
			token = visitors.BuildVisitorToken(ctx.Query("sessionId"), clientIP, requestUserAgent(ctx.Ctx), cfg.PrivateKey)
		}
		actor := models.VisitorActor(token)
		actorKey, err := actor.Key()
		if err != nil {
			return ctx.Status(http.StatusBadRequest).JSON(fiber.Map{
				"error": "Missing visitor context",
				"code":  "MISSING_CONTEXT",
			})
		}

		location := geoip.Unknown()
		if locator != nil {
			location = locator.Lookup(ctx.UserContext(), clientIP)
		}

		var views []models.ViewRecord
		if err := ctx.DB().Where("actor_key = ? AND status = 1", actorKey).
			Order("visited_at DESC").
			Limit(visitorViewLimit).
			Find(&views).Error; err != nil {
			ctx.Logger.Error("Failed to load visitor views",
				slog.Any("error", err),
				slog.String("actor_key", actorKey))
			return ctx.Status(http.StatusInternalServerError).JSON(fiber.Map{
				"error": "Failed to load visitor views",
				"code":  "VIEW_LOAD_ERROR",
			})
		}

		recent := make([]visitorView, len(views))
		for i, v := range views {
			recent[i] = visitorView{
				VisitedAt:  v.VisitedAt,
				EntityType: v.EntityType,
				EntityID:   v.EntityID,
				Action:     v.ActionType,
				URL:        v.URL,
				Referrer:   v.Referer,
			}
		}

		return ctx.Status(http.StatusOK).JSON(fiber.Map{
			"visitorToken": token,
			"visitorAlias": visitors.Alias(actorKey),
			"country":      location.Country,
			"countryFlag":  location.Flag(),
			"views":        recent,
			"generatedAt":  time.Now().UTC().Format(time.RFC3339),
		})
	}
}
