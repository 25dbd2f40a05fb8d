package v1

import (
	"log/slog"
	"net/http"
	"net/url"
	"strings"

	"github.com/gofiber/fiber/v2"
	"github.com/karloscodes/cartridge"

	"engagely/internal/config"
	"engagely/internal/models"
	"engagely/internal/tracking"
	"engagely/internal/visitors"
)

const (
	msgTracked        = "Event tracked"
	msgNotTracked     = "Event accepted but not tracked"
	errInvalidRequest = "Invalid request"
	defaultAction     = "view"
)

// forwardedHeaders are stored with each view.
var forwardedHeaders = []string{"Accept-Language", "DNT", "Origin", "Sec-CH-UA-Platform", "Sec-GPC"}

type TrackParams struct {
	EntityType   string `json:"entityType"`
	EntityID     string `json:"entityId"`
	Action       string `json:"action"`
	URL          string `json:"url"`
	Path         string `json:"path"`
	Referrer     string `json:"referrer"`
	UserID       string `json:"userId"`
	VisitorToken string `json:"visitorToken"`
	SessionID    string `json:"sessionId"`
	UserAgent    string `json:"userAgent"`
	Languages    string `json:"languages"`
}

// TrackHandler records a view posted by a client. Tracking failures are
// reported in the body only; the status is 202 for every parseable request.
func TrackHandler(tracker *tracking.Tracker) func(ctx *cartridge.Context) error {
	return func(ctx *cartridge.Context) error {
		var params TrackParams
		if err := ctx.BodyParser(&params); err != nil {
			ctx.Logger.Debug("Failed to parse track request", slog.Any("error", err))
			return ctx.Status(http.StatusBadRequest).JSON(fiber.Map{
				"error": errInvalidRequest,
				"code":  "INVALID_REQUEST",
			})
		}

		cfg := ctx.Config.(*config.Config)
		req := buildTrackRequest(ctx.Ctx, params, cfg.PrivateKey)

		// One scope per HTTP request
		record := tracker.Track(ctx.UserContext(), tracking.NewRequestScope(), req)
		if record == nil {
			return ctx.Status(http.StatusAccepted).JSON(fiber.Map{
				"message": msgNotTracked,
				"tracked": false,
			})
		}

		return ctx.Status(http.StatusAccepted).JSON(fiber.Map{
			"message": msgTracked,
			"tracked": true,
			"id":      record.ID,
		})
	}
}

func buildTrackRequest(c *fiber.Ctx, params TrackParams, privateKey string) tracking.TrackRequest {
	userAgent := strings.TrimSpace(params.UserAgent)
	if userAgent == "" {
		userAgent = requestUserAgent(c)
	}
	languages := strings.TrimSpace(params.Languages)
	if languages == "" {
		languages = c.Get("Accept-Language")
	}
	referrer := strings.TrimSpace(params.Referrer)
	if referrer == "" {
		referrer = c.Get("Referer")
	}
	action := strings.TrimSpace(params.Action)
	if action == "" {
		action = defaultAction
	}
	clientIP := getClientIP(c)

	actor := models.VisitorActor(params.VisitorToken)
	if strings.TrimSpace(params.UserID) != "" {
		actor = models.UserActor(params.UserID)
	} else if strings.TrimSpace(params.VisitorToken) == "" {
		actor = models.VisitorActor(visitors.BuildVisitorToken(params.SessionID, clientIP, userAgent, privateKey))
	}

	headers := make(map[string]string)
	for _, name := range forwardedHeaders {
		if value := c.Get(name); value != "" {
			headers[name] = value
		}
	}

	return tracking.TrackRequest{
		Entity:    models.EntityRef{Type: params.EntityType, ID: params.EntityID},
		Actor:     actor,
		SessionID: params.SessionID,
		Request: tracking.RequestInfo{
			Action:    action,
			Method:    http.MethodGet,
			URL:       params.URL,
			Path:      resolvePath(params.Path, params.URL),
			Referer:   referrer,
			PageURL:   params.URL,
			Languages: languages,
			UserAgent: userAgent,
			IPAddress: clientIP,
			Headers:   headers,
		},
		RequireTrackedAction: true,
	}
}

func requestUserAgent(c *fiber.Ctx) string {
	if forwardedUA := c.Get("X-Forwarded-User-Agent"); forwardedUA != "" {
		return forwardedUA
	}
	return c.Get("User-Agent")
}

// resolvePath prefers the explicit path and falls back to the path of rawURL.
func resolvePath(path, rawURL string) string {
	if path = strings.TrimSpace(path); path != "" {
		return path
	}
	parsed, err := url.Parse(rawURL)
	if err != nil || parsed.Path == "" {
		return "/"
	}
	return parsed.Path
}
