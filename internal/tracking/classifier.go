package tracking

import (
	"context"
	"log/slog"
	"strings"
	"time"

	"engagely/internal/pkg/geoip"
	"engagely/internal/pkg/user_agent"
)

// RequestInfo is the request-like input of a tracked event.
type RequestInfo struct {
	// Action is the explicit action name. When empty the last segment of
	// RouteName is used, so "posts.show" tracks "show".
	Action    string
	RouteName string

	Method    string
	URL       string
	Path      string
	Referer   string
	PageURL   string
	Languages string
	UserAgent string
	IPAddress string
	Headers   map[string]string
}

// Classification is everything the classifier derived from a request.
type Classification struct {
	Action   string
	Agent    user_agent.UserAgent
	Location geoip.Location
}

// IsBot reports whether the request came from a crawler.
func (c Classification) IsBot() bool {
	return c.Agent.Bot
}

// Classifier attaches device, bot and geolocation metadata to requests.
type Classifier struct {
	locator geoip.Locator
	timeout time.Duration
	logger  *slog.Logger
}

// NewClassifier creates a classifier. A nil locator resolves every address
// to the unknown location.
func NewClassifier(locator geoip.Locator, timeout time.Duration, logger *slog.Logger) *Classifier {
	return &Classifier{locator: locator, timeout: timeout, logger: logger}
}

// ResolveAction returns the action a request should be tracked under.
func ResolveAction(info RequestInfo) string {
	if action := strings.TrimSpace(info.Action); action != "" {
		return strings.ToLower(action)
	}
	route := strings.TrimSpace(info.RouteName)
	if route == "" {
		return ""
	}
	if idx := strings.LastIndexAny(route, ".:"); idx >= 0 {
		route = route[idx+1:]
	}
	return strings.ToLower(route)
}

// Classify parses the user agent and geolocates the client address.
func (c *Classifier) Classify(ctx context.Context, info RequestInfo) Classification {
	return Classification{
		Action:   ResolveAction(info),
		Agent:    user_agent.Parse(info.UserAgent),
		Location: c.locate(ctx, info.IPAddress),
	}
}

func (c *Classifier) locate(ctx context.Context, ip string) geoip.Location {
	if c.locator == nil || strings.TrimSpace(ip) == "" {
		return geoip.Unknown()
	}
	if c.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.timeout)
		defer cancel()
	}

	location := c.locator.Lookup(ctx, ip)
	if ctx.Err() != nil {
		c.logger.Debug("Geolocation timed out", slog.String("ip", ip))
		return geoip.Unknown()
	}
	return location
}
