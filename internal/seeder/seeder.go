// Package seeder generates demo traffic through the regular tracking
// pipeline.
package seeder

import (
	"context"
	"fmt"
	"log/slog"
	"math/rand/v2"
	"net/url"
	"slices"
	"strconv"
	"time"

	"engagely/internal/aggregation"
	"engagely/internal/models"
	"engagely/internal/tracking"
	"engagely/internal/visitors"
)

const seedSalt = "engagely-seed"

// Stats summarises a seeding run.
type Stats struct {
	Pages        int                `json:"pages"`
	Tracked      int                `json:"tracked"`
	Interactions int                `json:"interactions"`
	Aggregated   aggregation.Result `json:"aggregated"`
}

// Seeder handles the data seeding process
type Seeder struct {
	Tracker   *tracking.Tracker
	Builder   *aggregation.Builder
	Logger    *slog.Logger
	ViewCount int
	// Entities is the number of entities seeded per type.
	Entities map[string]int
	Days     int

	rng *rand.Rand
}

// NewSeeder creates a new seeder instance
func NewSeeder(tracker *tracking.Tracker, builder *aggregation.Builder, logger *slog.Logger, viewCount int) *Seeder {
	if logger == nil {
		logger = slog.Default()
	}
	return &Seeder{
		Tracker:   tracker,
		Builder:   builder,
		Logger:    logger,
		ViewCount: viewCount,
		Entities:  map[string]int{"post": 25, "video": 10, "product": 15},
		Days:      30,
		rng:       rand.New(rand.NewPCG(uint64(time.Now().UnixNano()), 0)),
	}
}

// WithSeed makes the generated traffic reproducible.
func (s *Seeder) WithSeed(seed uint64) *Seeder {
	s.rng = rand.New(rand.NewPCG(seed, seed))
	return s
}

type visit struct {
	actor     models.Actor
	sessionID string
	ip        string
	userAgent string
	referrer  string
	start     time.Time
}

// Run tracks ViewCount page views spread over the last Days days, records
// likes, shares, clicks and bookmarks on some of them, then rebuilds every
// base aggregate.
func (s *Seeder) Run(ctx context.Context) (Stats, error) {
	started := time.Now()
	s.Logger.Info("Seeding demo traffic...",
		slog.Int("views", s.ViewCount),
		slog.Int("days", s.Days))

	var stats Stats
	entityTypes := make([]string, 0, len(s.Entities))
	for entityType, n := range s.Entities {
		if n > 0 {
			entityTypes = append(entityTypes, entityType)
		}
	}
	if len(entityTypes) == 0 {
		return stats, fmt.Errorf("seeder: no entities configured")
	}
	// Map order is random; the seed must drive every choice
	slices.Sort(entityTypes)

	ips := s.privateIPPool(60)
	userAgents := getUserAgents()
	referrers := getReferrers()
	interactions := s.Tracker.Interactions()

	// One scope per simulated page request
	scope := tracking.NewRequestScope()
	for stats.Pages < s.ViewCount {
		if err := ctx.Err(); err != nil {
			return stats, err
		}

		v := s.newVisit(ips, userAgents, referrers)
		pages := s.rng.IntN(4) + 1
		for page := 0; page < pages && stats.Pages < s.ViewCount; page++ {
			scope.Reset()
			at := v.start.Add(time.Duration(page*(s.rng.IntN(110)+10)) * time.Second)

			entityType := entityTypes[s.rng.IntN(len(entityTypes))]
			entity := models.EntityRef{Type: entityType, ID: strconv.Itoa(s.rng.IntN(s.Entities[entityType]) + 1)}
			path := fmt.Sprintf("/%ss/%s", entity.Type, entity.ID)

			req := tracking.TrackRequest{
				Entity:    entity,
				Actor:     v.actor,
				SessionID: v.sessionID,
				Request: tracking.RequestInfo{
					Action:    "show",
					Method:    "GET",
					URL:       "https://demo.engagely.local" + addQueryParams(s.rng, path),
					Path:      path,
					Referer:   v.referrer,
					UserAgent: v.userAgent,
					IPAddress: v.ip,
					Languages: "en-US,en;q=0.9",
				},
				RequireTrackedAction: true,
				At:                   at,
			}
			stats.Pages++
			if s.Tracker.Track(ctx, scope, req) != nil {
				stats.Tracked++
			}
			// A repeated render in the same request is suppressed by the scope
			if s.rng.IntN(10) == 0 {
				s.Tracker.Track(ctx, scope, req)
			}

			stats.Interactions += s.interact(ctx, interactions, entity, v.actor)
			v.referrer = ""
		}
	}

	result, err := s.Builder.RebuildAll(ctx)
	if err != nil {
		return stats, fmt.Errorf("seeder: aggregate: %w", err)
	}
	stats.Aggregated = result

	s.Logger.Info("Seeding completed",
		slog.Int("pages", stats.Pages),
		slog.Int("tracked", stats.Tracked),
		slog.Int("interactions", stats.Interactions),
		slog.Int("aggregated", result.Processed),
		slog.Duration("elapsed", time.Since(started)))
	return stats, nil
}

func (s *Seeder) newVisit(ips, userAgents, referrers []string) visit {
	v := visit{
		sessionID: fmt.Sprintf("seed-%08x", s.rng.Uint32()),
		ip:        ips[s.rng.IntN(len(ips))],
		userAgent: userAgents[s.rng.IntN(len(userAgents))],
		referrer:  referrers[s.rng.IntN(len(referrers))],
		start:     time.Now().UTC().Add(-time.Duration(s.rng.IntN(s.Days*24*60*60)) * time.Second),
	}
	if s.rng.IntN(5) == 0 {
		v.actor = models.UserActor(strconv.Itoa(s.rng.IntN(40) + 1))
	} else {
		v.actor = models.VisitorActor(visitors.BuildVisitorToken(v.sessionID, v.ip, v.userAgent, seedSalt))
	}
	return v
}

// interact records the interactions a viewer performs after a view and
// returns how many were recorded.
func (s *Seeder) interact(ctx context.Context, in *tracking.Interactions, entity models.EntityRef, actor models.Actor) int {
	n := 0
	roll := func(percent int, track func(context.Context, models.Trackable, models.Actor) *models.AnalyticRecord) {
		if s.rng.IntN(100) < percent && track(ctx, entity, actor) != nil {
			n++
		}
	}
	roll(15, in.TrackLike)
	roll(10, in.TrackClick)
	roll(5, in.TrackShare)
	roll(3, in.TrackBookmark)
	roll(2, in.TrackReply)
	return n
}

// privateIPPool returns addresses from private ranges; they resolve locally
// to the development locations without calling a provider.
func (s *Seeder) privateIPPool(count int) []string {
	seen := make(map[string]bool, count)
	ips := make([]string, 0, count)
	for len(ips) < count {
		var ip string
		switch s.rng.IntN(3) {
		case 0:
			ip = fmt.Sprintf("10.%d.%d.%d", s.rng.IntN(256), s.rng.IntN(256), s.rng.IntN(254)+1)
		case 1:
			ip = fmt.Sprintf("192.168.%d.%d", s.rng.IntN(256), s.rng.IntN(254)+1)
		default:
			ip = fmt.Sprintf("172.17.%d.%d", s.rng.IntN(256), s.rng.IntN(254)+1)
		}
		if !seen[ip] {
			seen[ip] = true
			ips = append(ips, ip)
		}
	}
	return ips
}

// getUserAgents returns a list of common user agent strings
func getUserAgents() []string {
	return []string{
		"Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36",
		"Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) AppleWebKit/605.1.15 (KHTML, like Gecko) Version/17.1 Safari/605.1.15",
		"Mozilla/5.0 (iPhone; CPU iPhone OS 17_1 like Mac OS X) AppleWebKit/605.1.15 (KHTML, like Gecko) Version/17.1 Mobile/15E148 Safari/604.1",
		"Mozilla/5.0 (Linux; Android 14; Pixel 8) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Mobile Safari/537.36",
		"Mozilla/5.0 (X11; Linux x86_64; rv:121.0) Gecko/20100101 Firefox/121.0",
		"Mozilla/5.0 (iPad; CPU OS 17_1 like Mac OS X) AppleWebKit/605.1.15 (KHTML, like Gecko) Version/17.1 Mobile/15E148 Safari/604.1",
		"Mozilla/5.0 (compatible; Googlebot/2.1; +http://www.google.com/bot.html)",
	}
}

// getReferrers returns a list of common referrers
func getReferrers() []string {
	return []string{
		"", // Direct visit
		"https://google.com",
		"https://duckduckgo.com",
		"https://news.ycombinator.com",
		"https://twitter.com",
		"https://github.com",
		"android-app://com.google.android.gm",
	}
}

// addQueryParams sometimes appends tracking parameters to path.
func addQueryParams(rng *rand.Rand, path string) string {
	if rng.IntN(10) < 7 {
		return path
	}
	params := url.Values{}
	sources := []string{"newsletter", "twitter", "homepage", "search"}
	params.Set("utm_source", sources[rng.IntN(len(sources))])
	if rng.IntN(2) == 0 {
		params.Set("ref", "value"+strconv.Itoa(rng.IntN(100)))
	}
	return path + "?" + params.Encode()
}
