package geoip

import (
	"context"
	"io"
	"log/slog"
	"math/rand/v2"
	"net/netip"
	"strings"
	"time"

	"golang.org/x/sync/singleflight"

	"engagely/internal/config"
	"engagely/internal/metrics"
)

// Locator resolves an IP address to a location. It never fails: unresolvable
// addresses yield Unknown().
type Locator interface {
	Lookup(ctx context.Context, ip string) Location
}

// Options wires a Service. Local providers are tried first in order, remote
// providers afterwards in random order.
type Options struct {
	Enabled bool
	Timeout time.Duration
	Cache   Cache
	Local   []Provider
	Remote  []Provider
	Logger  *slog.Logger
	Closers []io.Closer
}

// Service is the default Locator.
type Service struct {
	enabled bool
	timeout time.Duration
	cache   Cache
	local   []Provider
	remote  []Provider
	group   singleflight.Group
	logger  *slog.Logger
	closers []io.Closer
	shuffle func(n int, swap func(i, j int))
}

func NewService(opts Options) *Service {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &Service{
		enabled: opts.Enabled,
		timeout: timeout,
		cache:   opts.Cache,
		local:   opts.Local,
		remote:  opts.Remote,
		logger:  logger,
		closers: opts.Closers,
		shuffle: rand.Shuffle,
	}
}

// NewFromConfig builds the Service described by cfg.
func NewFromConfig(cfg *config.Config, logger *slog.Logger) *Service {
	opts := Options{
		Enabled: cfg.GeolocationEnabled,
		Timeout: cfg.GeolocationTimeout(),
		Logger:  logger,
	}

	opts.Cache = NewMemoryCache(cfg.GeolocationCacheSize, cfg.GeolocationCacheTTL())
	if cfg.GeolocationCacheBackend == config.CacheBackendRedis && cfg.RedisURL != "" {
		client, err := NewRedisClient(cfg.RedisURL)
		if err != nil {
			logger.Warn("Falling back to in-memory geolocation cache", slog.Any("error", err))
		} else {
			opts.Cache = NewRedisCache(client, cfg.GeolocationCacheTTL(), logger)
			opts.Closers = append(opts.Closers, client)
		}
	}

	for _, name := range cfg.GeolocationProviders {
		name = strings.ToLower(strings.TrimSpace(name))
		if name == ProviderMaxMind {
			if mm := OpenMaxMind(cfg.GeoDBPath, logger); mm != nil {
				opts.Local = append(opts.Local, mm)
				opts.Closers = append(opts.Closers, mm)
			}
			continue
		}
		p, err := NewHTTPProvider(HTTPProviderOptions{
			Name:          name,
			RatePerMinute: cfg.GeolocationRatePerMinute,
			Logger:        logger,
		})
		if err != nil {
			logger.Warn("Ignoring geolocation provider", slog.String("provider", name), slog.Any("error", err))
			continue
		}
		opts.Remote = append(opts.Remote, p)
	}

	return NewService(opts)
}

// Lookup resolves ip, consulting the cache first. Concurrent lookups for the
// same address share one provider round trip.
func (s *Service) Lookup(ctx context.Context, ip string) Location {
	addr, err := netip.ParseAddr(strings.TrimSpace(ip))
	if err != nil {
		metrics.RecordGeoLookup("invalid")
		return Unknown()
	}
	addr = addr.Unmap()

	if !s.enabled {
		return Unknown()
	}
	if isReserved(addr) {
		metrics.RecordGeoLookup("development")
		return developmentLocation(addr)
	}

	key := addr.String()
	if s.cache != nil {
		if loc, ok := s.cache.Get(ctx, key); ok {
			metrics.RecordGeoLookup("cache")
			return loc
		}
	}

	// The shared lookup outlives a caller that gives up, so the result still
	// reaches the cache and the other waiters.
	ch := s.group.DoChan(key, func() (any, error) {
		lookupCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.timeout)
		defer cancel()

		loc, source := s.resolve(lookupCtx, addr)
		metrics.RecordGeoLookup(source)
		if loc.valid() && s.cache != nil {
			s.cache.Set(lookupCtx, key, loc)
		}
		return loc, nil
	})
	select {
	case res := <-ch:
		return res.Val.(Location)
	case <-ctx.Done():
		metrics.RecordGeoLookup("abandoned")
		return Unknown()
	}
}

func (s *Service) resolve(ctx context.Context, addr netip.Addr) (Location, string) {
	remote := make([]Provider, len(s.remote))
	copy(remote, s.remote)
	s.shuffle(len(remote), func(i, j int) { remote[i], remote[j] = remote[j], remote[i] })

	for _, p := range append(append([]Provider{}, s.local...), remote...) {
		if ctx.Err() != nil {
			break
		}
		loc, err := p.Lookup(ctx, addr)
		if err != nil {
			s.logger.Debug("Geolocation provider failed",
				slog.String("provider", p.Name()),
				slog.String("ip", addr.String()),
				slog.Any("error", err))
			continue
		}
		if loc.valid() {
			return loc, p.Name()
		}
	}
	return Unknown(), "unknown"
}


// Reloader is a provider backed by a file that can be reopened.
type Reloader interface {
	Reload() error
}

// ReloadLocal reopens every local provider that supports it.
func (s *Service) ReloadLocal() error {
	var firstErr error
	for _, p := range s.local {
		if r, ok := p.(Reloader); ok {
			if err := r.Reload(); err != nil && firstErr == nil {
				firstErr = err
			}
		}
	}
	return firstErr
}

// Close releases the database reader and cache connections.
func (s *Service) Close() error {
	var firstErr error
	for _, c := range s.closers {
		if err := c.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}
