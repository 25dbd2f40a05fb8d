package geoip

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
	"github.com/redis/go-redis/v9"
)

const redisKeyPrefix = "engagely:geoip:"

// Cache stores resolved locations by IP address.
type Cache interface {
	Get(ctx context.Context, ip string) (Location, bool)
	Set(ctx context.Context, ip string, loc Location)
}

// MemoryCache is a process-local LRU with per-entry expiry.
type MemoryCache struct {
	lru *expirable.LRU[string, Location]
}

func NewMemoryCache(size int, ttl time.Duration) *MemoryCache {
	return &MemoryCache{lru: expirable.NewLRU[string, Location](size, nil, ttl)}
}

func (c *MemoryCache) Get(_ context.Context, ip string) (Location, bool) {
	return c.lru.Get(ip)
}

func (c *MemoryCache) Set(_ context.Context, ip string, loc Location) {
	c.lru.Add(ip, loc)
}

// Len returns the number of live entries.
func (c *MemoryCache) Len() int {
	return c.lru.Len()
}

// RedisCache shares resolved locations between processes.
type RedisCache struct {
	client *redis.Client
	ttl    time.Duration
	logger *slog.Logger
}

func NewRedisCache(client *redis.Client, ttl time.Duration, logger *slog.Logger) *RedisCache {
	return &RedisCache{client: client, ttl: ttl, logger: logger}
}

// NewRedisClient parses a redis:// URL.
func NewRedisClient(url string) (*redis.Client, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("invalid redis url: %w", err)
	}
	return redis.NewClient(opts), nil
}

func (c *RedisCache) Get(ctx context.Context, ip string) (Location, bool) {
	raw, err := c.client.Get(ctx, redisKeyPrefix+ip).Bytes()
	if errors.Is(err, redis.Nil) {
		return Location{}, false
	}
	if err != nil {
		c.logger.Warn("Geolocation cache read failed", slog.String("ip", ip), slog.Any("error", err))
		return Location{}, false
	}

	var loc Location
	if err := json.Unmarshal(raw, &loc); err != nil {
		c.logger.Warn("Discarding corrupt geolocation cache entry", slog.String("ip", ip), slog.Any("error", err))
		return Location{}, false
	}
	return loc, true
}

func (c *RedisCache) Set(ctx context.Context, ip string, loc Location) {
	raw, err := json.Marshal(loc)
	if err != nil {
		return
	}
	if err := c.client.Set(ctx, redisKeyPrefix+ip, raw, c.ttl).Err(); err != nil {
		c.logger.Warn("Geolocation cache write failed", slog.String("ip", ip), slog.Any("error", err))
	}
}
