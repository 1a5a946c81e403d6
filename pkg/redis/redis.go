// Package redis implements the optional cross-run match cache on go-redis.
// Only final match decisions are cached; indexes and scorer corpora are
// rebuilt fresh for every state.
package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/covidschooldata/pipeline/internal/linkage/matcher"
	"github.com/covidschooldata/pipeline/pkg/config"
)

// MatchCache implements matcher.Cache on a Redis backend.
type MatchCache struct {
	rdb *redis.Client
	ttl time.Duration
}

// NewMatchCache creates the cache client and verifies the connection with
// a ping.
func NewMatchCache(cfg config.RedisConfig) (*MatchCache, error) {
	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
		PoolSize: cfg.PoolSize,
	})
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := rdb.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("redis ping failed: %w", err)
	}
	return &MatchCache{rdb: rdb, ttl: cfg.CacheTTL}, nil
}

// Close releases the client.
func (c *MatchCache) Close() error {
	return c.rdb.Close()
}

func cacheKey(scope, query string) string {
	return "match:" + scope + ":" + query
}

// Get returns the cached matches for (scope, query); ok is false on a
// miss.
func (c *MatchCache) Get(ctx context.Context, scope, query string) ([]matcher.Match, bool, error) {
	data, err := c.rdb.Get(ctx, cacheKey(scope, query)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("cache get: %w", err)
	}
	var matches []matcher.Match
	if err := json.Unmarshal(data, &matches); err != nil {
		return nil, false, fmt.Errorf("cache decode: %w", err)
	}
	return matches, true, nil
}

// Put stores the matches for (scope, query) with the configured TTL.
func (c *MatchCache) Put(ctx context.Context, scope, query string, matches []matcher.Match) error {
	data, err := json.Marshal(matches)
	if err != nil {
		return fmt.Errorf("cache encode: %w", err)
	}
	if err := c.rdb.Set(ctx, cacheKey(scope, query), data, c.ttl).Err(); err != nil {
		return fmt.Errorf("cache set: %w", err)
	}
	return nil
}
