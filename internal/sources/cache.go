package sources

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	goredis "github.com/redis/go-redis/v9"

	"github.com/pbaille/nutrilog/internal/domain"
	"github.com/pbaille/nutrilog/internal/logger"
)

const cacheKeyPrefix = "nutrilog:search:"

// Cache stores name-search results keyed by source and query
type Cache interface {
	Get(ctx context.Context, key string) ([]domain.Food, bool, error)
	Set(ctx context.Context, key string, foods []domain.Food, ttl time.Duration) error
}

// RedisCache is a Cache shared between processes
type RedisCache struct {
	rdb *goredis.Client
}

// NewRedisCache connects to addr and pings it
func NewRedisCache(ctx context.Context, addr string) (*RedisCache, error) {
	addr = strings.TrimSpace(addr)
	if addr == "" {
		return nil, fmt.Errorf("missing redis address")
	}
	rdb := goredis.NewClient(&goredis.Options{
		Addr:        addr,
		DialTimeout: 5 * time.Second,
	})

	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("redis ping: %w", err)
	}
	return &RedisCache{rdb: rdb}, nil
}

func (r *RedisCache) Get(ctx context.Context, key string) ([]domain.Food, bool, error) {
	raw, err := r.rdb.Get(ctx, key).Bytes()
	if errors.Is(err, goredis.Nil) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	var foods []domain.Food
	if err := json.Unmarshal(raw, &foods); err != nil {
		return nil, false, fmt.Errorf("decode cached foods: %w", err)
	}
	return foods, true, nil
}

func (r *RedisCache) Set(ctx context.Context, key string, foods []domain.Food, ttl time.Duration) error {
	raw, err := json.Marshal(foods)
	if err != nil {
		return err
	}
	return r.rdb.Set(ctx, key, raw, ttl).Err()
}

func (r *RedisCache) Close() error {
	return r.rdb.Close()
}

// Cached is a NameSearcher that consults a Cache before the wrapped source.
// Cache failures are logged and the source is queried directly.
type Cached struct {
	source string
	src    NameSearcher
	cache  Cache
	ttl    time.Duration
	log    *logger.Logger
}

func NewCached(source string, src NameSearcher, cache Cache, ttl time.Duration, log *logger.Logger) *Cached {
	if log == nil {
		log = logger.Nop()
	}
	return &Cached{source: source, src: src, cache: cache, ttl: ttl, log: log.With("component", "search_cache")}
}

func (c *Cached) SearchByName(ctx context.Context, query string) ([]domain.Food, error) {
	key := cacheKeyPrefix + c.source + ":" + strings.ToLower(strings.TrimSpace(query))

	foods, ok, err := c.cache.Get(ctx, key)
	if err != nil {
		c.log.Warn("Search cache read failed", "key", key, "error", err)
	} else if ok {
		return foods, nil
	}

	foods, err = c.src.SearchByName(ctx, query)
	if err != nil {
		return nil, err
	}
	if err := c.cache.Set(ctx, key, foods, c.ttl); err != nil {
		c.log.Warn("Search cache write failed", "key", key, "error", err)
	}
	return foods, nil
}
