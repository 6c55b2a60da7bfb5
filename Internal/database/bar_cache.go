package datafeed

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/fazecat/benfordscan/Internal/types"
	"github.com/fazecat/benfordscan/Internal/utils/config"
	"github.com/fazecat/benfordscan/Internal/utils/logger"
)

const cacheKeyPrefix = "benfordscan:bars:"

// SeriesLoader is anything that can produce a series for a symbol.
type SeriesLoader interface {
	LoadSeries(ctx context.Context, symbol string) (*types.Series, error)
}

// ByteStore is a TTL key/value store.
type ByteStore interface {
	GetBytes(ctx context.Context, key string) ([]byte, bool, error)
	SetBytes(ctx context.Context, key string, value []byte, ttl time.Duration) error
}

type RedisStore struct {
	cli *redis.Client
}

func NewRedisStore(cfg config.CacheConfig) *RedisStore {
	rdb := redis.NewClient(&redis.Options{Addr: cfg.Addr, Password: cfg.Password, DB: cfg.DB})
	return &RedisStore{cli: rdb}
}

func (r *RedisStore) GetBytes(ctx context.Context, key string) ([]byte, bool, error) {
	b, err := r.cli.Get(ctx, key).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, false, nil
		}
		return nil, false, err
	}
	return b, true, nil
}

func (r *RedisStore) SetBytes(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	return r.cli.Set(ctx, key, value, ttl).Err()
}

func (r *RedisStore) Ping(ctx context.Context) error {
	return r.cli.Ping(ctx).Err()
}

func (r *RedisStore) Close() error {
	return r.cli.Close()
}

// CachedFeed serves series from the store and falls through to the wrapped
// loader on a miss. Cache failures are logged and never fail a load.
type CachedFeed struct {
	next  SeriesLoader
	store ByteStore
	ttl   time.Duration
	scope string
	log   *logger.Logger
}

// NewCachedFeed wraps next. Entries are keyed by the feed and history length
// in feedCfg, so changing either never serves a stale series.
func NewCachedFeed(next SeriesLoader, store ByteStore, ttl time.Duration, feedCfg config.DataFeedConfig, log *logger.Logger) *CachedFeed {
	if log == nil {
		log = logger.Nop()
	}
	return &CachedFeed{next: next, store: store, ttl: ttl, scope: cacheScope(feedCfg), log: log}
}

func cacheScope(cfg config.DataFeedConfig) string {
	return fmt.Sprintf("%s:%dd", strings.ToLower(cfg.Feed), cfg.Days)
}

func cacheKey(scope, symbol string) string {
	return cacheKeyPrefix + scope + ":" + strings.ToUpper(symbol)
}

func (c *CachedFeed) LoadSeries(ctx context.Context, symbol string) (*types.Series, error) {
	key := cacheKey(c.scope, symbol)

	data, ok, err := c.store.GetBytes(ctx, key)
	if err != nil {
		c.log.Warn("bar cache read failed", logger.String("symbol", symbol), logger.Error(err))
	}
	if ok {
		var s types.Series
		if err := json.Unmarshal(data, &s); err == nil && s.Len() > 0 {
			return &s, nil
		}
		c.log.Warn("discarding unreadable cache entry", logger.String("symbol", symbol))
	}

	s, err := c.next.LoadSeries(ctx, symbol)
	if err != nil {
		return nil, err
	}

	// indicator columns may hold NaN, which JSON cannot carry
	data, err = json.Marshal(types.Series{Symbol: s.Symbol, Name: s.Name, Bars: s.Bars})
	if err != nil {
		return nil, fmt.Errorf("encode series %s: %w", symbol, err)
	}
	if err := c.store.SetBytes(ctx, key, data, c.ttl); err != nil {
		c.log.Warn("bar cache write failed", logger.String("symbol", symbol), logger.Error(err))
	}
	return s, nil
}
