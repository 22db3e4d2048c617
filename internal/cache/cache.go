// Package cache keeps short-lived gateway state in Redis: read-through copies
// of persisted analyses and the fixed-window request counters behind rate
// limiting.
package cache

import (
	"context"
	"errors"
	"time"

	"github.com/kiranshivaraju/orthogate/internal/config"
	"github.com/redis/go-redis/v9"
)

// DefaultAnalysisTTL applies when the config leaves the analysis TTL unset.
const DefaultAnalysisTTL = 10 * time.Minute

// AnalysisCache holds encoded analysis documents by analysis id.
// Implementations must be safe for concurrent use.
type AnalysisCache interface {
	GetAnalysis(ctx context.Context, analysisID string) ([]byte, bool, error)
	PutAnalysis(ctx context.Context, analysisID string, doc []byte) error
}

// WindowCounter counts requests per API key prefix in fixed windows. The
// first hit opens a window; later hits never extend it.
type WindowCounter interface {
	Hit(ctx context.Context, keyPrefix string, window time.Duration) (count int64, resetIn time.Duration, err error)
}

// RedisCache implements AnalysisCache and WindowCounter using go-redis/v9.
type RedisCache struct {
	client      *redis.Client
	analysisTTL time.Duration
}

// NewRedisCache creates a RedisCache from cfg. It does not dial; call Ping.
func NewRedisCache(cfg config.RedisConfig) (*RedisCache, error) {
	opts, err := redis.ParseURL(cfg.URL)
	if err != nil {
		return nil, err
	}
	ttl := cfg.AnalysisTTL
	if ttl <= 0 {
		ttl = DefaultAnalysisTTL
	}
	return &RedisCache{client: redis.NewClient(opts), analysisTTL: ttl}, nil
}

func (c *RedisCache) Ping(ctx context.Context) error {
	return c.client.Ping(ctx).Err()
}

func (c *RedisCache) GetAnalysis(ctx context.Context, analysisID string) ([]byte, bool, error) {
	val, err := c.client.Get(ctx, AnalysisKey(analysisID)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	return val, true, nil
}

// PutAnalysis stores doc for the configured analysis TTL. Stored analyses
// never change, so entries are only ever dropped by expiry.
func (c *RedisCache) PutAnalysis(ctx context.Context, analysisID string, doc []byte) error {
	return c.client.Set(ctx, AnalysisKey(analysisID), doc, c.analysisTTL).Err()
}

// Hit counts one request against keyPrefix's current window and reports how
// long until that window closes.
func (c *RedisCache) Hit(ctx context.Context, keyPrefix string, window time.Duration) (int64, time.Duration, error) {
	key := RateLimitKey(keyPrefix)
	pipe := c.client.TxPipeline()
	incr := pipe.Incr(ctx, key)
	pipe.ExpireNX(ctx, key, window)
	ttl := pipe.PTTL(ctx, key)
	if _, err := pipe.Exec(ctx); err != nil {
		return 0, 0, err
	}

	resetIn := ttl.Val()
	if resetIn <= 0 || resetIn > window {
		resetIn = window
	}
	return incr.Val(), resetIn, nil
}

// Close releases the underlying connection pool.
func (c *RedisCache) Close() error {
	return c.client.Close()
}

var (
	_ AnalysisCache = (*RedisCache)(nil)
	_ WindowCounter = (*RedisCache)(nil)
)
