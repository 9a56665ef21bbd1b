package oracle

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"net/url"
	"strings"
	"sync/atomic"
	"time"

	"github.com/go-redis/redis/v8"
	"go.uber.org/zap"
)

// CacheConfig contains verdict cache configuration.
type CacheConfig struct {
	RedisURL       string
	MaxConnections int
	MinIdleConns   int
	DefaultTTL     time.Duration
	KeyPrefix      string
}

// CachedClient wraps another Client with a Redis verdict cache keyed by the
// candidate text and history snapshot. Cache failures fall through to the
// inner client: the cache is an optimization, never a gatekeeper.
type CachedClient struct {
	inner  Client
	client *redis.Client
	config CacheConfig
	logger *zap.Logger
	hits   atomic.Int64
	misses atomic.Int64
}

// NewCachedClient creates a Redis-backed verdict cache in front of inner.
func NewCachedClient(config CacheConfig, inner Client, logger *zap.Logger) (*CachedClient, error) {
	opts, err := redis.ParseURL(config.RedisURL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse Redis URL: %w", err)
	}

	opts.PoolSize = config.MaxConnections
	opts.MinIdleConns = config.MinIdleConns

	client := redis.NewClient(opts)

	// Test connection
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if _, err := client.Ping(ctx).Result(); err != nil {
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}

	logger.Info("Verdict cache initialized",
		zap.String("redis_url", maskRedisURL(config.RedisURL)),
		zap.Duration("default_ttl", config.DefaultTTL),
	)

	return &CachedClient{
		inner:  inner,
		client: client,
		config: config,
		logger: logger,
	}, nil
}

// Judge returns a cached verdict for identical content when one exists,
// otherwise consults the inner client and caches its answer.
func (c *CachedClient) Judge(ctx context.Context, candidate string, history []string) (string, error) {
	key := c.verdictKey(candidate, history)

	cached, err := c.client.Get(ctx, key).Result()
	switch {
	case err == nil:
		c.hits.Add(1)
		c.logger.Debug("Verdict cache hit", zap.String("key", key))
		return cached, nil
	case err == redis.Nil:
		c.misses.Add(1)
	default:
		// Treat lookup failures like misses and keep going.
		c.logger.Error("Verdict cache lookup failed", zap.Error(err))
	}

	verdict, err := c.inner.Judge(ctx, candidate, history)
	if err != nil {
		return "", err
	}

	if err := c.client.Set(ctx, key, verdict, c.config.DefaultTTL).Err(); err != nil {
		c.logger.Error("Failed to cache verdict", zap.Error(err))
	}
	return verdict, nil
}

// Stats returns cache hit and miss counts.
func (c *CachedClient) Stats() (hits, misses int64) {
	return c.hits.Load(), c.misses.Load()
}

// Close releases the Redis connection pool.
func (c *CachedClient) Close() error {
	return c.client.Close()
}

// verdictKey hashes the candidate and history into a stable cache key.
func (c *CachedClient) verdictKey(candidate string, history []string) string {
	h := sha256.New()
	h.Write([]byte(candidate))
	h.Write([]byte{0})
	h.Write([]byte(strings.Join(history, "\n")))
	return c.config.KeyPrefix + hex.EncodeToString(h.Sum(nil))
}

// maskRedisURL hides credentials for logging.
func maskRedisURL(rawURL string) string {
	parsed, err := url.Parse(rawURL)
	if err != nil {
		return "redis://***"
	}
	if parsed.User != nil {
		parsed.User = url.User("***")
	}
	return parsed.String()
}
