// Package cache provides a Redis-backed evaluation cache shared between
// engine instances.
package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/redis/go-redis/v9"

	"github.com/wolfinder/badges/internal/domain/evalcache"
	"github.com/wolfinder/badges/internal/domain/model"
	"github.com/wolfinder/badges/pkg/logger"
	"github.com/wolfinder/badges/pkg/metrics"
)

// DefaultPrefix namespaces every key written by RedisCache.
const DefaultPrefix = "wolfinder"

// Option applies a configuration option to the RedisCache.
type Option func(*RedisCache)

// WithPrefix sets the key prefix.
func WithPrefix(prefix string) Option {
	return func(c *RedisCache) {
		if prefix != "" {
			c.prefix = prefix
		}
	}
}

// WithTTL sets the entry lifetime.
func WithTTL(ttl time.Duration) Option {
	return func(c *RedisCache) {
		if ttl > 0 {
			c.ttl = ttl
		}
	}
}

// WithLogger sets the logger used to report degraded operations.
func WithLogger(l logger.Logger) Option {
	return func(c *RedisCache) {
		if l != nil {
			c.log = l
		}
	}
}

// RedisCache implements evalcache.Cache on Redis. Redis failures are logged
// and treated as misses so evaluation never fails because of the cache.
type RedisCache struct {
	client redis.UniversalClient
	prefix string
	ttl    time.Duration
	log    logger.Logger
}

var _ evalcache.Cache = (*RedisCache)(nil)

// New wraps an existing client.
func New(client redis.UniversalClient, opts ...Option) *RedisCache {
	c := &RedisCache{
		client: client,
		prefix: DefaultPrefix,
		ttl:    evalcache.DefaultTTL,
		log:    logger.Nop(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Dial parses url, connects and waits for the server to answer PING,
// retrying with exponential backoff up to maxWait.
func Dial(ctx context.Context, url string, maxWait time.Duration, opts ...Option) (*RedisCache, error) {
	options, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}
	client := redis.NewClient(options)
	c := New(client, opts...)

	b := backoff.NewExponentialBackOff()
	b.MaxElapsedTime = maxWait
	err = backoff.RetryNotify(
		func() error { return client.Ping(ctx).Err() },
		backoff.WithContext(b, ctx),
		func(err error, d time.Duration) {
			c.log.Warn(ctx, "redis not ready, retrying", logger.Duration("backoff", d), logger.Error(err))
		},
	)
	if err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("ping redis: %w", err)
	}
	return c, nil
}

// Key returns the Redis key holding the evaluation of professionalID.
func (c *RedisCache) Key(professionalID int64) string {
	return c.prefix + ":eval:" + strconv.FormatInt(professionalID, 10)
}

// Get implements evalcache.Cache.
func (c *RedisCache) Get(ctx context.Context, professionalID int64) ([]model.EvaluationResult, bool) {
	raw, err := c.client.Get(ctx, c.Key(professionalID)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, false
	}
	if err != nil {
		c.degraded(ctx, "get", professionalID, err)
		return nil, false
	}
	var results []model.EvaluationResult
	if err := json.Unmarshal(raw, &results); err != nil {
		c.degraded(ctx, "decode", professionalID, err)
		return nil, false
	}
	return results, true
}

// Set implements evalcache.Cache.
func (c *RedisCache) Set(ctx context.Context, professionalID int64, results []model.EvaluationResult) {
	raw, err := json.Marshal(results)
	if err != nil {
		c.degraded(ctx, "encode", professionalID, err)
		return
	}
	if err := c.client.Set(ctx, c.Key(professionalID), raw, c.ttl).Err(); err != nil {
		c.degraded(ctx, "set", professionalID, err)
	}
}

// Invalidate implements evalcache.Cache.
func (c *RedisCache) Invalidate(ctx context.Context, professionalID int64) {
	if err := c.client.Del(ctx, c.Key(professionalID)).Err(); err != nil {
		c.degraded(ctx, "invalidate", professionalID, err)
	}
}

// Len counts the evaluation keys under the prefix. It returns 0 when Redis
// cannot be reached.
func (c *RedisCache) Len() int {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	n := 0
	iter := c.client.Scan(ctx, 0, c.prefix+":eval:*", 100).Iterator()
	for iter.Next(ctx) {
		n++
	}
	if err := iter.Err(); err != nil {
		c.degraded(ctx, "len", 0, err)
		return 0
	}
	return n
}

// Close closes the client.
func (c *RedisCache) Close() error {
	return c.client.Close()
}

func (c *RedisCache) degraded(ctx context.Context, op string, professionalID int64, err error) {
	metrics.RecordCacheError(op)
	c.log.Warn(ctx, "evaluation cache degraded",
		logger.String("operation", op),
		logger.Int64("professional_id", professionalID),
		logger.Error(err))
}
