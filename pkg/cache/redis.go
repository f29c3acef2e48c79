// Package cache memoizes metric queries in Redis
package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/sirupsen/logrus"

	"github.com/Tsahi-Elkayam/sphinx/pkg/metrics"
	"github.com/Tsahi-Elkayam/sphinx/pkg/models"
)

const (
	// DefaultKeyPrefix namespaces cached query results
	DefaultKeyPrefix = "sphinx:metrics"
	// DefaultTTL is how long a cached result stays valid
	DefaultTTL = time.Minute
	// KeyResolution is the granularity windows are aligned to before keying
	KeyResolution = time.Minute
)

// Lookup results reported to the metrics package
const (
	LookupHit   = "hit"
	LookupMiss  = "miss"
	LookupError = "error"
)

// Client is the subset of the redis client the cache needs
type Client interface {
	Get(ctx context.Context, key string) *redis.StringCmd
	Set(ctx context.Context, key string, value interface{}, expiration time.Duration) *redis.StatusCmd
	Ping(ctx context.Context) *redis.StatusCmd
	Close() error
}

// Source is the metric source being cached
type Source interface {
	Fetch(ctx context.Context, query string, start, end time.Time) ([]models.Metric, error)
}

// Options tunes the cache
type Options struct {
	TTL       time.Duration
	KeyPrefix string
}

// MetricCache is a read-through cache in front of a metric source.
// Redis failures never fail a fetch; they fall through to the source.
type MetricCache struct {
	client Client
	source Source
	ttl    time.Duration
	prefix string
	logger *logrus.Logger
}

// NewRedisClient connects to Redis and verifies the connection
func NewRedisClient(ctx context.Context, addr, password string, db int) (*redis.Client, error) {
	client := redis.NewClient(&redis.Options{
		Addr:         addr,
		Password:     password,
		DB:           db,
		PoolSize:     10,
		MinIdleConns: 2,
		DialTimeout:  5 * time.Second,
		ReadTimeout:  3 * time.Second,
		WriteTimeout: 3 * time.Second,
	})

	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}

	return client, nil
}

// NewMetricCache wraps source with a Redis-backed cache
func NewMetricCache(client Client, source Source, opts Options, logger *logrus.Logger) *MetricCache {
	if opts.TTL <= 0 {
		opts.TTL = DefaultTTL
	}
	if opts.KeyPrefix == "" {
		opts.KeyPrefix = DefaultKeyPrefix
	}
	if logger == nil {
		logger = logrus.New()
	}
	return &MetricCache{
		client: client,
		source: source,
		ttl:    opts.TTL,
		prefix: opts.KeyPrefix,
		logger: logger,
	}
}

// Key builds the cache key for a query over a window
func (c *MetricCache) Key(query string, start, end time.Time) string {
	return fmt.Sprintf("%s:%s:%d:%d", c.prefix, query,
		start.Truncate(KeyResolution).Unix(), end.Truncate(KeyResolution).Unix())
}

// Fetch returns the cached series for the window or fetches and stores them
func (c *MetricCache) Fetch(ctx context.Context, query string, start, end time.Time) ([]models.Metric, error) {
	key := c.Key(query, start, end)

	data, err := c.client.Get(ctx, key).Bytes()
	switch {
	case err == nil:
		var cached []models.Metric
		jsonErr := json.Unmarshal(data, &cached)
		if jsonErr == nil {
			metrics.ObserveCacheLookup(LookupHit)
			c.logger.Debugf("Metric cache hit for %q", query)
			return cached, nil
		}
		metrics.ObserveCacheLookup(LookupError)
		c.logger.Warnf("Discarding corrupt cache entry %s: %v", key, jsonErr)
	case errors.Is(err, redis.Nil):
		metrics.ObserveCacheLookup(LookupMiss)
	default:
		metrics.ObserveCacheLookup(LookupError)
		c.logger.Warnf("Metric cache lookup failed for %q: %v", query, err)
	}

	fetched, err := c.source.Fetch(ctx, query, start, end)
	if err != nil {
		return nil, err
	}

	c.store(ctx, key, fetched)
	return fetched, nil
}

func (c *MetricCache) store(ctx context.Context, key string, fetched []models.Metric) {
	if fetched == nil {
		fetched = []models.Metric{}
	}

	data, err := json.Marshal(fetched)
	if err != nil {
		c.logger.Warnf("Failed to encode metrics for cache: %v", err)
		return
	}

	if err := c.client.Set(ctx, key, data, c.ttl).Err(); err != nil {
		c.logger.Warnf("Failed to cache metrics under %s: %v", key, err)
	}
}

// Ping checks the Redis connection
func (c *MetricCache) Ping(ctx context.Context) error {
	return c.client.Ping(ctx).Err()
}

// Close closes the Redis connection
func (c *MetricCache) Close() error {
	return c.client.Close()
}
