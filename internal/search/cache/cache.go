// Package cache keeps recent search responses in Redis. Entries are keyed by a
// hash of the compiled request body and a generation counter; bumping the
// generation on every index write makes all earlier entries unreachable.
package cache

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"marketplace-search/internal/common/logger"
	"marketplace-search/internal/common/metrics"
	"marketplace-search/internal/models"
)

type Config struct {
	Prefix string
	TTL    time.Duration
}

type Cache struct {
	client *redis.Client
	config Config
	logger logger.Logger
}

func New(client *redis.Client, config Config, log logger.Logger) *Cache {
	if config.Prefix == "" {
		config.Prefix = "search"
	}
	if config.TTL <= 0 {
		config.TTL = 30 * time.Second
	}
	return &Cache{client: client, config: config, logger: log}
}

func (c *Cache) generationKey() string {
	return c.config.Prefix + ":gen"
}

// Key derives the cache key of a search body under the current generation.
func (c *Cache) Key(ctx context.Context, body map[string]interface{}) (string, error) {
	gen, err := c.client.Get(ctx, c.generationKey()).Result()
	if errors.Is(err, redis.Nil) {
		gen = "0"
	} else if err != nil {
		return "", fmt.Errorf("read cache generation: %w", err)
	}

	payload, err := json.Marshal(body)
	if err != nil {
		return "", fmt.Errorf("encode cache key: %w", err)
	}
	sum := sha256.Sum256(payload)
	return fmt.Sprintf("%s:%s:%s", c.config.Prefix, gen, hex.EncodeToString(sum[:])), nil
}

// Get returns the cached response for key. Any Redis failure is a miss.
func (c *Cache) Get(ctx context.Context, key string) (*models.SearchResponse, bool) {
	val, err := c.client.Get(ctx, key).Bytes()
	if err != nil {
		if !errors.Is(err, redis.Nil) {
			c.logger.Warn("Search cache read failed", map[string]interface{}{"error": err})
			metrics.CacheLookups.WithLabelValues("error").Inc()
			return nil, false
		}
		metrics.CacheLookups.WithLabelValues("miss").Inc()
		return nil, false
	}

	var resp models.SearchResponse
	if err := json.Unmarshal(val, &resp); err != nil {
		c.logger.Warn("Discarding undecodable cache entry", map[string]interface{}{"key": key, "error": err})
		metrics.CacheLookups.WithLabelValues("error").Inc()
		return nil, false
	}
	metrics.CacheLookups.WithLabelValues("hit").Inc()
	return &resp, true
}

// Set stores a response. Failures are logged and otherwise ignored.
func (c *Cache) Set(ctx context.Context, key string, resp *models.SearchResponse) {
	data, err := json.Marshal(resp)
	if err != nil {
		return
	}
	if err := c.client.Set(ctx, key, data, c.config.TTL).Err(); err != nil {
		c.logger.Warn("Search cache write failed", map[string]interface{}{"error": err})
	}
}

// Invalidate starts a new generation.
func (c *Cache) Invalidate(ctx context.Context) error {
	if err := c.client.Incr(ctx, c.generationKey()).Err(); err != nil {
		return fmt.Errorf("bump cache generation: %w", err)
	}
	return nil
}
