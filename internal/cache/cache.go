// Package cache provides an optional Redis-backed answer cache.
// Cache failures are never fatal: a miss or an error falls through to the
// full pipeline.
package cache

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"sort"
	"strings"
	"time"

	"github.com/BaSui01/ragflow/config"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

const keyPrefix = "ragflow:answer:"

// AnswerCache caches rendered answers keyed by normalized query and role set.
type AnswerCache struct {
	client *redis.Client
	ttl    time.Duration
	logger *zap.Logger
}

// New creates an answer cache from config. Returns nil when disabled;
// a nil *AnswerCache is safe to use and behaves as a permanent miss.
func New(cfg config.RedisConfig, logger *zap.Logger) *AnswerCache {
	if !cfg.Enabled {
		return nil
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	ttl := cfg.TTL
	if ttl == 0 {
		ttl = 5 * time.Minute
	}

	return &AnswerCache{
		client: client,
		ttl:    ttl,
		logger: logger.With(zap.String("component", "answer_cache")),
	}
}

// NewWithClient wires an explicit client; used by tests.
func NewWithClient(client *redis.Client, ttl time.Duration, logger *zap.Logger) *AnswerCache {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &AnswerCache{client: client, ttl: ttl, logger: logger}
}

// Key derives a stable cache key from the query and the requester's roles.
func Key(query string, roles []string) string {
	sorted := append([]string(nil), roles...)
	sort.Strings(sorted)

	h := sha256.Sum256([]byte(strings.ToLower(strings.TrimSpace(query)) + "|" + strings.Join(sorted, ",")))
	return keyPrefix + hex.EncodeToString(h[:])
}

// Get returns the cached value unmarshalled into out, reporting whether it hit.
func (c *AnswerCache) Get(ctx context.Context, key string, out any) bool {
	if c == nil {
		return false
	}

	data, err := c.client.Get(ctx, key).Bytes()
	if err != nil {
		if !errors.Is(err, redis.Nil) {
			c.logger.Warn("cache get failed", zap.Error(err))
		}
		return false
	}
	if err := json.Unmarshal(data, out); err != nil {
		c.logger.Warn("cache entry corrupt, treating as miss", zap.Error(err))
		return false
	}
	return true
}

// Set stores value under key. Failures are logged and ignored.
func (c *AnswerCache) Set(ctx context.Context, key string, value any) {
	if c == nil {
		return
	}

	data, err := json.Marshal(value)
	if err != nil {
		c.logger.Warn("cache marshal failed", zap.Error(err))
		return
	}
	if err := c.client.Set(ctx, key, data, c.ttl).Err(); err != nil {
		c.logger.Warn("cache set failed", zap.Error(err))
	}
}

// Close releases the underlying client.
func (c *AnswerCache) Close() error {
	if c == nil {
		return nil
	}
	return c.client.Close()
}
