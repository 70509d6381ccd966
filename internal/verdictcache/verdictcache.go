// Package verdictcache caches classification verdicts in Redis, keyed by a
// hash of the digest text. The digest is byte-deterministic for a given
// matched-event sequence, so identical scans can reuse an earlier verdict
// instead of calling the classifier again.
//
// The cache is strictly optional: every failure degrades to a miss and the
// caller proceeds with a normal classifier call. Erred results are never
// cached, so a transient classifier outage cannot poison future sessions.
package verdictcache

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/ptnguyen/devsentry/internal/model"
)

const keyPrefix = "devsentry:verdict:"

// Config holds cache connection settings.
type Config struct {
	Addr string
	DB   int
	TTL  time.Duration
}

// Cache wraps the Redis connection.
type Cache struct {
	rdb    *redis.Client
	ttl    time.Duration
	logger *zap.Logger
}

// New creates a verdict cache. The connection is lazy; a down Redis shows up
// as misses, not construction errors.
func New(cfg Config, logger *zap.Logger) *Cache {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Cache{
		rdb: redis.NewClient(&redis.Options{
			Addr: cfg.Addr,
			DB:   cfg.DB,
		}),
		ttl:    cfg.TTL,
		logger: logger,
	}
}

// Key derives the cache key for a digest text.
func Key(digestText string) string {
	sum := sha256.Sum256([]byte(digestText))
	return keyPrefix + hex.EncodeToString(sum[:])
}

// Get returns the cached verdict for the digest, if present.
func (c *Cache) Get(ctx context.Context, digestText string) (*model.ClassificationResult, bool) {
	data, err := c.rdb.Get(ctx, Key(digestText)).Bytes()
	if err != nil {
		if !errors.Is(err, redis.Nil) {
			c.logger.Debug("verdict cache get failed", zap.Error(err))
		}
		return nil, false
	}
	var res model.ClassificationResult
	if err := json.Unmarshal(data, &res); err != nil {
		c.logger.Warn("discarding undecodable cached verdict", zap.Error(err))
		return nil, false
	}
	return &res, true
}

// Put stores a verdict under the digest's key with the configured TTL.
// Erred results are dropped.
func (c *Cache) Put(ctx context.Context, digestText string, res model.ClassificationResult) {
	if res.Erred {
		return
	}
	data, err := json.Marshal(res)
	if err != nil {
		c.logger.Warn("encoding verdict for cache failed", zap.Error(err))
		return
	}
	if err := c.rdb.Set(ctx, Key(digestText), data, c.ttl).Err(); err != nil {
		c.logger.Debug("verdict cache put failed", zap.Error(err))
	}
}

// Close releases the Redis connection.
func (c *Cache) Close() error {
	return c.rdb.Close()
}
