package cache

import (
	"context"
	"crypto/sha256"
	"encoding/json"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"
	"golang.org/x/sync/singleflight"

	"github.com/shimonpozd/astra-sub000/internal/models"
	"github.com/shimonpozd/astra-sub000/pkg/logger"
)

const keyPrefix = "recall:"

// RecallCache is a short-TTL Redis cache over fused recall results,
// combined with request coalescing: concurrent identical misses share
// one computation instead of stampeding the backends.
type RecallCache struct {
	rdb   *redis.Client
	ttl   time.Duration
	log   *logger.Logger
	group singleflight.Group
}

// New creates a RecallCache.
func New(rdb *redis.Client, ttl time.Duration, log *logger.Logger) *RecallCache {
	return &RecallCache{rdb: rdb, ttl: ttl, log: log}
}

// Key derives the cache key from the request identity. Session and
// collection are deliberately excluded: recall results are per-user and
// per-query, and a session switch must not cold-start the cache.
func Key(userID, query string, k int) string {
	sum := sha256.Sum256([]byte(fmt.Sprintf("%s|%s|%d", userID, query, k)))
	return keyPrefix + fmt.Sprintf("%x", sum)
}

// GetOrCompute returns the cached result for key, or runs compute once
// for all concurrent callers and caches its result. The second return
// value reports whether the result came from the cache.
func (c *RecallCache) GetOrCompute(ctx context.Context, key string, compute func() ([]models.Candidate, error)) ([]models.Candidate, bool, error) {
	type outcome struct {
		results []models.Candidate
		cached  bool
	}

	v, err, _ := c.group.Do(key, func() (interface{}, error) {
		if results, ok := c.get(ctx, key); ok {
			return outcome{results: results, cached: true}, nil
		}

		results, err := compute()
		if err != nil {
			return nil, err
		}
		c.set(ctx, key, results)
		return outcome{results: results}, nil
	})
	if err != nil {
		// drop the flight so the next caller retries instead of
		// observing a stale in-progress entry
		c.group.Forget(key)
		return nil, false, err
	}

	out := v.(outcome)
	return out.results, out.cached, nil
}

func (c *RecallCache) get(ctx context.Context, key string) ([]models.Candidate, bool) {
	raw, err := c.rdb.Get(ctx, key).Bytes()
	if err != nil {
		if err != redis.Nil {
			c.log.WithError(models.ErrorInfo{Message: err.Error(), Type: "cache"}).
				Warn("recall cache read failed, treating as miss")
		}
		return nil, false
	}
	var results []models.Candidate
	if err := json.Unmarshal(raw, &results); err != nil {
		return nil, false
	}
	return results, true
}

func (c *RecallCache) set(ctx context.Context, key string, results []models.Candidate) {
	raw, err := json.Marshal(results)
	if err != nil {
		return
	}
	if err := c.rdb.Set(ctx, key, raw, c.ttl).Err(); err != nil {
		c.log.WithError(models.ErrorInfo{Message: err.Error(), Type: "cache"}).
			Warn("recall cache write failed")
	}
}
