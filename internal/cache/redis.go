package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"

	"promptforge/internal/logging"
	"promptforge/internal/types"
)

// redisKeyPrefix namespaces our entries in a shared Redis.
const redisKeyPrefix = "promptforge:result:"

// Redis is a Store backed by a Redis instance, for deployments where several
// processes should share one result cache. Entries are stored as JSON with
// the configured TTL.
type Redis struct {
	client *redis.Client
	ttl    time.Duration
}

// NewRedis connects to the given URL (redis://host:port/db). A ttl <= 0
// stores entries without expiry.
func NewRedis(url string, ttl time.Duration) (*Redis, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("invalid redis url: %w", err)
	}
	if ttl < 0 {
		ttl = 0
	}
	return &Redis{client: redis.NewClient(opts), ttl: ttl}, nil
}

// Get fetches and decodes an entry. Redis errors and corrupt payloads degrade
// to a miss; the pipeline recomputes rather than failing the request.
func (r *Redis) Get(ctx context.Context, key string) (types.ImprovementResult, bool, error) {
	val, err := r.client.Get(ctx, redisKeyPrefix+key).Result()
	if err == redis.Nil {
		return types.ImprovementResult{}, false, nil
	}
	if err != nil {
		logging.Cache("Redis get failed for %.12s: %v", key, err)
		return types.ImprovementResult{}, false, nil
	}

	var result types.ImprovementResult
	if err := json.Unmarshal([]byte(val), &result); err != nil {
		logging.Cache("Corrupt redis entry %.12s, treating as miss: %v", key, err)
		return types.ImprovementResult{}, false, nil
	}
	return result, true, nil
}

// Put encodes and stores an entry under the configured TTL.
func (r *Redis) Put(ctx context.Context, key string, result types.ImprovementResult) error {
	payload, err := json.Marshal(result)
	if err != nil {
		return fmt.Errorf("failed to encode cache entry: %w", err)
	}
	if err := r.client.Set(ctx, redisKeyPrefix+key, payload, r.ttl).Err(); err != nil {
		return fmt.Errorf("redis set: %w", err)
	}
	return nil
}

// Ping verifies the connection; used at startup to fall back to the in-memory
// store when Redis is configured but unreachable.
func (r *Redis) Ping(ctx context.Context) error {
	return r.client.Ping(ctx).Err()
}

// Close releases the client.
func (r *Redis) Close() error {
	return r.client.Close()
}
