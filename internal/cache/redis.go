package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// LeaderboardPattern matches every cached leaderboard page.
const LeaderboardPattern = "hoopelo:leaderboard:*"

// leaderboardGenerationKey counts leaderboard invalidations. It is outside
// LeaderboardPattern so invalidating never removes it.
const leaderboardGenerationKey = "hoopelo:leaderboard-generation"

// ErrMiss is returned by GetJSON when the key is absent.
var ErrMiss = errors.New("cache miss")

// RedisCache handles caching and fast state storage
type RedisCache struct {
	client *redis.Client
}

// NewRedisCache creates a new Redis cache connection
func NewRedisCache(redisURL string) (*RedisCache, error) {
	opt, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, err
	}

	client := redis.NewClient(opt)

	// Test connection
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, err
	}

	return &RedisCache{
		client: client,
	}, nil
}

// NewFromClient wraps an existing client
func NewFromClient(client *redis.Client) *RedisCache {
	return &RedisCache{client: client}
}

// Close closes the Redis connection
func (rc *RedisCache) Close() error {
	return rc.client.Close()
}

// Client returns the underlying Redis client
func (rc *RedisCache) Client() *redis.Client {
	return rc.client
}

// HealthCheck pings Redis to verify connection
func (rc *RedisCache) HealthCheck(ctx context.Context) error {
	return rc.client.Ping(ctx).Err()
}

// Set stores a key-value pair with TTL
func (rc *RedisCache) Set(ctx context.Context, key string, value interface{}, ttl time.Duration) error {
	return rc.client.Set(ctx, key, value, ttl).Err()
}

// Get retrieves a value by key
func (rc *RedisCache) Get(ctx context.Context, key string) (string, error) {
	return rc.client.Get(ctx, key).Result()
}

// Delete removes a key
func (rc *RedisCache) Delete(ctx context.Context, keys ...string) error {
	return rc.client.Del(ctx, keys...).Err()
}

// SetJSON stores value encoded as JSON
func (rc *RedisCache) SetJSON(ctx context.Context, key string, value interface{}, ttl time.Duration) error {
	data, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("encoding %s: %w", key, err)
	}
	return rc.client.Set(ctx, key, data, ttl).Err()
}

// GetJSON decodes the value stored at key into dest. It returns ErrMiss when
// the key does not exist.
func (rc *RedisCache) GetJSON(ctx context.Context, key string, dest interface{}) error {
	data, err := rc.client.Get(ctx, key).Bytes()
	if errors.Is(err, redis.Nil) {
		return ErrMiss
	}
	if err != nil {
		return err
	}
	if err := json.Unmarshal(data, dest); err != nil {
		return fmt.Errorf("decoding %s: %w", key, err)
	}
	return nil
}

// LeaderboardKey is the cache key of a leaderboard page of the given size.
func LeaderboardKey(limit int) string {
	return fmt.Sprintf("hoopelo:leaderboard:%d", limit)
}

// LeaderboardGeneration returns the number of invalidations so far. Read it
// before loading a page from the database and pass it to SetLeaderboardJSON.
func (rc *RedisCache) LeaderboardGeneration(ctx context.Context) (int64, error) {
	generation, err := rc.client.Get(ctx, leaderboardGenerationKey).Int64()
	if errors.Is(err, redis.Nil) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("reading leaderboard generation: %w", err)
	}
	return generation, nil
}

// SetLeaderboardJSON caches a leaderboard page loaded at generation. Nothing
// is written, and false is returned, when the leaderboards were invalidated
// after that generation was read.
func (rc *RedisCache) SetLeaderboardJSON(ctx context.Context, key string, value interface{}, ttl time.Duration, generation int64) (bool, error) {
	data, err := json.Marshal(value)
	if err != nil {
		return false, fmt.Errorf("encoding %s: %w", key, err)
	}

	stored := false
	err = rc.client.Watch(ctx, func(tx *redis.Tx) error {
		current, err := tx.Get(ctx, leaderboardGenerationKey).Int64()
		if err != nil && !errors.Is(err, redis.Nil) {
			return err
		}
		if current != generation {
			return nil
		}

		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Set(ctx, key, data, ttl)
			return nil
		})
		if err == nil {
			stored = true
		}
		return err
	}, leaderboardGenerationKey)

	if errors.Is(err, redis.TxFailedErr) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("caching %s: %w", key, err)
	}
	return stored, nil
}

// InvalidateLeaderboards drops every cached leaderboard page and returns how
// many keys were removed. The generation is bumped first so a page loaded
// before this call can no longer be written back.
func (rc *RedisCache) InvalidateLeaderboards(ctx context.Context) (int, error) {
	if err := rc.client.Incr(ctx, leaderboardGenerationKey).Err(); err != nil {
		return 0, fmt.Errorf("bumping leaderboard generation: %w", err)
	}

	var keys []string
	iter := rc.client.Scan(ctx, 0, LeaderboardPattern, 100).Iterator()
	for iter.Next(ctx) {
		keys = append(keys, iter.Val())
	}
	if err := iter.Err(); err != nil {
		return 0, fmt.Errorf("scanning leaderboard keys: %w", err)
	}
	if len(keys) == 0 {
		return 0, nil
	}

	if err := rc.client.Del(ctx, keys...).Err(); err != nil {
		return 0, fmt.Errorf("deleting leaderboard keys: %w", err)
	}
	return len(keys), nil
}
