package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"os"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
	"marketplace-listing-api/internal/models"
)

const keyPrefix = "collection:"

type RedisCache struct {
	client *redis.Client
	ttl    time.Duration
}

// Snapshot is a cached collection together with its fetch time.
type Snapshot struct {
	Items     []models.Item `json:"items"`
	FetchedAt time.Time     `json:"fetched_at"`
}

// NewRedisCache connects using REDIS_URL, REDIS_DB and CACHE_TTL. It returns
// nil when Redis is unreachable; a nil *RedisCache is a valid, unavailable cache.
func NewRedisCache() *RedisCache {
	redisURL := os.Getenv("REDIS_URL")
	if redisURL == "" {
		redisURL = "redis://localhost:6379"
	}

	redisDB := 0
	if db := os.Getenv("REDIS_DB"); db != "" {
		if dbNum, err := strconv.Atoi(db); err == nil {
			redisDB = dbNum
		}
	}

	ttlSeconds := 600 // 10 minutes default
	if ttl := os.Getenv("CACHE_TTL"); ttl != "" {
		if t, err := strconv.Atoi(ttl); err == nil {
			ttlSeconds = t
		}
	}

	return Connect(redisURL, redisDB, time.Duration(ttlSeconds)*time.Second)
}

// Connect opens and pings a Redis connection. It returns nil on failure.
func Connect(redisURL string, redisDB int, ttl time.Duration) *RedisCache {
	opt, err := redis.ParseURL(redisURL)
	if err != nil {
		log.Printf("Failed to parse Redis URL: %v", err)
		return nil
	}
	opt.DB = redisDB

	client := redis.NewClient(opt)

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if _, err := client.Ping(ctx).Result(); err != nil {
		log.Printf("Redis connection failed: %v", err)
		_ = client.Close()
		return nil
	}

	log.Printf("Redis connected successfully, DB: %d, TTL: %s", redisDB, ttl)

	return &RedisCache{
		client: client,
		ttl:    ttl,
	}
}

func (r *RedisCache) GetCollection(ctx context.Context, key string) (*Snapshot, error) {
	if r == nil || r.client == nil {
		return nil, fmt.Errorf("redis client not available")
	}

	val, err := r.client.Get(ctx, key).Result()
	if err == redis.Nil {
		return nil, nil // Cache miss
	}
	if err != nil {
		return nil, fmt.Errorf("redis get error: %w", err)
	}

	var snapshot Snapshot
	if err := json.Unmarshal([]byte(val), &snapshot); err != nil {
		return nil, fmt.Errorf("json unmarshal error: %w", err)
	}

	return &snapshot, nil
}

func (r *RedisCache) SetCollection(ctx context.Context, key string, snapshot *Snapshot) error {
	if r == nil || r.client == nil {
		return fmt.Errorf("redis client not available")
	}

	data, err := json.Marshal(snapshot)
	if err != nil {
		return fmt.Errorf("json marshal error: %w", err)
	}

	return r.client.Set(ctx, key, data, r.ttl).Err()
}

// Invalidate drops a cached collection. Missing keys are not an error.
func (r *RedisCache) Invalidate(ctx context.Context, key string) error {
	if r == nil || r.client == nil {
		return nil
	}
	return r.client.Del(ctx, key).Err()
}

// GenerateCollectionKey scopes a collection to its endpoint and the token
// fingerprint, so operators never see each other's snapshots.
func (r *RedisCache) GenerateCollectionKey(endpoint, fingerprint string) string {
	return fmt.Sprintf("%s%s:%s", keyPrefix, endpoint, fingerprint)
}

func (r *RedisCache) Close() error {
	if r == nil || r.client == nil {
		return nil
	}
	return r.client.Close()
}

func (r *RedisCache) IsAvailable() bool {
	return r != nil && r.client != nil
}

func (r *RedisCache) GetStats(ctx context.Context) map[string]interface{} {
	if r == nil || r.client == nil {
		return map[string]interface{}{
			"status": "unavailable",
		}
	}

	info := r.client.Info(ctx, "memory").Val()
	return map[string]interface{}{
		"status":      "connected",
		"ttl_seconds": int(r.ttl.Seconds()),
		"memory_info": info,
	}
}

func (r *RedisCache) GetAllKeys(ctx context.Context) []string {
	if r == nil || r.client == nil {
		return []string{}
	}
	keys, err := r.client.Keys(ctx, keyPrefix+"*").Result()
	if err != nil {
		return []string{}
	}
	return keys
}

// FlushCache removes every cached collection. Other keys in the database are
// left alone.
func (r *RedisCache) FlushCache(ctx context.Context) error {
	if r == nil || r.client == nil {
		return fmt.Errorf("redis client not available")
	}
	keys := r.GetAllKeys(ctx)
	if len(keys) == 0 {
		return nil
	}
	return r.client.Del(ctx, keys...).Err()
}

func (r *RedisCache) GetKeyTTL(ctx context.Context, key string) time.Duration {
	if r == nil || r.client == nil {
		return 0
	}
	ttl, err := r.client.TTL(ctx, key).Result()
	if err != nil {
		return 0
	}
	return ttl
}
