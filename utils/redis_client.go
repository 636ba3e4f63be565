package utils

import (
	"context"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/parley-forum/parley/config"
)

var (
	redisClient *redis.Client
	redisOnce   sync.Once
	redisReady  bool
)

// GetRedis returns a singleton Redis client based on loaded config.
func GetRedis() *redis.Client {
	redisOnce.Do(func() {
		cfg := config.Get()
		redisClient = redis.NewClient(&redis.Options{
			Addr:         cfg.RedisAddr,
			Password:     cfg.RedisPassword,
			DB:           cfg.RedisDB,
			DialTimeout:  3 * time.Second,
			ReadTimeout:  0, // workers block on BRPOPLPUSH
			WriteTimeout: 2 * time.Second,
		})
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		redisReady = redisClient.Ping(ctx).Err() == nil
	})
	return redisClient
}

// RedisReady reports whether redis answered at boot. The cache helpers
// turn into no-ops when it did not, so a missing redis degrades to
// uncached responses instead of per-request dial timeouts.
func RedisReady() bool {
	GetRedis()
	return redisReady
}
