package ratelimit

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisLimiterStore is a fixed-window counter shared across server replicas,
// used to throttle grading submissions per API key.
type RedisLimiterStore struct {
	db         *redis.Client
	limiterKey string
	perMinute  int64
	failOpen   bool
}

type RedisLimiterConfig struct {
	RedisClient *redis.Client
	LimiterKey  string
	PerMinute   int64
	FailOpen    bool
}

// Allow satisfies echo's RateLimiterStore. The read-decrement pair is not
// atomic, so a burst of concurrent submissions can slip a few extra requests
// through one window; that beats serializing every grading request behind a
// distributed lock. When redis is unreachable the failOpen setting decides
// whether candidates may keep submitting.
func (store *RedisLimiterStore) Allow(identifier string) (bool, error) {
	ctx := context.Background()

	key := fmt.Sprintf("certification-api:ratelimit:%s:%s", store.limiterKey, identifier)

	remainingRaw, err := store.db.Get(ctx, key).Result()
	if err != nil {
		if !errors.Is(err, redis.Nil) {
			return store.failOpen, err
		}

		// First request of this window
		store.db.Set(ctx, key, store.perMinute, time.Minute)
		store.db.Decr(ctx, key)
		return true, nil
	}

	remaining, err := strconv.Atoi(remainingRaw)
	if err != nil {
		return store.failOpen, err
	}

	if remaining <= 0 {
		return false, nil
	}

	store.db.Decr(ctx, key)
	return true, nil
}

func NewRedisLimitStore(config RedisLimiterConfig) (store *RedisLimiterStore) {
	return &RedisLimiterStore{
		perMinute:  config.PerMinute,
		db:         config.RedisClient,
		limiterKey: config.LimiterKey,
		failOpen:   config.FailOpen,
	}
}
