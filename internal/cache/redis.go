package cache

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/oggyb/muzz-engagement/internal/config"
)

type RedisCache struct {
	Client *redis.Client
}

// NewRedisCache initializes Redis client from config.
// Only Addr is mandatory, Password/DB are optional.
func NewRedisCache(cfg *config.Config) *RedisCache {
	opts := &redis.Options{
		Addr: cfg.Redis.Addr,
	}
	if cfg.Redis.Password != "" {
		opts.Password = cfg.Redis.Password
	}
	if cfg.Redis.DB != 0 {
		opts.DB = cfg.Redis.DB
	}
	return &RedisCache{Client: redis.NewClient(opts)}
}

// NewFromClient wraps an existing client (tests, shared pools).
func NewFromClient(c *redis.Client) *RedisCache {
	return &RedisCache{Client: c}
}

func (c *RedisCache) Ping(ctx context.Context) error {
	return c.Client.Ping(ctx).Err()
}

func (c *RedisCache) Close() error {
	return c.Client.Close()
}

// KeyForFreeSpin generates the Redis key guarding a user's free spin.
func KeyForFreeSpin(userID uint64) string {
	return fmt.Sprintf("rewards:free-spin:%d", userID)
}

// ClaimFreeSpin takes the free-spin claim for userID until ttl elapses.
// Returns false when another request already holds it.
//
// The stored value is the spin time in unix millis, so a losing caller can
// report when the claim was taken.
func (c *RedisCache) ClaimFreeSpin(ctx context.Context, userID uint64, at time.Time, ttl time.Duration) (bool, error) {
	if ttl <= 0 {
		return true, nil
	}
	return c.Client.SetNX(ctx, KeyForFreeSpin(userID), at.UTC().UnixMilli(), ttl).Result()
}

// ReleaseFreeSpin drops the claim so the user can retry after a failed spin.
func (c *RedisCache) ReleaseFreeSpin(ctx context.Context, userID uint64) error {
	return c.Client.Del(ctx, KeyForFreeSpin(userID)).Err()
}

// FreeSpinClaimedAt returns when the current claim was taken, or nil when
// there is none.
func (c *RedisCache) FreeSpinClaimedAt(ctx context.Context, userID uint64) (*time.Time, error) {
	ms, err := c.Client.Get(ctx, KeyForFreeSpin(userID)).Int64()
	if errors.Is(err, redis.Nil) {
		return nil, nil // no claim
	} else if err != nil {
		return nil, err
	}
	at := time.UnixMilli(ms).UTC()
	return &at, nil
}

// KeyForUnlock generates the Redis key guarding a paid unlock of target by viewer.
func KeyForUnlock(viewerID, targetID uint64) string {
	return fmt.Sprintf("ledger:unlock:%d:%d", viewerID, targetID)
}

// ClaimUnlock marks a paid unlock as in progress until it is released or ttl
// elapses. Returns false when another request holds it.
func (c *RedisCache) ClaimUnlock(ctx context.Context, viewerID, targetID uint64, ttl time.Duration) (bool, error) {
	return c.Client.SetNX(ctx, KeyForUnlock(viewerID, targetID), 1, ttl).Result()
}

func (c *RedisCache) ReleaseUnlock(ctx context.Context, viewerID, targetID uint64) error {
	return c.Client.Del(ctx, KeyForUnlock(viewerID, targetID)).Err()
}
