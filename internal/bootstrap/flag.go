package bootstrap

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/redis/go-redis/v9"
)

// DefaultFlagKey is the fixed key of the "backend previously confirmed
// awake" flag.
const DefaultFlagKey = "datapulse:backend_awake"

// Flag is the session-scoped "backend previously confirmed awake" marker.
// It is read once when the gate starts and written once on the first
// successful probe.
type Flag interface {
	IsSet(ctx context.Context) (bool, error)
	Set(ctx context.Context) error
}

// MemoryFlag lives for the lifetime of the process.
type MemoryFlag struct {
	v atomic.Bool
}

func (f *MemoryFlag) IsSet(context.Context) (bool, error) {
	return f.v.Load(), nil
}

func (f *MemoryFlag) Set(context.Context) error {
	f.v.Store(true)
	return nil
}

// RedisFlag stores the flag in Redis so that every process of one browsing
// session (or deployment) shares it. The TTL bounds the session lifetime;
// zero means no expiry.
type RedisFlag struct {
	client redis.Cmdable
	key    string
	ttl    time.Duration
}

// NewRedisFlag creates a Redis-backed flag. An empty key uses
// DefaultFlagKey.
func NewRedisFlag(client redis.Cmdable, key string, ttl time.Duration) *RedisFlag {
	if key == "" {
		key = DefaultFlagKey
	}
	return &RedisFlag{client: client, key: key, ttl: ttl}
}

func (f *RedisFlag) IsSet(ctx context.Context) (bool, error) {
	_, err := f.client.Get(ctx, f.key).Result()
	if errors.Is(err, redis.Nil) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("get %s: %w", f.key, err)
	}
	return true, nil
}

func (f *RedisFlag) Set(ctx context.Context) error {
	if err := f.client.Set(ctx, f.key, "1", f.ttl).Err(); err != nil {
		return fmt.Errorf("set %s: %w", f.key, err)
	}
	return nil
}
