package ratelimit

import (
	"context"
	"fmt"

	"github.com/redis/go-redis/v9"
)

// Redis shares counters between replicas. Each window is its own key and
// expires once the window is over.
type Redis struct {
	client *redis.Client
	opts   Options
}

func NewRedis(client *redis.Client, opts Options) *Redis {
	return &Redis{client: client, opts: opts.withDefaults()}
}

func (r *Redis) Allow(ctx context.Context, identity, action string) (bool, error) {
	if r.opts.Limit <= 0 {
		return true, nil
	}
	key := windowKey(identity, action, r.opts.Now(), r.opts.Window)

	n, err := r.client.Incr(ctx, key).Result()
	if err != nil {
		return false, fmt.Errorf("rate limit incr: %w", err)
	}
	if n == 1 {
		if err := r.client.Expire(ctx, key, r.opts.Window).Err(); err != nil {
			return false, fmt.Errorf("rate limit expire: %w", err)
		}
	}
	return n <= int64(r.opts.Limit), nil
}
