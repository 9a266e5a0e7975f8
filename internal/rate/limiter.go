package rate

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// Window is a Redis fixed-window counter. The first hit in a window sets the
// key's TTL; later hits only increment.
type Window struct {
	redis  redis.UniversalClient
	prefix string
}

// NewWindow creates a [Window] whose keys are namespaced under prefix.
func NewWindow(redisClient redis.UniversalClient, prefix string) *Window {
	return &Window{
		redis:  redisClient,
		prefix: prefix,
	}
}

func (w *Window) key(name string) string {
	return w.prefix + ":" + name
}

// Hit increments the counter for name and returns ErrRateLimited once the
// count exceeds max within ttl.
func (w *Window) Hit(ctx context.Context, name string, max int, ttl time.Duration) (int64, error) {
	key := w.key(name)
	count, err := w.redis.Incr(ctx, key).Result()
	if err != nil {
		return 0, fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}

	if count == 1 {
		if err := w.redis.Expire(ctx, key, ttl).Err(); err != nil {
			return 0, fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
		}
	}

	if count > int64(max) {
		return count, ErrRateLimited
	}
	return count, nil
}

// Reset clears the counters for names.
func (w *Window) Reset(ctx context.Context, names ...string) error {
	if len(names) == 0 {
		return nil
	}
	keys := make([]string, len(names))
	for i, n := range names {
		keys[i] = w.key(n)
	}
	if err := w.redis.Del(ctx, keys...).Err(); err != nil {
		return fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}
	return nil
}
