package limiters

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/ehp-platform/authcore/internal/rate"
)

var (
	ErrRequestRateLimited      = errors.New("request rate limited")
	ErrRequestRedisUnavailable = errors.New("request limiter redis unavailable")
)

// Flow names a throttled request kind and namespaces its counters.
type Flow string

const (
	FlowPasswordReset Flow = "pr"
	FlowEmailChange   Flow = "ec"
)

type RequestConfig struct {
	EnableIdentifierThrottle bool
	EnableIPThrottle         bool
	MaxRequests              int
	Window                   time.Duration
}

// RequestLimiter throttles token-issuing requests per identifier and per client IP.
// A nil *RequestLimiter allows everything.
type RequestLimiter struct {
	window *rate.Window
	config RequestConfig
}

func NewRequestLimiter(redisClient redis.UniversalClient, prefix string, cfg RequestConfig) *RequestLimiter {
	if prefix == "" {
		prefix = "as"
	}
	return &RequestLimiter{
		window: rate.NewWindow(redisClient, prefix+":rl"),
		config: cfg,
	}
}

// Check counts one request of flow for identifier and ip.
func (l *RequestLimiter) Check(ctx context.Context, flow Flow, identifier, ip string) error {
	if l == nil {
		return nil
	}
	if l.config.EnableIdentifierThrottle && identifier != "" {
		if err := l.hit(ctx, identifierKey(flow, identifier)); err != nil {
			return err
		}
	}
	if l.config.EnableIPThrottle && ip != "" {
		if err := l.hit(ctx, string(flow)+":ip:"+ip); err != nil {
			return err
		}
	}
	return nil
}

// Clear drops the identifier counter of flow, typically after the flow
// completed. IP counters are left to expire.
func (l *RequestLimiter) Clear(ctx context.Context, flow Flow, identifier string) error {
	if l == nil || identifier == "" {
		return nil
	}
	if err := l.window.Reset(ctx, identifierKey(flow, identifier)); err != nil {
		return errors.Join(ErrRequestRedisUnavailable, err)
	}
	return nil
}

func identifierKey(flow Flow, identifier string) string {
	return string(flow) + ":id:" + strings.ToLower(identifier)
}

func (l *RequestLimiter) hit(ctx context.Context, name string) error {
	_, err := l.window.Hit(ctx, name, l.config.MaxRequests, l.config.Window)
	switch {
	case err == nil:
		return nil
	case errors.Is(err, rate.ErrRateLimited):
		return ErrRequestRateLimited
	default:
		return errors.Join(ErrRequestRedisUnavailable, err)
	}
}
