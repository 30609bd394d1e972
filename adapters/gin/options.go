package authgin

import (
	"context"

	"github.com/sirupsen/logrus"
)

// RateLimiter is satisfied by ratelimit/memory and ratelimit/redis.
type RateLimiter interface {
	Allow(ctx context.Context, bucket, key string) (bool, error)
}

// TokenBucket is the limiter bucket used by POST /token.
const TokenBucket = "token"

type options struct {
	rl  RateLimiter
	log logrus.FieldLogger
}

// Option configures the middleware and routes.
type Option func(*options)

// WithRateLimiter limits POST /token per client IP.
func WithRateLimiter(rl RateLimiter) Option {
	return func(o *options) { o.rl = rl }
}

// WithLogger sets the logger. Defaults to logrus.StandardLogger().
func WithLogger(l logrus.FieldLogger) Option {
	return func(o *options) {
		if l != nil {
			o.log = l
		}
	}
}

func newOptions(opts []Option) options {
	o := options{log: logrus.StandardLogger()}
	for _, opt := range opts {
		opt(&o)
	}
	return o
}
