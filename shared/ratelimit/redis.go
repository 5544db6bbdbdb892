package ratelimit

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

const redisOpTimeout = 250 * time.Millisecond

type redisLimiter struct {
	client *redis.Client
	logger *zerolog.Logger
	prefix string
}

// NewRedisLimiter returns a fixed-window limiter shared across replicas.
// Redis errors fail open: the request is allowed and the error logged.
func NewRedisLimiter(client *redis.Client, prefix string, logger *zerolog.Logger) Limiter {
	return &redisLimiter{
		client: client,
		logger: logger,
		prefix: prefix,
	}
}

func (l *redisLimiter) Allow(ctx context.Context, key string, limit int, window time.Duration) Decision {
	if limit <= 0 {
		return Decision{Allowed: true}
	}
	if window <= 0 {
		window = time.Minute
	}

	ctx, cancel := context.WithTimeout(ctx, redisOpTimeout)
	defer cancel()

	redisKey := l.prefix + key
	counter, err := l.client.Incr(ctx, redisKey).Result()
	if err != nil {
		l.logger.Error().Err(err).Str("op", "incr").Msg("rate limiter redis error")
		return Decision{Allowed: true}
	}
	if counter == 1 {
		if err := l.client.Expire(ctx, redisKey, window).Err(); err != nil {
			l.logger.Error().Err(err).Str("op", "expire").Msg("rate limiter redis error")
		}
	}

	ttl, err := l.client.TTL(ctx, redisKey).Result()
	if err != nil || ttl <= 0 {
		ttl = window
	}

	return Decision{
		Allowed:   int(counter) <= limit,
		Count:     int(counter),
		WindowEnd: time.Now().Add(ttl),
	}
}

// Close is a no-op; the redis client is owned by the caller.
func (l *redisLimiter) Close() error {
	return nil
}
