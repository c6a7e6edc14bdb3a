package ratelimit

import (
	"context"
	"errors"
	"strconv"
	"time"

	"credanchor/internal/domain"

	"github.com/redis/go-redis/v9"
)

const keyPrefix = "credanchor:rl:"

// Redis counts requests in fixed windows aligned to the span, so every
// replica sharing the server agrees on where a window starts.
type Redis struct {
	client redis.Cmdable
	now    func() time.Time
}

func NewRedis(client redis.Cmdable, now func() time.Time) (*Redis, error) {
	if client == nil {
		return nil, errors.New("redis client is required")
	}
	if now == nil {
		now = time.Now
	}
	return &Redis{client: client, now: now}, nil
}

func (r *Redis) Allow(ctx context.Context, key string, limit int, span time.Duration) (domain.RateLimitDecision, error) {
	if limit <= 0 {
		return domain.RateLimitDecision{Allowed: true, Limit: limit, Remaining: limit}, nil
	}
	if span <= 0 {
		span = time.Second
	}
	now := r.now()
	start := now.Truncate(span)
	bucket := keyPrefix + key + ":" + strconv.FormatInt(start.UnixMilli(), 10)

	var incr *redis.IntCmd
	_, err := r.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		incr = pipe.Incr(ctx, bucket)
		pipe.PExpire(ctx, bucket, span+time.Second)
		return nil
	})
	if err != nil {
		return domain.RateLimitDecision{}, err
	}

	count := int(incr.Val())
	remaining := limit - count
	if remaining < 0 {
		remaining = 0
	}
	return domain.RateLimitDecision{
		Allowed:   count <= limit,
		Limit:     limit,
		Remaining: remaining,
		ResetAt:   start.Add(span),
	}, nil
}
