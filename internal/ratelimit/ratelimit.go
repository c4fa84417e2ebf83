// Package ratelimit bounds per-party search traffic with Redis-backed daily
// counters. The engine runs fine without Redis; the limiter is only wired when
// a Redis URL is configured.
package ratelimit

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

type Limiter struct {
	client *redis.Client
	limit  int
}

// New connects to Redis and returns a limiter allowing limit requests per
// party per UTC day.
func New(redisURL string, limit int) (*Limiter, error) {
	opt, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}
	client := redis.NewClient(opt)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("connect redis: %w", err)
	}
	return &Limiter{client: client, limit: limit}, nil
}

type Result struct {
	Allowed        bool
	Used           int
	Limit          int
	RetryAfterSecs int
}

// Allow checks the party's daily budget and, when within it, consumes one
// unit. Counters expire at the next UTC midnight.
func (l *Limiter) Allow(ctx context.Context, partyID string) (Result, error) {
	now := time.Now().UTC()
	key := fmt.Sprintf("ratelimit:search:%s:%s", partyID, now.Format("2006-01-02"))

	used, err := l.client.Get(ctx, key).Int()
	if err != nil && err != redis.Nil {
		return Result{}, err
	}

	result := Result{Used: used, Limit: l.limit}
	midnight := time.Date(now.Year(), now.Month(), now.Day()+1, 0, 0, 0, 0, time.UTC)
	if used >= l.limit {
		result.RetryAfterSecs = int(midnight.Sub(now).Seconds())
		return result, nil
	}

	pipe := l.client.Pipeline()
	pipe.Incr(ctx, key)
	pipe.ExpireAt(ctx, key, midnight)
	if _, err := pipe.Exec(ctx); err != nil {
		return Result{}, err
	}

	result.Allowed = true
	result.Used++
	return result, nil
}

func (l *Limiter) Close() error {
	return l.client.Close()
}
