package rediscache

import (
	"context"
	"fmt"
	"math/rand/v2"
	"strconv"
	"time"

	"github.com/pkg/errors"
	"github.com/redis/go-redis/v9"
)

// RateLimiter is a sliding-window log limiter over a sorted set:
// every attempt is a member scored by its unix-nano timestamp.
type RateLimiter struct {
	c   *redis.Client
	now func() time.Time
}

func NewRateLimiter(addr string) *RateLimiter {
	return NewRateLimiterWithClient(redis.NewClient(&redis.Options{Addr: addr}))
}

func NewRateLimiterWithClient(c *redis.Client) *RateLimiter {
	return &RateLimiter{c: c, now: time.Now}
}

// Allow записывает попытку и считает попытки за последние window.
// Возвращает (allowed, currentCount).
func (rl *RateLimiter) Allow(ctx context.Context, key string, limit int64, window time.Duration) (bool, int64, error) {
	now := rl.now()
	from := now.Add(-window).UnixNano()
	member := fmt.Sprintf("%d-%d", now.UnixNano(), rand.Uint32())

	pipe := rl.c.TxPipeline()
	pipe.ZRemRangeByScore(ctx, key, "-inf", strconv.FormatInt(from, 10))
	pipe.ZAdd(ctx, key, redis.Z{Score: float64(now.UnixNano()), Member: member})
	card := pipe.ZCard(ctx, key)
	pipe.PExpire(ctx, key, window)
	if _, err := pipe.Exec(ctx); err != nil {
		return false, 0, errors.Wrap(err, "redis ratelimit")
	}
	n := card.Val()
	return n <= limit, n, nil
}

// PingGate admits at most one event per key per interval (SET NX PX).
type PingGate struct {
	c *redis.Client
}

func NewPingGate(addr string) *PingGate {
	return NewPingGateWithClient(redis.NewClient(&redis.Options{Addr: addr}))
}

func NewPingGateWithClient(c *redis.Client) *PingGate {
	return &PingGate{c: c}
}

func (g *PingGate) Acquire(ctx context.Context, key string, interval time.Duration) (bool, error) {
	ok, err := g.c.SetNX(ctx, key, 1, interval).Result()
	if err != nil {
		return false, errors.Wrap(err, "redis ping gate")
	}
	return ok, nil
}
