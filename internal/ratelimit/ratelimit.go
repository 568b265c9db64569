// Package ratelimit holds fleet-wide call budgets in Redis.
package ratelimit

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// Budget is a fixed-window counter shared by every gateway instance. It
// caps how many upstream calls one provider receives per window.
type Budget struct {
	client *redis.Client
	name   string
	limit  int64
	window time.Duration
	now    func() time.Time
}

func NewBudget(redisURL, name string, limit int, window time.Duration) (*Budget, error) {
	opt, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, err
	}

	return NewBudgetWithClient(redis.NewClient(opt), name, limit, window), nil
}

func NewBudgetWithClient(client *redis.Client, name string, limit int, window time.Duration) *Budget {
	if window <= 0 {
		window = time.Hour
	}
	return &Budget{client: client, name: name, limit: int64(limit), window: window, now: time.Now}
}

// Allow consumes one call from the current window.
func (b *Budget) Allow(ctx context.Context) (bool, error) {
	start := b.now().Truncate(b.window)
	key := fmt.Sprintf("ratelimit:provider:%s:%d", b.name, start.Unix())

	count, err := b.client.Incr(ctx, key).Result()
	if err != nil {
		return false, err
	}

	if count == 1 {
		b.client.Expire(ctx, key, b.window)
	}

	return count <= b.limit, nil
}

func (b *Budget) Close() error {
	return b.client.Close()
}
