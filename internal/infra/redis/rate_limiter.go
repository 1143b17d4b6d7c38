package redis

import (
	"context"
	"fmt"
	"time"
)

// RateLimiter counts hits per aligned time bucket. Each bucket is its own
// key; the TTL only reclaims memory.
type RateLimiter struct {
	client RedisClient
	now    func() time.Time
}

func NewRateLimiter(client RedisClient) *RateLimiter {
	return &RateLimiter{client: client, now: time.Now}
}

// Allow records one hit on key and reports whether it is within limit for the
// current window.
func (r *RateLimiter) Allow(ctx context.Context, key string, limit int, window time.Duration) (bool, error) {
	if window <= 0 {
		window = time.Minute
	}
	bk := bucketKey(key, r.now(), window)
	count, err := r.client.Incr(ctx, bk)
	if err != nil {
		return false, err
	}
	if count == 1 {
		if err := r.client.Expire(ctx, bk, window); err != nil {
			return false, err
		}
	}
	return count <= int64(limit), nil
}

func bucketKey(key string, now time.Time, window time.Duration) string {
	return fmt.Sprintf("%s:%d", key, now.UnixNano()/int64(window))
}

// ActionKey scopes a limiter to one bot action of one Telegram user.
func ActionKey(tgID int64, action string) string {
	return fmt.Sprintf("rl:%s:%d", action, tgID)
}

// PaymentCheckKey limits "I have paid" presses per user.
func PaymentCheckKey(tgID int64) string {
	return ActionKey(tgID, "payment_check")
}
