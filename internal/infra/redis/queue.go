package redis

import (
	"context"
	"time"

	"github.com/go-redis/redis/v8"
)

// JobQueue is a Redis list used as a work queue: producers LPUSH, one
// consumer BRPOPs. The admin API pushes sweep triggers onto it.
type JobQueue struct {
	cli *redis.Client
	key string
}

func NewJobQueue(c *Client, key string) *JobQueue {
	return &JobQueue{cli: c.cli, key: c.Key(key)}
}

func (q *JobQueue) Key() string { return q.key }

func (q *JobQueue) Push(ctx context.Context, payload string) error {
	return q.cli.LPush(ctx, q.key, payload).Err()
}

// Pop waits up to timeout for a job. ok is false when the wait timed out.
func (q *JobQueue) Pop(ctx context.Context, timeout time.Duration) (payload string, ok bool, err error) {
	res, err := q.cli.BRPop(ctx, timeout, q.key).Result()
	if err == redis.Nil {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}
	// BRPOP replies with [key, value].
	if len(res) < 2 {
		return "", false, nil
	}
	return res[1], true, nil
}
