package tasks

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

const (
	readyKey   = "parley:tasks:ready"
	delayedKey = "parley:tasks:delayed"
)

// RedisQueue implements the task queue on a redis list plus a sorted set
// for delayed tasks. Members of the sorted set are scored by their
// ready-at unix time and promoted onto the list by the worker pool.
type RedisQueue struct {
	rdb *redis.Client
}

// NewRedisQueue wraps an existing redis client.
func NewRedisQueue(rdb *redis.Client) *RedisQueue {
	return &RedisQueue{rdb: rdb}
}

// Enqueue makes the task available immediately.
func (q *RedisQueue) Enqueue(ctx context.Context, t Task) error {
	b, err := marshalTask(&t)
	if err != nil {
		return err
	}
	return q.rdb.LPush(ctx, readyKey, b).Err()
}

// EnqueueIn makes the task available after the given delay.
func (q *RedisQueue) EnqueueIn(ctx context.Context, t Task, delay time.Duration) error {
	b, err := marshalTask(&t)
	if err != nil {
		return err
	}
	score := float64(time.Now().Add(delay).UnixMilli())
	return q.rdb.ZAdd(ctx, delayedKey, redis.Z{Score: score, Member: b}).Err()
}

// promoteDue moves tasks whose delay elapsed onto the ready list. ZRem
// decides the winner when several workers race on the same member.
func (q *RedisQueue) promoteDue(ctx context.Context) error {
	now := fmt.Sprintf("%d", time.Now().UnixMilli())
	members, err := q.rdb.ZRangeByScore(ctx, delayedKey, &redis.ZRangeBy{
		Min: "-inf", Max: now, Count: 100,
	}).Result()
	if err != nil {
		return err
	}
	for _, m := range members {
		removed, err := q.rdb.ZRem(ctx, delayedKey, m).Result()
		if err != nil {
			return err
		}
		if removed == 1 {
			if err := q.rdb.LPush(ctx, readyKey, m).Err(); err != nil {
				return err
			}
		}
	}
	return nil
}

// pop blocks up to timeout for the next ready task. A nil task with nil
// error means the timeout elapsed.
func (q *RedisQueue) pop(ctx context.Context, timeout time.Duration) (*Task, error) {
	res, err := q.rdb.BRPop(ctx, timeout, readyKey).Result()
	if err != nil {
		if err == redis.Nil {
			return nil, nil
		}
		return nil, err
	}
	// BRPop returns [key, value]
	var t Task
	if err := json.Unmarshal([]byte(res[1]), &t); err != nil {
		return nil, fmt.Errorf("malformed task payload: %w", err)
	}
	return &t, nil
}

func marshalTask(t *Task) ([]byte, error) {
	if t.ID == "" {
		t.ID = uuid.NewString()
	}
	return json.Marshal(t)
}
