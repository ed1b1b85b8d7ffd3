package redis

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/oklog/ulid/v2"

	"research-assistant/internal/domain"
	"research-assistant/internal/domain/ports/adapter"
)

var _ adapter.JobQueue = (*JobQueue)(nil)

const DefaultQueueName = "research_jobs"

// JobQueue is a FIFO list: producers LPUSH, workers BRPOP.
type JobQueue struct {
	cli *redis.Client
	key string
}

func NewJobQueue(c *Client, name string) *JobQueue {
	if name == "" {
		name = DefaultQueueName
	}
	return &JobQueue{cli: c.cli, key: "queue:" + name}
}

func (q *JobQueue) Enqueue(ctx context.Context, msg adapter.JobMessage) error {
	if msg.DeliveryID == "" {
		msg.DeliveryID = ulid.Make().String()
	}
	if msg.EnqueuedAt.IsZero() {
		msg.EnqueuedAt = time.Now().UTC()
	}
	data, err := json.Marshal(msg)
	if err != nil {
		return err
	}
	return q.cli.LPush(ctx, q.key, data).Err()
}

// Dequeue waits up to wait for a message. A non-positive wait polls once.
func (q *JobQueue) Dequeue(ctx context.Context, wait time.Duration) (*adapter.JobMessage, error) {
	var raw string
	if wait <= 0 {
		v, err := q.cli.RPop(ctx, q.key).Result()
		if err != nil {
			if errors.Is(err, redis.Nil) {
				return nil, domain.ErrQueueEmpty
			}
			return nil, err
		}
		raw = v
	} else {
		res, err := q.cli.BRPop(ctx, wait, q.key).Result()
		if err != nil {
			if errors.Is(err, redis.Nil) {
				return nil, domain.ErrQueueEmpty
			}
			return nil, err
		}
		if len(res) != 2 {
			return nil, domain.ErrQueueEmpty
		}
		raw = res[1]
	}

	var msg adapter.JobMessage
	if err := json.Unmarshal([]byte(raw), &msg); err != nil {
		return nil, err
	}
	return &msg, nil
}

func (q *JobQueue) Len(ctx context.Context) (int64, error) {
	return q.cli.LLen(ctx, q.key).Result()
}
