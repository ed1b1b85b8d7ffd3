package adapter

import (
	"context"
	"time"
)

// JobMessage is the payload carried by the queue transport.
type JobMessage struct {
	JobID      string        `json:"job_id"`
	Timeout    time.Duration `json:"timeout"`
	DeliveryID string        `json:"delivery_id,omitempty"`
	EnqueuedAt time.Time     `json:"enqueued_at"`
}

// JobQueue is the deferred-mode transport between the API and the workers.
type JobQueue interface {
	Enqueue(ctx context.Context, msg JobMessage) error
	// Dequeue blocks up to wait for a message and returns domain.ErrQueueEmpty on timeout.
	Dequeue(ctx context.Context, wait time.Duration) (*JobMessage, error)
	Len(ctx context.Context) (int64, error)
}
