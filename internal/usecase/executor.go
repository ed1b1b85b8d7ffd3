// File: internal/usecase/executor.go
package usecase

import (
	"context"
	"time"

	"research-assistant/internal/domain/model"
	"research-assistant/internal/domain/ports/adapter"
)

// RunFunc executes a job's pipeline to a terminal state.
type RunFunc func(ctx context.Context) error

// Executor decides how a submitted job gets run.
type Executor interface {
	// InitialState is the state recorded at submission.
	InitialState() model.JobState
	// Dispatch hands the job over. Implementations either queue it for a
	// worker or invoke run before returning.
	Dispatch(ctx context.Context, jobID string, run RunFunc) error
}

// DeferredExecutor enqueues jobs for the worker pool.
type DeferredExecutor struct {
	queue   adapter.JobQueue
	timeout time.Duration
}

func NewDeferredExecutor(queue adapter.JobQueue, timeout time.Duration) *DeferredExecutor {
	return &DeferredExecutor{queue: queue, timeout: timeout}
}

func (d *DeferredExecutor) InitialState() model.JobState { return model.JobStateQueued }

func (d *DeferredExecutor) Dispatch(ctx context.Context, jobID string, _ RunFunc) error {
	return d.queue.Enqueue(ctx, adapter.JobMessage{
		JobID:      jobID,
		Timeout:    d.timeout,
		EnqueuedAt: time.Now().UTC(),
	})
}

// ImmediateExecutor runs the job inside the submitting call. The run is
// detached from the caller's cancellation and bounded only by timeout, so a
// disconnecting client does not abort a job it already created.
type ImmediateExecutor struct {
	timeout time.Duration
}

func NewImmediateExecutor(timeout time.Duration) *ImmediateExecutor {
	return &ImmediateExecutor{timeout: timeout}
}

func (i *ImmediateExecutor) InitialState() model.JobState { return model.JobStateStarted }

func (i *ImmediateExecutor) Dispatch(ctx context.Context, _ string, run RunFunc) error {
	ctx = context.WithoutCancel(ctx)
	if i.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, i.timeout)
		defer cancel()
	}
	return run(ctx)
}
