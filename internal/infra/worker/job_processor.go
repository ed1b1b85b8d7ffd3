package worker

import (
	"context"
	"errors"
	"time"

	"github.com/rs/zerolog"

	"research-assistant/internal/domain"
	"research-assistant/internal/domain/ports/adapter"
	"research-assistant/internal/infra/logging"
	"research-assistant/internal/infra/metrics"
	red "research-assistant/internal/infra/redis"
)

// JobRunner executes one queued job to a terminal state.
type JobRunner interface {
	Execute(ctx context.Context, jobID string) error
}

type ProcessorOptions struct {
	DequeueWait    time.Duration // how long one BRPOP blocks
	DefaultTimeout time.Duration // used when a message carries none
	LockTTLSlack   time.Duration // lock outlives the job timeout by this much
	ErrorBackoff   time.Duration // pause after a transport error
}

// JobProcessor consumes the job queue. Each pool worker runs one consume loop.
type JobProcessor struct {
	queue  adapter.JobQueue
	runner JobRunner
	locker red.Locker
	opts   ProcessorOptions
	log    *zerolog.Logger
}

func NewJobProcessor(queue adapter.JobQueue, runner JobRunner, locker red.Locker, opts ProcessorOptions, log *zerolog.Logger) *JobProcessor {
	if opts.DequeueWait <= 0 {
		opts.DequeueWait = 5 * time.Second
	}
	if opts.DefaultTimeout <= 0 {
		opts.DefaultTimeout = 10 * time.Minute
	}
	if opts.LockTTLSlack <= 0 {
		opts.LockTTLSlack = time.Minute
	}
	if opts.ErrorBackoff <= 0 {
		opts.ErrorBackoff = time.Second
	}
	l := log.With().Str("component", "JobProcessor").Logger()
	return &JobProcessor{queue: queue, runner: runner, locker: locker, opts: opts, log: &l}
}

// Start hands one consume loop to every pool worker.
func (p *JobProcessor) Start(ctx context.Context, pool *Pool) error {
	p.log.Info().Int("workers", pool.Size()).Msg("job processor started")
	for i := 0; i < pool.Size(); i++ {
		if err := pool.Submit(p.loop); err != nil {
			return err
		}
	}
	return nil
}

func (p *JobProcessor) loop(ctx context.Context) error {
	for ctx.Err() == nil {
		if _, err := p.ProcessOne(ctx); err != nil {
			p.log.Error().Err(err).Msg("dequeue failed")
			select {
			case <-ctx.Done():
			case <-time.After(p.opts.ErrorBackoff):
			}
		}
	}
	p.log.Info().Msg("job processor stopping")
	return nil
}

// ProcessOne takes at most one message off the queue and runs it. It reports
// whether a message was consumed. Job failures are recorded by the runner and
// are not returned here.
func (p *JobProcessor) ProcessOne(ctx context.Context) (bool, error) {
	msg, err := p.queue.Dequeue(ctx, p.opts.DequeueWait)
	if err != nil {
		if errors.Is(err, domain.ErrQueueEmpty) || ctx.Err() != nil {
			return false, nil
		}
		return false, err
	}
	// From here on the message is ours. Shutdown stops the loop from taking
	// more work but never cuts a job short; only its timeout does.
	ctx = context.WithoutCancel(ctx)

	if n, err := p.queue.Len(ctx); err == nil {
		metrics.SetQueueDepth(n)
	}

	log := p.log.With().Str("job_id", msg.JobID).Str("delivery_id", msg.DeliveryID).Logger()
	timeout := msg.Timeout
	if timeout <= 0 {
		timeout = p.opts.DefaultTimeout
	}

	if p.locker != nil {
		key := red.JobLockKey(msg.JobID)
		token, err := p.locker.TryLock(ctx, key, timeout+p.opts.LockTTLSlack)
		if err != nil {
			if errors.Is(err, domain.ErrJobLocked) {
				log.Warn().Msg("job already running elsewhere; dropping duplicate delivery")
				return true, nil
			}
			return true, err
		}
		defer func() {
			uctx, cancel := context.WithTimeout(ctx, 5*time.Second)
			defer cancel()
			if err := p.locker.Unlock(uctx, key, token); err != nil {
				log.Warn().Err(err).Msg("unlock failed")
			}
		}()
	}

	jctx, cancel := context.WithTimeout(logging.WithJobID(ctx, msg.JobID), timeout)
	defer cancel()

	start := time.Now()
	if !msg.EnqueuedAt.IsZero() {
		log.Info().Dur("queued_for", start.Sub(msg.EnqueuedAt)).Dur("timeout", timeout).Msg("job picked up")
	}
	err = p.runner.Execute(jctx, msg.JobID)
	switch {
	case err == nil:
		log.Info().Dur("took", time.Since(start)).Msg("job finished")
	case errors.Is(err, domain.ErrInvalidTransition):
		log.Warn().Err(err).Msg("job not runnable; skipped")
	default:
		log.Error().Err(err).Dur("took", time.Since(start)).Str("kind", string(domain.KindOf(err))).Msg("job failed")
	}
	return true, nil
}
