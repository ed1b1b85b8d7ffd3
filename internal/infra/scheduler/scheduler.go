package scheduler

import (
	"context"
	"time"

	"github.com/rs/zerolog"
)

// TaskFunc is one run of a periodic task.
type TaskFunc func(ctx context.Context) error

// Scheduler runs a task every interval until stopped.
type Scheduler struct {
	name     string
	interval time.Duration
	timeout  time.Duration
	task     TaskFunc
	log      *zerolog.Logger

	ctx    context.Context
	cancel context.CancelFunc
	done   chan struct{}
}

// NewScheduler builds a scheduler for task. If interval <= 0 it defaults to 1 minute.
func NewScheduler(name string, interval time.Duration, task TaskFunc, logger *zerolog.Logger) *Scheduler {
	if interval <= 0 {
		interval = time.Minute
	}
	l := logger.With().Str("component", "scheduler").Str("task", name).Logger()
	return &Scheduler{
		name:     name,
		interval: interval,
		timeout:  30 * time.Second,
		task:     task,
		log:      &l,
		done:     make(chan struct{}),
	}
}

// Start runs the task once immediately, then on every tick. Calling Start
// again while running has no effect.
func (s *Scheduler) Start(parentCtx context.Context) {
	if s.ctx != nil {
		return
	}
	s.ctx, s.cancel = context.WithCancel(parentCtx)
	go s.loop()
}

func (s *Scheduler) loop() {
	ticker := time.NewTicker(s.interval)
	defer func() {
		ticker.Stop()
		close(s.done)
	}()

	s.log.Debug().Dur("interval", s.interval).Msg("started")
	for {
		s.runOnce()
		select {
		case <-s.ctx.Done():
			s.log.Debug().Msg("stopping")
			return
		case <-ticker.C:
		}
	}
}

func (s *Scheduler) runOnce() {
	runCtx, cancel := context.WithTimeout(s.ctx, s.timeout)
	defer cancel()
	if err := s.task(runCtx); err != nil && s.ctx.Err() == nil {
		s.log.Warn().Err(err).Msg("task failed")
	}
}

// Stop cancels the loop and waits for it to finish. It is idempotent.
func (s *Scheduler) Stop() {
	if s.cancel == nil {
		return
	}
	s.cancel()
	<-s.done
	s.ctx = nil
	s.cancel = nil
	s.done = make(chan struct{})
}
