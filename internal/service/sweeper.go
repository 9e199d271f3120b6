package service

import (
	"context"
	"time"

	"github.com/lthibault/jitterbug/v2"

	"github.com/timmy/textfleet/internal/logger"
)

// DeadlineSweeper resends tasks whose result is overdue, a bounded number
// of times per task.
type DeadlineSweeper struct {
	registry    *Registry
	dispatcher  *Dispatcher
	deadline    time.Duration
	maxAttempts int
	now         func() time.Time
}

// NewDeadlineSweeper creates a sweeper. A task is resent once deadline has
// passed since its last send, at most maxAttempts times.
func NewDeadlineSweeper(registry *Registry, dispatcher *Dispatcher, deadline time.Duration, maxAttempts int) *DeadlineSweeper {
	return &DeadlineSweeper{
		registry:    registry,
		dispatcher:  dispatcher,
		deadline:    deadline,
		maxAttempts: maxAttempts,
		now:         time.Now,
	}
}

// Run sweeps on a jittered tick of a quarter deadline until ctx is done.
func (s *DeadlineSweeper) Run(ctx context.Context) {
	interval := s.deadline / 4
	if interval < time.Second {
		interval = time.Second
	}
	ticker := jitterbug.New(interval, &jitterbug.Norm{Stdev: interval / 10, Mean: 0})
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.Sweep(ctx)
		}
	}
}

// Sweep resends every overdue task once and returns how many were resent.
func (s *DeadlineSweeper) Sweep(ctx context.Context) int {
	resent := 0
	now := s.now()
	for _, job := range s.registry.Jobs() {
		jobCtx := logger.SetJobID(ctx, job.ID)
		for _, task := range job.Overdue(now, s.deadline, s.maxAttempts) {
			if err := s.dispatcher.Resend(jobCtx, task); err != nil {
				logger.FromContext(logger.SetTaskID(jobCtx, task.TaskID)).WithError(err).Warn("Failed to resend overdue task")
				continue
			}
			resent++
		}
	}
	if resent > 0 {
		logger.With(logger.Fields{logger.FieldCount: resent}).Info(ctx, "Resent overdue tasks")
	}
	return resent
}
