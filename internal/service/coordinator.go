package service

import (
	"context"
	"errors"
	"sync"
	"time"

	"golang.org/x/sync/semaphore"

	"github.com/timmy/textfleet/internal/domain"
	"github.com/timmy/textfleet/internal/logger"
	"github.com/timmy/textfleet/internal/metrics"
	"github.com/timmy/textfleet/internal/queue"
)

// CoordinatorConfig holds configuration for the coordinator loop.
type CoordinatorConfig struct {
	JobQueue        string
	ResultQueue     string
	JobBatch        int
	ResultBatch     int
	Wait            time.Duration
	IdleInterval    time.Duration
	DispatchPool    int64
	DeleteMalformed bool
}

// Coordinator polls the job and result queues and drives every job from
// NEW_JOB to JOB_DONE.
type Coordinator struct {
	transport  queue.Transport
	registry   *Registry
	shutdown   *Shutdown
	dispatcher *Dispatcher
	collector  *Collector
	finisher   *Finisher
	history    HistoryStore
	sweeper    *DeadlineSweeper
	cfg        CoordinatorConfig

	pool *semaphore.Weighted
	wg   sync.WaitGroup
	now  func() time.Time
}

// NewCoordinator wires the loop. history and sweeper may be nil.
func NewCoordinator(
	transport queue.Transport,
	registry *Registry,
	shutdown *Shutdown,
	dispatcher *Dispatcher,
	finisher *Finisher,
	history HistoryStore,
	sweeper *DeadlineSweeper,
	cfg CoordinatorConfig,
) *Coordinator {
	if cfg.DispatchPool < 1 {
		cfg.DispatchPool = 10
	}
	return &Coordinator{
		transport:  transport,
		registry:   registry,
		shutdown:   shutdown,
		dispatcher: dispatcher,
		collector:  NewCollector(registry),
		finisher:   finisher,
		history:    history,
		sweeper:    sweeper,
		cfg:        cfg,
		pool:       semaphore.NewWeighted(cfg.DispatchPool),
		now:        time.Now,
	}
}

// Registry exposes the job registry for status reporting.
func (c *Coordinator) Registry() *Registry {
	return c.registry
}

// Shutdown exposes the drain latch for status reporting.
func (c *Coordinator) Shutdown() *Shutdown {
	return c.shutdown
}

// Run polls until the fleet has been torn down or ctx is cancelled. It
// waits for in-flight dispatches before returning.
func (c *Coordinator) Run(ctx context.Context) error {
	ctx = logger.SetComponent(ctx, "coordinator")
	logger.CtxInfo(ctx, "Coordinator started (jobs=%s results=%s pool=%d)", c.cfg.JobQueue, c.cfg.ResultQueue, c.cfg.DispatchPool)

	runCtx, cancel := context.WithCancel(ctx)
	defer func() {
		cancel()
		c.wg.Wait()
	}()

	if c.sweeper != nil {
		c.wg.Add(1)
		go func() {
			defer c.wg.Done()
			c.sweeper.Run(runCtx)
		}()
	}

	for {
		select {
		case <-ctx.Done():
			logger.CtxInfo(ctx, "Coordinator stopping: %v", ctx.Err())
			return ctx.Err()
		case <-c.shutdown.Done():
			logger.CtxInfo(ctx, "Coordinator stopping after fleet teardown")
			return nil
		default:
		}

		handled := c.pollJobs(runCtx) + c.pollResults(runCtx)
		if handled > 0 {
			continue
		}

		select {
		case <-ctx.Done():
		case <-c.shutdown.Done():
		case <-time.After(c.cfg.IdleInterval):
		}
	}
}

// pollJobs returns the number of messages received.
func (c *Coordinator) pollJobs(ctx context.Context) int {
	qctx := logger.SetQueue(ctx, c.cfg.JobQueue)
	msgs, err := c.transport.Receive(qctx, c.cfg.JobQueue, c.cfg.JobBatch, c.cfg.Wait)
	if err != nil {
		if ctx.Err() == nil {
			logger.FromContext(qctx).WithError(err).Warn("Failed to receive jobs")
		}
		return 0
	}
	for _, msg := range msgs {
		if c.HandleJobMessage(qctx, msg.Body) {
			c.ack(qctx, c.cfg.JobQueue, msg)
		}
	}
	return len(msgs)
}

// pollResults returns the number of messages received.
func (c *Coordinator) pollResults(ctx context.Context) int {
	qctx := logger.SetQueue(ctx, c.cfg.ResultQueue)
	msgs, err := c.transport.Receive(qctx, c.cfg.ResultQueue, c.cfg.ResultBatch, c.cfg.Wait)
	if err != nil {
		if ctx.Err() == nil {
			logger.FromContext(qctx).WithError(err).Warn("Failed to receive task results")
		}
		return 0
	}
	for _, msg := range msgs {
		if c.HandleResultMessage(qctx, msg.Body) {
			c.ack(qctx, c.cfg.ResultQueue, msg)
		}
	}
	return len(msgs)
}

func (c *Coordinator) ack(ctx context.Context, queueName string, msg queue.Message) {
	if err := c.transport.Delete(ctx, queueName, msg.ReceiptHandle); err != nil {
		logger.FromContext(ctx).WithError(err).Warnf("Failed to delete message %s", msg.ID)
	}
}

// HandleJobMessage processes one inbound job message and reports whether
// it should be deleted from the queue.
func (c *Coordinator) HandleJobMessage(ctx context.Context, body string) bool {
	m, err := domain.Decode(body)
	if err != nil {
		return c.malformed(ctx, err)
	}
	newJob, ok := m.(domain.NewJob)
	if !ok {
		return c.malformed(ctx, errors.New("unexpected "+string(m.Kind())+" on job queue"))
	}
	return c.accept(logger.SetJobID(ctx, newJob.JobID), newJob)
}

func (c *Coordinator) accept(ctx context.Context, msg domain.NewJob) bool {
	if c.history != nil {
		finished, err := c.history.Exists(ctx, msg.JobID)
		if err != nil {
			logger.FromContext(ctx).WithError(err).Warn("Job history lookup failed")
		} else if finished {
			metrics.IncreaseJobsRejected(metrics.ReasonFinished)
			logger.CtxInfo(ctx, "Ignoring resubmission of a finished job")
			return true
		}
	}

	job := NewJob(msg, c.now())
	err := c.shutdown.Admit(msg.TerminateWhenDone, func() error {
		return c.registry.Register(job)
	})
	switch {
	case errors.Is(err, ErrDraining):
		metrics.IncreaseJobsRejected(metrics.ReasonDraining)
		logger.CtxWarn(ctx, "Rejecting job: coordinator is draining")
		return true
	case errors.Is(err, ErrDuplicateJob):
		metrics.IncreaseJobsRejected(metrics.ReasonDuplicate)
		logger.CtxWarn(ctx, "Rejecting duplicate submission of an active job")
		return true
	case err != nil:
		logger.FromContext(ctx).WithError(err).Error("Failed to register job")
		return false
	}

	metrics.IncreaseJobsAccepted()
	logger.FromContext(ctx).WithFields(logger.Fields{
		"input":               msg.Input().String(),
		"tasks_per_worker":    msg.TasksPerWorker,
		"terminate_when_done": msg.TerminateWhenDone,
	}).Info("Job accepted")

	c.startDispatch(ctx, job)
	return true
}

// startDispatch runs the dispatch on its own goroutine, bounded by the pool,
// so that acceptance never waits for enumeration.
func (c *Coordinator) startDispatch(ctx context.Context, job *Job) {
	c.wg.Add(1)
	go func() {
		defer c.wg.Done()
		if err := c.pool.Acquire(ctx, 1); err != nil {
			logger.FromContext(ctx).WithError(err).Warn("Dispatch abandoned")
			return
		}
		defer c.pool.Release(1)
		c.dispatch(ctx, job)
	}()
}

func (c *Coordinator) dispatch(ctx context.Context, job *Job) {
	res, err := c.dispatcher.Dispatch(ctx, job)
	switch {
	case err != nil:
		logger.FromContext(ctx).WithError(err).Error("Dispatch failed")
		c.finisher.Abort(ctx, job, domain.JobStateFailed, err.Error())
	case res.Tasks == 0:
		c.finisher.Abort(ctx, job, domain.JobStateEmpty, EmptyJobMessage)
	case res.Complete:
		c.finisher.Complete(ctx, job)
	}
}

// HandleResultMessage processes one task-completion message and reports
// whether it should be deleted from the queue.
func (c *Coordinator) HandleResultMessage(ctx context.Context, body string) bool {
	m, err := domain.Decode(body)
	if err != nil {
		return c.malformed(ctx, err)
	}
	done, ok := m.(domain.TaskDone)
	if !ok {
		return c.malformed(ctx, errors.New("unexpected "+string(m.Kind())+" on result queue"))
	}

	ctx = logger.SetTaskID(logger.SetJobID(ctx, done.JobID), done.TaskID)
	if job := c.collector.Apply(ctx, done.JobID, done.Result()); job != nil {
		c.finisher.Complete(ctx, job)
	}
	return true
}

func (c *Coordinator) malformed(ctx context.Context, err error) bool {
	metrics.IncreaseMalformed(logger.GetFieldString(ctx, logger.FieldQueue))
	logger.FromContext(ctx).WithError(err).Warn("Skipping undecodable message")
	return c.cfg.DeleteMalformed
}

// Wait blocks until every started dispatch has returned.
func (c *Coordinator) Wait() {
	c.wg.Wait()
}
