package service

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"golang.org/x/time/rate"

	"github.com/timmy/textfleet/internal/capacity"
	"github.com/timmy/textfleet/internal/domain"
	"github.com/timmy/textfleet/internal/fleet"
	"github.com/timmy/textfleet/internal/logger"
	"github.com/timmy/textfleet/internal/metrics"
	"github.com/timmy/textfleet/internal/queue"
	"github.com/timmy/textfleet/internal/storage"
)

// taskPrefix is appended to a job's output prefix to form the prefix workers write under.
const taskPrefix = "tasks/"

// DispatcherConfig holds configuration for the dispatch engine.
type DispatcherConfig struct {
	TaskQueue  string
	WorkerRole string
	// SendRate limits ANALYSIS_TASK sends per second; 0 is unlimited.
	SendRate float64
	Retry    RetryPolicy
}

// Dispatcher turns a job's input into task messages and sizes the fleet.
type Dispatcher struct {
	store     storage.ObjectStorage
	transport queue.Transport
	scaler    *fleet.Scaler
	limiter   *rate.Limiter
	cfg       DispatcherConfig
	now       func() time.Time
}

// NewDispatcher creates a dispatch engine.
func NewDispatcher(store storage.ObjectStorage, transport queue.Transport, scaler *fleet.Scaler, cfg DispatcherConfig) *Dispatcher {
	limit := rate.Inf
	if cfg.SendRate > 0 {
		limit = rate.Limit(cfg.SendRate)
	}
	return &Dispatcher{
		store:     store,
		transport: transport,
		scaler:    scaler,
		limiter:   rate.NewLimiter(limit, 1),
		cfg:       cfg,
		now:       time.Now,
	}
}

// DispatchResult describes a finished enumeration.
type DispatchResult struct {
	Tasks   int
	Skipped int
	// Complete is set when every result arrived before the task count was published.
	Complete bool
}

// Dispatch enumerates the job input, sends one ANALYSIS_TASK per valid
// entry, publishes the task count and then ensures enough workers run.
// A zero-task result leaves the job in the dispatching state.
func (d *Dispatcher) Dispatch(ctx context.Context, job *Job) (DispatchResult, error) {
	start := d.now()

	var data []byte
	err := d.cfg.Retry.do(ctx, func(ctx context.Context) error {
		var err error
		data, err = d.store.Get(ctx, job.Input.Bucket, job.Input.Key)
		return err
	})
	if err != nil {
		return DispatchResult{}, fmt.Errorf("fetch input %s: %w", job.Input, err)
	}

	specs, skipped := domain.ParseTaskList(data)
	for _, line := range skipped {
		logger.CtxWarn(ctx, "Skipping malformed input line %q", line)
	}
	res := DispatchResult{Tasks: len(specs), Skipped: len(skipped)}
	if len(specs) == 0 {
		return res, nil
	}

	for i, spec := range specs {
		task := domain.AnalysisTask{
			JobID:        job.ID,
			TaskID:       strconv.Itoa(i),
			AnalysisType: spec.AnalysisType,
			SourceURL:    spec.SourceRef,
			ResultBucket: job.Input.Bucket,
			ResultPrefix: job.OutputPrefix + taskPrefix,
		}
		job.Track(task, d.now())
		if err := d.send(ctx, task); err != nil {
			return res, err
		}
	}
	metrics.AddTasksDispatched(len(specs))

	res.Complete = job.SetTotal(len(specs))

	logger.With(logger.Fields{"skipped": len(skipped)}).
		WithCount(len(specs)).WithDuration(start).
		Info(ctx, "Dispatched tasks")

	d.ensureWorkers(ctx, len(specs), job.TasksPerWorker)
	return res, nil
}

// Resend sends a task again after its deadline passed.
func (d *Dispatcher) Resend(ctx context.Context, task domain.AnalysisTask) error {
	if err := d.send(ctx, task); err != nil {
		return err
	}
	metrics.IncreaseTasksRedispatched()
	return nil
}

func (d *Dispatcher) send(ctx context.Context, task domain.AnalysisTask) error {
	body, err := domain.Encode(task)
	if err != nil {
		return err
	}
	if err := d.limiter.Wait(ctx); err != nil {
		return err
	}
	err = d.cfg.Retry.do(ctx, func(ctx context.Context) error {
		return d.transport.Send(ctx, d.cfg.TaskQueue, body)
	})
	if err != nil {
		return fmt.Errorf("send task %s: %w", task.TaskID, err)
	}
	return nil
}

// ensureWorkers failures are logged: queued tasks are picked up by whatever
// workers exist and the next job retries the scale-up.
func (d *Dispatcher) ensureWorkers(ctx context.Context, tasks, tasksPerWorker int) {
	required := capacity.RequiredWorkers(tasks, tasksPerWorker)
	ids, err := d.scaler.EnsureRunning(ctx, d.cfg.WorkerRole, required)
	if len(ids) > 0 {
		metrics.AddWorkersRequested(len(ids))
	}
	if err != nil {
		logger.FromContext(ctx).WithError(err).Errorf("Failed to ensure %d workers", required)
	}
}
