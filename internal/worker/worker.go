// Package worker consumes ANALYSIS_TASK messages and reports TASK_DONE.
package worker

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/timmy/textfleet/internal/analysis"
	"github.com/timmy/textfleet/internal/domain"
	"github.com/timmy/textfleet/internal/logger"
	"github.com/timmy/textfleet/internal/queue"
	"github.com/timmy/textfleet/internal/source"
	"github.com/timmy/textfleet/internal/storage"
)

// Config holds configuration for a worker process.
type Config struct {
	TaskQueue    string
	ResultQueue  string
	Wait         time.Duration
	FetchTimeout time.Duration
	// IdleInterval is slept after a failed or, without long polling, empty receive.
	IdleInterval time.Duration
}

// Worker processes one task at a time.
type Worker struct {
	transport queue.Transport
	store     storage.ObjectStorage
	fetcher   source.Fetcher
	analyzers *analysis.Registry
	cfg       Config
}

// New creates a worker.
func New(transport queue.Transport, store storage.ObjectStorage, fetcher source.Fetcher, analyzers *analysis.Registry, cfg Config) *Worker {
	if cfg.IdleInterval <= 0 {
		cfg.IdleInterval = time.Second
	}
	return &Worker{
		transport: transport,
		store:     store,
		fetcher:   fetcher,
		analyzers: analyzers,
		cfg:       cfg,
	}
}

// Run polls the task queue until ctx is cancelled.
func (w *Worker) Run(ctx context.Context) error {
	ctx = logger.SetQueue(logger.SetComponent(ctx, "worker"), w.cfg.TaskQueue)
	logger.CtxInfo(ctx, "Worker started (tasks=%s results=%s)", w.cfg.TaskQueue, w.cfg.ResultQueue)

	for {
		if err := ctx.Err(); err != nil {
			logger.CtxInfo(ctx, "Worker stopping: %v", err)
			return err
		}

		msgs, err := w.transport.Receive(ctx, w.cfg.TaskQueue, 1, w.cfg.Wait)
		if err != nil {
			if ctx.Err() != nil {
				continue
			}
			logger.FromContext(ctx).WithError(err).Warn("Failed to receive tasks")
			select {
			case <-ctx.Done():
			case <-time.After(w.cfg.IdleInterval):
			}
			continue
		}
		if len(msgs) == 0 && w.cfg.Wait <= 0 {
			select {
			case <-ctx.Done():
			case <-time.After(w.cfg.IdleInterval):
			}
		}
		for _, msg := range msgs {
			w.Handle(ctx, msg)
		}
	}
}

// Handle processes one task message. The message is deleted only after the
// TASK_DONE has been sent; undecodable messages are left for redelivery.
func (w *Worker) Handle(ctx context.Context, msg queue.Message) {
	m, err := domain.Decode(msg.Body)
	if err != nil {
		logger.FromContext(ctx).WithError(err).Warnf("Skipping undecodable message %s", msg.ID)
		return
	}
	task, ok := m.(domain.AnalysisTask)
	if !ok {
		logger.CtxWarn(ctx, "Skipping %s on task queue", m.Kind())
		return
	}

	ctx = logger.SetTaskID(logger.SetJobID(ctx, task.JobID), task.TaskID)
	start := time.Now()

	done := w.Process(ctx, task)

	body, err := domain.Encode(done)
	if err != nil {
		logger.FromContext(ctx).WithError(err).Error("Failed to encode TASK_DONE")
		return
	}
	if err := w.transport.Send(ctx, w.cfg.ResultQueue, body); err != nil {
		logger.FromContext(ctx).WithError(err).Error("Failed to send TASK_DONE, task will be redelivered")
		return
	}
	if err := w.transport.Delete(ctx, w.cfg.TaskQueue, msg.ReceiptHandle); err != nil {
		logger.FromContext(ctx).WithError(err).Warn("Failed to delete task message")
	}

	logger.With(logger.Fields{"success": done.Success, "analysis_type": task.AnalysisType}).
		WithDuration(start).Info(ctx, "Task processed")
}

// Process runs a task and returns its TASK_DONE. Failures are reported in
// the message, never returned.
func (w *Worker) Process(ctx context.Context, task domain.AnalysisTask) domain.TaskDone {
	done := domain.TaskDone{
		JobID:        task.JobID,
		TaskID:       task.TaskID,
		AnalysisType: task.AnalysisType,
		SourceURL:    task.SourceURL,
	}

	key, err := w.run(ctx, task)
	if err != nil {
		logger.FromContext(ctx).WithError(err).Warn("Task failed")
		done.ErrorMessage = err.Error()
		return done
	}
	done.Success = true
	done.ResultBucket = task.ResultBucket
	done.ResultKey = key
	return done
}

func (w *Worker) run(ctx context.Context, task domain.AnalysisTask) (string, error) {
	analyzer, err := w.analyzers.Get(task.AnalysisType)
	if err != nil {
		return "", err
	}

	fetchCtx := ctx
	if w.cfg.FetchTimeout > 0 {
		var cancel context.CancelFunc
		fetchCtx, cancel = context.WithTimeout(ctx, w.cfg.FetchTimeout)
		defer cancel()
	}
	data, err := w.fetcher.Fetch(fetchCtx, task.SourceURL)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return "", fmt.Errorf("fetch %s: timed out after %s", task.SourceURL, w.cfg.FetchTimeout)
		}
		return "", err
	}

	out, err := analyzer.Analyze(ctx, string(data))
	if err != nil {
		return "", fmt.Errorf("%s analysis of %s: %w", task.AnalysisType, task.SourceURL, err)
	}

	key := ResultKey(task)
	if err := w.store.Put(ctx, task.ResultBucket, key, []byte(out), "text/plain; charset=utf-8"); err != nil {
		return "", fmt.Errorf("upload result: %w", err)
	}
	return key, nil
}

// ResultKey is <resultPrefix><taskId>-<lowercase type>.txt.
func ResultKey(task domain.AnalysisTask) string {
	return task.ResultPrefix + task.TaskID + "-" + strings.ToLower(task.AnalysisType) + ".txt"
}
