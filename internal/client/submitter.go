// Package client submits jobs to a running coordinator and waits for their
// completion.
package client

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"

	"github.com/timmy/textfleet/internal/domain"
	"github.com/timmy/textfleet/internal/fleet"
	"github.com/timmy/textfleet/internal/logger"
	"github.com/timmy/textfleet/internal/queue"
	"github.com/timmy/textfleet/internal/storage"
)

// ErrNoReport is returned when a job finished without a report location.
var ErrNoReport = errors.New("job finished without a report")

// Config holds configuration for the submitter.
type Config struct {
	Bucket      string
	Queues      queue.Names
	ManagerRole string
	// Wait is the long-poll duration for each receive on the reply queue.
	Wait time.Duration
	// PollInterval is slept between empty receives when Wait is zero.
	PollInterval time.Duration
}

// Request describes one job submission.
type Request struct {
	InputPath         string
	OutputPath        string
	TasksPerWorker    int
	TerminateWhenDone bool
}

// Result is the outcome of a finished job.
type Result struct {
	JobID      string
	Done       domain.JobDone
	ReportPath string
}

// Submitter uploads input, ensures a coordinator runs, sends NEW_JOB and
// collects the matching JOB_DONE.
type Submitter struct {
	store     storage.ObjectStorage
	transport queue.Transport
	scaler    *fleet.Scaler
	cfg       Config
	newID     func() string
}

// NewSubmitter creates a submitter.
func NewSubmitter(store storage.ObjectStorage, transport queue.Transport, scaler *fleet.Scaler, cfg Config) *Submitter {
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = time.Second
	}
	return &Submitter{
		store:     store,
		transport: transport,
		scaler:    scaler,
		cfg:       cfg,
		newID:     func() string { return "job-" + uuid.New().String() },
	}
}

// Submit runs the whole client flow and blocks until the job finishes or
// ctx is done.
func (s *Submitter) Submit(ctx context.Context, req Request) (*Result, error) {
	if req.TasksPerWorker < 1 {
		return nil, fmt.Errorf("tasks per worker must be positive, got %d", req.TasksPerWorker)
	}
	input, err := os.ReadFile(req.InputPath)
	if err != nil {
		return nil, fmt.Errorf("read input: %w", err)
	}

	jobID, err := s.Send(ctx, input, req.TasksPerWorker, req.TerminateWhenDone)
	if err != nil {
		return nil, err
	}
	ctx = logger.SetJobID(ctx, jobID)

	done, err := s.Await(ctx, jobID)
	if err != nil {
		return nil, err
	}
	res := &Result{JobID: jobID, Done: done}

	summary := done.Summary()
	if summary == nil {
		if done.Success {
			return res, ErrNoReport
		}
		return res, nil
	}
	if req.OutputPath != "" {
		if err := s.download(ctx, *summary, req.OutputPath); err != nil {
			return res, err
		}
		res.ReportPath = req.OutputPath
	}
	return res, nil
}

// Send prepares the bucket and queues, uploads input, makes sure a
// coordinator instance exists and sends the NEW_JOB. It returns the job id.
func (s *Submitter) Send(ctx context.Context, input []byte, tasksPerWorker int, terminate bool) (string, error) {
	jobID := s.newID()
	ctx = logger.SetJobID(ctx, jobID)

	if err := s.store.EnsureBucket(ctx, s.cfg.Bucket); err != nil {
		return "", fmt.Errorf("ensure bucket %s: %w", s.cfg.Bucket, err)
	}
	for _, name := range s.cfg.Queues.All() {
		if err := s.transport.Ensure(ctx, name); err != nil {
			return "", fmt.Errorf("ensure queue %s: %w", name, err)
		}
	}

	inputKey := "inputs/" + jobID + ".txt"
	if err := s.store.Put(ctx, s.cfg.Bucket, inputKey, input, "text/plain; charset=utf-8"); err != nil {
		return "", fmt.Errorf("upload input: %w", err)
	}

	if _, err := s.scaler.EnsureRunning(ctx, s.cfg.ManagerRole, 1); err != nil {
		return "", fmt.Errorf("ensure coordinator: %w", err)
	}

	body, err := domain.Encode(domain.NewJob{
		JobID:             jobID,
		InputBucket:       s.cfg.Bucket,
		InputKey:          inputKey,
		OutputPrefix:      "jobs/" + jobID + "/",
		TasksPerWorker:    tasksPerWorker,
		TerminateWhenDone: terminate,
	})
	if err != nil {
		return "", err
	}
	if err := s.transport.Send(ctx, s.cfg.Queues.AppToManager, body); err != nil {
		return "", fmt.Errorf("send NEW_JOB: %w", err)
	}

	logger.FromContext(ctx).WithFields(logger.Fields{
		"input":               s.store.URL(s.cfg.Bucket, inputKey),
		"tasks_per_worker":    tasksPerWorker,
		"terminate_when_done": terminate,
	}).Info("Job submitted")
	return jobID, nil
}

// Await polls the reply queue until the JOB_DONE for jobID arrives. Replies
// for other jobs are left on the queue for their own clients.
func (s *Submitter) Await(ctx context.Context, jobID string) (domain.JobDone, error) {
	replies := s.cfg.Queues.ManagerToApp
	for {
		msgs, err := s.transport.Receive(ctx, replies, 10, s.cfg.Wait)
		if err != nil {
			if ctx.Err() != nil {
				return domain.JobDone{}, ctx.Err()
			}
			return domain.JobDone{}, fmt.Errorf("receive JOB_DONE: %w", err)
		}

		for _, msg := range msgs {
			m, err := domain.Decode(msg.Body)
			if err != nil {
				continue
			}
			done, ok := m.(domain.JobDone)
			if !ok || done.JobID != jobID {
				continue
			}
			if err := s.transport.Delete(ctx, replies, msg.ReceiptHandle); err != nil {
				logger.FromContext(ctx).WithError(err).Warn("Failed to delete JOB_DONE")
			}
			logger.FromContext(ctx).WithFields(logger.Fields{
				"success": done.Success,
				"error":   done.ErrorMessage,
			}).Info("Job finished")
			return done, nil
		}

		if len(msgs) == 0 && s.cfg.Wait <= 0 {
			select {
			case <-ctx.Done():
				return domain.JobDone{}, ctx.Err()
			case <-time.After(s.cfg.PollInterval):
			}
		}
	}
}

func (s *Submitter) download(ctx context.Context, loc domain.Location, path string) error {
	data, err := s.store.Get(ctx, loc.Bucket, loc.Key)
	if err != nil {
		return fmt.Errorf("download report %s: %w", loc, err)
	}
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("create output directory: %w", err)
		}
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("write report: %w", err)
	}
	return nil
}
