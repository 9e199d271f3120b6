package service

import (
	"context"
	"time"

	"github.com/timmy/textfleet/internal/domain"
	"github.com/timmy/textfleet/internal/fleet"
	"github.com/timmy/textfleet/internal/logger"
	"github.com/timmy/textfleet/internal/metrics"
	"github.com/timmy/textfleet/internal/queue"
	"github.com/timmy/textfleet/internal/storage"
)

// EmptyJobMessage is the JOB_DONE error for an input without valid entries.
const EmptyJobMessage = "no valid tasks in input"

// HistoryStore records finished jobs. It is optional.
type HistoryStore interface {
	Record(ctx context.Context, rec *domain.JobRecord) error
	Exists(ctx context.Context, jobID string) (bool, error)
}

// FinisherConfig holds configuration for job finalization.
type FinisherConfig struct {
	DoneQueue    string
	ReportBucket string
	ReportName   string
	WorkerRole   string
	Retry        RetryPolicy
}

// Finisher emits reports and JOB_DONE notifications, removes finished jobs
// and runs the fleet teardown once the drain completes.
type Finisher struct {
	registry  *Registry
	shutdown  *Shutdown
	store     storage.ObjectStorage
	transport queue.Transport
	scaler    *fleet.Scaler
	history   HistoryStore
	cfg       FinisherConfig
	now       func() time.Time
}

// NewFinisher creates a finisher. history may be nil.
func NewFinisher(registry *Registry, shutdown *Shutdown, store storage.ObjectStorage, transport queue.Transport, scaler *fleet.Scaler, history HistoryStore, cfg FinisherConfig) *Finisher {
	return &Finisher{
		registry:  registry,
		shutdown:  shutdown,
		store:     store,
		transport: transport,
		scaler:    scaler,
		history:   history,
		cfg:       cfg,
		now:       time.Now,
	}
}

// Complete persists the report of a completed job, notifies the client,
// removes the job and consults the shutdown latch. Only the first call for
// a job does anything.
func (f *Finisher) Complete(ctx context.Context, job *Job) {
	if !job.claimFinalize() {
		return
	}
	ctx = logger.SetJobID(ctx, job.ID)
	start := f.now()

	total, _ := job.Counts()
	rep := BuildReport(job.ID, total, job.Results(), func(loc domain.Location) string {
		return f.store.URL(loc.Bucket, loc.Key)
	}, f.now())

	done := domain.JobDone{JobID: job.ID, Success: rep.Success}
	if !rep.Success {
		done.ErrorMessage = PartialFailureMessage
	}

	reportKey := job.OutputPrefix + f.cfg.ReportName
	if err := f.persistReport(ctx, rep, reportKey); err != nil {
		logger.FromContext(ctx).WithError(err).Error("Failed to persist report")
		done.Success = false
		done.ErrorMessage = err.Error()
	} else {
		done.SummaryBucket = f.cfg.ReportBucket
		done.SummaryKey = reportKey
	}

	f.notify(ctx, done)
	f.registry.Remove(job.ID)

	outcome := metrics.OutcomeSuccess
	if !done.Success {
		outcome = metrics.OutcomeFailure
	}
	metrics.IncreaseJobsFinished(outcome)
	logger.With(logger.Fields{"success": done.Success, "failed": rep.Failed}).
		WithCount(rep.Completed).WithDuration(start).
		Info(ctx, "Job complete")

	f.record(ctx, job, domain.JobStateComplete, rep.Failed, done)
	f.maybeTeardown(ctx)
}

// Abort ends a job that never reached IN_PROGRESS: an empty input or a
// dispatch failure. The capacity planner is not involved.
func (f *Finisher) Abort(ctx context.Context, job *Job, state domain.JobState, reason string) {
	if !job.claimFinalize() {
		return
	}
	ctx = logger.SetJobID(ctx, job.ID)
	job.terminate(state)

	f.notify(ctx, domain.JobDone{JobID: job.ID, Success: false, ErrorMessage: reason})
	f.registry.Remove(job.ID)

	outcome := metrics.OutcomeFailure
	if state == domain.JobStateEmpty {
		outcome = metrics.OutcomeEmpty
	}
	metrics.IncreaseJobsFinished(outcome)
	logger.CtxWarn(ctx, "Job ended as %s: %s", state, reason)

	f.record(ctx, job, state, 0, domain.JobDone{ErrorMessage: reason})
	f.maybeTeardown(ctx)
}

func (f *Finisher) persistReport(ctx context.Context, rep Report, key string) error {
	body, err := rep.Render()
	if err != nil {
		return err
	}
	return f.cfg.Retry.do(ctx, func(ctx context.Context) error {
		return f.store.Put(ctx, f.cfg.ReportBucket, key, body, "text/html; charset=utf-8")
	})
}

func (f *Finisher) notify(ctx context.Context, done domain.JobDone) {
	body, err := domain.Encode(done)
	if err == nil {
		err = f.cfg.Retry.do(ctx, func(ctx context.Context) error {
			return f.transport.Send(ctx, f.cfg.DoneQueue, body)
		})
	}
	if err != nil {
		logger.FromContext(ctx).WithError(err).Error("Failed to send JOB_DONE")
	}
}

func (f *Finisher) record(ctx context.Context, job *Job, state domain.JobState, failed int, done domain.JobDone) {
	if f.history == nil {
		return
	}
	total, _ := job.Counts()
	rec := &domain.JobRecord{
		ID:             job.ID,
		State:          state,
		Success:        done.Success,
		TotalTasks:     total,
		FailedTasks:    failed,
		TasksPerWorker: job.TasksPerWorker,
		ReportBucket:   done.SummaryBucket,
		ReportKey:      done.SummaryKey,
		ErrorMessage:   done.ErrorMessage,
		AcceptedAt:     job.AcceptedAt,
		FinishedAt:     f.now(),
	}
	if err := f.history.Record(ctx, rec); err != nil {
		logger.FromContext(ctx).WithError(err).Warn("Failed to record job history")
	}
}

// maybeTeardown terminates the worker fleet once, after the last job of a
// draining coordinator finished, and then releases the main loop.
func (f *Finisher) maybeTeardown(ctx context.Context) {
	if !f.shutdown.BeginTeardown(f.registry.IsEmpty) {
		return
	}
	logger.CtxInfo(ctx, "Drain complete, terminating %s fleet", f.cfg.WorkerRole)

	var terminated int
	err := f.cfg.Retry.do(ctx, func(ctx context.Context) error {
		var err error
		terminated, err = f.scaler.TerminateAll(ctx, f.cfg.WorkerRole)
		return err
	})
	if err != nil {
		logger.FromContext(ctx).WithError(err).Error("Fleet teardown failed")
	} else {
		logger.With(logger.Fields{logger.FieldRole: f.cfg.WorkerRole}).WithCount(terminated).Info(ctx, "Fleet terminated")
	}
	f.shutdown.Finish()
}

