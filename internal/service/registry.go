package service

import (
	"errors"
	"sort"
	"sync"
	"time"

	"github.com/timmy/textfleet/internal/domain"
	"github.com/timmy/textfleet/internal/metrics"
)

var (
	// ErrDuplicateJob is returned when a jobId is already registered.
	ErrDuplicateJob = errors.New("job already registered")
	// ErrJobNotFound is returned when no job is registered under a jobId.
	ErrJobNotFound = errors.New("job not found")
)

// RecordOutcome classifies what applying a task result did to a job.
type RecordOutcome int

const (
	// RecordApplied stored a first result for a task.
	RecordApplied RecordOutcome = iota
	// RecordCompleted stored a first result and it was the last one missing.
	RecordCompleted
	// RecordDuplicate overwrote an earlier result without counting it again.
	RecordDuplicate
	// RecordOrphan ignored a result for a task this job never dispatched.
	RecordOrphan
)

type dispatchedTask struct {
	task     domain.AnalysisTask
	sentAt   time.Time
	attempts int
}

// Job is the coordinator's in-memory view of one submitted job.
// The submission fields are immutable; everything below mu is guarded by it
// so that totalTasks, completedTasks and results are always read together.
type Job struct {
	ID                string
	Input             domain.Location
	OutputPrefix      string
	TasksPerWorker    int
	TerminateWhenDone bool
	AcceptedAt        time.Time

	mu             sync.Mutex
	state          domain.JobState
	totalTasks     int
	completedTasks int
	results        map[string]domain.TaskResult
	dispatched     map[string]*dispatchedTask
	finalized      bool
}

// NewJob creates a job in the dispatching state from a NEW_JOB message.
func NewJob(msg domain.NewJob, acceptedAt time.Time) *Job {
	return &Job{
		ID:                msg.JobID,
		Input:             msg.Input(),
		OutputPrefix:      msg.OutputPrefix,
		TasksPerWorker:    msg.TasksPerWorker,
		TerminateWhenDone: msg.TerminateWhenDone,
		AcceptedAt:        acceptedAt,
		state:             domain.JobStateDispatching,
		results:           make(map[string]domain.TaskResult),
		dispatched:        make(map[string]*dispatchedTask),
	}
}

// Track remembers a task as dispatched. It must be called before the task
// message is sent so that a fast completion is never mistaken for an orphan.
func (j *Job) Track(task domain.AnalysisTask, at time.Time) {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.dispatched[task.TaskID] = &dispatchedTask{task: task, sentAt: at}
}

// SetTotal publishes the enumerated task count, once. It reports whether
// every result had already arrived, in which case the job is now complete.
func (j *Job) SetTotal(n int) bool {
	j.mu.Lock()
	defer j.mu.Unlock()

	if j.totalTasks != 0 || n <= 0 || j.state != domain.JobStateDispatching {
		return false
	}
	j.totalTasks = n
	j.state = domain.JobStateInProgress
	if j.isCompleteLocked() {
		j.state = domain.JobStateComplete
		return true
	}
	return false
}

// Record applies one task result. Only the first result per task counts
// towards completion; a redelivered result replaces the stored one.
func (j *Job) Record(r domain.TaskResult) RecordOutcome {
	j.mu.Lock()
	defer j.mu.Unlock()

	if _, ok := j.dispatched[r.TaskID]; !ok {
		return RecordOrphan
	}
	if j.state.Terminal() {
		return RecordDuplicate
	}

	_, seen := j.results[r.TaskID]
	j.results[r.TaskID] = r
	if seen {
		return RecordDuplicate
	}

	j.completedTasks++
	if j.isCompleteLocked() {
		j.state = domain.JobStateComplete
		return RecordCompleted
	}
	return RecordApplied
}

// IsComplete reports completedTasks == totalTasks > 0.
func (j *Job) IsComplete() bool {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.isCompleteLocked()
}

func (j *Job) isCompleteLocked() bool {
	return j.totalTasks > 0 && j.completedTasks == j.totalTasks
}

// State returns the lifecycle state.
func (j *Job) State() domain.JobState {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.state
}

// Counts returns totalTasks and completedTasks from one consistent read.
func (j *Job) Counts() (total, completed int) {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.totalTasks, j.completedTasks
}

// Results returns a copy of the collected results.
func (j *Job) Results() map[string]domain.TaskResult {
	j.mu.Lock()
	defer j.mu.Unlock()
	out := make(map[string]domain.TaskResult, len(j.results))
	for k, v := range j.results {
		out[k] = v
	}
	return out
}

// terminate moves a job that never reached IN_PROGRESS to EMPTY or FAILED.
func (j *Job) terminate(state domain.JobState) {
	j.mu.Lock()
	defer j.mu.Unlock()
	if !j.state.Terminal() {
		j.state = state
	}
}

// claimFinalize returns true to exactly one caller.
func (j *Job) claimFinalize() bool {
	j.mu.Lock()
	defer j.mu.Unlock()
	if j.finalized {
		return false
	}
	j.finalized = true
	return true
}

// Overdue returns tasks still without a result whose last send is older than
// deadline and that were resent fewer than maxAttempts times. Returned tasks
// are marked as resent at now.
func (j *Job) Overdue(now time.Time, deadline time.Duration, maxAttempts int) []domain.AnalysisTask {
	j.mu.Lock()
	defer j.mu.Unlock()

	if j.state != domain.JobStateInProgress {
		return nil
	}
	var out []domain.AnalysisTask
	for id, d := range j.dispatched {
		if _, done := j.results[id]; done {
			continue
		}
		if d.attempts >= maxAttempts || now.Sub(d.sentAt) < deadline {
			continue
		}
		d.attempts++
		d.sentAt = now
		out = append(out, d.task)
	}
	sort.Slice(out, func(a, b int) bool { return compareTaskIDs(out[a].TaskID, out[b].TaskID) < 0 })
	return out
}

// JobSnapshot is a point-in-time copy of a job for status reporting.
type JobSnapshot struct {
	ID                string          `json:"id"`
	State             domain.JobState `json:"state"`
	TotalTasks        int             `json:"total_tasks"`
	CompletedTasks    int             `json:"completed_tasks"`
	FailedTasks       int             `json:"failed_tasks"`
	TasksPerWorker    int             `json:"tasks_per_worker"`
	TerminateWhenDone bool            `json:"terminate_when_done"`
	AcceptedAt        time.Time       `json:"accepted_at"`
}

// Snapshot copies the job's current state.
func (j *Job) Snapshot() JobSnapshot {
	j.mu.Lock()
	defer j.mu.Unlock()
	failed := 0
	for _, r := range j.results {
		if !r.Success {
			failed++
		}
	}
	return JobSnapshot{
		ID:                j.ID,
		State:             j.state,
		TotalTasks:        j.totalTasks,
		CompletedTasks:    j.completedTasks,
		FailedTasks:       failed,
		TasksPerWorker:    j.TasksPerWorker,
		TerminateWhenDone: j.TerminateWhenDone,
		AcceptedAt:        j.AcceptedAt,
	}
}

// Registry owns every active job of the coordinator process.
type Registry struct {
	mu   sync.RWMutex
	jobs map[string]*Job
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{jobs: make(map[string]*Job)}
}

// Register inserts a job, failing with ErrDuplicateJob if its id is taken.
func (r *Registry) Register(job *Job) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.jobs[job.ID]; ok {
		return ErrDuplicateJob
	}
	r.jobs[job.ID] = job
	metrics.SetActiveJobs(len(r.jobs))
	return nil
}

// Get returns the job registered under id or ErrJobNotFound.
func (r *Registry) Get(id string) (*Job, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	job, ok := r.jobs[id]
	if !ok {
		return nil, ErrJobNotFound
	}
	return job, nil
}

// Remove deletes a job. Removing an unknown id is a no-op.
func (r *Registry) Remove(id string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.jobs, id)
	metrics.SetActiveJobs(len(r.jobs))
}

// Len returns the number of active jobs.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.jobs)
}

// IsEmpty reports whether no job is active.
func (r *Registry) IsEmpty() bool {
	return r.Len() == 0
}

// Jobs returns the active jobs ordered by acceptance time.
func (r *Registry) Jobs() []*Job {
	r.mu.RLock()
	out := make([]*Job, 0, len(r.jobs))
	for _, j := range r.jobs {
		out = append(out, j)
	}
	r.mu.RUnlock()

	sort.Slice(out, func(a, b int) bool {
		if out[a].AcceptedAt.Equal(out[b].AcceptedAt) {
			return out[a].ID < out[b].ID
		}
		return out[a].AcceptedAt.Before(out[b].AcceptedAt)
	})
	return out
}
