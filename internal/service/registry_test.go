package service

import (
	"strconv"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/timmy/textfleet/internal/domain"
)

func newTestJob(id string, terminate bool) *Job {
	return NewJob(domain.NewJob{
		JobID:             id,
		InputBucket:       "in",
		InputKey:          "inputs/" + id + ".txt",
		OutputPrefix:      "jobs/" + id + "/",
		TasksPerWorker:    2,
		TerminateWhenDone: terminate,
	}, time.Now())
}

func trackTasks(job *Job, n int) {
	for i := 0; i < n; i++ {
		job.Track(domain.AnalysisTask{JobID: job.ID, TaskID: strconv.Itoa(i), AnalysisType: "POS", SourceURL: "http://s/" + strconv.Itoa(i)}, time.Now())
	}
}

func result(id string, ok bool) domain.TaskResult {
	r := domain.TaskResult{TaskID: id, AnalysisType: "POS", SourceRef: "http://s/" + id, Success: ok}
	if ok {
		r.ResultLocation = &domain.Location{Bucket: "in", Key: "jobs/x/tasks/" + id + "-pos.txt"}
	} else {
		r.ErrorMessage = "fetch failed"
	}
	return r
}

func TestJobNotCompleteBeforeTotalIsKnown(t *testing.T) {
	job := newTestJob("j", false)
	trackTasks(job, 2)

	// fast workers answer before enumeration publishes the count
	assert.Equal(t, RecordApplied, job.Record(result("0", true)))
	assert.Equal(t, RecordApplied, job.Record(result("1", true)))

	total, completed := job.Counts()
	assert.Equal(t, 0, total)
	assert.Equal(t, 2, completed)
	assert.False(t, job.IsComplete())
	assert.Equal(t, domain.JobStateDispatching, job.State())

	assert.True(t, job.SetTotal(2))
	assert.True(t, job.IsComplete())
	assert.Equal(t, domain.JobStateComplete, job.State())
}

func TestJobCompletionIsOrderIndependent(t *testing.T) {
	orders := [][]string{
		{"0", "1", "2", "3"},
		{"3", "2", "1", "0"},
		{"2", "0", "3", "1"},
		{"1", "3", "0", "2"},
	}

	for _, order := range orders {
		t.Run("order "+order[0]+order[1]+order[2]+order[3], func(t *testing.T) {
			job := newTestJob("j", false)
			trackTasks(job, 4)
			require.False(t, job.SetTotal(4))

			for i, id := range order {
				outcome := job.Record(result(id, true))
				if i < len(order)-1 {
					assert.Equal(t, RecordApplied, outcome)
					assert.False(t, job.IsComplete())
				} else {
					assert.Equal(t, RecordCompleted, outcome)
					assert.True(t, job.IsComplete())
				}
			}
		})
	}
}

func TestJobDuplicateResultDoesNotDoubleCount(t *testing.T) {
	job := newTestJob("j", false)
	trackTasks(job, 2)
	job.SetTotal(2)

	assert.Equal(t, RecordApplied, job.Record(result("0", false)))
	assert.Equal(t, RecordDuplicate, job.Record(result("0", true)))

	_, completed := job.Counts()
	assert.Equal(t, 1, completed)
	assert.False(t, job.IsComplete())
	assert.True(t, job.Results()["0"].Success, "a duplicate overwrites the stored result")

	assert.Equal(t, RecordCompleted, job.Record(result("1", true)))
	assert.Equal(t, RecordDuplicate, job.Record(result("1", true)))
	_, completed = job.Counts()
	assert.Equal(t, 2, completed)
}

func TestJobOrphanTask(t *testing.T) {
	job := newTestJob("j", false)
	trackTasks(job, 1)
	job.SetTotal(1)

	assert.Equal(t, RecordOrphan, job.Record(result("99", true)))
	_, completed := job.Counts()
	assert.Zero(t, completed)
}

func TestJobSetTotalOnce(t *testing.T) {
	job := newTestJob("j", false)
	trackTasks(job, 3)

	assert.False(t, job.SetTotal(0))
	assert.Equal(t, domain.JobStateDispatching, job.State())

	assert.False(t, job.SetTotal(3))
	assert.False(t, job.SetTotal(5))
	total, _ := job.Counts()
	assert.Equal(t, 3, total)
}

func TestJobClaimFinalizeOnce(t *testing.T) {
	job := newTestJob("j", false)
	assert.True(t, job.claimFinalize())
	assert.False(t, job.claimFinalize())
}

func TestJobOverdue(t *testing.T) {
	job := newTestJob("j", false)
	base := time.Now()
	for i := 0; i < 3; i++ {
		job.Track(domain.AnalysisTask{JobID: "j", TaskID: strconv.Itoa(i)}, base)
	}
	assert.Empty(t, job.Overdue(base.Add(time.Hour), time.Minute, 2), "dispatching jobs are not swept")

	job.SetTotal(3)
	job.Record(result("1", true))

	overdue := job.Overdue(base.Add(30*time.Second), time.Minute, 2)
	assert.Empty(t, overdue)

	overdue = job.Overdue(base.Add(2*time.Minute), time.Minute, 2)
	require.Len(t, overdue, 2)
	assert.Equal(t, "0", overdue[0].TaskID)
	assert.Equal(t, "2", overdue[1].TaskID)

	assert.Empty(t, job.Overdue(base.Add(2*time.Minute), time.Minute, 2), "resend resets the clock")
	assert.Len(t, job.Overdue(base.Add(4*time.Minute), time.Minute, 2), 2)
	assert.Empty(t, job.Overdue(base.Add(time.Hour), time.Minute, 2), "attempts are bounded")
}

func TestRegistry(t *testing.T) {
	r := NewRegistry()
	assert.True(t, r.IsEmpty())

	a := newTestJob("a", false)
	require.NoError(t, r.Register(a))
	assert.ErrorIs(t, r.Register(newTestJob("a", true)), ErrDuplicateJob)

	got, err := r.Get("a")
	require.NoError(t, err)
	assert.Same(t, a, got, "a duplicate registration leaves the in-flight job untouched")

	_, err = r.Get("b")
	assert.ErrorIs(t, err, ErrJobNotFound)

	require.NoError(t, r.Register(newTestJob("b", false)))
	assert.Equal(t, 2, r.Len())
	assert.Len(t, r.Jobs(), 2)

	r.Remove("a")
	r.Remove("missing")
	assert.Equal(t, 1, r.Len())
}

func TestJobSnapshot(t *testing.T) {
	job := newTestJob("j", true)
	trackTasks(job, 2)
	job.SetTotal(2)
	job.Record(result("0", false))

	snap := job.Snapshot()
	assert.Equal(t, "j", snap.ID)
	assert.Equal(t, domain.JobStateInProgress, snap.State)
	assert.Equal(t, 2, snap.TotalTasks)
	assert.Equal(t, 1, snap.CompletedTasks)
	assert.Equal(t, 1, snap.FailedTasks)
	assert.True(t, snap.TerminateWhenDone)
}
