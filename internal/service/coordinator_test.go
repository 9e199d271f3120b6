package service

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/timmy/textfleet/internal/domain"
	"github.com/timmy/textfleet/internal/fleet"
	"github.com/timmy/textfleet/internal/queue"
	"github.com/timmy/textfleet/internal/storage"
)

const (
	testJobQueue    = "app-to-manager"
	testDoneQueue   = "manager-to-app"
	testTaskQueue   = "manager-to-worker"
	testResultQueue = "worker-to-manager"
	testWorkerRole  = "Worker"
	testBucket      = "textfleet-test"
)

type harness struct {
	transport *queue.MemoryTransport
	store     *storage.MemoryStorage
	fleet     *fleet.MemoryController
	registry  *Registry
	shutdown  *Shutdown
	coord     *Coordinator
	sweeper   *DeadlineSweeper
}

type harnessOption func(*CoordinatorConfig)

func withDeleteMalformed() harnessOption {
	return func(c *CoordinatorConfig) { c.DeleteMalformed = true }
}

func newHarness(t *testing.T, opts ...harnessOption) *harness {
	t.Helper()

	h := &harness{
		transport: queue.NewMemoryTransport(time.Minute),
		store:     storage.NewMemoryStorage(),
		fleet:     fleet.NewMemoryController(),
		registry:  NewRegistry(),
		shutdown:  NewShutdown(),
	}
	retryPolicy := RetryPolicy{Retries: 1, Base: time.Millisecond, Max: time.Millisecond}
	scaler := fleet.NewScaler(h.fleet, 19)

	dispatcher := NewDispatcher(h.store, h.transport, scaler, DispatcherConfig{
		TaskQueue:  testTaskQueue,
		WorkerRole: testWorkerRole,
		Retry:      retryPolicy,
	})
	finisher := NewFinisher(h.registry, h.shutdown, h.store, h.transport, scaler, nil, FinisherConfig{
		DoneQueue:    testDoneQueue,
		ReportBucket: testBucket,
		ReportName:   "summary.html",
		WorkerRole:   testWorkerRole,
		Retry:        retryPolicy,
	})
	h.sweeper = NewDeadlineSweeper(h.registry, dispatcher, time.Minute, 2)

	cfg := CoordinatorConfig{
		JobQueue:     testJobQueue,
		ResultQueue:  testResultQueue,
		JobBatch:     10,
		ResultBatch:  10,
		Wait:         0,
		IdleInterval: 5 * time.Millisecond,
		DispatchPool: 4,
	}
	for _, opt := range opts {
		opt(&cfg)
	}
	h.coord = NewCoordinator(h.transport, h.registry, h.shutdown, dispatcher, finisher, nil, nil, cfg)
	return h
}

// submit uploads lines as the job input and hands a NEW_JOB to the coordinator.
func (h *harness) submit(t *testing.T, jobID string, tasksPerWorker int, terminate bool, lines ...string) bool {
	t.Helper()
	key := "inputs/" + jobID + ".txt"
	require.NoError(t, h.store.Put(context.Background(), testBucket, key, []byte(strings.Join(lines, "\n")), "text/plain"))
	return h.coord.HandleJobMessage(context.Background(), mustEncode(t, domain.NewJob{
		JobID:             jobID,
		InputBucket:       testBucket,
		InputKey:          key,
		OutputPrefix:      "jobs/" + jobID + "/",
		TasksPerWorker:    tasksPerWorker,
		TerminateWhenDone: terminate,
	}))
}

func (h *harness) tasks(t *testing.T, jobID string) []domain.AnalysisTask {
	t.Helper()
	var out []domain.AnalysisTask
	for _, body := range h.transport.Bodies(testTaskQueue) {
		m, err := domain.Decode(body)
		require.NoError(t, err)
		task := m.(domain.AnalysisTask)
		if task.JobID == jobID {
			out = append(out, task)
		}
	}
	return out
}

func (h *harness) complete(t *testing.T, task domain.AnalysisTask, ok bool) {
	t.Helper()
	done := domain.TaskDone{
		JobID:        task.JobID,
		TaskID:       task.TaskID,
		AnalysisType: task.AnalysisType,
		SourceURL:    task.SourceURL,
		Success:      ok,
	}
	if ok {
		done.ResultBucket = task.ResultBucket
		done.ResultKey = task.ResultPrefix + task.TaskID + "-pos.txt"
	} else {
		done.ErrorMessage = "source unreachable: " + task.SourceURL
	}
	assert.True(t, h.coord.HandleResultMessage(context.Background(), mustEncode(t, done)))
}

func (h *harness) jobDone(t *testing.T) []domain.JobDone {
	t.Helper()
	var out []domain.JobDone
	for _, body := range h.transport.Bodies(testDoneQueue) {
		m, err := domain.Decode(body)
		require.NoError(t, err)
		out = append(out, m.(domain.JobDone))
	}
	return out
}

func (h *harness) tornDown() bool {
	select {
	case <-h.shutdown.Done():
		return true
	default:
		return false
	}
}

func mustEncode(t *testing.T, m domain.Message) string {
	t.Helper()
	body, err := domain.Encode(m)
	require.NoError(t, err)
	return body
}

func TestCoordinatorPartialFailure(t *testing.T) {
	orders := map[string][]int{
		"in order": {0, 1, 2},
		"reversed": {2, 1, 0},
		"mixed":    {1, 2, 0},
	}

	for name, order := range orders {
		t.Run(name, func(t *testing.T) {
			h := newHarness(t)
			require.True(t, h.submit(t, "j1", 2, false,
				"POS\thttp://a/0", "CONSTITUENCY\thttp://a/1", "DEPENDENCY\thttp://a/2"))
			h.coord.Wait()

			tasks := h.tasks(t, "j1")
			require.Len(t, tasks, 3)
			assert.Equal(t, 2, h.fleet.Launched(testWorkerRole), "ceil(3/2) workers")
			for _, task := range tasks {
				assert.Equal(t, testBucket, task.ResultBucket)
				assert.Equal(t, "jobs/j1/tasks/", task.ResultPrefix)
			}

			job, err := h.registry.Get("j1")
			require.NoError(t, err)
			assert.Equal(t, domain.JobStateInProgress, job.State())

			for i, idx := range order {
				h.complete(t, tasks[idx], tasks[idx].TaskID != "1")
				if i < len(order)-1 {
					assert.Empty(t, h.jobDone(t), "no JOB_DONE before the last result")
				}
			}

			done := h.jobDone(t)
			require.Len(t, done, 1)
			assert.Equal(t, "j1", done[0].JobID)
			assert.False(t, done[0].Success)
			assert.Equal(t, PartialFailureMessage, done[0].ErrorMessage)
			assert.Equal(t, testBucket, done[0].SummaryBucket)
			assert.Equal(t, "jobs/j1/summary.html", done[0].SummaryKey)
			assert.True(t, h.registry.IsEmpty())

			report, err := h.store.Get(context.Background(), testBucket, "jobs/j1/summary.html")
			require.NoError(t, err)
			assert.Contains(t, string(report), "source unreachable: http://a/1")
			assert.Equal(t, 1, strings.Count(string(report), "<td>NO</td>"))
			assert.Equal(t, 2, strings.Count(string(report), "<td>YES</td>"))
		})
	}
}

func TestCoordinatorAllSuccess(t *testing.T) {
	h := newHarness(t)
	require.True(t, h.submit(t, "ok", 5, false, "POS\thttp://a/0", "POS\thttp://a/1"))
	h.coord.Wait()

	assert.Equal(t, 1, h.fleet.Launched(testWorkerRole))
	for _, task := range h.tasks(t, "ok") {
		h.complete(t, task, true)
	}

	done := h.jobDone(t)
	require.Len(t, done, 1)
	assert.True(t, done[0].Success)
	assert.Empty(t, done[0].ErrorMessage)
	assert.False(t, h.tornDown())
}

func TestCoordinatorDuplicateAndLateResults(t *testing.T) {
	h := newHarness(t)
	require.True(t, h.submit(t, "dup", 1, false, "POS\thttp://a/0", "POS\thttp://a/1"))
	h.coord.Wait()
	tasks := h.tasks(t, "dup")
	require.Len(t, tasks, 2)

	h.complete(t, tasks[0], true)
	h.complete(t, tasks[0], true)
	job, err := h.registry.Get("dup")
	require.NoError(t, err)
	_, completed := job.Counts()
	assert.Equal(t, 1, completed)
	assert.Empty(t, h.jobDone(t))

	h.complete(t, tasks[1], true)
	require.Len(t, h.jobDone(t), 1)

	// redelivery after the job finished is acknowledged and ignored
	h.complete(t, tasks[1], true)
	assert.Len(t, h.jobDone(t), 1)
}

func TestCoordinatorOrphanResult(t *testing.T) {
	h := newHarness(t)
	require.True(t, h.submit(t, "o", 1, false, "POS\thttp://a/0"))
	h.coord.Wait()

	h.complete(t, domain.AnalysisTask{JobID: "o", TaskID: "42", AnalysisType: "POS", SourceURL: "http://x"}, true)
	h.complete(t, domain.AnalysisTask{JobID: "unknown", TaskID: "0", AnalysisType: "POS", SourceURL: "http://x"}, true)

	job, err := h.registry.Get("o")
	require.NoError(t, err)
	_, completed := job.Counts()
	assert.Zero(t, completed)
	assert.Empty(t, h.jobDone(t))
}

func TestCoordinatorEmptyJob(t *testing.T) {
	h := newHarness(t)
	require.True(t, h.submit(t, "empty", 3, false, "", "not a task line", "   "))
	h.coord.Wait()

	done := h.jobDone(t)
	require.Len(t, done, 1)
	assert.False(t, done[0].Success)
	assert.Equal(t, EmptyJobMessage, done[0].ErrorMessage)
	assert.Nil(t, done[0].Summary())
	assert.Zero(t, h.fleet.Launched(testWorkerRole))
	assert.Zero(t, h.transport.Len(testTaskQueue))
	assert.True(t, h.registry.IsEmpty())
}

func TestCoordinatorMissingInput(t *testing.T) {
	h := newHarness(t)
	accepted := h.coord.HandleJobMessage(context.Background(), mustEncode(t, domain.NewJob{
		JobID: "missing", InputBucket: testBucket, InputKey: "inputs/nope.txt", OutputPrefix: "jobs/missing/", TasksPerWorker: 1,
	}))
	require.True(t, accepted)
	h.coord.Wait()

	done := h.jobDone(t)
	require.Len(t, done, 1)
	assert.False(t, done[0].Success)
	assert.Contains(t, done[0].ErrorMessage, "inputs/nope.txt")
	assert.True(t, h.registry.IsEmpty())
}

func TestCoordinatorDuplicateSubmission(t *testing.T) {
	h := newHarness(t)
	require.True(t, h.submit(t, "same", 1, false, "POS\thttp://a/0"))
	h.coord.Wait()
	require.True(t, h.submit(t, "same", 1, true, "POS\thttp://a/0", "POS\thttp://a/1"))
	h.coord.Wait()

	assert.Len(t, h.tasks(t, "same"), 1, "the second submission is not dispatched")
	assert.False(t, h.shutdown.Armed(), "a rejected duplicate does not arm shutdown")
}

func TestCoordinatorShutdownDrain(t *testing.T) {
	tests := []struct {
		name       string
		finishLast string
	}{
		{name: "plain job finishes last", finishLast: "A"},
		{name: "terminating job finishes last", finishLast: "B"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newHarness(t)
			require.True(t, h.submit(t, "A", 1, false, "POS\thttp://a/0", "POS\thttp://a/1"))
			require.True(t, h.submit(t, "B", 1, true, "POS\thttp://b/0"))
			h.coord.Wait()
			require.True(t, h.shutdown.Armed())

			require.True(t, h.submit(t, "C", 1, false, "POS\thttp://c/0"), "rejected jobs are acknowledged")
			h.coord.Wait()
			assert.Empty(t, h.tasks(t, "C"))
			_, err := h.registry.Get("C")
			assert.ErrorIs(t, err, ErrJobNotFound)

			first, last := "B", "A"
			if tt.finishLast == "B" {
				first, last = "A", "B"
			}

			for _, task := range h.tasks(t, first) {
				h.complete(t, task, true)
			}
			assert.Zero(t, h.fleet.TerminateCalls(testWorkerRole), "teardown waits for every job")
			assert.False(t, h.tornDown())

			for _, task := range h.tasks(t, last) {
				h.complete(t, task, true)
			}
			assert.Equal(t, 1, h.fleet.TerminateCalls(testWorkerRole))
			assert.True(t, h.tornDown())
			assert.Len(t, h.jobDone(t), 2)
		})
	}
}

func TestCoordinatorEmptyTerminatingJobTearsDown(t *testing.T) {
	h := newHarness(t)
	require.True(t, h.submit(t, "e", 1, true, "garbage"))
	h.coord.Wait()

	assert.Equal(t, 1, h.fleet.TerminateCalls(testWorkerRole))
	assert.True(t, h.tornDown())
}

func TestCoordinatorTeardownFailureStillFinishes(t *testing.T) {
	h := newHarness(t)
	h.fleet.OnTerminate(func(string) error { return errors.New("api unavailable") })
	require.True(t, h.submit(t, "t", 1, true, "POS\thttp://a/0"))
	h.coord.Wait()

	h.complete(t, h.tasks(t, "t")[0], true)
	assert.True(t, h.tornDown())
	assert.Zero(t, h.fleet.TerminateCalls(testWorkerRole))
}

func TestCoordinatorReportPersistFailure(t *testing.T) {
	h := newHarness(t)
	h.store.FailPutsWithPrefix("jobs/r/")
	require.True(t, h.submit(t, "r", 1, false, "POS\thttp://a/0"))
	h.coord.Wait()

	h.complete(t, h.tasks(t, "r")[0], true)

	done := h.jobDone(t)
	require.Len(t, done, 1)
	assert.False(t, done[0].Success)
	assert.NotEmpty(t, done[0].ErrorMessage)
	assert.Nil(t, done[0].Summary())
	assert.True(t, h.registry.IsEmpty())
}

func TestCoordinatorScaleUpFailureStillDispatches(t *testing.T) {
	h := newHarness(t)
	h.fleet.SetActiveError(errors.New("describe failed"))
	require.True(t, h.submit(t, "s", 1, false, "POS\thttp://a/0"))
	h.coord.Wait()

	assert.Len(t, h.tasks(t, "s"), 1)
	job, err := h.registry.Get("s")
	require.NoError(t, err)
	assert.Equal(t, domain.JobStateInProgress, job.State())
}

func TestCoordinatorMalformedMessages(t *testing.T) {
	tests := []struct {
		name   string
		delete bool
	}{
		{name: "left on the queue by default"},
		{name: "deleted when configured", delete: true},
	}

	bodies := []string{
		"not json",
		`{"type":"SOMETHING_ELSE"}`,
		`{"type":"NEW_JOB","jobId":"x"}`,
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var opts []harnessOption
			if tt.delete {
				opts = append(opts, withDeleteMalformed())
			}
			h := newHarness(t, opts...)

			for _, body := range bodies {
				assert.Equal(t, tt.delete, h.coord.HandleJobMessage(context.Background(), body))
				assert.Equal(t, tt.delete, h.coord.HandleResultMessage(context.Background(), body))
			}
			assert.True(t, h.registry.IsEmpty())
		})
	}
}

func TestCoordinatorRunDrainsAndExits(t *testing.T) {
	h := newHarness(t)
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	require.NoError(t, h.store.Put(ctx, testBucket, "inputs/run.txt", []byte("POS\thttp://a/0\nPOS\thttp://a/1\n"), "text/plain"))
	require.NoError(t, h.transport.Send(ctx, testJobQueue, mustEncode(t, domain.NewJob{
		JobID: "run", InputBucket: testBucket, InputKey: "inputs/run.txt", OutputPrefix: "jobs/run/",
		TasksPerWorker: 1, TerminateWhenDone: true,
	})))

	errCh := make(chan error, 1)
	go func() { errCh <- h.coord.Run(ctx) }()

	// play the worker side
	worked := 0
	require.Eventually(t, func() bool {
		msgs, err := h.transport.Receive(ctx, testTaskQueue, 10, 0)
		if err != nil {
			return false
		}
		for _, msg := range msgs {
			m, err := domain.Decode(msg.Body)
			if err != nil {
				return false
			}
			task := m.(domain.AnalysisTask)
			body, err := domain.Encode(domain.TaskDone{
				JobID: task.JobID, TaskID: task.TaskID, AnalysisType: task.AnalysisType, SourceURL: task.SourceURL,
				Success: true, ResultBucket: task.ResultBucket, ResultKey: task.ResultPrefix + task.TaskID + "-pos.txt",
			})
			if err != nil {
				return false
			}
			_ = h.transport.Send(ctx, testResultQueue, body)
			_ = h.transport.Delete(ctx, testTaskQueue, msg.ReceiptHandle)
			worked++
		}
		return worked == 2
	}, 5*time.Second, 5*time.Millisecond)

	select {
	case err := <-errCh:
		require.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("coordinator did not exit after teardown")
	}

	assert.Zero(t, h.transport.Len(testJobQueue), "NEW_JOB acknowledged")
	assert.Zero(t, h.transport.Len(testResultQueue), "TASK_DONE acknowledged")
	assert.Len(t, h.jobDone(t), 1)
	assert.Equal(t, 1, h.fleet.TerminateCalls(testWorkerRole))
}

func TestCoordinatorRunStopsOnCancel(t *testing.T) {
	h := newHarness(t)
	ctx, cancel := context.WithCancel(context.Background())

	errCh := make(chan error, 1)
	go func() { errCh <- h.coord.Run(ctx) }()
	cancel()

	select {
	case err := <-errCh:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(5 * time.Second):
		t.Fatal("coordinator did not stop")
	}
}

func TestDeadlineSweeperResendsOverdueTasks(t *testing.T) {
	h := newHarness(t)
	require.True(t, h.submit(t, "slow", 1, false, "POS\thttp://a/0", "POS\thttp://a/1"))
	h.coord.Wait()
	tasks := h.tasks(t, "slow")
	require.Len(t, tasks, 2)
	h.complete(t, tasks[0], true)

	base := time.Now()
	h.sweeper.now = func() time.Time { return base.Add(10 * time.Second) }
	assert.Zero(t, h.sweeper.Sweep(context.Background()))

	h.sweeper.now = func() time.Time { return base.Add(2 * time.Minute) }
	assert.Equal(t, 1, h.sweeper.Sweep(context.Background()))
	assert.Len(t, h.tasks(t, "slow"), 3)

	h.sweeper.now = func() time.Time { return base.Add(4 * time.Minute) }
	assert.Equal(t, 1, h.sweeper.Sweep(context.Background()))
	h.sweeper.now = func() time.Time { return base.Add(time.Hour) }
	assert.Zero(t, h.sweeper.Sweep(context.Background()), "resends are bounded")

	h.complete(t, tasks[1], true)
	assert.Len(t, h.jobDone(t), 1)
}
