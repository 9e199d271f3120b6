package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestCounters(t *testing.T) {
	before := testutil.ToFloat64(jobsRejectedMetric.WithLabelValues(ReasonDraining))
	IncreaseJobsRejected(ReasonDraining)
	assert.Equal(t, before+1, testutil.ToFloat64(jobsRejectedMetric.WithLabelValues(ReasonDraining)))

	beforeTasks := testutil.ToFloat64(tasksDispatchedMetric)
	AddTasksDispatched(3)
	assert.Equal(t, beforeTasks+3, testutil.ToFloat64(tasksDispatchedMetric))

	SetActiveJobs(2)
	assert.Equal(t, 2.0, testutil.ToFloat64(activeJobsMetric))
}
