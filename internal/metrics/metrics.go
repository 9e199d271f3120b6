// Package metrics exposes coordinator counters to prometheus.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

const (
	namespace = "textfleet"

	jobsAccepted     = "jobs_accepted_total"
	jobsRejected     = "jobs_rejected_total"
	jobsFinished     = "jobs_finished_total"
	tasksDispatched  = "tasks_dispatched_total"
	tasksRedispatch  = "tasks_redispatched_total"
	taskResults      = "task_results_total"
	workersRequested = "workers_requested_total"
	activeJobs       = "active_jobs"
	malformed        = "malformed_messages_total"

	// Labels
	reasonLabel  = "reason"
	outcomeLabel = "outcome"
	queueLabel   = "queue"
)

// Rejection reasons
const (
	ReasonDraining  = "draining"
	ReasonDuplicate = "duplicate"
	ReasonFinished  = "already_finished"
)

// Outcomes
const (
	OutcomeSuccess   = "success"
	OutcomeFailure   = "failure"
	OutcomeDuplicate = "duplicate"
	OutcomeOrphan    = "orphan"
	OutcomeEmpty     = "empty"
)

var jobsAcceptedMetric = prometheus.NewCounter(
	prometheus.CounterOpts{
		Namespace: namespace,
		Name:      jobsAccepted,
		Help:      "number of NEW_JOB submissions registered",
	},
)

var jobsRejectedMetric = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: namespace,
		Name:      jobsRejected,
		Help:      "number of NEW_JOB submissions acknowledged without being registered",
	},
	[]string{reasonLabel},
)

var jobsFinishedMetric = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: namespace,
		Name:      jobsFinished,
		Help:      "number of jobs that reached a terminal state, by outcome",
	},
	[]string{outcomeLabel},
)

var tasksDispatchedMetric = prometheus.NewCounter(
	prometheus.CounterOpts{
		Namespace: namespace,
		Name:      tasksDispatched,
		Help:      "number of ANALYSIS_TASK messages sent",
	},
)

var tasksRedispatchedMetric = prometheus.NewCounter(
	prometheus.CounterOpts{
		Namespace: namespace,
		Name:      tasksRedispatch,
		Help:      "number of ANALYSIS_TASK messages resent after the task deadline",
	},
)

var taskResultsMetric = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: namespace,
		Name:      taskResults,
		Help:      "number of TASK_DONE messages applied, by outcome",
	},
	[]string{outcomeLabel},
)

var workersRequestedMetric = prometheus.NewCounter(
	prometheus.CounterOpts{
		Namespace: namespace,
		Name:      workersRequested,
		Help:      "number of worker instances launched by the capacity planner",
	},
)

var activeJobsMetric = prometheus.NewGauge(
	prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      activeJobs,
		Help:      "number of jobs currently held by the registry",
	},
)

var malformedMetric = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: namespace,
		Name:      malformed,
		Help:      "number of undecodable or unknown-type messages received",
	},
	[]string{queueLabel},
)

func IncreaseJobsAccepted() {
	jobsAcceptedMetric.Inc()
}

func IncreaseJobsRejected(reason string) {
	jobsRejectedMetric.With(prometheus.Labels{reasonLabel: reason}).Inc()
}

func IncreaseJobsFinished(outcome string) {
	jobsFinishedMetric.With(prometheus.Labels{outcomeLabel: outcome}).Inc()
}

func AddTasksDispatched(n int) {
	tasksDispatchedMetric.Add(float64(n))
}

func IncreaseTasksRedispatched() {
	tasksRedispatchedMetric.Inc()
}

func IncreaseTaskResults(outcome string) {
	taskResultsMetric.With(prometheus.Labels{outcomeLabel: outcome}).Inc()
}

func AddWorkersRequested(n int) {
	workersRequestedMetric.Add(float64(n))
}

func SetActiveJobs(n int) {
	activeJobsMetric.Set(float64(n))
}

func IncreaseMalformed(queue string) {
	malformedMetric.With(prometheus.Labels{queueLabel: queue}).Inc()
}

func init() {
	registerMetrics()
}

func registerMetrics() {
	prometheus.MustRegister(jobsAcceptedMetric)
	prometheus.MustRegister(jobsRejectedMetric)
	prometheus.MustRegister(jobsFinishedMetric)
	prometheus.MustRegister(tasksDispatchedMetric)
	prometheus.MustRegister(tasksRedispatchedMetric)
	prometheus.MustRegister(taskResultsMetric)
	prometheus.MustRegister(workersRequestedMetric)
	prometheus.MustRegister(activeJobsMetric)
	prometheus.MustRegister(malformedMetric)
}
