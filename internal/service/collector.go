package service

import (
	"context"

	"github.com/timmy/textfleet/internal/domain"
	"github.com/timmy/textfleet/internal/logger"
	"github.com/timmy/textfleet/internal/metrics"
)

// Collector applies task results to registered jobs.
type Collector struct {
	registry *Registry
}

// NewCollector creates a collector over registry.
func NewCollector(registry *Registry) *Collector {
	return &Collector{registry: registry}
}

// Apply records a result. It returns the job when this result completed it,
// nil otherwise. Results for unknown jobs or tasks are discarded.
func (c *Collector) Apply(ctx context.Context, jobID string, result domain.TaskResult) *Job {
	job, err := c.registry.Get(jobID)
	if err != nil {
		metrics.IncreaseTaskResults(metrics.OutcomeOrphan)
		logger.CtxDebug(ctx, "Discarding result for inactive job")
		return nil
	}

	switch job.Record(result) {
	case RecordOrphan:
		metrics.IncreaseTaskResults(metrics.OutcomeOrphan)
		logger.CtxWarn(ctx, "Discarding result for a task that was never dispatched")
		return nil
	case RecordDuplicate:
		metrics.IncreaseTaskResults(metrics.OutcomeDuplicate)
		logger.CtxInfo(ctx, "Duplicate result replaced the stored one")
		return nil
	case RecordCompleted:
		c.countOutcome(result)
		return job
	default:
		c.countOutcome(result)
		return nil
	}
}

func (c *Collector) countOutcome(result domain.TaskResult) {
	if result.Success {
		metrics.IncreaseTaskResults(metrics.OutcomeSuccess)
	} else {
		metrics.IncreaseTaskResults(metrics.OutcomeFailure)
	}
}
