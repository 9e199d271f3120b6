package domain

import "time"

// JobState is the lifecycle state of a job held by the coordinator.
type JobState string

const (
	// JobStateDispatching: accepted, task count not yet known.
	JobStateDispatching JobState = "dispatching"
	// JobStateInProgress: task count published, awaiting completions.
	JobStateInProgress JobState = "in_progress"
	// JobStateComplete: every task reported in.
	JobStateComplete JobState = "complete"
	// JobStateEmpty: input held no valid task entries.
	JobStateEmpty JobState = "empty"
	// JobStateFailed: the job could not be dispatched.
	JobStateFailed JobState = "failed"
)

// Terminal reports whether no further transition is possible.
func (s JobState) Terminal() bool {
	return s == JobStateComplete || s == JobStateEmpty || s == JobStateFailed
}

// JobRecord is the persisted history row of a finished job.
type JobRecord struct {
	ID             string    `gorm:"type:text;primaryKey" json:"id"`
	State          JobState  `gorm:"type:text;not null;index" json:"state"`
	Success        bool      `json:"success"`
	TotalTasks     int       `gorm:"default:0" json:"total_tasks"`
	FailedTasks    int       `gorm:"default:0" json:"failed_tasks"`
	TasksPerWorker int       `json:"tasks_per_worker"`
	ReportBucket   string    `json:"report_bucket,omitempty"`
	ReportKey      string    `json:"report_key,omitempty"`
	ErrorMessage   string    `json:"error_message,omitempty"`
	AcceptedAt     time.Time `json:"accepted_at"`
	FinishedAt     time.Time `gorm:"index" json:"finished_at"`
	CreatedAt      time.Time `json:"created_at"`
}

// TableName returns the database table name for JobRecord.
func (JobRecord) TableName() string {
	return "job_history"
}
