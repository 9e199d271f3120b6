package domain

import (
	"encoding/json"
	"errors"
	"fmt"
)

// MessageType is the "type" discriminator carried by every queue message.
type MessageType string

const (
	TypeNewJob       MessageType = "NEW_JOB"
	TypeAnalysisTask MessageType = "ANALYSIS_TASK"
	TypeTaskDone     MessageType = "TASK_DONE"
	TypeJobDone      MessageType = "JOB_DONE"
)

var (
	// ErrMalformedMessage marks a payload that is not valid JSON or misses required fields.
	ErrMalformedMessage = errors.New("malformed message")
	// ErrUnknownMessageType marks a well-formed payload with an unrecognised discriminator.
	ErrUnknownMessageType = errors.New("unknown message type")
)

// Message is implemented by every wire message.
type Message interface {
	Kind() MessageType
}

// Location is an object-store coordinate.
type Location struct {
	Bucket string `json:"bucket"`
	Key    string `json:"key"`
}

// IsZero reports whether the location is unset.
func (l Location) IsZero() bool {
	return l.Bucket == "" && l.Key == ""
}

func (l Location) String() string {
	return "s3://" + l.Bucket + "/" + l.Key
}

// NewJob is sent by a client to submit work.
type NewJob struct {
	Type              MessageType `json:"type"`
	JobID             string      `json:"jobId"`
	InputBucket       string      `json:"inputBucket"`
	InputKey          string      `json:"inputKey"`
	OutputPrefix      string      `json:"outputPrefix"`
	TasksPerWorker    int         `json:"tasksPerWorker"`
	TerminateWhenDone bool        `json:"terminateWhenDone"`
}

func (NewJob) Kind() MessageType { return TypeNewJob }

// Input returns the input object coordinates.
func (m NewJob) Input() Location {
	return Location{Bucket: m.InputBucket, Key: m.InputKey}
}

func (m NewJob) MarshalJSON() ([]byte, error) {
	type alias NewJob
	a := alias(m)
	a.Type = TypeNewJob
	return json.Marshal(a)
}

func (m NewJob) validate() error {
	switch {
	case m.JobID == "":
		return fmt.Errorf("%w: NEW_JOB without jobId", ErrMalformedMessage)
	case m.InputBucket == "" || m.InputKey == "":
		return fmt.Errorf("%w: NEW_JOB %s without input location", ErrMalformedMessage, m.JobID)
	case m.TasksPerWorker < 1:
		return fmt.Errorf("%w: NEW_JOB %s has tasksPerWorker %d", ErrMalformedMessage, m.JobID, m.TasksPerWorker)
	}
	return nil
}

// AnalysisTask is sent by the coordinator to a worker.
type AnalysisTask struct {
	Type         MessageType `json:"type"`
	JobID        string      `json:"jobId"`
	TaskID       string      `json:"taskId"`
	AnalysisType string      `json:"analysisType"`
	SourceURL    string      `json:"sourceUrl"`
	ResultBucket string      `json:"resultBucket"`
	ResultPrefix string      `json:"resultPrefix"`
}

func (AnalysisTask) Kind() MessageType { return TypeAnalysisTask }

func (m AnalysisTask) MarshalJSON() ([]byte, error) {
	type alias AnalysisTask
	a := alias(m)
	a.Type = TypeAnalysisTask
	return json.Marshal(a)
}

func (m AnalysisTask) validate() error {
	if m.JobID == "" || m.TaskID == "" {
		return fmt.Errorf("%w: ANALYSIS_TASK without jobId or taskId", ErrMalformedMessage)
	}
	if m.AnalysisType == "" || m.SourceURL == "" {
		return fmt.Errorf("%w: ANALYSIS_TASK %s/%s without type or source", ErrMalformedMessage, m.JobID, m.TaskID)
	}
	return nil
}

// TaskDone is sent by a worker once a task has finished, successfully or not.
type TaskDone struct {
	Type         MessageType `json:"type"`
	JobID        string      `json:"jobId"`
	TaskID       string      `json:"taskId"`
	AnalysisType string      `json:"analysisType"`
	SourceURL    string      `json:"sourceUrl"`
	Success      bool        `json:"success"`
	ResultBucket string      `json:"resultBucket,omitempty"`
	ResultKey    string      `json:"resultKey,omitempty"`
	ErrorMessage string      `json:"errorMessage,omitempty"`
}

func (TaskDone) Kind() MessageType { return TypeTaskDone }

func (m TaskDone) MarshalJSON() ([]byte, error) {
	type alias TaskDone
	a := alias(m)
	a.Type = TypeTaskDone
	return json.Marshal(a)
}

func (m TaskDone) validate() error {
	if m.JobID == "" || m.TaskID == "" {
		return fmt.Errorf("%w: TASK_DONE without jobId or taskId", ErrMalformedMessage)
	}
	return nil
}

// Result converts the message into the collector's TaskResult.
// A success without a result location is downgraded to a failure.
func (m TaskDone) Result() TaskResult {
	r := TaskResult{
		TaskID:       m.TaskID,
		AnalysisType: m.AnalysisType,
		SourceRef:    m.SourceURL,
		Success:      m.Success,
	}
	switch {
	case m.Success && m.ResultKey == "":
		r.Success = false
		r.ErrorMessage = "worker reported success without a result location"
	case m.Success:
		r.ResultLocation = &Location{Bucket: m.ResultBucket, Key: m.ResultKey}
	case m.ErrorMessage == "":
		r.ErrorMessage = "unknown error"
	default:
		r.ErrorMessage = m.ErrorMessage
	}
	return r
}

// JobDone is sent by the coordinator when a job reaches a terminal state.
type JobDone struct {
	Type          MessageType `json:"type"`
	JobID         string      `json:"jobId"`
	Success       bool        `json:"success"`
	SummaryBucket string      `json:"summaryBucket,omitempty"`
	SummaryKey    string      `json:"summaryKey,omitempty"`
	ErrorMessage  string      `json:"errorMessage,omitempty"`
}

func (JobDone) Kind() MessageType { return TypeJobDone }

// Summary returns the report location, or nil if no report was persisted.
func (m JobDone) Summary() *Location {
	if m.SummaryKey == "" {
		return nil
	}
	return &Location{Bucket: m.SummaryBucket, Key: m.SummaryKey}
}

func (m JobDone) MarshalJSON() ([]byte, error) {
	type alias JobDone
	a := alias(m)
	a.Type = TypeJobDone
	return json.Marshal(a)
}

func (m JobDone) validate() error {
	if m.JobID == "" {
		return fmt.Errorf("%w: JOB_DONE without jobId", ErrMalformedMessage)
	}
	return nil
}

// Encode serializes a message with its discriminator.
func Encode(m Message) (string, error) {
	body, err := json.Marshal(m)
	if err != nil {
		return "", fmt.Errorf("encode %s: %w", m.Kind(), err)
	}
	return string(body), nil
}

// Decode parses the discriminator first and then the typed payload.
// Errors wrap ErrMalformedMessage or ErrUnknownMessageType.
func Decode(body string) (Message, error) {
	var envelope struct {
		Type MessageType `json:"type"`
	}
	if err := json.Unmarshal([]byte(body), &envelope); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedMessage, err)
	}

	switch envelope.Type {
	case TypeNewJob:
		return decodeAs[NewJob](body)
	case TypeAnalysisTask:
		return decodeAs[AnalysisTask](body)
	case TypeTaskDone:
		return decodeAs[TaskDone](body)
	case TypeJobDone:
		return decodeAs[JobDone](body)
	case "":
		return nil, fmt.Errorf("%w: missing type", ErrMalformedMessage)
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownMessageType, envelope.Type)
	}
}

type validatable interface {
	Message
	validate() error
}

func decodeAs[T validatable](body string) (Message, error) {
	var m T
	if err := json.Unmarshal([]byte(body), &m); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedMessage, err)
	}
	if err := m.validate(); err != nil {
		return nil, err
	}
	return m, nil
}
