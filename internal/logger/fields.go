package logger

// Fields is an alias for map[string]interface{} for convenience.
type Fields map[string]interface{}

// ============================================
// Standard Tracing Fields (Context level)
// These fields are propagated through the call chain
// ============================================

const (
	// FieldRequestID is the HTTP request ID (UUID)
	FieldRequestID = "request_id"

	// FieldJobID is the client-assigned job correlation key
	FieldJobID = "job_id"

	// FieldTaskID identifies a task within its job
	FieldTaskID = "task_id"

	// FieldQueue is the queue a message was received from or sent to
	FieldQueue = "queue"

	// FieldMessageType is the message discriminator
	FieldMessageType = "message_type"

	// FieldComponent is the component/module name
	FieldComponent = "component"

	// FieldRole is the fleet role (Worker, Manager)
	FieldRole = "role"
)

// ============================================
// Standard Metric Fields (Entry level)
// These fields are used for aggregation and alerting
// ============================================

const (
	// FieldDurationMs is the execution duration in milliseconds
	FieldDurationMs = "duration_ms"

	// FieldCount is a generic count field
	FieldCount = "count"

	// FieldSize is the data size in bytes
	FieldSize = "size"

	// FieldStatus is the operation status
	FieldStatus = "status"
)
