package logger

// Fields is an alias for map[string]interface{} for convenience.
type Fields map[string]interface{}

// Tracing fields, propagated through the call chain via context.
const (
	// FieldRequestID is the HTTP request ID (UUID)
	FieldRequestID = "request_id"

	// FieldJobID is the sprint report job ID
	FieldJobID = "job_id"

	// FieldSprintRef is the upstream sprint identifier
	FieldSprintRef = "sprint_ref"

	// FieldStage is the pipeline stage currently executing
	FieldStage = "stage"

	// FieldComponent is the component/module name
	FieldComponent = "component"

	// FieldSource is the upstream system (jira, fathom, anthropic, ...)
	FieldSource = "source"
)

// Metric fields, attached per entry for aggregation and alerting.
const (
	// FieldDurationMs is the execution duration in milliseconds
	FieldDurationMs = "duration_ms"

	// FieldCount is a generic count field
	FieldCount = "count"

	// FieldSize is the data size in bytes
	FieldSize = "size"

	// FieldStatus is the operation status
	FieldStatus = "status"

	// FieldAttempt is the 1-based attempt number of a retried call
	FieldAttempt = "attempt"

	// FieldProgress is the job progress percentage
	FieldProgress = "progress"

	// FieldErrorKind is the domain error kind of a failed job
	FieldErrorKind = "error_kind"
)
