package logging

// Standard field names. Use these exact names in WithFields calls so that
// log queries work across components.
const (
	// Core identifiers
	LogFieldRequestID     = "request_id"
	LogFieldTraceID       = "trace_id"
	LogFieldMessageID     = "message_id"
	LogFieldChannelID     = "channel_id"
	LogFieldDestChannelID = "dest_channel_id"
	LogFieldDestMessageID = "dest_message_id"
	LogFieldChannelName   = "channel_name"

	// Service and operation fields
	LogFieldService   = "service"
	LogFieldOperation = "operation"
	LogFieldComponent = "component"
	LogFieldState     = "state"

	// Message and event fields
	LogFieldEventType = "event_type"
	LogFieldMediaType = "media_type"
	LogFieldChunks    = "chunks"

	// Performance and metrics
	LogFieldDuration = "duration_ms"
	LogFieldCount    = "count"
	LogFieldSize     = "size_bytes"

	// Network and external services
	LogFieldEndpoint   = "endpoint"
	LogFieldStatusCode = "status_code"
	LogFieldModel      = "model"

	// Error and debugging
	LogFieldErrorCode  = "error_code"
	LogFieldRetryCount = "retry_count"
	LogFieldAttempt    = "attempt"
)

// Log level usage:
//
// DEBUG: per-stage pipeline detail, raw payload sizes.
// INFO: startup and shutdown, successful deliveries.
// WARN: enrichment failures, retried translation attempts, unchanged edits.
// ERROR: messages that end in the Failed state.
// FATAL: startup configuration that cannot be satisfied.
