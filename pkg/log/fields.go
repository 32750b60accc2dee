package log

const (
	// Request
	FieldRequestID = "request_id"
	FieldMethod    = "method"
	FieldPath      = "path"
	FieldRoute     = "route"
	FieldStatus    = "status"
	FieldLatency   = "latency_ms"
	FieldClientIP  = "client_ip"

	// Actor
	FieldUserID   = "user_id"
	FieldUsername = "username"

	// Connection
	FieldConnID     = "conn_id"
	FieldFrameType  = "frame_type"
	FieldMessageID  = "message_id"
	FieldRecipients = "recipients"
	FieldAttempt    = "attempt"
	FieldDelay      = "delay"
	FieldState      = "state"
	FieldConnected  = "connected_for"

	// Service
	FieldService = "service"

	// Log type (for audit log)
	FieldLogType = "log_type"
	LogTypeAudit = "audit"
)
