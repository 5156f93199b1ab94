package models

// LogEntry is the unified structured-log shape emitted by every component.
type LogEntry struct {
	// ServiceName is the service or component that produced the entry.
	ServiceName string `json:"service_name"`

	// TraceID stitches together log lines belonging to a single request.
	TraceID string `json:"trace_id,omitempty"`

	// UserID identifies the user the event relates to, if any.
	UserID string `json:"user_id,omitempty"`

	// RequestInfo describes the HTTP request that triggered the entry.
	RequestInfo *RequestInfo `json:"request_info,omitempty"`

	// Error holds structured error details for Error-level entries.
	Error *ErrorInfo `json:"error,omitempty"`

	// Payload holds any additional business data worth recording.
	Payload map[string]interface{} `json:"payload,omitempty"`
}

// RequestInfo stores context about an HTTP request.
type RequestInfo struct {
	Method     string `json:"method"`
	Path       string `json:"path"`
	RemoteAddr string `json:"remote_addr"`
	UserAgent  string `json:"user_agent"`
}

// ErrorInfo stores structured information about an error.
type ErrorInfo struct {
	Message    string `json:"message"`
	Type       string `json:"type,omitempty"`
	StatusCode int    `json:"status_code,omitempty"`
}
