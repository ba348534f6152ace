package types

// AnalyzeRequest is the body of POST /analyze and the WebSocket request frame.
type AnalyzeRequest struct {
	// Text to analyze. Schedule-like questions are answered with a structured record.
	// example: What time is my appointment?
	Prompt string `json:"prompt" example:"What time is my appointment?"`
}

// ErrorResponse is a consistent JSON error payload.
type ErrorResponse struct {
	// Error message.
	// example: invalid JSON body
	Error string `json:"error" example:"invalid JSON body"`
	// HTTP status code.
	// example: 400
	Code int `json:"code" example:"400"`
}

// ActiveRequest describes the request currently in flight.
type ActiveRequest struct {
	// example: 6f1c3f2e-2a43-4d55-9a55-6a0f5a1f7d0e
	ID string `json:"id" example:"6f1c3f2e-2a43-4d55-9a55-6a0f5a1f7d0e"`
	// Whether the request is answered with a structured record.
	// example: false
	Structured bool `json:"structured" example:"false"`
	// Admission time (unix seconds).
	// example: 1700000000
	AdmittedUnix int64 `json:"admitted_unix" example:"1700000000"`
	// Number of fragments received so far.
	// example: 12
	Fragments int `json:"fragments" example:"12"`
}

// StatusResponse is returned by GET /status.
type StatusResponse struct {
	// Engine lifecycle state (uninitialized, initializing, ready, failed).
	// example: ready
	Backend string `json:"backend" example:"ready"`
	// Engine kind serving requests.
	// example: ollama
	BackendKind string `json:"backend_kind" example:"ollama"`
	// Last engine initialization error, if any.
	BackendError string `json:"backend_error,omitempty"`
	// Supervisor state (idle, admitted, active, settled, closed).
	// example: idle
	State string `json:"state" example:"idle"`
	// Request in flight, if any.
	Active *ActiveRequest `json:"active,omitempty"`
	// Overlap policy for concurrent admissions (reject or supersede).
	// example: reject
	OverlapPolicy string `json:"overlap_policy" example:"reject"`
	// Timeout backstop in milliseconds.
	// example: 20000
	TimeoutMillis int64 `json:"timeout_ms" example:"20000"`
	// Total admitted requests.
	// example: 42
	AdmittedTotal uint64 `json:"admitted_total" example:"42"`
	// Total rejected admissions.
	// example: 3
	RejectedTotal uint64 `json:"rejected_total" example:"3"`
	// Total requests settled by the timeout backstop.
	// example: 5
	TimeoutsTotal uint64 `json:"timeouts_total" example:"5"`
	// Uptime of the server in seconds.
	// example: 3600
	UptimeSeconds int64 `json:"uptime_seconds" example:"3600"`
	// Server time in unix seconds.
	// example: 1700000000
	ServerTimeUnix int64 `json:"server_time_unix" example:"1700000000"`
}
