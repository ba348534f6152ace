package types

// NotificationKind names one of the messages delivered to a caller.
type NotificationKind string

const (
	KindPartial  NotificationKind = "partial"
	KindResult   NotificationKind = "result"
	KindNoResult NotificationKind = "no_result"
	KindError    NotificationKind = "error"
)

// Terminal reports whether k settles a request.
func (k NotificationKind) Terminal() bool {
	return k == KindResult || k == KindNoResult || k == KindError
}

// Settlement reasons carried by terminal notifications.
const (
	ReasonCompleted  = "completed"
	ReasonTimeout    = "timeout"
	ReasonEngine     = "engine_error"
	ReasonSuperseded = "superseded"
	ReasonShutdown   = "shutdown"
	ReasonRejected   = "rejected"
)

// Notification is one NDJSON line (or WebSocket frame) sent to a caller.
type Notification struct {
	// Kind of message: partial, result, no_result or error.
	// example: partial
	Kind NotificationKind `json:"kind" example:"partial"`
	// Request this notification belongs to. Empty for admission rejections.
	// example: 6f1c3f2e-2a43-4d55-9a55-6a0f5a1f7d0e
	RequestID string `json:"request_id,omitempty" example:"6f1c3f2e-2a43-4d55-9a55-6a0f5a1f7d0e"`
	// Accumulated text (partial, result).
	// example: It is at 3pm.
	Text string `json:"text,omitempty" example:"It is at 3pm."`
	// Extracted structured record for schedule queries.
	Record *ScheduleRecord `json:"record,omitempty"`
	// Why the request settled (terminal kinds only).
	// example: completed
	Reason string `json:"reason,omitempty" example:"completed"`
	// Error message (error kind only).
	// example: busy: another analysis is in progress
	Error string `json:"error,omitempty" example:"busy: another analysis is in progress"`
}

// ScheduleRecord is the structured answer to a schedule query.
type ScheduleRecord struct {
	// example: 2025-05-23
	Date string `json:"date" example:"2025-05-23"`
	// example: 14:00
	Time string `json:"time" example:"14:00"`
	// example: Hospital appointment
	Title string `json:"title" example:"Hospital appointment"`
	// example: Seoul National University Hospital
	Location string `json:"location,omitempty" example:"Seoul National University Hospital"`
}
