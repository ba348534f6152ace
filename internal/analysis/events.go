package analysis

// Event represents a request lifecycle event.
// Minimal and stable: name + request ID and optional fields via key/values.
type Event struct {
	Name      string
	RequestID string
	Fields    map[string]any
}

// Event names.
const (
	EventAdmitted = "admitted"
	EventRejected = "rejected"
	EventSettled  = "settled"
)

// EventPublisher receives events from the supervisor. Implementations should be
// lightweight and non-blocking; Publish must not panic.
type EventPublisher interface {
	Publish(Event)
}

// noopPublisher is the default; it drops events.
type noopPublisher struct{}

func (noopPublisher) Publish(Event) {}
