package event

import "context"

// Priority determines handler execution order.
// Higher values execute first.
type Priority int

const (
	// PriorityLow is for logging and bookkeeping handlers that run last.
	PriorityLow Priority = -100

	// PriorityNormal is the default priority.
	PriorityNormal Priority = 0

	// PriorityHigh is for handlers that must observe changes before the
	// rest, such as persistence and cache invalidation.
	PriorityHigh Priority = 100
)

// String returns a human-readable priority name.
func (p Priority) String() string {
	switch {
	case p >= PriorityHigh:
		return "high"
	case p >= PriorityNormal:
		return "normal"
	default:
		return "low"
	}
}

// Handler is the interface for event handlers.
type Handler interface {
	// Handle processes an event. Errors are isolated to this handler.
	Handle(ctx context.Context, ev Event) error
}

// HandlerFunc is a function adapter for Handler.
type HandlerFunc func(ctx context.Context, ev Event) error

// Handle implements the Handler interface.
func (f HandlerFunc) Handle(ctx context.Context, ev Event) error {
	return f(ctx, ev)
}

// FilterFunc is a predicate for filtering events.
// Return true to allow the event, false to filter it out.
type FilterFunc func(ev Event) bool

// Stats contains event bus statistics.
type Stats struct {
	// EventsPublished is the total number of events published.
	EventsPublished uint64

	// EventsDelivered is the total number of successful handler runs.
	EventsDelivered uint64

	// HandlerErrors is the number of handlers that returned errors.
	HandlerErrors uint64

	// HandlerPanics is the number of handlers that panicked.
	HandlerPanics uint64

	// ActiveSubscriptions is the current number of live subscriptions.
	ActiveSubscriptions int

	// RetainedTopics is the number of topics with a retained event.
	RetainedTopics int
}
