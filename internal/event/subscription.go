package event

import "sync/atomic"

// Subscription represents an active event subscription.
type Subscription interface {
	// ID returns the unique subscription identifier.
	ID() string

	// Topic returns the subscribed topic, possibly the wildcard.
	Topic() Topic

	// IsActive returns true if the subscription can receive events.
	IsActive() bool

	// Cancel permanently cancels the subscription. A cancelled
	// subscription receives no further events; the bus drops it on the
	// next publish that would have matched it.
	Cancel()
}

// SubscriptionConfig contains configuration for a subscription.
type SubscriptionConfig struct {
	// Priority determines execution order (higher values execute first).
	Priority Priority

	// Filter is an optional predicate. If set, events are only
	// delivered when Filter returns true.
	Filter FilterFunc

	// Once removes the subscription after its first delivery.
	Once bool

	// Replay delivers the retained event for the topic, if any, at
	// subscribe time.
	Replay bool
}

// SubscriptionOption configures a subscription.
type SubscriptionOption func(*SubscriptionConfig)

// WithPriority sets the subscription priority.
func WithPriority(p Priority) SubscriptionOption {
	return func(c *SubscriptionConfig) {
		c.Priority = p
	}
}

// WithFilter sets a filter predicate.
func WithFilter(f FilterFunc) SubscriptionOption {
	return func(c *SubscriptionConfig) {
		c.Filter = f
	}
}

// WithOnce removes the subscription after its first delivery.
func WithOnce() SubscriptionOption {
	return func(c *SubscriptionConfig) {
		c.Once = true
	}
}

// WithReplay delivers the retained event at subscribe time.
func WithReplay() SubscriptionOption {
	return func(c *SubscriptionConfig) {
		c.Replay = true
	}
}

// subscription is the internal implementation of Subscription.
type subscription struct {
	id      string
	topic   Topic
	handler Handler
	config  SubscriptionConfig

	// seq orders subscriptions of equal priority, oldest first.
	seq uint64

	cancelled atomic.Bool
}

func newSubscription(id string, seq uint64, t Topic, h Handler, opts ...SubscriptionOption) *subscription {
	config := SubscriptionConfig{Priority: PriorityNormal}
	for _, opt := range opts {
		opt(&config)
	}

	return &subscription{
		id:      id,
		topic:   t,
		handler: h,
		config:  config,
		seq:     seq,
	}
}

// ID returns the subscription ID.
func (s *subscription) ID() string {
	return s.id
}

// Topic returns the subscribed topic.
func (s *subscription) Topic() Topic {
	return s.topic
}

// IsActive returns true if the subscription is not cancelled.
func (s *subscription) IsActive() bool {
	return !s.cancelled.Load()
}

// Cancel permanently cancels the subscription.
func (s *subscription) Cancel() {
	s.cancelled.Store(true)
}

// claim atomically takes the single delivery of a once subscription.
func (s *subscription) claim() bool {
	return s.cancelled.CompareAndSwap(false, true)
}

// matches reports whether the subscription listens to a published topic.
func (s *subscription) matches(t Topic) bool {
	return s.topic == All || s.topic == t
}
