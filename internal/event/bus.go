package event

import (
	"context"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// Bus delivers events to subscriptions synchronously and in order.
// The zero value is not usable; create one with New.
type Bus struct {
	mu       sync.Mutex
	subs     map[string]*subscription
	retained map[Topic]Event
	closed   bool

	subSeq   atomic.Uint64
	eventSeq atomic.Uint64

	log zerolog.Logger

	eventsPublished atomic.Uint64
	eventsDelivered atomic.Uint64
	handlerErrors   atomic.Uint64
	handlerPanics   atomic.Uint64
}

// BusOption configures a Bus.
type BusOption func(*Bus)

// WithLogger sets the logger handler failures are reported to.
func WithLogger(log zerolog.Logger) BusOption {
	return func(b *Bus) {
		b.log = log
	}
}

// New creates an event bus. Without WithLogger, handler failures are
// discarded silently.
func New(opts ...BusOption) *Bus {
	b := &Bus{
		subs:     make(map[string]*subscription),
		retained: make(map[Topic]Event),
		log:      zerolog.Nop(),
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// Subscribe registers a handler for a topic. The wildcard All matches
// every topic. With WithReplay, the retained event for the topic (for
// All, every retained event in publish order) is delivered before
// Subscribe returns.
func (b *Bus) Subscribe(t Topic, handler Handler, opts ...SubscriptionOption) (Subscription, error) {
	if handler == nil {
		return nil, ErrNilHandler
	}
	if t == "" {
		return nil, ErrInvalidTopic
	}

	sub := newSubscription(uuid.NewString(), b.subSeq.Add(1), t, handler, opts...)

	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return nil, ErrBusClosed
	}
	b.subs[sub.id] = sub

	var replays []Event
	if sub.config.Replay {
		replays = b.retainedForLocked(t)
	}
	b.mu.Unlock()

	for _, ev := range replays {
		ev.Replayed = true
		if !b.deliver(context.Background(), sub, ev) {
			break // once subscription spent
		}
	}

	return sub, nil
}

// SubscribeFunc is a convenience method for subscribing with a function
// handler.
func (b *Bus) SubscribeFunc(t Topic, fn HandlerFunc, opts ...SubscriptionOption) (Subscription, error) {
	return b.Subscribe(t, fn, opts...)
}

// Unsubscribe removes a subscription.
func (b *Bus) Unsubscribe(sub Subscription) error {
	if sub == nil {
		return ErrInvalidSubscription
	}

	sub.Cancel()

	b.mu.Lock()
	_, found := b.subs[sub.ID()]
	delete(b.subs, sub.ID())
	b.mu.Unlock()

	if !found {
		return ErrSubscriptionNotFound
	}
	return nil
}

// Publish delivers an event to every matching subscription, higher
// priorities first, ties broken by subscription age. The event is
// retained as the topic's replay event. Handler failures never stop
// delivery; a cancelled context does, returning the context error.
func (b *Bus) Publish(ctx context.Context, t Topic, payload any) error {
	if t == "" || t == All {
		return ErrInvalidTopic
	}

	ev := Event{
		Topic:   t,
		Payload: payload,
		Seq:     b.eventSeq.Add(1),
		Time:    time.Now(),
	}

	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return ErrBusClosed
	}
	b.retained[t] = ev

	matched := make([]*subscription, 0, len(b.subs))
	for _, sub := range b.subs {
		if sub.matches(t) && sub.IsActive() {
			matched = append(matched, sub)
		}
	}
	b.mu.Unlock()

	sort.Slice(matched, func(i, j int) bool {
		if matched[i].config.Priority != matched[j].config.Priority {
			return matched[i].config.Priority > matched[j].config.Priority
		}
		return matched[i].seq < matched[j].seq
	})

	b.eventsPublished.Add(1)

	for _, sub := range matched {
		if err := ctx.Err(); err != nil {
			return err
		}
		b.deliver(ctx, sub, ev)
	}

	return nil
}

// deliver runs one handler with isolation. It reports whether the
// subscription remains active afterwards.
func (b *Bus) deliver(ctx context.Context, sub *subscription, ev Event) bool {
	if sub.config.Filter != nil && !sub.config.Filter(ev) {
		return sub.IsActive()
	}

	if sub.config.Once {
		// The claim wins the single delivery even when publishes race.
		if !sub.claim() {
			return false
		}
	} else if !sub.IsActive() {
		return false
	}

	err := b.safeHandle(ctx, sub, ev)
	switch {
	case err == nil:
		b.eventsDelivered.Add(1)
	default:
		b.log.Warn().
			Str("subscription", sub.id).
			Str("topic", string(ev.Topic)).
			Uint64("seq", ev.Seq).
			Err(err).
			Msg("event handler failed")
	}

	if sub.config.Once {
		b.mu.Lock()
		delete(b.subs, sub.id)
		b.mu.Unlock()
		return false
	}
	return sub.IsActive()
}

// safeHandle invokes the handler, converting a panic into an error.
func (b *Bus) safeHandle(ctx context.Context, sub *subscription, ev Event) (err error) {
	defer func() {
		if r := recover(); r != nil {
			b.handlerPanics.Add(1)
			err = &PanicError{SubscriptionID: sub.id, Topic: ev.Topic, Value: r}
		}
	}()

	if herr := sub.handler.Handle(ctx, ev); herr != nil {
		b.handlerErrors.Add(1)
		return &HandlerError{SubscriptionID: sub.id, Topic: ev.Topic, Err: herr}
	}
	return nil
}

// retainedForLocked collects replay events for a subscription topic in
// publish order. Callers hold b.mu.
func (b *Bus) retainedForLocked(t Topic) []Event {
	if t != All {
		if ev, ok := b.retained[t]; ok {
			return []Event{ev}
		}
		return nil
	}

	events := make([]Event, 0, len(b.retained))
	for _, ev := range b.retained {
		events = append(events, ev)
	}
	sort.Slice(events, func(i, j int) bool { return events[i].Seq < events[j].Seq })
	return events
}

// Retained returns the replay event for a topic, if one exists.
func (b *Bus) Retained(t Topic) (Event, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	ev, ok := b.retained[t]
	return ev, ok
}

// Stats returns current bus statistics.
func (b *Bus) Stats() Stats {
	b.mu.Lock()
	active := 0
	for _, sub := range b.subs {
		if sub.IsActive() {
			active++
		}
	}
	retained := len(b.retained)
	b.mu.Unlock()

	return Stats{
		EventsPublished:     b.eventsPublished.Load(),
		EventsDelivered:     b.eventsDelivered.Load(),
		HandlerErrors:       b.handlerErrors.Load(),
		HandlerPanics:       b.handlerPanics.Load(),
		ActiveSubscriptions: active,
		RetainedTopics:      retained,
	}
}

// Close cancels every subscription and drops retained events. Further
// publishes and subscribes fail with ErrBusClosed.
func (b *Bus) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return
	}
	b.closed = true

	for id, sub := range b.subs {
		sub.Cancel()
		delete(b.subs, id)
	}
	b.retained = make(map[Topic]Event)
}
