package event

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
)

func TestBus_PublishSubscribe(t *testing.T) {
	b := New()
	ctx := context.Background()

	var got []any
	_, err := b.SubscribeFunc(SettingsSaved, func(_ context.Context, ev Event) error {
		got = append(got, ev.Payload)
		return nil
	})
	if err != nil {
		t.Fatalf("Subscribe failed: %v", err)
	}

	if err := b.Publish(ctx, SettingsSaved, "v1"); err != nil {
		t.Fatalf("Publish failed: %v", err)
	}
	if err := b.Publish(ctx, SettingsChanged, "other"); err != nil {
		t.Fatalf("Publish failed: %v", err)
	}

	if len(got) != 1 || got[0] != "v1" {
		t.Errorf("got %v, want [v1]", got)
	}
}

func TestBus_PublishValidation(t *testing.T) {
	b := New()
	ctx := context.Background()

	if err := b.Publish(ctx, "", nil); !errors.Is(err, ErrInvalidTopic) {
		t.Errorf("empty topic: got %v, want ErrInvalidTopic", err)
	}
	if err := b.Publish(ctx, All, nil); !errors.Is(err, ErrInvalidTopic) {
		t.Errorf("wildcard publish: got %v, want ErrInvalidTopic", err)
	}
}

func TestBus_SubscribeValidation(t *testing.T) {
	b := New()

	if _, err := b.Subscribe(SettingsSaved, nil); !errors.Is(err, ErrNilHandler) {
		t.Errorf("nil handler: got %v, want ErrNilHandler", err)
	}
	if _, err := b.SubscribeFunc("", func(context.Context, Event) error { return nil }); !errors.Is(err, ErrInvalidTopic) {
		t.Errorf("empty topic: got %v, want ErrInvalidTopic", err)
	}
}

func TestBus_Wildcard(t *testing.T) {
	b := New()
	ctx := context.Background()

	var topics []Topic
	_, err := b.SubscribeFunc(All, func(_ context.Context, ev Event) error {
		topics = append(topics, ev.Topic)
		return nil
	})
	if err != nil {
		t.Fatalf("Subscribe failed: %v", err)
	}

	_ = b.Publish(ctx, Initialized, nil)
	_ = b.Publish(ctx, SettingsChanged, nil)
	_ = b.Publish(ctx, Error, nil)

	want := []Topic{Initialized, SettingsChanged, Error}
	if len(topics) != len(want) {
		t.Fatalf("got %d deliveries, want %d", len(topics), len(want))
	}
	for i, w := range want {
		if topics[i] != w {
			t.Errorf("topics[%d] = %s, want %s", i, topics[i], w)
		}
	}
}

func TestBus_PriorityOrder(t *testing.T) {
	b := New()
	ctx := context.Background()

	var order []string
	record := func(name string) HandlerFunc {
		return func(context.Context, Event) error {
			order = append(order, name)
			return nil
		}
	}

	// Subscribed low first; priority must override subscription order
	if _, err := b.SubscribeFunc(SettingsChanged, record("low"), WithPriority(PriorityLow)); err != nil {
		t.Fatalf("Subscribe failed: %v", err)
	}
	if _, err := b.SubscribeFunc(SettingsChanged, record("normal-1"), WithPriority(PriorityNormal)); err != nil {
		t.Fatalf("Subscribe failed: %v", err)
	}
	if _, err := b.SubscribeFunc(SettingsChanged, record("high"), WithPriority(PriorityHigh)); err != nil {
		t.Fatalf("Subscribe failed: %v", err)
	}
	// Same priority as normal-1; must run after it
	if _, err := b.SubscribeFunc(SettingsChanged, record("normal-2"), WithPriority(PriorityNormal)); err != nil {
		t.Fatalf("Subscribe failed: %v", err)
	}

	if err := b.Publish(ctx, SettingsChanged, nil); err != nil {
		t.Fatalf("Publish failed: %v", err)
	}

	want := []string{"high", "normal-1", "normal-2", "low"}
	if len(order) != len(want) {
		t.Fatalf("got %d deliveries, want %d", len(order), len(want))
	}
	for i, w := range want {
		if order[i] != w {
			t.Errorf("order[%d] = %s, want %s", i, order[i], w)
		}
	}
}

func TestBus_HandlerErrorIsolation(t *testing.T) {
	b := New()
	ctx := context.Background()

	var after bool
	if _, err := b.SubscribeFunc(SettingsChanged, func(context.Context, Event) error {
		return fmt.Errorf("boom")
	}, WithPriority(PriorityHigh)); err != nil {
		t.Fatalf("Subscribe failed: %v", err)
	}
	if _, err := b.SubscribeFunc(SettingsChanged, func(context.Context, Event) error {
		after = true
		return nil
	}); err != nil {
		t.Fatalf("Subscribe failed: %v", err)
	}

	if err := b.Publish(ctx, SettingsChanged, nil); err != nil {
		t.Fatalf("Publish should not fail on handler errors: %v", err)
	}
	if !after {
		t.Error("expected the second handler to run after the first failed")
	}

	stats := b.Stats()
	if stats.HandlerErrors != 1 {
		t.Errorf("HandlerErrors = %d, want 1", stats.HandlerErrors)
	}
	if stats.EventsDelivered != 1 {
		t.Errorf("EventsDelivered = %d, want 1", stats.EventsDelivered)
	}
}

func TestBus_HandlerPanicIsolation(t *testing.T) {
	b := New()
	ctx := context.Background()

	var after bool
	if _, err := b.SubscribeFunc(SettingsChanged, func(context.Context, Event) error {
		panic("handler bug")
	}, WithPriority(PriorityHigh)); err != nil {
		t.Fatalf("Subscribe failed: %v", err)
	}
	if _, err := b.SubscribeFunc(SettingsChanged, func(context.Context, Event) error {
		after = true
		return nil
	}); err != nil {
		t.Fatalf("Subscribe failed: %v", err)
	}

	if err := b.Publish(ctx, SettingsChanged, nil); err != nil {
		t.Fatalf("Publish should not fail on handler panics: %v", err)
	}
	if !after {
		t.Error("expected the second handler to run after the panic")
	}
	if got := b.Stats().HandlerPanics; got != 1 {
		t.Errorf("HandlerPanics = %d, want 1", got)
	}
}

func TestBus_Once(t *testing.T) {
	b := New()
	ctx := context.Background()

	count := 0
	sub, err := b.SubscribeFunc(SettingsSaved, func(context.Context, Event) error {
		count++
		return nil
	}, WithOnce())
	if err != nil {
		t.Fatalf("Subscribe failed: %v", err)
	}

	_ = b.Publish(ctx, SettingsSaved, nil)
	_ = b.Publish(ctx, SettingsSaved, nil)

	if count != 1 {
		t.Errorf("count = %d, want exactly 1 delivery", count)
	}

	// The spent subscription is already gone
	if err := b.Unsubscribe(sub); !errors.Is(err, ErrSubscriptionNotFound) {
		t.Errorf("Unsubscribe spent once: got %v, want ErrSubscriptionNotFound", err)
	}
}

func TestBus_Replay(t *testing.T) {
	b := New()
	ctx := context.Background()

	_ = b.Publish(ctx, SettingsSaved, "v7")

	var got []Event
	_, err := b.SubscribeFunc(SettingsSaved, func(_ context.Context, ev Event) error {
		got = append(got, ev)
		return nil
	}, WithReplay())
	if err != nil {
		t.Fatalf("Subscribe failed: %v", err)
	}

	if len(got) != 1 {
		t.Fatalf("expected replay delivery before Subscribe returned, got %d", len(got))
	}
	if got[0].Payload != "v7" {
		t.Errorf("payload = %v, want v7", got[0].Payload)
	}
	if !got[0].Replayed {
		t.Error("expected Replayed flag on replay delivery")
	}

	// Only the latest event is retained
	_ = b.Publish(ctx, SettingsSaved, "v8")
	if len(got) != 2 || got[1].Payload != "v8" {
		t.Errorf("live delivery after replay = %v", got)
	}
	if got[1].Replayed {
		t.Error("live delivery must not be marked replayed")
	}
}

func TestBus_ReplayNothingRetained(t *testing.T) {
	b := New()

	called := false
	_, err := b.SubscribeFunc(SettingsSaved, func(context.Context, Event) error {
		called = true
		return nil
	}, WithReplay())
	if err != nil {
		t.Fatalf("Subscribe failed: %v", err)
	}
	if called {
		t.Error("no retained event, expected no replay delivery")
	}
}

func TestBus_ReplayWildcard(t *testing.T) {
	b := New()
	ctx := context.Background()

	_ = b.Publish(ctx, Initialized, "first")
	_ = b.Publish(ctx, SettingsChanged, "second")
	_ = b.Publish(ctx, SettingsChanged, "third")

	var got []any
	_, err := b.SubscribeFunc(All, func(_ context.Context, ev Event) error {
		got = append(got, ev.Payload)
		return nil
	}, WithReplay())
	if err != nil {
		t.Fatalf("Subscribe failed: %v", err)
	}

	// One retained event per topic, in publish order
	if len(got) != 2 {
		t.Fatalf("got %d replays, want 2", len(got))
	}
	if got[0] != "first" || got[1] != "third" {
		t.Errorf("replays = %v, want [first third]", got)
	}
}

func TestBus_ReplayConsumesOnce(t *testing.T) {
	b := New()
	ctx := context.Background()

	_ = b.Publish(ctx, SettingsSaved, "retained")

	count := 0
	_, err := b.SubscribeFunc(SettingsSaved, func(context.Context, Event) error {
		count++
		return nil
	}, WithReplay(), WithOnce())
	if err != nil {
		t.Fatalf("Subscribe failed: %v", err)
	}

	_ = b.Publish(ctx, SettingsSaved, "live")

	if count != 1 {
		t.Errorf("count = %d, want 1: the replay is the once delivery", count)
	}
}

func TestBus_Filter(t *testing.T) {
	b := New()
	ctx := context.Background()

	var got []any
	_, err := b.SubscribeFunc(SettingChanged, func(_ context.Context, ev Event) error {
		got = append(got, ev.Payload)
		return nil
	}, WithFilter(func(ev Event) bool {
		s, ok := ev.Payload.(string)
		return ok && s != "skip"
	}))
	if err != nil {
		t.Fatalf("Subscribe failed: %v", err)
	}

	_ = b.Publish(ctx, SettingChanged, "skip")
	_ = b.Publish(ctx, SettingChanged, "keep")

	if len(got) != 1 || got[0] != "keep" {
		t.Errorf("got %v, want [keep]", got)
	}
}

func TestBus_FilterDoesNotConsumeOnce(t *testing.T) {
	b := New()
	ctx := context.Background()

	count := 0
	_, err := b.SubscribeFunc(SettingChanged, func(context.Context, Event) error {
		count++
		return nil
	}, WithOnce(), WithFilter(func(ev Event) bool {
		return ev.Payload == "match"
	}))
	if err != nil {
		t.Fatalf("Subscribe failed: %v", err)
	}

	_ = b.Publish(ctx, SettingChanged, "no")
	_ = b.Publish(ctx, SettingChanged, "match")

	if count != 1 {
		t.Errorf("count = %d, want 1: filtered events must not spend the once", count)
	}
}

func TestBus_Unsubscribe(t *testing.T) {
	b := New()
	ctx := context.Background()

	count := 0
	sub, err := b.SubscribeFunc(SettingsChanged, func(context.Context, Event) error {
		count++
		return nil
	})
	if err != nil {
		t.Fatalf("Subscribe failed: %v", err)
	}

	_ = b.Publish(ctx, SettingsChanged, nil)
	if err := b.Unsubscribe(sub); err != nil {
		t.Fatalf("Unsubscribe failed: %v", err)
	}
	_ = b.Publish(ctx, SettingsChanged, nil)

	if count != 1 {
		t.Errorf("count = %d, want 1", count)
	}

	if err := b.Unsubscribe(sub); !errors.Is(err, ErrSubscriptionNotFound) {
		t.Errorf("double unsubscribe: got %v, want ErrSubscriptionNotFound", err)
	}
	if err := b.Unsubscribe(nil); !errors.Is(err, ErrInvalidSubscription) {
		t.Errorf("nil unsubscribe: got %v, want ErrInvalidSubscription", err)
	}
}

func TestBus_CancelStopsDelivery(t *testing.T) {
	b := New()
	ctx := context.Background()

	count := 0
	sub, err := b.SubscribeFunc(SettingsChanged, func(context.Context, Event) error {
		count++
		return nil
	})
	if err != nil {
		t.Fatalf("Subscribe failed: %v", err)
	}

	sub.Cancel()
	if sub.IsActive() {
		t.Error("expected inactive after Cancel")
	}

	_ = b.Publish(ctx, SettingsChanged, nil)
	if count != 0 {
		t.Errorf("count = %d, want 0", count)
	}
}

func TestBus_Close(t *testing.T) {
	b := New()
	ctx := context.Background()

	sub, err := b.SubscribeFunc(SettingsChanged, func(context.Context, Event) error { return nil })
	if err != nil {
		t.Fatalf("Subscribe failed: %v", err)
	}

	b.Close()

	if sub.IsActive() {
		t.Error("expected subscriptions cancelled on Close")
	}
	if err := b.Publish(ctx, SettingsChanged, nil); !errors.Is(err, ErrBusClosed) {
		t.Errorf("Publish after Close: got %v, want ErrBusClosed", err)
	}
	if _, err := b.SubscribeFunc(SettingsChanged, func(context.Context, Event) error { return nil }); !errors.Is(err, ErrBusClosed) {
		t.Errorf("Subscribe after Close: got %v, want ErrBusClosed", err)
	}

	// Close is idempotent
	b.Close()
}

func TestBus_ContextCancelStopsPublish(t *testing.T) {
	b := New()
	ctx, cancel := context.WithCancel(context.Background())

	var ran []string
	if _, err := b.SubscribeFunc(SettingsChanged, func(context.Context, Event) error {
		ran = append(ran, "first")
		cancel()
		return nil
	}, WithPriority(PriorityHigh)); err != nil {
		t.Fatalf("Subscribe failed: %v", err)
	}
	if _, err := b.SubscribeFunc(SettingsChanged, func(context.Context, Event) error {
		ran = append(ran, "second")
		return nil
	}); err != nil {
		t.Fatalf("Subscribe failed: %v", err)
	}

	err := b.Publish(ctx, SettingsChanged, nil)
	if !errors.Is(err, context.Canceled) {
		t.Errorf("Publish = %v, want context.Canceled", err)
	}
	if len(ran) != 1 || ran[0] != "first" {
		t.Errorf("ran = %v, want [first]", ran)
	}
}

func TestBus_Retained(t *testing.T) {
	b := New()
	ctx := context.Background()

	if _, ok := b.Retained(SettingsSaved); ok {
		t.Error("expected no retained event before publish")
	}

	_ = b.Publish(ctx, SettingsSaved, "v1")
	ev, ok := b.Retained(SettingsSaved)
	if !ok || ev.Payload != "v1" {
		t.Errorf("Retained = %v/%v, want v1", ev.Payload, ok)
	}
}

func TestBus_Stats(t *testing.T) {
	b := New()
	ctx := context.Background()

	if _, err := b.SubscribeFunc(SettingsChanged, func(context.Context, Event) error { return nil }); err != nil {
		t.Fatalf("Subscribe failed: %v", err)
	}
	if _, err := b.SubscribeFunc(All, func(context.Context, Event) error { return nil }); err != nil {
		t.Fatalf("Subscribe failed: %v", err)
	}

	_ = b.Publish(ctx, SettingsChanged, nil)
	_ = b.Publish(ctx, Error, nil)

	stats := b.Stats()
	if stats.EventsPublished != 2 {
		t.Errorf("EventsPublished = %d, want 2", stats.EventsPublished)
	}
	if stats.EventsDelivered != 3 {
		t.Errorf("EventsDelivered = %d, want 3", stats.EventsDelivered)
	}
	if stats.ActiveSubscriptions != 2 {
		t.Errorf("ActiveSubscriptions = %d, want 2", stats.ActiveSubscriptions)
	}
	if stats.RetainedTopics != 2 {
		t.Errorf("RetainedTopics = %d, want 2", stats.RetainedTopics)
	}
}

func TestBus_ConcurrentPublishSubscribe(t *testing.T) {
	b := New()
	ctx := context.Background()

	var mu sync.Mutex
	count := 0
	for i := 0; i < 8; i++ {
		if _, err := b.SubscribeFunc(SettingsChanged, func(context.Context, Event) error {
			mu.Lock()
			count++
			mu.Unlock()
			return nil
		}); err != nil {
			t.Fatalf("Subscribe failed: %v", err)
		}
	}

	var wg sync.WaitGroup
	for i := 0; i < 4; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 25; j++ {
				_ = b.Publish(ctx, SettingsChanged, j)
			}
		}()
	}
	wg.Wait()

	mu.Lock()
	defer mu.Unlock()
	if count != 8*4*25 {
		t.Errorf("count = %d, want %d", count, 8*4*25)
	}
}
