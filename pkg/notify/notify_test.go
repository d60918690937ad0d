package notify

import (
	"sync"
	"testing"
)

func TestHub_PublishToSubscriber(t *testing.T) {
	hub := NewHub()

	var got []Event
	hub.Subscribe(EventEnabled, func(e Event) {
		got = append(got, e)
	})

	hub.Emit(EventEnabled, EnabledPayload{Kind: "screen", Strategy: "native"})
	hub.Emit(EventEnabled, EnabledPayload{Kind: "screen", Strategy: "media"})

	if len(got) != 2 {
		t.Fatalf("expected 2 events, got %d", len(got))
	}
	if got[0].Type != EventEnabled {
		t.Errorf("expected type %q, got %q", EventEnabled, got[0].Type)
	}
	payload, ok := got[0].Payload.(EnabledPayload)
	if !ok {
		t.Fatalf("unexpected payload type %T", got[0].Payload)
	}
	if payload.Strategy != "native" {
		t.Errorf("expected strategy native, got %q", payload.Strategy)
	}
	if got[0].Timestamp.IsZero() {
		t.Error("expected publish to stamp the event")
	}
}

func TestHub_TypeIsolation(t *testing.T) {
	hub := NewHub()

	calls := 0
	hub.Subscribe(EventDisabled, func(Event) { calls++ })

	hub.Emit(EventEnabled, nil)
	hub.Emit(EventError, nil)

	if calls != 0 {
		t.Errorf("expected no calls for other event types, got %d", calls)
	}
}

func TestHub_Once(t *testing.T) {
	hub := NewHub()

	calls := 0
	hub.Once(EventDisabled, func(Event) { calls++ })

	hub.Emit(EventDisabled, nil)
	hub.Emit(EventDisabled, nil)

	if calls != 1 {
		t.Errorf("expected one-shot handler to fire exactly once, got %d", calls)
	}
	if n := hub.SubscriberCount(EventDisabled); n != 0 {
		t.Errorf("expected one-shot subscriber removed, still have %d", n)
	}
}

func TestHub_SubscriptionClose(t *testing.T) {
	hub := NewHub()

	calls := 0
	sub := hub.Subscribe(EventFallback, func(Event) { calls++ })

	hub.Emit(EventFallback, nil)
	if err := sub.Close(); err != nil {
		t.Fatalf("close failed: %v", err)
	}
	// Closing twice must be safe.
	if err := sub.Close(); err != nil {
		t.Fatalf("second close failed: %v", err)
	}
	hub.Emit(EventFallback, nil)

	if calls != 1 {
		t.Errorf("expected 1 call after unsubscribe, got %d", calls)
	}
}

func TestHub_PublishDuringDispatch(t *testing.T) {
	hub := NewHub()

	var order []string
	hub.Once(EventEnabled, func(Event) {
		order = append(order, "once")
		// Recursive publish must not deadlock or retrigger the one-shot.
		hub.Emit(EventEnabled, nil)
	})

	hub.Emit(EventEnabled, nil)

	if len(order) != 1 {
		t.Errorf("expected one-shot not to retrigger itself, got %d calls", len(order))
	}
}

func TestHub_Close(t *testing.T) {
	hub := NewHub()

	calls := 0
	hub.Subscribe(EventError, func(Event) { calls++ })

	hub.Close()
	hub.Emit(EventError, nil)

	if calls != 0 {
		t.Errorf("expected no dispatch after close, got %d", calls)
	}

	// Subscribing after close is a no-op.
	hub.Subscribe(EventError, func(Event) { calls++ })
	hub.Emit(EventError, nil)
	if calls != 0 {
		t.Errorf("expected no dispatch for post-close subscription, got %d", calls)
	}
}

func TestHub_NilHandler(t *testing.T) {
	hub := NewHub()
	sub := hub.Subscribe(EventEnabled, nil)
	if err := sub.Close(); err != nil {
		t.Fatalf("close failed: %v", err)
	}
	// Must not panic.
	hub.Emit(EventEnabled, nil)
}

func TestHub_ConcurrentPublishSubscribe(t *testing.T) {
	hub := NewHub()

	var mu sync.Mutex
	calls := 0
	hub.Subscribe(EventPerformance, func(Event) {
		mu.Lock()
		calls++
		mu.Unlock()
	})

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 50; j++ {
				hub.Emit(EventPerformance, PerformancePayload{CPUPercent: 1})
			}
		}()
		wg.Add(1)
		go func() {
			defer wg.Done()
			sub := hub.Subscribe(EventPerformance, func(Event) {})
			_ = sub.Close()
		}()
	}
	wg.Wait()

	mu.Lock()
	defer mu.Unlock()
	if calls != 400 {
		t.Errorf("expected 400 deliveries to the persistent subscriber, got %d", calls)
	}
}
