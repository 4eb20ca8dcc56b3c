package events

import (
	"context"
	"errors"
	"testing"
)

type testEvent struct {
	BaseEvent
	name string
}

func (e testEvent) EventName() string { return e.name }

func TestPublishSyncRunsAllHandlersAndJoinsErrors(t *testing.T) {
	bus := NewInMemoryBus(nil)

	calls := 0
	bus.Subscribe("a", HandlerFunc(func(ctx context.Context, event Event) error {
		calls++
		return nil
	}))
	bus.Subscribe("a", HandlerFunc(func(ctx context.Context, event Event) error {
		calls++
		return errors.New("handler failed")
	}))

	err := bus.PublishSync(context.Background(), testEvent{BaseEvent: NewBaseEvent(), name: "a"})
	if calls != 2 {
		t.Fatalf("expected 2 handler calls, got %d", calls)
	}
	if err == nil {
		t.Fatalf("expected joined error from failing handler")
	}
}

func TestPublishSyncIgnoresUnrelatedEventNames(t *testing.T) {
	bus := NewInMemoryBus(nil)

	called := false
	bus.Subscribe("a", HandlerFunc(func(ctx context.Context, event Event) error {
		called = true
		return nil
	}))

	if err := bus.PublishSync(context.Background(), testEvent{BaseEvent: NewBaseEvent(), name: "b"}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if called {
		t.Fatalf("handler for %q must not receive event %q", "a", "b")
	}
}
