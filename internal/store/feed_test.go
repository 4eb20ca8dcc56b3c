package store

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

func newTestBroker(t *testing.T) (*Broker, *miniredis.Miniredis) {
	t.Helper()

	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	return NewBroker(client, nil), mr
}

func waitForSignal(t *testing.T, feed Feed) {
	t.Helper()
	select {
	case _, ok := <-feed.Events():
		if !ok {
			t.Fatalf("feed closed before delivering a signal")
		}
	case <-time.After(2 * time.Second):
		t.Fatalf("timed out waiting for change signal")
	}
}

func TestNotifyChangedReachesSubscribedFeed(t *testing.T) {
	broker, _ := newTestBroker(t)
	orgID := uuid.New()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	feed, err := broker.Subscribe(ctx, TableLeads, orgID)
	if err != nil {
		t.Fatalf("subscribe: %v", err)
	}
	defer feed.Close()

	if err := broker.NotifyChanged(ctx, TableLeads, orgID); err != nil {
		t.Fatalf("notify: %v", err)
	}

	waitForSignal(t, feed)
}

func TestFeedsAreScopedByTableAndOrganization(t *testing.T) {
	broker, _ := newTestBroker(t)
	orgA := uuid.New()
	orgB := uuid.New()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	feed, err := broker.Subscribe(ctx, TableSessions, orgA)
	if err != nil {
		t.Fatalf("subscribe: %v", err)
	}
	defer feed.Close()

	// Same table, other org; other table, same org. Neither may signal.
	if err := broker.NotifyChanged(ctx, TableSessions, orgB); err != nil {
		t.Fatalf("notify: %v", err)
	}
	if err := broker.NotifyChanged(ctx, TableLeads, orgA); err != nil {
		t.Fatalf("notify: %v", err)
	}

	select {
	case <-feed.Events():
		t.Fatalf("feed received a signal outside its scope")
	case <-time.After(200 * time.Millisecond):
	}

	if err := broker.NotifyChanged(ctx, TableSessions, orgA); err != nil {
		t.Fatalf("notify: %v", err)
	}
	waitForSignal(t, feed)
}

func TestCloseShutsDownEventsChannel(t *testing.T) {
	broker, _ := newTestBroker(t)

	ctx := context.Background()
	feed, err := broker.Subscribe(ctx, TableLeads, uuid.New())
	if err != nil {
		t.Fatalf("subscribe: %v", err)
	}

	if err := feed.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}

	select {
	case _, ok := <-feed.Events():
		if ok {
			t.Fatalf("expected closed events channel, got signal")
		}
	case <-time.After(2 * time.Second):
		t.Fatalf("events channel not closed after Close")
	}
}
