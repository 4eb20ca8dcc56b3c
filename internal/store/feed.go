// Package store provides change-notification infrastructure for the record
// store. Row mutations publish a per-table, per-organization signal over
// Redis pub/sub; consumers open a Feed and re-derive state on every signal.
// Events carry no payload beyond "something changed".
package store

import (
	"context"
	"fmt"
	"sync"
	"time"

	"salesdesk_backend/platform/logger"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// Table identifies a logical table whose changes can be observed.
type Table string

const (
	// TableLeads is the sales leads table.
	TableLeads Table = "leads"
	// TableSessions is the conversation sessions table.
	TableSessions Table = "conversation_sessions"
)

// Feed yields change notifications for one table scoped to one organization.
type Feed interface {
	// Events delivers one signal per observed change. Signals are coalesced:
	// a slow consumer sees at least one signal for any burst of changes.
	Events() <-chan struct{}
	// Close tears down the subscription. Events is closed afterwards.
	Close() error
}

// Notifier announces row changes to all open feeds for the table/org pair.
type Notifier interface {
	NotifyChanged(ctx context.Context, table Table, organizationID uuid.UUID) error
}

// Subscriber opens change feeds.
type Subscriber interface {
	Subscribe(ctx context.Context, table Table, organizationID uuid.UUID) (Feed, error)
}

// Broker implements Notifier and Subscriber over Redis pub/sub.
type Broker struct {
	client *redis.Client
	log    *logger.Logger
}

// NewBroker creates a change-notification broker on the given Redis client.
func NewBroker(client *redis.Client, log *logger.Logger) *Broker {
	return &Broker{client: client, log: log}
}

func channelName(table Table, organizationID uuid.UUID) string {
	return fmt.Sprintf("store:changes:%s:%s", table, organizationID)
}

// NotifyChanged publishes a change signal for the table/org pair.
func (b *Broker) NotifyChanged(ctx context.Context, table Table, organizationID uuid.UUID) error {
	return b.client.Publish(ctx, channelName(table, organizationID), "1").Err()
}

// Subscribe opens a feed for the table/org pair. The feed survives transient
// connection loss: a dropped subscription is logged and reopened with
// backoff, and the consumer's view is merely stale until then.
func (b *Broker) Subscribe(ctx context.Context, table Table, organizationID uuid.UUID) (Feed, error) {
	channel := channelName(table, organizationID)

	pubsub := b.client.Subscribe(ctx, channel)
	// Force the initial SUBSCRIBE round trip so a dead broker fails fast.
	if _, err := pubsub.Receive(ctx); err != nil {
		_ = pubsub.Close()
		return nil, err
	}

	feedCtx, cancel := context.WithCancel(ctx)
	f := &redisFeed{
		events: make(chan struct{}, 1),
		cancel: cancel,
		pubsub: pubsub,
	}

	go f.pump(feedCtx, b, table, organizationID)

	return f, nil
}

type redisFeed struct {
	events    chan struct{}
	cancel    context.CancelFunc
	pubsub    *redis.PubSub
	closeOnce sync.Once
}

func (f *redisFeed) Events() <-chan struct{} { return f.events }

func (f *redisFeed) Close() error {
	f.cancel()
	return f.pubsub.Close()
}

func (f *redisFeed) pump(ctx context.Context, b *Broker, table Table, organizationID uuid.UUID) {
	defer f.closeOnce.Do(func() { close(f.events) })

	for {
		_, err := f.pubsub.ReceiveMessage(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			if b.log != nil {
				b.log.FeedReconnect(string(table), organizationID.String(), err)
			}
			// go-redis re-establishes the subscription under the hood;
			// back off before polling again so a hard-down broker does
			// not spin.
			select {
			case <-ctx.Done():
				return
			case <-time.After(time.Second):
			}
			continue
		}

		select {
		case f.events <- struct{}{}:
		default:
			// A signal is already pending; coalesce.
		}
	}
}

// Compile-time checks.
var (
	_ Notifier   = (*Broker)(nil)
	_ Subscriber = (*Broker)(nil)
)
