// Package watch keeps a merged inbox view live: it subscribes to the change
// feeds of both source tables, re-merges on every signal, and retains the
// last successful result when a pass fails.
package watch

import (
	"context"
	"sync"

	"salesdesk_backend/internal/inbox/domain"
	"salesdesk_backend/internal/store"
	"salesdesk_backend/platform/apperr"
	"salesdesk_backend/platform/logger"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"
)

// Merger produces one merged view pass. Implemented by the inbox service.
type Merger interface {
	GetMergedView(ctx context.Context, organizationID uuid.UUID, filters domain.Filters) ([]domain.MergedLead, error)
}

// MergeSession is one operator's live view of the merged inbox. Feed signals
// from either table coalesce into a single re-merge trigger; merges run
// strictly one at a time, so a burst of changes costs one pass, not N.
type MergeSession struct {
	merger  Merger
	orgID   uuid.UUID
	log     *logger.Logger
	cancel  context.CancelFunc
	group   *errgroup.Group
	feeds   []store.Feed
	trigger chan struct{}
	updates chan []domain.MergedLead

	mu       sync.RWMutex
	filters  domain.Filters
	snapshot []domain.MergedLead

	closeOnce sync.Once
}

// Open subscribes to both source tables and starts the merge loop. The first
// merge runs immediately, so Snapshot is populated as soon as the initial
// pass completes. A failed subscription aborts with a typed error.
func Open(ctx context.Context, merger Merger, subscriber store.Subscriber, organizationID uuid.UUID, filters domain.Filters, log *logger.Logger) (*MergeSession, error) {
	sessionCtx, cancel := context.WithCancel(ctx)

	var feeds []store.Feed
	for _, table := range []store.Table{store.TableLeads, store.TableSessions} {
		feed, err := subscriber.Subscribe(sessionCtx, table, organizationID)
		if err != nil {
			for _, open := range feeds {
				_ = open.Close()
			}
			cancel()
			return nil, apperr.SubscriptionLost("failed to open change feed for "+string(table), err)
		}
		feeds = append(feeds, feed)
	}

	group, groupCtx := errgroup.WithContext(sessionCtx)
	s := &MergeSession{
		merger:  merger,
		orgID:   organizationID,
		log:     log,
		cancel:  cancel,
		group:   group,
		feeds:   feeds,
		trigger: make(chan struct{}, 1),
		updates: make(chan []domain.MergedLead, 1),
		filters: filters,
	}

	for _, feed := range feeds {
		feed := feed
		group.Go(func() error {
			return s.forward(groupCtx, feed)
		})
	}
	group.Go(func() error {
		return s.run(groupCtx)
	})

	s.Refresh()
	return s, nil
}

// forward funnels one feed's signals into the shared trigger.
func (s *MergeSession) forward(ctx context.Context, feed store.Feed) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case _, ok := <-feed.Events():
			if !ok {
				return nil
			}
			s.Refresh()
		}
	}
}

// run is the serialized merge loop.
func (s *MergeSession) run(ctx context.Context) error {
	defer close(s.updates)

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-s.trigger:
		}

		merged, err := s.merger.GetMergedView(ctx, s.orgID, s.Filters())
		if err != nil {
			// Keep showing the previous snapshot. The next signal, or a
			// manual Refresh, retries.
			if s.log != nil {
				s.log.MergeError(s.orgID.String(), err)
			}
			continue
		}

		s.mu.Lock()
		s.snapshot = merged
		s.mu.Unlock()

		select {
		case s.updates <- merged:
		default:
			// A newer view is already queued for the consumer; drop this one.
			select {
			case <-s.updates:
			default:
			}
			select {
			case s.updates <- merged:
			default:
			}
		}
	}
}

// Refresh requests a re-merge. Requests arriving while a merge is in flight
// coalesce into a single follow-up pass.
func (s *MergeSession) Refresh() {
	select {
	case s.trigger <- struct{}{}:
	default:
	}
}

// Updates delivers fresh merged views. Intermediate views may be skipped for
// a slow consumer; the latest is never lost. Closed by Close.
func (s *MergeSession) Updates() <-chan []domain.MergedLead {
	return s.updates
}

// Snapshot returns the last successfully merged view.
func (s *MergeSession) Snapshot() []domain.MergedLead {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.snapshot
}

// Filters returns the currently applied filter set.
func (s *MergeSession) Filters() domain.Filters {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.filters
}

// SetFilters swaps the filter set and triggers a re-merge.
func (s *MergeSession) SetFilters(filters domain.Filters) {
	s.mu.Lock()
	s.filters = filters
	s.mu.Unlock()
	s.Refresh()
}

// Close tears down both feeds and stops the merge loop. Safe to call more
// than once.
func (s *MergeSession) Close() error {
	var err error
	s.closeOnce.Do(func() {
		s.cancel()
		for _, feed := range s.feeds {
			if cerr := feed.Close(); cerr != nil && err == nil {
				err = cerr
			}
		}
		_ = s.group.Wait()
	})
	return err
}
