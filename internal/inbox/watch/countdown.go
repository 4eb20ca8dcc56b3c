package watch

import (
	"sync"
	"time"

	"salesdesk_backend/internal/inbox/domain"
)

// Countdown ticks down the auto-release window of one selected escalated
// session. It emits the remaining duration once per second and stops on its
// own when the window elapses. The caller stops it earlier when the selection
// changes or the session leaves human control.
type Countdown struct {
	ticks    chan time.Duration
	stop     chan struct{}
	stopOnce sync.Once
}

// StartCountdown arms a ticking countdown for the session. Returns nil when
// the session has no running window: not human-controlled, never escalated,
// or auto-release disabled.
func StartCountdown(session domain.Session, autoReleaseHours int, interval time.Duration) *Countdown {
	if domain.TimeRemaining(session, autoReleaseHours, time.Now()) == nil {
		return nil
	}
	if interval <= 0 {
		interval = time.Second
	}

	c := &Countdown{
		ticks: make(chan time.Duration),
		stop:  make(chan struct{}),
	}
	go c.run(session, autoReleaseHours, interval)
	return c
}

func (c *Countdown) run(session domain.Session, hours int, interval time.Duration) {
	defer close(c.ticks)

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-c.stop:
			return
		case now := <-ticker.C:
			remaining := domain.TimeRemaining(session, hours, now)
			if remaining == nil || *remaining <= 0 {
				select {
				case c.ticks <- 0:
				case <-c.stop:
				}
				return
			}
			select {
			case c.ticks <- *remaining:
			case <-c.stop:
				return
			}
		}
	}
}

// Ticks delivers the remaining duration once per interval. The final value is
// zero when the window elapsed; the channel closes afterwards.
func (c *Countdown) Ticks() <-chan time.Duration {
	return c.ticks
}

// Stop halts the countdown. Safe to call more than once.
func (c *Countdown) Stop() {
	c.stopOnce.Do(func() { close(c.stop) })
}
