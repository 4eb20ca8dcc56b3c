package handler

import (
	"net/http"
	"time"

	"salesdesk_backend/internal/inbox/domain"
	"salesdesk_backend/internal/inbox/transport"
	"salesdesk_backend/internal/inbox/watch"
	"salesdesk_backend/platform/httpkit"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

// keepAliveInterval bounds how long a proxy sees an idle SSE stream.
const keepAliveInterval = 30 * time.Second

// Stream pushes the live merged inbox over Server-Sent Events. Each
// connection runs its own merge session: both source tables are watched and
// every coalesced change yields one "inbox" event carrying the full view.
// When the client selects a conversation (?conversation=<id>) and that
// conversation is escalated, the stream also ticks its auto-release
// countdown once per second.
func (h *Handler) Stream(c *gin.Context) {
	identity := httpkit.MustGetIdentity(c)

	if h.subscriber == nil {
		httpkit.Error(c, http.StatusServiceUnavailable, "live updates are not available", nil)
		return
	}

	var query transport.InboxQuery
	if err := c.ShouldBindQuery(&query); err != nil {
		httpkit.Error(c, http.StatusBadRequest, msgInvalidRequest, nil)
		return
	}
	if err := h.validate.Struct(query); err != nil {
		httpkit.Error(c, http.StatusBadRequest, msgValidationFailed, err.Error())
		return
	}

	session, err := watch.Open(c.Request.Context(), h.svc, h.subscriber, identity.OrganizationID(), query.Filters(), h.log)
	if httpkit.HandleError(c, err) {
		return
	}
	defer session.Close()

	countdown := h.openCountdown(c, identity.OrganizationID())
	defer countdown.stop()

	c.Writer.Header().Set("Content-Type", "text/event-stream")
	c.Writer.Header().Set("Cache-Control", "no-cache")
	c.Writer.Header().Set("Connection", "keep-alive")
	c.Writer.Header().Set("X-Accel-Buffering", "no")

	c.SSEvent("connected", gin.H{"organizationId": identity.OrganizationID()})
	c.Writer.Flush()

	keepAlive := time.NewTicker(keepAliveInterval)
	defer keepAlive.Stop()

	clientGone := c.Request.Context().Done()
	for {
		select {
		case <-clientGone:
			return
		case <-keepAlive.C:
			c.SSEvent("ping", time.Now().Unix())
			c.Writer.Flush()
		case remaining, ok := <-countdown.ticks():
			if !ok {
				countdown.finish()
				continue
			}
			if remaining <= 0 {
				c.SSEvent("countdown_expired", gin.H{"conversationId": countdown.sessionID})
			} else {
				c.SSEvent("countdown", gin.H{
					"conversationId":   countdown.sessionID,
					"remainingSeconds": int64(remaining.Seconds()),
				})
			}
			c.Writer.Flush()
		case view, ok := <-session.Updates():
			if !ok {
				return
			}
			countdown.reconcile(view)
			c.SSEvent("inbox", transport.NewInboxResponse(view))
			c.Writer.Flush()
		}
	}
}

// streamCountdown tracks the selected conversation's auto-release clock for
// one SSE connection. View updates reconcile it: a mode change stops the
// clock, a prolong (new escalated_at) restarts it.
type streamCountdown struct {
	sessionID   uuid.UUID
	hours       int
	clock       *watch.Countdown
	escalatedAt *time.Time
	selected    bool
}

func (h *Handler) openCountdown(c *gin.Context, organizationID uuid.UUID) *streamCountdown {
	raw := c.Query("conversation")
	if raw == "" {
		return &streamCountdown{}
	}
	sessionID, err := uuid.Parse(raw)
	if err != nil {
		return &streamCountdown{}
	}

	sc := &streamCountdown{sessionID: sessionID, selected: true}

	hours, err := h.svc.AutoReleaseHours(c.Request.Context(), organizationID)
	if err != nil {
		return sc
	}
	sc.hours = hours

	session, err := h.svc.Session(c.Request.Context(), organizationID, sessionID)
	if err != nil {
		return sc
	}
	sc.start(session)
	return sc
}

func (sc *streamCountdown) start(session domain.Session) {
	sc.clock = watch.StartCountdown(session, sc.hours, time.Second)
	if session.EscalatedAt != nil {
		at := *session.EscalatedAt
		sc.escalatedAt = &at
	} else {
		sc.escalatedAt = nil
	}
}

func (sc *streamCountdown) ticks() <-chan time.Duration {
	if sc.clock == nil {
		return nil
	}
	return sc.clock.Ticks()
}

// reconcile aligns the clock with the latest merged view.
func (sc *streamCountdown) reconcile(view []domain.MergedLead) {
	if !sc.selected {
		return
	}

	var current *domain.Session
	for _, entry := range view {
		if entry.Session != nil && entry.Session.ID == sc.sessionID {
			current = entry.Session
			break
		}
	}

	if current == nil || current.ControlMode != domain.ControlHuman {
		sc.stop()
		return
	}

	if sc.clock == nil || !sameInstant(sc.escalatedAt, current.EscalatedAt) {
		sc.stop()
		sc.start(*current)
	}
}

func (sc *streamCountdown) stop() {
	if sc.clock != nil {
		sc.clock.Stop()
		sc.clock = nil
	}
}

// finish is called when the ticks channel closes on its own (window elapsed).
func (sc *streamCountdown) finish() {
	sc.clock = nil
}

func sameInstant(a, b *time.Time) bool {
	if a == nil || b == nil {
		return a == b
	}
	return a.Equal(*b)
}
