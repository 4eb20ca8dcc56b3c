// Package events defines the domain events exchanged between modules.
package events

import (
	platformevents "salesdesk_backend/platform/events"

	"github.com/google/uuid"
)

// Re-export platform types so modules import a single events package.
type (
	Event       = platformevents.Event
	BaseEvent   = platformevents.BaseEvent
	Handler     = platformevents.Handler
	HandlerFunc = platformevents.HandlerFunc
	Bus         = platformevents.Bus
)

// NewBaseEvent creates a new base event with the current timestamp.
func NewBaseEvent() BaseEvent {
	return platformevents.NewBaseEvent()
}

// SessionEscalated fires when a conversation is handed off to a human.
type SessionEscalated struct {
	BaseEvent
	SessionID      uuid.UUID
	OrganizationID uuid.UUID
	Phone          string
	Reason         string
}

// EventName returns the unique event identifier.
func (SessionEscalated) EventName() string { return "inbox.session.escalated" }

// SessionReleased fires when control returns to the agent, whether released
// by an operator or by the auto-release worker.
type SessionReleased struct {
	BaseEvent
	SessionID      uuid.UUID
	OrganizationID uuid.UUID
	Phone          string
	AutoReleased   bool
}

// EventName returns the unique event identifier.
func (SessionReleased) EventName() string { return "inbox.session.released" }

// LeadCascadeDeleted fires after a cascading delete completes, whatever the
// outcome of the best-effort steps.
type LeadCascadeDeleted struct {
	BaseEvent
	LeadID         uuid.UUID
	OrganizationID uuid.UUID
	Phone          string
	LeadDeleted    bool
	Warnings       []string
}

// EventName returns the unique event identifier.
func (LeadCascadeDeleted) EventName() string { return "inbox.lead.cascade_deleted" }
