// Package domain holds the inbox bounded context's core types and pure
// logic: the phone-keyed merge of leads and conversation sessions, and the
// escalation state machine. Nothing in this package touches the store.
package domain

import (
	"time"

	"github.com/google/uuid"
)

// QualificationScore is the agent's temperature rating for a lead.
type QualificationScore string

const (
	ScoreNew  QualificationScore = "new"
	ScoreHot  QualificationScore = "hot"
	ScoreWarm QualificationScore = "warm"
	ScoreCold QualificationScore = "cold"
)

// LeadStatus is the pipeline status of a lead.
type LeadStatus string

const (
	LeadStatusNew       LeadStatus = "new"
	LeadStatusQualified LeadStatus = "qualified"
	LeadStatusScheduled LeadStatus = "scheduled"
	LeadStatusConverted LeadStatus = "converted"
	LeadStatusLost      LeadStatus = "lost"
)

// ControlMode is who currently drives a conversation.
type ControlMode string

const (
	// ControlAgent means the bot has control (initial state).
	ControlAgent ControlMode = "agent"
	// ControlHuman means the conversation is handed off to an operator.
	ControlHuman ControlMode = "human"
	// ControlPaused means an operator suspended the conversation out of band.
	ControlPaused ControlMode = "paused"
)

// ControlFilterNone is a filter-only pseudo mode matching entries with no
// session at all. It is never a persisted control mode.
const ControlFilterNone = "none"

// Lead is a prospective customer record. Phone, normalized to E.164, is the
// only correlation key to sessions; no foreign key is guaranteed to exist.
type Lead struct {
	ID             uuid.UUID
	OrganizationID uuid.UUID
	Phone          string
	ContactName    string
	CompanyName    string
	Score          QualificationScore
	Status         LeadStatus
	Qualification  map[string]any
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

// LeadSummary is the snapshot of lead identity fields the agent embeds on a
// session at session-update time.
type LeadSummary struct {
	ContactName string
	CompanyName string
	Score       QualificationScore
	Status      LeadStatus
}

// Session is the live hand-off state for a phone number within an
// organization. At most one active session exists per (organization, phone).
// EscalatedAt is set if and only if ControlMode is human.
type Session struct {
	ID             uuid.UUID
	OrganizationID uuid.UUID
	Phone          string
	ControlMode    ControlMode
	Reason         string
	EscalatedAt    *time.Time
	UnreadCount    int
	LeadSummary    LeadSummary
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

// Message is an individual conversation turn, owned by a session.
type Message struct {
	ID        uuid.UUID
	SessionID uuid.UUID
	Direction string
	Body      string
	CreatedAt time.Time
}

// virtualLeadNamespace seeds the deterministic ids of virtual leads so they
// stay stable across merge passes.
var virtualLeadNamespace = uuid.MustParse("7a1d3c02-9e4b-4c51-8f2a-6de05b1a9c44")

// VirtualLeadID derives the synthetic lead id for an orphan session.
func VirtualLeadID(sessionID uuid.UUID) uuid.UUID {
	return uuid.NewSHA1(virtualLeadNamespace, sessionID[:])
}

// MergedLead is the derived unit handed to the presentation layer: a lead,
// real or virtual, decorated with its correlated session. Construct via
// NewRealEntry or NewVirtualEntry; the virtual tag is not settable directly,
// so a virtual entry can never be mistaken for a persisted row.
type MergedLead struct {
	Lead    Lead
	Session *Session
	virtual bool
}

// NewRealEntry builds a merged entry for a persisted lead.
func NewRealEntry(lead Lead, session *Session) MergedLead {
	return MergedLead{Lead: lead, Session: session}
}

// NewVirtualEntry synthesizes a merged entry for a session with no matching
// lead. Identity fields come from the session's embedded lead summary;
// score and status default to "new".
func NewVirtualEntry(session Session) MergedLead {
	score := session.LeadSummary.Score
	if score == "" {
		score = ScoreNew
	}
	status := session.LeadSummary.Status
	if status == "" {
		status = LeadStatusNew
	}

	s := session
	return MergedLead{
		Lead: Lead{
			ID:             VirtualLeadID(session.ID),
			OrganizationID: session.OrganizationID,
			Phone:          session.Phone,
			ContactName:    session.LeadSummary.ContactName,
			CompanyName:    session.LeadSummary.CompanyName,
			Score:          score,
			Status:         status,
			CreatedAt:      session.CreatedAt,
			UpdatedAt:      session.UpdatedAt,
		},
		Session: &s,
		virtual: true,
	}
}

// Virtual reports whether this entry was synthesized from an orphan session
// and therefore never targets a persisted lead row.
func (m MergedLead) Virtual() bool { return m.virtual }

// LastActivity is the recency key: the freshest of the lead's and the
// session's updated_at. A freshly escalated but otherwise stale lead floats
// to the top on the session side alone.
func (m MergedLead) LastActivity() time.Time {
	last := m.Lead.UpdatedAt
	if m.Session != nil && m.Session.UpdatedAt.After(last) {
		last = m.Session.UpdatedAt
	}
	return last
}
