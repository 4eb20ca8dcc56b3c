// Package transport defines the request and response DTOs for the inbox API.
package transport

import (
	"time"

	"salesdesk_backend/internal/inbox/domain"

	"github.com/google/uuid"
)

// Request DTOs

type InboxQuery struct {
	Status      string `form:"status" validate:"omitempty,oneof=new qualified scheduled converted lost"`
	Score       string `form:"score" validate:"omitempty,oneof=new hot warm cold"`
	Search      string `form:"q" validate:"omitempty,max=200"`
	ControlMode string `form:"mode" validate:"omitempty,oneof=agent human paused none"`
}

// Filters converts the bound query into domain filters.
func (q InboxQuery) Filters() domain.Filters {
	f := domain.Filters{Search: q.Search, ControlMode: q.ControlMode}
	if q.Status != "" {
		status := domain.LeadStatus(q.Status)
		f.Status = &status
	}
	if q.Score != "" {
		score := domain.QualificationScore(q.Score)
		f.Score = &score
	}
	return f
}

type EscalateRequest struct {
	Reason string `json:"reason,omitempty" validate:"omitempty,max=500"`
}

type UpdateHITLSettingsRequest struct {
	AutoReleaseHours int `json:"autoReleaseHours" validate:"min=0,max=168"`
}

type DeleteLeadRequest struct {
	// Virtual entries carry no persisted lead row; the client passes the
	// merged entry's metadata so the cascade knows what to clean up.
	Virtual   bool       `json:"virtual"`
	Phone     string     `json:"phone,omitempty" validate:"omitempty,max=20"`
	SessionID *uuid.UUID `json:"sessionId,omitempty"`
}

// Response DTOs

type SessionResponse struct {
	ID          uuid.UUID  `json:"id"`
	Phone       string     `json:"phone"`
	ControlMode string     `json:"controlMode"`
	Reason      string     `json:"reason,omitempty"`
	EscalatedAt *time.Time `json:"escalatedAt,omitempty"`
	UnreadCount int        `json:"unreadCount"`
	UpdatedAt   time.Time  `json:"updatedAt"`
}

func NewSessionResponse(s domain.Session) SessionResponse {
	return SessionResponse{
		ID:          s.ID,
		Phone:       s.Phone,
		ControlMode: string(s.ControlMode),
		Reason:      s.Reason,
		EscalatedAt: s.EscalatedAt,
		UnreadCount: s.UnreadCount,
		UpdatedAt:   s.UpdatedAt,
	}
}

type InboxEntryResponse struct {
	ID           uuid.UUID        `json:"id"`
	Phone        string           `json:"phone"`
	ContactName  string           `json:"contactName,omitempty"`
	CompanyName  string           `json:"companyName,omitempty"`
	Score        string           `json:"score"`
	Status       string           `json:"status"`
	Virtual      bool             `json:"virtual"`
	LastActivity time.Time        `json:"lastActivity"`
	Session      *SessionResponse `json:"session,omitempty"`
}

func NewInboxEntryResponse(m domain.MergedLead) InboxEntryResponse {
	entry := InboxEntryResponse{
		ID:           m.Lead.ID,
		Phone:        m.Lead.Phone,
		ContactName:  m.Lead.ContactName,
		CompanyName:  m.Lead.CompanyName,
		Score:        string(m.Lead.Score),
		Status:       string(m.Lead.Status),
		Virtual:      m.Virtual(),
		LastActivity: m.LastActivity(),
	}
	if m.Session != nil {
		s := NewSessionResponse(*m.Session)
		entry.Session = &s
	}
	return entry
}

func NewInboxResponse(merged []domain.MergedLead) []InboxEntryResponse {
	out := make([]InboxEntryResponse, 0, len(merged))
	for _, m := range merged {
		out = append(out, NewInboxEntryResponse(m))
	}
	return out
}

type MessageResponse struct {
	ID        uuid.UUID `json:"id"`
	Direction string    `json:"direction"`
	Body      string    `json:"body"`
	CreatedAt time.Time `json:"createdAt"`
}

func NewMessagesResponse(messages []domain.Message) []MessageResponse {
	out := make([]MessageResponse, 0, len(messages))
	for _, m := range messages {
		out = append(out, MessageResponse{ID: m.ID, Direction: m.Direction, Body: m.Body, CreatedAt: m.CreatedAt})
	}
	return out
}

type TimeRemainingResponse struct {
	// RemainingSeconds is null when no auto-release window is running.
	// Expired must be surfaced by the console, never swallowed.
	RemainingSeconds *int64 `json:"remainingSeconds"`
	Expired          bool   `json:"expired"`
}

func NewTimeRemainingResponse(remaining *time.Duration) TimeRemainingResponse {
	if remaining == nil {
		return TimeRemainingResponse{}
	}
	secs := int64(remaining.Seconds())
	if secs <= 0 {
		secs = 0
		return TimeRemainingResponse{RemainingSeconds: &secs, Expired: true}
	}
	return TimeRemainingResponse{RemainingSeconds: &secs}
}

type DeleteLeadResponse struct {
	LeadDeleted bool     `json:"leadDeleted"`
	Warnings    []string `json:"warnings,omitempty"`
}

type HITLSettingsResponse struct {
	AutoReleaseHours int `json:"autoReleaseHours"`
}
