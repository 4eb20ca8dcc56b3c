// Package service implements the inbox operations: merged view construction,
// escalation transitions, and the cascading lead delete.
package service

import (
	"context"
	"errors"
	"time"

	"salesdesk_backend/internal/events"
	"salesdesk_backend/internal/inbox/domain"
	"salesdesk_backend/internal/inbox/repository"
	"salesdesk_backend/internal/store"
	"salesdesk_backend/platform/apperr"
	"salesdesk_backend/platform/config"
	"salesdesk_backend/platform/logger"

	"github.com/google/uuid"
)

// Store is the record-store surface the service depends on. Implemented by
// *repository.Repository; tests substitute a stub.
type Store interface {
	ListLeads(ctx context.Context, organizationID uuid.UUID, filters domain.Filters) ([]domain.Lead, error)
	ListSessions(ctx context.Context, organizationID uuid.UUID) ([]domain.Session, error)
	GetSession(ctx context.Context, organizationID, sessionID uuid.UUID) (domain.Session, error)
	UpdateSessionControl(ctx context.Context, organizationID, sessionID uuid.UUID, mode domain.ControlMode, reason string, escalatedAt *time.Time) (domain.Session, error)
	ResetUnread(ctx context.Context, organizationID, sessionID uuid.UUID) error
	ListMessagesBySession(ctx context.Context, sessionID uuid.UUID, limit int) ([]domain.Message, error)
	DeleteSessionsByPhone(ctx context.Context, organizationID uuid.UUID, phone string) (int64, error)
	DeleteAgentTurnsByPhone(ctx context.Context, phone string) (int64, error)
	DeleteMessagesBySession(ctx context.Context, sessionID uuid.UUID) (int64, error)
	DeleteLead(ctx context.Context, organizationID, leadID uuid.UUID) (int64, error)
	GetAutoReleaseHours(ctx context.Context, organizationID uuid.UUID) (int, bool, error)
	SetAutoReleaseHours(ctx context.Context, organizationID uuid.UUID, hours int) error
}

// AutoReleasePayload identifies the escalation an enforcement task was armed
// for. EscalatedAt pins the task to one escalation: a prolong re-arms a new
// task and the stale one no-ops.
type AutoReleasePayload struct {
	SessionID      uuid.UUID
	OrganizationID uuid.UUID
	EscalatedAt    time.Time
}

// AutoReleaseScheduler arms a server-side enforcement task for an escalation.
type AutoReleaseScheduler interface {
	ScheduleAutoRelease(ctx context.Context, payload AutoReleasePayload, runAt time.Time) error
}

// TranscriptArchiver stores a conversation transcript before destructive
// deletes. Optional; a nil archiver skips the step.
type TranscriptArchiver interface {
	ArchiveTranscript(ctx context.Context, organizationID uuid.UUID, phone string) (string, error)
}

type Service struct {
	store     Store
	notifier  store.Notifier
	bus       events.Bus
	scheduler AutoReleaseScheduler
	archiver  TranscriptArchiver
	cfg       config.HITLConfig
	log       *logger.Logger
	now       func() time.Time
}

func New(st Store, notifier store.Notifier, bus events.Bus, cfg config.HITLConfig, log *logger.Logger) *Service {
	return &Service{
		store:    st,
		notifier: notifier,
		bus:      bus,
		cfg:      cfg,
		log:      log,
		now:      time.Now,
	}
}

// SetAutoReleaseScheduler wires the optional server-side enforcement client.
func (s *Service) SetAutoReleaseScheduler(scheduler AutoReleaseScheduler) {
	s.scheduler = scheduler
}

// SetTranscriptArchiver wires the optional transcript archiver.
func (s *Service) SetTranscriptArchiver(archiver TranscriptArchiver) {
	s.archiver = archiver
}

// GetMergedView runs one merge pass: fetch both sides and join by phone.
func (s *Service) GetMergedView(ctx context.Context, organizationID uuid.UUID, filters domain.Filters) ([]domain.MergedLead, error) {
	leads, err := s.store.ListLeads(ctx, organizationID, filters)
	if err != nil {
		return nil, apperr.TransientStore("failed to fetch leads", err)
	}

	sessions, err := s.store.ListSessions(ctx, organizationID)
	if err != nil {
		return nil, apperr.TransientStore("failed to fetch sessions", err)
	}

	return domain.Merge(leads, sessions, filters), nil
}

// Escalate hands the conversation to a human operator.
func (s *Service) Escalate(ctx context.Context, organizationID, sessionID uuid.UUID, reason string) (domain.Session, error) {
	session, err := s.getSession(ctx, organizationID, sessionID)
	if err != nil {
		return domain.Session{}, err
	}

	next, changed, err := domain.ApplyEscalate(session, reason, s.now())
	if err != nil {
		return domain.Session{}, apperr.Conflict("conversation cannot be escalated from " + string(session.ControlMode))
	}
	if !changed {
		return session, nil
	}

	updated, err := s.persistControl(ctx, organizationID, next)
	if err != nil {
		return domain.Session{}, err
	}

	s.bus.Publish(ctx, events.SessionEscalated{
		BaseEvent:      events.NewBaseEvent(),
		SessionID:      updated.ID,
		OrganizationID: organizationID,
		Phone:          updated.Phone,
		Reason:         updated.Reason,
	})
	s.scheduleAutoRelease(ctx, organizationID, updated)

	return updated, nil
}

// Release returns control to the agent.
func (s *Service) Release(ctx context.Context, organizationID, sessionID uuid.UUID) (domain.Session, error) {
	return s.release(ctx, organizationID, sessionID, false)
}

func (s *Service) release(ctx context.Context, organizationID, sessionID uuid.UUID, auto bool) (domain.Session, error) {
	session, err := s.getSession(ctx, organizationID, sessionID)
	if err != nil {
		return domain.Session{}, err
	}

	next, changed, err := domain.ApplyRelease(session, s.now())
	if err != nil {
		return domain.Session{}, apperr.Conflict("conversation cannot be released from " + string(session.ControlMode))
	}
	if !changed {
		return session, nil
	}

	updated, err := s.persistControl(ctx, organizationID, next)
	if err != nil {
		return domain.Session{}, err
	}

	s.bus.Publish(ctx, events.SessionReleased{
		BaseEvent:      events.NewBaseEvent(),
		SessionID:      updated.ID,
		OrganizationID: organizationID,
		Phone:          updated.Phone,
		AutoReleased:   auto,
	})

	return updated, nil
}

// Prolong resets the auto-release countdown without ending the hand-off.
func (s *Service) Prolong(ctx context.Context, organizationID, sessionID uuid.UUID) (domain.Session, error) {
	session, err := s.getSession(ctx, organizationID, sessionID)
	if err != nil {
		return domain.Session{}, err
	}

	next, _, err := domain.ApplyProlong(session, s.now())
	if err != nil {
		return domain.Session{}, apperr.Conflict("only a human-controlled conversation can be prolonged")
	}

	updated, err := s.persistControl(ctx, organizationID, next)
	if err != nil {
		return domain.Session{}, err
	}

	// The task armed for the previous escalated_at is now orphaned; arm a
	// fresh one for the pushed-out deadline.
	s.scheduleAutoRelease(ctx, organizationID, updated)

	return updated, nil
}

// AutoRelease is invoked by the scheduler worker when an enforcement task
// fires. It releases only if the session is still human-controlled for the
// same escalation the task was armed for.
func (s *Service) AutoRelease(ctx context.Context, payload AutoReleasePayload) error {
	session, err := s.store.GetSession(ctx, payload.OrganizationID, payload.SessionID)
	if errors.Is(err, repository.ErrSessionNotFound) {
		return nil
	}
	if err != nil {
		return err
	}

	if session.ControlMode != domain.ControlHuman || session.EscalatedAt == nil {
		return nil
	}
	if !session.EscalatedAt.Equal(payload.EscalatedAt) {
		// Prolonged (or re-escalated) since this task was armed.
		return nil
	}

	hours, err := s.AutoReleaseHours(ctx, payload.OrganizationID)
	if err != nil {
		return err
	}
	if !domain.AutoReleaseDue(session, hours, s.now()) {
		return nil
	}

	_, err = s.release(ctx, payload.OrganizationID, payload.SessionID, true)
	if apperr.Is(err, apperr.KindNotFound) {
		return nil
	}
	return err
}

// Session fetches one session within the organization scope.
func (s *Service) Session(ctx context.Context, organizationID, sessionID uuid.UUID) (domain.Session, error) {
	return s.getSession(ctx, organizationID, sessionID)
}

// MarkRead clears the unread counter for a session.
func (s *Service) MarkRead(ctx context.Context, organizationID, sessionID uuid.UUID) error {
	err := s.store.ResetUnread(ctx, organizationID, sessionID)
	if errors.Is(err, repository.ErrSessionNotFound) {
		return apperr.NotFound("conversation session no longer exists")
	}
	if err != nil {
		return err
	}
	s.notifyChanged(ctx, store.TableSessions, organizationID)
	return nil
}

// Messages returns the latest turns of a session, scope-checked.
func (s *Service) Messages(ctx context.Context, organizationID, sessionID uuid.UUID, limit int) ([]domain.Message, error) {
	if _, err := s.getSession(ctx, organizationID, sessionID); err != nil {
		return nil, err
	}
	if limit <= 0 || limit > 200 {
		limit = 50
	}
	return s.store.ListMessagesBySession(ctx, sessionID, limit)
}

// AutoReleaseHours resolves the organization's auto-release window, falling
// back to the configured default, clamped to the allowed range.
func (s *Service) AutoReleaseHours(ctx context.Context, organizationID uuid.UUID) (int, error) {
	hours, ok, err := s.store.GetAutoReleaseHours(ctx, organizationID)
	if err != nil {
		return 0, apperr.TransientStore("failed to load organization settings", err)
	}
	if !ok {
		hours = s.cfg.GetHITLAutoReleaseDefaultHours()
	}
	if hours < 0 {
		hours = 0
	}
	if hours > config.MaxAutoReleaseHours {
		hours = config.MaxAutoReleaseHours
	}
	return hours, nil
}

// SetAutoReleaseHours updates the organization's auto-release window.
func (s *Service) SetAutoReleaseHours(ctx context.Context, organizationID uuid.UUID, hours int) error {
	if hours < 0 || hours > config.MaxAutoReleaseHours {
		return apperr.Validation("auto-release hours must be between 0 and 168")
	}
	return s.store.SetAutoReleaseHours(ctx, organizationID, hours)
}

// TimeRemaining computes the countdown for a session. The pointer is nil when
// the session is not escalated or auto-release is disabled.
func (s *Service) TimeRemaining(ctx context.Context, organizationID, sessionID uuid.UUID) (*time.Duration, error) {
	session, err := s.getSession(ctx, organizationID, sessionID)
	if err != nil {
		return nil, err
	}

	hours, err := s.AutoReleaseHours(ctx, organizationID)
	if err != nil {
		return nil, err
	}

	return domain.TimeRemaining(session, hours, s.now()), nil
}

func (s *Service) getSession(ctx context.Context, organizationID, sessionID uuid.UUID) (domain.Session, error) {
	session, err := s.store.GetSession(ctx, organizationID, sessionID)
	if errors.Is(err, repository.ErrSessionNotFound) {
		return domain.Session{}, apperr.NotFound("conversation session no longer exists")
	}
	if err != nil {
		return domain.Session{}, apperr.TransientStore("failed to load session", err)
	}
	return session, nil
}

func (s *Service) persistControl(ctx context.Context, organizationID uuid.UUID, next domain.Session) (domain.Session, error) {
	updated, err := s.store.UpdateSessionControl(ctx, organizationID, next.ID, next.ControlMode, next.Reason, next.EscalatedAt)
	if errors.Is(err, repository.ErrSessionNotFound) {
		return domain.Session{}, apperr.NotFound("conversation session no longer exists")
	}
	if err != nil {
		return domain.Session{}, apperr.TransientStore("failed to update session", err)
	}

	s.notifyChanged(ctx, store.TableSessions, organizationID)
	return updated, nil
}

func (s *Service) notifyChanged(ctx context.Context, table store.Table, organizationID uuid.UUID) {
	if s.notifier == nil {
		return
	}
	if err := s.notifier.NotifyChanged(ctx, table, organizationID); err != nil && s.log != nil {
		s.log.Warn("change notification failed", "table", string(table), "error", err)
	}
}

func (s *Service) scheduleAutoRelease(ctx context.Context, organizationID uuid.UUID, session domain.Session) {
	if s.scheduler == nil || session.EscalatedAt == nil {
		return
	}

	hours, err := s.AutoReleaseHours(ctx, organizationID)
	if err != nil || hours == 0 {
		return
	}

	payload := AutoReleasePayload{
		SessionID:      session.ID,
		OrganizationID: organizationID,
		EscalatedAt:    *session.EscalatedAt,
	}
	runAt := session.EscalatedAt.Add(time.Duration(hours) * time.Hour)
	if err := s.scheduler.ScheduleAutoRelease(ctx, payload, runAt); err != nil && s.log != nil {
		s.log.Warn("failed to arm auto-release task", "sessionId", session.ID, "error", err)
	}
}
