package service

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"salesdesk_backend/internal/inbox/domain"
	"salesdesk_backend/internal/inbox/repository"
	"salesdesk_backend/internal/store"
	"salesdesk_backend/platform/apperr"
	platformevents "salesdesk_backend/platform/events"
	"salesdesk_backend/platform/logger"

	"github.com/google/uuid"
)

type stubStore struct {
	leads    []domain.Lead
	sessions map[uuid.UUID]domain.Session
	hours    int
	hoursSet bool

	listLeadsErr    error
	listSessionsErr error
	updateErr       error

	sessionDeleteErr   error
	agentTurnDeleteErr error
	messageDeleteErr   error
	leadDeleteErr      error
	leadDeleteRows     int64

	calls []string
}

func newStubStore() *stubStore {
	return &stubStore{sessions: make(map[uuid.UUID]domain.Session), leadDeleteRows: 1}
}

func (s *stubStore) ListLeads(_ context.Context, _ uuid.UUID, _ domain.Filters) ([]domain.Lead, error) {
	s.calls = append(s.calls, "list_leads")
	return s.leads, s.listLeadsErr
}

func (s *stubStore) ListSessions(_ context.Context, _ uuid.UUID) ([]domain.Session, error) {
	s.calls = append(s.calls, "list_sessions")
	if s.listSessionsErr != nil {
		return nil, s.listSessionsErr
	}
	out := make([]domain.Session, 0, len(s.sessions))
	for _, sess := range s.sessions {
		out = append(out, sess)
	}
	return out, nil
}

func (s *stubStore) GetSession(_ context.Context, _, sessionID uuid.UUID) (domain.Session, error) {
	sess, ok := s.sessions[sessionID]
	if !ok {
		return domain.Session{}, repository.ErrSessionNotFound
	}
	return sess, nil
}

func (s *stubStore) UpdateSessionControl(_ context.Context, _, sessionID uuid.UUID, mode domain.ControlMode, reason string, escalatedAt *time.Time) (domain.Session, error) {
	if s.updateErr != nil {
		return domain.Session{}, s.updateErr
	}
	sess, ok := s.sessions[sessionID]
	if !ok {
		return domain.Session{}, repository.ErrSessionNotFound
	}
	sess.ControlMode = mode
	sess.Reason = reason
	sess.EscalatedAt = escalatedAt
	sess.UpdatedAt = time.Now()
	s.sessions[sessionID] = sess
	return sess, nil
}

func (s *stubStore) ResetUnread(_ context.Context, _, sessionID uuid.UUID) error {
	sess, ok := s.sessions[sessionID]
	if !ok {
		return repository.ErrSessionNotFound
	}
	sess.UnreadCount = 0
	s.sessions[sessionID] = sess
	return nil
}

func (s *stubStore) ListMessagesBySession(_ context.Context, _ uuid.UUID, _ int) ([]domain.Message, error) {
	return nil, nil
}

func (s *stubStore) DeleteSessionsByPhone(_ context.Context, _ uuid.UUID, _ string) (int64, error) {
	s.calls = append(s.calls, "delete_sessions")
	if s.sessionDeleteErr != nil {
		return 0, s.sessionDeleteErr
	}
	return 1, nil
}

func (s *stubStore) DeleteAgentTurnsByPhone(_ context.Context, _ string) (int64, error) {
	s.calls = append(s.calls, "delete_agent_turns")
	if s.agentTurnDeleteErr != nil {
		return 0, s.agentTurnDeleteErr
	}
	return 1, nil
}

func (s *stubStore) DeleteMessagesBySession(_ context.Context, _ uuid.UUID) (int64, error) {
	s.calls = append(s.calls, "delete_messages")
	if s.messageDeleteErr != nil {
		return 0, s.messageDeleteErr
	}
	return 1, nil
}

func (s *stubStore) DeleteLead(_ context.Context, _, _ uuid.UUID) (int64, error) {
	s.calls = append(s.calls, "delete_lead")
	if s.leadDeleteErr != nil {
		return 0, s.leadDeleteErr
	}
	return s.leadDeleteRows, nil
}

func (s *stubStore) GetAutoReleaseHours(_ context.Context, _ uuid.UUID) (int, bool, error) {
	return s.hours, s.hoursSet, nil
}

func (s *stubStore) SetAutoReleaseHours(_ context.Context, _ uuid.UUID, hours int) error {
	s.hours = hours
	s.hoursSet = true
	return nil
}

type stubNotifier struct {
	notified []store.Table
}

func (n *stubNotifier) NotifyChanged(_ context.Context, table store.Table, _ uuid.UUID) error {
	n.notified = append(n.notified, table)
	return nil
}

type stubScheduler struct {
	payloads []AutoReleasePayload
	runAts   []time.Time
}

func (s *stubScheduler) ScheduleAutoRelease(_ context.Context, payload AutoReleasePayload, runAt time.Time) error {
	s.payloads = append(s.payloads, payload)
	s.runAts = append(s.runAts, runAt)
	return nil
}

type hitlConfig struct{ hours int }

func (c hitlConfig) GetHITLAutoReleaseDefaultHours() int { return c.hours }

type fixture struct {
	svc       *Service
	store     *stubStore
	notifier  *stubNotifier
	bus       *platformevents.InMemoryBus
	scheduler *stubScheduler
	orgID     uuid.UUID
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	st := newStubStore()
	notifier := &stubNotifier{}
	log := logger.New("development")
	bus := platformevents.NewInMemoryBus(log)
	svc := New(st, notifier, bus, hitlConfig{hours: 24}, log)
	scheduler := &stubScheduler{}
	svc.SetAutoReleaseScheduler(scheduler)
	return &fixture{svc: svc, store: st, notifier: notifier, bus: bus, scheduler: scheduler, orgID: uuid.New()}
}

func (f *fixture) addSession(mode domain.ControlMode) domain.Session {
	sess := domain.Session{
		ID:             uuid.New(),
		OrganizationID: f.orgID,
		Phone:          "+15551230001",
		ControlMode:    mode,
		UpdatedAt:      time.Now(),
	}
	f.store.sessions[sess.ID] = sess
	return sess
}

func TestEscalateTransitionsAndArmsAutoRelease(t *testing.T) {
	f := newFixture(t)
	sess := f.addSession(domain.ControlAgent)

	updated, err := f.svc.Escalate(context.Background(), f.orgID, sess.ID, "vip customer")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if updated.ControlMode != domain.ControlHuman || updated.Reason != "vip customer" {
		t.Fatalf("expected human/vip customer, got %s/%q", updated.ControlMode, updated.Reason)
	}
	if updated.EscalatedAt == nil {
		t.Fatalf("expected escalated_at to be set")
	}

	if len(f.scheduler.payloads) != 1 {
		t.Fatalf("expected one auto-release task, got %d", len(f.scheduler.payloads))
	}
	p := f.scheduler.payloads[0]
	if p.SessionID != sess.ID || !p.EscalatedAt.Equal(*updated.EscalatedAt) {
		t.Fatalf("task must pin the escalation timestamp")
	}
	wantRunAt := updated.EscalatedAt.Add(24 * time.Hour)
	if !f.scheduler.runAts[0].Equal(wantRunAt) {
		t.Fatalf("expected runAt=%v, got %v", wantRunAt, f.scheduler.runAts[0])
	}

	if len(f.notifier.notified) != 1 || f.notifier.notified[0] != store.TableSessions {
		t.Fatalf("expected one session change notification, got %v", f.notifier.notified)
	}
}

func TestEscalateRepeatIsNoOp(t *testing.T) {
	f := newFixture(t)
	sess := f.addSession(domain.ControlAgent)
	ctx := context.Background()

	first, err := f.svc.Escalate(ctx, f.orgID, sess.ID, "vip customer")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	second, err := f.svc.Escalate(ctx, f.orgID, sess.ID, "different reason")
	if err != nil {
		t.Fatalf("repeat escalate must succeed, got %v", err)
	}
	if second.Reason != first.Reason || !second.EscalatedAt.Equal(*first.EscalatedAt) {
		t.Fatalf("repeat escalate must not overwrite the original escalation")
	}
	if len(f.scheduler.payloads) != 1 {
		t.Fatalf("repeat escalate must not arm another task")
	}
}

func TestEscalateMissingSessionIsNotFound(t *testing.T) {
	f := newFixture(t)

	_, err := f.svc.Escalate(context.Background(), f.orgID, uuid.New(), "")
	if !apperr.Is(err, apperr.KindNotFound) {
		t.Fatalf("expected KindNotFound, got %v", err)
	}
}

func TestEscalateFromPausedIsConflict(t *testing.T) {
	f := newFixture(t)
	sess := f.addSession(domain.ControlPaused)

	_, err := f.svc.Escalate(context.Background(), f.orgID, sess.ID, "")
	if !apperr.Is(err, apperr.KindConflict) {
		t.Fatalf("expected KindConflict, got %v", err)
	}
}

func TestReleaseClearsStateAndIsIdempotent(t *testing.T) {
	f := newFixture(t)
	sess := f.addSession(domain.ControlAgent)
	ctx := context.Background()

	if _, err := f.svc.Escalate(ctx, f.orgID, sess.ID, ""); err != nil {
		t.Fatalf("escalate: %v", err)
	}

	released, err := f.svc.Release(ctx, f.orgID, sess.ID)
	if err != nil {
		t.Fatalf("release: %v", err)
	}
	if released.ControlMode != domain.ControlAgent || released.EscalatedAt != nil || released.Reason != "" {
		t.Fatalf("release must clear escalation state, got %+v", released)
	}

	again, err := f.svc.Release(ctx, f.orgID, sess.ID)
	if err != nil {
		t.Fatalf("repeat release must succeed, got %v", err)
	}
	if again.ControlMode != domain.ControlAgent {
		t.Fatalf("expected agent mode after repeat release")
	}
}

func TestProlongRearmsTheCountdown(t *testing.T) {
	f := newFixture(t)
	sess := f.addSession(domain.ControlAgent)
	ctx := context.Background()

	if _, err := f.svc.Escalate(ctx, f.orgID, sess.ID, ""); err != nil {
		t.Fatalf("escalate: %v", err)
	}

	prolonged, err := f.svc.Prolong(ctx, f.orgID, sess.ID)
	if err != nil {
		t.Fatalf("prolong: %v", err)
	}
	if prolonged.ControlMode != domain.ControlHuman {
		t.Fatalf("prolong must keep human control")
	}
	if len(f.scheduler.payloads) != 2 {
		t.Fatalf("prolong must arm a fresh task, got %d tasks", len(f.scheduler.payloads))
	}
	if !f.scheduler.payloads[1].EscalatedAt.Equal(*prolonged.EscalatedAt) {
		t.Fatalf("fresh task must pin the new escalation timestamp")
	}
}

func TestProlongOutsideHumanIsConflict(t *testing.T) {
	f := newFixture(t)
	sess := f.addSession(domain.ControlAgent)

	_, err := f.svc.Prolong(context.Background(), f.orgID, sess.ID)
	if !apperr.Is(err, apperr.KindConflict) {
		t.Fatalf("expected KindConflict, got %v", err)
	}
}

func TestAutoReleaseSkipsWhenProlonged(t *testing.T) {
	f := newFixture(t)
	sess := f.addSession(domain.ControlAgent)
	ctx := context.Background()

	escalated, err := f.svc.Escalate(ctx, f.orgID, sess.ID, "")
	if err != nil {
		t.Fatalf("escalate: %v", err)
	}
	stale := AutoReleasePayload{SessionID: sess.ID, OrganizationID: f.orgID, EscalatedAt: *escalated.EscalatedAt}

	if _, err := f.svc.Prolong(ctx, f.orgID, sess.ID); err != nil {
		t.Fatalf("prolong: %v", err)
	}

	if err := f.svc.AutoRelease(ctx, stale); err != nil {
		t.Fatalf("stale task must no-op, got %v", err)
	}
	if got := f.store.sessions[sess.ID].ControlMode; got != domain.ControlHuman {
		t.Fatalf("stale task must not release the session, mode=%s", got)
	}
}

func TestAutoReleaseFiresAfterWindow(t *testing.T) {
	f := newFixture(t)
	sess := f.addSession(domain.ControlAgent)
	ctx := context.Background()

	past := time.Now().Add(-25 * time.Hour)
	f.svc.now = func() time.Time { return past }
	escalated, err := f.svc.Escalate(ctx, f.orgID, sess.ID, "")
	if err != nil {
		t.Fatalf("escalate: %v", err)
	}
	f.svc.now = time.Now

	payload := AutoReleasePayload{SessionID: sess.ID, OrganizationID: f.orgID, EscalatedAt: *escalated.EscalatedAt}
	if err := f.svc.AutoRelease(ctx, payload); err != nil {
		t.Fatalf("auto-release: %v", err)
	}
	if got := f.store.sessions[sess.ID].ControlMode; got != domain.ControlAgent {
		t.Fatalf("expected agent mode after auto-release, got %s", got)
	}
}

func TestAutoReleaseIgnoresDeletedSession(t *testing.T) {
	f := newFixture(t)

	payload := AutoReleasePayload{SessionID: uuid.New(), OrganizationID: f.orgID, EscalatedAt: time.Now()}
	if err := f.svc.AutoRelease(context.Background(), payload); err != nil {
		t.Fatalf("missing session must no-op, got %v", err)
	}
}

func TestGetMergedViewWrapsStoreFailures(t *testing.T) {
	f := newFixture(t)
	f.store.listLeadsErr = errors.New("connection refused")

	_, err := f.svc.GetMergedView(context.Background(), f.orgID, domain.Filters{})
	if !apperr.Is(err, apperr.KindTransientStore) {
		t.Fatalf("expected KindTransientStore, got %v", err)
	}
}

func TestGetMergedViewMergesBothSides(t *testing.T) {
	f := newFixture(t)
	f.store.leads = []domain.Lead{{
		ID:             uuid.New(),
		OrganizationID: f.orgID,
		Phone:          "+15551230001",
		UpdatedAt:      time.Now(),
	}}
	f.addSession(domain.ControlAgent)

	merged, err := f.svc.GetMergedView(context.Background(), f.orgID, domain.Filters{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(merged) != 1 {
		t.Fatalf("expected one merged entry, got %d", len(merged))
	}
	if merged[0].Session == nil {
		t.Fatalf("expected the session to be attached")
	}
}

func TestAutoReleaseHoursFallsBackToDefault(t *testing.T) {
	f := newFixture(t)

	hours, err := f.svc.AutoReleaseHours(context.Background(), f.orgID)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if hours != 24 {
		t.Fatalf("expected configured default 24, got %d", hours)
	}

	if err := f.svc.SetAutoReleaseHours(context.Background(), f.orgID, 48); err != nil {
		t.Fatalf("set hours: %v", err)
	}
	hours, err = f.svc.AutoReleaseHours(context.Background(), f.orgID)
	if err != nil || hours != 48 {
		t.Fatalf("expected stored 48, got %d err=%v", hours, err)
	}
}

func TestSetAutoReleaseHoursRejectsOutOfRange(t *testing.T) {
	for _, hours := range []int{-1, 169} {
		f := newFixture(t)
		err := f.svc.SetAutoReleaseHours(context.Background(), f.orgID, hours)
		if !apperr.Is(err, apperr.KindValidation) {
			t.Fatalf("hours=%d: expected KindValidation, got %v", hours, err)
		}
	}
}

func TestTimeRemainingNilWhenNotEscalated(t *testing.T) {
	f := newFixture(t)
	sess := f.addSession(domain.ControlAgent)

	remaining, err := f.svc.TimeRemaining(context.Background(), f.orgID, sess.ID)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if remaining != nil {
		t.Fatalf("expected nil remaining for agent mode, got %v", *remaining)
	}
}

func TestDeleteLeadFullCascade(t *testing.T) {
	f := newFixture(t)
	sess := f.addSession(domain.ControlAgent)

	target := DeleteTarget{LeadID: uuid.New(), Phone: sess.Phone, SessionID: &sess.ID}
	result, err := f.svc.DeleteLead(context.Background(), f.orgID, target)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !result.LeadDeleted || len(result.Warnings) != 0 {
		t.Fatalf("expected clean delete, got %+v", result)
	}

	want := []string{"delete_sessions", "delete_agent_turns", "delete_messages", "delete_lead"}
	if strings.Join(f.store.calls, ",") != strings.Join(want, ",") {
		t.Fatalf("cascade order mismatch: %v", f.store.calls)
	}

	if len(f.notifier.notified) != 2 {
		t.Fatalf("expected lead and session change notifications, got %v", f.notifier.notified)
	}
}

func TestDeleteLeadToleratesBestEffortFailures(t *testing.T) {
	f := newFixture(t)
	sess := f.addSession(domain.ControlAgent)
	f.store.sessionDeleteErr = errors.New("sessions table locked")
	f.store.agentTurnDeleteErr = errors.New("agent runtime offline")

	target := DeleteTarget{LeadID: uuid.New(), Phone: sess.Phone, SessionID: &sess.ID}
	result, err := f.svc.DeleteLead(context.Background(), f.orgID, target)
	if err != nil {
		t.Fatalf("best-effort failures must not abort, got %v", err)
	}
	if !result.LeadDeleted {
		t.Fatalf("lead row must still be removed")
	}
	if len(result.Warnings) != 2 {
		t.Fatalf("expected two warnings, got %v", result.Warnings)
	}

	// The authoritative step must still have run last.
	if f.store.calls[len(f.store.calls)-1] != "delete_lead" {
		t.Fatalf("expected delete_lead last, got %v", f.store.calls)
	}
}

func TestDeleteLeadBlockedWhenZeroRows(t *testing.T) {
	f := newFixture(t)
	sess := f.addSession(domain.ControlAgent)
	f.store.leadDeleteRows = 0
	f.store.messageDeleteErr = errors.New("messages table locked")

	target := DeleteTarget{LeadID: uuid.New(), Phone: sess.Phone, SessionID: &sess.ID}
	result, err := f.svc.DeleteLead(context.Background(), f.orgID, target)
	if !apperr.Is(err, apperr.KindBlockedDeletion) {
		t.Fatalf("expected KindBlockedDeletion, got %v", err)
	}
	if result.LeadDeleted {
		t.Fatalf("blocked delete must not report the lead as deleted")
	}
	if len(result.Warnings) != 1 {
		t.Fatalf("partial progress must still be reported, got %v", result.Warnings)
	}
}

func TestDeleteVirtualEntrySkipsLeadRow(t *testing.T) {
	f := newFixture(t)
	sess := f.addSession(domain.ControlAgent)

	target := DeleteTarget{
		LeadID:    domain.VirtualLeadID(sess.ID),
		Phone:     sess.Phone,
		SessionID: &sess.ID,
		Virtual:   true,
	}
	result, err := f.svc.DeleteLead(context.Background(), f.orgID, target)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !result.LeadDeleted {
		t.Fatalf("virtual delete must report success; no row was ever persisted")
	}
	for _, call := range f.store.calls {
		if call == "delete_lead" {
			t.Fatalf("virtual delete must never touch the leads table")
		}
	}
}

func TestMarkReadMissingSessionIsNotFound(t *testing.T) {
	f := newFixture(t)

	err := f.svc.MarkRead(context.Background(), f.orgID, uuid.New())
	if !apperr.Is(err, apperr.KindNotFound) {
		t.Fatalf("expected KindNotFound, got %v", err)
	}
}
