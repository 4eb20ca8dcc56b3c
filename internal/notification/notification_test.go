package notification

import (
	"context"
	"testing"

	"salesdesk_backend/internal/events"
	platformevents "salesdesk_backend/platform/events"
	"salesdesk_backend/platform/logger"
)

type fakeSender struct {
	alerts  []string
	notices []string
}

func (f *fakeSender) SendEscalationAlert(_ context.Context, _, phone, _ string) error {
	f.alerts = append(f.alerts, phone)
	return nil
}

func (f *fakeSender) SendAutoReleaseNotice(_ context.Context, _, phone string) error {
	f.notices = append(f.notices, phone)
	return nil
}

type fakeConfig struct {
	alertAddress string
}

func (f fakeConfig) GetSMTPHost() string               { return "" }
func (f fakeConfig) GetSMTPPort() int                  { return 587 }
func (f fakeConfig) GetSMTPUsername() string           { return "" }
func (f fakeConfig) GetSMTPPassword() string           { return "" }
func (f fakeConfig) GetEmailFromName() string          { return "Salesdesk" }
func (f fakeConfig) GetEmailFromAddress() string       { return "noreply@example.com" }
func (f fakeConfig) GetEscalationAlertAddress() string { return f.alertAddress }
func (f fakeConfig) IsEmailEnabled() bool              { return true }

func newBusWithModule(sender *fakeSender, alertAddress string) events.Bus {
	log := logger.New("development")
	bus := platformevents.NewInMemoryBus(log)
	New(sender, fakeConfig{alertAddress: alertAddress}, log).RegisterHandlers(bus)
	return bus
}

func TestEscalationEventSendsAlert(t *testing.T) {
	sender := &fakeSender{}
	bus := newBusWithModule(sender, "ops@example.com")

	err := bus.PublishSync(context.Background(), events.SessionEscalated{
		BaseEvent: events.NewBaseEvent(),
		Phone:     "+15551230001",
		Reason:    "vip customer",
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(sender.alerts) != 1 || sender.alerts[0] != "+15551230001" {
		t.Fatalf("expected one alert for the phone, got %v", sender.alerts)
	}
}

func TestOperatorReleaseSendsNothing(t *testing.T) {
	sender := &fakeSender{}
	bus := newBusWithModule(sender, "ops@example.com")

	err := bus.PublishSync(context.Background(), events.SessionReleased{
		BaseEvent:    events.NewBaseEvent(),
		Phone:        "+15551230001",
		AutoReleased: false,
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(sender.notices) != 0 {
		t.Fatalf("manual release must not email, got %v", sender.notices)
	}
}

func TestAutoReleaseSendsNotice(t *testing.T) {
	sender := &fakeSender{}
	bus := newBusWithModule(sender, "ops@example.com")

	err := bus.PublishSync(context.Background(), events.SessionReleased{
		BaseEvent:    events.NewBaseEvent(),
		Phone:        "+15551230001",
		AutoReleased: true,
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(sender.notices) != 1 {
		t.Fatalf("expected one notice, got %v", sender.notices)
	}
}

func TestNoAlertAddressSkipsDelivery(t *testing.T) {
	sender := &fakeSender{}
	bus := newBusWithModule(sender, "")

	err := bus.PublishSync(context.Background(), events.SessionEscalated{
		BaseEvent: events.NewBaseEvent(),
		Phone:     "+15551230001",
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(sender.alerts) != 0 {
		t.Fatalf("expected no alerts without an address, got %v", sender.alerts)
	}
}
