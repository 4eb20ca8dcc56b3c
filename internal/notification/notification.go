// Package notification turns inbox domain events into operator alerts.
// It subscribes to the event bus and is not HTTP-facing.
package notification

import (
	"context"

	"salesdesk_backend/internal/email"
	"salesdesk_backend/internal/events"
	"salesdesk_backend/platform/config"
	"salesdesk_backend/platform/logger"
)

type alertConfig interface {
	config.SMTPConfig
}

// Module wires domain events to email alerts.
type Module struct {
	sender email.Sender
	cfg    alertConfig
	log    *logger.Logger
}

func New(sender email.Sender, cfg alertConfig, log *logger.Logger) *Module {
	return &Module{sender: sender, cfg: cfg, log: log}
}

// RegisterHandlers subscribes the module to the events it reacts to.
func (m *Module) RegisterHandlers(bus events.Bus) {
	bus.Subscribe(events.SessionEscalated{}.EventName(), events.HandlerFunc(m.onSessionEscalated))
	bus.Subscribe(events.SessionReleased{}.EventName(), events.HandlerFunc(m.onSessionReleased))
}

func (m *Module) onSessionEscalated(ctx context.Context, event events.Event) error {
	e, ok := event.(events.SessionEscalated)
	if !ok {
		return nil
	}

	to := m.cfg.GetEscalationAlertAddress()
	if to == "" {
		return nil
	}

	if err := m.sender.SendEscalationAlert(ctx, to, e.Phone, e.Reason); err != nil {
		m.log.Error("failed to send escalation alert", "phone", e.Phone, "error", err)
		return err
	}
	return nil
}

func (m *Module) onSessionReleased(ctx context.Context, event events.Event) error {
	e, ok := event.(events.SessionReleased)
	if !ok || !e.AutoReleased {
		return nil
	}

	to := m.cfg.GetEscalationAlertAddress()
	if to == "" {
		return nil
	}

	if err := m.sender.SendAutoReleaseNotice(ctx, to, e.Phone); err != nil {
		m.log.Error("failed to send auto-release notice", "phone", e.Phone, "error", err)
		return err
	}
	return nil
}
