// Package inbox provides the lead/conversation inbox bounded context: the
// phone-keyed merged view, escalation control, and the cascading delete.
package inbox

import (
	"salesdesk_backend/internal/events"
	apphttp "salesdesk_backend/internal/http"
	"salesdesk_backend/internal/inbox/handler"
	"salesdesk_backend/internal/inbox/repository"
	"salesdesk_backend/internal/inbox/service"
	"salesdesk_backend/internal/store"
	"salesdesk_backend/platform/config"
	"salesdesk_backend/platform/logger"
	"salesdesk_backend/platform/validator"

	"github.com/jackc/pgx/v5/pgxpool"
)

// Module is the inbox bounded context module implementing http.Module.
type Module struct {
	handler *handler.Handler
	svc     *service.Service
	repo    *repository.Repository
}

// NewModule creates and initializes the inbox module with its dependencies.
// The broker may be nil when Redis is not configured; the merged view then
// works without live change feeds.
func NewModule(pool *pgxpool.Pool, broker *store.Broker, eventBus events.Bus, val *validator.Validator, cfg config.HITLConfig, log *logger.Logger) *Module {
	repo := repository.New(pool)

	var notifier store.Notifier
	var subscriber store.Subscriber
	if broker != nil {
		notifier = broker
		subscriber = broker
	}

	svc := service.New(repo, notifier, eventBus, cfg, log)

	return &Module{
		handler: handler.New(svc, subscriber, val, log),
		svc:     svc,
		repo:    repo,
	}
}

// Name returns the module identifier.
func (m *Module) Name() string { return "inbox" }

// RegisterRoutes mounts the inbox routes under the authenticated group.
func (m *Module) RegisterRoutes(ctx *apphttp.RouterContext) {
	m.handler.RegisterRoutes(ctx.Protected)
}

// Service exposes the inbox service for the scheduler worker and adapters.
func (m *Module) Service() *service.Service { return m.svc }

// Repository exposes the repository for the transcript archiver.
func (m *Module) Repository() *repository.Repository { return m.repo }

// SetAutoReleaseScheduler wires the asynq client for auto-release enforcement.
func (m *Module) SetAutoReleaseScheduler(scheduler service.AutoReleaseScheduler) {
	m.svc.SetAutoReleaseScheduler(scheduler)
}

// SetTranscriptArchiver wires the MinIO archiver for pre-delete snapshots.
func (m *Module) SetTranscriptArchiver(archiver service.TranscriptArchiver) {
	m.svc.SetTranscriptArchiver(archiver)
}
