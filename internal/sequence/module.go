// Package sequence provides the follow-up sequence domain module: the
// execution state machine and its read endpoints.
package sequence

import (
	"tahseel_backend/internal/events"
	apphttp "tahseel_backend/internal/http"
	"tahseel_backend/internal/invoices"
	"tahseel_backend/internal/outbox"
	"tahseel_backend/internal/sequence/handler"
	"tahseel_backend/internal/sequence/repository"
	"tahseel_backend/internal/sequence/service"
	"tahseel_backend/platform/config"
	"tahseel_backend/platform/logger"
	"tahseel_backend/platform/validator"

	"github.com/jackc/pgx/v5/pgxpool"
)

// Module wires the sequence repository, service and handler together.
type Module struct {
	handler *handler.Handler
	service *service.Service
}

// NewModule creates the sequence module with all dependencies wired.
func NewModule(pool *pgxpool.Pool, inv invoices.Reader, queue outbox.Store, bus events.Bus, cfg config.FollowupConfig, log *logger.Logger, val *validator.Validator) *Module {
	repo := repository.NewRepository(pool)
	svc := service.New(repo, inv, queue, bus, cfg, log)
	h := handler.New(svc, val)

	return &Module{handler: h, service: svc}
}

// Name returns the module name for logging.
func (m *Module) Name() string {
	return "sequence"
}

// Service returns the service layer for the orchestrator.
func (m *Module) Service() *service.Service {
	return m.service
}

// RegisterRoutes registers the module's routes.
func (m *Module) RegisterRoutes(ctx *apphttp.RouterContext) {
	m.handler.RegisterRoutes(ctx.V1)
}

// Compile-time check that Module implements http.Module.
var _ apphttp.Module = (*Module)(nil)
