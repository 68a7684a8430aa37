// Package orchestrator provides the scheduling module that runs the
// follow-up cycle and serves its status and delivery-callback endpoints.
package orchestrator

import (
	"tahseel_backend/internal/email"
	"tahseel_backend/internal/events"
	apphttp "tahseel_backend/internal/http"
	"tahseel_backend/internal/invoices"
	"tahseel_backend/internal/orchestrator/handler"
	"tahseel_backend/internal/orchestrator/repository"
	"tahseel_backend/internal/orchestrator/service"
	"tahseel_backend/internal/outbox"
	"tahseel_backend/platform/config"
	"tahseel_backend/platform/logger"
	"tahseel_backend/platform/validator"

	"github.com/jackc/pgx/v5/pgxpool"
)

// Module wires the run repository, orchestrator service and handler.
type Module struct {
	handler *handler.Handler
	service *service.Service
}

// NewModule creates the orchestrator module with all dependencies wired.
func NewModule(
	pool *pgxpool.Pool,
	inv invoices.Reader,
	sequences service.Sequences,
	consolidations service.Consolidations,
	queue outbox.Store,
	sender email.Sender,
	bus events.Bus,
	cfg config.FollowupConfig,
	log *logger.Logger,
	val *validator.Validator,
) *Module {
	runs := repository.NewRepository(pool)
	svc := service.New(inv, sequences, consolidations, queue, sender, runs, bus, cfg, log)
	h := handler.New(svc, val)

	return &Module{handler: h, service: svc}
}

// Name returns the module name for logging.
func (m *Module) Name() string {
	return "orchestrator"
}

// Service returns the service layer for the scheduler worker.
func (m *Module) Service() *service.Service {
	return m.service
}

// RegisterRoutes registers the module's routes.
func (m *Module) RegisterRoutes(ctx *apphttp.RouterContext) {
	m.handler.RegisterRoutes(ctx.V1, ctx.Cron)
}

// Compile-time check that Module implements http.Module.
var _ apphttp.Module = (*Module)(nil)
