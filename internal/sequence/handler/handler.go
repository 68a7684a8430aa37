package handler

import (
	"net/http"

	"tahseel_backend/internal/sequence/repository"
	"tahseel_backend/internal/sequence/service"
	"tahseel_backend/internal/sequence/transport"
	"tahseel_backend/platform/httpkit"
	"tahseel_backend/platform/validator"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

const (
	msgInvalidRequest   = "invalid request"
	msgValidationFailed = "validation failed"
	msgInvalidID        = "invalid id"
)

// Handler exposes the sequence read and stop endpoints. Definition CRUD is
// owned by an external admin surface; this service only reads definitions
// and manages executions.
type Handler struct {
	svc *service.Service
	val *validator.Validator
}

func New(svc *service.Service, val *validator.Validator) *Handler {
	return &Handler{svc: svc, val: val}
}

// RegisterRoutes registers the sequence routes.
func (h *Handler) RegisterRoutes(rg *gin.RouterGroup) {
	rg.GET("/organizations/:orgId/sequences", h.ListDefinitions)
	rg.GET("/organizations/:orgId/executions", h.ListExecutions)
	rg.POST("/executions/:id/stop", h.StopExecution)
}

func (h *Handler) ListDefinitions(c *gin.Context) {
	orgID, err := uuid.Parse(c.Param("orgId"))
	if err != nil {
		httpkit.Error(c, http.StatusBadRequest, msgInvalidID, nil)
		return
	}

	defs, err := h.svc.ListDefinitions(c.Request.Context(), orgID)
	if httpkit.HandleError(c, err) {
		return
	}

	out := make([]transport.DefinitionResponse, 0, len(defs))
	for _, d := range defs {
		out = append(out, transport.ToDefinitionResponse(d))
	}
	httpkit.OK(c, gin.H{"sequences": out})
}

func (h *Handler) ListExecutions(c *gin.Context) {
	orgID, err := uuid.Parse(c.Param("orgId"))
	if err != nil {
		httpkit.Error(c, http.StatusBadRequest, msgInvalidID, nil)
		return
	}

	var status *repository.ExecutionStatus
	if raw := c.Query("status"); raw != "" {
		s := repository.ExecutionStatus(raw)
		switch s {
		case repository.StatusActive, repository.StatusCompleted, repository.StatusStopped:
			status = &s
		default:
			httpkit.Error(c, http.StatusBadRequest, "unknown status filter", nil)
			return
		}
	}

	execs, err := h.svc.ListExecutions(c.Request.Context(), orgID, status, 0)
	if httpkit.HandleError(c, err) {
		return
	}

	out := make([]transport.ExecutionResponse, 0, len(execs))
	for _, e := range execs {
		out = append(out, transport.ToExecutionResponse(e))
	}
	httpkit.OK(c, gin.H{"executions": out})
}

func (h *Handler) StopExecution(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		httpkit.Error(c, http.StatusBadRequest, msgInvalidID, nil)
		return
	}

	var req transport.StopExecutionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		httpkit.Error(c, http.StatusBadRequest, msgInvalidRequest, err.Error())
		return
	}
	if err := h.val.Struct(req); err != nil {
		httpkit.Error(c, http.StatusBadRequest, msgValidationFailed, err.Error())
		return
	}

	if err := h.svc.Stop(c.Request.Context(), id, req.Reason); httpkit.HandleError(c, err) {
		return
	}
	httpkit.OK(c, gin.H{"status": "stopped"})
}
