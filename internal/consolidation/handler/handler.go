package handler

import (
	"context"
	"net/http"
	"time"

	"tahseel_backend/internal/consolidation/service"
	"tahseel_backend/internal/consolidation/transport"
	"tahseel_backend/internal/invoices"
	"tahseel_backend/platform/apperr"
	"tahseel_backend/platform/httpkit"
	"tahseel_backend/platform/validator"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

const (
	msgInvalidRequest = "invalid request"
	msgInvalidID      = "invalid id"
)

// OrgReader loads the organization whose calendar and thresholds drive a
// consolidation request.
type OrgReader interface {
	GetOrganization(ctx context.Context, id uuid.UUID) (invoices.Organization, error)
}

// Handler exposes candidate previews and reminder management.
type Handler struct {
	svc  *service.Service
	orgs OrgReader
	val  *validator.Validator
}

func New(svc *service.Service, orgs OrgReader, val *validator.Validator) *Handler {
	return &Handler{svc: svc, orgs: orgs, val: val}
}

// RegisterRoutes registers the consolidation routes.
func (h *Handler) RegisterRoutes(rg *gin.RouterGroup) {
	rg.GET("/organizations/:orgId/consolidation/candidates", h.ListCandidates)
	rg.GET("/organizations/:orgId/consolidation/reminders", h.ListReminders)
	rg.POST("/organizations/:orgId/consolidation/reminders", h.CreateReminder)
	rg.POST("/consolidation/reminders/:id/cancel", h.CancelReminder)
}

func (h *Handler) ListCandidates(c *gin.Context) {
	org, ok := h.loadOrg(c)
	if !ok {
		return
	}

	cands, err := h.svc.Candidates(c.Request.Context(), org, time.Now())
	if httpkit.HandleError(c, err) {
		return
	}

	out := make([]transport.CandidateResponse, 0, len(cands))
	for _, cand := range cands {
		out = append(out, transport.ToCandidateResponse(cand))
	}
	httpkit.OK(c, gin.H{"candidates": out})
}

func (h *Handler) ListReminders(c *gin.Context) {
	orgID, err := uuid.Parse(c.Param("orgId"))
	if err != nil {
		httpkit.Error(c, http.StatusBadRequest, msgInvalidID, nil)
		return
	}

	reminders, err := h.svc.List(c.Request.Context(), orgID, 0)
	if httpkit.HandleError(c, err) {
		return
	}

	out := make([]transport.ReminderResponse, 0, len(reminders))
	for _, r := range reminders {
		out = append(out, transport.ToReminderResponse(r))
	}
	httpkit.OK(c, gin.H{"reminders": out})
}

func (h *Handler) CreateReminder(c *gin.Context) {
	org, ok := h.loadOrg(c)
	if !ok {
		return
	}

	var req transport.CreateReminderRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		httpkit.Error(c, http.StatusBadRequest, msgInvalidRequest, err.Error())
		return
	}

	cal, err := org.CalendarSettings.Build()
	if err != nil {
		httpkit.HandleError(c, apperr.Validation("organization calendar settings are invalid").WithDetails(err.Error()))
		return
	}

	rem, err := h.svc.CreateReminder(c.Request.Context(), org, cal, req.CustomerID, time.Now())
	if httpkit.HandleError(c, err) {
		return
	}
	httpkit.JSON(c, http.StatusCreated, transport.ToReminderResponse(rem))
}

func (h *Handler) CancelReminder(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		httpkit.Error(c, http.StatusBadRequest, msgInvalidID, nil)
		return
	}

	if err := h.svc.Cancel(c.Request.Context(), id); httpkit.HandleError(c, err) {
		return
	}
	httpkit.OK(c, gin.H{"status": "cancelled"})
}

func (h *Handler) loadOrg(c *gin.Context) (invoices.Organization, bool) {
	orgID, err := uuid.Parse(c.Param("orgId"))
	if err != nil {
		httpkit.Error(c, http.StatusBadRequest, msgInvalidID, nil)
		return invoices.Organization{}, false
	}
	org, err := h.orgs.GetOrganization(c.Request.Context(), orgID)
	if err != nil {
		httpkit.Error(c, http.StatusNotFound, "organization not found", nil)
		return invoices.Organization{}, false
	}
	return org, true
}
