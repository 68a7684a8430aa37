package handler

import (
	"net/http"
	"time"

	"tahseel_backend/internal/orchestrator/service"
	"tahseel_backend/internal/orchestrator/transport"
	"tahseel_backend/platform/httpkit"
	"tahseel_backend/platform/validator"

	"github.com/gin-gonic/gin"
)

// Handler exposes the run trigger, status, and delivery-callback endpoints.
type Handler struct {
	svc *service.Service
	val *validator.Validator
}

func New(svc *service.Service, val *validator.Validator) *Handler {
	return &Handler{svc: svc, val: val}
}

// RegisterRoutes registers the public routes on v1 and the run trigger on
// the shared-secret cron group.
func (h *Handler) RegisterRoutes(v1, cron *gin.RouterGroup) {
	v1.GET("/followups/status", h.Status)
	v1.POST("/followups/delivery-status", h.DeliveryCallback)
	cron.POST("/followups/run", h.Run)
}

// Run executes one follow-up cycle. Per-item failures still yield 200 with
// the failures listed; only a cycle that could not run at all yields 500,
// and the partial report rides along as details.
func (h *Handler) Run(c *gin.Context) {
	rep, err := h.svc.Run(c.Request.Context(), time.Now().UTC())
	if err != nil {
		httpkit.Error(c, http.StatusInternalServerError, "follow-up run failed", transport.ToRunResponse(rep))
		return
	}
	httpkit.OK(c, transport.ToRunResponse(rep))
}

func (h *Handler) Status(c *gin.Context) {
	st, err := h.svc.Status(c.Request.Context(), time.Now().UTC())
	if httpkit.HandleError(c, err) {
		return
	}
	httpkit.OK(c, transport.ToStatusResponse(st))
}

// DeliveryCallback receives delivered/bounced notifications keyed by the
// external message id handed out at send time.
func (h *Handler) DeliveryCallback(c *gin.Context) {
	var req transport.DeliveryCallbackRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		httpkit.Error(c, http.StatusBadRequest, "invalid request", err.Error())
		return
	}
	if err := h.val.Struct(req); err != nil {
		httpkit.Error(c, http.StatusBadRequest, "validation failed", err.Error())
		return
	}

	item, err := h.svc.ApplyDeliveryStatus(c.Request.Context(), req.MessageID, req.Delivered, req.Detail)
	if httpkit.HandleError(c, err) {
		return
	}
	httpkit.OK(c, gin.H{"itemId": item.ID, "status": item.Status})
}
