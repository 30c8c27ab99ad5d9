package handler

import (
	"net/http"

	"clinic_booking_backend/internal/reservations/service"
	"clinic_booking_backend/internal/reservations/transport"
	"clinic_booking_backend/internal/shared/principal"
	"clinic_booking_backend/platform/httpkit"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

const (
	msgInvalidRequest       = "invalid request"
	msgInvalidReservationID = "invalid reservation id"
)

// Handler handles HTTP requests for reservations
type Handler struct {
	svc *service.Service
}

// New creates a new reservations handler
func New(svc *service.Service) *Handler {
	return &Handler{svc: svc}
}

// RegisterRoutes registers the reservation routes. bookingLimit throttles
// booking attempts per client IP.
func (h *Handler) RegisterRoutes(rg *gin.RouterGroup, bookingLimit gin.HandlerFunc) {
	rg.POST("", bookingLimit, h.Book)
	rg.GET("", h.List)
	rg.GET("/:id", h.GetByID)
	rg.PATCH("/:id/status", h.UpdateStatus)
	rg.DELETE("/:id", h.Cancel)
}

func actorFrom(c *gin.Context) (principal.Principal, bool) {
	identity := httpkit.MustGetIdentity(c)
	if identity == nil {
		return principal.Principal{}, false
	}
	tenantID, ok := httpkit.MustGetTenantID(c, identity)
	if !ok {
		return principal.Principal{}, false
	}
	return principal.FromIdentity(identity, tenantID), true
}

func reservationID(c *gin.Context) (uuid.UUID, bool) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		httpkit.Error(c, http.StatusBadRequest, msgInvalidReservationID, nil)
		return uuid.UUID{}, false
	}
	return id, true
}

// Book handles POST /api/v1/reservations
func (h *Handler) Book(c *gin.Context) {
	var req transport.BookReservationRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		httpkit.Error(c, http.StatusBadRequest, msgInvalidRequest, err.Error())
		return
	}
	actor, ok := actorFrom(c)
	if !ok {
		return
	}

	result, err := h.svc.Book(c.Request.Context(), actor, req)
	if httpkit.HandleError(c, err) {
		return
	}
	httpkit.JSON(c, http.StatusCreated, result)
}

// List handles GET /api/v1/reservations
func (h *Handler) List(c *gin.Context) {
	var req transport.ListReservationsRequest
	if err := c.ShouldBindQuery(&req); err != nil {
		httpkit.Error(c, http.StatusBadRequest, msgInvalidRequest, err.Error())
		return
	}
	actor, ok := actorFrom(c)
	if !ok {
		return
	}

	result, err := h.svc.List(c.Request.Context(), actor, req)
	if httpkit.HandleError(c, err) {
		return
	}
	httpkit.OK(c, result)
}

// GetByID handles GET /api/v1/reservations/:id
func (h *Handler) GetByID(c *gin.Context) {
	id, ok := reservationID(c)
	if !ok {
		return
	}
	actor, ok := actorFrom(c)
	if !ok {
		return
	}

	result, err := h.svc.GetByID(c.Request.Context(), actor, id)
	if httpkit.HandleError(c, err) {
		return
	}
	httpkit.OK(c, result)
}

// UpdateStatus handles PATCH /api/v1/reservations/:id/status
func (h *Handler) UpdateStatus(c *gin.Context) {
	id, ok := reservationID(c)
	if !ok {
		return
	}
	var req transport.UpdateStatusRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		httpkit.Error(c, http.StatusBadRequest, msgInvalidRequest, err.Error())
		return
	}
	actor, ok := actorFrom(c)
	if !ok {
		return
	}

	result, err := h.svc.Transition(c.Request.Context(), actor, id, req)
	if httpkit.HandleError(c, err) {
		return
	}
	httpkit.OK(c, result)
}

// Cancel handles DELETE /api/v1/reservations/:id
func (h *Handler) Cancel(c *gin.Context) {
	id, ok := reservationID(c)
	if !ok {
		return
	}
	actor, ok := actorFrom(c)
	if !ok {
		return
	}

	result, err := h.svc.Cancel(c.Request.Context(), actor, id)
	if httpkit.HandleError(c, err) {
		return
	}
	httpkit.OK(c, result)
}
