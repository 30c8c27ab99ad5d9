package handler

import (
	"net/http"

	"clinic_booking_backend/internal/shared/principal"
	"clinic_booking_backend/internal/slots/service"
	"clinic_booking_backend/internal/slots/transport"
	"clinic_booking_backend/platform/httpkit"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

const (
	msgInvalidRequest = "invalid request"
	msgInvalidSlotID  = "invalid slot id"
)

// Handler handles HTTP requests for slots
type Handler struct {
	svc *service.Service
}

// New creates a new slots handler
func New(svc *service.Service) *Handler {
	return &Handler{svc: svc}
}

// RegisterRoutes registers the slot routes. Writes are limited to staff.
func (h *Handler) RegisterRoutes(rg *gin.RouterGroup) {
	staff := httpkit.RequireRole(httpkit.RoleDoctor, httpkit.RoleAdmin)

	rg.GET("", h.List)
	rg.GET("/:id", h.GetByID)
	rg.POST("", staff, h.Create)
	rg.POST("/generate", staff, h.Generate)
	rg.PUT("/:id", staff, h.Update)
	rg.DELETE("/:id", staff, h.Delete)
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

func slotID(c *gin.Context) (uuid.UUID, bool) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		httpkit.Error(c, http.StatusBadRequest, msgInvalidSlotID, nil)
		return uuid.UUID{}, false
	}
	return id, true
}

// Generate handles POST /api/v1/slots/generate
func (h *Handler) Generate(c *gin.Context) {
	var req transport.GenerateSlotsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		httpkit.Error(c, http.StatusBadRequest, msgInvalidRequest, err.Error())
		return
	}
	actor, ok := actorFrom(c)
	if !ok {
		return
	}

	report, err := h.svc.Generate(c.Request.Context(), actor, req)
	if httpkit.HandleError(c, err) {
		return
	}
	httpkit.JSON(c, http.StatusCreated, report)
}

// List handles GET /api/v1/slots
func (h *Handler) List(c *gin.Context) {
	var req transport.ListSlotsRequest
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

// Create handles POST /api/v1/slots
func (h *Handler) Create(c *gin.Context) {
	var req transport.CreateSlotRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		httpkit.Error(c, http.StatusBadRequest, msgInvalidRequest, err.Error())
		return
	}
	actor, ok := actorFrom(c)
	if !ok {
		return
	}

	result, err := h.svc.Create(c.Request.Context(), actor, req)
	if httpkit.HandleError(c, err) {
		return
	}
	httpkit.JSON(c, http.StatusCreated, result)
}

// GetByID handles GET /api/v1/slots/:id
func (h *Handler) GetByID(c *gin.Context) {
	id, ok := slotID(c)
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

// Update handles PUT /api/v1/slots/:id
func (h *Handler) Update(c *gin.Context) {
	id, ok := slotID(c)
	if !ok {
		return
	}
	var req transport.UpdateSlotRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		httpkit.Error(c, http.StatusBadRequest, msgInvalidRequest, err.Error())
		return
	}
	actor, ok := actorFrom(c)
	if !ok {
		return
	}

	result, err := h.svc.Update(c.Request.Context(), actor, id, req)
	if httpkit.HandleError(c, err) {
		return
	}
	httpkit.OK(c, result)
}

// Delete handles DELETE /api/v1/slots/:id
func (h *Handler) Delete(c *gin.Context) {
	id, ok := slotID(c)
	if !ok {
		return
	}
	actor, ok := actorFrom(c)
	if !ok {
		return
	}

	if err := h.svc.Delete(c.Request.Context(), actor, id); httpkit.HandleError(c, err) {
		return
	}
	c.Status(http.StatusNoContent)
}
