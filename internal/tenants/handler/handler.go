package handler

import (
	"net/http"

	"clinic_booking_backend/internal/shared/principal"
	"clinic_booking_backend/internal/tenants/service"
	"clinic_booking_backend/internal/tenants/transport"
	"clinic_booking_backend/platform/httpkit"

	"github.com/gin-gonic/gin"
)

// Handler handles HTTP requests for tenant settings
type Handler struct {
	svc *service.Service
}

func New(svc *service.Service) *Handler {
	return &Handler{svc: svc}
}

func (h *Handler) RegisterRoutes(rg *gin.RouterGroup) {
	rg.GET("/settings", h.GetSettings)
	rg.PUT("/settings", httpkit.RequireRole(httpkit.RoleAdmin), h.UpdateSettings)
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

// GetSettings handles GET /api/v1/tenant/settings
func (h *Handler) GetSettings(c *gin.Context) {
	actor, ok := actorFrom(c)
	if !ok {
		return
	}
	resp, err := h.svc.Get(c.Request.Context(), actor)
	if httpkit.HandleError(c, err) {
		return
	}
	httpkit.OK(c, resp)
}

// UpdateSettings handles PUT /api/v1/tenant/settings
func (h *Handler) UpdateSettings(c *gin.Context) {
	var req transport.UpdateSettingsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		httpkit.Error(c, http.StatusBadRequest, "invalid request", err.Error())
		return
	}
	actor, ok := actorFrom(c)
	if !ok {
		return
	}
	resp, err := h.svc.Update(c.Request.Context(), actor, req)
	if httpkit.HandleError(c, err) {
		return
	}
	httpkit.OK(c, resp)
}
