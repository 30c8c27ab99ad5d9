package handler

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"clinic_booking_backend/internal/notification/repository"
	"clinic_booking_backend/platform/httpkit"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

// DeliveryLister reads the audit trail of one reservation.
type DeliveryLister interface {
	ListDeliveries(ctx context.Context, reservationID, tenantID uuid.UUID, limit int) ([]repository.Delivery, error)
}

type DeliveryResponse struct {
	ID          uuid.UUID `json:"id"`
	Kind        string    `json:"kind"`
	Recipient   string    `json:"recipient"`
	Success     bool      `json:"success"`
	LastError   *string   `json:"lastError,omitempty"`
	AttemptedAt string    `json:"attemptedAt"`
}

type HTTPHandler struct {
	deliveries DeliveryLister
}

func NewHTTPHandler(deliveries DeliveryLister) *HTTPHandler {
	return &HTTPHandler{deliveries: deliveries}
}

// RegisterRoutes expects an admin-only group.
func (h *HTTPHandler) RegisterRoutes(rg *gin.RouterGroup) {
	rg.GET("/reservations/:id/notifications", h.List)
}

func (h *HTTPHandler) List(c *gin.Context) {
	identity := httpkit.MustGetIdentity(c)
	if identity == nil {
		return
	}
	tenantID, ok := httpkit.MustGetTenantID(c, identity)
	if !ok {
		return
	}
	reservationID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		httpkit.Error(c, http.StatusBadRequest, "invalid reservation id", nil)
		return
	}

	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "50"))
	if limit < 1 || limit > 200 {
		limit = 50
	}

	items, err := h.deliveries.ListDeliveries(c.Request.Context(), reservationID, tenantID, limit)
	if httpkit.HandleError(c, err) {
		return
	}

	out := make([]DeliveryResponse, 0, len(items))
	for _, d := range items {
		out = append(out, DeliveryResponse{
			ID:          d.ID,
			Kind:        d.Kind,
			Recipient:   d.Recipient,
			Success:     d.Success,
			LastError:   d.LastError,
			AttemptedAt: d.AttemptedAt.UTC().Format(time.RFC3339),
		})
	}
	httpkit.OK(c, gin.H{"items": out})
}
