package metrics

import (
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestCountersAccumulate(t *testing.T) {
	m := New()
	m.Booking(OutcomeBooked)
	m.Booking(OutcomeBooked)
	m.Booking(OutcomeAlreadyBooked)
	m.SlotsGenerated(3, 2)
	m.Notification("RESERVATION_CREATED", false)

	if got := testutil.ToFloat64(m.bookings.WithLabelValues(OutcomeBooked)); got != 2 {
		t.Fatalf("expected 2 bookings, got %v", got)
	}
	if got := testutil.ToFloat64(m.slotsGenerated.WithLabelValues("conflict")); got != 2 {
		t.Fatalf("expected 2 conflicts, got %v", got)
	}
	if got := testutil.ToFloat64(m.notifications.WithLabelValues("RESERVATION_CREATED", "failed")); got != 1 {
		t.Fatalf("expected 1 failed notification, got %v", got)
	}
}

func TestNilMetricsIsNoop(t *testing.T) {
	var m *Metrics
	m.Booking(OutcomeBooked)
	m.SlotsGenerated(1, 1)
	m.Notification("x", true)
	m.Transition("CONFIRMED")
	if m.Registry() != nil {
		t.Fatalf("expected nil registry")
	}
}

func TestHandlerExposesRouteLatency(t *testing.T) {
	gin.SetMode(gin.TestMode)
	m := New()
	engine := gin.New()
	engine.Use(m.Middleware())
	engine.GET("/api/v1/slots/:id", func(c *gin.Context) { c.Status(http.StatusNoContent) })
	engine.GET("/metrics", gin.WrapH(m.Handler()))

	engine.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/api/v1/slots/abc", nil))

	rec := httptest.NewRecorder()
	engine.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	body, _ := io.ReadAll(rec.Body)
	if !strings.Contains(string(body), `route="/api/v1/slots/:id"`) {
		t.Fatalf("expected templated route label in exposition")
	}
}
