// Package metrics exposes the Prometheus collectors of the booking service.
// A nil *Metrics is valid and records nothing.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "clinic_booking"

// Booking outcomes.
const (
	OutcomeBooked        = "booked"
	OutcomeAlreadyBooked = "already_booked"
	OutcomeNotFound      = "slot_not_found"
	OutcomeTooSoon       = "too_soon"
	OutcomeError         = "error"
)

// Metrics holds all application collectors on a private registry.
type Metrics struct {
	registry *prometheus.Registry

	bookings        *prometheus.CounterVec
	transitions     *prometheus.CounterVec
	slotsGenerated  *prometheus.CounterVec
	notifications   *prometheus.CounterVec
	requestDuration *prometheus.HistogramVec
}

// New creates and registers all collectors, including Go runtime and process
// collectors.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	factory := promauto.With(reg)

	return &Metrics{
		registry: reg,
		bookings: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "bookings_total",
			Help:      "Booking attempts by outcome",
		}, []string{"outcome"}),
		transitions: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "reservation_transitions_total",
			Help:      "Successful reservation status transitions by target status",
		}, []string{"status"}),
		slotsGenerated: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "generated_slots_total",
			Help:      "Generated slot candidates by result",
		}, []string{"result"}),
		notifications: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "notifications_total",
			Help:      "Notification dispatches by kind and outcome",
		}, []string{"kind", "outcome"}),
		requestDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request latency",
			Buckets:   []float64{.005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5},
		}, []string{"method", "route", "status"}),
	}
}

// Registry returns the underlying registry.
func (m *Metrics) Registry() *prometheus.Registry {
	if m == nil {
		return nil
	}
	return m.registry
}

// Booking records one booking attempt.
func (m *Metrics) Booking(outcome string) {
	if m == nil {
		return
	}
	m.bookings.WithLabelValues(outcome).Inc()
}

// Transition records a committed status change.
func (m *Metrics) Transition(status string) {
	if m == nil {
		return
	}
	m.transitions.WithLabelValues(status).Inc()
}

// SlotsGenerated records the result of one generation run.
func (m *Metrics) SlotsGenerated(created, conflicts int) {
	if m == nil {
		return
	}
	m.slotsGenerated.WithLabelValues("created").Add(float64(created))
	m.slotsGenerated.WithLabelValues("conflict").Add(float64(conflicts))
}

// Notification records one dispatch.
func (m *Metrics) Notification(kind string, success bool) {
	if m == nil {
		return
	}
	outcome := "sent"
	if !success {
		outcome = "failed"
	}
	m.notifications.WithLabelValues(kind, outcome).Inc()
}

// Middleware observes request latency per matched route.
func (m *Metrics) Middleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		if m == nil {
			c.Next()
			return
		}
		start := time.Now()
		c.Next()

		route := c.FullPath()
		if route == "" {
			route = "unmatched"
		}
		m.requestDuration.
			WithLabelValues(c.Request.Method, route, strconv.Itoa(c.Writer.Status())).
			Observe(time.Since(start).Seconds())
	}
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}
