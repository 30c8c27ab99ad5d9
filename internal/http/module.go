// Package http wires booking modules onto the shared gin engine.
package http

import (
	"context"

	"clinic_booking_backend/platform/config"
	"clinic_booking_backend/platform/httpkit"
	"clinic_booking_backend/platform/logger"
	"clinic_booking_backend/platform/metrics"

	"github.com/gin-gonic/gin"
)

// Module is a booking component with HTTP routes.
type Module interface {
	Name() string
	RegisterRoutes(ctx *RouterContext)
}

// RouterContext is what a module may mount routes on.
//
// Protected requires a valid bearer token; Admin additionally requires the
// tenant admin role.
type RouterContext struct {
	Public             *gin.RouterGroup
	Protected          *gin.RouterGroup
	Admin              *gin.RouterGroup
	BookingRateLimiter *httpkit.IPRateLimiter
}

// RouterConfig is the slice of configuration the router reads.
type RouterConfig interface {
	config.HTTPConfig
	config.JWTConfig
}

// HealthChecker backs /api/health.
type HealthChecker interface {
	Ping(ctx context.Context) error
}

// App is assembled in cmd/api and handed to the router.
// Health and Metrics may be nil.
type App struct {
	Config  RouterConfig
	Logger  *logger.Logger
	Health  HealthChecker
	Metrics *metrics.Metrics
	Modules []Module
}
