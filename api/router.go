package api

import (
	"context"
	"net/http"
	"time"

	"github.com/Domenick1991/flightbooking/config"
	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
)

// HealthCheck reports whether one dependency is usable.
type HealthCheck func(ctx context.Context) error

func NewFlightRouter(h *FlightHandler, cfg config.HTTPConfig, logger logrus.FieldLogger, checks map[string]HealthCheck) *gin.Engine {
	router := newEngine(cfg, logger, checks)
	h.Register(router.Group("/api/flight"))
	return router
}

func NewBookingRouter(h *BookingHandler, cfg config.HTTPConfig, logger logrus.FieldLogger, checks map[string]HealthCheck) *gin.Engine {
	router := newEngine(cfg, logger, checks)
	h.Register(router.Group("/api/flight/booking"))
	return router
}

func newEngine(cfg config.HTTPConfig, logger logrus.FieldLogger, checks map[string]HealthCheck) *gin.Engine {
	if cfg.Mode != "" {
		gin.SetMode(cfg.Mode)
	}

	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(requestLogger(logger))
	router.Use(cors.New(corsConfig(cfg.AllowedOrigins)))

	router.GET("/health", healthHandler(checks))
	return router
}

func corsConfig(origins []string) cors.Config {
	c := cors.Config{
		AllowMethods:  []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodDelete, http.MethodOptions},
		AllowHeaders:  []string{"Origin", "Content-Type", "Accept"},
		ExposeHeaders: []string{"Content-Length"},
		MaxAge:        12 * time.Hour,
	}
	if len(origins) == 0 {
		c.AllowAllOrigins = true
		return c
	}
	c.AllowOrigins = origins
	c.AllowCredentials = true
	return c
}

func healthHandler(checks map[string]HealthCheck) gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
		defer cancel()

		status := http.StatusOK
		results := make(map[string]string, len(checks))
		for name, check := range checks {
			if err := check(ctx); err != nil {
				results[name] = err.Error()
				status = http.StatusServiceUnavailable
				continue
			}
			results[name] = "ok"
		}

		state := "healthy"
		if status != http.StatusOK {
			state = "unhealthy"
		}
		c.JSON(status, gin.H{"status": state, "checks": results})
	}
}
