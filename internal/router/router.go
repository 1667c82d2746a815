package router

import (
	"time"

	"github.com/gofiber/fiber/v2"

	"github.com/noah-isme/gema-grading-api/internal/config"
	"github.com/noah-isme/gema-grading-api/internal/handler"
	"github.com/noah-isme/gema-grading-api/internal/middleware"
	"github.com/noah-isme/gema-grading-api/internal/observability"
)

// Dependencies groups router dependencies for registration.
type Dependencies struct {
	GradingHandler       *handler.GradingHandler
	ScoringConfigHandler *handler.ScoringConfigHandler
	ActivityHandler      *handler.ActivityHandler
	Health               handler.HealthDependencies
	JWTMiddleware        fiber.Handler
	ExposeMetrics        bool
}

// Register wires the HTTP routes into the fiber application.
func Register(app *fiber.App, cfg config.Config, deps Dependencies) {
	// Common v1 group for health & headers
	api := app.Group("/api/v1", func(c *fiber.Ctx) error {
		c.Set("X-Application", cfg.AppName)
		return c.Next()
	})
	api.Get("/health", handler.HealthCheck(cfg, deps.Health))

	if deps.ExposeMetrics {
		app.Get("/metrics", observability.MetricsHandler())
	}

	// Use provided JWT middleware, or a no-op if nil
	jwtMiddleware := deps.JWTMiddleware
	if jwtMiddleware == nil {
		jwtMiddleware = func(c *fiber.Ctx) error { return c.Next() }
	}

	grading := app.Group(middleware.GradingRoutePrefix, jwtMiddleware, middleware.RequireGrader())

	if deps.GradingHandler != nil {
		bulkLimiter := middleware.RateLimit("grading-bulk", cfg.BulkRateLimitPerMin, time.Minute)
		deps.GradingHandler.Register(grading, bulkLimiter)
	}

	if deps.ScoringConfigHandler != nil {
		deps.ScoringConfigHandler.Register(grading)
	}

	if deps.ActivityHandler != nil {
		deps.ActivityHandler.Register(grading)
	}
}
