package router

import (
	"time"

	"github.com/gofiber/fiber/v2"

	"github.com/noah-isme/gema-sheet-grader/internal/config"
	"github.com/noah-isme/gema-sheet-grader/internal/handler"
	"github.com/noah-isme/gema-sheet-grader/internal/middleware"
	"github.com/noah-isme/gema-sheet-grader/internal/observability"
)

// Dependencies groups router dependencies for registration.
type Dependencies struct {
	SubmissionHandler  *handler.SubmissionHandler
	ResultStoreHandler *handler.ResultStoreHandler
	HealthChecks       map[string]handler.DependencyCheck
	// SubmissionLimiter throttles answer sheet uploads. Nil falls back to cfg.SubmissionRate per minute.
	SubmissionLimiter fiber.Handler
}

// Register wires the HTTP routes into the fiber application.
func Register(app *fiber.App, cfg config.Config, deps Dependencies) {
	app.Get("/metrics", observability.MetricsHandler())

	api := app.Group("/api/v1", func(c *fiber.Ctx) error {
		c.Set("X-Application", cfg.AppName)
		return c.Next()
	})
	api.Get("/health", handler.HealthCheck(cfg, deps.HealthChecks))

	// Answer sheet submissions and their state stream
	if deps.SubmissionHandler != nil {
		limiter := deps.SubmissionLimiter
		if limiter == nil {
			limiter = middleware.RateLimit("submissions", cfg.SubmissionRate, time.Minute)
		}
		api.Use("/assessments", limiter)
		deps.SubmissionHandler.Register(api)
	}

	// Result store, mounted at the root so the pipeline endpoints resolve against server.url
	if deps.ResultStoreHandler != nil {
		deps.ResultStoreHandler.Register(app)
	}
}
