package middleware

import (
	"io"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/rs/zerolog"
)

// Config customises the middleware registration pipeline.
type Config struct {
	Logger *zerolog.Logger
	// ObservedPrefix limits request metrics to paths with this prefix. Empty measures every route.
	ObservedPrefix string
	// AccessLog enables the fiber access log alongside the structured request logs.
	AccessLog bool
}

// Register attaches the common middlewares used by both services.
func Register(app *fiber.App, cfg Config) {
	requestLogger := zerolog.New(io.Discard)
	if cfg.Logger != nil {
		requestLogger = *cfg.Logger
	}

	app.Use(recover.New())
	app.Use(CorrelationID())
	app.Use(Observability(requestLogger, cfg.ObservedPrefix))
	if cfg.AccessLog {
		app.Use(logger.New())
	}
	app.Use(cors.New(cors.Config{
		AllowOrigins:  "*",
		AllowHeaders:  "Origin, Content-Type, Accept, X-Correlation-ID, X-Request-ID, X-Submission-ID",
		AllowMethods:  "GET,POST,OPTIONS",
		ExposeHeaders: "Location, X-Correlation-ID",
	}))
}
