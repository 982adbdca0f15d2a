package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/nats-io/nats.go"
	"github.com/rs/zerolog"

	"github.com/noah-isme/gema-sheet-grader/internal/config"
	"github.com/noah-isme/gema-sheet-grader/internal/database"
	"github.com/noah-isme/gema-sheet-grader/internal/handler"
	"github.com/noah-isme/gema-sheet-grader/internal/middleware"
	"github.com/noah-isme/gema-sheet-grader/internal/router"
	"github.com/noah-isme/gema-sheet-grader/internal/service"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load configuration: %v", err)
	}
	if err := cfg.RequireServerURL(); err != nil {
		log.Fatalf("invalid configuration: %v", err)
	}

	logger := zerolog.New(os.Stdout).With().Timestamp().Str("service", "api").Logger()
	maxImageBytes := int64(cfg.UploadMaxMB) * 1024 * 1024
	checks := map[string]handler.DependencyCheck{}

	guard := service.NewMemorySubmissionGuard()
	if cfg.RedisURL != "" {
		redisClient, err := database.ConnectRedis(cfg.RedisURL)
		if err != nil {
			log.Fatalf("failed to connect to redis: %v", err)
		}
		defer redisClient.Close()

		guard = service.NewRedisSubmissionGuard(redisClient, cfg.SubmissionLockTTL, logger)
		checks["redis"] = database.RedisCheck(redisClient)
	}

	broker := service.NewStateBroker()
	observers := []service.StateObserver{broker}

	if cfg.NATSURL != "" {
		conn, err := database.ConnectNATS(cfg.NATSURL, cfg.AppName, logger)
		if err != nil {
			log.Fatalf("failed to connect to nats: %v", err)
		}
		defer conn.Drain()

		observers = append(observers, service.NewNATSStatePublisher(conn, cfg.NATSSubject, logger))
		checks["nats"] = func(context.Context) error {
			return natsStatus(conn)
		}
	}

	endpoints := cfg.Endpoints()
	// No client timeout: outbound calls are awaited until the collaborator answers.
	client := &http.Client{}

	dispatcher, err := service.NewGradingDispatcher(client, endpoints, logger)
	if err != nil {
		log.Fatalf("failed to build grading dispatcher: %v", err)
	}
	submitter := service.NewResultSubmitter(client, endpoints, logger)
	pipeline := service.NewSubmissionPipeline(dispatcher, submitter, guard, service.PipelineConfig{MaxImageBytes: maxImageBytes}, logger, observers...)

	submissionHandler := handler.NewSubmissionHandler(pipeline, broker, maxImageBytes, logger)

	app := fiber.New(fiber.Config{
		AppName:      cfg.AppName,
		ServerHeader: cfg.AppName,
		// multipart overhead on top of the largest accepted image
		BodyLimit: int(maxImageBytes) + 1024*1024,
	})

	middleware.Register(app, middleware.Config{Logger: &logger, ObservedPrefix: "/api", AccessLog: cfg.AppEnv == "development"})
	router.Register(app, cfg, router.Dependencies{
		SubmissionHandler: submissionHandler,
		HealthChecks:      checks,
	})

	logger.Info().
		Str("address", cfg.HTTPAddress()).
		Str("server_url", cfg.ServerURL).
		Msg("submission api starting")

	go func() {
		if err := app.Listen(cfg.HTTPAddress()); err != nil {
			log.Fatalf("failed to start server: %v", err)
		}
	}()

	waitForShutdown(app, logger)
}

func natsStatus(conn *nats.Conn) error {
	if !conn.IsConnected() {
		return nats.ErrConnectionClosed
	}
	return nil
}

func waitForShutdown(app *fiber.App, logger zerolog.Logger) {
	shutdownCtx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	<-shutdownCtx.Done()

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := app.ShutdownWithContext(ctx); err != nil {
		logger.Error().Err(err).Msg("graceful shutdown failed")
	}

	logger.Info().Msg("server stopped")
}
