package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"
	"github.com/rs/zerolog"

	"github.com/noah-isme/gema-sheet-grader/internal/config"
	"github.com/noah-isme/gema-sheet-grader/internal/database"
	"github.com/noah-isme/gema-sheet-grader/internal/handler"
	"github.com/noah-isme/gema-sheet-grader/internal/middleware"
	"github.com/noah-isme/gema-sheet-grader/internal/models"
	"github.com/noah-isme/gema-sheet-grader/internal/repository"
	"github.com/noah-isme/gema-sheet-grader/internal/router"
	"github.com/noah-isme/gema-sheet-grader/internal/service"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load configuration: %v", err)
	}

	logger := zerolog.New(os.Stdout).With().Timestamp().Str("service", "resultstore").Logger()

	db, err := database.Connect(cfg.DatabaseDriver, cfg.DatabaseURL)
	if err != nil {
		log.Fatalf("failed to connect to database: %v", err)
	}

	if err := db.AutoMigrate(&models.EssayResult{}, &models.IdentificationResult{}); err != nil {
		log.Fatalf("failed to migrate database: %v", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		log.Fatalf("failed to access database handle: %v", err)
	}
	defer sqlDB.Close()

	validate := validator.New(validator.WithRequiredStructEnabled())
	resultRepo := repository.NewResultRepository(db)
	resultService := service.NewResultStoreService(resultRepo, validate, logger)
	resultHandler := handler.NewResultStoreHandler(resultService, logger)

	app := fiber.New(fiber.Config{
		AppName:      cfg.AppName + " result store",
		ServerHeader: cfg.AppName,
	})

	middleware.Register(app, middleware.Config{Logger: &logger, AccessLog: cfg.AppEnv == "development"})
	router.Register(app, cfg, router.Dependencies{
		ResultStoreHandler: resultHandler,
		HealthChecks: map[string]handler.DependencyCheck{
			"database": sqlDB.PingContext,
		},
	})

	logger.Info().
		Str("address", cfg.HTTPAddress()).
		Str("driver", cfg.DatabaseDriver).
		Msg("result store starting")

	go func() {
		if err := app.Listen(cfg.HTTPAddress()); err != nil {
			log.Fatalf("failed to start server: %v", err)
		}
	}()

	shutdownCtx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	<-shutdownCtx.Done()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := app.ShutdownWithContext(ctx); err != nil {
		logger.Error().Err(err).Msg("graceful shutdown failed")
	}
	logger.Info().Msg("server stopped")
}
