package middleware_test

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/gema-sheet-grader/internal/middleware"
)

func perform(t *testing.T, app *fiber.App, req *http.Request) *http.Response {
	t.Helper()
	resp, err := app.Test(req)
	require.NoError(t, err)
	return resp
}

func TestCorrelationIDPropagatesIncomingHeader(t *testing.T) {
	app := fiber.New()
	app.Use(middleware.CorrelationID())
	app.Get("/", func(c *fiber.Ctx) error {
		require.Equal(t, "corr-1", middleware.GetCorrelationID(c))
		require.Equal(t, "corr-1", middleware.CorrelationIDFromContext(c.UserContext()))
		return c.SendStatus(fiber.StatusNoContent)
	})

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("X-Correlation-ID", "corr-1")

	resp := perform(t, app, req)
	require.Equal(t, fiber.StatusNoContent, resp.StatusCode)
	require.Equal(t, "corr-1", resp.Header.Get("X-Correlation-ID"))
}

func TestCorrelationIDGeneratedWhenMissing(t *testing.T) {
	app := fiber.New()
	app.Use(middleware.CorrelationID())
	app.Get("/", func(c *fiber.Ctx) error {
		return c.SendStatus(fiber.StatusNoContent)
	})

	resp := perform(t, app, httptest.NewRequest(http.MethodGet, "/", nil))
	require.NotEmpty(t, resp.Header.Get("X-Correlation-ID"))
}

func TestRegisterKeepsResponsesIntact(t *testing.T) {
	app := fiber.New()
	logger := zerolog.Nop()
	middleware.Register(app, middleware.Config{Logger: &logger, ObservedPrefix: "/api"})
	app.Get("/api/v1/ping", func(c *fiber.Ctx) error {
		return c.Status(fiber.StatusBadGateway).SendString("upstream down")
	})

	resp := perform(t, app, httptest.NewRequest(http.MethodGet, "/api/v1/ping", nil))
	require.Equal(t, fiber.StatusBadGateway, resp.StatusCode)
	require.NotEmpty(t, resp.Header.Get("X-Correlation-ID"))
}

func TestRateLimitRejectsBurst(t *testing.T) {
	app := fiber.New()
	app.Post("/", middleware.RateLimit("submissions", 2, time.Minute), func(c *fiber.Ctx) error {
		return c.SendStatus(fiber.StatusNoContent)
	})

	for i := 0; i < 2; i++ {
		resp := perform(t, app, httptest.NewRequest(http.MethodPost, "/", nil))
		require.Equal(t, fiber.StatusNoContent, resp.StatusCode)
	}

	resp := perform(t, app, httptest.NewRequest(http.MethodPost, "/", nil))
	require.Equal(t, fiber.StatusTooManyRequests, resp.StatusCode)
}
