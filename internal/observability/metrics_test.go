package observability

import (
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/require"
)

func TestMetricsHandlerExposesPipelineCollectors(t *testing.T) {
	PipelineRuns().WithLabelValues("essay", "succeeded").Inc()
	PipelineTransitions().WithLabelValues("idle", "uploading").Inc()
	OutboundFailures().WithLabelValues("grading", "status").Inc()

	app := fiber.New()
	app.Get("/metrics", MetricsHandler())

	resp, err := app.Test(httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.NoError(t, err)
	require.Equal(t, fiber.StatusOK, resp.StatusCode)

	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	require.Contains(t, string(body), `gema_submission_runs_total{assessment_type="essay",outcome="succeeded"}`)
	require.Contains(t, string(body), `gema_submission_state_transitions_total{from="idle",to="uploading"}`)
	require.Contains(t, string(body), `gema_outbound_failures_total{collaborator="grading",reason="status"}`)
}
