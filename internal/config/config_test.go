package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestNewEndpointsConcatenatesBase(t *testing.T) {
	endpoints := NewEndpoints("https://grader.example.com/")

	require.Equal(t, "https://grader.example.com/essay", endpoints.EssayGrading)
	require.Equal(t, "https://grader.example.com/identification", endpoints.IdentificationGrading)
	require.Equal(t, "https://grader.example.com/essay-results", endpoints.EssayResults)
	require.Equal(t, "https://grader.example.com/identification-results", endpoints.IdentificationResults)
}

func TestLoadReadsEnvironment(t *testing.T) {
	t.Setenv("GEMA_SERVER_URL", "http://localhost:5000")
	t.Setenv("GEMA_APP_PORT", "9090")
	t.Setenv("GEMA_SUBMISSION_LOCK_TTL", "30s")

	cfg, err := Load()
	require.NoError(t, err)
	require.Equal(t, "http://localhost:5000", cfg.ServerURL)
	require.Equal(t, ":9090", cfg.HTTPAddress())
	require.Equal(t, 30*time.Second, cfg.SubmissionLockTTL)
	require.Equal(t, 10, cfg.UploadMaxMB)
	require.Equal(t, "gema.submissions.state", cfg.NATSSubject)
	require.Equal(t, 30, cfg.SubmissionRate)
	require.NoError(t, cfg.RequireServerURL())
}

func TestLoadRejectsInvalidLockTTL(t *testing.T) {
	t.Setenv("GEMA_SUBMISSION_LOCK_TTL", "soon")

	_, err := Load()
	require.Error(t, err)
}

func TestRequireServerURL(t *testing.T) {
	require.Error(t, Config{}.RequireServerURL())
}
