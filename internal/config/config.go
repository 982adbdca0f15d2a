package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Config holds runtime configuration values for the sheet grader services.
type Config struct {
	AppName           string
	AppEnv            string
	AppPort           string
	ServerURL         string
	UploadMaxMB       int
	RedisURL          string
	SubmissionLockTTL time.Duration
	SubmissionRate    int
	NATSURL           string
	NATSSubject       string
	DatabaseDriver    string
	DatabaseURL       string
}

// HTTPAddress returns the address the HTTP server should listen on.
func (c Config) HTTPAddress() string {
	if strings.HasPrefix(c.AppPort, ":") {
		return c.AppPort
	}

	return fmt.Sprintf(":%s", c.AppPort)
}

// Endpoints derives every collaborator endpoint from the single server base URL.
func (c Config) Endpoints() Endpoints {
	return NewEndpoints(c.ServerURL)
}

// Endpoints lists the grading and persistence URLs used by the submission pipeline.
type Endpoints struct {
	EssayGrading          string
	IdentificationGrading string
	EssayResults          string
	IdentificationResults string
}

// NewEndpoints builds the endpoint set by concatenating paths onto base.
func NewEndpoints(base string) Endpoints {
	base = strings.TrimSuffix(strings.TrimSpace(base), "/")
	return Endpoints{
		EssayGrading:          base + "/essay",
		IdentificationGrading: base + "/identification",
		EssayResults:          base + "/essay-results",
		IdentificationResults: base + "/identification-results",
	}
}

// Load reads configuration values from environment variables and optional .env file.
func Load() (Config, error) {
	_ = godotenv.Load()

	v := viper.New()
	v.SetEnvPrefix("GEMA")
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	v.SetDefault("app.name", "GEMA Sheet Grader")
	v.SetDefault("app.env", "development")
	v.SetDefault("app.port", "8080")
	v.SetDefault("upload.max_mb", 10)
	v.SetDefault("submission.lock_ttl", "2m")
	v.SetDefault("submission.rate_limit", 30)
	v.SetDefault("nats.subject", "gema.submissions.state")
	v.SetDefault("database.driver", "postgres")

	ttlString := v.GetString("submission.lock_ttl")
	if ttlString == "" {
		ttlString = "2m"
	}

	ttl, err := time.ParseDuration(ttlString)
	if err != nil {
		return Config{}, fmt.Errorf("invalid submission lock ttl: %w", err)
	}

	cfg := Config{
		AppName:           v.GetString("app.name"),
		AppEnv:            v.GetString("app.env"),
		AppPort:           v.GetString("app.port"),
		ServerURL:         strings.TrimSpace(v.GetString("server.url")),
		UploadMaxMB:       v.GetInt("upload.max_mb"),
		RedisURL:          v.GetString("redis.url"),
		SubmissionLockTTL: ttl,
		SubmissionRate:    v.GetInt("submission.rate_limit"),
		NATSURL:           v.GetString("nats.url"),
		NATSSubject:       v.GetString("nats.subject"),
		DatabaseDriver:    strings.ToLower(v.GetString("database.driver")),
		DatabaseURL:       v.GetString("database.url"),
	}

	if cfg.UploadMaxMB <= 0 {
		cfg.UploadMaxMB = 10
	}

	return cfg, nil
}

// RequireServerURL reports an error when the pipeline base URL is missing.
func (c Config) RequireServerURL() error {
	if c.ServerURL == "" {
		return fmt.Errorf("server url must be provided")
	}
	return nil
}
