// Package config loads the process-wide service configuration from the
// environment (and an optional .env file). Required settings are validated
// once at startup; a missing credential is a fatal startup error, never a
// per-request one.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config is the immutable service configuration, constructed once at startup
// and passed by reference into every component.
type Config struct {
	// Required.
	CustomModelEndpoint  string // specialized classifier URL
	CustomModelAuthToken string // specialized classifier bearer token
	OpenAIAPIKey         string // general classifier API key
	SlackWebhookURL      string // notification sink

	// Optional, with defaults.
	ListenAddr        string        // HTTP listen address
	ClassifierTimeout time.Duration // per remote classifier call
	MigrationsPath    string        // schema migrations directory

	// Optional integrations, enabled when set.
	RedisAddr   string // per-client rate limiting
	NATSURL     string // decision event stream
	DatabaseURL string // decision audit log

	RateLimitPerMinute int // moderation requests per client per minute
}

// requiredVars are the settings whose absence aborts startup.
var requiredVars = []string{
	"CUSTOM_MODEL_ENDPOINT",
	"CUSTOM_MODEL_AUTH_TOKEN",
	"OPENAI_API_KEY",
	"SLACK_WEBHOOK_URL",
}

// Load reads configuration from a .env file (if present) and the
// environment. It returns an error naming every missing required variable.
func Load() (*Config, error) {
	// Best-effort: a missing .env file just means plain environment config.
	_ = godotenv.Load()

	var missing []string
	for _, name := range requiredVars {
		if os.Getenv(name) == "" {
			missing = append(missing, name)
		}
	}
	if len(missing) > 0 {
		return nil, fmt.Errorf("config: missing required environment variables: %s", strings.Join(missing, ", "))
	}

	cfg := &Config{
		CustomModelEndpoint:  os.Getenv("CUSTOM_MODEL_ENDPOINT"),
		CustomModelAuthToken: os.Getenv("CUSTOM_MODEL_AUTH_TOKEN"),
		OpenAIAPIKey:         os.Getenv("OPENAI_API_KEY"),
		SlackWebhookURL:      os.Getenv("SLACK_WEBHOOK_URL"),

		ListenAddr:         ":8080",
		ClassifierTimeout:  10 * time.Second,
		MigrationsPath:     "migrations",
		RedisAddr:          os.Getenv("REDIS_ADDR"),
		NATSURL:            os.Getenv("NATS_URL"),
		DatabaseURL:        os.Getenv("DATABASE_URL"),
		RateLimitPerMinute: 30,
	}

	if v := os.Getenv("LISTEN_ADDR"); v != "" {
		cfg.ListenAddr = v
	}
	if v := os.Getenv("CLASSIFIER_TIMEOUT"); v != "" {
		if d, err := time.ParseDuration(v); err == nil && d > 0 {
			cfg.ClassifierTimeout = d
		}
	}
	if v := os.Getenv("MIGRATIONS_PATH"); v != "" {
		cfg.MigrationsPath = v
	}
	if v := os.Getenv("RATE_LIMIT_PER_MINUTE"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			cfg.RateLimitPerMinute = n
		}
	}

	return cfg, nil
}
