package config

import (
	"fmt"

	"github.com/kelseyhightower/envconfig"
)

// Environment represents different deployment environments.
type Environment string

const (
	EnvDevelopment Environment = "development"
	EnvTesting     Environment = "testing"
	EnvProduction  Environment = "production"
)

// Config holds the configuration for the triage service.
// Environment variables are parsed from the TRIAGE_ prefix,
// e.g. TRIAGE_HTTP_PORT, TRIAGE_DB_DRIVER.
type Config struct {
	Environment Environment `envconfig:"ENVIRONMENT" default:"development"`

	// HTTP Configuration
	HTTPPort int `envconfig:"HTTP_PORT" default:"8080"`

	// Storage
	DBDriver    string `envconfig:"DB_DRIVER" default:"sqlite"`
	SQLitePath  string `envconfig:"SQLITE_PATH" default:"triage.db"`
	PostgresDSN string `envconfig:"POSTGRES_DSN" default:""`

	// Classifier (OpenAI-compatible chat completions endpoint). When APIKey
	// is empty the deterministic keyword classifier is used instead.
	ClassifierBaseURL string `envconfig:"CLASSIFIER_BASE_URL" default:"https://api.openai.com"`
	ClassifierModel   string `envconfig:"CLASSIFIER_MODEL" default:"gpt-4o-mini"`
	ClassifierAPIKey  string `envconfig:"CLASSIFIER_API_KEY" default:""`

	// Embedder
	OllamaURL  string `envconfig:"OLLAMA_URL" default:"http://localhost:11434"`
	EmbedModel string `envconfig:"EMBED_MODEL" default:"all-minilm"`

	// Matcher
	MatchThreshold float64 `envconfig:"MATCH_THRESHOLD" default:"0.78"`

	// Broadcaster: per-viewer queue depth before a slow viewer is dropped.
	EventBuffer int `envconfig:"EVENT_BUFFER" default:"32"`

	// Slack inbound webhook. Signature verification is skipped when the
	// signing secret is empty (local simulation).
	SlackSigningSecret string `envconfig:"SLACK_SIGNING_SECRET" default:""`

	// Health
	HealthIntervalSeconds int `envconfig:"HEALTH_INTERVAL_SECONDS" default:"30"`
}

// ResolveDefaults validates driver selection and derived settings.
func (c *Config) ResolveDefaults() error {
	switch c.DBDriver {
	case "sqlite":
		if c.SQLitePath == "" {
			return fmt.Errorf("TRIAGE_SQLITE_PATH must be set for the sqlite driver")
		}
	case "postgres":
		if c.PostgresDSN == "" {
			return fmt.Errorf("TRIAGE_POSTGRES_DSN must be set for the postgres driver")
		}
	default:
		return fmt.Errorf("unsupported DB_DRIVER: %s", c.DBDriver)
	}
	if c.MatchThreshold <= 0 || c.MatchThreshold >= 1 {
		return fmt.Errorf("MATCH_THRESHOLD must be in (0,1), got %v", c.MatchThreshold)
	}
	if c.EventBuffer < 1 {
		return fmt.Errorf("EVENT_BUFFER must be >= 1, got %d", c.EventBuffer)
	}
	return nil
}

// New creates a new Config by parsing environment variables.
func New() (*Config, error) {
	var cfg Config
	if err := envconfig.Process("TRIAGE", &cfg); err != nil {
		return nil, fmt.Errorf("failed to process environment variables: %w", err)
	}
	if err := cfg.ResolveDefaults(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// NewForTesting creates a config suitable for unit tests.
func NewForTesting() *Config {
	return &Config{
		Environment:           EnvTesting,
		HTTPPort:              8080,
		DBDriver:              "sqlite",
		SQLitePath:            ":memory:",
		ClassifierBaseURL:     "http://localhost:9999",
		ClassifierModel:       "test-model",
		OllamaURL:             "http://localhost:11434",
		EmbedModel:            "all-minilm",
		MatchThreshold:        0.78,
		EventBuffer:           32,
		HealthIntervalSeconds: 1,
	}
}

// IsTesting returns true if the environment is set to testing.
func (c *Config) IsTesting() bool { return c.Environment == EnvTesting }

// IsProduction returns true if the environment is set to production.
func (c *Config) IsProduction() bool { return c.Environment == EnvProduction }

// GetHTTPAddr returns the HTTP server address.
func (c *Config) GetHTTPAddr() string { return fmt.Sprintf(":%d", c.HTTPPort) }
