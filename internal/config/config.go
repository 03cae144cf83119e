package config

import (
	"fmt"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
)

// Config is the application configuration, loaded from environment
// variables with an optional .env file.
type Config struct {
	// HTTP
	HTTPAddr string `env:"HTTP_ADDR" envDefault:":8000"`

	// Database
	DatabasePath string `env:"DATABASE_PATH" envDefault:"./data/mailagent.db"`

	// Gmail
	GmailCredentialsPath string `env:"GMAIL_CREDENTIALS_PATH" envDefault:"credentials.json"`
	GmailTokenPath       string `env:"GMAIL_TOKEN_PATH" envDefault:"token.json"`

	// Local LLM endpoint (OpenAI-compatible, e.g. LM Studio)
	LLMBaseURL        string        `env:"LLM_BASE_URL" envDefault:"http://localhost:1234/v1"`
	LLMModel          string        `env:"LLM_MODEL" envDefault:"qwen2.5-7b-instruct-1m"`
	LLMAPIKey         string        `env:"LLM_API_KEY" envDefault:"lm-studio"`
	LLMTimeout        time.Duration `env:"LLM_TIMEOUT" envDefault:"60s"`
	LLMMaxInflight    int64         `env:"LLM_MAX_INFLIGHT" envDefault:"4"`
	ClassifyMaxTokens int64         `env:"LLM_MAX_TOKENS_CLASSIFY" envDefault:"300"`
	ResponseMaxTokens int64         `env:"LLM_MAX_TOKENS_RESPONSE" envDefault:"1500"`

	// Sync
	MaxEmailsPerSync int64 `env:"MAX_EMAILS_PER_SYNC" envDefault:"50"`
	ClassifyWorkers  int   `env:"CLASSIFY_WORKERS" envDefault:"5"`

	// Response generation
	ResponseVariants int    `env:"RESPONSE_VARIANTS" envDefault:"3"`
	OwnerName        string `env:"OWNER_NAME" envDefault:""`

	// Google Cloud push notifications (optional)
	GoogleCloudProject string `env:"GOOGLE_CLOUD_PROJECT"`
	SubscriptionID     string `env:"SUBSCRIPTION_ID"`

	// Logging
	LogLevel  string `env:"LOG_LEVEL" envDefault:"info"`
	LogFormat string `env:"LOG_FORMAT" envDefault:"text"` // "json" or "text"
}

// PushEnabled reports whether Gmail push notifications are configured.
func (c *Config) PushEnabled() bool {
	return c.GoogleCloudProject != "" && c.SubscriptionID != ""
}

// TopicName returns the Pub/Sub topic Gmail publishes watch events to.
func (c *Config) TopicName() string {
	return fmt.Sprintf("projects/%s/topics/gmail-topic", c.GoogleCloudProject)
}

// Load loads configuration from environment variables.
func Load() (*Config, error) {
	// Load .env file if exists (ignore error if not found)
	_ = godotenv.Load()

	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	if cfg.ResponseVariants < 1 || cfg.ResponseVariants > 3 {
		return nil, fmt.Errorf("RESPONSE_VARIANTS must be between 1 and 3, got %d", cfg.ResponseVariants)
	}
	if cfg.ClassifyWorkers < 1 {
		return nil, fmt.Errorf("CLASSIFY_WORKERS must be positive, got %d", cfg.ClassifyWorkers)
	}
	if cfg.LLMMaxInflight < 1 {
		return nil, fmt.Errorf("LLM_MAX_INFLIGHT must be positive, got %d", cfg.LLMMaxInflight)
	}

	return cfg, nil
}
