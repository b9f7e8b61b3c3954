package main

import (
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
)

type Config struct {
	BotToken string `envconfig:"GENDOLF_BOT_TOKEN"`
	BotDebug bool   `envconfig:"BOT_DEBUG" default:"false"`

	AIAPIKey    string        `envconfig:"AI_API_KEY"`
	AIModel     string        `envconfig:"AI_MODEL" default:"claude-sonnet-4-20250514"`
	AIProvider  string        `envconfig:"AI_PROVIDER" default:"anthropic"`
	AIBaseURL   string        `envconfig:"AI_BASE_URL"`
	AITimeout   time.Duration `envconfig:"AI_TIMEOUT" default:"30s"`
	AIMaxTokens int           `envconfig:"AI_MAX_TOKENS" default:"1000"`

	DataDir         string `envconfig:"DATA_DIR" default:"/tmp/gendolf-bot"`
	UsageBackend    string `envconfig:"USAGE_BACKEND" default:"json"`
	UsageRetainDays int    `envconfig:"USAGE_RETAIN_DAYS" default:"0"`
	FreeLimit       int    `envconfig:"FREE_LIMIT" default:"50"`
	AdminID         int64  `envconfig:"ADMIN_ID" default:"0"`
	UpgradeContact  string `envconfig:"UPGRADE_CONTACT" default:"daniel_NooLogic"`
	Workers         int    `envconfig:"WORKERS" default:"10"`

	LogLevel  string `envconfig:"LOG_LEVEL" default:"info"`
	LogFormat string `envconfig:"LOG_FORMAT"`
	LogFile   string `envconfig:"LOG_FILE"`
}

// loadConfig reads the environment, after filling it from a .env file when one exists.
func loadConfig(envFile string) (*Config, error) {
	if envFile != "" {
		if err := godotenv.Load(envFile); err != nil && !errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("load %s: %w", envFile, err)
		}
	}

	cfg := &Config{}
	if err := envconfig.Process("", cfg); err != nil {
		return nil, fmt.Errorf("process env: %w", err)
	}
	if cfg.FreeLimit < 0 {
		return nil, fmt.Errorf("FREE_LIMIT must not be negative: %d", cfg.FreeLimit)
	}
	if cfg.Workers <= 0 {
		cfg.Workers = 1
	}
	return cfg, nil
}

// validateForServe checks the credentials only the running bot needs.
func (cfg *Config) validateForServe() error {
	var errs []error
	if cfg.BotToken == "" {
		errs = append(errs, errors.New("GENDOLF_BOT_TOKEN environment variable not set"))
	}
	if cfg.AIAPIKey == "" {
		errs = append(errs, errors.New("AI_API_KEY environment variable not set"))
	}
	return errors.Join(errs...)
}

func (cfg *Config) providerConfig() ProviderConfig {
	return ProviderConfig{
		Name:    cfg.AIProvider,
		APIKey:  cfg.AIAPIKey,
		Model:   cfg.AIModel,
		BaseURL: cfg.AIBaseURL,
		Timeout: cfg.AITimeout,
	}
}
