// Package config loads process configuration for the badge service.
// Environment variables are the source of truth; an optional YAML file
// (BADGE_CONFIG_FILE) can pre-populate values that env vars then override.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// LoggingConfig configures the process logger.
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// GenerationConfig configures the external text/image generation services.
type GenerationConfig struct {
	TextURL   string `yaml:"text_url"`
	TextKey   string `yaml:"text_key"`
	TextModel string `yaml:"text_model"`
	ImageURL  string `yaml:"image_url"`
	ImageKey  string `yaml:"image_key"`
	// ProfileURL is the social profile lookup endpoint (fid -> user).
	ProfileURL string `yaml:"profile_url"`
	ProfileKey string `yaml:"profile_key"`
}

// Config holds all runtime settings.
type Config struct {
	Port       string   `yaml:"port"`
	AuthTokens []string `yaml:"auth_tokens"`

	// PinataGateway is the IPFS gateway base URL, e.g. https://gateway.pinata.cloud.
	PinataGateway string `yaml:"pinata_gateway"`
	// PinataJWT authenticates pin uploads. Empty disables uploads.
	PinataJWT string `yaml:"pinata_jwt"`
	// FetchTimeout bounds each individual gateway fetch.
	FetchTimeout time.Duration `yaml:"fetch_timeout"`

	// PostgresDSN selects the postgres store when set; otherwise in-memory.
	PostgresDSN string `yaml:"postgres_dsn"`
	// RedisAddr selects the redis image cache when set; otherwise in-memory.
	RedisAddr     string `yaml:"redis_addr"`
	RedisPassword string `yaml:"redis_password"`

	RateLimitPerSecond int `yaml:"rate_limit_per_second"`
	RateLimitBurst     int `yaml:"rate_limit_burst"`

	Generation GenerationConfig `yaml:"generation"`
	Logging    LoggingConfig    `yaml:"logging"`
}

// Load builds a Config from the optional YAML file and the environment.
func Load() (*Config, error) {
	cfg := &Config{
		Port:               "8080",
		FetchTimeout:       15 * time.Second,
		RateLimitPerSecond: 10,
		RateLimitBurst:     20,
		Logging:            LoggingConfig{Level: "info", Format: "json"},
	}

	if path := os.Getenv("BADGE_CONFIG_FILE"); path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read config file: %w", err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config file: %w", err)
		}
	}

	applyString(&cfg.Port, "PORT")
	if raw := os.Getenv("AUTH_TOKEN"); raw != "" {
		cfg.AuthTokens = splitTokens(raw)
	}
	applyString(&cfg.PinataGateway, "PINATA_GATEWAY")
	applyString(&cfg.PinataJWT, "PINATA_JWT")
	applyString(&cfg.PostgresDSN, "DATABASE_URL")
	applyString(&cfg.RedisAddr, "REDIS_ADDR")
	applyString(&cfg.RedisPassword, "REDIS_PASSWORD")
	applyString(&cfg.Generation.TextURL, "TEXTGEN_URL")
	applyString(&cfg.Generation.TextKey, "TEXTGEN_API_KEY")
	applyString(&cfg.Generation.TextModel, "TEXTGEN_MODEL")
	applyString(&cfg.Generation.ImageURL, "IMAGEGEN_URL")
	applyString(&cfg.Generation.ImageKey, "IMAGEGEN_API_KEY")
	applyString(&cfg.Generation.ProfileURL, "PROFILE_URL")
	applyString(&cfg.Generation.ProfileKey, "PROFILE_API_KEY")
	applyString(&cfg.Logging.Level, "LOG_LEVEL")
	applyString(&cfg.Logging.Format, "LOG_FORMAT")

	if raw := os.Getenv("FETCH_TIMEOUT"); raw != "" {
		d, err := time.ParseDuration(raw)
		if err != nil {
			return nil, fmt.Errorf("parse FETCH_TIMEOUT: %w", err)
		}
		cfg.FetchTimeout = d
	}
	if raw := os.Getenv("RATE_LIMIT_PER_SECOND"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil {
			return nil, fmt.Errorf("parse RATE_LIMIT_PER_SECOND: %w", err)
		}
		cfg.RateLimitPerSecond = n
	}

	if cfg.PinataGateway == "" {
		return nil, fmt.Errorf("PINATA_GATEWAY is required")
	}
	if len(cfg.AuthTokens) == 0 {
		return nil, fmt.Errorf("AUTH_TOKEN is required")
	}

	cfg.PinataGateway = strings.TrimRight(cfg.PinataGateway, "/")
	return cfg, nil
}

func applyString(dst *string, key string) {
	if v := os.Getenv(key); v != "" {
		*dst = v
	}
}

func splitTokens(raw string) []string {
	parts := strings.Split(raw, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
