package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Load builds the effective configuration. Layering order, lowest to highest
// priority:
//  1. coded defaults
//  2. YAML file at path (skipped when path is empty or the file is absent)
//  3. environment variables
func Load(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		if err := loadFile(path, cfg); err != nil && !os.IsNotExist(err) {
			return nil, fmt.Errorf("load config file %s: %w", path, err)
		}
	}

	applyEnv(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}
	return cfg, nil
}

func loadFile(path string, cfg *Config) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return fmt.Errorf("parse yaml: %w", err)
	}
	return nil
}

// applyEnv overrides config fields from the environment. Only the knobs an
// operator plausibly sets per-deployment are exposed.
func applyEnv(cfg *Config) {
	setString(&cfg.Server.Addr, "ENGINE_ADDR")
	setString(&cfg.API.BaseURL, "ENGINE_API_BASE_URL")
	setString(&cfg.Environment, "ENGINE_ENVIRONMENT")
	setString(&cfg.Features.TracingEndpoint, "ENGINE_TRACING_ENDPOINT")

	setDuration(&cfg.API.RequestTimeout, "ENGINE_API_REQUEST_TIMEOUT")
	setDuration(&cfg.Timeouts.Create, "ENGINE_TIMEOUT_CREATE")
	setDuration(&cfg.Timeouts.Rename, "ENGINE_TIMEOUT_RENAME")
	setDuration(&cfg.Timeouts.Move, "ENGINE_TIMEOUT_MOVE")
	setDuration(&cfg.Timeouts.Transfer, "ENGINE_TIMEOUT_TRANSFER")
	setDuration(&cfg.Timeouts.Outer, "ENGINE_TIMEOUT_OUTER")

	setBool(&cfg.Features.EnableMetrics, "ENGINE_ENABLE_METRICS")
	setBool(&cfg.Features.EnableTracing, "ENGINE_ENABLE_TRACING")
}

func setString(target *string, key string) {
	if v := os.Getenv(key); v != "" {
		*target = v
	}
}

func setDuration(target *time.Duration, key string) {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			*target = d
		}
	}
}

func setBool(target *bool, key string) {
	switch os.Getenv(key) {
	case "true":
		*target = true
	case "false":
		*target = false
	}
}
