// Package config provides layered configuration for the engine: coded
// defaults, an optional YAML file, then environment variable overrides.
// Timeout tunables can be hot-reloaded through the watcher.
package config

import (
	"fmt"
	"time"
)

// Config is the root configuration for the engine process.
type Config struct {
	// Server is the inbound intent API listener.
	Server ServerConfig `yaml:"server"`
	// API is the outbound persistence service client.
	API APIConfig `yaml:"api"`
	// Timeouts bound the lifetime of structural mutations.
	Timeouts OperationTimeouts `yaml:"timeouts"`
	// Features toggles optional subsystems.
	Features Features `yaml:"features"`
	// Environment is the deployment environment name (development, production).
	Environment string `yaml:"environment"`
}

// ServerConfig configures the HTTP listener that receives UI intents.
type ServerConfig struct {
	Addr            string        `yaml:"addr"`
	ShutdownTimeout time.Duration `yaml:"shutdownTimeout"`
}

// APIConfig configures the persistence API client.
type APIConfig struct {
	BaseURL string `yaml:"baseUrl"`
	// RequestTimeout caps a single HTTP round trip; operation-level deadlines
	// in Timeouts are enforced on top of it.
	RequestTimeout time.Duration `yaml:"requestTimeout"`
}

// OperationTimeouts are the client-side safety timers per operation kind.
// They are purely local: a timed-out operation's server-side effects may
// still land, and only the next successful refresh reconciles them.
type OperationTimeouts struct {
	Create   time.Duration `yaml:"create"`
	Rename   time.Duration `yaml:"rename"`
	Move     time.Duration `yaml:"move"`
	Transfer time.Duration `yaml:"transfer"`
	// Outer is the safety net applied to every operation regardless of kind.
	Outer time.Duration `yaml:"outer"`
}

// Features contains feature flags for the engine.
type Features struct {
	EnableMetrics bool `yaml:"enableMetrics"`
	EnableTracing bool `yaml:"enableTracing"`
	// TracingEndpoint is the OTLP gRPC collector address.
	TracingEndpoint string `yaml:"tracingEndpoint"`
}

// Default returns the coded defaults, the lowest layer of the hierarchy.
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			Addr:            ":8087",
			ShutdownTimeout: 10 * time.Second,
		},
		API: APIConfig{
			BaseURL:        "http://localhost:3000",
			RequestTimeout: 10 * time.Second,
		},
		Timeouts: OperationTimeouts{
			Create:   15 * time.Second,
			Rename:   15 * time.Second,
			Move:     20 * time.Second,
			Transfer: 20 * time.Second,
			Outer:    30 * time.Second,
		},
		Features: Features{
			EnableMetrics:   true,
			EnableTracing:   false,
			TracingEndpoint: "localhost:4317",
		},
		Environment: "development",
	}
}

// ForKind returns the safety timer for one operation kind, falling back to
// the outer net for unknown kinds.
func (t OperationTimeouts) ForKind(kind string) time.Duration {
	switch kind {
	case "create":
		return t.Create
	case "rename":
		return t.Rename
	case "move":
		return t.Move
	case "transfer":
		return t.Transfer
	default:
		return t.Outer
	}
}

// Validate rejects configurations the engine cannot run with.
func (c *Config) Validate() error {
	if c.API.BaseURL == "" {
		return fmt.Errorf("api.baseUrl must be set")
	}
	if c.Server.Addr == "" {
		return fmt.Errorf("server.addr must be set")
	}
	for name, d := range map[string]time.Duration{
		"timeouts.create":   c.Timeouts.Create,
		"timeouts.rename":   c.Timeouts.Rename,
		"timeouts.move":     c.Timeouts.Move,
		"timeouts.transfer": c.Timeouts.Transfer,
		"timeouts.outer":    c.Timeouts.Outer,
	} {
		if d <= 0 {
			return fmt.Errorf("%s must be positive", name)
		}
	}
	if c.Timeouts.Outer < c.Timeouts.Create ||
		c.Timeouts.Outer < c.Timeouts.Move ||
		c.Timeouts.Outer < c.Timeouts.Rename ||
		c.Timeouts.Outer < c.Timeouts.Transfer {
		return fmt.Errorf("timeouts.outer must be the largest timeout")
	}
	return nil
}
