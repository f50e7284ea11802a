// Package config loads gatekeeper runtime settings from an optional YAML file
// and the environment. Environment variables win over the file.
package config

import (
	"fmt"
	"log/slog"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

// Config holds runtime configuration.
type Config struct {
	// Catalog is a file path, s3://bucket/key or gs://bucket/key.
	Catalog string `yaml:"catalog"`
	// StateDB is the SQLite file caching checkpoint completion. Empty keeps
	// state in memory.
	StateDB string `yaml:"state_db"`
	// RemoteDSN is a Postgres DSN for shared checkpoint state. Optional.
	RemoteDSN    string `yaml:"remote_dsn"`
	LogLevel     string `yaml:"log_level"`
	Environment  string `yaml:"environment"`
	Telemetry    bool   `yaml:"telemetry"`
	OTLPEndpoint string `yaml:"otlp_endpoint"`
}

func defaults() *Config {
	return &Config{
		Catalog:      "catalog.yaml",
		LogLevel:     "INFO",
		Environment:  "development",
		OTLPEndpoint: "localhost:4317",
	}
}

// Load loads configuration from environment variables.
func Load() *Config {
	cfg := defaults()
	cfg.applyEnv()
	return cfg
}

// LoadFile reads a YAML settings file and then applies the environment.
func LoadFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("load config %q: %w", path, err)
	}
	cfg := defaults()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse config %q: %w", path, err)
	}
	cfg.applyEnv()
	return cfg, nil
}

func (c *Config) applyEnv() {
	setString(&c.Catalog, "GATEKEEPER_CATALOG")
	setString(&c.StateDB, "GATEKEEPER_STATE_DB")
	setString(&c.RemoteDSN, "GATEKEEPER_REMOTE_DSN")
	setString(&c.LogLevel, "LOG_LEVEL")
	setString(&c.Environment, "GATEKEEPER_ENV")
	setString(&c.OTLPEndpoint, "OTEL_EXPORTER_OTLP_ENDPOINT")
	if v := os.Getenv("GATEKEEPER_TELEMETRY"); v != "" {
		c.Telemetry = v == "true" || v == "1"
	}
}

func setString(dst *string, key string) {
	if v := os.Getenv(key); v != "" {
		*dst = v
	}
}

// SlogLevel maps LogLevel to a slog level. Unknown names mean INFO.
func (c *Config) SlogLevel() slog.Level {
	switch strings.ToUpper(strings.TrimSpace(c.LogLevel)) {
	case "DEBUG":
		return slog.LevelDebug
	case "WARN", "WARNING":
		return slog.LevelWarn
	case "ERROR":
		return slog.LevelError
	}
	return slog.LevelInfo
}
