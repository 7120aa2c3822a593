package logger

import (
	"fmt"

	"github.com/caarlos0/env/v10"
)

const (
	Debug   = "debug"
	Info    = "info"
	Warning = "warning"
	Error   = "error"
)

// Config controls the log level, trace correlation and the service field
// stamped on every entry.
type Config struct {
	// 1. production -> INFO
	// 2. development -> DEBUG
	// else -> INFO
	Level string `yaml:"level" env:"ZAP_LOGGER_LEVEL"`

	// EnableTracing adds trace_id and span_id to entries logged through the
	// *WithContext methods.
	EnableTracing bool `yaml:"enable_tracing" env:"LOGGER_ENABLE_TRACING"`

	// ServiceName is added as the "service" field.
	ServiceName string `yaml:"service_name" env:"LOGGER_SERVICE_NAME"`
}

// NewConfig reads the logger configuration from the environment.
func NewConfig() (Config, error) {
	cfg := Config{Level: Info, ServiceName: "endpoint-embeddings"}
	if err := env.Parse(&cfg); err != nil {
		return Config{}, fmt.Errorf("logger: parse env: %w", err)
	}
	return cfg, nil
}
