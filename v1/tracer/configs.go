package tracer

import (
	"fmt"

	"github.com/caarlos0/env/v10"
)

// Config controls the tracer provider.
type Config struct {
	// ServiceName is recorded as the service.name resource attribute.
	ServiceName string `yaml:"service_name" env:"TRACER_SERVICE_NAME"`

	// AppEnv is recorded as deployment.environment.
	AppEnv string `yaml:"app_env" env:"APP_ENV"`

	// EnableExport turns on the OTLP/HTTP exporter. Without it spans are
	// created and propagated but never leave the process.
	EnableExport bool `yaml:"enable_export" env:"TRACER_ENABLE_EXPORT"`

	// ExportEndpoint overrides the collector URL, e.g. "http://otel-collector:4318".
	// When empty the exporter honours OTEL_EXPORTER_OTLP_ENDPOINT.
	ExportEndpoint string `yaml:"export_endpoint" env:"TRACER_EXPORT_ENDPOINT"`
}

// NewConfig reads the tracer configuration from the environment.
func NewConfig() (Config, error) {
	cfg := Config{ServiceName: "endpoint-embeddings", AppEnv: "development"}
	if err := env.Parse(&cfg); err != nil {
		return Config{}, fmt.Errorf("tracer: parse env: %w", err)
	}
	return cfg, nil
}
