package qdrant

import (
	"fmt"
	"time"

	"github.com/caarlos0/env/v10"
)

// DefaultCollection is the collection graph nodes are stored in when none is configured.
const DefaultCollection = "graph_nodes"

// Config holds connection and collection settings for the Qdrant client.
//
// Example (programmatic):
//
//	cfg := qdrant.DefaultConfig()
//	cfg.Endpoint = "localhost"
//	cfg.ApiKey = os.Getenv("QDRANT_API_KEY")
//	cfg.VectorSize = 384
//
// Example (builder style):
//
//	cfg := qdrant.FromEndpoint("localhost").
//	    WithApiKey(os.Getenv("QDRANT_API_KEY")).
//	    WithCollection("docs", 384)
type Config struct {
	// Hostname of the Qdrant server, e.g. "localhost".
	Endpoint string `yaml:"endpoint" env:"QDRANT_ENDPOINT"`

	// gRPC port of the Qdrant server. Defaults to 6334.
	Port int `yaml:"port" env:"QDRANT_PORT"`

	// Optional authentication token for secured deployments.
	ApiKey string `yaml:"api_key" env:"QDRANT_API_KEY"`

	// Collection the graph adapter reads and writes.
	Collection string `yaml:"collection" env:"QDRANT_COLLECTION"`

	// VectorSize is the embedding dimension. When set, the collection is
	// created on startup if it does not exist.
	VectorSize int `yaml:"vector_size" env:"QDRANT_VECTOR_SIZE"`

	// Timeout bounds the startup health check.
	Timeout time.Duration `yaml:"timeout" env:"QDRANT_TIMEOUT"`

	// Whether to perform version compatibility checks between client and server.
	CheckCompatibility bool `yaml:"check_compatibility" env:"QDRANT_CHECK_COMPATIBILITY"`

	// Logger receives connection and batch logs. Optional.
	Logger Logger `yaml:"-"`
}

// DefaultConfig provides sensible defaults for most use cases.
func DefaultConfig() *Config {
	return &Config{
		Endpoint:           "localhost",
		Port:               6334,
		Collection:         DefaultCollection,
		Timeout:            5 * time.Second,
		CheckCompatibility: true,
	}
}

// NewConfig returns DefaultConfig overridden by QDRANT_* environment variables.
func NewConfig() (*Config, error) {
	cfg := DefaultConfig()
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("qdrant: parse env: %w", err)
	}
	return cfg, nil
}

// FromEndpoint returns a default config pre-filled with a specific endpoint.
func FromEndpoint(host string) *Config {
	cfg := DefaultConfig()
	cfg.Endpoint = host
	return cfg
}

func (c *Config) WithApiKey(key string) *Config {
	c.ApiKey = key
	return c
}

func (c *Config) WithTimeout(d time.Duration) *Config {
	c.Timeout = d
	return c
}

// WithCollection sets the collection name and its vector dimension.
func (c *Config) WithCollection(name string, vectorSize int) *Config {
	c.Collection = name
	c.VectorSize = vectorSize
	return c
}

func (c *Config) WithCompatibilityCheck(enabled bool) *Config {
	c.CheckCompatibility = enabled
	return c
}
