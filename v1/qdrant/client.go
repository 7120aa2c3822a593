package qdrant

import (
	"context"
	"fmt"
	"time"

	qdrant "github.com/qdrant/go-client/qdrant"
)

// Logger is the logging surface this package needs. *logger.LoggerClient
// satisfies it.
//
//go:generate mockgen -source=client.go -destination=mock_logger.go -package=qdrant
type Logger interface {
	Debug(msg string, err error, fields ...map[string]interface{})
	Info(msg string, err error, fields ...map[string]interface{})
	Warn(msg string, err error, fields ...map[string]interface{})
	Error(msg string, err error, fields ...map[string]interface{})
}

// QdrantClient wraps the official Qdrant Go client and owns the connection
// used by GraphAdapter.
type QdrantClient struct {
	api     *qdrant.Client
	cfg     *Config
	logger  Logger
	started bool
}

const (
	defaultPort          = 6334
	defaultBatchSize     = 200 // points per upsert request
	defaultHealthTimeout = 3 * time.Second
)

// NewQdrantClient constructs a QdrantClient and validates connectivity via a
// health check, so an unreachable server fails at startup.
//
// Example:
//
//	client, err := qdrant.NewQdrantClient(qdrant.QdrantParams{Config: cfg})
func NewQdrantClient(p QdrantParams) (*QdrantClient, error) {
	if p.Config == nil {
		return nil, fmt.Errorf("[Qdrant] config is required")
	}

	log := p.Logger
	if log == nil {
		log = p.Config.Logger
	}
	if log == nil {
		log = nopLogger{}
	}

	port := p.Config.Port
	if port == 0 {
		port = defaultPort
	}

	log.Info("Connecting to Qdrant", nil, map[string]interface{}{
		"endpoint": p.Config.Endpoint,
		"port":     port,
	})

	client, err := qdrant.NewClient(&qdrant.Config{
		Host:                   p.Config.Endpoint,
		Port:                   port,
		APIKey:                 p.Config.ApiKey,
		SkipCompatibilityCheck: !p.Config.CheckCompatibility,
	})
	if err != nil {
		return nil, fmt.Errorf("[Qdrant] failed to initialize client: %w", err)
	}

	qc := &QdrantClient{
		api:     client,
		cfg:     p.Config,
		logger:  log,
		started: true,
	}

	if err := qc.healthCheck(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("[Qdrant] health check failed: %w", err)
	}

	log.Info("Qdrant client connected", nil, nil)
	return qc, nil
}

// healthCheck calls the server health endpoint through the SDK.
func (c *QdrantClient) healthCheck() error {
	if !c.started {
		return fmt.Errorf("[Qdrant] client not started")
	}
	if c.api == nil {
		return fmt.Errorf("[Qdrant] client not initialized")
	}

	timeout := c.cfg.Timeout
	if timeout <= 0 {
		timeout = defaultHealthTimeout
	}
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	resp, err := c.api.HealthCheck(ctx)
	if err != nil {
		return fmt.Errorf("[Qdrant] health check failed: %w", err)
	}

	c.logger.Debug("Qdrant health check passed", nil, map[string]interface{}{
		"title":    resp.GetTitle(),
		"version":  resp.GetVersion(),
		"endpoint": c.cfg.Endpoint,
	})
	return nil
}

// Client returns the underlying Qdrant SDK client.
func (c *QdrantClient) Client() *qdrant.Client {
	return c.api
}

// Config returns the configuration the client was built with.
func (c *QdrantClient) Config() *Config {
	return c.cfg
}

// Close releases the gRPC connection. It is safe to call more than once.
func (c *QdrantClient) Close() error {
	if !c.started {
		return nil
	}
	c.started = false

	c.logger.Info("Closing Qdrant client", nil, nil)
	if err := c.api.Close(); err != nil {
		return fmt.Errorf("[Qdrant] close failed: %w", err)
	}
	return nil
}

type nopLogger struct{}

func (nopLogger) Debug(string, error, ...map[string]interface{}) {}
func (nopLogger) Info(string, error, ...map[string]interface{})  {}
func (nopLogger) Warn(string, error, ...map[string]interface{})  {}
func (nopLogger) Error(string, error, ...map[string]interface{}) {}
