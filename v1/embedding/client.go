package embedding

import (
	"context"
	"fmt"
	"net/url"
	"time"

	"github.com/Aleph-Alpha/endpoint-embeddings/v1/observability"
	"github.com/Aleph-Alpha/endpoint-embeddings/v1/tracer"
)

// Logger is an interface that matches the logger.Logger methods used here.
// The *WithContext variants are used inside a request span so trace and span
// IDs end up on the entry.
type Logger interface {
	Debug(msg string, err error, fields ...map[string]interface{})
	Info(msg string, err error, fields ...map[string]interface{})
	Warn(msg string, err error, fields ...map[string]interface{})
	Error(msg string, err error, fields ...map[string]interface{})

	DebugWithContext(ctx context.Context, msg string, err error, fields ...map[string]interface{})
	ErrorWithContext(ctx context.Context, msg string, err error, fields ...map[string]interface{})
}

// Client is the public entrypoint for computing embeddings against one
// hosted endpoint.
//
// It hides all provider details (wire format, HTTP, authentication) from the
// application layer. A Client is safe for concurrent use.
type Client struct {
	provider       Provider
	endpoint       string
	kind           ProviderKind
	format         Format
	queryPrefix    string
	documentPrefix string

	logger   Logger
	observer observability.Observer
	tracer   *tracer.Tracer
}

// NewClient constructs a Client from Config.
// It validates the config, resolves the credentials and builds the provider.
// No request is made until the first Embed call.
func NewClient(cfg *Config) (*Client, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	token, err := resolveToken(cfg)
	if err != nil {
		return nil, err
	}

	var p Provider
	switch cfg.Provider {
	case ProviderOpenAI:
		p = newOpenAIProvider(cfg, token)
	default:
		p = newInferenceProvider(cfg, token)
	}

	c := &Client{
		provider:       p,
		endpoint:       cfg.Endpoint,
		kind:           cfg.Provider,
		format:         cfg.Format,
		queryPrefix:    cfg.QueryPrefix,
		documentPrefix: cfg.DocumentPrefix,
		logger:         cfg.Logger,
		tracer:         cfg.Tracer,
	}

	if token == "" {
		c.log().Warn("No API token configured, calling endpoint unauthenticated", nil, map[string]interface{}{
			"endpoint": redactURL(cfg.Endpoint),
		})
	}
	c.log().Debug("Embedding client created", nil, map[string]interface{}{
		"endpoint": redactURL(cfg.Endpoint),
		"provider": string(cfg.Provider),
		"format":   string(cfg.Format),
	})

	return c, nil
}

// NewClientWithProvider wraps an existing Provider, e.g. a mock or a custom
// transport. endpoint is only used for logs, metrics and spans.
func NewClientWithProvider(endpoint string, p Provider) *Client {
	return &Client{provider: p, endpoint: endpoint}
}

// WithLogger sets the logger for this client and returns the client for method chaining.
func (c *Client) WithLogger(logger Logger) *Client {
	c.logger = logger
	return c
}

// WithObserver sets the observer for this client and returns the client for method chaining.
// The observer receives one event per embed_query or embed_documents call.
//
// Example:
//
//	client = client.WithObserver(metricsCollector).WithLogger(log)
func (c *Client) WithObserver(observer observability.Observer) *Client {
	c.observer = observer
	return c
}

// WithTracer sets the tracer that opens the request spans and returns the
// client for method chaining. Without one the global provider is used.
func (c *Client) WithTracer(t *tracer.Tracer) *Client {
	c.tracer = t
	if setter, ok := c.provider.(interface{ setTracer(*tracer.Tracer) }); ok {
		setter.setTracer(t)
	}
	return c
}

// Endpoint returns the URL the client was configured with.
func (c *Client) Endpoint() string {
	return c.endpoint
}

// EmbedQuery embeds a single text and returns its vector.
// The text is sent as a one-element batch in one HTTP request.
func (c *Client) EmbedQuery(ctx context.Context, text string) ([]float64, error) {
	vectors, err := c.embed(ctx, operationEmbedQuery, "embedding.EmbedQuery", []string{c.queryPrefix + text})
	if err != nil {
		return nil, err
	}
	return vectors[0], nil
}

// EmbedDocuments embeds texts in one HTTP request and returns one vector per
// text, in input order. An empty input returns an empty result without
// contacting the endpoint.
func (c *Client) EmbedDocuments(ctx context.Context, texts []string) ([][]float64, error) {
	if len(texts) == 0 {
		return [][]float64{}, nil
	}

	inputs := texts
	if c.documentPrefix != "" {
		inputs = make([]string, len(texts))
		for i, t := range texts {
			inputs[i] = c.documentPrefix + t
		}
	}

	return c.embed(ctx, operationEmbedDocuments, "embedding.EmbedDocuments", inputs)
}

func (c *Client) embed(ctx context.Context, operation, spanName string, texts []string) ([][]float64, error) {
	start := time.Now()

	ctx, span := c.tracer.StartClientSpan(ctx, spanName, map[string]interface{}{
		"embedding.endpoint": redactURL(c.endpoint),
		"embedding.inputs":   len(texts),
	})
	defer span.End()

	vectors, err := c.provider.Embed(ctx, texts)
	if err == nil && len(vectors) != len(texts) {
		err = fmt.Errorf("%w: sent %d texts, received %d vectors", ErrCountMismatch, len(texts), len(vectors))
		vectors = nil
	}

	duration := time.Since(start)
	c.observeOperation(operation, len(texts), duration, err)

	if err != nil {
		c.tracer.RecordErrorOnSpan(span, err)
		c.log().ErrorWithContext(ctx, "Embedding request failed", err, map[string]interface{}{
			"operation": operation,
			"endpoint":  redactURL(c.endpoint),
			"inputs":    len(texts),
		})
		return nil, err
	}

	c.tracer.SetAttributes(span, map[string]interface{}{
		"embedding.dimensions": len(vectors[0]),
	})
	c.log().DebugWithContext(ctx, "Embedding request completed", nil, map[string]interface{}{
		"operation":   operation,
		"inputs":      len(texts),
		"dimensions":  len(vectors[0]),
		"duration_ms": duration.Milliseconds(),
	})

	return vectors, nil
}

// Close releases idle HTTP connections held by the provider.
func (c *Client) Close() error {
	if closer, ok := c.provider.(interface{ Close() error }); ok {
		return closer.Close()
	}
	return nil
}

func (c *Client) observeOperation(operation string, items int, duration time.Duration, err error) {
	if c == nil || c.observer == nil {
		return
	}

	c.observer.ObserveOperation(observability.OperationContext{
		Component:   "embedding",
		Operation:   operation,
		Resource:    redactURL(c.endpoint),
		SubResource: string(c.format),
		Duration:    duration,
		Error:       err,
		Size:        int64(items),
		Metadata: map[string]interface{}{
			"provider": string(c.kind),
		},
	})
}

func (c *Client) log() Logger {
	if c.logger == nil {
		return nopLogger{}
	}
	return c.logger
}

// redactURL strips credentials and query strings, which hosted endpoints
// sometimes use for keys.
func redactURL(raw string) string {
	u, err := url.Parse(raw)
	if err != nil {
		return raw
	}
	u.User = nil
	u.RawQuery = ""
	return u.String()
}

type nopLogger struct{}

func (nopLogger) Debug(string, error, ...map[string]interface{}) {}
func (nopLogger) Info(string, error, ...map[string]interface{})  {}
func (nopLogger) Warn(string, error, ...map[string]interface{})  {}
func (nopLogger) Error(string, error, ...map[string]interface{}) {}

func (nopLogger) DebugWithContext(context.Context, string, error, ...map[string]interface{}) {}
func (nopLogger) ErrorWithContext(context.Context, string, error, ...map[string]interface{}) {}
