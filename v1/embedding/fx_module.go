package embedding

import (
	"context"

	"go.uber.org/fx"

	"github.com/Aleph-Alpha/endpoint-embeddings/v1/observability"
	"github.com/Aleph-Alpha/endpoint-embeddings/v1/tracer"
)

// FXModule wires the embedding client into Fx.
//
// It provides:
//   - *Client                (NewClientWithDI)
//   - Lifecycle hook         (RegisterEmbeddingLifecycle)
//
// A *Config must be supplied by the application, typically NewConfig or a
// closure around LoadConfig.
//
// Usage:
//
//	app := fx.New(
//	    logger.FXModule,
//	    fx.Provide(embedding.NewConfig),
//	    embedding.FXModule,
//	)
var FXModule = fx.Module(
	"embedding",

	fx.Provide(
		NewClientWithDI,
	),

	fx.Invoke(RegisterEmbeddingLifecycle),
)

// EmbeddingParams groups the dependencies needed to create the client.
type EmbeddingParams struct {
	fx.In

	Config   *Config
	Logger   Logger                 `optional:"true"`
	Observer observability.Observer `optional:"true"`
	Tracer   *tracer.Tracer         `optional:"true"`
}

// NewClientWithDI creates the client using dependency injection.
// Logger, Observer and Tracer are attached when the container provides them.
func NewClientWithDI(params EmbeddingParams) (*Client, error) {
	if params.Logger != nil {
		params.Config.Logger = params.Logger
	}
	if params.Tracer != nil {
		params.Config.Tracer = params.Tracer
	}

	client, err := NewClient(params.Config)
	if err != nil {
		return nil, err
	}
	if params.Observer != nil {
		client = client.WithObserver(params.Observer)
	}
	return client, nil
}

// RegisterEmbeddingLifecycle ensures that the Client (and its provider)
// are properly cleaned up on application shutdown.
func RegisterEmbeddingLifecycle(lc fx.Lifecycle, client *Client) {
	lc.Append(fx.Hook{
		OnStop: func(ctx context.Context) error {
			client.log().Info("Closing embedding client", nil, nil)
			return client.Close()
		},
	})
}
