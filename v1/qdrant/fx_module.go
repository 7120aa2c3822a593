package qdrant

import (
	"context"
	"sync"

	"go.uber.org/fx"

	"github.com/Aleph-Alpha/endpoint-embeddings/v1/graphstore"
	"github.com/Aleph-Alpha/endpoint-embeddings/v1/observability"
)

// FXModule integrates the Qdrant client and graph adapter into Fx.
//
// It provides:
//   - *QdrantClient       (NewQdrantClient)
//   - *GraphAdapter       (NewGraphAdapterWithDI)
//   - graphstore.Backend  (the same adapter)
//
// and registers RegisterQdrantLifecycle, which creates the configured
// collection on start when Config.VectorSize is set and closes the
// connection on stop.
//
// A *qdrant.Config must be available in the container.
//
// Usage:
//
//	app := fx.New(
//	    fx.Provide(qdrant.NewConfig),
//	    qdrant.FXModule,
//	)
var FXModule = fx.Module("qdrant",
	fx.Provide(
		NewQdrantClient,
		NewGraphAdapterWithDI,
		func(a *GraphAdapter) graphstore.Backend { return a },
	),
	fx.Invoke(RegisterQdrantLifecycle),
)

// QdrantParams defines dependencies needed to construct the Qdrant client.
type QdrantParams struct {
	fx.In

	Config *Config
	Logger Logger `optional:"true"`
}

// GraphAdapterParams defines dependencies of the graph adapter.
type GraphAdapterParams struct {
	fx.In

	Client   *QdrantClient
	Observer observability.Observer `optional:"true"`
}

// NewGraphAdapterWithDI builds a GraphAdapter over the configured collection.
func NewGraphAdapterWithDI(p GraphAdapterParams) *GraphAdapter {
	adapter := NewGraphAdapter(p.Client, "")
	if p.Observer != nil {
		adapter = adapter.WithObserver(p.Observer)
	}
	return adapter
}

// RegisterQdrantLifecycle handles startup and shutdown of the Qdrant client.
func RegisterQdrantLifecycle(lc fx.Lifecycle, client *QdrantClient) {
	var once sync.Once

	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			cfg := client.Config()
			if cfg == nil || cfg.VectorSize <= 0 {
				return nil
			}
			return client.EnsureCollection(ctx, cfg.Collection, cfg.VectorSize)
		},
		OnStop: func(ctx context.Context) error {
			var err error
			once.Do(func() {
				err = client.Close()
			})
			return err
		},
	})
}
