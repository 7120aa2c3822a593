package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"slices"
	"time"

	"go.uber.org/fx"
	"go.uber.org/fx/fxevent"

	"github.com/Aleph-Alpha/endpoint-embeddings/v1/embedding"
	"github.com/Aleph-Alpha/endpoint-embeddings/v1/graphstore"
	"github.com/Aleph-Alpha/endpoint-embeddings/v1/logger"
	"github.com/Aleph-Alpha/endpoint-embeddings/v1/metrics"
	"github.com/Aleph-Alpha/endpoint-embeddings/v1/observability"
	"github.com/Aleph-Alpha/endpoint-embeddings/v1/qdrant"
	"github.com/Aleph-Alpha/endpoint-embeddings/v1/tracer"
)

const stopTimeout = 10 * time.Second

// indexResult is printed by the index subcommand.
type indexResult struct {
	Collection string   `json:"collection"`
	IDs        []string `json:"ids"`
}

// deps is everything a subcommand may need from the container.
type deps struct {
	client   *embedding.Client
	log      logger.Logger
	tracer   *tracer.Tracer
	observer observability.Observer
	qc       *qdrant.QdrantClient
	graph    *qdrant.GraphAdapter
}

// optionalDeps picks up what only some configurations provide.
type optionalDeps struct {
	fx.In

	Observer observability.Observer `optional:"true"`
}

func usesGraph(cmd string) bool {
	return cmd == "index" || cmd == "search"
}

// newApp wires the logger, tracer, embedding and, when requested, metrics
// and qdrant modules.
func newApp(cmd string, opts options, cfg *embedding.Config, d *deps) *fx.App {
	modules := []fx.Option{
		fx.WithLogger(func(l *logger.LoggerClient) fxevent.Logger {
			return &fxevent.ZapLogger{Logger: l.Zap}
		}),
		fx.Provide(
			logger.NewConfig,
			tracer.NewConfig,
			func() *embedding.Config { return cfg },
			func(l logger.Logger) tracer.Logger { return l },
			func(l logger.Logger) embedding.Logger { return l },
		),
		logger.FXModule,
		tracer.FXModule,
		embedding.FXModule,
		fx.Populate(&d.client, &d.log, &d.tracer),
		fx.Invoke(func(o optionalDeps) { d.observer = o.Observer }),
	}

	if opts.metricsAddr != "" {
		modules = append(modules,
			fx.Provide(func() (metrics.Config, error) {
				mc, err := metrics.NewConfig()
				mc.Address = opts.metricsAddr
				return mc, err
			}),
			metrics.FXModule,
		)
	}

	if usesGraph(cmd) {
		modules = append(modules,
			fx.Provide(
				func() (*qdrant.Config, error) {
					qc, err := qdrant.NewConfig()
					if err != nil {
						return nil, err
					}
					if qc.VectorSize == 0 {
						qc.VectorSize = cfg.Dimensions
					}
					return qc, nil
				},
				func(l logger.Logger) qdrant.Logger { return l },
			),
			qdrant.FXModule,
			fx.Populate(&d.qc, &d.graph),
		)
	}

	return fx.New(modules...)
}

func execute(ctx context.Context, cmd string, opts options, texts []string) (result any, err error) {
	cfg, err := embedding.LoadConfig(opts.configPath)
	if err != nil {
		return nil, err
	}

	var d deps
	app := newApp(cmd, opts, cfg, &d)
	if err := app.Err(); err != nil {
		return nil, err
	}
	if err := app.Start(ctx); err != nil {
		return nil, fmt.Errorf("start: %w", err)
	}
	defer func() {
		stopCtx, cancel := context.WithTimeout(context.Background(), stopTimeout)
		defer cancel()
		if stopErr := app.Stop(stopCtx); stopErr != nil {
			err = errors.Join(err, fmt.Errorf("stop: %w", stopErr))
		}
	}()

	ctx = d.tracer.SetCarrierOnContext(ctx, traceCarrier(os.Getenv))

	switch cmd {
	case "query":
		return d.client.EmbedQuery(ctx, texts[0])
	case "documents":
		return d.client.EmbedDocuments(ctx, texts)
	case "index":
		return index(ctx, d, texts)
	case "search":
		return search(ctx, d, opts, texts[0])
	}
	return nil, fmt.Errorf("unknown command %q", cmd)
}

func newStore(d deps, backend graphstore.Backend) *graphstore.Store {
	return graphstore.NewStore(d.client, backend).
		WithLogger(d.log).
		WithTracer(d.tracer).
		WithObserver(d.observer)
}

// traceCarrier reads a W3C trace context handed over by a parent process.
func traceCarrier(getenv func(string) string) map[string]string {
	carrier := map[string]string{}
	if v := getenv("TRACEPARENT"); v != "" {
		carrier["traceparent"] = v
		if st := getenv("TRACESTATE"); st != "" {
			carrier["tracestate"] = st
		}
	}
	return carrier
}

func index(ctx context.Context, d deps, texts []string) (*indexResult, error) {
	collection := d.graph.Collection()
	if d.qc.Config().VectorSize == 0 {
		names, err := d.qc.ListCollections(ctx)
		if err != nil {
			return nil, err
		}
		if !slices.Contains(names, collection) {
			return nil, fmt.Errorf("collection %q does not exist: set QDRANT_VECTOR_SIZE or EMBEDDING_DIMENSIONS to create it", collection)
		}
	}

	ids, err := newStore(d, d.graph).AddTexts(ctx, texts, nil, nil)
	if err != nil {
		return nil, err
	}
	d.log.Info("Indexed texts", nil, map[string]interface{}{
		"collection": collection,
		"count":      len(ids),
	})
	return &indexResult{Collection: collection, IDs: ids}, nil
}

func search(ctx context.Context, d deps, opts options, query string) ([]graphstore.Node, error) {
	searchOpts := []graphstore.SearchOption{graphstore.WithK(opts.k)}
	if opts.depth >= 0 {
		searchOpts = append(searchOpts, graphstore.WithDepth(opts.depth))
	}

	retriever, err := newStore(d, d.graph).AsRetriever(graphstore.SearchType(opts.searchType), searchOpts...)
	if err != nil {
		return nil, err
	}
	nodes, err := retriever.Retrieve(ctx, query)
	if err != nil {
		return nil, err
	}
	if nodes == nil {
		nodes = []graphstore.Node{}
	}
	return nodes, nil
}
