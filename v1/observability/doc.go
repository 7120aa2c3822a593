// Package observability defines the hook that client packages use to report
// the operations they perform.
//
// Client packages (embedding, qdrant, graphstore) never depend on a concrete
// metrics or tracing backend. Instead they accept an optional Observer and
// call it once per completed operation with an OperationContext describing
// what happened. The metrics package ships a Prometheus-backed Observer.
//
// Usage:
//
//	client, _ := embedding.NewClient(cfg)
//	client = client.WithObserver(metricsInstance)
//
// With fx, provide an Observer and the client modules pick it up:
//
//	app := fx.New(
//	    metrics.FXModule,
//	    fx.Provide(func(m *metrics.Metrics) observability.Observer { return m }),
//	    embedding.FXModule,
//	)
//
// Observers are called synchronously on the caller's goroutine and must be
// safe for concurrent use.
package observability
