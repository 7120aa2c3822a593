// Package metrics provides Prometheus-based metrics for the embedding client
// and the packages built on it.
//
// # Architecture
//
// Clients accept the observability.Observer interface; this package returns
// the concrete type:
//   - Metrics struct: implements observability.Observer
//   - NewMetrics constructor: Returns *Metrics (concrete type)
//   - FX module: Provides *Metrics and observability.Observer for dependency injection
//
// Core Features:
//   - Exposes a configurable /metrics endpoint for Prometheus scraping
//   - Implements observability.Observer, so every embedding call, qdrant write
//     and graph search is counted and timed without the clients importing Prometheus
//   - Automatic registration of Go runtime and process-level metrics
//   - Support for custom metric registration (counters, gauges, histograms)
//   - A constant service label on every series
//
// # Direct Usage (Without FX)
//
//	m := metrics.NewMetrics(metrics.Config{
//		Address:                 ":9090",
//		EnableDefaultCollectors: true,
//		ServiceName:             "embed-cli",
//	})
//	go m.Server.ListenAndServe()
//
//	client, _ := embedding.NewClient(cfg)
//	client = client.WithObserver(m)
//
// # FX Module Integration
//
//	app := fx.New(
//		logger.FXModule,
//		metrics.FXModule,
//		fx.Provide(metrics.NewConfig),
//		embedding.FXModule, // picks up the Observer provided by metrics.FXModule
//	)
//
// # Exposed series
//
//	operations_total{component,operation,status,service}
//	operation_duration_seconds{component,operation,service}
//	operation_items_total{component,operation,service}
//
// # Configuration
//
//	METRICS_ADDRESS=:9090
//	METRICS_ENABLE_DEFAULT_COLLECTORS=true
//	METRICS_NAMESPACE=embeddings
//	METRICS_SERVICE_NAME=embed-cli
package metrics
