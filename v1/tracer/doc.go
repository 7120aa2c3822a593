// Package tracer sets up OpenTelemetry tracing for the embedding client and
// the tools built on it.
//
// NewClient builds an SDK TracerProvider, optionally attaches an OTLP/HTTP
// exporter and installs the provider and a W3C Trace Context propagator
// globally. The embedding package starts its spans from the global provider, so
// once a Tracer exists every EmbedQuery and EmbedDocuments call is traced and
// carries a traceparent header to the endpoint.
//
// Basic Usage:
//
//	t, err := tracer.NewClient(tracer.Config{ServiceName: "embed-cli", AppEnv: "dev"}, log)
//	if err != nil {
//		return err
//	}
//	defer t.Shutdown(context.Background())
//
//	ctx, span := t.StartSpan(ctx, "index-corpus")
//	defer span.End()
//	t.SetAttributes(span, map[string]interface{}{"documents": len(docs)})
//
// Propagation across process boundaries uses GetCarrier and SetCarrierOnContext.
//
// FX Integration:
//
//	app := fx.New(
//		logger.FXModule,
//		fx.Provide(tracer.NewConfig),
//		tracer.FXModule,
//	)
package tracer
