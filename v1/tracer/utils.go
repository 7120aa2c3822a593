package tracer

import (
	"context"
	"fmt"
	"net/http"
	"sort"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/propagation"
	traceSpan "go.opentelemetry.io/otel/trace"
)

const instrumentationName = "github.com/Aleph-Alpha/endpoint-embeddings"

// propagator is the W3C trace context plus baggage, the same pair NewClient
// installs globally.
var propagator = propagation.NewCompositeTextMapPropagator(propagation.TraceContext{}, propagation.Baggage{})

// provider returns the SDK provider, or the global one for a nil Tracer.
func (t *Tracer) provider() traceSpan.TracerProvider {
	if t == nil || t.tracer == nil {
		return otel.GetTracerProvider()
	}
	return t.tracer
}

// StartSpan opens a span named name. It becomes a child of any span already in
// ctx, otherwise a new root span is created.
//
// The methods in this file are safe on a nil *Tracer, which routes spans to
// the provider installed with otel.SetTracerProvider.
func (t *Tracer) StartSpan(ctx context.Context, name string, opts ...traceSpan.SpanStartOption) (context.Context, traceSpan.Span) {
	return t.provider().Tracer(instrumentationName).Start(ctx, name, opts...)
}

// StartClientSpan opens a client-kind span for an outbound call, such as a
// POST to an embedding endpoint or a query against the vector store.
//
// Example:
//
//	ctx, span := tr.StartClientSpan(ctx, "embedding.EmbedDocuments", map[string]interface{}{
//	    "embedding.inputs": len(texts),
//	})
//	defer span.End()
func (t *Tracer) StartClientSpan(ctx context.Context, name string, attrs map[string]interface{}) (context.Context, traceSpan.Span) {
	return t.StartSpan(ctx, name,
		traceSpan.WithSpanKind(traceSpan.SpanKindClient),
		traceSpan.WithAttributes(toAttributes(attrs)...),
	)
}

// RecordErrorOnSpan records err on span and marks the span failed.
// A nil err is ignored.
func (t *Tracer) RecordErrorOnSpan(span traceSpan.Span, err error) {
	if err == nil {
		return
	}
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
}

// SetAttributes adds attrs to span.
//
// string, bool, int, int64, float32, float64 and []string keep their type;
// anything else is stored with fmt.Sprint.
func (t *Tracer) SetAttributes(span traceSpan.Span, attrs map[string]interface{}) {
	if len(attrs) == 0 {
		return
	}
	span.SetAttributes(toAttributes(attrs)...)
}

func toAttributes(attrs map[string]interface{}) []attribute.KeyValue {
	keys := make([]string, 0, len(attrs))
	for k := range attrs {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	out := make([]attribute.KeyValue, 0, len(attrs))
	for _, k := range keys {
		switch val := attrs[k].(type) {
		case string:
			out = append(out, attribute.String(k, val))
		case bool:
			out = append(out, attribute.Bool(k, val))
		case int:
			out = append(out, attribute.Int(k, val))
		case int64:
			out = append(out, attribute.Int64(k, val))
		case float32:
			out = append(out, attribute.Float64(k, float64(val)))
		case float64:
			out = append(out, attribute.Float64(k, val))
		case []string:
			out = append(out, attribute.StringSlice(k, val))
		default:
			out = append(out, attribute.String(k, fmt.Sprint(val)))
		}
	}
	return out
}

// GetCarrier returns the trace context of ctx as W3C headers
// ("traceparent", and "tracestate"/"baggage" when present).
func (t *Tracer) GetCarrier(ctx context.Context) map[string]string {
	carrier := propagation.MapCarrier{}
	propagator.Inject(ctx, carrier)
	return carrier
}

// InjectHeaders writes the trace context of ctx into h so the endpoint can
// join the caller's trace.
func (t *Tracer) InjectHeaders(ctx context.Context, h http.Header) {
	for k, v := range t.GetCarrier(ctx) {
		h.Set(k, v)
	}
}

// SetCarrierOnContext returns a context whose parent is the remote span in
// carrier. The CLI uses it to continue a trace handed over through
// TRACEPARENT/TRACESTATE.
func (t *Tracer) SetCarrierOnContext(ctx context.Context, carrier map[string]string) context.Context {
	if len(carrier) == 0 {
		return ctx
	}
	return propagator.Extract(ctx, propagation.MapCarrier(carrier))
}
