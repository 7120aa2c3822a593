package embedding

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/propagation"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
	"go.uber.org/mock/gomock"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"

	"github.com/Aleph-Alpha/endpoint-embeddings/v1/logger"
	"github.com/Aleph-Alpha/endpoint-embeddings/v1/observability"
	"github.com/Aleph-Alpha/endpoint-embeddings/v1/tracer"
)

// fakeEndpoint records every request and answers with handler.
type fakeEndpoint struct {
	*httptest.Server

	mu       sync.Mutex
	requests []recordedRequest
	calls    atomic.Int32
}

type recordedRequest struct {
	Method string
	Path   string
	Header http.Header
	Body   map[string]any
}

func newFakeEndpoint(t *testing.T, handler func(w http.ResponseWriter, body map[string]any)) *fakeEndpoint {
	t.Helper()
	f := &fakeEndpoint{}
	f.Server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		f.calls.Add(1)
		raw, _ := io.ReadAll(r.Body)
		var body map[string]any
		_ = json.Unmarshal(raw, &body)

		f.mu.Lock()
		f.requests = append(f.requests, recordedRequest{Method: r.Method, Path: r.URL.Path, Header: r.Header.Clone(), Body: body})
		f.mu.Unlock()

		handler(w, body)
	}))
	t.Cleanup(f.Close)
	return f
}

func (f *fakeEndpoint) last(t *testing.T) recordedRequest {
	t.Helper()
	f.mu.Lock()
	defer f.mu.Unlock()
	require.NotEmpty(t, f.requests)
	return f.requests[len(f.requests)-1]
}

// echoLength answers in OpenAI format with vector [len(text), position].
func echoLength(w http.ResponseWriter, body map[string]any) {
	inputs, _ := body["input"].([]any)
	data := make([]map[string]any, len(inputs))
	for i, in := range inputs {
		s, _ := in.(string)
		data[i] = map[string]any{"index": i, "embedding": []float64{float64(len(s)), float64(i)}}
	}
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]any{"object": "list", "data": data})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func newTestClient(t *testing.T, cfg *Config) *Client {
	t.Helper()
	c, err := NewClient(cfg)
	require.NoError(t, err)
	t.Cleanup(func() { _ = c.Close() })
	return c
}

func TestEmbedQuery(t *testing.T) {
	srv := newFakeEndpoint(t, echoLength)
	client := newTestClient(t, &Config{Endpoint: srv.URL + "/embed", Model: "bge-m3", Token: "secret"})

	vec, err := client.EmbedQuery(context.Background(), "hello")
	require.NoError(t, err)

	assert.Equal(t, []float64{5, 0}, vec)
	assert.Equal(t, int32(1), srv.calls.Load())

	req := srv.last(t)
	assert.Equal(t, http.MethodPost, req.Method)
	assert.Equal(t, "/embed", req.Path, "the configured URL is used as-is")
	assert.Equal(t, "bge-m3", req.Body["model"])
	assert.Equal(t, []any{"hello"}, req.Body["input"])
	assert.NotContains(t, req.Body, "dimensions")
	assert.Equal(t, "application/json", req.Header.Get("Content-Type"))
	assert.Equal(t, "Bearer secret", req.Header.Get("Authorization"))
}

func TestEmbedQueryEmptyText(t *testing.T) {
	srv := newFakeEndpoint(t, echoLength)
	client := newTestClient(t, &Config{Endpoint: srv.URL})

	vec, err := client.EmbedQuery(context.Background(), "")
	require.NoError(t, err)
	assert.Equal(t, []float64{0, 0}, vec)
	assert.Equal(t, []any{""}, srv.last(t).Body["input"])
}

func TestEmbedDocumentsPreservesOrder(t *testing.T) {
	srv := newFakeEndpoint(t, echoLength)
	client := newTestClient(t, &Config{Endpoint: srv.URL})

	texts := []string{"a", "bbb", "cc", "dddd"}
	vecs, err := client.EmbedDocuments(context.Background(), texts)
	require.NoError(t, err)

	require.Len(t, vecs, len(texts))
	for i, text := range texts {
		assert.Equal(t, float64(len(text)), vecs[i][0])
	}
	assert.Equal(t, int32(1), srv.calls.Load(), "one request per batch")
}

func TestEmbedDocumentsReordersByIndex(t *testing.T) {
	srv := newFakeEndpoint(t, func(w http.ResponseWriter, body map[string]any) {
		writeJSON(w, http.StatusOK, map[string]any{"data": []map[string]any{
			{"index": 2, "embedding": []float64{2}},
			{"index": 0, "embedding": []float64{0}},
			{"index": 1, "embedding": []float64{1}},
		}})
	})
	client := newTestClient(t, &Config{Endpoint: srv.URL})

	vecs, err := client.EmbedDocuments(context.Background(), []string{"x", "y", "z"})
	require.NoError(t, err)
	assert.Equal(t, [][]float64{{0}, {1}, {2}}, vecs)
}

func TestEmbedDocumentsEmptyInput(t *testing.T) {
	srv := newFakeEndpoint(t, echoLength)
	client := newTestClient(t, &Config{Endpoint: srv.URL})

	for _, in := range [][]string{nil, {}} {
		vecs, err := client.EmbedDocuments(context.Background(), in)
		require.NoError(t, err)
		assert.NotNil(t, vecs)
		assert.Empty(t, vecs)
	}
	assert.Equal(t, int32(0), srv.calls.Load())
}

func TestEmbedDocumentsCountMismatch(t *testing.T) {
	srv := newFakeEndpoint(t, func(w http.ResponseWriter, body map[string]any) {
		writeJSON(w, http.StatusOK, [][]float64{{1, 2}})
	})
	client := newTestClient(t, &Config{Endpoint: srv.URL})

	vecs, err := client.EmbedDocuments(context.Background(), []string{"a", "b"})
	require.Error(t, err)
	assert.Nil(t, vecs)
	assert.ErrorIs(t, err, ErrCountMismatch)
	assert.True(t, IsCountMismatchError(err))
}

func TestEmbedQueryRequiresOneVector(t *testing.T) {
	srv := newFakeEndpoint(t, func(w http.ResponseWriter, body map[string]any) {
		writeJSON(w, http.StatusOK, map[string]any{"data": []any{}})
	})
	client := newTestClient(t, &Config{Endpoint: srv.URL})

	_, err := client.EmbedQuery(context.Background(), "q")
	assert.ErrorIs(t, err, ErrCountMismatch)
}

func TestEmbedNon2xx(t *testing.T) {
	srv := newFakeEndpoint(t, func(w http.ResponseWriter, body map[string]any) {
		writeJSON(w, http.StatusUnauthorized, map[string]string{"error": "bad token"})
	})
	client := newTestClient(t, &Config{Endpoint: srv.URL, Token: "wrong"})

	_, err := client.EmbedQuery(context.Background(), "q")
	require.Error(t, err)

	var apiErr *APIError
	require.True(t, errors.As(err, &apiErr))
	assert.Equal(t, http.StatusUnauthorized, apiErr.StatusCode)
	assert.Contains(t, apiErr.Body, "bad token")
	assert.Equal(t, srv.URL, apiErr.URL)
	assert.True(t, IsAPIError(err))
	assert.True(t, IsUnauthorized(err))
	assert.True(t, IsStatus(err, http.StatusUnauthorized))
	assert.False(t, IsStatus(err, http.StatusTooManyRequests))
	assert.Equal(t, int32(1), srv.calls.Load(), "no retry")
}

func TestEmbedServerErrorIsNotRetried(t *testing.T) {
	srv := newFakeEndpoint(t, func(w http.ResponseWriter, body map[string]any) {
		w.WriteHeader(http.StatusServiceUnavailable)
	})
	client := newTestClient(t, &Config{Endpoint: srv.URL})

	_, err := client.EmbedDocuments(context.Background(), []string{"a", "b"})
	assert.True(t, IsStatus(err, http.StatusServiceUnavailable))
	assert.Contains(t, err.Error(), "503 Service Unavailable")
	assert.Equal(t, int32(1), srv.calls.Load())
}

func TestEmbedMalformedResponse(t *testing.T) {
	srv := newFakeEndpoint(t, func(w http.ResponseWriter, body map[string]any) {
		w.Header().Set("Content-Type", "text/html")
		_, _ = w.Write([]byte("<html>gateway</html>"))
	})
	client := newTestClient(t, &Config{Endpoint: srv.URL})

	_, err := client.EmbedQuery(context.Background(), "q")
	assert.ErrorIs(t, err, ErrMalformedResponse)
	assert.True(t, IsMalformedResponseError(err))
}

func TestEmbedContextCancelled(t *testing.T) {
	release := make(chan struct{})
	srv := newFakeEndpoint(t, func(w http.ResponseWriter, body map[string]any) {
		<-release
	})
	defer close(release)
	client := newTestClient(t, &Config{Endpoint: srv.URL})

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(50 * time.Millisecond)
		cancel()
	}()

	_, err := client.EmbedQuery(ctx, "q")
	require.Error(t, err)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestEmbedTransportError(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	endpoint := srv.URL
	srv.Close()

	client := newTestClient(t, &Config{Endpoint: endpoint})
	_, err := client.EmbedQuery(context.Background(), "q")
	require.Error(t, err)
	assert.False(t, IsAPIError(err))
	assert.Contains(t, err.Error(), "embedding: post")
}

func TestAuthentication(t *testing.T) {
	tokenFile := filepath.Join(t.TempDir(), "token")
	require.NoError(t, os.WriteFile(tokenFile, []byte("from-file\n"), 0o600))

	tests := []struct {
		name       string
		cfg        Config
		header     string
		wantHeader string
	}{
		{name: "bearer token", cfg: Config{Token: "abc"}, header: "Authorization", wantHeader: "Bearer abc"},
		{name: "token file", cfg: Config{TokenFile: tokenFile}, header: "Authorization", wantHeader: "Bearer from-file"},
		{name: "token wins over file", cfg: Config{Token: "abc", TokenFile: tokenFile}, header: "Authorization", wantHeader: "Bearer abc"},
		{name: "custom header without scheme", cfg: Config{Token: "k", AuthHeader: "api-key", AuthScheme: "none"}, header: "Api-Key", wantHeader: "k"},
		{name: "custom scheme", cfg: Config{Token: "k", AuthScheme: "Token"}, header: "Authorization", wantHeader: "Token k"},
		{name: "no token", cfg: Config{}, header: "Authorization", wantHeader: ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := newFakeEndpoint(t, echoLength)
			cfg := tt.cfg
			cfg.Endpoint = srv.URL

			client := newTestClient(t, &cfg)
			_, err := client.EmbedQuery(context.Background(), "q")
			require.NoError(t, err)
			assert.Equal(t, tt.wantHeader, srv.last(t).Header.Get(tt.header))
		})
	}
}

func TestMissingTokenFile(t *testing.T) {
	_, err := NewClient(&Config{Endpoint: "http://localhost:8080", TokenFile: "/does/not/exist"})
	assert.ErrorIs(t, err, ErrInvalidConfig)
}

func TestExtraHeaders(t *testing.T) {
	srv := newFakeEndpoint(t, echoLength)
	client := newTestClient(t, &Config{
		Endpoint:     srv.URL,
		ExtraHeaders: map[string]string{"X-Tenant": "acme", "x-request-source": "notebook"},
	})

	_, err := client.EmbedQuery(context.Background(), "q")
	require.NoError(t, err)

	h := srv.last(t).Header
	assert.Equal(t, "acme", h.Get("X-Tenant"))
	assert.Equal(t, "notebook", h.Get("X-Request-Source"))
}

func TestRequestFormats(t *testing.T) {
	normalize := false

	tests := []struct {
		name   string
		cfg    Config
		reply  any
		expect map[string]any
	}{
		{
			name:   "openai with dimensions",
			cfg:    Config{Format: FormatOpenAI, Model: "text-embedding-3-small", Dimensions: 256},
			reply:  map[string]any{"data": []map[string]any{{"index": 0, "embedding": []float64{1}}, {"index": 1, "embedding": []float64{2}}}},
			expect: map[string]any{"model": "text-embedding-3-small", "input": []any{"a", "b"}, "dimensions": float64(256)},
		},
		{
			name:   "tei",
			cfg:    Config{Format: FormatTEI, Truncate: true, Normalize: &normalize},
			reply:  [][]float64{{1}, {2}},
			expect: map[string]any{"inputs": []any{"a", "b"}, "truncate": true, "normalize": false},
		},
		{
			name:   "instances",
			cfg:    Config{Format: FormatInstances},
			reply:  map[string]any{"predictions": [][]float64{{1}, {2}}},
			expect: map[string]any{"instances": []any{"a", "b"}},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := newFakeEndpoint(t, func(w http.ResponseWriter, body map[string]any) {
				writeJSON(w, http.StatusOK, tt.reply)
			})
			cfg := tt.cfg
			cfg.Endpoint = srv.URL

			client := newTestClient(t, &cfg)
			vecs, err := client.EmbedDocuments(context.Background(), []string{"a", "b"})
			require.NoError(t, err)
			assert.Equal(t, [][]float64{{1}, {2}}, vecs)
			assert.Equal(t, tt.expect, srv.last(t).Body)
		})
	}
}

func TestPrefixes(t *testing.T) {
	srv := newFakeEndpoint(t, echoLength)
	client := newTestClient(t, &Config{Endpoint: srv.URL, QueryPrefix: "query: ", DocumentPrefix: "passage: "})

	_, err := client.EmbedQuery(context.Background(), "q")
	require.NoError(t, err)
	assert.Equal(t, []any{"query: q"}, srv.last(t).Body["input"])

	texts := []string{"one", "two"}
	_, err = client.EmbedDocuments(context.Background(), texts)
	require.NoError(t, err)
	assert.Equal(t, []any{"passage: one", "passage: two"}, srv.last(t).Body["input"])
	assert.Equal(t, []string{"one", "two"}, texts, "caller slice is not modified")
}

func TestEmbedWithMockProvider(t *testing.T) {
	ctrl := gomock.NewController(t)
	provider := NewMockProvider(ctrl)

	provider.EXPECT().
		Embed(gomock.Any(), []string{"a", "b"}).
		Return([][]float64{{1, 0}, {0, 1}}, nil).
		Times(1)

	client := NewClientWithProvider("mock://endpoint", provider)
	vecs, err := client.EmbedDocuments(context.Background(), []string{"a", "b"})
	require.NoError(t, err)
	assert.Equal(t, [][]float64{{1, 0}, {0, 1}}, vecs)
	assert.Equal(t, "mock://endpoint", client.Endpoint())
	assert.NoError(t, client.Close())
}

func TestObserverNotified(t *testing.T) {
	ctrl := gomock.NewController(t)
	provider := NewMockProvider(ctrl)
	provider.EXPECT().Embed(gomock.Any(), gomock.Any()).Return([][]float64{{1}}, nil)
	provider.EXPECT().Embed(gomock.Any(), gomock.Any()).Return(nil, errors.New("boom"))

	var got []observability.OperationContext
	client := NewClientWithProvider("https://user:pw@embed.example.com/v1?key=x", provider).
		WithObserver(observability.ObserverFunc(func(op observability.OperationContext) {
			got = append(got, op)
		}))

	_, err := client.EmbedQuery(context.Background(), "q")
	require.NoError(t, err)
	_, err = client.EmbedDocuments(context.Background(), []string{"a", "b", "c"})
	require.Error(t, err)

	require.Len(t, got, 2)
	assert.Equal(t, "embedding", got[0].Component)
	assert.Equal(t, "embed_query", got[0].Operation)
	assert.Equal(t, "https://embed.example.com/v1", got[0].Resource)
	assert.Equal(t, int64(1), got[0].Size)
	assert.Equal(t, "success", got[0].Status())

	assert.Equal(t, "embed_documents", got[1].Operation)
	assert.Equal(t, int64(3), got[1].Size)
	assert.Equal(t, "error", got[1].Status())
}

func TestLogging(t *testing.T) {
	core, logs := observer.New(zap.DebugLevel)
	log := &logger.LoggerClient{Zap: zap.New(core)}

	srv := newFakeEndpoint(t, func(w http.ResponseWriter, body map[string]any) {
		w.WriteHeader(http.StatusBadGateway)
	})
	client := newTestClient(t, &Config{Endpoint: srv.URL, Logger: log})

	assert.Equal(t, 1, logs.FilterMessage("No API token configured, calling endpoint unauthenticated").Len())

	_, err := client.EmbedQuery(context.Background(), "q")
	require.Error(t, err)

	failed := logs.FilterMessage("Embedding request failed").All()
	require.Len(t, failed, 1)
	assert.Equal(t, "embed_query", failed[0].ContextMap()["operation"])
}

func TestSpanAndTracePropagation(t *testing.T) {
	sr := tracetest.NewSpanRecorder()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(sr))
	prevTP, prevProp := otel.GetTracerProvider(), otel.GetTextMapPropagator()
	otel.SetTracerProvider(tp)
	otel.SetTextMapPropagator(propagation.TraceContext{})
	t.Cleanup(func() {
		otel.SetTracerProvider(prevTP)
		otel.SetTextMapPropagator(prevProp)
		_ = tp.Shutdown(context.Background())
	})

	srv := newFakeEndpoint(t, echoLength)
	client := newTestClient(t, &Config{Endpoint: srv.URL})

	_, err := client.EmbedDocuments(context.Background(), []string{"a", "b"})
	require.NoError(t, err)

	spans := sr.Ended()
	require.Len(t, spans, 1)
	assert.Equal(t, "embedding.EmbedDocuments", spans[0].Name())
	assert.NotEqual(t, codes.Error, spans[0].Status().Code)

	traceparent := srv.last(t).Header.Get("Traceparent")
	require.NotEmpty(t, traceparent)
	assert.Contains(t, traceparent, spans[0].SpanContext().TraceID().String())
}

func newRecordingTracer(t *testing.T) (*tracer.Tracer, *tracetest.SpanRecorder) {
	t.Helper()
	sr := tracetest.NewSpanRecorder()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(sr))
	t.Cleanup(func() { _ = tp.Shutdown(context.Background()) })
	return tracer.NewWithProvider(tp, nil), sr
}

func TestSpansThroughInjectedTracer(t *testing.T) {
	tr, sr := newRecordingTracer(t)

	srv := newFakeEndpoint(t, echoLength)
	client := newTestClient(t, &Config{Endpoint: srv.URL, Tracer: tr})

	_, err := client.EmbedQuery(context.Background(), "q")
	require.NoError(t, err)

	spans := sr.Ended()
	require.Len(t, spans, 1)
	assert.Equal(t, "embedding.EmbedQuery", spans[0].Name())

	attrs := map[string]any{}
	for _, kv := range spans[0].Attributes() {
		attrs[string(kv.Key)] = kv.Value.AsInterface()
	}
	assert.Equal(t, int64(1), attrs["embedding.inputs"])
	assert.Equal(t, int64(2), attrs["embedding.dimensions"])

	traceparent := srv.last(t).Header.Get("Traceparent")
	assert.Contains(t, traceparent, spans[0].SpanContext().TraceID().String())
	assert.Contains(t, traceparent, spans[0].SpanContext().SpanID().String())
}

func TestWithTracerReachesOpenAIProvider(t *testing.T) {
	tr, sr := newRecordingTracer(t)

	srv, _, header := newOpenAIServer(t, http.StatusOK, func(body map[string]any) any {
		return openAIResponse([]float64{1, 2})
	})
	client := newTestClient(t, &Config{Endpoint: srv.URL + "/v1", Provider: ProviderOpenAI, Model: "m"}).
		WithTracer(tr)

	_, err := client.EmbedQuery(context.Background(), "q")
	require.NoError(t, err)

	require.Len(t, sr.Ended(), 1)
	assert.Contains(t, header.Get("Traceparent"), sr.Ended()[0].SpanContext().TraceID().String())
}

func TestFailureLogCarriesTraceID(t *testing.T) {
	tr, sr := newRecordingTracer(t)
	core, logs := observer.New(zap.DebugLevel)
	log := (&logger.LoggerClient{Zap: zap.New(core)}).WithTracing(true)

	srv := newFakeEndpoint(t, func(w http.ResponseWriter, body map[string]any) {
		w.WriteHeader(http.StatusServiceUnavailable)
	})
	client := newTestClient(t, &Config{Endpoint: srv.URL, Logger: log, Tracer: tr})

	_, err := client.EmbedDocuments(context.Background(), []string{"a"})
	require.Error(t, err)

	spans := sr.Ended()
	require.Len(t, spans, 1)
	assert.Equal(t, codes.Error, spans[0].Status().Code)

	failed := logs.FilterMessage("Embedding request failed").All()
	require.Len(t, failed, 1)
	fields := failed[0].ContextMap()
	assert.Equal(t, spans[0].SpanContext().TraceID().String(), fields["trace_id"])
	assert.Equal(t, spans[0].SpanContext().SpanID().String(), fields["span_id"])
}
