package metrics

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Aleph-Alpha/endpoint-embeddings/v1/observability"
)

func TestObserveOperationRecordsOutcome(t *testing.T) {
	m := NewMetrics(Config{ServiceName: "test"})

	m.ObserveOperation(observability.OperationContext{
		Component: "embedding",
		Operation: "embed_documents",
		Duration:  40 * time.Millisecond,
		Size:      3,
	})
	m.ObserveOperation(observability.OperationContext{
		Component: "embedding",
		Operation: "embed_documents",
		Duration:  10 * time.Millisecond,
		Error:     errors.New("http 500"),
		Size:      2,
	})

	assert.Equal(t, 1.0, testutil.ToFloat64(m.operationsTotal.WithLabelValues("embedding", "embed_documents", "success")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.operationsTotal.WithLabelValues("embedding", "embed_documents", "error")))
	assert.Equal(t, 5.0, testutil.ToFloat64(m.operationItems.WithLabelValues("embedding", "embed_documents")))
	assert.Equal(t, 1, testutil.CollectAndCount(m.operationDuration))
	assert.Equal(t, 1, testutil.CollectAndCount(m.lastSuccess), "only the successful operation sets the timestamp")
	assert.InDelta(t, float64(time.Now().Unix()), testutil.ToFloat64(m.lastSuccess.WithLabelValues("embedding", "embed_documents")), 5)
}

func TestObserveOperationNilMetrics(t *testing.T) {
	var m *Metrics
	m.ObserveOperation(observability.OperationContext{Component: "embedding"})
}

func TestMetricsEndpointExposesServiceLabel(t *testing.T) {
	m := NewMetrics(Config{ServiceName: "embed-cli", Namespace: "embeddings"})
	m.ObserveOperation(observability.OperationContext{Component: "embedding", Operation: "embed_query", Size: 1})

	rec := httptest.NewRecorder()
	m.Server.Handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	body := rec.Body.String()
	assert.True(t, strings.Contains(body, `embeddings_operations_total{component="embedding",operation="embed_query",service="embed-cli",status="success"} 1`), body)
}

func TestCreateCounterRegisters(t *testing.T) {
	m := NewMetrics(Config{ServiceName: "test"})

	c := m.CreateCounter("graph_nodes_added_total", "nodes", []string{"backend"})
	c.WithLabelValues("memory").Add(2)

	count, err := testutil.GatherAndCount(m.Registry, "graph_nodes_added_total")
	require.NoError(t, err)
	assert.Equal(t, 1, count)
}

func TestBuiltInMetricsRegistered(t *testing.T) {
	m := NewMetrics(Config{ServiceName: "test", Namespace: "embeddings"})
	m.ObserveOperation(observability.OperationContext{Component: "graphstore", Operation: "add_nodes", Size: 2})

	families, err := m.Registry.Gather()
	require.NoError(t, err)

	names := map[string]bool{}
	for _, f := range families {
		names[f.GetName()] = true
	}
	for _, want := range []string{
		"embeddings_operations_total",
		"embeddings_operation_duration_seconds",
		"embeddings_operation_items_total",
		"embeddings_operation_last_success_timestamp_seconds",
	} {
		assert.True(t, names[want], want)
	}
}

func TestCreateGaugeAndHistogram(t *testing.T) {
	m := NewMetrics(Config{ServiceName: "test"})

	g := m.CreateGauge("index_collection_points", "points", []string{"collection"})
	g.WithLabelValues("docs").Set(7)
	h := m.CreateHistogram("batch_size", "texts per batch", nil, []float64{1, 10, 100})
	h.WithLabelValues().Observe(3)

	assert.Equal(t, 7.0, testutil.ToFloat64(g.WithLabelValues("docs")))
	count, err := testutil.GatherAndCount(m.Registry, "batch_size")
	require.NoError(t, err)
	assert.Equal(t, 1, count)
}

func TestDefaultAddress(t *testing.T) {
	m := NewMetrics(Config{})
	assert.Equal(t, DefaultMetricsAddress, m.Server.Addr)
}

func TestNewConfigFromEnv(t *testing.T) {
	t.Setenv("METRICS_ADDRESS", "127.0.0.1:9100")
	t.Setenv("METRICS_ENABLE_DEFAULT_COLLECTORS", "false")

	cfg, err := NewConfig()
	require.NoError(t, err)
	assert.Equal(t, "127.0.0.1:9100", cfg.Address)
	assert.False(t, cfg.EnableDefaultCollectors)
	assert.Equal(t, "endpoint-embeddings", cfg.ServiceName)
}
