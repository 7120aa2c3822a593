package graphstore

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/codes"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
	"go.uber.org/mock/gomock"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"

	"github.com/Aleph-Alpha/endpoint-embeddings/v1/logger"
	"github.com/Aleph-Alpha/endpoint-embeddings/v1/observability"
	"github.com/Aleph-Alpha/endpoint-embeddings/v1/tracer"
)

// fakeEmbedder maps known texts to fixed vectors.
type fakeEmbedder struct {
	vectors   map[string][]float64
	batches   int
	queryHits int
}

func (f *fakeEmbedder) EmbedQuery(_ context.Context, text string) ([]float64, error) {
	f.queryHits++
	v, ok := f.vectors[text]
	if !ok {
		return nil, fmt.Errorf("no vector for %q", text)
	}
	return v, nil
}

func (f *fakeEmbedder) EmbedDocuments(ctx context.Context, texts []string) ([][]float64, error) {
	f.batches++
	out := make([][]float64, len(texts))
	for i, t := range texts {
		v, ok := f.vectors[t]
		if !ok {
			return nil, fmt.Errorf("no vector for %q", t)
		}
		out[i] = v
	}
	return out, nil
}

// newGraph builds a chain a -x-> b -y-> c plus an unlinked node d close to a.
func newGraph(t *testing.T) (*Store, *fakeEmbedder) {
	t.Helper()
	emb := &fakeEmbedder{vectors: map[string][]float64{
		"q": {1, 0},
		"a": {1, 0},
		"b": {0, 1},
		"c": {-1, 0},
		"d": {0.9, 0.1},
	}}
	store := NewStore(emb, NewMemoryBackend())

	_, err := store.AddNodes(context.Background(), []Node{
		{ID: "a", Text: "a", Links: []Link{OutgoingLink("href", "x")}},
		{ID: "b", Text: "b", Links: []Link{IncomingLink("href", "x"), OutgoingLink("href", "y")}},
		{ID: "c", Text: "c", Links: []Link{IncomingLink("href", "y")}, Metadata: map[string]any{"lang": "de"}},
		{ID: "d", Text: "d", Metadata: map[string]any{"lang": "en"}},
	})
	require.NoError(t, err)
	return store, emb
}

func ids(nodes []Node) []string {
	out := make([]string, len(nodes))
	for i, n := range nodes {
		out[i] = n.ID
	}
	return out
}

func TestAddNodesEmbedsOnceAndAssignsIDs(t *testing.T) {
	ctrl := gomock.NewController(t)
	emb := NewMockEmbedder(ctrl)
	emb.EXPECT().
		EmbedDocuments(gomock.Any(), []string{"one", "two", "three"}).
		Return([][]float64{{1}, {2}, {3}}, nil).
		Times(1)

	backend := NewMemoryBackend()
	store := NewStore(emb, backend)

	got, err := store.AddNodes(context.Background(), []Node{
		{Text: "one"},
		{ID: "fixed", Text: "two"},
		{Text: "three"},
	})
	require.NoError(t, err)
	require.Len(t, got, 3)

	assert.Equal(t, "fixed", got[1])
	_, err = uuid.Parse(got[0])
	assert.NoError(t, err)
	assert.NotEqual(t, got[0], got[2])
	assert.Equal(t, 3, backend.Len())

	stored, err := backend.Get(context.Background(), got)
	require.NoError(t, err)
	assert.Equal(t, []float64{2}, stored[1].Vector)
}

func TestAddNodesEmpty(t *testing.T) {
	ctrl := gomock.NewController(t)
	store := NewStore(NewMockEmbedder(ctrl), NewMemoryBackend())

	got, err := store.AddNodes(context.Background(), nil)
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestAddNodesPropagatesErrors(t *testing.T) {
	ctrl := gomock.NewController(t)
	emb := NewMockEmbedder(ctrl)
	backend := NewMockBackend(ctrl)
	store := NewStore(emb, backend)

	embedErr := errors.New("endpoint down")
	emb.EXPECT().EmbedDocuments(gomock.Any(), gomock.Any()).Return(nil, embedErr)
	_, err := store.AddNodes(context.Background(), []Node{{Text: "x"}})
	assert.ErrorIs(t, err, embedErr)

	upsertErr := errors.New("disk full")
	emb.EXPECT().EmbedDocuments(gomock.Any(), gomock.Any()).Return([][]float64{{1}}, nil)
	backend.EXPECT().Upsert(gomock.Any(), gomock.Any()).Return(upsertErr)
	_, err = store.AddNodes(context.Background(), []Node{{Text: "x"}})
	assert.ErrorIs(t, err, upsertErr)

	emb.EXPECT().EmbedDocuments(gomock.Any(), gomock.Any()).Return([][]float64{{1}}, nil)
	_, err = store.AddNodes(context.Background(), []Node{{Text: "x"}, {Text: "y"}})
	assert.Error(t, err)
}

func TestAddTexts(t *testing.T) {
	emb := &fakeEmbedder{vectors: map[string][]float64{"a": {1, 0}, "b": {0, 1}}}
	backend := NewMemoryBackend()
	store := NewStore(emb, backend)

	meta := []map[string]any{
		{"source": "wiki", MetadataLinksKey: []Link{OutgoingLink("kw", "go")}},
		{"source": "blog", MetadataLinksKey: []any{IncomingLink("kw", "go")}},
	}

	got, err := store.AddTexts(context.Background(), []string{"a", "b"}, meta, []string{"id-a", "id-b"})
	require.NoError(t, err)
	assert.Equal(t, []string{"id-a", "id-b"}, got)
	assert.Equal(t, 1, emb.batches)

	stored, err := backend.Get(context.Background(), got)
	require.NoError(t, err)
	assert.Equal(t, map[string]any{"source": "wiki"}, stored[0].Metadata)
	assert.Equal(t, []Link{OutgoingLink("kw", "go")}, stored[0].Links)
	assert.Equal(t, []Link{IncomingLink("kw", "go")}, stored[1].Links)

	assert.Contains(t, meta[0], MetadataLinksKey, "caller metadata is not modified")
}

func TestAddTextsLengthValidation(t *testing.T) {
	store := NewStore(&fakeEmbedder{}, NewMemoryBackend())
	ctx := context.Background()

	_, err := store.AddTexts(ctx, []string{"a", "b"}, []map[string]any{{}}, nil)
	assert.ErrorIs(t, err, ErrLengthMismatch)

	_, err = store.AddTexts(ctx, []string{"a"}, nil, []string{"1", "2"})
	assert.ErrorIs(t, err, ErrLengthMismatch)

	_, err = store.AddTexts(ctx, []string{"a"}, []map[string]any{{MetadataLinksKey: "not links"}}, nil)
	assert.ErrorIs(t, err, ErrInvalidArgument)
}

func TestSimilaritySearch(t *testing.T) {
	store, _ := newGraph(t)
	ctx := context.Background()

	nodes, err := store.SimilaritySearch(ctx, "q", 2, nil)
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "d"}, ids(nodes))

	scored, err := store.SimilaritySearchWithScores(ctx, "q", 4, nil)
	require.NoError(t, err)
	require.Len(t, scored, 4)
	assert.Equal(t, "a", scored[0].ID)
	assert.InDelta(t, 1.0, scored[0].Score, 1e-9)
	assert.Equal(t, "c", scored[3].ID)
	assert.InDelta(t, -1.0, scored[3].Score, 1e-9)

	above, err := store.SimilaritySearchWithThreshold(ctx, "q", 4, 0.5, nil)
	require.NoError(t, err)
	assert.Len(t, above, 2)

	filtered, err := store.SimilaritySearch(ctx, "q", 4, map[string]any{"lang": "de"})
	require.NoError(t, err)
	assert.Equal(t, []string{"c"}, ids(filtered))

	_, err = store.SimilaritySearch(ctx, "q", 0, nil)
	assert.ErrorIs(t, err, ErrInvalidArgument)
}

func TestTraversalSearchDepth(t *testing.T) {
	store, _ := newGraph(t)
	ctx := context.Background()

	tests := []struct {
		k, depth int
		want     []string
	}{
		{k: 1, depth: 0, want: []string{"a"}},
		{k: 1, depth: 1, want: []string{"a", "b"}},
		{k: 1, depth: 2, want: []string{"a", "b", "c"}},
		{k: 1, depth: 5, want: []string{"a", "b", "c"}},
		{k: 2, depth: 1, want: []string{"a", "d", "b"}},
		{k: 4, depth: 2, want: []string{"a", "d", "b", "c"}},
	}

	for _, tt := range tests {
		t.Run(fmt.Sprintf("k=%d,depth=%d", tt.k, tt.depth), func(t *testing.T) {
			nodes, err := store.TraversalSearch(ctx, "q", TraversalOptions{K: tt.k, Depth: tt.depth})
			require.NoError(t, err)
			assert.Equal(t, tt.want, ids(nodes))
		})
	}
}

func TestTraversalSearchFilterAppliesToNeighbours(t *testing.T) {
	store, _ := newGraph(t)

	nodes, err := store.TraversalSearch(context.Background(), "q", TraversalOptions{K: 1, Depth: 2, Filter: map[string]any{"lang": "en"}})
	require.NoError(t, err)
	assert.Equal(t, []string{"d"}, ids(nodes))
}

// newMMRStore holds a1 on the query, a near-duplicate a2 and an orthogonal o.
func newMMRStore(t *testing.T) *Store {
	t.Helper()
	emb := &fakeEmbedder{vectors: map[string][]float64{
		"q":  {1, 0},
		"a1": {1, 0},
		"a2": {0.99, 0.1},
		"o":  {0, 1},
	}}
	store := NewStore(emb, NewMemoryBackend())
	_, err := store.AddTexts(context.Background(), []string{"a1", "a2", "o"}, nil, []string{"a1", "a2", "o"})
	require.NoError(t, err)
	return store
}

func TestMaxMarginalRelevanceSearch(t *testing.T) {
	store := newMMRStore(t)
	ctx := context.Background()

	diverse, err := store.MaxMarginalRelevanceSearch(ctx, "q", 2, 10, 0.3)
	require.NoError(t, err)
	assert.Equal(t, []string{"a1", "o"}, ids(diverse))

	relevant, err := store.MaxMarginalRelevanceSearch(ctx, "q", 2, 10, 1)
	require.NoError(t, err)
	assert.Equal(t, []string{"a1", "a2"}, ids(relevant))

	_, err = store.MaxMarginalRelevanceSearch(ctx, "q", 2, 10, 1.5)
	assert.ErrorIs(t, err, ErrInvalidArgument)
}

func TestMMRTraversalScoreThreshold(t *testing.T) {
	store := newMMRStore(t)

	opts := DefaultMMROptions()
	opts.K = 3
	opts.LambdaMult = 0.3
	opts.ScoreThreshold = 0.5

	nodes, err := store.MMRTraversalSearch(context.Background(), "q", opts)
	require.NoError(t, err)
	assert.Equal(t, []string{"a1", "a2"}, ids(nodes))
}

func TestMMRTraversalFollowsEdges(t *testing.T) {
	store, _ := newGraph(t)
	ctx := context.Background()

	opts := DefaultMMROptions()
	opts.K = 2
	opts.FetchK = 1
	opts.Depth = 1

	nodes, err := store.MMRTraversalSearch(ctx, "q", opts)
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "b"}, ids(nodes))

	opts.Depth = 0
	nodes, err = store.MMRTraversalSearch(ctx, "q", opts)
	require.NoError(t, err)
	assert.Equal(t, []string{"a"}, ids(nodes))
}

func TestMMRTraversalInitialRoots(t *testing.T) {
	store, _ := newGraph(t)

	opts := DefaultMMROptions()
	opts.InitialRoots = []string{"a"}
	opts.FetchK = 0

	nodes, err := store.MMRTraversalSearch(context.Background(), "q", opts)
	require.NoError(t, err)
	assert.Equal(t, []string{"b", "c"}, ids(nodes), "roots are excluded, their neighbours start at depth 1")

	opts.Depth = 1
	nodes, err = store.MMRTraversalSearch(context.Background(), "q", opts)
	require.NoError(t, err)
	assert.Equal(t, []string{"b"}, ids(nodes))
}

func TestSearchDispatch(t *testing.T) {
	store, _ := newGraph(t)
	ctx := context.Background()

	tests := []struct {
		searchType SearchType
		opts       []SearchOption
		want       []string
	}{
		{searchType: SearchSimilarity, opts: []SearchOption{WithK(1)}, want: []string{"a"}},
		{searchType: SearchSimilarityScoreThreshold, opts: []SearchOption{WithScoreThreshold(0.9)}, want: []string{"a", "d"}},
		{searchType: SearchTraversal, opts: []SearchOption{WithK(1)}, want: []string{"a", "b"}},
		{searchType: SearchTraversal, opts: []SearchOption{WithK(1), WithDepth(2)}, want: []string{"a", "b", "c"}},
		{searchType: SearchMMR, opts: []SearchOption{WithK(1), WithDepth(3)}, want: []string{"a"}},
		{searchType: SearchMMRTraversal, opts: []SearchOption{WithK(2), WithFetchK(1)}, want: []string{"a", "b"}},
		{searchType: SearchMMRTraversal, opts: []SearchOption{WithInitialRoots("a"), WithFetchK(0)}, want: []string{"b", "c"}},
		{searchType: SearchSimilarity, opts: []SearchOption{WithFilter(map[string]any{"lang": "en"})}, want: []string{"d"}},
	}

	for _, tt := range tests {
		t.Run(string(tt.searchType), func(t *testing.T) {
			nodes, err := store.Search(ctx, "q", tt.searchType, tt.opts...)
			require.NoError(t, err)
			assert.Equal(t, tt.want, ids(nodes))
		})
	}

	_, err := store.Search(ctx, "q", "keyword")
	assert.ErrorIs(t, err, ErrUnknownSearchType)
}

func TestRetriever(t *testing.T) {
	store, _ := newGraph(t)

	r, err := store.AsRetriever("", WithK(1))
	require.NoError(t, err)
	assert.Equal(t, SearchTraversal, r.SearchType())

	nodes, err := r.Retrieve(context.Background(), "q")
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "b"}, ids(nodes))
}

func TestAsRetrieverRejectsUnknownType(t *testing.T) {
	store, emb := newGraph(t)
	before := emb.queryHits

	r, err := store.AsRetriever("fulltext", WithK(1))
	assert.ErrorIs(t, err, ErrUnknownSearchType)
	assert.Nil(t, r)
	assert.Equal(t, before, emb.queryHits, "nothing is embedded for a rejected retriever")

	for _, st := range []SearchType{SearchSimilarity, SearchSimilarityScoreThreshold, SearchMMR, SearchTraversal, SearchMMRTraversal} {
		_, err := store.AsRetriever(st)
		assert.NoError(t, err, st)
	}
}

func TestDelete(t *testing.T) {
	store, _ := newGraph(t)
	ctx := context.Background()

	require.NoError(t, store.Delete(ctx, []string{"b", "unknown"}))

	nodes, err := store.TraversalSearch(ctx, "q", TraversalOptions{K: 1, Depth: 2})
	require.NoError(t, err)
	assert.Equal(t, []string{"a"}, ids(nodes), "deleting b cuts the chain")
}

func TestQueryEmbeddingErrorPropagates(t *testing.T) {
	store, _ := newGraph(t)

	_, err := store.TraversalSearch(context.Background(), "unknown", DefaultTraversalOptions())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "graphstore: embed query")
}

func TestObserver(t *testing.T) {
	store, _ := newGraph(t)

	var ops []string
	store.WithObserver(observability.ObserverFunc(func(op observability.OperationContext) {
		assert.Equal(t, "graphstore", op.Component)
		ops = append(ops, op.Operation)
	}))

	_, err := store.Search(context.Background(), "q", SearchTraversal)
	require.NoError(t, err)
	assert.Equal(t, []string{"traversal_search"}, ops)
}

func TestOperationSpansAndTraceAwareLogs(t *testing.T) {
	sr := tracetest.NewSpanRecorder()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(sr))
	t.Cleanup(func() { _ = tp.Shutdown(context.Background()) })

	core, logs := observer.New(zap.DebugLevel)
	log := (&logger.LoggerClient{Zap: zap.New(core)}).WithTracing(true)

	emb := &fakeEmbedder{vectors: map[string][]float64{"a": {1, 0}, "q": {1, 0}}}
	store := NewStore(emb, NewMemoryBackend()).
		WithTracer(tracer.NewWithProvider(tp, nil)).
		WithLogger(log)
	ctx := context.Background()

	_, err := store.AddNodes(ctx, []Node{{ID: "a", Text: "a"}})
	require.NoError(t, err)

	_, err = store.TraversalSearch(ctx, "unknown", DefaultTraversalOptions())
	require.Error(t, err)

	opts := DefaultMMROptions()
	opts.InitialRoots = []string{"missing"}
	_, err = store.MMRTraversalSearch(ctx, "q", opts)
	require.NoError(t, err)

	spans := sr.Ended()
	require.Len(t, spans, 3)
	assert.Equal(t, "graphstore.add_nodes", spans[0].Name())
	assert.Equal(t, "graphstore.traversal_search", spans[1].Name())
	assert.Equal(t, codes.Error, spans[1].Status().Code)
	assert.Equal(t, "graphstore.mmr_traversal_search", spans[2].Name())

	added := logs.FilterMessage("Added nodes").All()
	require.Len(t, added, 1)
	assert.Equal(t, spans[0].SpanContext().TraceID().String(), added[0].ContextMap()["trace_id"])

	failed := logs.FilterMessage("Graph store operation failed").All()
	require.Len(t, failed, 1)
	assert.Equal(t, "traversal_search", failed[0].ContextMap()["operation"])
	assert.Equal(t, spans[1].SpanContext().TraceID().String(), failed[0].ContextMap()["trace_id"])
	assert.Equal(t, spans[1].SpanContext().SpanID().String(), failed[0].ContextMap()["span_id"])

	missing := logs.FilterMessage("Some initial roots do not exist").All()
	require.Len(t, missing, 1)
	assert.Equal(t, spans[2].SpanContext().TraceID().String(), missing[0].ContextMap()["trace_id"])
}
