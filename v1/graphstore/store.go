package graphstore

import (
	"context"
	"fmt"
	"math"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/Aleph-Alpha/endpoint-embeddings/v1/observability"
	"github.com/Aleph-Alpha/endpoint-embeddings/v1/tracer"
)

// Logger is the subset of logger.Logger the store uses. Every entry is
// written inside an operation span.
type Logger interface {
	DebugWithContext(ctx context.Context, msg string, err error, fields ...map[string]interface{})
	WarnWithContext(ctx context.Context, msg string, err error, fields ...map[string]interface{})
	ErrorWithContext(ctx context.Context, msg string, err error, fields ...map[string]interface{})
}

// Store is a hybrid vector-and-graph store. Texts are embedded through an
// Embedder and kept in a Backend; searches combine vector similarity with
// traversal of the edges implied by node links.
type Store struct {
	embedder Embedder
	backend  Backend
	logger   Logger
	observer observability.Observer
	tracer   *tracer.Tracer
}

// NewStore creates a store over backend that embeds with embedder.
func NewStore(embedder Embedder, backend Backend) *Store {
	return &Store{embedder: embedder, backend: backend}
}

// WithLogger sets the logger for this store and returns the store for method chaining.
func (s *Store) WithLogger(logger Logger) *Store {
	s.logger = logger
	return s
}

// WithObserver sets the observer for this store and returns the store for method chaining.
func (s *Store) WithObserver(observer observability.Observer) *Store {
	s.observer = observer
	return s
}

// WithTracer sets the tracer used for operation spans and returns the store
// for method chaining. Without one the global provider is used.
func (s *Store) WithTracer(t *tracer.Tracer) *Store {
	s.tracer = t
	return s
}

// TraversalOptions controls TraversalSearch.
type TraversalOptions struct {
	// K is the number of nodes retrieved by similarity.
	K int
	// Depth is the maximum number of edges followed from those nodes.
	Depth  int
	Filter map[string]any
}

// DefaultTraversalOptions returns K=4, Depth=1.
func DefaultTraversalOptions() TraversalOptions {
	return TraversalOptions{K: 4, Depth: 1}
}

// MMROptions controls MMRTraversalSearch.
type MMROptions struct {
	// InitialRoots seed the candidate set with the AdjacentK nearest
	// neighbours of each root. The roots themselves are never returned.
	// Set FetchK to 0 to search only around the roots.
	InitialRoots []string

	K         int
	Depth     int
	FetchK    int
	AdjacentK int

	// LambdaMult in [0,1]: 0 favours diversity, 1 favours relevance.
	LambdaMult float64

	// ScoreThreshold drops candidates less similar to the query.
	ScoreThreshold float64

	Filter map[string]any
}

// DefaultMMROptions returns K=4, Depth=2, FetchK=100, AdjacentK=10,
// LambdaMult=0.5 and no score threshold.
func DefaultMMROptions() MMROptions {
	return MMROptions{
		K:              4,
		Depth:          2,
		FetchK:         100,
		AdjacentK:      10,
		LambdaMult:     0.5,
		ScoreThreshold: math.Inf(-1),
	}
}

// AddNodes embeds all node texts in one EmbedDocuments call and stores the
// nodes. Nodes without an ID get a random UUID. The returned IDs follow the
// input order.
func (s *Store) AddNodes(ctx context.Context, nodes []Node) (ids []string, err error) {
	ctx, finish := s.startOperation(ctx, "add_nodes")
	defer func() { finish(len(nodes), err) }()

	if len(nodes) == 0 {
		return []string{}, nil
	}

	texts := make([]string, len(nodes))
	for i, n := range nodes {
		texts[i] = n.Text
	}

	vectors, err := s.embedder.EmbedDocuments(ctx, texts)
	if err != nil {
		return nil, fmt.Errorf("graphstore: embed nodes: %w", err)
	}
	if len(vectors) != len(nodes) {
		return nil, fmt.Errorf("graphstore: embedder returned %d vectors for %d nodes", len(vectors), len(nodes))
	}

	ids = make([]string, len(nodes))
	stored := make([]StoredNode, len(nodes))
	for i, n := range nodes {
		if n.ID == "" {
			n.ID = uuid.NewString()
		}
		if n.Metadata == nil {
			n.Metadata = map[string]any{}
		}
		ids[i] = n.ID
		stored[i] = StoredNode{Node: n, Vector: vectors[i]}
	}

	if err := s.backend.Upsert(ctx, stored); err != nil {
		return nil, fmt.Errorf("graphstore: upsert: %w", err)
	}

	s.log().DebugWithContext(ctx, "Added nodes", nil, map[string]interface{}{"count": len(ids)})
	return ids, nil
}

// AddTexts stores texts as nodes. metadatas and ids are optional; when given
// they must have the same length as texts. Links are read from the
// MetadataLinksKey entry of each metadata map, which is removed from the
// stored metadata.
func (s *Store) AddTexts(ctx context.Context, texts []string, metadatas []map[string]any, ids []string) ([]string, error) {
	if metadatas != nil && len(metadatas) != len(texts) {
		return nil, fmt.Errorf("%w: %d texts, %d metadatas", ErrLengthMismatch, len(texts), len(metadatas))
	}
	if ids != nil && len(ids) != len(texts) {
		return nil, fmt.Errorf("%w: %d texts, %d ids", ErrLengthMismatch, len(texts), len(ids))
	}

	nodes := make([]Node, len(texts))
	for i, text := range texts {
		n := Node{Text: text, Metadata: map[string]any{}}
		if ids != nil {
			n.ID = ids[i]
		}
		if metadatas != nil {
			for k, v := range metadatas[i] {
				n.Metadata[k] = v
			}
			links, err := linksFromMetadata(n.Metadata[MetadataLinksKey])
			if err != nil {
				return nil, fmt.Errorf("graphstore: text %d: %w", i, err)
			}
			delete(n.Metadata, MetadataLinksKey)
			n.Links = links
		}
		nodes[i] = n
	}

	return s.AddNodes(ctx, nodes)
}

func linksFromMetadata(v any) ([]Link, error) {
	switch links := v.(type) {
	case nil:
		return nil, nil
	case []Link:
		return append([]Link(nil), links...), nil
	case Link:
		return []Link{links}, nil
	case []any:
		out := make([]Link, 0, len(links))
		for _, l := range links {
			link, ok := l.(Link)
			if !ok {
				return nil, fmt.Errorf("%w: %s entry of type %T", ErrInvalidArgument, MetadataLinksKey, l)
			}
			out = append(out, link)
		}
		return out, nil
	default:
		return nil, fmt.Errorf("%w: %s of type %T", ErrInvalidArgument, MetadataLinksKey, v)
	}
}

// Delete removes nodes by ID.
func (s *Store) Delete(ctx context.Context, ids []string) (err error) {
	ctx, finish := s.startOperation(ctx, "delete")
	defer func() { finish(len(ids), err) }()

	if len(ids) == 0 {
		return nil
	}
	if err := s.backend.Delete(ctx, ids); err != nil {
		return fmt.Errorf("graphstore: delete: %w", err)
	}
	return nil
}

// SimilaritySearch returns the k nodes most similar to query.
func (s *Store) SimilaritySearch(ctx context.Context, query string, k int, filter map[string]any) ([]Node, error) {
	return s.TraversalSearch(ctx, query, TraversalOptions{K: k, Depth: 0, Filter: filter})
}

// SimilaritySearchWithScores returns the k nodes most similar to query with
// their cosine similarity, best first.
func (s *Store) SimilaritySearchWithScores(ctx context.Context, query string, k int, filter map[string]any) (out []ScoredNode, err error) {
	ctx, finish := s.startOperation(ctx, "similarity_search")
	defer func() { finish(len(out), err) }()

	if k <= 0 {
		return nil, fmt.Errorf("%w: k must be positive, got %d", ErrInvalidArgument, k)
	}

	vector, err := s.embedQuery(ctx, query)
	if err != nil {
		return nil, err
	}

	hits, err := s.backend.Search(ctx, vector, k, filter)
	if err != nil {
		return nil, fmt.Errorf("graphstore: search: %w", err)
	}

	out = make([]ScoredNode, len(hits))
	for i, h := range hits {
		out[i] = ScoredNode{Node: h.Node, Score: h.Score}
	}
	return out, nil
}

// SimilaritySearchWithThreshold is SimilaritySearchWithScores restricted to
// scores >= threshold.
func (s *Store) SimilaritySearchWithThreshold(ctx context.Context, query string, k int, threshold float64, filter map[string]any) ([]ScoredNode, error) {
	scored, err := s.SimilaritySearchWithScores(ctx, query, k, filter)
	if err != nil {
		return nil, err
	}

	kept := scored[:0]
	for _, sn := range scored {
		if sn.Score >= threshold {
			kept = append(kept, sn)
		}
	}
	return kept, nil
}

// TraversalSearch retrieves the K nodes nearest to query and then every node
// reachable from them over at most Depth edges. Nodes are returned once, in
// discovery order.
func (s *Store) TraversalSearch(ctx context.Context, query string, opts TraversalOptions) (out []Node, err error) {
	ctx, finish := s.startOperation(ctx, "traversal_search")
	defer func() { finish(len(out), err) }()

	if opts.K <= 0 {
		return nil, fmt.Errorf("%w: k must be positive, got %d", ErrInvalidArgument, opts.K)
	}
	if opts.Depth < 0 {
		return nil, fmt.Errorf("%w: depth must not be negative, got %d", ErrInvalidArgument, opts.Depth)
	}

	vector, err := s.embedQuery(ctx, query)
	if err != nil {
		return nil, err
	}

	hits, err := s.backend.Search(ctx, vector, opts.K, opts.Filter)
	if err != nil {
		return nil, fmt.Errorf("graphstore: search: %w", err)
	}

	seen := make(map[string]struct{})
	visitedLinks := make(map[string]struct{})

	var frontier []StoredNode
	for _, h := range hits {
		if _, ok := seen[h.ID]; ok {
			continue
		}
		seen[h.ID] = struct{}{}
		out = append(out, h.Node)
		frontier = append(frontier, h.StoredNode)
	}

	for depth := 0; depth < opts.Depth && len(frontier) > 0; depth++ {
		var links []Link
		for _, n := range frontier {
			links = appendUnvisited(links, visitedLinks, n.OutgoingLinks())
		}
		if len(links) == 0 {
			break
		}

		adjacent, err := s.backend.Adjacent(ctx, links, vector, 0, opts.Filter)
		if err != nil {
			return nil, fmt.Errorf("graphstore: adjacent: %w", err)
		}

		frontier = frontier[:0]
		for _, a := range adjacent {
			if _, ok := seen[a.ID]; ok {
				continue
			}
			seen[a.ID] = struct{}{}
			out = append(out, a.Node)
			frontier = append(frontier, a.StoredNode)
		}
	}

	return out, nil
}

// MMRTraversalSearch selects K nodes by maximal marginal relevance. Initial
// candidates are the FetchK nearest nodes plus the neighbourhoods of
// InitialRoots; every selected node within Depth edges of a similarity hit
// contributes its AdjacentK nearest neighbours as further candidates.
// Results are returned in selection order.
func (s *Store) MMRTraversalSearch(ctx context.Context, query string, opts MMROptions) (out []Node, err error) {
	ctx, finish := s.startOperation(ctx, "mmr_traversal_search")
	defer func() { finish(len(out), err) }()

	if err := opts.validate(); err != nil {
		return nil, err
	}

	vector, err := s.embedQuery(ctx, query)
	if err != nil {
		return nil, err
	}

	selector := newMMRSelector(vector, opts.LambdaMult, opts.ScoreThreshold)
	depths := make(map[string]int)
	visitedLinks := make(map[string]struct{})
	excluded := make(map[string]struct{})

	// admit records the depth of each hit and hands new ones to the selector.
	admit := func(hits []Hit, depth int) {
		fresh := hits[:0:0]
		for _, h := range hits {
			if _, ok := excluded[h.ID]; ok {
				continue
			}
			if d, ok := depths[h.ID]; !ok || depth < d {
				depths[h.ID] = depth
			}
			if !selector.contains(h.ID) {
				fresh = append(fresh, h)
			}
		}
		selector.add(fresh)
	}

	if len(opts.InitialRoots) > 0 {
		neighbourhoods, err := s.rootNeighbourhoods(ctx, opts, vector, visitedLinks, excluded)
		if err != nil {
			return nil, err
		}
		for _, hits := range neighbourhoods {
			admit(hits, 1)
		}
	}

	if opts.FetchK > 0 {
		hits, err := s.backend.Search(ctx, vector, opts.FetchK, opts.Filter)
		if err != nil {
			return nil, fmt.Errorf("graphstore: search: %w", err)
		}
		admit(hits, 0)
	}

	for len(out) < opts.K {
		node, ok := selector.pop()
		if !ok {
			break
		}
		out = append(out, node.Node)

		depth := depths[node.ID]
		if depth >= opts.Depth {
			continue
		}

		links := appendUnvisited(nil, visitedLinks, node.OutgoingLinks())
		if len(links) == 0 {
			continue
		}

		adjacent, err := s.backend.Adjacent(ctx, links, vector, opts.AdjacentK, opts.Filter)
		if err != nil {
			return nil, fmt.Errorf("graphstore: adjacent: %w", err)
		}
		admit(adjacent, depth+1)
	}

	return out, nil
}

// rootNeighbourhoods loads the initial roots and fetches the neighbourhood of
// each root concurrently. Roots are added to excluded.
func (s *Store) rootNeighbourhoods(ctx context.Context, opts MMROptions, vector []float64, visitedLinks, excluded map[string]struct{}) ([][]Hit, error) {
	roots, err := s.backend.Get(ctx, opts.InitialRoots)
	if err != nil {
		return nil, fmt.Errorf("graphstore: get roots: %w", err)
	}
	if len(roots) < len(opts.InitialRoots) {
		s.log().WarnWithContext(ctx, "Some initial roots do not exist", nil, map[string]interface{}{
			"requested": len(opts.InitialRoots),
			"found":     len(roots),
		})
	}

	for _, id := range opts.InitialRoots {
		excluded[id] = struct{}{}
	}

	linkSets := make([][]Link, len(roots))
	for i, r := range roots {
		linkSets[i] = appendUnvisited(nil, visitedLinks, r.OutgoingLinks())
	}

	results := make([][]Hit, len(roots))
	g, gctx := errgroup.WithContext(ctx)
	for i, links := range linkSets {
		if len(links) == 0 {
			continue
		}
		g.Go(func() error {
			hits, err := s.backend.Adjacent(gctx, links, vector, opts.AdjacentK, opts.Filter)
			if err != nil {
				return fmt.Errorf("graphstore: adjacent to root %s: %w", roots[i].ID, err)
			}
			results[i] = hits
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return results, nil
}

// MaxMarginalRelevanceSearch is MMR over the fetchK nearest nodes without
// following edges.
func (s *Store) MaxMarginalRelevanceSearch(ctx context.Context, query string, k, fetchK int, lambdaMult float64) ([]Node, error) {
	opts := DefaultMMROptions()
	opts.K = k
	opts.FetchK = fetchK
	opts.LambdaMult = lambdaMult
	opts.Depth = 0
	return s.MMRTraversalSearch(ctx, query, opts)
}

func (o MMROptions) validate() error {
	switch {
	case o.K <= 0:
		return fmt.Errorf("%w: k must be positive, got %d", ErrInvalidArgument, o.K)
	case o.Depth < 0:
		return fmt.Errorf("%w: depth must not be negative, got %d", ErrInvalidArgument, o.Depth)
	case o.FetchK < 0:
		return fmt.Errorf("%w: fetch_k must not be negative, got %d", ErrInvalidArgument, o.FetchK)
	case o.AdjacentK < 0:
		return fmt.Errorf("%w: adjacent_k must not be negative, got %d", ErrInvalidArgument, o.AdjacentK)
	case o.LambdaMult < 0 || o.LambdaMult > 1 || math.IsNaN(o.LambdaMult):
		return fmt.Errorf("%w: lambda_mult must be within [0, 1], got %v", ErrInvalidArgument, o.LambdaMult)
	}
	return nil
}

func (s *Store) embedQuery(ctx context.Context, query string) ([]float64, error) {
	vector, err := s.embedder.EmbedQuery(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("graphstore: embed query: %w", err)
	}
	return vector, nil
}

// appendUnvisited appends the links whose edge class was not followed yet and
// marks them visited.
func appendUnvisited(dst []Link, visited map[string]struct{}, links []Link) []Link {
	for _, l := range links {
		if _, ok := visited[l.Key()]; ok {
			continue
		}
		visited[l.Key()] = struct{}{}
		dst = append(dst, l)
	}
	return dst
}

// startOperation opens the span for operation. The returned func reports the
// outcome to the span, the observer and, on failure, the logger.
func (s *Store) startOperation(ctx context.Context, operation string) (context.Context, func(items int, err error)) {
	start := time.Now()
	ctx, span := s.tracer.StartSpan(ctx, "graphstore."+operation)

	return ctx, func(items int, err error) {
		defer span.End()

		duration := time.Since(start)
		s.observeOperation(operation, items, duration, err)
		s.tracer.SetAttributes(span, map[string]interface{}{
			"graphstore.items": items,
		})
		if err != nil {
			s.tracer.RecordErrorOnSpan(span, err)
			s.log().ErrorWithContext(ctx, "Graph store operation failed", err, map[string]interface{}{
				"operation":   operation,
				"duration_ms": duration.Milliseconds(),
			})
		}
	}
}

func (s *Store) observeOperation(operation string, items int, duration time.Duration, err error) {
	if s == nil || s.observer == nil {
		return
	}

	s.observer.ObserveOperation(observability.OperationContext{
		Component: "graphstore",
		Operation: operation,
		Duration:  duration,
		Error:     err,
		Size:      int64(items),
	})
}

func (s *Store) log() Logger {
	if s.logger == nil {
		return nopLogger{}
	}
	return s.logger
}

type nopLogger struct{}

func (nopLogger) DebugWithContext(context.Context, string, error, ...map[string]interface{}) {}
func (nopLogger) WarnWithContext(context.Context, string, error, ...map[string]interface{})  {}
func (nopLogger) ErrorWithContext(context.Context, string, error, ...map[string]interface{}) {}
