package graphstore

import (
	"context"
	"fmt"
	"math"
)

// SearchType names a retrieval strategy for Search and Retriever.
type SearchType string

const (
	SearchSimilarity               SearchType = "similarity"
	SearchSimilarityScoreThreshold SearchType = "similarity_score_threshold"
	SearchMMR                      SearchType = "mmr"
	SearchTraversal                SearchType = "traversal"
	SearchMMRTraversal             SearchType = "mmr_traversal"
)

// searchParams is the union of every strategy's knobs. Each strategy starts
// from its own defaults before options are applied.
type searchParams struct {
	k              int
	depth          int
	fetchK         int
	adjacentK      int
	lambdaMult     float64
	scoreThreshold float64
	filter         map[string]any
	initialRoots   []string
}

// SearchOption overrides one search parameter.
type SearchOption func(*searchParams)

// WithK sets the number of results (or of similarity seeds for traversal).
func WithK(k int) SearchOption {
	return func(p *searchParams) { p.k = k }
}

// WithDepth sets how many edges traversal strategies follow.
func WithDepth(depth int) SearchOption {
	return func(p *searchParams) { p.depth = depth }
}

// WithFetchK sets how many nearest nodes seed the MMR candidate set.
func WithFetchK(fetchK int) SearchOption {
	return func(p *searchParams) { p.fetchK = fetchK }
}

// WithAdjacentK sets how many neighbours each MMR step may add.
func WithAdjacentK(adjacentK int) SearchOption {
	return func(p *searchParams) { p.adjacentK = adjacentK }
}

// WithLambdaMult sets the MMR relevance/diversity trade-off.
func WithLambdaMult(lambda float64) SearchOption {
	return func(p *searchParams) { p.lambdaMult = lambda }
}

// WithScoreThreshold drops results less similar to the query than threshold.
func WithScoreThreshold(threshold float64) SearchOption {
	return func(p *searchParams) { p.scoreThreshold = threshold }
}

// WithFilter restricts results to nodes whose metadata matches filter.
func WithFilter(filter map[string]any) SearchOption {
	return func(p *searchParams) { p.filter = filter }
}

// WithInitialRoots seeds MMR traversal with the neighbourhoods of ids.
func WithInitialRoots(ids ...string) SearchOption {
	return func(p *searchParams) { p.initialRoots = ids }
}

func defaultSearchParams(t SearchType) searchParams {
	mmr := DefaultMMROptions()
	p := searchParams{
		k:              4,
		depth:          0,
		fetchK:         mmr.FetchK,
		adjacentK:      mmr.AdjacentK,
		lambdaMult:     mmr.LambdaMult,
		scoreThreshold: math.Inf(-1),
	}
	switch t {
	case SearchTraversal:
		p.depth = DefaultTraversalOptions().Depth
	case SearchMMRTraversal:
		p.depth = mmr.Depth
	case SearchMMR:
		p.fetchK = 20
	}
	return p
}

// Search runs the named strategy with its defaults overridden by opts.
func (s *Store) Search(ctx context.Context, query string, searchType SearchType, opts ...SearchOption) ([]Node, error) {
	p := defaultSearchParams(searchType)
	for _, opt := range opts {
		opt(&p)
	}

	switch searchType {
	case SearchSimilarity:
		return s.SimilaritySearch(ctx, query, p.k, p.filter)

	case SearchSimilarityScoreThreshold:
		scored, err := s.SimilaritySearchWithThreshold(ctx, query, p.k, p.scoreThreshold, p.filter)
		if err != nil {
			return nil, err
		}
		nodes := make([]Node, len(scored))
		for i, sn := range scored {
			nodes[i] = sn.Node
		}
		return nodes, nil

	case SearchMMR:
		if p.depth > 0 {
			s.log().WarnWithContext(ctx, "mmr search ignores depth, use mmr_traversal to follow edges", nil, map[string]interface{}{
				"depth": p.depth,
			})
		}
		return s.MaxMarginalRelevanceSearch(ctx, query, p.k, p.fetchK, p.lambdaMult)

	case SearchTraversal:
		return s.TraversalSearch(ctx, query, TraversalOptions{K: p.k, Depth: p.depth, Filter: p.filter})

	case SearchMMRTraversal:
		return s.MMRTraversalSearch(ctx, query, MMROptions{
			InitialRoots:   p.initialRoots,
			K:              p.k,
			Depth:          p.depth,
			FetchK:         p.fetchK,
			AdjacentK:      p.adjacentK,
			LambdaMult:     p.lambdaMult,
			ScoreThreshold: p.scoreThreshold,
			Filter:         p.filter,
		})

	default:
		return nil, unknownSearchType(searchType)
	}
}

// Valid reports whether t names a strategy Search supports.
func (t SearchType) Valid() bool {
	switch t {
	case SearchSimilarity, SearchSimilarityScoreThreshold, SearchMMR, SearchTraversal, SearchMMRTraversal:
		return true
	}
	return false
}

func unknownSearchType(t SearchType) error {
	return fmt.Errorf("%w: %q, expected similarity, similarity_score_threshold, mmr, traversal or mmr_traversal",
		ErrUnknownSearchType, t)
}

// Retriever binds a store to one search strategy.
type Retriever struct {
	store      *Store
	searchType SearchType
	opts       []SearchOption
}

// AsRetriever returns a Retriever using searchType, or traversal when empty.
// Unsupported types are rejected here rather than on the first Retrieve.
func (s *Store) AsRetriever(searchType SearchType, opts ...SearchOption) (*Retriever, error) {
	if searchType == "" {
		searchType = SearchTraversal
	}
	if !searchType.Valid() {
		return nil, unknownSearchType(searchType)
	}
	return &Retriever{store: s, searchType: searchType, opts: opts}, nil
}

// SearchType returns the strategy the retriever uses.
func (r *Retriever) SearchType() SearchType {
	return r.searchType
}

// Retrieve returns the nodes relevant to query.
func (r *Retriever) Retrieve(ctx context.Context, query string) ([]Node, error) {
	return r.store.Search(ctx, query, r.searchType, r.opts...)
}
