// Package storetest holds checks every graphstore.Backend must pass, so the
// in-memory backend and the Qdrant adapter are held to the same behaviour.
package storetest

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Aleph-Alpha/endpoint-embeddings/v1/graphstore"
)

// FilterCase is one metadata filter and the node IDs it selects from
// FilterNodes. An empty Want with WantErr expects ErrUnsupportedFilter.
type FilterCase struct {
	Name    string
	Filter  map[string]any
	Want    []string
	WantErr bool
}

// FilterNodes is the data set FilterCases run against.
func FilterNodes() []graphstore.StoredNode {
	return []graphstore.StoredNode{
		{Node: graphstore.Node{ID: "go-2020", Text: "go-2020", Metadata: map[string]any{
			"year": 2020, "tags": []string{"go", "ml"}, "lang": "en", "draft": false,
		}}, Vector: []float64{1, 0}},
		{Node: graphstore.Node{ID: "rust-2021", Text: "rust-2021", Metadata: map[string]any{
			"year": int64(2021), "tags": []any{"rust"}, "lang": "de", "draft": true,
		}}, Vector: []float64{0.9, 0.1}},
		{Node: graphstore.Node{ID: "untagged-1999", Text: "untagged-1999", Metadata: map[string]any{
			"year": 1999,
		}}, Vector: []float64{0.8, 0.2}},
	}
}

// FilterCases lists the shared metadata filter semantics.
func FilterCases() []FilterCase {
	return []FilterCase{
		{Name: "int", Filter: map[string]any{"year": 2020}, Want: []string{"go-2020"}},
		{Name: "int64", Filter: map[string]any{"year": int64(2020)}, Want: []string{"go-2020"}},
		{Name: "integral float", Filter: map[string]any{"year": float64(2020)}, Want: []string{"go-2020"}},
		{Name: "stored int64", Filter: map[string]any{"year": 2021}, Want: []string{"rust-2021"}},
		{Name: "int any", Filter: map[string]any{"year": []int{2020, 1999}}, Want: []string{"go-2020", "untagged-1999"}},
		{Name: "string in stored list", Filter: map[string]any{"tags": "go"}, Want: []string{"go-2020"}},
		{Name: "string any", Filter: map[string]any{"tags": []string{"go"}}, Want: []string{"go-2020"}},
		{Name: "string any across nodes", Filter: map[string]any{"tags": []string{"rust", "ml"}}, Want: []string{"go-2020", "rust-2021"}},
		{Name: "bool", Filter: map[string]any{"draft": true}, Want: []string{"rust-2021"}},
		{Name: "conjunction", Filter: map[string]any{"lang": "en", "year": 2020}, Want: []string{"go-2020"}},
		{Name: "conjunction without match", Filter: map[string]any{"lang": "de", "year": 2020}, Want: []string{}},
		{Name: "not includes missing key", Filter: map[string]any{"lang": graphstore.Not{Value: "de"}}, Want: []string{"go-2020", "untagged-1999"}},
		{Name: "not any", Filter: map[string]any{"lang": graphstore.Not{Value: []string{"de", "en"}}}, Want: []string{"untagged-1999"}},
		{Name: "not int", Filter: map[string]any{"year": graphstore.Not{Value: float64(1999)}}, Want: []string{"go-2020", "rust-2021"}},
		{Name: "fraction", Filter: map[string]any{"year": 2020.5}, WantErr: true},
		{Name: "float beyond int64", Filter: map[string]any{"year": 1e19}, WantErr: true},
		{Name: "nested not", Filter: map[string]any{"year": graphstore.Not{Value: graphstore.Not{Value: 1}}}, WantErr: true},
		{Name: "map", Filter: map[string]any{"year": map[string]any{"gte": 2000}}, WantErr: true},
	}
}

// RunFilterTests upserts FilterNodes into backend and checks every FilterCase
// through Search.
func RunFilterTests(t *testing.T, backend graphstore.Backend) {
	t.Helper()
	ctx := context.Background()

	nodes := FilterNodes()
	require.NoError(t, backend.Upsert(ctx, nodes))

	for _, tc := range FilterCases() {
		t.Run(tc.Name, func(t *testing.T) {
			hits, err := backend.Search(ctx, []float64{1, 0}, len(nodes), tc.Filter)
			if tc.WantErr {
				assert.ErrorIs(t, err, graphstore.ErrUnsupportedFilter)
				return
			}
			require.NoError(t, err)

			got := make([]string, len(hits))
			for i, h := range hits {
				got[i] = h.ID
			}
			assert.ElementsMatch(t, tc.Want, got)
		})
	}
}
