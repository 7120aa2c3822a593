package graphstore

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"gonum.org/v1/gonum/blas/gonum"
)

var blas = gonum.Implementation{}

// MemoryBackend is an in-process Backend doing brute-force cosine search.
// It is safe for concurrent use.
type MemoryBackend struct {
	mu    sync.RWMutex
	nodes map[string]StoredNode
	order []string
}

// NewMemoryBackend returns an empty backend.
func NewMemoryBackend() *MemoryBackend {
	return &MemoryBackend{nodes: make(map[string]StoredNode)}
}

// Len returns the number of stored nodes.
func (m *MemoryBackend) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.nodes)
}

func (m *MemoryBackend) Upsert(_ context.Context, nodes []StoredNode) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, n := range nodes {
		if n.ID == "" {
			return fmt.Errorf("%w: node without id", ErrInvalidArgument)
		}
		if _, ok := m.nodes[n.ID]; !ok {
			m.order = append(m.order, n.ID)
		}
		m.nodes[n.ID] = n
	}
	return nil
}

func (m *MemoryBackend) Search(_ context.Context, vector []float64, k int, filter map[string]any) ([]Hit, error) {
	if k <= 0 {
		return nil, nil
	}
	if err := ValidateFilter(filter); err != nil {
		return nil, err
	}

	m.mu.RLock()
	defer m.mu.RUnlock()

	return m.rank(vector, k, func(n StoredNode) bool {
		return MatchesFilter(n.Metadata, filter)
	}), nil
}

func (m *MemoryBackend) Adjacent(_ context.Context, links []Link, vector []float64, k int, filter map[string]any) ([]Hit, error) {
	wanted := make(map[string]struct{}, len(links))
	for _, l := range links {
		if l.Outgoing() {
			wanted[l.Key()] = struct{}{}
		}
	}
	if len(wanted) == 0 {
		return nil, nil
	}
	if err := ValidateFilter(filter); err != nil {
		return nil, err
	}

	m.mu.RLock()
	defer m.mu.RUnlock()

	return m.rank(vector, k, func(n StoredNode) bool {
		if !MatchesFilter(n.Metadata, filter) {
			return false
		}
		for _, l := range n.Links {
			if _, ok := wanted[l.Key()]; ok && l.Incoming() {
				return true
			}
		}
		return false
	}), nil
}

func (m *MemoryBackend) Get(_ context.Context, ids []string) ([]StoredNode, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make([]StoredNode, 0, len(ids))
	for _, id := range ids {
		if n, ok := m.nodes[id]; ok {
			out = append(out, n)
		}
	}
	return out, nil
}

func (m *MemoryBackend) Delete(_ context.Context, ids []string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	removed := make(map[string]struct{}, len(ids))
	for _, id := range ids {
		if _, ok := m.nodes[id]; ok {
			delete(m.nodes, id)
			removed[id] = struct{}{}
		}
	}
	if len(removed) == 0 {
		return nil
	}

	kept := m.order[:0]
	for _, id := range m.order {
		if _, ok := removed[id]; !ok {
			kept = append(kept, id)
		}
	}
	m.order = kept
	return nil
}

// rank scores the nodes accepted by keep, best first. Ties keep insertion
// order. Caller holds the read lock.
func (m *MemoryBackend) rank(vector []float64, k int, keep func(StoredNode) bool) []Hit {
	var hits []Hit
	for _, id := range m.order {
		n := m.nodes[id]
		if !keep(n) {
			continue
		}
		hits = append(hits, Hit{StoredNode: n, Score: cosineSimilarity(vector, n.Vector)})
	}

	sort.SliceStable(hits, func(i, j int) bool { return hits[i].Score > hits[j].Score })
	if k > 0 && len(hits) > k {
		hits = hits[:k]
	}
	return hits
}

// cosineSimilarity returns 0 for mismatched or zero-length vectors.
func cosineSimilarity(a, b []float64) float64 {
	n := len(a)
	if n == 0 || n != len(b) {
		return 0
	}
	na := blas.Dnrm2(n, a, 1)
	nb := blas.Dnrm2(n, b, 1)
	if na == 0 || nb == 0 {
		return 0
	}
	return blas.Ddot(n, a, 1, b, 1) / (na * nb)
}
