package graphstore

import "math"

// mmrSelector picks nodes by maximal marginal relevance:
//
//	score = lambda*sim(query, c) - (1-lambda)*max(sim(c, s) for s in selected)
//
// Candidates below the similarity threshold are never admitted.
type mmrSelector struct {
	query     []float64
	lambda    float64
	threshold float64

	candidates map[string]*mmrCandidate
	order      []string

	selected    []StoredNode
	selectedIDs map[string]struct{}
}

type mmrCandidate struct {
	node       StoredNode
	similarity float64
	redundancy float64
}

func newMMRSelector(query []float64, lambda, threshold float64) *mmrSelector {
	return &mmrSelector{
		query:       query,
		lambda:      lambda,
		threshold:   threshold,
		candidates:  make(map[string]*mmrCandidate),
		selectedIDs: make(map[string]struct{}),
	}
}

// add admits new candidates. Known or already selected nodes are ignored.
func (s *mmrSelector) add(hits []Hit) {
	for _, h := range hits {
		if _, ok := s.selectedIDs[h.ID]; ok {
			continue
		}
		if _, ok := s.candidates[h.ID]; ok {
			continue
		}

		sim := cosineSimilarity(s.query, h.Vector)
		if sim < s.threshold {
			continue
		}

		c := &mmrCandidate{node: h.StoredNode, similarity: sim}
		if len(s.selected) > 0 {
			c.redundancy = math.Inf(-1)
			for _, sel := range s.selected {
				if r := cosineSimilarity(sel.Vector, h.Vector); r > c.redundancy {
					c.redundancy = r
				}
			}
		}
		s.candidates[h.ID] = c
		s.order = append(s.order, h.ID)
	}
}

func (s *mmrSelector) score(c *mmrCandidate) float64 {
	if len(s.selected) == 0 {
		return s.lambda * c.similarity
	}
	return s.lambda*c.similarity - (1-s.lambda)*c.redundancy
}

// pop selects the best remaining candidate. Ties go to the earliest added.
func (s *mmrSelector) pop() (StoredNode, bool) {
	bestIdx := -1
	var best *mmrCandidate
	var bestScore float64

	for i, id := range s.order {
		c := s.candidates[id]
		if sc := s.score(c); best == nil || sc > bestScore {
			best, bestIdx, bestScore = c, i, sc
		}
	}
	if best == nil {
		return StoredNode{}, false
	}

	s.order = append(s.order[:bestIdx], s.order[bestIdx+1:]...)
	delete(s.candidates, best.node.ID)

	first := len(s.selected) == 0
	s.selected = append(s.selected, best.node)
	s.selectedIDs[best.node.ID] = struct{}{}

	for _, id := range s.order {
		c := s.candidates[id]
		r := cosineSimilarity(best.node.Vector, c.node.Vector)
		if first || r > c.redundancy {
			c.redundancy = r
		}
	}
	return best.node, true
}

// contains reports whether id is a pending candidate or already selected.
func (s *mmrSelector) contains(id string) bool {
	if _, ok := s.selectedIDs[id]; ok {
		return true
	}
	_, ok := s.candidates[id]
	return ok
}
