package vectorindex

// SearchResult is one match from SearchKNN: the entity's user key and
// its distance to the query vector under the collection's configured
// metric.
type SearchResult struct {
	Key      string
	Distance float32
}

// SearchKNN finds the k nearest neighbors to query using the
// collection's configured EfSearch.
func (g *graph) SearchKNN(query Vector, k int) ([]SearchResult, error) {
	return g.SearchKNNWithEf(query, k, g.config.EfSearch)
}

// SearchKNNWithEf finds the k nearest neighbors to query with a custom
// ef (candidate list size): a larger ef trades search latency for
// recall.
func (g *graph) SearchKNNWithEf(query Vector, k int, ef int) ([]SearchResult, error) {
	if query.Dimension() != g.config.Dimension {
		return nil, ErrDimensionMismatch
	}

	g.mu.RLock()
	defer g.mu.RUnlock()

	if len(g.nodes) == 0 {
		return []SearchResult{}, nil
	}

	ep := g.entryPoint
	for l := g.maxLevel; l > 0; l-- {
		ep = g.searchLayerClosest(query, ep, l)
	}

	candidates := g.searchLayer(query, ep, ef, 0)
	if len(candidates) > k {
		candidates = candidates[:k]
	}

	results := make([]SearchResult, 0, len(candidates))
	for _, id := range candidates {
		n := g.nodes[id]
		if n == nil {
			continue
		}
		results = append(results, SearchResult{Key: n.key, Distance: g.distance(query, n.vector)})
	}

	for i := 0; i < len(results)-1; i++ {
		for j := i + 1; j < len(results); j++ {
			if results[j].Distance < results[i].Distance {
				results[i], results[j] = results[j], results[i]
			}
		}
	}
	return results, nil
}
