package vectorindex

import "math"

// Config holds HNSW graph construction/search parameters. Adapted
// from the teacher's pkg/hnsw/config.go, with DistanceMetric promoted
// into the struct proper — the teacher's index.go already reads
// idx.config.DistanceMetric despite its own Config never declaring
// the field, an inconsistency this version fixes rather than carries
// forward.
type Config struct {
	// M is the maximum number of connections per node at layers > 0.
	M int

	// MMax0 is the maximum number of connections at layer 0.
	MMax0 int

	// EfConstruction is the size of the dynamic candidate list during
	// construction.
	EfConstruction int

	// EfSearch is the default size of the dynamic candidate list
	// during search.
	EfSearch int

	// Dimension is the vector dimension every member of the
	// collection must match.
	Dimension int

	// ML is the level generation factor (1/ln(M)).
	ML float64

	// DistanceMetric is the distance function the graph is built and
	// searched with.
	DistanceMetric DistanceMetric

	// UseHeuristic enables the HNSW paper's heuristic neighbor
	// selection for better graph quality at some construction cost.
	UseHeuristic bool

	// ExtendCandidates extends candidates with their neighbors during
	// heuristic selection; recommended whenever UseHeuristic is true.
	ExtendCandidates bool
}

// DefaultConfig returns sensible defaults for a collection of the
// given dimension and metric.
func DefaultConfig(dimension int, metric DistanceMetric) Config {
	m := 16
	return Config{
		M:              m,
		MMax0:          m * 2,
		EfConstruction: 200,
		EfSearch:       50,
		Dimension:      dimension,
		ML:             1.0 / math.Log(float64(m)),
		DistanceMetric: metric,
	}
}
