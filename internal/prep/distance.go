package prep

import "math"

type pairKey struct {
	a, b string
}

func makePairKey(a, b string) pairKey {
	if b < a {
		a, b = b, a
	}
	return pairKey{a: a, b: b}
}

// Distances between unordered pairs of leaf labels. A stored NaN means the
// distance is known but unusable; an absent pair was never computed.
type DistanceIndex struct {
	dist map[pairKey]float64
}

func NewDistanceIndex() *DistanceIndex {
	return &DistanceIndex{dist: make(map[pairKey]float64)}
}

func (idx *DistanceIndex) Set(a, b string, d float64) {
	idx.dist[makePairKey(a, b)] = d
}

// Returns distance and whether the pair is present (the value may be NaN)
func (idx *DistanceIndex) Lookup(a, b string) (float64, bool) {
	d, ok := idx.dist[makePairKey(a, b)]
	return d, ok
}

// Returns distance if present and not NaN
func (idx *DistanceIndex) Usable(a, b string) (float64, bool) {
	d, ok := idx.Lookup(a, b)
	if !ok || math.IsNaN(d) {
		return 0, false
	}
	return d, true
}

func (idx *DistanceIndex) Len() int {
	return len(idx.dist)
}
