package prep

import (
	"errors"
	"fmt"
	"math"
	"strings"

	"gonum.org/v1/gonum/mat"
)

var (
	ErrShapeMismatch   = errors.New("shape mismatch")
	ErrMalformedMatrix = errors.New("malformed distance matrix")
)

// Estimated distances between the clusters of one polytomy
type DistanceMatrix struct {
	Labels []string   // taxon label for each row
	D      mat.Matrix // zero diagonal, NaN where there is no evidence
}

// Builds the k x k matrix of mean leaf-pair distances between clusters.
// Missing and NaN leaf pairs are left out of both the sum and the count;
// cluster pairs without any usable leaf pair are NaN.
func EstimateDistanceMatrix(clusters [][]string, labels []string, idx *DistanceIndex) (*DistanceMatrix, error) {
	if len(clusters) != len(labels) {
		return nil, fmt.Errorf("%w, %d clusters but %d taxon labels", ErrShapeMismatch, len(clusters), len(labels))
	}
	k := len(clusters)
	if k == 0 {
		return nil, fmt.Errorf("%w, no clusters", ErrShapeMismatch)
	}
	d := mat.NewSymDense(k, nil)
	for i := range k {
		for j := i + 1; j < k; j++ {
			total := len(clusters[i]) * len(clusters[j])
			numerator := 0.0
			for _, zi := range clusters[i] {
				for _, zj := range clusters[j] {
					if v, ok := idx.Usable(zi, zj); ok {
						numerator += v
					} else {
						total--
					}
				}
			}
			if total > 0 {
				d.SetSym(i, j, numerator/float64(total))
			} else {
				d.SetSym(i, j, math.NaN())
			}
		}
	}
	return &DistanceMatrix{Labels: labels, D: d}, nil
}

// Wraps an existing matrix (e.g. for raw, non-estimated distances)
func NewDistanceMatrix(d mat.Matrix, labels []string) *DistanceMatrix {
	return &DistanceMatrix{Labels: labels, D: d}
}

func (m *DistanceMatrix) Size() int {
	n, _ := m.D.Dims()
	return n
}

func (m *DistanceMatrix) At(i, j int) float64 {
	return m.D.At(i, j)
}

// True if every off-diagonal entry is NaN (a star with no evidence)
func (m *DistanceMatrix) Uninformative() bool {
	n := m.Size()
	for i := range n {
		for j := i + 1; j < n; j++ {
			if !math.IsNaN(m.At(i, j)) {
				return false
			}
		}
	}
	return true
}

// Number of taxa with at least one defined distance to another taxon
func (m *DistanceMatrix) InformativeTaxa() int {
	n, count := m.Size(), 0
	for i := range n {
		for j := range n {
			if i != j && !math.IsNaN(m.At(i, j)) {
				count++
				break
			}
		}
	}
	return count
}

// Checks labels, diagonal, symmetry and value range
func (m *DistanceMatrix) Validate() error {
	if m == nil || m.D == nil {
		return fmt.Errorf("%w, nil matrix", ErrMalformedMatrix)
	}
	r, c := m.D.Dims()
	if r != c {
		return fmt.Errorf("%w, matrix is %dx%d", ErrMalformedMatrix, r, c)
	}
	if len(m.Labels) != r {
		return fmt.Errorf("%w, %d labels for %d rows", ErrMalformedMatrix, len(m.Labels), r)
	}
	seen := make(map[string]bool, r)
	for _, l := range m.Labels {
		if seen[l] {
			return fmt.Errorf("%w, duplicate label %s", ErrMalformedMatrix, l)
		}
		seen[l] = true
	}
	for i := range r {
		if m.At(i, i) != 0 {
			return fmt.Errorf("%w, diagonal entry %d is %v", ErrMalformedMatrix, i, m.At(i, i))
		}
		for j := i + 1; j < r; j++ {
			a, b := m.At(i, j), m.At(j, i)
			switch {
			case math.IsNaN(a) != math.IsNaN(b) || (!math.IsNaN(a) && a != b):
				return fmt.Errorf("%w, entries (%d,%d) and (%d,%d) differ", ErrMalformedMatrix, i, j, j, i)
			case math.IsInf(a, 0) || a < 0:
				return fmt.Errorf("%w, entry (%d,%d) is %v", ErrMalformedMatrix, i, j, a)
			}
		}
	}
	return nil
}

func (m *DistanceMatrix) String() string {
	var b strings.Builder
	fmt.Fprintf(&b, "Taxa for matrix D: %v\n", m.Labels)
	fmt.Fprintf(&b, "%v", mat.Formatted(m.D, mat.Squeeze()))
	return b.String()
}
