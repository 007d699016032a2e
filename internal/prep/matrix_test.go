package prep

import (
	"errors"
	"math"
	"testing"

	"gonum.org/v1/gonum/mat"
)

func makeIndex(dists map[[2]string]float64) *DistanceIndex {
	idx := NewDistanceIndex()
	for pair, d := range dists {
		idx.Set(pair[0], pair[1], d)
	}
	return idx
}

func TestEstimateDistanceMatrix(t *testing.T) {
	nan := math.NaN()
	testCases := []struct {
		name          string
		clusters      [][]string
		labels        []string
		dists         map[[2]string]float64
		expected      [][]float64
		uninformative bool
	}{
		{
			name:     "all missing",
			clusters: [][]string{{"A"}, {"B"}, {"C"}, {"D"}},
			labels:   []string{"y1", "y2", "y3", "y4"},
			dists: map[[2]string]float64{
				{"A", "B"}: nan, {"A", "C"}: nan, {"A", "D"}: nan,
				{"B", "C"}: nan, {"B", "D"}: nan, {"C", "D"}: nan,
			},
			expected: [][]float64{
				{0, nan, nan, nan},
				{nan, 0, nan, nan},
				{nan, nan, 0, nan},
				{nan, nan, nan, 0},
			},
			uninformative: true,
		},
		{
			name:     "partial evidence",
			clusters: [][]string{{"A", "B"}, {"C"}, {"D"}},
			labels:   []string{"0", "1", "2"},
			dists: map[[2]string]float64{
				{"A", "B"}: 2.0, {"A", "C"}: 3.0, {"B", "C"}: nan,
				{"A", "D"}: 4.0, {"B", "D"}: 5.0,
				{"X", "Y"}: 10.0, {"Z", "A"}: 1.5,
			},
			expected: [][]float64{
				{0, 3.0, 4.5},
				{3.0, 0, nan},
				{4.5, nan, 0},
			},
		},
		{
			name:     "mean over pairs",
			clusters: [][]string{{"A", "B"}, {"C", "D"}},
			labels:   []string{"0", "1"},
			dists: map[[2]string]float64{
				{"A", "C"}: 1, {"A", "D"}: 2, {"B", "C"}: 3, {"D", "B"}: 6,
			},
			expected: [][]float64{
				{0, 3},
				{3, 0},
			},
		},
		{
			name:     "single cluster",
			clusters: [][]string{{"A", "B"}},
			labels:   []string{"0"},
			expected: [][]float64{{0}},
		},
	}
	for _, test := range testCases {
		t.Run(test.name, func(t *testing.T) {
			m, err := EstimateDistanceMatrix(test.clusters, test.labels, makeIndex(test.dists))
			if err != nil {
				t.Fatalf("unexpected error %s", err)
			}
			if err := m.Validate(); err != nil {
				t.Errorf("estimated matrix is invalid: %s", err)
			}
			if m.Size() != len(test.expected) {
				t.Fatalf("matrix is %dx%d, expected %d", m.Size(), m.Size(), len(test.expected))
			}
			for i := range test.expected {
				for j := range test.expected[i] {
					if !floatEqual(m.At(i, j), test.expected[i][j]) {
						t.Errorf("D[%d,%d] = %f, expected %f", i, j, m.At(i, j), test.expected[i][j])
					}
				}
			}
			if m.Uninformative() != test.uninformative && m.Size() > 1 {
				t.Errorf("Uninformative is %t, expected %t", m.Uninformative(), test.uninformative)
			}
		})
	}
}

func TestEstimateDistanceMatrix_ShapeMismatch(t *testing.T) {
	testCases := []struct {
		name     string
		clusters [][]string
		labels   []string
	}{
		{name: "fewer labels", clusters: [][]string{{"A"}, {"B"}}, labels: []string{"0"}},
		{name: "no clusters", clusters: [][]string{}, labels: []string{}},
	}
	for _, test := range testCases {
		t.Run(test.name, func(t *testing.T) {
			m, err := EstimateDistanceMatrix(test.clusters, test.labels, NewDistanceIndex())
			if !errors.Is(err, ErrShapeMismatch) {
				t.Errorf("got error %v, expected %v", err, ErrShapeMismatch)
			}
			if m != nil {
				t.Errorf("expected no matrix")
			}
		})
	}
}

func TestInformativeTaxa(t *testing.T) {
	nan := math.NaN()
	d := mat.NewSymDense(4, []float64{
		0, 1, nan, nan,
		1, 0, nan, nan,
		nan, nan, 0, nan,
		nan, nan, nan, 0,
	})
	m := NewDistanceMatrix(d, []string{"a", "b", "c", "d"})
	if n := m.InformativeTaxa(); n != 2 {
		t.Errorf("%d informative taxa, expected 2", n)
	}
	if m.Uninformative() {
		t.Errorf("matrix with one defined pair is not uninformative")
	}
}

func TestDistanceMatrix_Validate(t *testing.T) {
	nan := math.NaN()
	testCases := []struct {
		name  string
		m     *DistanceMatrix
		valid bool
	}{
		{
			name:  "valid with missing",
			m:     NewDistanceMatrix(mat.NewDense(2, 2, []float64{0, nan, nan, 0}), []string{"a", "b"}),
			valid: true,
		},
		{
			name: "half missing",
			m:    NewDistanceMatrix(mat.NewDense(2, 2, []float64{0, nan, 1, 0}), []string{"a", "b"}),
		},
		{
			name: "not square",
			m:    NewDistanceMatrix(mat.NewDense(2, 3, nil), []string{"a", "b"}),
		},
		{
			name: "infinite",
			m:    NewDistanceMatrix(mat.NewDense(2, 2, []float64{0, math.Inf(1), math.Inf(1), 0}), []string{"a", "b"}),
		},
		{
			name: "nil",
			m:    &DistanceMatrix{},
		},
	}
	for _, test := range testCases {
		t.Run(test.name, func(t *testing.T) {
			err := test.m.Validate()
			if test.valid && err != nil {
				t.Errorf("unexpected error %s", err)
			}
			if !test.valid && !errors.Is(err, ErrMalformedMatrix) {
				t.Errorf("got error %v, expected %v", err, ErrMalformedMatrix)
			}
		})
	}
}

func floatEqual(a, b float64) bool {
	if math.IsNaN(a) || math.IsNaN(b) {
		return math.IsNaN(a) && math.IsNaN(b)
	}
	return math.Abs(a-b) < 1e-9
}
