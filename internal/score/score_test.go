package score

import (
	"math"
	"reflect"
	"testing"

	gr "github.com/jsdoublel/polynj/internal/graphs"
)

func parse(t *testing.T, nwk string) *gr.GeneTree {
	t.Helper()
	gt, err := gr.ParseGeneTree(nwk)
	if err != nil {
		t.Fatalf("invalid newick tree %s; test is written wrong: %s", nwk, err)
	}
	return gt
}

func makeSet(triplets ...Triplet) TripletSet {
	set := make(TripletSet)
	for _, tr := range triplets {
		set[tr] = struct{}{}
	}
	return set
}

func TestTriplets(t *testing.T) {
	testCases := []struct {
		name     string
		tre      string
		expected TripletSet
	}{
		{
			name:     "basic",
			tre:      "((a,b)S,c)S;",
			expected: makeSet(NewTriplet("a", "b", "c")),
		},
		{
			name: "four taxa",
			tre:  "(((a,b)S,c)S,d)S;",
			expected: makeSet(
				NewTriplet("a", "b", "c"),
				NewTriplet("a", "b", "d"),
				NewTriplet("a", "c", "d"),
				NewTriplet("b", "c", "d"),
			),
		},
		{
			name: "duplication node skipped",
			tre:  "((a,b,c)D,d)S;",
			expected: makeSet(
				NewTriplet("a", "b", "d"),
				NewTriplet("a", "c", "d"),
				NewTriplet("b", "c", "d"),
			),
		},
		{
			name:     "loss leaf ignored",
			tre:      "((a,X)S,(b,c)S)S;",
			expected: makeSet(NewTriplet("b", "c", "a")),
		},
		{
			name:     "star",
			tre:      "(a,b,c)S;",
			expected: makeSet(),
		},
		{
			name:     "no speciation",
			tre:      "((a,b)D,c)D;",
			expected: makeSet(),
		},
	}
	for _, test := range testCases {
		t.Run(test.name, func(t *testing.T) {
			result := Triplets(parse(t, test.tre))
			if !reflect.DeepEqual(result, test.expected) {
				t.Errorf("actual %v != expected %v", result, test.expected)
			}
		})
	}
}

func TestNewTriplet_Symmetric(t *testing.T) {
	set := makeSet(NewTriplet("a", "b", "c"))
	if _, ok := set[NewTriplet("b", "a", "c")]; !ok {
		t.Errorf("swapping ingroup taxa changed set membership")
	}
	if _, ok := set[NewTriplet("a", "c", "b")]; ok {
		t.Errorf("different grouping should not be a member")
	}
}

func TestCompare(t *testing.T) {
	testCases := []struct {
		name      string
		candidate string
		truth     string
		expected  Comparison
		metrics   Metrics
	}{
		{
			name:      "contradiction",
			candidate: "((a,b)S,c)S;",
			truth:     "((a,c)S,b)S;",
			expected:  Comparison{TP: 0, FP: 1, FN: 1, Contradictory: 1},
			metrics:   Metrics{Precision: 0, Recall: 0, Contradiction: 1},
		},
		{
			name:      "identical",
			candidate: "(((a,b)S,c)S,d)S;",
			truth:     "(((a,b)S,c)S,d)S;",
			expected:  Comparison{TP: 4, FP: 0, FN: 0, Contradictory: 0},
			metrics:   Metrics{Precision: 1, Recall: 1, Contradiction: 0},
		},
		{
			name:      "unresolved candidate",
			candidate: "((a,b,c)S,d)S;",
			truth:     "(((a,b)S,c)S,d)S;",
			expected:  Comparison{TP: 3, FP: 0, FN: 1, Contradictory: 0},
			metrics:   Metrics{Precision: 1, Recall: 0.75, Contradiction: 0},
		},
		{
			name:      "no triplets",
			candidate: "(a,b)S;",
			truth:     "(a,b)S;",
			expected:  Comparison{},
			metrics:   Metrics{Precision: math.NaN(), Recall: math.NaN(), Contradiction: math.NaN()},
		},
	}
	for _, test := range testCases {
		t.Run(test.name, func(t *testing.T) {
			result := Compare(parse(t, test.candidate), parse(t, test.truth))
			if result != test.expected {
				t.Errorf("actual %+v != expected %+v", result, test.expected)
			}
			if m := result.Metrics(); !metricsEqual(m, test.metrics) {
				t.Errorf("metrics %+v != expected %+v", m, test.metrics)
			}
		})
	}
}

func TestCompareSets_Contradictory(t *testing.T) {
	result := CompareSets(makeSet(NewTriplet("a", "b", "c")), makeSet(NewTriplet("a", "c", "b")))
	expected := Comparison{TP: 0, FP: 1, FN: 1, Contradictory: 1}
	if result != expected {
		t.Errorf("actual %+v != expected %+v", result, expected)
	}
	m := result.Metrics()
	if m.Precision != 0 || m.Recall != 0 || m.Contradiction != 1.0 {
		t.Errorf("unexpected metrics %+v", m)
	}
}

func TestScoringView(t *testing.T) {
	tre := parse(t, "((noD_5_10_4_2|G1_1,noD_5_10_4_2|G2_2)D,noD_5_10_4_2|G3_3)D;")
	view := ScoringView(tre)
	expected := makeSet(NewTriplet("G1_1", "G2_2", "G3_3"))
	if result := Triplets(view); !reflect.DeepEqual(result, expected) {
		t.Errorf("actual %v != expected %v", result, expected)
	}
	if len(Triplets(tre)) != 0 {
		t.Errorf("ScoringView modified the input tree")
	}
	for _, l := range tre.Leaves() {
		n, _ := tre.Node(l)
		if n.Label[:4] != "noD_" {
			t.Errorf("input label changed to %s", n.Label)
		}
	}
}

func TestSummarize(t *testing.T) {
	records := []Record{
		{OG: "1", Before: Metrics{Precision: 1, Recall: 0.5, Contradiction: 0}, After: Metrics{Precision: 0.5, Recall: 0.5, Contradiction: math.NaN()}},
		{OG: "2", Before: Metrics{Precision: 0, Recall: 0.5, Contradiction: 1}, After: Metrics{Precision: 1, Recall: 1, Contradiction: math.NaN()}},
	}
	s := Summarize(records)
	expected := Summary{
		N:          2,
		MeanBefore: Metrics{Precision: 0.5, Recall: 0.5, Contradiction: 0.5},
		MeanAfter:  Metrics{Precision: 0.75, Recall: 0.75, Contradiction: math.NaN()},
	}
	if s.N != expected.N || !metricsEqual(s.MeanBefore, expected.MeanBefore) || !metricsEqual(s.MeanAfter, expected.MeanAfter) {
		t.Errorf("actual %+v != expected %+v", s, expected)
	}
}

func metricsEqual(m1, m2 Metrics) bool {
	return floatEqual(m1.Precision, m2.Precision) &&
		floatEqual(m1.Recall, m2.Recall) &&
		floatEqual(m1.Contradiction, m2.Contradiction)
}

func floatEqual(a, b float64) bool {
	if math.IsNaN(a) || math.IsNaN(b) {
		return math.IsNaN(a) && math.IsNaN(b)
	}
	return math.Abs(a-b) < 1e-9
}
