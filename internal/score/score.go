// Package implementing rooted-triplet scoring of gene trees against a ground
// truth tree
package score

import (
	"math"
	"slices"
	"strings"

	gr "github.com/jsdoublel/polynj/internal/graphs"
)

// Rooted triplet: A and B (A < B) are closer to each other than to Out
type Triplet struct {
	A, B, Out string
}

type TripletSet map[Triplet]struct{}

// Makes canonical triplet (ingroup sorted)
func NewTriplet(in1, in2, out string) Triplet {
	if in2 < in1 {
		in1, in2 = in2, in1
	}
	return Triplet{A: in1, B: in2, Out: out}
}

// Sorted taxa of the triplet, regardless of grouping
func (tr Triplet) Taxa() [3]string {
	taxa := [3]string{tr.A, tr.B, tr.Out}
	slices.Sort(taxa[:])
	return taxa
}

func (tr Triplet) String() string {
	return "(" + tr.A + "," + tr.B + ")," + tr.Out
}

// Triplets witnessed at every speciation node of the tree. Loss leaves are
// ignored.
func Triplets(t *gr.GeneTree) TripletSet {
	li := gr.NewLabelIndex(t, gr.LossLabel)
	leafsets := t.Leafsets(li)
	triplets := make(TripletSet)
	t.PostOrder(func(id int) {
		n, _ := t.Node(id)
		if t.IsLeaf(id) || n.Event != gr.Speciation {
			return
		}
		children := t.Children(id)
		for i := range children {
			for j := i + 1; j < len(children); j++ {
				x0 := li.Names(leafsets[children[i]])
				x1 := li.Names(leafsets[children[j]])
				tripletsFromGroups(x0, x1, triplets)
				tripletsFromGroups(x1, x0, triplets)
			}
		}
	})
	return triplets
}

// one outgroup taxon and two distinct ingroup taxa
func tripletsFromGroups(out, in []string, triplets TripletSet) {
	for _, o := range out {
		for p := range in {
			for q := p + 1; q < len(in); q++ {
				if o != in[p] && o != in[q] && in[p] != in[q] {
					triplets[NewTriplet(in[p], in[q], o)] = struct{}{}
				}
			}
		}
	}
}

// Counts from comparing a candidate tree with the ground truth
type Comparison struct {
	TP            int // triplets in both
	FP            int // only in candidate
	FN            int // only in ground truth
	Contradictory int // FP whose three taxa are grouped differently in the ground truth
}

type Metrics struct {
	Precision     float64
	Recall        float64
	Contradiction float64
}

// Compares candidate against ground truth (argument order matters, FP and FN
// swap when the trees are swapped)
func Compare(candidate, truth *gr.GeneTree) Comparison {
	return CompareSets(Triplets(candidate), Triplets(truth))
}

func CompareSets(candidate, truth TripletSet) Comparison {
	var c Comparison
	truthTaxa := make(map[[3]string]bool, len(truth))
	for tr := range truth {
		truthTaxa[tr.Taxa()] = true
	}
	for tr := range candidate {
		if _, ok := truth[tr]; ok {
			c.TP++
			continue
		}
		c.FP++
		if truthTaxa[tr.Taxa()] {
			c.Contradictory++
		}
	}
	c.FN = len(truth) - c.TP
	return c
}

// Precision, recall and contradiction rate; NaN when undefined
func (c Comparison) Metrics() Metrics {
	return Metrics{
		Precision:     ratio(c.TP, c.TP+c.FP),
		Recall:        ratio(c.TP, c.TP+c.FN),
		Contradiction: ratio(c.Contradictory, c.TP+c.FN),
	}
}

func ratio(num, den int) float64 {
	if den == 0 {
		return math.NaN()
	}
	return float64(num) / float64(den)
}

// Copy of the tree as it is scored: every node is a speciation event and leaf
// labels drop their "prefix|" part
func ScoringView(t *gr.GeneTree) *gr.GeneTree {
	view := t.Clone()
	for _, id := range view.Nodes() {
		leaf := view.IsLeaf(id)
		if err := view.UpdateNode(id, func(n *gr.Node) {
			n.Event = gr.Speciation
			if leaf {
				n.Label = n.Label[strings.LastIndex(n.Label, "|")+1:]
			}
		}); err != nil {
			panic(err)
		}
	}
	return view
}
