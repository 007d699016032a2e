package infer

import (
	"errors"
	"fmt"
	"math"

	"github.com/evolbioinfo/gotree/tree"
	"gonum.org/v1/gonum/mat"

	pr "github.com/jsdoublel/polynj/internal/prep"
)

var ErrInsufficientEvidence = errors.New("insufficient evidence")

// NaN-tolerant neighbor joining state. Joined clusters reuse the row of the
// lower index; inactive rows are skipped.
type njState struct {
	d      *mat.SymDense
	nodes  []*tree.Node
	active []bool
	n      int // number of active clusters
	tre    *tree.Tree
}

// Resolves the polytomy described by m into a binary tree. The returned
// newick string has the taxon labels of m as leaves and a root named attach.
func Resolve(m *pr.DistanceMatrix, attach string) (string, error) {
	if err := m.Validate(); err != nil {
		return "", err
	}
	k := m.Size()
	tre := tree.NewTree()
	root := tre.NewNode()
	root.SetName(attach)
	tre.SetRoot(root)
	switch {
	case k == 0:
		return "", fmt.Errorf("%w, empty matrix", pr.ErrMalformedMatrix)
	case k == 1:
		leaf := tre.NewNode()
		leaf.SetName(m.Labels[0])
		tre.ConnectNodes(root, leaf)
		return tre.Newick(), nil
	case k == 2:
		d := m.At(0, 1)
		for _, l := range m.Labels {
			leaf := tre.NewNode()
			leaf.SetName(l)
			e := tre.ConnectNodes(root, leaf)
			if !math.IsNaN(d) {
				e.SetLength(d / 2)
			}
		}
		return tre.Newick(), nil
	}
	if m.InformativeTaxa() < 2 {
		return "", fmt.Errorf("%w, %d taxa and no usable distances", ErrInsufficientEvidence, k)
	}
	nj := newNJState(m, tre)
	for nj.n > 3 {
		nj.join()
	}
	nj.finish(root)
	return tre.Newick(), nil
}

func newNJState(m *pr.DistanceMatrix, tre *tree.Tree) *njState {
	k := m.Size()
	nj := &njState{
		d:      mat.NewSymDense(k, nil),
		nodes:  make([]*tree.Node, k),
		active: make([]bool, k),
		n:      k,
		tre:    tre,
	}
	for i := range k {
		for j := i + 1; j < k; j++ {
			nj.d.SetSym(i, j, m.At(i, j))
		}
		nj.nodes[i] = tre.NewNode()
		nj.nodes[i].SetName(m.Labels[i])
		nj.active[i] = true
	}
	return nj
}

// Mean of the defined distances from i to the other active clusters times
// (n-1); zero for rows without evidence
func (nj *njState) rowSum(i int) float64 {
	sum, count := 0.0, 0
	for j := range nj.active {
		if j == i || !nj.active[j] {
			continue
		}
		if v := nj.d.At(i, j); !math.IsNaN(v) {
			sum += v
			count++
		}
	}
	if count == 0 {
		return 0
	}
	return sum / float64(count) * float64(nj.n-1)
}

// Picks the pair minimizing Q among pairs with a defined distance. ok is
// false when no active pair has one.
func (nj *njState) pick(r []float64) (bi, bj int, ok bool) {
	best := math.Inf(1)
	for i := range nj.active {
		if !nj.active[i] {
			continue
		}
		for j := i + 1; j < len(nj.active); j++ {
			if !nj.active[j] {
				continue
			}
			dij := nj.d.At(i, j)
			if math.IsNaN(dij) {
				continue
			}
			if q := float64(nj.n-2)*dij - r[i] - r[j]; q < best {
				best, bi, bj, ok = q, i, j, true
			}
		}
	}
	return bi, bj, ok
}

// first two active clusters, joined when nothing else is known
func (nj *njState) fallback() (int, int) {
	pair := make([]int, 0, 2)
	for i, a := range nj.active {
		if a {
			pair = append(pair, i)
			if len(pair) == 2 {
				break
			}
		}
	}
	return pair[0], pair[1]
}

func (nj *njState) join() {
	r := make([]float64, len(nj.active))
	for i, a := range nj.active {
		if a {
			r[i] = nj.rowSum(i)
		}
	}
	i, j, ok := nj.pick(r)
	var li, lj float64
	dij := math.NaN()
	if ok {
		dij = nj.d.At(i, j)
		li = dij/2 + (r[i]-r[j])/(2*float64(nj.n-2))
		lj = dij - li
		li, lj = math.Max(li, 0), math.Max(lj, 0)
	} else {
		i, j = nj.fallback()
	}
	u := nj.tre.NewNode()
	nj.tre.ConnectNodes(u, nj.nodes[i]).SetLength(li)
	nj.tre.ConnectNodes(u, nj.nodes[j]).SetLength(lj)
	for k, a := range nj.active {
		if !a || k == i || k == j {
			continue
		}
		dik, djk := nj.d.At(i, k), nj.d.At(j, k)
		var duk float64
		switch {
		case !math.IsNaN(dik) && !math.IsNaN(djk) && !math.IsNaN(dij):
			duk = (dik + djk - dij) / 2
		case !math.IsNaN(dik):
			duk = math.Max(dik-li, 0)
		case !math.IsNaN(djk):
			duk = math.Max(djk-lj, 0)
		default:
			duk = math.NaN()
		}
		nj.d.SetSym(i, k, duk)
	}
	nj.nodes[i] = u
	nj.nodes[j] = nil
	nj.active[j] = false
	nj.n--
}

// Connects the last three clusters to the root with three-point lengths
func (nj *njState) finish(root *tree.Node) {
	last := make([]int, 0, 3)
	for i, a := range nj.active {
		if a {
			last = append(last, i)
		}
	}
	a, b, c := last[0], last[1], last[2]
	dab, dac, dbc := nj.d.At(a, b), nj.d.At(a, c), nj.d.At(b, c)
	var lengths [3]float64
	if !math.IsNaN(dab) && !math.IsNaN(dac) && !math.IsNaN(dbc) {
		lengths = [3]float64{(dab + dac - dbc) / 2, (dab + dbc - dac) / 2, (dac + dbc - dab) / 2}
	} else {
		for x, i := range last {
			lengths[x] = halfMeanDefined(nj.d, i, last)
		}
	}
	for _, x := range outgroupFirst(nj.d, last) {
		nj.tre.ConnectNodes(root, nj.nodes[last[x]]).SetLength(math.Max(lengths[x], 0))
	}
}

// Order of the last three clusters with the one outside the closest defined
// pair first. When rooted, the first child of the root stays on its own and
// the other two are grouped.
func outgroupFirst(d *mat.SymDense, last []int) [3]int {
	pairs := [3][3]int{{0, 1, 2}, {0, 2, 1}, {1, 2, 0}} // pair, then the remaining cluster
	best, order := math.Inf(1), [3]int{0, 1, 2}
	for _, p := range pairs {
		if v := d.At(last[p[0]], last[p[1]]); !math.IsNaN(v) && v < best {
			best, order = v, [3]int{p[2], p[0], p[1]}
		}
	}
	return order
}

func halfMeanDefined(d *mat.SymDense, i int, among []int) float64 {
	sum, count := 0.0, 0
	for _, j := range among {
		if j == i {
			continue
		}
		if v := d.At(i, j); !math.IsNaN(v) {
			sum += v
			count++
		}
	}
	if count == 0 {
		return 0
	}
	return sum / float64(count) / 2
}
