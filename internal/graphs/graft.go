package graphs

import (
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/evolbioinfo/gotree/io/newick"
	"github.com/evolbioinfo/gotree/tree"
)

var ErrMalformedResolvedSubtree = errors.New("malformed resolved subtree")

// Hands out fresh node ids; scoped to one Graft call
type idAllocator struct {
	next int
}

func (a *idAllocator) Next() int {
	id := a.next
	a.next++
	return id
}

// Replaces the children of node x in a copy of host with the topology of the
// resolved newick subtree, whose leaf names are the ids of x's current
// children. The host tree is never modified.
func Graft(host *GeneTree, x int, nwk string) (*GeneTree, error) {
	if !host.Has(x) {
		return nil, fmt.Errorf("%w %d", ErrUnknownNode, x)
	}
	sub, err := newick.NewParser(strings.NewReader(strings.TrimSpace(nwk))).Parse()
	if err != nil {
		return nil, fmt.Errorf("%w, %s", ErrMalformedResolvedSubtree, err.Error())
	}
	root := sub.Root()
	if root == nil {
		return nil, fmt.Errorf("%w, subtree has no root", ErrMalformedResolvedSubtree)
	}
	if err := checkTerminals(root, host.Children(x)); err != nil {
		return nil, err
	}
	out := host.Clone()
	alloc := &idAllocator{next: out.MaxID() + 1}
	out.detachChildren(x)
	clades := cladeChildren(root, nil)
	if err := out.attachClade(x, clades[0], root, alloc); err != nil {
		return nil, err
	}
	rest := clades[1:]
	switch {
	case len(rest) == 0:
	case len(rest) == 1 && rest[0].Tip():
		if err := out.attachClade(x, rest[0], root, alloc); err != nil {
			return nil, err
		}
	default:
		syn := Node{ID: alloc.Next(), Label: DuplicationTag, Event: Duplication, Length: math.NaN()}
		grafted := rest
		prev := root
		if len(rest) == 1 { // the synthetic node stands in for the single remaining clade
			syn.Length = cladeLength(rest[0])
			grafted = cladeChildren(rest[0], root)
			prev = rest[0]
		}
		if err := out.AddNode(syn); err != nil {
			return nil, err
		}
		if err := out.AddEdge(x, syn.ID); err != nil {
			return nil, err
		}
		for _, c := range grafted {
			if err := out.attachClade(syn.ID, c, prev, alloc); err != nil {
				return nil, err
			}
		}
	}
	return out, nil
}

// Leaves of the subtree must be exactly the given children ids, each once
func checkTerminals(root *tree.Node, children []int) error {
	expected := make(map[int]bool, len(children))
	for _, c := range children {
		expected[c] = false
	}
	found := 0
	type frame struct{ node, prev *tree.Node }
	stack := []frame{{node: root}}
	for len(stack) > 0 {
		cur := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		kids := cladeChildren(cur.node, cur.prev)
		if cur.prev != nil && len(kids) == 0 {
			id, err := strconv.Atoi(cur.node.Name())
			if err != nil {
				return fmt.Errorf("%w, leaf name %q is not a node id", ErrMalformedResolvedSubtree, cur.node.Name())
			}
			seen, ok := expected[id]
			if !ok {
				return fmt.Errorf("%w, leaf %d is not a child of the polytomy", ErrMalformedResolvedSubtree, id)
			}
			if seen {
				return fmt.Errorf("%w, leaf %d appears more than once", ErrMalformedResolvedSubtree, id)
			}
			expected[id] = true
			found++
		}
		for _, k := range kids {
			stack = append(stack, frame{node: k, prev: cur.node})
		}
	}
	if found != len(expected) || found == 0 {
		return fmt.Errorf("%w, subtree has %d of %d children", ErrMalformedResolvedSubtree, found, len(expected))
	}
	return nil
}

// Attaches newick clade under parent; internal clades get fresh ids and
// terminal clades map back to existing node ids
func (t *GeneTree) attachClade(parent int, clade, cladeParent *tree.Node, alloc *idAllocator) error {
	type frame struct {
		node, prev *tree.Node
		parent     int
	}
	stack := []frame{{node: clade, prev: cladeParent, parent: parent}}
	for len(stack) > 0 {
		cur := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		length := cladeLength(cur.node)
		kids := cladeChildren(cur.node, cur.prev)
		var id int
		if len(kids) == 0 {
			var err error
			if id, err = strconv.Atoi(cur.node.Name()); err != nil {
				return fmt.Errorf("%w, %s", ErrMalformedResolvedSubtree, err.Error())
			}
			if !math.IsNaN(length) {
				if err := t.UpdateNode(id, func(n *Node) { n.Length = length }); err != nil {
					return err
				}
			}
		} else {
			id = alloc.Next()
			if err := t.AddNode(Node{ID: id, Length: length}); err != nil {
				return err
			}
		}
		if err := t.AddEdge(cur.parent, id); err != nil {
			return fmt.Errorf("%w, %s", ErrMalformedResolvedSubtree, err.Error())
		}
		for i := len(kids) - 1; i >= 0; i-- {
			stack = append(stack, frame{node: kids[i], prev: cur.node, parent: id})
		}
	}
	return nil
}

func cladeChildren(n, prev *tree.Node) []*tree.Node {
	kids := make([]*tree.Node, 0, len(n.Neigh()))
	for _, nb := range n.Neigh() {
		if nb != prev {
			kids = append(kids, nb)
		}
	}
	return kids
}

func cladeLength(n *tree.Node) float64 {
	e, err := n.ParentEdge()
	if err != nil || e.Length() == tree.NIL_LENGTH {
		return math.NaN()
	}
	return e.Length()
}
