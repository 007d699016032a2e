// Package containing the graph-like data structures used by polynj: rooted
// gene trees, polytomies and the grafting of resolved subtrees
package graphs

import (
	"errors"
	"fmt"
	"math"
	"slices"

	"github.com/bits-and-blooms/bitset"
)

const (
	LossLabel      = "X" // label reserved for gene loss leaves
	DuplicationTag = "D" // label given to synthetic duplication nodes
	SpeciationTag  = "S"
)

var (
	ErrDuplicateNode = errors.New("duplicate node id")
	ErrUnknownNode   = errors.New("unknown node id")
	ErrNotATree      = errors.New("not a rooted tree")
)

type Event uint8

const (
	OtherEvent Event = iota
	Speciation
	Duplication
)

func (e Event) String() string {
	switch e {
	case Speciation:
		return SpeciationTag
	case Duplication:
		return DuplicationTag
	default:
		return ""
	}
}

// Parse event tag (S or D); anything else is OtherEvent
func ParseEvent(s string) Event {
	switch s {
	case SpeciationTag:
		return Speciation
	case DuplicationTag:
		return Duplication
	default:
		return OtherEvent
	}
}

type Node struct {
	ID      int     // id, unique within a tree
	Label   string  // leaf label or event marker
	Event   Event   // speciation, duplication or other
	Species string  // species attribute (may be empty)
	NodeID  string  // node_id attribute carried over from the input (may be empty)
	Length  float64 // length of the edge to the parent, NaN if unknown
}

// Rooted directed tree. Children are kept in insertion order.
type GeneTree struct {
	root     int
	nodes    map[int]*Node
	children map[int][]int
	parent   map[int]int
}

func NewGeneTree() *GeneTree {
	return &GeneTree{
		root:     -1,
		nodes:    make(map[int]*Node),
		children: make(map[int][]int),
		parent:   make(map[int]int),
	}
}

// Adds node to tree; the first node added becomes the root until SetRoot is
// called.
func (t *GeneTree) AddNode(n Node) error {
	if _, ok := t.nodes[n.ID]; ok {
		return fmt.Errorf("%w %d", ErrDuplicateNode, n.ID)
	}
	t.nodes[n.ID] = &n
	if t.root < 0 {
		t.root = n.ID
	}
	return nil
}

// Connects parent to child. Returns an error if either node is missing, if the
// child already has a parent, or if the child is the root.
func (t *GeneTree) AddEdge(parentID, childID int) error {
	if _, ok := t.nodes[parentID]; !ok {
		return fmt.Errorf("%w %d", ErrUnknownNode, parentID)
	}
	if _, ok := t.nodes[childID]; !ok {
		return fmt.Errorf("%w %d", ErrUnknownNode, childID)
	}
	if p, ok := t.parent[childID]; ok {
		return fmt.Errorf("%w, node %d already has parent %d", ErrNotATree, childID, p)
	}
	if childID == t.root || parentID == childID {
		return fmt.Errorf("%w, edge %d -> %d would create a cycle", ErrNotATree, parentID, childID)
	}
	t.children[parentID] = append(t.children[parentID], childID)
	t.parent[childID] = parentID
	return nil
}

func (t *GeneTree) SetRoot(id int) error {
	if _, ok := t.nodes[id]; !ok {
		return fmt.Errorf("%w %d", ErrUnknownNode, id)
	}
	if _, ok := t.parent[id]; ok {
		return fmt.Errorf("%w, root %d has a parent", ErrNotATree, id)
	}
	t.root = id
	return nil
}

func (t *GeneTree) Root() int {
	return t.root
}

func (t *GeneTree) Len() int {
	return len(t.nodes)
}

// Returns a copy of the node
func (t *GeneTree) Node(id int) (Node, bool) {
	n, ok := t.nodes[id]
	if !ok {
		return Node{}, false
	}
	return *n, true
}

func (t *GeneTree) Has(id int) bool {
	_, ok := t.nodes[id]
	return ok
}

// Children of node (copy)
func (t *GeneTree) Children(id int) []int {
	return slices.Clone(t.children[id])
}

func (t *GeneTree) OutDegree(id int) int {
	return len(t.children[id])
}

func (t *GeneTree) Parent(id int) (int, bool) {
	p, ok := t.parent[id]
	return p, ok
}

func (t *GeneTree) IsLeaf(id int) bool {
	return len(t.children[id]) == 0
}

// Largest node id in the tree (-1 for an empty tree)
func (t *GeneTree) MaxID() int {
	m := -1
	for id := range t.nodes {
		m = max(m, id)
	}
	return m
}

// Node ids in preorder
func (t *GeneTree) Nodes() []int {
	ids := make([]int, 0, len(t.nodes))
	t.PreOrder(func(id int) bool {
		ids = append(ids, id)
		return true
	})
	return ids
}

// Leaf ids in preorder
func (t *GeneTree) Leaves() []int {
	leaves := make([]int, 0)
	t.PreOrder(func(id int) bool {
		if t.IsLeaf(id) {
			leaves = append(leaves, id)
		}
		return true
	})
	return leaves
}

// Iterative preorder from the root; returning false skips the subtree
func (t *GeneTree) PreOrder(f func(id int) bool) {
	if t.root < 0 {
		return
	}
	t.SubtreePreOrder(t.root, f)
}

func (t *GeneTree) SubtreePreOrder(start int, f func(id int) bool) {
	stack := []int{start}
	for len(stack) > 0 {
		cur := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		if !f(cur) {
			continue
		}
		c := t.children[cur]
		for i := len(c) - 1; i >= 0; i-- {
			stack = append(stack, c[i])
		}
	}
}

// Iterative postorder from the root
func (t *GeneTree) PostOrder(f func(id int)) {
	if t.root < 0 {
		return
	}
	type frame struct {
		id      int
		visited bool
	}
	stack := []frame{{id: t.root}}
	for len(stack) > 0 {
		top := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		if top.visited {
			f(top.id)
			continue
		}
		stack = append(stack, frame{id: top.id, visited: true})
		c := t.children[top.id]
		for i := len(c) - 1; i >= 0; i-- {
			stack = append(stack, frame{id: c[i]})
		}
	}
}

// Sorted, de-duplicated leaf labels below (and including) node id
func (t *GeneTree) InducedLabels(id int) []string {
	labels := make([]string, 0)
	t.SubtreePreOrder(id, func(cur int) bool {
		if t.IsLeaf(cur) {
			labels = append(labels, t.nodes[cur].Label)
		}
		return true
	})
	slices.Sort(labels)
	return slices.Compact(labels)
}

// Leaf ids below (and including) node id
func (t *GeneTree) LeavesBelow(id int) []int {
	leaves := make([]int, 0)
	t.SubtreePreOrder(id, func(cur int) bool {
		if t.IsLeaf(cur) {
			leaves = append(leaves, cur)
		}
		return true
	})
	slices.Sort(leaves)
	return leaves
}

// Deep copy
func (t *GeneTree) Clone() *GeneTree {
	c := &GeneTree{
		root:     t.root,
		nodes:    make(map[int]*Node, len(t.nodes)),
		children: make(map[int][]int, len(t.children)),
		parent:   make(map[int]int, len(t.parent)),
	}
	for id, n := range t.nodes {
		cp := *n
		c.nodes[id] = &cp
	}
	for id, ch := range t.children {
		c.children[id] = slices.Clone(ch)
	}
	for id, p := range t.parent {
		c.parent[id] = p
	}
	return c
}

// Update node attributes in place (the id cannot be changed)
func (t *GeneTree) UpdateNode(id int, f func(n *Node)) error {
	n, ok := t.nodes[id]
	if !ok {
		return fmt.Errorf("%w %d", ErrUnknownNode, id)
	}
	f(n)
	n.ID = id
	return nil
}

// Removes all outgoing edges of node id; the detached subtrees stay in the
// node set until re-attached
func (t *GeneTree) detachChildren(id int) []int {
	old := t.children[id]
	for _, c := range old {
		delete(t.parent, c)
	}
	delete(t.children, id)
	return old
}

// Checks that every node but the root has exactly one parent and that all
// nodes are reachable from the root
func (t *GeneTree) Validate() error {
	if t.root < 0 {
		return fmt.Errorf("%w, tree is empty", ErrNotATree)
	}
	if _, ok := t.parent[t.root]; ok {
		return fmt.Errorf("%w, root %d has a parent", ErrNotATree, t.root)
	}
	seen := 0
	t.PreOrder(func(id int) bool {
		seen++
		return seen <= len(t.nodes)
	})
	if seen != len(t.nodes) {
		return fmt.Errorf("%w, %d of %d nodes reachable from root", ErrNotATree, seen, len(t.nodes))
	}
	return nil
}

// Maps every distinct leaf label (except skip) to a bit index
type LabelIndex struct {
	Labels []string
	index  map[string]uint
}

func NewLabelIndex(t *GeneTree, skip string) *LabelIndex {
	labels := make([]string, 0)
	for _, l := range t.Leaves() {
		if lab := t.nodes[l].Label; lab != skip {
			labels = append(labels, lab)
		}
	}
	slices.Sort(labels)
	labels = slices.Compact(labels)
	index := make(map[string]uint, len(labels))
	for i, l := range labels {
		index[l] = uint(i)
	}
	return &LabelIndex{Labels: labels, index: index}
}

func (li *LabelIndex) Index(label string) (uint, bool) {
	i, ok := li.index[label]
	return i, ok
}

// Calculates the leaf-label set for every node
func (t *GeneTree) Leafsets(li *LabelIndex) map[int]*bitset.BitSet {
	n := uint(len(li.Labels))
	leafsets := make(map[int]*bitset.BitSet, len(t.nodes))
	t.PostOrder(func(id int) {
		if t.IsLeaf(id) {
			leafsets[id] = bitset.New(n)
			if i, ok := li.Index(t.nodes[id].Label); ok {
				leafsets[id].Set(i)
			}
			return
		}
		c := t.children[id]
		leafsets[id] = leafsets[c[0]].Clone()
		for _, child := range c[1:] {
			leafsets[id].InPlaceUnion(leafsets[child])
		}
	})
	return leafsets
}

// Labels in a leafset, in index order
func (li *LabelIndex) Names(b *bitset.BitSet) []string {
	names := make([]string, 0, b.Count())
	for i, ok := b.NextSet(0); ok; i, ok = b.NextSet(i + 1) {
		names = append(names, li.Labels[i])
	}
	return names
}

func nilLength() float64 {
	return math.NaN()
}
