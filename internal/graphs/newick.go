package graphs

import (
	"errors"
	"fmt"
	"math"
	"strings"

	"github.com/evolbioinfo/gotree/io/newick"
	"github.com/evolbioinfo/gotree/tree"
)

var ErrInvalidNewick = errors.New("invalid newick")

// attribute keys understood in bracket comments
const (
	attrLabel   = "label"
	attrNodeID  = "node_id"
	attrSpecies = "species"
	attrEvent   = "event"
)

// Parses newick string (optionally carrying [key=value;...] attributes) into
// a GeneTree
func ParseGeneTree(nwk string) (*GeneTree, error) {
	tre, err := newick.NewParser(strings.NewReader(strings.TrimSpace(nwk))).Parse()
	if err != nil {
		return nil, fmt.Errorf("%w, %s", ErrInvalidNewick, err.Error())
	}
	return FromGotree(tre)
}

// Converts gotree tree into a GeneTree. Ids are assigned in preorder starting
// at 0. Attributes are read from node comments.
func FromGotree(tre *tree.Tree) (*GeneTree, error) {
	root := tre.Root()
	if root == nil {
		return nil, fmt.Errorf("%w, tree has no root", ErrInvalidNewick)
	}
	gt := NewGeneTree()
	type frame struct {
		node   *tree.Node
		prev   *tree.Node
		parent int
	}
	next := 0
	stack := []frame{{node: root, parent: -1}}
	for len(stack) > 0 {
		cur := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		n := nodeFromGotree(cur.node, cur.prev)
		n.ID = next
		next++
		if err := gt.AddNode(n); err != nil {
			return nil, err
		}
		if cur.parent >= 0 {
			if err := gt.AddEdge(cur.parent, n.ID); err != nil {
				return nil, err
			}
		}
		neigh := cur.node.Neigh()
		for i := len(neigh) - 1; i >= 0; i-- {
			if neigh[i] != cur.prev {
				stack = append(stack, frame{node: neigh[i], prev: cur.node, parent: n.ID})
			}
		}
	}
	return gt, nil
}

func nodeFromGotree(gn, prev *tree.Node) Node {
	n := Node{Label: gn.Name(), Length: nilLength()}
	attrs := parseAttributes(gn.Comments())
	if l, ok := attrs[attrLabel]; ok {
		n.Label = l
	}
	n.NodeID = attrs[attrNodeID]
	n.Species = attrs[attrSpecies]
	isLeaf := len(gn.Neigh()) == 1 && prev != nil
	if e, ok := attrs[attrEvent]; ok {
		n.Event = ParseEvent(e)
	} else if !isLeaf {
		n.Event = ParseEvent(n.Label)
	}
	if prev != nil {
		if e, err := gn.ParentEdge(); err == nil && e.Length() != tree.NIL_LENGTH {
			n.Length = e.Length()
		}
	}
	return n
}

// Parses comments such as "&&NHX:species=A:node_id=3" or
// "species=A;node_id=3;label=x"
func parseAttributes(comments []string) map[string]string {
	attrs := make(map[string]string)
	for _, c := range comments {
		c = strings.TrimPrefix(c, "&&NHX:")
		c = strings.TrimPrefix(c, "&")
		for _, kv := range strings.FieldsFunc(c, func(r rune) bool { return r == ';' || r == ':' }) {
			k, v, ok := strings.Cut(kv, "=")
			if !ok {
				continue
			}
			attrs[strings.TrimSpace(k)] = strings.TrimSpace(v)
		}
	}
	return attrs
}

// Converts to gotree tree. When withAttrs is set every node carries a
// node_id (the input node_id, else the tree id) and species comment.
func (t *GeneTree) Gotree(withAttrs bool) *tree.Tree {
	tre := tree.NewTree()
	if t.root < 0 {
		return tre
	}
	gnodes := make(map[int]*tree.Node, len(t.nodes))
	t.PreOrder(func(id int) bool {
		n := t.nodes[id]
		gn := tre.NewNode()
		gn.SetName(n.Label)
		if withAttrs {
			nodeID := n.NodeID
			if nodeID == "" {
				nodeID = fmt.Sprint(id)
			}
			attr := fmt.Sprintf("%s=%s", attrNodeID, nodeID)
			if n.Species != "" {
				attr += fmt.Sprintf(";%s=%s", attrSpecies, n.Species)
			}
			gn.AddComment(attr)
		}
		gnodes[id] = gn
		if p, ok := t.parent[id]; ok {
			e := tre.ConnectNodes(gnodes[p], gn)
			if !math.IsNaN(n.Length) {
				e.SetLength(n.Length)
			}
		} else {
			tre.SetRoot(gn)
		}
		return true
	})
	return tre
}

func (t *GeneTree) Newick(withAttrs bool) string {
	return t.Gotree(withAttrs).Newick()
}
