package graphs

import "fmt"

// Node with more than two children and the induced leaf-label cluster of each
// child (Clusters[i] belongs to Children[i])
type Polytomy struct {
	Node     int
	Children []int
	Clusters [][]string
}

// One gene tree together with its polytomies
type Orthogroup struct {
	OG         string
	Tree       *GeneTree
	Polytomies []Polytomy
}

// Makes orthogroup record; clusters are computed here, before any resolution
func NewOrthogroup(og string, t *GeneTree) *Orthogroup {
	return &Orthogroup{OG: og, Tree: t, Polytomies: FindPolytomies(t)}
}

func (og *Orthogroup) HasPolytomies() bool {
	return len(og.Polytomies) > 0
}

// Returns every node with out-degree > 2 (preorder). Fully resolved trees
// yield an empty slice.
func FindPolytomies(t *GeneTree) []Polytomy {
	polytomies := make([]Polytomy, 0)
	t.PreOrder(func(id int) bool {
		if t.OutDegree(id) > 2 {
			children := t.Children(id)
			clusters := make([][]string, len(children))
			for i, c := range children {
				clusters[i] = t.InducedLabels(c)
			}
			polytomies = append(polytomies, Polytomy{Node: id, Children: children, Clusters: clusters})
		}
		return true
	})
	return polytomies
}

// Children ids as taxon names used in the resolved newick
func (p Polytomy) TaxonLabels() []string {
	labels := make([]string, len(p.Children))
	for i, c := range p.Children {
		labels[i] = fmt.Sprint(c)
	}
	return labels
}

func (p Polytomy) String() string {
	return fmt.Sprintf("x = %d, Y = %v, C = %v", p.Node, p.Children, p.Clusters)
}
