// Package resolving the polytomies of gene trees with neighbor joining over
// sparse distance data, and scoring the results against ground truth trees
package infer

import (
	"context"
	"errors"
	"fmt"
	"log"

	"golang.org/x/sync/errgroup"

	gr "github.com/jsdoublel/polynj/internal/graphs"
	pr "github.com/jsdoublel/polynj/internal/prep"
)

const (
	Resolved Outcome = iota
	Unresolved
	Failed
)

// What happened to one polytomy
type Outcome int

func (o Outcome) String() string {
	switch o {
	case Resolved:
		return "resolved"
	case Unresolved:
		return "unresolved"
	case Failed:
		return "failed"
	default:
		panic(fmt.Sprintf("invalid outcome (%d)", int(o)))
	}
}

type PolytomyOutcome struct {
	Polytomy gr.Polytomy
	Outcome  Outcome
	Err      error // nil when resolved
}

// Result for one orthogroup. Original is the input tree (never modified),
// Resolved the private copy with every resolvable polytomy grafted.
type Result struct {
	OG         string
	Original   *gr.GeneTree
	Resolved   *gr.GeneTree
	Polytomies []PolytomyOutcome
}

type Summary struct {
	Orthogroups int
	Resolved    int
	Unresolved  int
	Failed      int
}

func (s Summary) String() string {
	return fmt.Sprintf("%d orthogroups, %d polytomies resolved, %d left unresolved, %d failed",
		s.Orthogroups, s.Resolved, s.Unresolved, s.Failed)
}

// Resolves the polytomies of og one after another on a private copy of its
// tree. Failures are recorded per polytomy and never abort the orthogroup.
func ResolveOrthogroup(og *gr.Orthogroup, idx *pr.DistanceIndex) *Result {
	res := &Result{
		OG:         og.OG,
		Original:   og.Tree,
		Resolved:   og.Tree.Clone(),
		Polytomies: make([]PolytomyOutcome, 0, len(og.Polytomies)),
	}
	for _, p := range og.Polytomies {
		resolved, outcome, err := resolvePolytomy(res.Resolved, p, idx)
		if err != nil && outcome == Failed {
			log.Printf("orthogroup %s, polytomy at node %d : %s\n", og.OG, p.Node, err)
		}
		if outcome == Resolved {
			res.Resolved = resolved
		}
		res.Polytomies = append(res.Polytomies, PolytomyOutcome{Polytomy: p, Outcome: outcome, Err: err})
	}
	return res
}

func resolvePolytomy(t *gr.GeneTree, p gr.Polytomy, idx *pr.DistanceIndex) (*gr.GeneTree, Outcome, error) {
	m, err := pr.EstimateDistanceMatrix(p.Clusters, p.TaxonLabels(), idx)
	if err != nil {
		return nil, Failed, err
	}
	if m.Uninformative() {
		return nil, Unresolved, fmt.Errorf("%w, no distances between any of the %d clusters", ErrInsufficientEvidence, m.Size())
	}
	nwk, err := Resolve(m, fmt.Sprint(p.Node))
	switch {
	case errors.Is(err, ErrInsufficientEvidence):
		return nil, Unresolved, err
	case err != nil:
		return nil, Failed, err
	}
	out, err := gr.Graft(t, p.Node, nwk)
	if err != nil {
		return nil, Failed, err
	}
	return out, Resolved, nil
}

// Resolves every orthogroup in parallel; results keep the input order
func ResolveAll(ogs []*gr.Orthogroup, idx *pr.DistanceIndex, nprocs int) ([]*Result, Summary) {
	results := make([]*Result, len(ogs))
	g, _ := errgroup.WithContext(context.Background())
	g.SetLimit(nprocs)
	for i, og := range ogs {
		g.Go(func() error {
			results[i] = ResolveOrthogroup(og, idx)
			return nil
		})
	}
	_ = g.Wait()
	summary := Summary{Orthogroups: len(ogs)}
	for _, r := range results {
		for _, p := range r.Polytomies {
			switch p.Outcome {
			case Resolved:
				summary.Resolved++
			case Unresolved:
				summary.Unresolved++
			case Failed:
				summary.Failed++
			}
		}
	}
	log.Println(summary)
	return results, summary
}
