// Package used for loading and preprocessing the data needed to resolve
// polytomies: orthogroup trees, pairwise distances and distance matrices
package prep

import (
	"context"
	"errors"
	"fmt"
	"log"

	"golang.org/x/sync/errgroup"

	gr "github.com/jsdoublel/polynj/internal/graphs"
)

var (
	ErrMulTree   = errors.New("contains duplicate labels")
	ErrEmptyTree = errors.New("empty tree")
)

// Validates gene trees and extracts their polytomies. Returns an error if any
// tree is not a rooted tree or repeats a leaf label (loss leaves excepted).
func Preprocess(gts *GeneTrees, nprocs int) ([]*gr.Orthogroup, error) {
	if len(gts.Trees) != len(gts.Names) {
		panic(fmt.Sprintf("there should be a name for every tree, %d != %d", len(gts.Names), len(gts.Trees)))
	}
	ogs := make([]*gr.Orthogroup, len(gts.Trees))
	g, ctx := errgroup.WithContext(context.Background())
	g.SetLimit(nprocs)
	for i, t := range gts.Trees {
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			if err := ValidateGeneTree(t); err != nil {
				return fmt.Errorf("orthogroup %s : %w", gts.Names[i], err)
			}
			ogs[i] = gr.NewOrthogroup(gts.Names[i], t)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	nPoly, nTrees := 0, 0
	for _, og := range ogs {
		if og.HasPolytomies() {
			nTrees++
			nPoly += len(og.Polytomies)
		}
	}
	log.Printf("%d gene trees provided, %d with polytomies (%d polytomies in total)\n", len(ogs), nTrees, nPoly)
	return ogs, nil
}

func ValidateGeneTree(t *gr.GeneTree) error {
	if t.Len() == 0 {
		return ErrEmptyTree
	}
	if err := t.Validate(); err != nil {
		return err
	}
	if !IsSingleCopy(t) {
		return fmt.Errorf("tree %w", ErrMulTree)
	}
	return nil
}

// Leaf labels are unique, ignoring loss leaves
func IsSingleCopy(t *gr.GeneTree) bool {
	labels := make(map[string]bool)
	for _, l := range t.Leaves() {
		n, _ := t.Node(l)
		if n.Label == gr.LossLabel {
			continue
		}
		if labels[n.Label] {
			return false
		}
		labels[n.Label] = true
	}
	return true
}
