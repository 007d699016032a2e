package infer

import (
	"context"
	"errors"
	"log"

	"golang.org/x/sync/errgroup"

	gr "github.com/jsdoublel/polynj/internal/graphs"
	pr "github.com/jsdoublel/polynj/internal/prep"
	sc "github.com/jsdoublel/polynj/internal/score"
)

// Source of ground truth trees (e.g. prep.TruthDir)
type TruthSource interface {
	Lookup(og *gr.Orthogroup) (*gr.GeneTree, error)
}

type EvalSummary struct {
	Evaluated []string
	Skipped   []string // no ground truth
	Failed    []string
}

type evalOutcome struct {
	record  sc.Record
	skipped bool
	err     error
}

// Scores the input tree (before) and the resolved tree (after) of every
// result against its ground truth. Records are returned in input order;
// orthogroups without ground truth are skipped.
func Evaluate(results []*Result, truth TruthSource, nprocs int) ([]sc.Record, EvalSummary) {
	outcomes := make([]evalOutcome, len(results))
	g, _ := errgroup.WithContext(context.Background())
	g.SetLimit(nprocs)
	for i, res := range results {
		g.Go(func() error {
			outcomes[i] = evaluate(res, truth)
			return nil
		})
	}
	_ = g.Wait()
	records := make([]sc.Record, 0, len(results))
	var summary EvalSummary
	for i, o := range outcomes {
		og := results[i].OG
		switch {
		case o.skipped:
			summary.Skipped = append(summary.Skipped, og)
		case o.err != nil:
			log.Printf("orthogroup %s could not be scored : %s\n", og, o.err)
			summary.Failed = append(summary.Failed, og)
		default:
			records = append(records, o.record)
			summary.Evaluated = append(summary.Evaluated, og)
		}
	}
	log.Printf("%d orthogroups scored, %d without ground truth, %d failed\n",
		len(summary.Evaluated), len(summary.Skipped), len(summary.Failed))
	return records, summary
}

func evaluate(res *Result, truth TruthSource) evalOutcome {
	gt, err := truth.Lookup(&gr.Orthogroup{OG: res.OG, Tree: res.Original})
	switch {
	case errors.Is(err, pr.ErrMissingGroundTruth):
		return evalOutcome{skipped: true, err: err}
	case err != nil:
		return evalOutcome{err: err}
	}
	gtView := sc.ScoringView(gt)
	before := sc.Compare(sc.ScoringView(res.Original), gtView)
	after := sc.Compare(sc.ScoringView(res.Resolved), gtView)
	return evalOutcome{record: sc.Record{
		OG:     res.OG,
		Before: before.Metrics(),
		After:  after.Metrics(),
	}}
}
