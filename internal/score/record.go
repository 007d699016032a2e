package score

import (
	"math"

	"gonum.org/v1/gonum/stat"
)

// Scores of one orthogroup: input tree (Before) and resolved tree (After),
// both against the ground truth
type Record struct {
	OG     string
	Before Metrics
	After  Metrics
}

type Summary struct {
	N          int     // number of records
	MeanBefore Metrics // NaN values are skipped
	MeanAfter  Metrics
}

func Summarize(records []Record) Summary {
	get := []func(Metrics) float64{
		func(m Metrics) float64 { return m.Precision },
		func(m Metrics) float64 { return m.Recall },
		func(m Metrics) float64 { return m.Contradiction },
	}
	var before, after [3]float64
	for i, f := range get {
		before[i] = nanMean(records, func(r Record) float64 { return f(r.Before) })
		after[i] = nanMean(records, func(r Record) float64 { return f(r.After) })
	}
	return Summary{
		N:          len(records),
		MeanBefore: Metrics{Precision: before[0], Recall: before[1], Contradiction: before[2]},
		MeanAfter:  Metrics{Precision: after[0], Recall: after[1], Contradiction: after[2]},
	}
}

func nanMean(records []Record, f func(Record) float64) float64 {
	x := make([]float64, 0, len(records))
	for _, r := range records {
		if v := f(r); !math.IsNaN(v) {
			x = append(x, v)
		}
	}
	if len(x) == 0 {
		return math.NaN()
	}
	return stat.Mean(x, nil)
}
