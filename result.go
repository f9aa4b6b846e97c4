package temper

import (
	"fmt"
	"time"

	"github.com/google/uuid"
	"gonum.org/v1/gonum/stat"
)

// Result aggregates one ensemble run: the healthy chains in chain-index
// order plus run-level metadata.
type Result struct {
	// RunID tags the run for diagnostics and log correlation.
	RunID uuid.UUID

	// Chains holds the surviving chain results, ordered by chain index.
	Chains []ChainResult

	// Layout maps variable names into the flat posterior vectors.
	Layout *Layout

	// DrawsPerChain is the posterior size each chain contributed.
	DrawsPerChain int

	// SamplingTime is the wall-clock duration of the whole run.
	SamplingTime time.Duration
}

// Posterior concatenates the chains' posteriors into one uniform-weight
// sample set. Chain order is preserved; the rows alias the per-chain
// posteriors.
func (r *Result) Posterior() SampleSet {
	total := 0
	for _, ch := range r.Chains {
		total += ch.Posterior.Len()
	}
	samples := make([][]float64, 0, total)
	dim := 0
	for _, ch := range r.Chains {
		dim = ch.Posterior.Dim()
		for i := 0; i < ch.Posterior.Len(); i++ {
			samples = append(samples, ch.Posterior.At(i))
		}
	}
	return SampleSet{samples: samples, dim: dim}
}

// VarSummary holds per-element posterior moments for one variable.
type VarSummary struct {
	Name string
	Mean []float64
	Std  []float64
}

// Summary computes the pooled posterior mean and standard deviation of the
// named variable, element by element, across every chain.
func (r *Result) Summary(name string) (VarSummary, error) {
	offset, size, ok := r.Layout.Offset(name)
	if !ok {
		return VarSummary{}, fmt.Errorf("temper: unknown variable %q", name)
	}
	total := 0
	for _, ch := range r.Chains {
		total += ch.Posterior.Len()
	}
	out := VarSummary{
		Name: name,
		Mean: make([]float64, size),
		Std:  make([]float64, size),
	}
	col := make([]float64, 0, total)
	for e := 0; e < size; e++ {
		col = col[:0]
		for _, ch := range r.Chains {
			for i := 0; i < ch.Posterior.Len(); i++ {
				col = append(col, ch.Posterior.At(i)[offset+e])
			}
		}
		out.Mean[e], out.Std[e] = stat.MeanStdDev(col, nil)
	}
	return out, nil
}

// LogMarginalLikelihoods returns the per-chain evidence estimates in chain
// order.
func (r *Result) LogMarginalLikelihoods() []float64 {
	out := make([]float64, len(r.Chains))
	for i, ch := range r.Chains {
		out[i] = ch.LogMarginalLikelihood
	}
	return out
}
