package temper

import (
	"context"
	"log/slog"
	"math"
	"math/rand/v2"
	"time"
)

// seedStream is the second PCG seed word shared by every chain; chains
// differ only in the first word.
const seedStream = 0x9e3779b97f4a7c15

// ChainResult is the immutable outcome of one chain.
type ChainResult struct {
	// Chain is the chain's index within its ensemble.
	Chain int

	// Posterior holds the chain's final resampled draws, all with uniform
	// implicit weight.
	Posterior SampleSet

	// LogMarginalLikelihood estimates the chain's model-evidence
	// contribution, in log space.
	LogMarginalLikelihood float64

	// Betas is the ordered inverse-temperature schedule the chain visited,
	// ending at 1.
	Betas []float64

	// Duration is the chain's wall-clock run time.
	Duration time.Duration
}

// MarginalLikelihood returns the evidence estimate in linear space. It may
// underflow to 0 or overflow to +Inf; prefer LogMarginalLikelihood for
// arithmetic.
func (r ChainResult) MarginalLikelihood() float64 {
	return math.Exp(r.LogMarginalLikelihood)
}

// chainJob carries everything one worker needs to run a chain. It is passed
// by value and all reference fields are read-only, so concurrent chains
// share no mutable state.
type chainJob struct {
	index  int
	seed   uint64
	model  *adapter
	fitter DensityFitter
	cfg    Config
	logger *slog.Logger
}

// runChain executes one chain to completion. Failures come back as a
// ChainError carrying the chain index and the stage and β at failure.
func runChain(ctx context.Context, job chainJob) (ChainResult, error) {
	start := time.Now()
	rng := rand.New(rand.NewPCG(job.seed, seedStream))
	ann := newAnnealer(job.model, job.fitter, job.cfg, rng, job.logger)
	posterior, logML, err := ann.run(ctx)
	if err != nil {
		return ChainResult{}, &ChainError{Chain: job.index, Stage: ann.stage, Beta: ann.beta, Err: err}
	}
	return ChainResult{
		Chain:                 job.index,
		Posterior:             posterior,
		LogMarginalLikelihood: logML,
		Betas:                 ann.betas,
		Duration:              time.Since(start),
	}, nil
}
