package temper

import (
	"errors"
	"fmt"
)

// Sentinel errors for the temper package.
// Use errors.Is to check: errors.Is(err, temper.ErrWeightCollapse)
var (
	// ErrInvalidConfig reports a configuration rejected before any chain starts.
	ErrInvalidConfig = errors.New("temper: invalid configuration")

	// ErrNestedModel reports a model with namespaced variables. The sampler
	// assumes a single flat variable space; nested sub-models are unsupported.
	ErrNestedModel = errors.New("temper: nested or namespaced models are not supported")

	// ErrDegenerateEval reports a NaN or infinite log density or gradient
	// returned by the model for a concrete sample.
	ErrDegenerateEval = errors.New("temper: model evaluation returned a non-finite value")

	// ErrFitFailed reports a density-model fit that did not produce a usable
	// model, typically on degenerate input.
	ErrFitFailed = errors.New("temper: density model fit failed")

	// ErrWeightCollapse reports importance weights that are all numerically
	// zero, leaving resampling undefined.
	ErrWeightCollapse = errors.New("temper: importance weights collapsed to zero")

	// ErrNoProgress reports an annealing step that failed to advance beta.
	ErrNoProgress = errors.New("temper: annealing failed to advance beta")
)

// ChainError attaches chain provenance to a failure so a single bad chain can
// be reported without obscuring which run produced it.
type ChainError struct {
	Chain int     // chain index within the ensemble
	Stage int     // annealing stage at failure
	Beta  float64 // inverse temperature at failure
	Err   error
}

func (e *ChainError) Error() string {
	return fmt.Sprintf("temper: chain %d failed at stage %d (beta=%.3f): %v", e.Chain, e.Stage, e.Beta, e.Err)
}

func (e *ChainError) Unwrap() error { return e.Err }
