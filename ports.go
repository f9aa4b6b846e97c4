package temper

import (
	"context"
	"math/rand/v2"
)

// FitRequest carries the training material for one density-model fit.
type FitRequest struct {
	// Train holds the samples the model is fitted to, weighted after the
	// first stage.
	Train SampleSet

	// Validate holds held-out samples for fit diagnostics. May be empty;
	// fitters must tolerate that.
	Validate SampleSet

	// Alpha carries regularization knobs the sampler passes through
	// uninterpreted. Each fitter documents its own reading of the two
	// entries.
	Alpha [2]float64
}

// DensityFitter fits a transport density to a batch of samples. A single
// fitter value is shared by every chain of an ensemble, so implementations
// must be safe for concurrent use: all mutable state belongs in the returned
// DensityModel.
type DensityFitter interface {
	Fit(ctx context.Context, req FitRequest) (DensityModel, error)
}

// DensityModel is a fitted proposal: it produces draws together with their
// log density under the model itself. Implementations draw all randomness
// from the supplied rng so chains stay reproducible.
type DensityModel interface {
	Sample(rng *rand.Rand, n int) (samples [][]float64, logq []float64, err error)
}

// Objective is a differentiable target for warm-start optimization, shaped
// after gonum's optimize.Problem. Grad returns a fresh slice.
type Objective struct {
	Func func(x []float64) float64
	Grad func(x []float64) []float64
}

// TrajectoryOptimizer ascends Objective.Func from x0 and returns the points
// it visited, x0 first. The trajectory is returned even when the run ends in
// an error: warm starts are best-effort and partial paths are still usable
// as training material.
type TrajectoryOptimizer interface {
	Optimize(ctx context.Context, obj Objective, x0 []float64, maxIter int) ([][]float64, error)
}
