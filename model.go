package temper

import (
	"fmt"
	"math"
	"math/rand/v2"
)

// Model is the probabilistic target the sampler anneals toward. Variables
// are declared up front via Vars and every evaluation runs on the flat
// vector the resulting Layout defines.
//
// LogPrior and LogLikelihood return unnormalized log densities. The sampler
// treats any NaN or infinite evaluation as a hard failure; models whose
// support excludes part of the space should reparameterize rather than
// return -Inf.
type Model interface {
	Vars() []VarSpec

	// SamplePrior draws n flat vectors from the prior in layout order.
	SamplePrior(rng *rand.Rand, n int) [][]float64

	LogPrior(x []float64) float64
	LogLikelihood(x []float64) float64
}

// GradientModel is implemented by models that expose the gradient of the
// log posterior. It is required only when warm-start optimization is
// enabled.
type GradientModel interface {
	Model
	GradLogPosterior(x []float64) []float64
}

// adapter wraps a Model with its Layout and converts contract violations
// (wrong shapes, non-finite densities) into errors at the evaluation site,
// so every downstream consumer can assume finite values.
type adapter struct {
	model  Model
	layout *Layout
}

func newAdapter(m Model) (*adapter, error) {
	if m == nil {
		return nil, fmt.Errorf("%w: nil model", ErrInvalidConfig)
	}
	layout, err := NewLayout(m.Vars())
	if err != nil {
		return nil, err
	}
	return &adapter{model: m, layout: layout}, nil
}

func (a *adapter) dim() int { return a.layout.Dim() }

// samplePrior draws n vectors and validates their shape and finiteness.
func (a *adapter) samplePrior(rng *rand.Rand, n int) ([][]float64, error) {
	samples := a.model.SamplePrior(rng, n)
	if len(samples) != n {
		return nil, fmt.Errorf("%w: prior returned %d draws, want %d", ErrDegenerateEval, len(samples), n)
	}
	for i, s := range samples {
		if len(s) != a.layout.Dim() {
			return nil, fmt.Errorf("%w: prior draw %d has length %d, want %d", ErrDegenerateEval, i, len(s), a.layout.Dim())
		}
		for j, v := range s {
			if math.IsNaN(v) || math.IsInf(v, 0) {
				return nil, fmt.Errorf("%w: prior draw %d has non-finite element %d", ErrDegenerateEval, i, j)
			}
		}
	}
	return samples, nil
}

// logDensities evaluates prior and likelihood log densities at x.
func (a *adapter) logDensities(x []float64) (logPrior, logLike float64, err error) {
	if len(x) != a.layout.Dim() {
		return 0, 0, fmt.Errorf("%w: point has length %d, want %d", ErrDegenerateEval, len(x), a.layout.Dim())
	}
	logPrior = a.model.LogPrior(x)
	if math.IsNaN(logPrior) || math.IsInf(logPrior, 0) {
		return 0, 0, fmt.Errorf("%w: log prior is %v", ErrDegenerateEval, logPrior)
	}
	logLike = a.model.LogLikelihood(x)
	if math.IsNaN(logLike) || math.IsInf(logLike, 0) {
		return 0, 0, fmt.Errorf("%w: log likelihood is %v", ErrDegenerateEval, logLike)
	}
	return logPrior, logLike, nil
}

// logPosterior is the untempered target density: log prior + log likelihood.
func (a *adapter) logPosterior(x []float64) (float64, error) {
	lp, ll, err := a.logDensities(x)
	if err != nil {
		return 0, err
	}
	return lp + ll, nil
}

// gradLogPosterior evaluates the posterior gradient when the model supports
// it; ok is false otherwise.
func (a *adapter) gradLogPosterior(x []float64) (grad []float64, ok bool, err error) {
	gm, ok := a.model.(GradientModel)
	if !ok {
		return nil, false, nil
	}
	grad = gm.GradLogPosterior(x)
	if len(grad) != a.layout.Dim() {
		return nil, true, fmt.Errorf("%w: gradient has length %d, want %d", ErrDegenerateEval, len(grad), a.layout.Dim())
	}
	for i, g := range grad {
		if math.IsNaN(g) || math.IsInf(g, 0) {
			return nil, true, fmt.Errorf("%w: gradient has non-finite element %d", ErrDegenerateEval, i)
		}
	}
	return grad, true, nil
}
