// Package flow provides reference density-model fitters for the temper
// sampler: a moment-matched full-covariance Gaussian and a weighted-EM
// Gaussian mixture. Both sample and score through gonum's multivariate
// normal, drawing all randomness from the caller's generator.
package flow

import (
	"context"
	"errors"
	"fmt"
	"math"
	"math/rand/v2"

	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat"
	"gonum.org/v1/gonum/stat/distmv"

	"github.com/sky-flux/temper"
)

var (
	// ErrDegenerateInput reports training input no density can be fitted
	// to: too few samples, zero variance, or all weight on one point.
	ErrDegenerateInput = errors.New("flow: degenerate training input")

	// ErrSingularCovariance reports a covariance that stayed non
	// positive-definite through every jitter retry.
	ErrSingularCovariance = errors.New("flow: covariance not positive definite")
)

// maxCholTries bounds the diagonal-jitter escalation when a covariance
// fails to factorize.
const maxCholTries = 6

// Compile-time interface check.
var _ temper.DensityFitter = Gaussian{}

// Gaussian fits a full-covariance normal by weighted moment matching.
// Alpha[0] is a ridge added to the covariance diagonal; Alpha[1] is ignored.
// The validation set is not consulted — matched moments have nothing to
// tune. The zero value is ready to use.
type Gaussian struct{}

// Fit implements temper.DensityFitter.
func (Gaussian) Fit(ctx context.Context, req temper.FitRequest) (temper.DensityModel, error) {
	train := req.Train
	n, d := train.Len(), train.Dim()
	if n < 2 {
		return nil, fmt.Errorf("%w: %d training samples, need at least 2", ErrDegenerateInput, n)
	}
	weights := train.Weights()
	if weights != nil {
		if err := checkWeights(weights); err != nil {
			return nil, err
		}
	}

	mean := make([]float64, d)
	col := make([]float64, n)
	flat := make([]float64, 0, n*d)
	for i := 0; i < n; i++ {
		flat = append(flat, train.At(i)...)
	}
	for j := 0; j < d; j++ {
		for i := 0; i < n; i++ {
			col[i] = train.At(i)[j]
		}
		mean[j] = stat.Mean(col, weights)
	}

	var sigma mat.SymDense
	stat.CovarianceMatrix(&sigma, mat.NewDense(n, d, flat), weights)
	if maxDiag(&sigma) <= 0 {
		return nil, fmt.Errorf("%w: zero variance in every direction", ErrDegenerateInput)
	}
	chol, err := ensurePD(&sigma, req.Alpha[0])
	if err != nil {
		return nil, err
	}
	return &gaussianModel{mean: mean, chol: chol}, nil
}

// gaussianModel is the fitted transport: a single full-covariance normal,
// held as its Cholesky factor.
type gaussianModel struct {
	mean []float64
	chol *mat.Cholesky
}

// Sample implements temper.DensityModel.
func (m *gaussianModel) Sample(rng *rand.Rand, n int) ([][]float64, []float64, error) {
	normal := distmv.NewNormalChol(m.mean, m.chol, rng)
	samples := make([][]float64, n)
	logq := make([]float64, n)
	for i := range samples {
		x := normal.Rand(nil)
		samples[i] = x
		logq[i] = normal.LogProb(x)
	}
	return samples, logq, nil
}

// checkWeights rejects weight vectors no moment can be matched against:
// non-finite entries, zero total, or fewer than two carrying points.
func checkWeights(weights []float64) error {
	positive := 0
	total := 0.0
	for i, w := range weights {
		if math.IsNaN(w) || math.IsInf(w, 0) || w < 0 {
			return fmt.Errorf("%w: weight %d is %v", ErrDegenerateInput, i, w)
		}
		if w > 0 {
			positive++
		}
		total += w
	}
	if total <= 0 {
		return fmt.Errorf("%w: weights sum to zero", ErrDegenerateInput)
	}
	if positive < 2 {
		return fmt.Errorf("%w: all weight on a single point", ErrDegenerateInput)
	}
	return nil
}

// ensurePD adds ridge to sigma's diagonal, then escalates a jitter until the
// matrix factorizes, returning the factorization. Scales of real problems
// vary wildly, so the jitter grows geometrically from a tiny base rather
// than guessing one magnitude.
func ensurePD(sigma *mat.SymDense, ridge float64) (*mat.Cholesky, error) {
	if ridge > 0 {
		addToDiag(sigma, ridge)
	}
	var chol mat.Cholesky
	jitter := 1e-10 * math.Max(maxDiag(sigma), 1)
	for try := 0; ; try++ {
		if chol.Factorize(sigma) {
			return &chol, nil
		}
		if try == maxCholTries {
			return nil, fmt.Errorf("%w: after %d jitter retries", ErrSingularCovariance, try)
		}
		addToDiag(sigma, jitter)
		jitter *= 100
	}
}

func addToDiag(sigma *mat.SymDense, v float64) {
	n := sigma.SymmetricDim()
	for i := 0; i < n; i++ {
		sigma.SetSym(i, i, sigma.At(i, i)+v)
	}
}

func maxDiag(sigma *mat.SymDense) float64 {
	n := sigma.SymmetricDim()
	out := math.Inf(-1)
	for i := 0; i < n; i++ {
		out = math.Max(out, sigma.At(i, i))
	}
	return out
}
