package models

import (
	"math"
	"math/rand/v2"
	"testing"

	"gonum.org/v1/gonum/stat"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sky-flux/temper"
)

func testRNG(seed uint64) *rand.Rand {
	return rand.New(rand.NewPCG(seed, seed+1))
}

// numericalGrad is the central finite difference of the log posterior.
func numericalGrad(m temper.Model, x []float64) []float64 {
	const h = 1e-5
	grad := make([]float64, len(x))
	for i := range x {
		hi := make([]float64, len(x))
		lo := make([]float64, len(x))
		copy(hi, x)
		copy(lo, x)
		hi[i] += h
		lo[i] -= h
		up := m.LogPrior(hi) + m.LogLikelihood(hi)
		down := m.LogPrior(lo) + m.LogLikelihood(lo)
		grad[i] = (up - down) / (2 * h)
	}
	return grad
}

// --- ConjugateGaussian ---

func TestConjugateGaussianVars(t *testing.T) {
	m := ConjugateGaussian{PriorStd: 1, NoiseStd: 1}
	assert.Equal(t, []temper.VarSpec{{Name: "mu"}}, m.Vars())
}

func TestConjugateGaussianPosteriorMoments(t *testing.T) {
	m := ConjugateGaussian{
		PriorMean: 0,
		PriorStd:  10,
		NoiseStd:  1,
		Data:      []float64{1, 2, 3},
	}
	mean, std := m.PosteriorMoments()

	// precision = 1/100 + 3, mean = (0/100 + 6) / precision
	wantPrec := 0.01 + 3.0
	assert.InDelta(t, 6.0/wantPrec, mean, 1e-12)
	assert.InDelta(t, math.Sqrt(1/wantPrec), std, 1e-12)
}

func TestConjugateGaussianNoDataIsPrior(t *testing.T) {
	m := ConjugateGaussian{PriorMean: 2, PriorStd: 3}
	mean, std := m.PosteriorMoments()
	assert.Equal(t, 2.0, mean)
	assert.Equal(t, 3.0, std)
	assert.Zero(t, m.LogLikelihood([]float64{17}))
}

func TestConjugateGaussianGradientMatchesNumerical(t *testing.T) {
	m := ConjugateGaussian{
		PriorMean: 1,
		PriorStd:  2,
		NoiseStd:  0.5,
		Data:      []float64{0.3, 1.9, 1.1},
	}
	for _, x := range []float64{-2, 0.7, 3.5} {
		got := m.GradLogPosterior([]float64{x})
		want := numericalGrad(m, []float64{x})
		assert.InDelta(t, want[0], got[0], 1e-4, "x=%v", x)
	}
}

func TestConjugateGaussianSamplePrior(t *testing.T) {
	m := ConjugateGaussian{PriorMean: -1, PriorStd: 2}
	draws := m.SamplePrior(testRNG(1), 20000)
	require.Len(t, draws, 20000)

	col := make([]float64, len(draws))
	for i, d := range draws {
		require.Len(t, d, 1)
		col[i] = d[0]
	}
	mean, std := stat.MeanStdDev(col, nil)
	assert.InDelta(t, -1, mean, 0.1)
	assert.InDelta(t, 2, std, 0.1)
}

func TestConjugateGaussianLogDensityShape(t *testing.T) {
	m := ConjugateGaussian{PriorMean: 0, PriorStd: 1, NoiseStd: 1, Data: []float64{0}}

	// The posterior is N(0, 1/2): its log density must peak at zero.
	at := func(x float64) float64 {
		return m.LogPrior([]float64{x}) + m.LogLikelihood([]float64{x})
	}
	assert.Greater(t, at(0), at(0.5))
	assert.Greater(t, at(0), at(-0.5))
	assert.InDelta(t, at(0.5), at(-0.5), 1e-12, "posterior is symmetric")
}
