// Package models provides small analytic probabilistic models for the
// examples and tests: targets whose exact posteriors are known in closed
// form, so sampler output can be checked against the truth.
package models

import (
	"math"
	"math/rand/v2"

	"gonum.org/v1/gonum/stat/distuv"

	"github.com/sky-flux/temper"
)

// Compile-time interface check.
var _ temper.GradientModel = ConjugateGaussian{}

// ConjugateGaussian is a one-dimensional Gaussian location model with a
// Gaussian prior on the mean:
//
//	mu  ~ N(PriorMean, PriorStd²)
//	y_i ~ N(mu, NoiseStd²)
//
// The posterior over mu is again Gaussian; PosteriorMoments returns its
// exact parameters. With no Data the likelihood is identically zero and the
// posterior equals the prior.
type ConjugateGaussian struct {
	PriorMean float64
	PriorStd  float64 // must be positive
	NoiseStd  float64 // must be positive when Data is non-empty
	Data      []float64
}

func (m ConjugateGaussian) Vars() []temper.VarSpec {
	return []temper.VarSpec{{Name: "mu"}}
}

func (m ConjugateGaussian) SamplePrior(rng *rand.Rand, n int) [][]float64 {
	prior := distuv.Normal{Mu: m.PriorMean, Sigma: m.PriorStd, Src: rng}
	out := make([][]float64, n)
	for i := range out {
		out[i] = []float64{prior.Rand()}
	}
	return out
}

func (m ConjugateGaussian) LogPrior(x []float64) float64 {
	return distuv.Normal{Mu: m.PriorMean, Sigma: m.PriorStd}.LogProb(x[0])
}

func (m ConjugateGaussian) LogLikelihood(x []float64) float64 {
	if len(m.Data) == 0 {
		return 0
	}
	like := distuv.Normal{Mu: x[0], Sigma: m.NoiseStd}
	ll := 0.0
	for _, y := range m.Data {
		ll += like.LogProb(y)
	}
	return ll
}

// GradLogPosterior is d/dmu of log prior plus log likelihood.
func (m ConjugateGaussian) GradLogPosterior(x []float64) []float64 {
	g := -(x[0] - m.PriorMean) / (m.PriorStd * m.PriorStd)
	if len(m.Data) > 0 {
		noiseVar := m.NoiseStd * m.NoiseStd
		for _, y := range m.Data {
			g += (y - x[0]) / noiseVar
		}
	}
	return []float64{g}
}

// PosteriorMoments returns the exact posterior mean and standard deviation
// of mu.
func (m ConjugateGaussian) PosteriorMoments() (mean, std float64) {
	prec := 1 / (m.PriorStd * m.PriorStd)
	mean = m.PriorMean * prec
	if len(m.Data) > 0 {
		noiseVar := m.NoiseStd * m.NoiseStd
		for _, y := range m.Data {
			prec += 1 / noiseVar
			mean += y / noiseVar
		}
	}
	return mean / prec, math.Sqrt(1 / prec)
}
