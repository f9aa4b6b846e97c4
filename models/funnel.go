package models

import (
	"math"
	"math/rand/v2"

	"gonum.org/v1/gonum/stat/distuv"

	"github.com/sky-flux/temper"
)

// Compile-time interface check.
var _ temper.GradientModel = Funnel{}

// Funnel is Neal's funnel: a scale variable v controls the width of the
// remaining coordinates, producing the narrow neck that stresses annealing
// samplers.
//
//	v       ~ N(0, VStd²)
//	x_j | v ~ N(0, exp(v/2)²)   j = 1..Dim
//
// The model splits as prior v ~ N(0, VStd²), x_j ~ N(0, XPriorStd²); the
// likelihood carries the ratio turning the wide x prior into the
// conditional funnel density, so the full posterior is exactly the funnel
// and the marginal posterior of v stays N(0, VStd²).
type Funnel struct {
	Dim       int     // number of x coordinates; zero → 2
	VStd      float64 // scale of v; zero → 3
	XPriorStd float64 // x prior scale for the initial draw; zero → 5
}

func (f Funnel) dims() int {
	if f.Dim == 0 {
		return 2
	}
	return f.Dim
}

func (f Funnel) vStd() float64 {
	if f.VStd == 0 {
		return 3
	}
	return f.VStd
}

func (f Funnel) xStd() float64 {
	if f.XPriorStd == 0 {
		return 5
	}
	return f.XPriorStd
}

func (f Funnel) Vars() []temper.VarSpec {
	return []temper.VarSpec{
		{Name: "v"},
		{Name: "x", Shape: []int{f.dims()}},
	}
}

func (f Funnel) SamplePrior(rng *rand.Rand, n int) [][]float64 {
	vPrior := distuv.Normal{Mu: 0, Sigma: f.vStd(), Src: rng}
	xPrior := distuv.Normal{Mu: 0, Sigma: f.xStd(), Src: rng}
	out := make([][]float64, n)
	for i := range out {
		row := make([]float64, 1+f.dims())
		row[0] = vPrior.Rand()
		for j := 1; j < len(row); j++ {
			row[j] = xPrior.Rand()
		}
		out[i] = row
	}
	return out
}

func (f Funnel) LogPrior(x []float64) float64 {
	lp := distuv.Normal{Mu: 0, Sigma: f.vStd()}.LogProb(x[0])
	xPrior := distuv.Normal{Mu: 0, Sigma: f.xStd()}
	for _, xi := range x[1:] {
		lp += xPrior.LogProb(xi)
	}
	return lp
}

func (f Funnel) LogLikelihood(x []float64) float64 {
	cond := distuv.Normal{Mu: 0, Sigma: math.Exp(x[0] / 2)}
	xPrior := distuv.Normal{Mu: 0, Sigma: f.xStd()}
	ll := 0.0
	for _, xi := range x[1:] {
		ll += cond.LogProb(xi) - xPrior.LogProb(xi)
	}
	return ll
}

// GradLogPosterior differentiates the funnel density: the wide x prior
// cancels against its likelihood correction.
func (f Funnel) GradLogPosterior(x []float64) []float64 {
	v := x[0]
	expNegV := math.Exp(-v)
	grad := make([]float64, len(x))
	g := -v / (f.vStd() * f.vStd())
	for _, xi := range x[1:] {
		g += (xi*xi*expNegV - 1) / 2
	}
	grad[0] = g
	for j, xi := range x[1:] {
		grad[j+1] = -xi * expNegV
	}
	return grad
}
