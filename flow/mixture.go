package flow

import (
	"context"
	"fmt"
	"math"
	"math/rand/v2"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat"
	"gonum.org/v1/gonum/stat/distmv"
	"gonum.org/v1/gonum/stat/distuv"

	"github.com/sky-flux/temper"
)

// Compile-time interface check.
var _ temper.DensityFitter = Mixture{}

// Mixture fits a Gaussian mixture by weighted expectation-maximization.
// Seeding is deterministic — farthest-point selection from the heaviest
// sample — so a fit depends only on its input and chains stay reproducible.
//
// Alpha[0] is a per-component covariance ridge; Alpha[1] smooths the mixing
// proportions toward uniform. When the request carries a validation set, EM
// also stops as soon as the validation score worsens.
type Mixture struct {
	// Components is the mixture size. Zero → 2.
	Components int

	// MaxIter caps EM iterations. Zero → 100.
	MaxIter int

	// Tol stops EM when the relative improvement of the training score
	// falls below it. Zero → 1e-6.
	Tol float64
}

type component struct {
	logPi float64
	mean  []float64
	sigma *mat.SymDense
}

// Fit implements temper.DensityFitter.
func (m Mixture) Fit(ctx context.Context, req temper.FitRequest) (temper.DensityModel, error) {
	k := m.Components
	if k == 0 {
		k = 2
	}
	if k < 1 {
		return nil, fmt.Errorf("flow: %d components, need at least 1", k)
	}
	maxIter := m.MaxIter
	if maxIter == 0 {
		maxIter = 100
	}
	tol := m.Tol
	if tol == 0 {
		tol = 1e-6
	}

	train := req.Train
	n, d := train.Len(), train.Dim()
	if n < 2*k {
		return nil, fmt.Errorf("%w: %d training samples for %d components", ErrDegenerateInput, n, k)
	}
	if train.Weighted() {
		if err := checkWeights(train.Weights()); err != nil {
			return nil, err
		}
	}

	// Normalized per-sample weights; uniform when the set is unweighted.
	w := make([]float64, n)
	if !train.Weighted() {
		for i := range w {
			w[i] = 1 / float64(n)
		}
	} else {
		total := floats.Sum(train.Weights())
		for i, wi := range train.Weights() {
			w[i] = wi / total
		}
	}

	flat := make([]float64, 0, n*d)
	for i := 0; i < n; i++ {
		flat = append(flat, train.At(i)...)
	}
	var global mat.SymDense
	stat.CovarianceMatrix(&global, mat.NewDense(n, d, flat), train.Weights())
	if maxDiag(&global) <= 0 {
		return nil, fmt.Errorf("%w: zero variance in every direction", ErrDegenerateInput)
	}
	if _, err := ensurePD(&global, req.Alpha[0]); err != nil {
		return nil, err
	}

	comps := make([]component, k)
	for c, idx := range farthestPoints(train, w, k) {
		mean := make([]float64, d)
		copy(mean, train.At(idx))
		sigma := mat.NewSymDense(d, nil)
		sigma.CopySym(&global)
		comps[c] = component{logPi: -math.Log(float64(k)), mean: mean, sigma: sigma}
	}

	resp := make([][]float64, n)
	for i := range resp {
		resp[i] = make([]float64, k)
	}
	logdens := make([]float64, k)
	prevTrain := math.Inf(-1)
	prevVal := math.Inf(-1)

	for iter := 0; iter < maxIter; iter++ {
		normals, err := componentNormals(comps, nil)
		if err != nil {
			return nil, err
		}

		// E-step: responsibilities in log space, plus the weighted mean
		// log density used as the convergence score.
		trainScore := 0.0
		for i := 0; i < n; i++ {
			x := train.At(i)
			for c := range comps {
				logdens[c] = comps[c].logPi + normals[c].LogProb(x)
			}
			lse := floats.LogSumExp(logdens)
			for c := range comps {
				resp[i][c] = math.Exp(logdens[c] - lse)
			}
			trainScore += w[i] * lse
		}

		if iter > 0 && trainScore-prevTrain <= tol*math.Abs(prevTrain) {
			break
		}
		prevTrain = trainScore

		if req.Validate.Len() > 0 {
			valScore := setScore(req.Validate, comps, normals)
			if iter > 0 && valScore < prevVal {
				break
			}
			prevVal = valScore
		}

		// M-step.
		pi := make([]float64, k)
		for c := range comps {
			nc := 0.0
			for i := 0; i < n; i++ {
				nc += w[i] * resp[i][c]
			}
			if nc <= 1e-12 {
				// Component lost all responsibility: reseed it at the
				// point farthest from every current mean.
				idx := farthestFrom(train, comps)
				copy(comps[c].mean, train.At(idx))
				comps[c].sigma.CopySym(&global)
				pi[c] = 1 / float64(k)
				continue
			}
			pi[c] = nc

			mean := comps[c].mean
			for j := range mean {
				mean[j] = 0
			}
			for i := 0; i < n; i++ {
				g := w[i] * resp[i][c]
				floats.AddScaled(mean, g/nc, train.At(i))
			}

			sigma := comps[c].sigma
			for p := 0; p < d; p++ {
				for q := p; q < d; q++ {
					acc := 0.0
					for i := 0; i < n; i++ {
						x := train.At(i)
						acc += w[i] * resp[i][c] * (x[p] - mean[p]) * (x[q] - mean[q])
					}
					sigma.SetSym(p, q, acc/nc)
				}
			}
			if _, err := ensurePD(sigma, req.Alpha[0]); err != nil {
				return nil, err
			}
		}

		// Mixing proportions, smoothed toward uniform by Alpha[1].
		alpha := req.Alpha[1]
		total := floats.Sum(pi) + float64(k)*alpha
		for c := range comps {
			comps[c].logPi = math.Log((pi[c] + alpha) / total)
		}
	}

	return &mixtureModel{comps: comps}, nil
}

// mixtureModel is the fitted transport: a Gaussian mixture.
type mixtureModel struct {
	comps []component
}

// Sample implements temper.DensityModel.
func (m *mixtureModel) Sample(rng *rand.Rand, n int) ([][]float64, []float64, error) {
	normals, err := componentNormals(m.comps, rng)
	if err != nil {
		return nil, nil, err
	}
	pis := make([]float64, len(m.comps))
	for c, comp := range m.comps {
		pis[c] = math.Exp(comp.logPi)
	}
	cat := distuv.NewCategorical(pis, rng)

	samples := make([][]float64, n)
	logq := make([]float64, n)
	logdens := make([]float64, len(m.comps))
	for i := range samples {
		c := int(cat.Rand())
		x := normals[c].Rand(nil)
		samples[i] = x
		for j := range m.comps {
			logdens[j] = m.comps[j].logPi + normals[j].LogProb(x)
		}
		logq[i] = floats.LogSumExp(logdens)
	}
	return samples, logq, nil
}

// componentNormals materializes one gonum normal per component.
func componentNormals(comps []component, src rand.Source) ([]*distmv.Normal, error) {
	normals := make([]*distmv.Normal, len(comps))
	for c, comp := range comps {
		normal, ok := distmv.NewNormal(comp.mean, comp.sigma, src)
		if !ok {
			return nil, ErrSingularCovariance
		}
		normals[c] = normal
	}
	return normals, nil
}

// setScore is the weighted mean mixture log density over a sample set.
func setScore(set temper.SampleSet, comps []component, normals []*distmv.Normal) float64 {
	logdens := make([]float64, len(comps))
	score := 0.0
	total := 0.0
	for i := 0; i < set.Len(); i++ {
		x := set.At(i)
		for c := range comps {
			logdens[c] = comps[c].logPi + normals[c].LogProb(x)
		}
		wi := set.Weight(i)
		score += wi * floats.LogSumExp(logdens)
		total += wi
	}
	if total == 0 {
		return math.Inf(-1)
	}
	return score / total
}

// farthestPoints seeds k centers deterministically: the heaviest sample
// first, then repeatedly the sample farthest from every chosen center.
func farthestPoints(train temper.SampleSet, w []float64, k int) []int {
	chosen := make([]int, 1, k)
	best := 0
	for i := 1; i < train.Len(); i++ {
		if w[i] > w[best] {
			best = i
		}
	}
	chosen[0] = best

	minDist := make([]float64, train.Len())
	for i := range minDist {
		minDist[i] = floats.Distance(train.At(i), train.At(best), 2)
	}
	for len(chosen) < k {
		next := 0
		for i := 1; i < train.Len(); i++ {
			if minDist[i] > minDist[next] {
				next = i
			}
		}
		chosen = append(chosen, next)
		for i := range minDist {
			minDist[i] = math.Min(minDist[i], floats.Distance(train.At(i), train.At(next), 2))
		}
	}
	return chosen
}

// farthestFrom returns the index of the training sample farthest from every
// component mean.
func farthestFrom(train temper.SampleSet, comps []component) int {
	best, bestDist := 0, math.Inf(-1)
	for i := 0; i < train.Len(); i++ {
		nearest := math.Inf(1)
		for _, comp := range comps {
			nearest = math.Min(nearest, floats.Distance(train.At(i), comp.mean, 2))
		}
		if nearest > bestDist {
			best, bestDist = i, nearest
		}
	}
	return best
}
