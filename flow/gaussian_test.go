package flow

import (
	"context"
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

func mustTrainSet(t *testing.T, samples [][]float64) temper.SampleSet {
	t.Helper()
	set, err := temper.NewSampleSet(samples)
	require.NoError(t, err)
	return set
}

func mustWeightedSet(t *testing.T, samples [][]float64, weights []float64) temper.SampleSet {
	t.Helper()
	set, err := temper.NewWeightedSampleSet(samples, weights)
	require.NoError(t, err)
	return set
}

// correlated2D draws n points with mean (1, -3), variances (4, 1) and
// covariance 1.2.
func correlated2D(rng *rand.Rand, n int) [][]float64 {
	out := make([][]float64, n)
	for i := range out {
		z1, z2 := rng.NormFloat64(), rng.NormFloat64()
		out[i] = []float64{1 + 2*z1, -3 + 0.6*z1 + 0.8*z2}
	}
	return out
}

func drawMoments(samples [][]float64) (mean []float64, cov float64, vars []float64) {
	n := len(samples)
	xs := make([]float64, n)
	ys := make([]float64, n)
	for i, s := range samples {
		xs[i], ys[i] = s[0], s[1]
	}
	mean = []float64{stat.Mean(xs, nil), stat.Mean(ys, nil)}
	cov = stat.Covariance(xs, ys, nil)
	vars = []float64{stat.Variance(xs, nil), stat.Variance(ys, nil)}
	return mean, cov, vars
}

// --- Fit ---

func TestGaussianRecoversMoments(t *testing.T) {
	train := mustTrainSet(t, correlated2D(testRNG(1), 4000))
	model, err := Gaussian{}.Fit(context.Background(), temper.FitRequest{Train: train})
	require.NoError(t, err)

	samples, logq, err := model.Sample(testRNG(2), 8000)
	require.NoError(t, err)
	require.Len(t, samples, 8000)
	require.Len(t, logq, 8000)

	mean, cov, vars := drawMoments(samples)
	assert.InDelta(t, 1, mean[0], 0.15)
	assert.InDelta(t, -3, mean[1], 0.1)
	assert.InDelta(t, 4, vars[0], 0.4)
	assert.InDelta(t, 1, vars[1], 0.15)
	assert.InDelta(t, 1.2, cov, 0.2)

	for i, lq := range logq {
		require.False(t, math.IsNaN(lq) || math.IsInf(lq, 0), "logq[%d]", i)
	}
}

func TestGaussianWeightedFitFollowsWeights(t *testing.T) {
	rng := testRNG(3)
	samples := make([][]float64, 0, 200)
	weights := make([]float64, 0, 200)
	for i := 0; i < 100; i++ { // ignored cluster at 0
		samples = append(samples, []float64{0.3 * rng.NormFloat64()})
		weights = append(weights, 0)
	}
	for i := 0; i < 100; i++ { // carried cluster at 5
		samples = append(samples, []float64{5 + 0.3*rng.NormFloat64()})
		weights = append(weights, 1)
	}
	train := mustWeightedSet(t, samples, weights)

	model, err := Gaussian{}.Fit(context.Background(), temper.FitRequest{Train: train})
	require.NoError(t, err)
	draws, _, err := model.Sample(testRNG(4), 2000)
	require.NoError(t, err)

	col := make([]float64, len(draws))
	for i, d := range draws {
		col[i] = d[0]
	}
	assert.InDelta(t, 5, stat.Mean(col, nil), 0.2)
}

func TestGaussianSurvivesCollinearInput(t *testing.T) {
	// Rank-deficient covariance: the jitter escalation has to rescue it.
	samples := make([][]float64, 50)
	for i := range samples {
		x := float64(i)
		samples[i] = []float64{x, 2 * x}
	}
	model, err := Gaussian{}.Fit(context.Background(), temper.FitRequest{Train: mustTrainSet(t, samples)})
	require.NoError(t, err)

	draws, _, err := model.Sample(testRNG(5), 10)
	require.NoError(t, err)
	assert.Len(t, draws, 10)
}

func TestGaussianRidgeWidensProposal(t *testing.T) {
	samples := correlated2D(testRNG(6), 1000)
	plain, err := Gaussian{}.Fit(context.Background(), temper.FitRequest{Train: mustTrainSet(t, samples)})
	require.NoError(t, err)
	ridged, err := Gaussian{}.Fit(context.Background(), temper.FitRequest{
		Train: mustTrainSet(t, samples),
		Alpha: [2]float64{5, 0},
	})
	require.NoError(t, err)

	plainDraws, _, err := plain.Sample(testRNG(7), 4000)
	require.NoError(t, err)
	ridgedDraws, _, err := ridged.Sample(testRNG(7), 4000)
	require.NoError(t, err)

	_, _, plainVars := drawMoments(plainDraws)
	_, _, ridgedVars := drawMoments(ridgedDraws)
	assert.Greater(t, ridgedVars[0], plainVars[0])
	assert.Greater(t, ridgedVars[1], plainVars[1])
}

func TestGaussianDeterministicGivenSeed(t *testing.T) {
	train := mustTrainSet(t, correlated2D(testRNG(8), 500))
	model, err := Gaussian{}.Fit(context.Background(), temper.FitRequest{Train: train})
	require.NoError(t, err)

	a, alq, err := model.Sample(testRNG(9), 50)
	require.NoError(t, err)
	b, blq, err := model.Sample(testRNG(9), 50)
	require.NoError(t, err)
	assert.Equal(t, a, b)
	assert.Equal(t, alq, blq)
}

// --- degenerate input ---

func TestGaussianRejectsTooFewSamples(t *testing.T) {
	_, err := Gaussian{}.Fit(context.Background(), temper.FitRequest{
		Train: mustTrainSet(t, [][]float64{{1, 2}}),
	})
	assert.ErrorIs(t, err, ErrDegenerateInput)
}

func TestGaussianRejectsZeroVariance(t *testing.T) {
	samples := [][]float64{{1, 2}, {1, 2}, {1, 2}}
	_, err := Gaussian{}.Fit(context.Background(), temper.FitRequest{
		Train: mustTrainSet(t, samples),
	})
	assert.ErrorIs(t, err, ErrDegenerateInput)
}

func TestGaussianRejectsSinglePointWeight(t *testing.T) {
	samples := [][]float64{{0}, {1}, {2}}
	_, err := Gaussian{}.Fit(context.Background(), temper.FitRequest{
		Train: mustWeightedSet(t, samples, []float64{0, 1, 0}),
	})
	assert.ErrorIs(t, err, ErrDegenerateInput)
}

func TestGaussianRejectsNonFiniteWeight(t *testing.T) {
	samples := [][]float64{{0}, {1}, {2}}
	_, err := Gaussian{}.Fit(context.Background(), temper.FitRequest{
		Train: mustWeightedSet(t, samples, []float64{1, math.NaN(), 1}),
	})
	assert.ErrorIs(t, err, ErrDegenerateInput)
}

func TestGaussianRejectsZeroTotalWeight(t *testing.T) {
	samples := [][]float64{{0}, {1}}
	_, err := Gaussian{}.Fit(context.Background(), temper.FitRequest{
		Train: mustWeightedSet(t, samples, []float64{0, 0}),
	})
	assert.ErrorIs(t, err, ErrDegenerateInput)
}
