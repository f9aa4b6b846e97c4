package temper

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"math/rand/v2"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat/distuv"
)

// phase identifies where an annealer is in its lifecycle.
type phase int

const (
	phaseUninitialized phase = iota
	phasePriorFit
	phaseBetaStep
	phaseRefit
	phaseReweight
	phaseConverged
	phaseResampled
)

var phaseNames = [...]string{
	phaseUninitialized: "Uninitialized",
	phasePriorFit:      "PriorFit",
	phaseBetaStep:      "BetaStep",
	phaseRefit:         "Refit",
	phaseReweight:      "Reweight",
	phaseConverged:     "Converged",
	phaseResampled:     "Resampled",
}

// String returns the phase name. For invalid values it returns "phase(n)".
func (p phase) String() string {
	if p >= phaseUninitialized && p <= phaseResampled {
		return phaseNames[p]
	}
	return fmt.Sprintf("phase(%d)", int(p))
}

// annealer drives one chain from the prior (β=0) to the posterior (β=1):
// fit the density model, advance β to hold the effective sample size at the
// target, refit on the growing weighted pool, repeat until β reaches 1, then
// resample the pool down to a uniform-weight posterior.
//
// An annealer is strictly single-goroutine. All cross-chain parallelism
// lives in the Sampler above it.
type annealer struct {
	model     *adapter
	fitter    DensityFitter
	optimizer TrajectoryOptimizer
	rng       *rand.Rand
	logger    *slog.Logger

	draws        int
	threshold    float64
	fracValidate float64
	alpha        [2]float64
	kTrunc       float64
	start        [][]float64
	warmStart    bool
	optimIter    int

	phase phase
	stage int
	beta  float64
	betas []float64

	density DensityModel

	// Append-only pool accumulated across stages. The three slices are
	// parallel: sample, truncated linear weight, likelihood log density.
	pool     [][]float64
	poolW    []float64
	poolLike []float64

	// Untruncated log weights of the most recent stage's batch; their mean
	// is the marginal-likelihood estimate.
	rawLogW []float64
}

// newAnnealer wires one chain's collaborators to a normalized config.
// A nil logger disables progress output.
func newAnnealer(model *adapter, fitter DensityFitter, cfg Config, rng *rand.Rand, logger *slog.Logger) *annealer {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &annealer{
		model:        model,
		fitter:       fitter,
		optimizer:    cfg.Optimizer,
		rng:          rng,
		logger:       logger,
		draws:        cfg.Draws,
		threshold:    cfg.Threshold,
		fracValidate: cfg.FracValidate,
		alpha:        cfg.Alpha,
		kTrunc:       *cfg.KTrunc,
		start:        cfg.Start,
		warmStart:    cfg.WarmStart,
		optimIter:    cfg.OptimIter,
		phase:        phaseUninitialized,
	}
}

// run drives the annealer start to finish and returns the uniform-weight
// posterior together with the log marginal-likelihood estimate.
// Cancellation is checked between stages, never mid-fit.
func (a *annealer) run(ctx context.Context) (SampleSet, float64, error) {
	if err := ctx.Err(); err != nil {
		return SampleSet{}, 0, err
	}
	population, err := a.initialPopulation(ctx)
	if err != nil {
		return SampleSet{}, 0, err
	}
	if err := a.priorFit(ctx, population); err != nil {
		return SampleSet{}, 0, err
	}
	for a.beta < 1 {
		if err := ctx.Err(); err != nil {
			return SampleSet{}, 0, err
		}
		if err := a.step(ctx); err != nil {
			return SampleSet{}, 0, err
		}
	}
	logML, err := a.logMarginalLikelihood()
	if err != nil {
		return SampleSet{}, 0, err
	}
	posterior, err := a.resample()
	if err != nil {
		return SampleSet{}, 0, err
	}
	return posterior, logML, nil
}

// initialPopulation produces the training set for the prior fit: the Start
// override or a prior draw, optionally enriched by warm-start ascents.
func (a *annealer) initialPopulation(ctx context.Context) ([][]float64, error) {
	var population [][]float64
	if a.start != nil {
		population = make([][]float64, len(a.start))
		for i, row := range a.start {
			cp := make([]float64, len(row))
			copy(cp, row)
			population[i] = cp
		}
	} else {
		var err error
		population, err = a.model.samplePrior(a.rng, a.draws)
		if err != nil {
			return nil, err
		}
	}
	if !a.warmStart {
		return population, nil
	}
	return a.ascendPopulation(ctx, population)
}

// ascendPopulation replaces the population with the union of ascent
// trajectories started from each of its points. Ascents are best-effort: a
// failed one contributes whatever partial trajectory it produced, so
// degenerate evaluations map to values the optimizer stops on rather than
// to errors.
func (a *annealer) ascendPopulation(ctx context.Context, population [][]float64) ([][]float64, error) {
	obj := Objective{
		Func: func(x []float64) float64 {
			post, err := a.model.logPosterior(x)
			if err != nil {
				return math.Inf(-1)
			}
			return post
		},
		Grad: func(x []float64) []float64 {
			grad, _, err := a.model.gradLogPosterior(x)
			if err != nil || grad == nil {
				return make([]float64, len(x))
			}
			return grad
		},
	}
	out := make([][]float64, 0, 2*len(population))
	for _, x0 := range population {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		traj, err := a.optimizer.Optimize(ctx, obj, x0, a.optimIter)
		if err != nil {
			a.logger.Warn("warm-start ascent failed", "err", err)
		}
		if len(traj) == 0 {
			traj = [][]float64{x0}
		}
		out = append(out, traj...)
	}
	return out, nil
}

// priorFit fits the density model to the initial population, then draws and
// weights the first batch. β stays at 0.
func (a *annealer) priorFit(ctx context.Context, population [][]float64) error {
	a.phase = phasePriorFit
	set, err := NewSampleSet(population)
	if err != nil {
		return err
	}
	train, validate := set.Split(a.fracValidate)
	if err := a.fit(ctx, train, validate); err != nil {
		return err
	}
	return a.expandPool()
}

// step advances one annealing stage: pick the next β by the ESS target,
// refit the density model on the cumulative weighted pool, then draw and
// weight a fresh batch.
func (a *annealer) step(ctx context.Context) error {
	a.phase = phaseBetaStep
	target := a.threshold * float64(len(a.pool))
	prev := a.beta
	next := nextBeta(a.poolLike, prev, target)
	if next < 1 && next-prev <= betaTol {
		return fmt.Errorf("%w: beta stalled at %.6f", ErrNoProgress, prev)
	}
	a.stage++
	a.beta = next
	a.betas = append(a.betas, next)
	a.logger.Info("annealing stage", "stage", a.stage, "beta", a.beta)
	if next == 1 {
		// The saturated last step may land below the ESS target; record by
		// how much rather than shrinking the step.
		logw := make([]float64, len(a.poolLike))
		for i, ll := range a.poolLike {
			logw[i] = (1 - prev) * ll
		}
		if ess := essFromLogWeights(logw); ess < target {
			a.logger.Warn("final annealing step fell short of ESS target", "ess", ess, "target", target)
		}
	}

	a.phase = phaseRefit
	set, err := NewWeightedSampleSet(a.pool, a.poolW)
	if err != nil {
		return err
	}
	train, validate := set.Split(a.fracValidate)
	if err := a.fit(ctx, train, validate); err != nil {
		return err
	}

	a.phase = phaseReweight
	return a.expandPool()
}

// fit runs the density fitter and installs the returned model.
func (a *annealer) fit(ctx context.Context, train, validate SampleSet) error {
	density, err := a.fitter.Fit(ctx, FitRequest{Train: train, Validate: validate, Alpha: a.alpha})
	if err != nil {
		return fmt.Errorf("%w: stage %d: %w", ErrFitFailed, a.stage, err)
	}
	if density == nil {
		return fmt.Errorf("%w: stage %d: fitter returned no model", ErrFitFailed, a.stage)
	}
	a.density = density
	return nil
}

// expandPool draws a batch from the current density model, weights it
// against the posterior, truncates, and appends it to the pool.
func (a *annealer) expandPool() error {
	samples, logq, err := a.density.Sample(a.rng, a.draws)
	if err != nil {
		return fmt.Errorf("%w: stage %d: drawing batch: %w", ErrFitFailed, a.stage, err)
	}
	if len(samples) != a.draws || len(logq) != a.draws {
		return fmt.Errorf("%w: stage %d: batch of %d samples, %d log densities, want %d",
			ErrFitFailed, a.stage, len(samples), len(logq), a.draws)
	}

	rawLogW := make([]float64, a.draws)
	likeLogp := make([]float64, a.draws)
	for i, x := range samples {
		if !isFinite(logq[i]) {
			return fmt.Errorf("%w: stage %d: non-finite log density for draw %d", ErrFitFailed, a.stage, i)
		}
		logPrior, logLike, err := a.model.logDensities(x)
		if err != nil {
			return err
		}
		rawLogW[i] = logPrior + logLike - logq[i]
		likeLogp[i] = logLike
	}

	truncated := capLogWeights(rawLogW, truncationCap(rawLogW, a.kTrunc))
	weights := make([]float64, a.draws)
	collapsed := true
	for i, lw := range truncated {
		weights[i] = math.Exp(lw)
		if weights[i] > 0 {
			collapsed = false
		}
	}
	if collapsed {
		return fmt.Errorf("%w: stage %d: all %d weights underflowed to zero", ErrWeightCollapse, a.stage, a.draws)
	}

	a.rawLogW = rawLogW
	a.pool = append(a.pool, samples...)
	a.poolW = append(a.poolW, weights...)
	a.poolLike = append(a.poolLike, likeLogp...)
	return nil
}

// logMarginalLikelihood estimates the chain's evidence contribution: the log
// of the mean untruncated final-stage weight.
func (a *annealer) logMarginalLikelihood() (float64, error) {
	logML := logMeanExp(a.rawLogW)
	if !isFinite(logML) {
		return 0, fmt.Errorf("%w: marginal likelihood estimate is %v", ErrWeightCollapse, logML)
	}
	return logML, nil
}

// resample draws the final posterior: draws indices from the whole pool,
// with replacement, proportional to truncated weight.
func (a *annealer) resample() (SampleSet, error) {
	a.phase = phaseConverged
	total := floats.Sum(a.poolW)
	if len(a.poolW) == 0 || total <= 0 || !isFinite(total) {
		return SampleSet{}, fmt.Errorf("%w: pool weights sum to %v over %d samples", ErrWeightCollapse, total, len(a.poolW))
	}
	cat := distuv.NewCategorical(a.poolW, a.rng)
	out := make([][]float64, a.draws)
	for i := range out {
		idx := int(cat.Rand())
		row := make([]float64, len(a.pool[idx]))
		copy(row, a.pool[idx])
		out[i] = row
	}
	a.phase = phaseResampled
	return SampleSet{samples: out, dim: a.model.dim()}, nil
}

func isFinite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}
