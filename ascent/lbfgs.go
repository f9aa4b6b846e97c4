// Package ascent provides gradient-ascent warm starts for sampler chains:
// an L-BFGS climb of the log posterior that returns its whole trajectory,
// so every visited point can enrich a density fit.
package ascent

import (
	"context"
	"fmt"

	"gonum.org/v1/gonum/optimize"

	"github.com/sky-flux/temper"
)

// Compile-time interface check.
var _ temper.TrajectoryOptimizer = (*LBFGS)(nil)

// LBFGS maximizes an objective with gonum's L-BFGS, recording the location
// of every major iteration. The zero value is ready to use.
type LBFGS struct {
	// GradientThreshold stops the climb when the gradient norm falls below
	// it. Zero keeps gonum's default.
	GradientThreshold float64
}

// Optimize implements temper.TrajectoryOptimizer. The returned trajectory
// always starts at x0 and is returned even when the climb ends in an error,
// so callers can use whatever partial path was produced. Cancelling ctx
// aborts at the next iteration boundary.
func (l *LBFGS) Optimize(ctx context.Context, obj temper.Objective, x0 []float64, maxIter int) ([][]float64, error) {
	start := make([]float64, len(x0))
	copy(start, x0)
	rec := &trajectoryRecorder{ctx: ctx, path: [][]float64{start}}

	// gonum minimizes; flip the signs to climb.
	problem := optimize.Problem{
		Func: func(x []float64) float64 { return -obj.Func(x) },
	}
	if obj.Grad != nil {
		problem.Grad = func(grad, x []float64) {
			g := obj.Grad(x)
			for i := range grad {
				grad[i] = -g[i]
			}
		}
	}
	settings := &optimize.Settings{
		MajorIterations:   maxIter,
		Recorder:          rec,
		GradientThreshold: l.GradientThreshold,
	}
	if _, err := optimize.Minimize(problem, x0, settings, &optimize.LBFGS{}); err != nil {
		return rec.path, fmt.Errorf("ascent: %w", err)
	}
	return rec.path, nil
}

// trajectoryRecorder collects major-iteration locations and doubles as the
// cancellation hook: a recorder error aborts the optimization.
type trajectoryRecorder struct {
	ctx  context.Context
	path [][]float64
}

func (r *trajectoryRecorder) Init() error { return r.ctx.Err() }

func (r *trajectoryRecorder) Record(loc *optimize.Location, op optimize.Operation, _ *optimize.Stats) error {
	if err := r.ctx.Err(); err != nil {
		return err
	}
	if op&optimize.MajorIteration == 0 {
		return nil
	}
	x := make([]float64, len(loc.X))
	copy(x, loc.X)
	r.path = append(r.path, x)
	return nil
}
