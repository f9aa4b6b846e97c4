// Package temper implements a Sequential Monte Carlo sampler whose stage
// proposals come from a learned density model (a normalizing-flow style
// transport) rather than a random-walk kernel.
//
// temper anneals from the prior (inverse temperature beta=0) to the full
// posterior (beta=1) through adaptively chosen tempered stages. Each stage
// refits the density model to the accumulated importance-weighted sample
// pool, draws a fresh proposal batch, and reweights it against the posterior.
// Independent chains run in isolation and are merged into a single Result.
//
// Basic usage:
//
//	sampler, err := temper.NewSampler(model, flow.Gaussian{}, temper.Config{
//	    Draws:  1000,
//	    Chains: 4,
//	    Seed:   temper.SeedValue(42),
//	})
//	if err != nil {
//	    log.Fatal(err)
//	}
//
//	res, err := sampler.Sample(context.Background())
//	if err != nil {
//	    log.Fatal(err)
//	}
//	summary, err := res.Summary("mu")
//	if err != nil {
//	    log.Fatal(err)
//	}
//	fmt.Printf("mu = %.3f +/- %.3f\n", summary.Mean[0], summary.Std[0])
//
// The probabilistic model, the density-model fitter, and the optional
// warm-start optimizer are collaborators behind small interfaces (Model,
// DensityFitter, TrajectoryOptimizer). Reference implementations live in the
// flow, models and ascent subpackages.
package temper
