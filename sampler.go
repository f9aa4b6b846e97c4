package temper

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/rand/v2"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Sampler runs an ensemble of independent annealed importance-sampling
// chains against one model and merges their posteriors.
type Sampler struct {
	model  *adapter
	fitter DensityFitter
	cfg    Config
	logger *slog.Logger
}

// NewSampler creates a Sampler from the given model, density fitter and
// config. Zero-value config fields are filled with defaults; invalid values,
// a nil collaborator, or a model the sampler cannot handle return an error
// before any chain starts.
func NewSampler(model Model, fitter DensityFitter, cfg Config) (*Sampler, error) {
	if fitter == nil {
		return nil, fmt.Errorf("%w: nil density fitter", ErrInvalidConfig)
	}
	adapter, err := newAdapter(model)
	if err != nil {
		return nil, err
	}
	cfg, err = cfg.withDefaults()
	if err != nil {
		return nil, err
	}
	if cfg.Start != nil && len(cfg.Start[0]) != adapter.dim() {
		return nil, fmt.Errorf("%w: start rows have length %d, model needs %d", ErrInvalidConfig, len(cfg.Start[0]), adapter.dim())
	}
	if cfg.WarmStart {
		if _, ok := model.(GradientModel); !ok {
			return nil, fmt.Errorf("%w: warm start requires a model with gradients", ErrInvalidConfig)
		}
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Sampler{model: adapter, fitter: fitter, cfg: cfg, logger: logger}, nil
}

// Sample runs the configured ensemble to completion and merges the healthy
// chains into a Result.
//
// Every chain runs to termination, success or failure: one chain's error
// never aborts its siblings. Failures are joined into the returned error,
// each wrapped in a ChainError carrying its chain index. The Result is nil
// only when every chain failed; when some chains failed the merged result of
// the healthy ones is returned alongside the joined error.
//
// Cancelling ctx stops each chain at its next stage boundary.
func (s *Sampler) Sample(ctx context.Context) (*Result, error) {
	cfg := s.cfg
	workers := 1
	if cfg.Parallel && cfg.Chains > 1 {
		workers = min(cfg.Cores, cfg.Chains)
	}
	s.logger.Info("sampling", "chains", cfg.Chains, "jobs", workers)

	seeds := resolveSeeds(cfg)
	start := time.Now()
	results := make([]ChainResult, cfg.Chains)
	failures := make([]error, cfg.Chains)

	if workers == 1 {
		for i := 0; i < cfg.Chains; i++ {
			res, err := runChain(ctx, s.chainJob(i, seeds[i]))
			if err != nil {
				failures[i] = err
				continue
			}
			results[i] = res
		}
	} else {
		// Each worker writes only its own job's slot, so the slices need
		// no locking.
		jobs := make(chan chainJob)
		var wg sync.WaitGroup
		for w := 0; w < workers; w++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				for job := range jobs {
					res, err := runChain(ctx, job)
					if err != nil {
						failures[job.index] = err
						continue
					}
					results[job.index] = res
				}
			}()
		}
		for i := 0; i < cfg.Chains; i++ {
			jobs <- s.chainJob(i, seeds[i])
		}
		close(jobs)
		wg.Wait()
	}

	healthy := make([]ChainResult, 0, cfg.Chains)
	for i, res := range results {
		if failures[i] == nil {
			healthy = append(healthy, res)
		}
	}
	err := errors.Join(failures...)
	if len(healthy) == 0 {
		return nil, err
	}
	return &Result{
		RunID:         uuid.New(),
		Chains:        healthy,
		Layout:        s.model.layout,
		DrawsPerChain: cfg.Draws,
		SamplingTime:  time.Since(start),
	}, err
}

// chainJob builds the value-type job for one chain. Only chain 0 receives
// the sampler's logger; the rest run silently.
func (s *Sampler) chainJob(index int, seed uint64) chainJob {
	logger := s.logger
	if index != 0 {
		logger = nil
	}
	return chainJob{
		index:  index,
		seed:   seed,
		model:  s.model,
		fitter: s.fitter,
		cfg:    s.cfg,
		logger: logger,
	}
}

// resolveSeeds produces one seed per chain: explicit per-chain values are
// used directly, a single master seed (or, unset, the clock) seeds a
// generator the per-chain seeds are drawn from. A single chain with a single
// seed uses it as-is.
func resolveSeeds(cfg Config) []uint64 {
	seeds := make([]uint64, cfg.Chains)
	switch {
	case cfg.Seed.perChain:
		for i, v := range cfg.Seed.values {
			seeds[i] = uint64(v)
		}
	case cfg.Seed.set && cfg.Chains == 1:
		seeds[0] = uint64(cfg.Seed.values[0])
	case cfg.Seed.set:
		master := rand.New(rand.NewPCG(uint64(cfg.Seed.values[0]), seedStream))
		for i := range seeds {
			seeds[i] = master.Uint64()
		}
	default:
		master := rand.New(rand.NewPCG(uint64(time.Now().UnixNano()), seedStream))
		for i := range seeds {
			seeds[i] = master.Uint64()
		}
	}
	return seeds
}
