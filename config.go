package temper

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"runtime"
	"strconv"

	"gopkg.in/yaml.v3"
)

// Config configures a Sampler.
// Zero values produce sensible defaults; see field comments.
type Config struct {
	// Draws is the number of posterior samples per chain, which is also the
	// batch size drawn from the density model at every stage. Zero → 2000.
	Draws int `yaml:"draws"`

	// Threshold is the target effective-sample-size fraction of one
	// annealing step, in (0, 1). Higher values take smaller β steps and
	// therefore more stages. Zero → 0.5.
	Threshold float64 `yaml:"threshold"`

	// FracValidate is the fraction of each fit's training material held out
	// for validation, in (0, 1). Zero → 0.1.
	FracValidate float64 `yaml:"frac_validate"`

	// Alpha is a pair of regularization parameters forwarded verbatim to the
	// density fitter.
	Alpha [2]float64 `yaml:"alpha"`

	// KTrunc controls importance-weight truncation: each stage's weights are
	// capped at mean(w)·draws^KTrunc. Must lie in [0, 1); nil → 0.25.
	KTrunc *float64 `yaml:"k_trunc"`

	// Chains is the number of independent chains. Zero → max(2, Cores).
	Chains int `yaml:"chains"`

	// Cores caps the number of chains running concurrently. Zero → the
	// machine's CPU count, at most 4.
	Cores int `yaml:"cores"`

	// Seed selects the run's randomness: unset seeds from the clock, a
	// single value is a master seed from which per-chain seeds derive, a
	// list gives one seed per chain and must match Chains in length.
	Seed Seed `yaml:"random_seed"`

	// Parallel distributes chains across up to Cores worker goroutines.
	// A single chain always runs sequentially regardless of this flag.
	Parallel bool `yaml:"parallel"`

	// Start optionally replaces the prior draw as the initial population.
	// Rows are flat vectors in layout order.
	Start [][]float64 `yaml:"-"`

	// WarmStart enriches the initial training set with ascent trajectories
	// started from each initial sample. Requires Optimizer and a model
	// implementing GradientModel.
	WarmStart bool `yaml:"warm_start"`

	// OptimIter caps the iterations of one warm-start ascent. Zero → 1000.
	OptimIter int `yaml:"optim_iter"`

	// Optimizer runs the warm-start ascents. Only consulted when WarmStart
	// is set.
	Optimizer TrajectoryOptimizer `yaml:"-"`

	// Logger receives progress output; nil means silent.
	Logger *slog.Logger `yaml:"-"`
}

// withDefaults returns cfg with zero-value fields replaced by defaults and
// every field validated. Invalid values surface as ErrInvalidConfig before
// any chain starts.
func (c Config) withDefaults() (Config, error) {
	// Draws: zero → 2000.
	if c.Draws == 0 {
		c.Draws = 2000
	}
	if c.Draws < 1 {
		return Config{}, fmt.Errorf("%w: draws %d, must be positive", ErrInvalidConfig, c.Draws)
	}

	// Threshold: zero → 0.5.
	if c.Threshold == 0 {
		c.Threshold = 0.5
	}
	if c.Threshold <= 0 || c.Threshold >= 1 {
		return Config{}, fmt.Errorf("%w: threshold %f out of range (0, 1)", ErrInvalidConfig, c.Threshold)
	}

	// FracValidate: zero → 0.1.
	if c.FracValidate == 0 {
		c.FracValidate = 0.1
	}
	if c.FracValidate <= 0 || c.FracValidate >= 1 {
		return Config{}, fmt.Errorf("%w: frac_validate %f out of range (0, 1)", ErrInvalidConfig, c.FracValidate)
	}

	// KTrunc: nil → 0.25. Zero is a legal value (cap at the mean weight).
	if c.KTrunc == nil {
		k := 0.25
		c.KTrunc = &k
	}
	if *c.KTrunc < 0 || *c.KTrunc >= 1 {
		return Config{}, fmt.Errorf("%w: k_trunc %f out of range [0, 1)", ErrInvalidConfig, *c.KTrunc)
	}

	// Cores: zero → CPU count capped at 4.
	if c.Cores == 0 {
		c.Cores = runtime.NumCPU()
		if c.Cores > 4 {
			c.Cores = 4
		}
	}
	if c.Cores < 1 {
		return Config{}, fmt.Errorf("%w: cores %d, must be positive", ErrInvalidConfig, c.Cores)
	}

	// Chains: zero → max(2, cores). One chain never needs more than one core.
	if c.Chains == 0 {
		c.Chains = max(2, c.Cores)
	}
	if c.Chains < 1 {
		return Config{}, fmt.Errorf("%w: chains %d, must be positive", ErrInvalidConfig, c.Chains)
	}
	if c.Chains == 1 {
		c.Cores = 1
	}

	if c.Seed.perChain && len(c.Seed.values) != c.Chains {
		return Config{}, fmt.Errorf("%w: %d seeds for %d chains", ErrInvalidConfig, len(c.Seed.values), c.Chains)
	}

	if c.Start != nil {
		if len(c.Start) == 0 {
			return Config{}, fmt.Errorf("%w: empty start population", ErrInvalidConfig)
		}
		for i, row := range c.Start {
			if len(row) != len(c.Start[0]) {
				return Config{}, fmt.Errorf("%w: start row %d has length %d, want %d", ErrInvalidConfig, i, len(row), len(c.Start[0]))
			}
		}
	}

	// OptimIter: zero → 1000.
	if c.OptimIter == 0 {
		c.OptimIter = 1000
	}
	if c.OptimIter < 1 {
		return Config{}, fmt.Errorf("%w: optim_iter %d, must be positive", ErrInvalidConfig, c.OptimIter)
	}
	if c.WarmStart && c.Optimizer == nil {
		return Config{}, fmt.Errorf("%w: warm start requires an optimizer", ErrInvalidConfig)
	}

	return c, nil
}

// Seed selects the randomness of a run. The zero value is unset: the run is
// seeded from the clock and is not reproducible.
type Seed struct {
	values   []int64
	perChain bool
	set      bool
}

// SeedValue returns a single master seed; per-chain seeds derive from it
// deterministically.
func SeedValue(v int64) Seed {
	return Seed{values: []int64{v}, set: true}
}

// SeedList returns explicit per-chain seeds. The list length must equal the
// configured chain count.
func SeedList(vs ...int64) Seed {
	out := make([]int64, len(vs))
	copy(out, vs)
	return Seed{values: out, perChain: true, set: true}
}

// IsSet reports whether the seed was explicitly configured.
func (s Seed) IsSet() bool { return s.set }

// Values returns the configured seed values: one for a master seed, one per
// chain for a seed list, nil when unset.
func (s Seed) Values() []int64 {
	out := make([]int64, len(s.values))
	copy(out, s.values)
	return out
}

// UnmarshalYAML implements yaml.Unmarshaler. Accepted forms: an integer, a
// sequence of integers, or null. Anything else — floats in particular — is
// ErrInvalidConfig, raised before any sampling work begins.
func (s *Seed) UnmarshalYAML(value *yaml.Node) error {
	switch value.Kind {
	case yaml.ScalarNode:
		if value.Tag == "!!null" {
			*s = Seed{}
			return nil
		}
		if value.Tag != "!!int" {
			return fmt.Errorf("%w: random_seed must be an integer or a list of integers, got %q", ErrInvalidConfig, value.Value)
		}
		v, err := strconv.ParseInt(value.Value, 0, 64)
		if err != nil {
			return fmt.Errorf("%w: random_seed %q: %v", ErrInvalidConfig, value.Value, err)
		}
		*s = SeedValue(v)
		return nil

	case yaml.SequenceNode:
		vs := make([]int64, 0, len(value.Content))
		for _, n := range value.Content {
			if n.Kind != yaml.ScalarNode || n.Tag != "!!int" {
				return fmt.Errorf("%w: random_seed entries must be integers, got %q", ErrInvalidConfig, n.Value)
			}
			v, err := strconv.ParseInt(n.Value, 0, 64)
			if err != nil {
				return fmt.Errorf("%w: random_seed entry %q: %v", ErrInvalidConfig, n.Value, err)
			}
			vs = append(vs, v)
		}
		*s = SeedList(vs...)
		return nil
	}
	return fmt.Errorf("%w: random_seed must be an integer or a list of integers", ErrInvalidConfig)
}

// LoadConfig reads a YAML sampler configuration from path.
func LoadConfig(path string) (Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("temper: read config: %w", err)
	}
	return ParseConfig(data)
}

// ParseConfig parses a YAML sampler configuration. Unknown keys are rejected
// so typos fail fast; an empty document yields the zero Config.
func ParseConfig(data []byte) (Config, error) {
	var cfg Config
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&cfg); err != nil {
		if errors.Is(err, io.EOF) {
			return Config{}, nil
		}
		if errors.Is(err, ErrInvalidConfig) {
			return Config{}, err
		}
		return Config{}, fmt.Errorf("%w: %v", ErrInvalidConfig, err)
	}
	return cfg, nil
}
