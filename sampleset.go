package temper

import "fmt"

// SampleSet is a batch of flat parameter vectors with optional per-draw
// weights. It is the currency between the sampler core and density-model
// fitters: fit requests carry SampleSets and chain results expose one.
// A nil weight slice means every draw counts equally.
type SampleSet struct {
	samples [][]float64
	weights []float64
	dim     int
}

// NewSampleSet builds an unweighted SampleSet. All rows must share one
// non-zero length.
func NewSampleSet(samples [][]float64) (SampleSet, error) {
	return NewWeightedSampleSet(samples, nil)
}

// NewWeightedSampleSet builds a SampleSet with per-draw weights. weights may
// be nil (unweighted); otherwise it must match samples in length and hold no
// negative entries.
func NewWeightedSampleSet(samples [][]float64, weights []float64) (SampleSet, error) {
	if len(samples) == 0 {
		return SampleSet{}, fmt.Errorf("%w: empty sample set", ErrInvalidConfig)
	}
	dim := len(samples[0])
	if dim == 0 {
		return SampleSet{}, fmt.Errorf("%w: zero-length sample vectors", ErrInvalidConfig)
	}
	for i, s := range samples {
		if len(s) != dim {
			return SampleSet{}, fmt.Errorf("%w: sample %d has length %d, want %d", ErrInvalidConfig, i, len(s), dim)
		}
	}
	if weights != nil {
		if len(weights) != len(samples) {
			return SampleSet{}, fmt.Errorf("%w: %d weights for %d samples", ErrInvalidConfig, len(weights), len(samples))
		}
		for i, w := range weights {
			if w < 0 {
				return SampleSet{}, fmt.Errorf("%w: negative weight at index %d", ErrInvalidConfig, i)
			}
		}
	}
	return SampleSet{samples: samples, weights: weights, dim: dim}, nil
}

// Len returns the number of draws in the set.
func (s SampleSet) Len() int { return len(s.samples) }

// Dim returns the flat vector length shared by all draws.
func (s SampleSet) Dim() int { return s.dim }

// At returns the i-th draw. The slice aliases internal storage; callers that
// mutate it must Clone first.
func (s SampleSet) At(i int) []float64 { return s.samples[i] }

// Weighted reports whether the set carries per-draw weights.
func (s SampleSet) Weighted() bool { return s.weights != nil }

// Weight returns the i-th draw's weight, 1 for unweighted sets.
func (s SampleSet) Weight(i int) float64 {
	if s.weights == nil {
		return 1
	}
	return s.weights[i]
}

// Weights returns the weight slice, nil for unweighted sets. The slice
// aliases internal storage.
func (s SampleSet) Weights() []float64 { return s.weights }

// Split partitions the set at index floor((1-fracValidate)*Len) into a
// training head and a validation tail. The tail may be empty. Both halves
// alias the receiver's storage.
func (s SampleSet) Split(fracValidate float64) (train, validate SampleSet) {
	idx := int((1 - fracValidate) * float64(len(s.samples)))
	if idx < 1 {
		idx = 1
	}
	if idx > len(s.samples) {
		idx = len(s.samples)
	}
	train = SampleSet{samples: s.samples[:idx], dim: s.dim}
	validate = SampleSet{samples: s.samples[idx:], dim: s.dim}
	if s.weights != nil {
		train.weights = s.weights[:idx]
		validate.weights = s.weights[idx:]
	}
	return train, validate
}

// Clone returns a deep copy sharing no storage with the receiver.
func (s SampleSet) Clone() SampleSet {
	out := SampleSet{dim: s.dim}
	if s.samples != nil {
		out.samples = make([][]float64, len(s.samples))
		for i, row := range s.samples {
			cp := make([]float64, len(row))
			copy(cp, row)
			out.samples[i] = cp
		}
	}
	if s.weights != nil {
		out.weights = make([]float64, len(s.weights))
		copy(out.weights, s.weights)
	}
	return out
}
