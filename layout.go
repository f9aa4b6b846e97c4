package temper

import (
	"fmt"
	"strings"
)

// NamespaceSeparator marks namespaced variable names produced by nested
// sub-models. Models using it are rejected at setup (see ErrNestedModel).
const NamespaceSeparator = "::"

// VarSpec declares one unobserved model variable: a name and a shape.
// An empty shape denotes a scalar.
type VarSpec struct {
	Name  string
	Shape []int
}

// Size returns the flat element count of the variable (1 for scalars).
func (v VarSpec) Size() int {
	size := 1
	for _, d := range v.Shape {
		size *= d
	}
	return size
}

type layoutVar struct {
	spec   VarSpec
	offset int
	size   int
}

// Layout maps named, shaped model variables onto a flat parameter vector.
// Offsets partition the vector exactly: no gaps, no overlaps. A Layout is
// built once per sampler and never mutated.
type Layout struct {
	vars   []layoutVar
	byName map[string]int
	dim    int
}

// NewLayout builds a Layout from variable specs in declaration order.
// It rejects empty spec lists, duplicate or namespaced names, and
// non-positive shape dimensions.
func NewLayout(specs []VarSpec) (*Layout, error) {
	if len(specs) == 0 {
		return nil, fmt.Errorf("%w: model declares no variables", ErrInvalidConfig)
	}

	l := &Layout{
		vars:   make([]layoutVar, 0, len(specs)),
		byName: make(map[string]int, len(specs)),
	}
	offset := 0
	for _, spec := range specs {
		if spec.Name == "" {
			return nil, fmt.Errorf("%w: variable with empty name", ErrInvalidConfig)
		}
		if strings.Contains(spec.Name, NamespaceSeparator) {
			return nil, fmt.Errorf("%w: variable %q", ErrNestedModel, spec.Name)
		}
		if _, dup := l.byName[spec.Name]; dup {
			return nil, fmt.Errorf("%w: duplicate variable %q", ErrInvalidConfig, spec.Name)
		}
		for _, d := range spec.Shape {
			if d <= 0 {
				return nil, fmt.Errorf("%w: variable %q has non-positive dimension %d", ErrInvalidConfig, spec.Name, d)
			}
		}

		size := spec.Size()
		l.byName[spec.Name] = len(l.vars)
		l.vars = append(l.vars, layoutVar{spec: spec, offset: offset, size: size})
		offset += size
	}
	l.dim = offset
	return l, nil
}

// Dim returns the total flat vector length.
func (l *Layout) Dim() int { return l.dim }

// Vars returns the variable specs in layout order.
func (l *Layout) Vars() []VarSpec {
	specs := make([]VarSpec, len(l.vars))
	for i, v := range l.vars {
		specs[i] = v.spec
	}
	return specs
}

// Offset returns the flat offset and size of the named variable.
// ok is false if the variable is not part of the layout.
func (l *Layout) Offset(name string) (offset, size int, ok bool) {
	i, ok := l.byName[name]
	if !ok {
		return 0, 0, false
	}
	return l.vars[i].offset, l.vars[i].size, true
}

// ValueOf returns the slice of x holding the named variable's elements.
// The returned slice aliases x. ok is false for unknown names or when x has
// the wrong length.
func (l *Layout) ValueOf(name string, x []float64) (val []float64, ok bool) {
	if len(x) != l.dim {
		return nil, false
	}
	offset, size, ok := l.Offset(name)
	if !ok {
		return nil, false
	}
	return x[offset : offset+size], true
}
