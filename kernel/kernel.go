// Package kernel provides the MCMC transition kernels the sampler
// orchestration layer drives: random-walk Metropolis, Hamiltonian Monte
// Carlo, the No-U-Turn sampler, step-size adaptation wrappers, and a
// compound kernel that mixes sub-kernels across state parts. All kernels
// operate on chain-batched state: every state part carries a leading chain
// axis and steps are taken for all chains in one call.
package kernel

import (
	"math"

	"github.com/pkg/errors"
	"gonum.org/v1/gonum/diff/fd"

	"github.com/probkit/temper/rand"
	"github.com/probkit/temper/tensor"
)

// TargetFn is a chain-batched log-probability function: state parts with a
// leading chain axis in, one log-probability per chain out.
type TargetFn func(parts []tensor.Tensor) (tensor.Tensor, error)

// NewStateFn proposes new state parts from the current ones (random-walk
// proposal contract). Declared as an alias so stateless proposal factories
// elsewhere can return the bare function type.
type NewStateFn = func(parts []tensor.Tensor, gen *rand.Generator) ([]tensor.Tensor, error)

// Options carries kernel/adaptation configuration by name. Accepted names
// are declared statically per kernel in its Schema - there is no
// reflection-based discovery.
type Options map[string]interface{}

// Clone returns a shallow copy.
func (o Options) Clone() Options {
	cp := Options{}
	for k, v := range o {
		cp[k] = v
	}
	return cp
}

// Merge fills in defaults without overwriting explicit values.
func (o Options) Merge(defaults Options) {
	for k, v := range defaults {
		if _, ok := o[k]; !ok {
			o[k] = v
		}
	}
}

// Float reads a numeric option, accepting int or float64 literals.
func (o Options) Float(key string, def float64) (float64, error) {
	v, ok := o[key]
	if !ok {
		return def, nil
	}
	switch t := v.(type) {
	case float64:
		return t, nil
	case int:
		return float64(t), nil
	}
	return 0, errors.Errorf("Option %s must be numeric, have %T", key, v)
}

// Int reads an integer option.
func (o Options) Int(key string, def int) (int, error) {
	v, ok := o[key]
	if !ok {
		return def, nil
	}
	switch t := v.(type) {
	case int:
		return t, nil
	case float64:
		if t == math.Trunc(t) {
			return int(t), nil
		}
	}
	return 0, errors.Errorf("Option %s must be an integer, have %v", key, v)
}

// String reads a string option.
func (o Options) String(key string, def string) (string, error) {
	v, ok := o[key]
	if !ok {
		return def, nil
	}
	s, ok := v.(string)
	if !ok {
		return "", errors.Errorf("Option %s must be a string, have %T", key, v)
	}
	return s, nil
}

// Schema is the statically declared set of option names a kernel or
// adaptation wrapper accepts.
type Schema []string

// Contains reports schema membership.
func (s Schema) Contains(key string) bool {
	for _, k := range s {
		if k == key {
			return true
		}
	}
	return false
}

// Results holds the per-step diagnostics a kernel reports, one entry per
// chain unless noted.
type Results struct {
	TargetLogProb  []float64
	LogAcceptRatio []float64
	AcceptProb     []float64
	LeapfrogsTaken []float64
	Diverging      []float64
	Energy         []float64
	StepSize       float64
}

// NewResults allocates zeroed diagnostics for the given chain count.
func NewResults(chains int) Results {
	return Results{
		TargetLogProb:  make([]float64, chains),
		LogAcceptRatio: make([]float64, chains),
		AcceptProb:     make([]float64, chains),
		LeapfrogsTaken: make([]float64, chains),
		Diverging:      make([]float64, chains),
		Energy:         make([]float64, chains),
	}
}

// MeanAcceptProb averages the per-chain acceptance probabilities.
func (r Results) MeanAcceptProb() float64 {
	if len(r.AcceptProb) < 1 {
		return 0.0
	}
	total := 0.0
	for _, a := range r.AcceptProb {
		total += a
	}
	return total / float64(len(r.AcceptProb))
}

// A Kernel advances every chain of a batched state by one MCMC transition.
type Kernel interface {
	Step(parts []tensor.Tensor, gen *rand.Generator) ([]tensor.Tensor, Results, error)
}

// Maker constructs a kernel bound to a target function.
type Maker func(target TargetFn, opts Options) (Kernel, error)

// AdaptMaker wraps an inner kernel in an adaptation layer.
type AdaptMaker func(inner Kernel, opts Options) (Kernel, error)

// StepSized is implemented by kernels whose step size an adaptation
// wrapper may read and write between steps.
type StepSized interface {
	StepSize() float64
	SetStepSize(s float64)
}

// NumChains validates a batched state-part list and returns the length of
// the shared leading chain axis.
func NumChains(parts []tensor.Tensor) (int, error) {
	if len(parts) < 1 {
		return 0, errors.Errorf("State must have at least one part")
	}
	for _, p := range parts {
		if p.NDim() < 1 {
			return 0, errors.Errorf("State part with shape %v has no chain axis", p.Shape)
		}
		if p.Shape[0] != parts[0].Shape[0] {
			return 0, errors.Errorf("State parts disagree on chain count: %d vs %d", parts[0].Shape[0], p.Shape[0])
		}
	}
	return parts[0].Shape[0], nil
}

// CloneParts deep-copies a state-part list.
func CloneParts(parts []tensor.Tensor) []tensor.Tensor {
	out := make([]tensor.Tensor, len(parts))
	for i, p := range parts {
		out[i] = p.Clone()
	}
	return out
}

// copyChain overwrites chain c of dst with chain c of src for every part.
func copyChain(dst []tensor.Tensor, src []tensor.Tensor, c int) error {
	for i := range dst {
		dv, err := dst[i].Lead(c)
		if err != nil {
			return err
		}
		sv, err := src[i].Lead(c)
		if err != nil {
			return err
		}
		copy(dv.Data, sv.Data)
	}
	return nil
}

// chainDim is the flattened coordinate count of one chain's state.
func chainDim(parts []tensor.Tensor) int {
	n := 0
	for _, p := range parts {
		n += tensor.Size(p.Shape[1:])
	}
	return n
}

// flattenChain copies chain c's coordinates into one flat vector.
func flattenChain(parts []tensor.Tensor, c int) ([]float64, error) {
	out := make([]float64, 0, chainDim(parts))
	for _, p := range parts {
		v, err := p.Lead(c)
		if err != nil {
			return nil, err
		}
		out = append(out, v.Data...)
	}
	return out, nil
}

// writeChain scatters a flat coordinate vector back into chain c.
func writeChain(parts []tensor.Tensor, c int, x []float64) error {
	off := 0
	for _, p := range parts {
		v, err := p.Lead(c)
		if err != nil {
			return err
		}
		off += copy(v.Data, x[off:off+len(v.Data)])
	}
	return nil
}

// flatTarget evaluates a chain-batched target for a single chain through a
// flat coordinate vector, which is the representation the gradient-based
// kernels do their arithmetic in.
type flatTarget struct {
	target   TargetFn
	template []tensor.Tensor // core shapes, no chain axis
}

func newFlatTarget(target TargetFn, parts []tensor.Tensor) flatTarget {
	template := make([]tensor.Tensor, len(parts))
	for i, p := range parts {
		template[i] = tensor.Tensor{Shape: append([]int{}, p.Shape[1:]...)}
	}
	return flatTarget{target: target, template: template}
}

func (ft flatTarget) logProb(x []float64) (float64, error) {
	batched := make([]tensor.Tensor, len(ft.template))
	off := 0
	for i, tpl := range ft.template {
		n := tensor.Size(tpl.Shape)
		batched[i] = tensor.Tensor{
			Shape: append([]int{1}, tpl.Shape...),
			Data:  x[off : off+n],
		}
		off += n
	}
	lp, err := ft.target(batched)
	if err != nil {
		return 0, err
	}
	if lp.Size() != 1 {
		return 0, errors.Errorf("Target returned shape %v for a single chain", lp.Shape)
	}
	return lp.Data[0], nil
}

// mustLogProb panics on evaluation failure. It only runs under the
// finite-difference gradient, where a model evaluation error is a fatal
// runtime failure per the error-handling contract.
func (ft flatTarget) mustLogProb(x []float64) float64 {
	lp, err := ft.logProb(x)
	if err != nil {
		panic(err)
	}
	return lp
}

// gradient is a central finite-difference gradient of the log target.
func (ft flatTarget) gradient(x []float64) []float64 {
	grad := make([]float64, len(x))
	fd.Gradient(grad, ft.mustLogProb, x, &fd.Settings{Formula: fd.Central})
	return grad
}
