package model

import (
	"math"

	"github.com/pkg/errors"
	"gonum.org/v1/gonum/stat/distuv"

	"github.com/probkit/temper/rand"
	"github.com/probkit/temper/tensor"
)

// Distribution is the per-variable metadata the samplers consult: an
// elementwise log-density, a way to draw from the distribution itself (used
// for replica-batched prior initialization), a deterministic initial value,
// and the gradient-support/discreteness flags that drive kernel assignment.
//
// Parameters are tensors so that a likelihood's parameters may depend on
// values sampled earlier in the same model evaluation. A parameter must be
// a scalar or match the target shape element for element.
type Distribution interface {
	LogProb(x tensor.Tensor) (tensor.Tensor, error)
	Sample(shape []int, gen *rand.Generator) (tensor.Tensor, error)
	InitValue() tensor.Tensor
	HasGrad() bool
	Discrete() bool
}

// paramAt resolves the scalar-or-matching broadcast rule for a parameter
// against n target elements.
func paramAt(name string, p tensor.Tensor, n int) (func(int) float64, error) {
	if p.Size() == 1 {
		v := p.Data[0]
		return func(int) float64 { return v }, nil
	}
	if p.Size() == n {
		return func(i int) float64 { return p.Data[i] }, nil
	}
	return nil, errors.Errorf("Parameter %s with shape %v does not broadcast against %d elements", name, p.Shape, n)
}

// Normal is a (possibly elementwise-parameterized) normal distribution.
type Normal struct {
	Mu    tensor.Tensor
	Sigma tensor.Tensor
}

// NewNormal creates a Normal with the given location and scale.
func NewNormal(mu tensor.Tensor, sigma tensor.Tensor) *Normal {
	return &Normal{Mu: mu, Sigma: sigma}
}

// LogProb returns the elementwise log-density of x.
func (d *Normal) LogProb(x tensor.Tensor) (tensor.Tensor, error) {
	mu, err := paramAt("mu", d.Mu, x.Size())
	if err != nil {
		return tensor.Tensor{}, err
	}
	sg, err := paramAt("sigma", d.Sigma, x.Size())
	if err != nil {
		return tensor.Tensor{}, err
	}
	out := tensor.New(x.Shape...)
	for i, v := range x.Data {
		out.Data[i] = distuv.Normal{Mu: mu(i), Sigma: sg(i)}.LogProb(v)
	}
	return out, nil
}

// Sample draws a tensor of the given shape.
func (d *Normal) Sample(shape []int, gen *rand.Generator) (tensor.Tensor, error) {
	out := tensor.New(shape...)
	mu, err := paramAt("mu", d.Mu, out.Size())
	if err != nil {
		return tensor.Tensor{}, err
	}
	sg, err := paramAt("sigma", d.Sigma, out.Size())
	if err != nil {
		return tensor.Tensor{}, err
	}
	for i := range out.Data {
		out.Data[i] = distuv.Normal{Mu: mu(i), Sigma: sg(i), Src: gen}.Rand()
	}
	return out, nil
}

// InitValue is the prior mean.
func (d *Normal) InitValue() tensor.Tensor {
	return d.Mu.Clone()
}

// HasGrad is true: the density is differentiable in x.
func (d *Normal) HasGrad() bool { return true }

// Discrete is false for Normal.
func (d *Normal) Discrete() bool { return false }

// HalfNormal is a normal distribution folded onto the positive reals.
// Usually declared with the Log transform so samplers work on an
// unconstrained support.
type HalfNormal struct {
	Sigma tensor.Tensor
}

// NewHalfNormal creates a HalfNormal with the given scale.
func NewHalfNormal(sigma tensor.Tensor) *HalfNormal {
	return &HalfNormal{Sigma: sigma}
}

// LogProb returns the elementwise log-density of x (negative x has zero mass).
func (d *HalfNormal) LogProb(x tensor.Tensor) (tensor.Tensor, error) {
	sg, err := paramAt("sigma", d.Sigma, x.Size())
	if err != nil {
		return tensor.Tensor{}, err
	}
	out := tensor.New(x.Shape...)
	for i, v := range x.Data {
		if v < 0 {
			out.Data[i] = math.Inf(-1)
			continue
		}
		out.Data[i] = math.Ln2 + distuv.Normal{Mu: 0, Sigma: sg(i)}.LogProb(v)
	}
	return out, nil
}

// Sample draws |N(0, sigma)| values.
func (d *HalfNormal) Sample(shape []int, gen *rand.Generator) (tensor.Tensor, error) {
	out := tensor.New(shape...)
	sg, err := paramAt("sigma", d.Sigma, out.Size())
	if err != nil {
		return tensor.Tensor{}, err
	}
	for i := range out.Data {
		out.Data[i] = math.Abs(distuv.Normal{Mu: 0, Sigma: sg(i), Src: gen}.Rand())
	}
	return out, nil
}

// InitValue is the scale itself, a safely positive starting point.
func (d *HalfNormal) InitValue() tensor.Tensor {
	return d.Sigma.Clone()
}

// HasGrad is true on the interior of the support.
func (d *HalfNormal) HasGrad() bool { return true }

// Discrete is false for HalfNormal.
func (d *HalfNormal) Discrete() bool { return false }

// Bernoulli is a {0,1}-valued distribution.
type Bernoulli struct {
	P tensor.Tensor
}

// NewBernoulli creates a Bernoulli with success probability p.
func NewBernoulli(p tensor.Tensor) *Bernoulli {
	return &Bernoulli{P: p}
}

// LogProb returns the elementwise log-mass of x. Values outside {0,1} have
// zero mass.
func (d *Bernoulli) LogProb(x tensor.Tensor) (tensor.Tensor, error) {
	p, err := paramAt("p", d.P, x.Size())
	if err != nil {
		return tensor.Tensor{}, err
	}
	out := tensor.New(x.Shape...)
	for i, v := range x.Data {
		switch v {
		case 0:
			out.Data[i] = math.Log1p(-p(i))
		case 1:
			out.Data[i] = math.Log(p(i))
		default:
			out.Data[i] = math.Inf(-1)
		}
	}
	return out, nil
}

// Sample draws 0/1 values.
func (d *Bernoulli) Sample(shape []int, gen *rand.Generator) (tensor.Tensor, error) {
	out := tensor.New(shape...)
	p, err := paramAt("p", d.P, out.Size())
	if err != nil {
		return tensor.Tensor{}, err
	}
	for i := range out.Data {
		out.Data[i] = distuv.Bernoulli{P: p(i), Src: gen}.Rand()
	}
	return out, nil
}

// InitValue rounds the success probability to the nearer support point.
func (d *Bernoulli) InitValue() tensor.Tensor {
	init := d.P.Clone()
	for i, p := range init.Data {
		init.Data[i] = math.Round(p)
	}
	return init
}

// HasGrad is false: the support is discrete.
func (d *Bernoulli) HasGrad() bool { return false }

// Discrete is true for Bernoulli.
func (d *Bernoulli) Discrete() bool { return true }

// Poisson is a counting distribution with the given rate.
type Poisson struct {
	Lambda tensor.Tensor
}

// NewPoisson creates a Poisson with the given rate.
func NewPoisson(lambda tensor.Tensor) *Poisson {
	return &Poisson{Lambda: lambda}
}

// LogProb returns the elementwise log-mass of x.
func (d *Poisson) LogProb(x tensor.Tensor) (tensor.Tensor, error) {
	lam, err := paramAt("lambda", d.Lambda, x.Size())
	if err != nil {
		return tensor.Tensor{}, err
	}
	out := tensor.New(x.Shape...)
	for i, v := range x.Data {
		if v < 0 || v != math.Trunc(v) {
			out.Data[i] = math.Inf(-1)
			continue
		}
		out.Data[i] = distuv.Poisson{Lambda: lam(i)}.LogProb(v)
	}
	return out, nil
}

// Sample draws counts.
func (d *Poisson) Sample(shape []int, gen *rand.Generator) (tensor.Tensor, error) {
	out := tensor.New(shape...)
	lam, err := paramAt("lambda", d.Lambda, out.Size())
	if err != nil {
		return tensor.Tensor{}, err
	}
	for i := range out.Data {
		out.Data[i] = distuv.Poisson{Lambda: lam(i), Src: gen}.Rand()
	}
	return out, nil
}

// InitValue is the rate rounded down to an integer support point.
func (d *Poisson) InitValue() tensor.Tensor {
	init := d.Lambda.Clone()
	for i, v := range init.Data {
		init.Data[i] = math.Floor(v)
	}
	return init
}

// HasGrad is false: the support is discrete.
func (d *Poisson) HasGrad() bool { return false }

// Discrete is true for Poisson.
func (d *Poisson) Discrete() bool { return true }

// Categorical is a distribution over {0..K-1} with explicit probabilities.
type Categorical struct {
	Probs []float64
}

// NewCategorical creates a Categorical over len(probs) categories.
func NewCategorical(probs []float64) *Categorical {
	return &Categorical{Probs: probs}
}

// EventShape is the category count.
func (d *Categorical) EventShape() int { return len(d.Probs) }

// LogProb returns the elementwise log-mass of x.
func (d *Categorical) LogProb(x tensor.Tensor) (tensor.Tensor, error) {
	out := tensor.New(x.Shape...)
	for i, v := range x.Data {
		k := int(v)
		if v != math.Trunc(v) || k < 0 || k >= len(d.Probs) {
			out.Data[i] = math.Inf(-1)
			continue
		}
		out.Data[i] = math.Log(d.Probs[k])
	}
	return out, nil
}

// Sample draws category indices.
func (d *Categorical) Sample(shape []int, gen *rand.Generator) (tensor.Tensor, error) {
	out := tensor.New(shape...)
	cat := distuv.NewCategorical(d.Probs, gen)
	for i := range out.Data {
		out.Data[i] = cat.Rand()
	}
	return out, nil
}

// InitValue is the modal category.
func (d *Categorical) InitValue() tensor.Tensor {
	best := 0
	for k, p := range d.Probs {
		if p > d.Probs[best] {
			best = k
		}
	}
	return tensor.Scalar(float64(best))
}

// HasGrad is false: the support is discrete.
func (d *Categorical) HasGrad() bool { return false }

// Discrete is true for Categorical.
func (d *Categorical) Discrete() bool { return true }
