package model

import (
	"github.com/pkg/errors"

	"github.com/probkit/temper/rand"
	"github.com/probkit/temper/tensor"
)

// A Model is a declarative probabilistic model: a name plus an evaluation
// function that declares random variables, observations, and deterministic
// quantities through the Eval primitives. Evaluating the same model under
// the same state always yields the same result - the evaluation function
// must not touch external mutable state, since the samplers re-run it many
// times inside the chain loop.
type Model struct {
	Name string
	fn   func(*Eval) error
}

// New creates a model from its evaluation function.
func New(name string, fn func(*Eval) error) *Model {
	return &Model{Name: name, fn: fn}
}

// Eval is one pass over a model's declarations against a SamplingState.
type Eval struct {
	st          *SamplingState
	gen         *rand.Generator
	sampleShape []int
	seen        map[string]bool
}

type rvConfig struct {
	transform Transform
}

// RVOption adjusts a Random declaration.
type RVOption func(*rvConfig)

// WithTransform samples the variable in the transformed space and
// reconciles the user-facing value back during deterministic collection.
func WithTransform(tr Transform) RVOption {
	return func(c *rvConfig) { c.transform = tr }
}

// Random declares an unobserved random variable and returns its current
// (user-space) value. If the surrounding state carries an observed
// override for the name, the variable is treated as observed instead.
func (e *Eval) Random(name string, d Distribution, opts ...RVOption) (tensor.Tensor, error) {
	if e.seen[name] {
		return tensor.Tensor{}, errors.Errorf("Duplicate variable name %s", name)
	}
	e.seen[name] = true

	var cfg rvConfig
	for _, o := range opts {
		o(&cfg)
	}

	// An observed override turns this RV into a likelihood contribution
	if obs, ok := e.st.ObservedValues[name]; ok {
		lp, err := d.LogProb(obs)
		if err != nil {
			return tensor.Tensor{}, errors.Wrapf(err, "Log prob failed for observed override %s", name)
		}
		e.st.lkhTerms = append(e.st.lkhTerms, lp)
		return obs, nil
	}

	canonical := name
	if cfg.transform != nil {
		canonical = TransformedName(cfg.transform, name)
	}

	val, ok := e.st.UnobservedValues[canonical]
	if !ok {
		init, err := e.initValue(d)
		if err != nil {
			return tensor.Tensor{}, errors.Wrapf(err, "Could not initialize %s", name)
		}
		if cfg.transform != nil {
			init = cfg.transform.Forward(init)
		}
		e.st.UnobservedValues[canonical] = init
		val = init
	}

	e.st.order = append(e.st.order, canonical)
	if d.Discrete() {
		e.st.DiscreteDists[canonical] = d
	} else {
		e.st.ContinuousDists[canonical] = d
	}

	x := val
	if cfg.transform != nil {
		x = cfg.transform.Inverse(val)
		e.st.Untransformed[name] = x
		e.st.untransformedOrder = append(e.st.untransformedOrder, name)
	}

	lp, err := d.LogProb(x)
	if err != nil {
		return tensor.Tensor{}, errors.Wrapf(err, "Log prob failed for %s", name)
	}
	e.st.priorTerms = append(e.st.priorTerms, lp)
	if cfg.transform != nil {
		e.st.priorTerms = append(e.st.priorTerms, tensor.Scalar(cfg.transform.LogDetJacobian(val)))
	}

	return x, nil
}

// initValue produces the starting value for a newly discovered variable:
// the distribution's deterministic init point, or a prior draw batched
// with the configured sample shape when a generator is attached (SMC).
func (e *Eval) initValue(d Distribution) (tensor.Tensor, error) {
	if e.gen == nil {
		return d.InitValue(), nil
	}
	event := d.InitValue()
	shape := append(append([]int{}, e.sampleShape...), event.Shape...)
	return d.Sample(shape, e.gen)
}

// Observe declares an observed variable contributing to the likelihood.
// An observed override in the state replaces the declared data.
func (e *Eval) Observe(name string, d Distribution, value tensor.Tensor) error {
	if e.seen[name] {
		return errors.Errorf("Duplicate variable name %s", name)
	}
	e.seen[name] = true

	obs, ok := e.st.ObservedValues[name]
	if !ok {
		obs = value
		e.st.ObservedValues[name] = value
	}

	lp, err := d.LogProb(obs)
	if err != nil {
		return errors.Wrapf(err, "Log prob failed for observed %s", name)
	}
	e.st.lkhTerms = append(e.st.lkhTerms, lp)
	return nil
}

// Deterministic records a derived quantity for the trace and returns it
// unchanged.
func (e *Eval) Deterministic(name string, value tensor.Tensor) tensor.Tensor {
	if _, ok := e.st.Deterministics[name]; !ok {
		e.st.detOrder = append(e.st.detOrder, name)
	}
	e.st.Deterministics[name] = value
	return value
}

// Evaluate runs one model evaluation pass against the given state,
// accumulating log-probability contributions and deterministics.
func Evaluate(m *Model, st *SamplingState) error {
	return evaluateWith(m, st, nil, nil)
}

func evaluateWith(m *Model, st *SamplingState, gen *rand.Generator, sampleShape []int) error {
	st.resetEval()
	ev := &Eval{st: st, gen: gen, sampleShape: sampleShape, seen: map[string]bool{}}
	if err := m.fn(ev); err != nil {
		return errors.Wrapf(err, "Model %s evaluation failed", m.Name)
	}
	return nil
}

// InitializeState evaluates a model once to discover its unobserved
// variables and their initial values. Observed overrides and a full prior
// state are mutually exclusive.
func InitializeState(m *Model, observed map[string]tensor.Tensor, state *SamplingState) (*SamplingState, error) {
	if m == nil {
		return nil, errors.Errorf("No model supplied")
	}
	if state != nil && observed != nil {
		return nil, errors.Errorf("Can not use both state and observed arguments")
	}

	st := state
	if st == nil {
		st = NewState(observed)
	} else {
		st = st.Clone()
	}

	if err := Evaluate(m, st); err != nil {
		return nil, err
	}
	return st, nil
}

// InitializeStateSMC is InitializeState with prior-drawn initial values
// batched along a leading replica axis.
func InitializeStateSMC(m *Model, observed map[string]tensor.Tensor, state *SamplingState, replicas int, gen *rand.Generator) (*SamplingState, error) {
	if m == nil {
		return nil, errors.Errorf("No model supplied")
	}
	if state != nil && observed != nil {
		return nil, errors.Errorf("Can not use both state and observed arguments")
	}
	if replicas < 1 {
		return nil, errors.Errorf("Replica count must be positive, have %d", replicas)
	}

	st := state
	if st == nil {
		st = NewState(observed)
	} else {
		st = st.Clone()
	}

	if err := evaluateWith(m, st, gen, []int{replicas}); err != nil {
		return nil, err
	}
	return st, nil
}
