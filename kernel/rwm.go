package kernel

import (
	"math"

	"github.com/pkg/errors"

	"github.com/probkit/temper/rand"
	"github.com/probkit/temper/tensor"
)

// RWMSchema is the statically declared option set for RandomWalkMetropolis.
var RWMSchema = Schema{"scale", "new_state_fn", "name"}

// RandomWalkMetropolis proposes a random-walk move for every chain and
// accepts or rejects it with the usual Metropolis ratio. The proposal is
// pluggable through the new_state_fn option; the default adds Gaussian
// noise with the configured scale.
type RandomWalkMetropolis struct {
	target     TargetFn
	newStateFn NewStateFn
	name       string
}

// GaussianNewStateFn returns the default random-walk proposal: elementwise
// Gaussian noise of the given scale.
func GaussianNewStateFn(scale float64) NewStateFn {
	return func(parts []tensor.Tensor, gen *rand.Generator) ([]tensor.Tensor, error) {
		out := CloneParts(parts)
		for _, p := range out {
			for i := range p.Data {
				p.Data[i] += scale * gen.NormFloat64()
			}
		}
		return out, nil
	}
}

// NewRandomWalkMetropolis builds an RWM kernel for the target.
func NewRandomWalkMetropolis(target TargetFn, opts Options) (Kernel, error) {
	scale, err := opts.Float("scale", 1.0)
	if err != nil {
		return nil, err
	}
	name, err := opts.String("name", "rwm")
	if err != nil {
		return nil, err
	}

	k := &RandomWalkMetropolis{
		target:     target,
		newStateFn: GaussianNewStateFn(scale),
		name:       name,
	}

	if v, ok := opts["new_state_fn"]; ok {
		fn, ok := v.(NewStateFn)
		if !ok {
			return nil, errors.Errorf("Option new_state_fn must be a proposal function, have %T", v)
		}
		k.newStateFn = fn
	}

	return k, nil
}

// Step advances every chain by one Metropolis transition.
func (k *RandomWalkMetropolis) Step(parts []tensor.Tensor, gen *rand.Generator) ([]tensor.Tensor, Results, error) {
	nc, err := NumChains(parts)
	if err != nil {
		return nil, Results{}, err
	}

	prop, err := k.newStateFn(parts, gen)
	if err != nil {
		return nil, Results{}, errors.Wrap(err, "Proposal function failed")
	}
	if len(prop) != len(parts) {
		return nil, Results{}, errors.Errorf("Proposal returned %d parts for %d state parts", len(prop), len(parts))
	}

	lpCur, err := k.target(parts)
	if err != nil {
		return nil, Results{}, err
	}
	lpProp, err := k.target(prop)
	if err != nil {
		return nil, Results{}, err
	}
	if lpCur.Size() != nc || lpProp.Size() != nc {
		return nil, Results{}, errors.Errorf("Target returned %d log probs for %d chains", lpCur.Size(), nc)
	}

	next := CloneParts(parts)
	res := NewResults(nc)
	for c := 0; c < nc; c++ {
		la := lpProp.Data[c] - lpCur.Data[c]
		res.LogAcceptRatio[c] = la
		res.AcceptProb[c] = math.Exp(math.Min(0, la))
		res.TargetLogProb[c] = lpCur.Data[c]

		if math.Log(gen.Float64()) < la {
			if err := copyChain(next, prop, c); err != nil {
				return nil, Results{}, err
			}
			res.TargetLogProb[c] = lpProp.Data[c]
		}
	}

	return next, res, nil
}
