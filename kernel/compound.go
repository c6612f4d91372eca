package kernel

import (
	"github.com/pkg/errors"

	"github.com/probkit/temper/rand"
	"github.com/probkit/temper/tensor"
)

// CompoundSchema is the statically declared user-facing option set for the
// compound kernel. The per-group assignment itself is computed by the
// sampler layer and handed over through NewCompound.
var CompoundSchema = Schema{"sampler_methods", "name"}

// CompoundGroup binds one contiguous run of state parts to a sub-kernel.
type CompoundGroup struct {
	Maker Maker
	Opts  Options
	Parts []int
}

// Compound sweeps the state parts group by group, stepping each group's
// sub-kernel against the joint target with every other part held at its
// current value. Chains are swept one at a time so a chain's moves always
// condition on that same chain's values of the other parts. Sub-kernels
// persist across steps so their internal state (e.g. step-size adaptation)
// survives the whole chain run.
type Compound struct {
	target  TargetFn
	groups  []CompoundGroup
	kernels []Kernel
	current []tensor.Tensor
	chain   int
}

// NewCompound builds a compound kernel from precomputed groups.
func NewCompound(target TargetFn, groups []CompoundGroup) (*Compound, error) {
	if len(groups) < 1 {
		return nil, errors.Errorf("Compound kernel needs at least one group")
	}
	seen := map[int]bool{}
	for _, g := range groups {
		if len(g.Parts) < 1 {
			return nil, errors.Errorf("Compound group with no state parts")
		}
		for _, p := range g.Parts {
			if seen[p] {
				return nil, errors.Errorf("State part %d assigned to more than one group", p)
			}
			seen[p] = true
		}
	}
	return &Compound{
		target:  target,
		groups:  groups,
		kernels: make([]Kernel, len(groups)),
	}, nil
}

// chainView slices one chain out of a chain-batched part, keeping a
// leading batch axis of one. The view shares the part's data.
func chainView(t tensor.Tensor, c int) (tensor.Tensor, error) {
	v, err := t.Lead(c)
	if err != nil {
		return tensor.Tensor{}, err
	}
	return v.Reshape(append([]int{1}, v.Shape...)...)
}

// subTarget projects the joint target onto one group's parts for the chain
// currently being swept, reading every other part from that chain's slice
// of the in-progress sweep state.
func (k *Compound) subTarget(gi int) TargetFn {
	group := k.groups[gi]
	return func(sub []tensor.Tensor) (tensor.Tensor, error) {
		full := make([]tensor.Tensor, len(k.current))
		for pi, p := range k.current {
			v, err := chainView(p, k.chain)
			if err != nil {
				return tensor.Tensor{}, err
			}
			full[pi] = v
		}
		for j, pi := range group.Parts {
			full[pi] = sub[j]
		}
		return k.target(full)
	}
}

// Step advances every chain by one full sweep over the groups.
func (k *Compound) Step(parts []tensor.Tensor, gen *rand.Generator) ([]tensor.Tensor, Results, error) {
	nc, err := NumChains(parts)
	if err != nil {
		return nil, Results{}, err
	}

	k.current = CloneParts(parts)
	res := NewResults(nc)

	for gi, g := range k.groups {
		if k.kernels[gi] == nil {
			sub, err := g.Maker(k.subTarget(gi), g.Opts)
			if err != nil {
				return nil, Results{}, errors.Wrapf(err, "Could not build sub-kernel for group %d", gi)
			}
			k.kernels[gi] = sub
		}

		for c := 0; c < nc; c++ {
			k.chain = c

			groupParts := make([]tensor.Tensor, len(g.Parts))
			for j, pi := range g.Parts {
				v, err := chainView(k.current[pi], c)
				if err != nil {
					return nil, Results{}, err
				}
				groupParts[j] = v
			}

			next, sres, err := k.kernels[gi].Step(groupParts, gen)
			if err != nil {
				return nil, Results{}, errors.Wrapf(err, "Sub-kernel for group %d failed on chain %d", gi, c)
			}
			for j, pi := range g.Parts {
				dst, err := k.current[pi].Lead(c)
				if err != nil {
					return nil, Results{}, err
				}
				src, err := next[j].Lead(0)
				if err != nil {
					return nil, Results{}, err
				}
				copy(dst.Data, src.Data)
			}

			res.AcceptProb[c] += sres.AcceptProb[0] / float64(len(k.groups))
			res.TargetLogProb[c] = sres.TargetLogProb[0]
		}
	}

	out := k.current
	k.current = nil
	return out, res, nil
}
