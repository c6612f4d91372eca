package sampler

import (
	"github.com/pkg/errors"
	"gonum.org/v1/gonum/stat"

	"github.com/probkit/temper/kernel"
	"github.com/probkit/temper/model"
	"github.com/probkit/temper/proposal"
)

// defaultProposal picks the stock discrete proposal for a distribution.
// The returned key distinguishes proposal families so that adjacent
// variables needing different proposals never share a group.
func defaultProposal(d model.Distribution) (string, kernel.NewStateFn) {
	switch t := d.(type) {
	case *model.Bernoulli:
		return "bernoulli", proposal.Bernoulli()
	case *model.Poisson:
		return "poisson", proposal.Poisson(stat.Mean(t.Lambda.Data, nil))
	case *model.Categorical:
		return "categorical", proposal.CategoricalUniform(t.EventShape())
	default:
		return "", nil
	}
}

// assignCompoundGroups maps every unobserved variable to a sub-kernel.
// Explicit assignments come from methods (keyed by user-facing variable
// names); everything else defaults to NUTS when the distribution supports
// gradients and random-walk Metropolis otherwise. Adjacent variables with
// the same kernel and proposal family are merged into one contiguous group
// so the sweep steps them jointly.
func assignCompoundGroups(st *model.SamplingState, methods map[string]Variant) ([]kernel.CompoundGroup, error) {
	keys := st.UnobservedKeys()
	if len(keys) < 1 {
		return nil, errors.Errorf("Compound sampling needs at least one unobserved variable")
	}

	var groups []kernel.CompoundGroup
	lastKind := ""

	for i, key := range keys {
		d, err := st.Dist(key)
		if err != nil {
			return nil, err
		}

		var v Variant
		if mv, ok := methods[model.UnscopedName(key)]; ok {
			if mv != NUTS && mv != RandomWalkM {
				return nil, errors.Errorf("Sampler %s is not implemented for compound steps", mv)
			}
			if bindings[mv].grad && !d.HasGrad() {
				return nil, errors.Errorf("The distribution for %s does not support gradients, please provide an appropriate sampler method", model.UnscopedName(key))
			}
			v = mv
		} else if d.HasGrad() {
			v = NUTS
		} else {
			v = RandomWalkM
		}

		propKey, propFn := defaultProposal(d)
		if v == NUTS {
			propKey, propFn = "", nil
		}

		kind := string(v) + "|" + propKey
		if len(groups) > 0 && kind == lastKind {
			last := &groups[len(groups)-1]
			last.Parts = append(last.Parts, i)
			continue
		}

		opts := bindings[v].defaultKernelOpts.Clone()
		if propFn != nil {
			opts["new_state_fn"] = propFn
		}
		groups = append(groups, kernel.CompoundGroup{
			Maker: bindings[v].kernelMaker,
			Opts:  opts,
			Parts: []int{i},
		})
		lastKind = kind
	}

	return groups, nil
}
