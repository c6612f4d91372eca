package sampler

import (
	"github.com/pkg/errors"

	"github.com/probkit/temper/model"
	"github.com/probkit/temper/tensor"
)

// LogProbFn maps flattened unobserved-variable values (one tensor per
// variable, in canonical declaration order) to a log probability.
type LogProbFn func(parts []tensor.Tensor) (tensor.Tensor, error)

// DeterministicsFn maps the same flattened values to every derived
// (non-sampled) quantity, in a stable order.
type DeterministicsFn func(parts []tensor.Tensor) ([]tensor.Tensor, error)

// BuildConfig selects how the log-probability closures are built.
// Observed overrides and a full prior state are mutually exclusive.
type BuildConfig struct {
	Observed map[string]tensor.Tensor
	State    *model.SamplingState

	// CollectReduced selects a single joint scalar per draw; otherwise the
	// per-observation terms are kept unreduced.
	CollectReduced bool
}

// Built bundles everything a chain run needs: the pure per-draw closures,
// the initial values, and naming metadata for trace assembly.
type Built struct {
	Logp               LogProbFn
	Deterministics     DeterministicsFn
	InitKeys           []string
	InitValues         []tensor.Tensor
	DeterministicNames []string
	State              *model.SamplingState
}

// BuildLogp evaluates the model once to discover its variables and wraps
// the evaluation path into pure closures. Every closure invocation builds
// a fresh state from the supplied values, so repeated calls with the same
// inputs always produce the same outputs.
func BuildLogp(m *model.Model, cfg BuildConfig) (*Built, error) {
	if m == nil {
		return nil, errors.Errorf("sample only supports temper model values, but no model was passed")
	}
	if cfg.State != nil && cfg.Observed != nil {
		return nil, errors.Errorf("Can not use both state and observed arguments")
	}

	st, err := model.InitializeState(m, cfg.Observed, cfg.State)
	if err != nil {
		return nil, err
	}
	if len(st.UnobservedKeys()) < 1 {
		return nil, errors.Errorf("Can not calculate a log probability: the model %s has no unobserved values", m.Name)
	}

	keys := st.UnobservedKeys()
	observed := st.ObservedValues
	reduced := cfg.CollectReduced

	logp := func(parts []tensor.Tensor) (tensor.Tensor, error) {
		ev, err := model.FromValues(keys, parts, observed)
		if err != nil {
			return tensor.Tensor{}, err
		}
		if err := model.Evaluate(m, ev); err != nil {
			return tensor.Tensor{}, err
		}
		return ev.CollectLogProb(reduced)
	}

	detNames, _ := st.DeterministicsList()
	deterministics := func(parts []tensor.Tensor) ([]tensor.Tensor, error) {
		ev, err := model.FromValues(keys, parts, observed)
		if err != nil {
			return nil, err
		}
		if err := model.Evaluate(m, ev); err != nil {
			return nil, err
		}
		_, values := ev.DeterministicsList()
		return values, nil
	}

	return &Built{
		Logp:               logp,
		Deterministics:     deterministics,
		InitKeys:           keys,
		InitValues:         st.UnobservedList(),
		DeterministicNames: detNames,
		State:              st,
	}, nil
}

// TileInit replicates each initial value numRepeats times along a new
// leading axis: the per-chain starting points are identical copies of the
// single initial draw.
func TileInit(init []tensor.Tensor, numRepeats int) []tensor.Tensor {
	out := make([]tensor.Tensor, len(init))
	for i, t := range init {
		out[i] = tensor.Tile(t, numRepeats)
	}
	return out
}
