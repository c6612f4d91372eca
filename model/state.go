package model

import (
	"strings"

	"github.com/pkg/errors"

	"github.com/probkit/temper/tensor"
)

// SamplingState is the value store a single model evaluation runs against:
// current values for every unobserved variable (keyed by canonical,
// possibly transformed, name), fixed observed data, derived deterministic
// outputs, and per-variable distribution metadata. It is built once per
// sample call; the log-probability closures substitute fresh values into
// copies of it on every invocation.
type SamplingState struct {
	UnobservedValues map[string]tensor.Tensor
	ObservedValues   map[string]tensor.Tensor
	Deterministics   map[string]tensor.Tensor
	ContinuousDists  map[string]Distribution
	DiscreteDists    map[string]Distribution

	// Untransformed holds the user-facing values of transformed variables,
	// reconciled 1:1 with their canonical names during deterministic
	// collection.
	Untransformed map[string]tensor.Tensor

	order              []string
	detOrder           []string
	untransformedOrder []string

	priorTerms []tensor.Tensor
	lkhTerms   []tensor.Tensor
}

// NewState returns an empty state with optional observed-value overrides.
func NewState(observed map[string]tensor.Tensor) *SamplingState {
	st := &SamplingState{
		UnobservedValues: map[string]tensor.Tensor{},
		ObservedValues:   map[string]tensor.Tensor{},
		Deterministics:   map[string]tensor.Tensor{},
		ContinuousDists:  map[string]Distribution{},
		DiscreteDists:    map[string]Distribution{},
		Untransformed:    map[string]tensor.Tensor{},
	}
	for k, v := range observed {
		st.ObservedValues[k] = v.Clone()
	}
	return st
}

// FromValues builds a state seeded with explicit unobserved values (in
// canonical order) and observed data, ready for re-evaluation. This is the
// substitution step of the log-probability closures.
func FromValues(keys []string, values []tensor.Tensor, observed map[string]tensor.Tensor) (*SamplingState, error) {
	if len(keys) != len(values) {
		return nil, errors.Errorf("Have %d keys but %d values", len(keys), len(values))
	}
	st := NewState(observed)
	for i, k := range keys {
		st.UnobservedValues[k] = values[i]
	}
	return st, nil
}

// Clone returns a deep copy of the value maps. Evaluation scratch (log-prob
// terms) is not carried over.
func (s *SamplingState) Clone() *SamplingState {
	cp := NewState(nil)
	for k, v := range s.UnobservedValues {
		cp.UnobservedValues[k] = v.Clone()
	}
	for k, v := range s.ObservedValues {
		cp.ObservedValues[k] = v.Clone()
	}
	return cp
}

// resetEval clears everything a model evaluation rebuilds, keeping the
// unobserved and observed values.
func (s *SamplingState) resetEval() {
	s.Deterministics = map[string]tensor.Tensor{}
	s.ContinuousDists = map[string]Distribution{}
	s.DiscreteDists = map[string]Distribution{}
	s.Untransformed = map[string]tensor.Tensor{}
	s.order = nil
	s.detOrder = nil
	s.untransformedOrder = nil
	s.priorTerms = nil
	s.lkhTerms = nil
}

// UnobservedKeys returns canonical unobserved names in declaration order.
func (s *SamplingState) UnobservedKeys() []string {
	return append([]string{}, s.order...)
}

// UnobservedList returns unobserved values in declaration order.
func (s *SamplingState) UnobservedList() []tensor.Tensor {
	out := make([]tensor.Tensor, len(s.order))
	for i, k := range s.order {
		out[i] = s.UnobservedValues[k]
	}
	return out
}

// Dist returns the distribution registered for a canonical name.
func (s *SamplingState) Dist(name string) (Distribution, error) {
	if d, ok := s.ContinuousDists[name]; ok {
		return d, nil
	}
	if d, ok := s.DiscreteDists[name]; ok {
		return d, nil
	}
	return nil, errors.Errorf("No distribution registered for %s", name)
}

// DiscreteKeys returns the canonical names of discrete unobserved
// variables, in declaration order.
func (s *SamplingState) DiscreteKeys() []string {
	var out []string
	for _, k := range s.order {
		if _, ok := s.DiscreteDists[k]; ok {
			out = append(out, k)
		}
	}
	return out
}

// ContinuousKeys returns the canonical names of continuous unobserved
// variables, in declaration order.
func (s *SamplingState) ContinuousKeys() []string {
	var out []string
	for _, k := range s.order {
		if _, ok := s.ContinuousDists[k]; ok {
			out = append(out, k)
		}
	}
	return out
}

// PriorTermCount is the number of prior log-prob contributions seen in the
// last evaluation.
func (s *SamplingState) PriorTermCount() int { return len(s.priorTerms) }

// LikelihoodTermCount is the number of likelihood contributions seen in the
// last evaluation.
func (s *SamplingState) LikelihoodTermCount() int { return len(s.lkhTerms) }

// CollectLogProb reduces the accumulated contributions. Reduced mode sums
// everything to one scalar (one value per draw); unreduced mode keeps each
// elementwise term, concatenated into a single vector.
func (s *SamplingState) CollectLogProb(reduced bool) (tensor.Tensor, error) {
	if reduced {
		total := 0.0
		for _, t := range s.priorTerms {
			total += t.SumAll()
		}
		for _, t := range s.lkhTerms {
			total += t.SumAll()
		}
		return tensor.Scalar(total), nil
	}

	n := 0
	for _, t := range s.priorTerms {
		n += t.Size()
	}
	for _, t := range s.lkhTerms {
		n += t.Size()
	}
	if n < 1 {
		return tensor.Tensor{}, errors.Errorf("No log probability terms collected")
	}
	out := tensor.New(n)
	i := 0
	for _, t := range s.priorTerms {
		i += copy(out.Data[i:], t.Data)
	}
	for _, t := range s.lkhTerms {
		i += copy(out.Data[i:], t.Data)
	}
	return out, nil
}

// CollectPriorLogProb sums only the prior contributions (SMC tempering
// start point).
func (s *SamplingState) CollectPriorLogProb() tensor.Tensor {
	total := 0.0
	for _, t := range s.priorTerms {
		total += t.SumAll()
	}
	return tensor.Scalar(total)
}

// CollectLikelihoodLogProb sums only the likelihood contributions (SMC
// tempering target).
func (s *SamplingState) CollectLikelihoodLogProb() tensor.Tensor {
	total := 0.0
	for _, t := range s.lkhTerms {
		total += t.SumAll()
	}
	return tensor.Scalar(total)
}

// DeterministicsList returns derived values in a stable order: declared
// deterministics first, then the user-facing values of transformed
// variables (the 1:1 transformed/untransformed reconciliation).
func (s *SamplingState) DeterministicsList() ([]string, []tensor.Tensor) {
	names := make([]string, 0, len(s.detOrder)+len(s.untransformedOrder))
	values := make([]tensor.Tensor, 0, cap(names))
	for _, k := range s.detOrder {
		names = append(names, k)
		values = append(values, s.Deterministics[k])
	}
	for _, k := range s.untransformedOrder {
		names = append(names, k)
		values = append(values, s.Untransformed[k])
	}
	return names, values
}

// UnscopedName strips the transform prefix from a canonical name, e.g.
// "__log_sigma" -> "sigma". Untransformed names pass through.
func UnscopedName(key string) string {
	if !strings.HasPrefix(key, "__") {
		return key
	}
	rest := key[2:]
	if idx := strings.Index(rest, "_"); idx >= 0 {
		return rest[idx+1:]
	}
	return key
}
