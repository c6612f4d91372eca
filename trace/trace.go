// Package trace packages sampler output into an analysis-ready container:
// named posterior sample tensors shaped [chains, draws, ...], named
// per-step sampler statistics, and the observed data the model was
// conditioned on.
package trace

import (
	"sort"

	"github.com/pkg/errors"
	"gonum.org/v1/gonum/stat"

	"github.com/probkit/temper/tensor"
)

// Trace is the portable results container handed back by every sampler.
type Trace struct {
	Posterior    map[string]tensor.Tensor
	SampleStats  map[string]tensor.Tensor
	ObservedData map[string]tensor.Tensor
}

// New assembles a trace. SampleStats may be nil (compound sampling).
func New(posterior map[string]tensor.Tensor, stats map[string]tensor.Tensor, observed map[string]tensor.Tensor) *Trace {
	return &Trace{
		Posterior:    posterior,
		SampleStats:  stats,
		ObservedData: observed,
	}
}

// Names returns the posterior variable names, sorted.
func (t *Trace) Names() []string {
	names := make([]string, 0, len(t.Posterior))
	for k := range t.Posterior {
		names = append(names, k)
	}
	sort.Strings(names)
	return names
}

// PosteriorMean averages all draws (and chains) of a named variable.
func (t *Trace) PosteriorMean(name string) (float64, error) {
	v, ok := t.Posterior[name]
	if !ok {
		return 0, errors.Errorf("No posterior samples for %s", name)
	}
	return stat.Mean(v.Data, nil), nil
}

// PosteriorStdDev is the sample standard deviation over all draws.
func (t *Trace) PosteriorStdDev(name string) (float64, error) {
	v, ok := t.Posterior[name]
	if !ok {
		return 0, errors.Errorf("No posterior samples for %s", name)
	}
	return stat.StdDev(v.Data, nil), nil
}

// StatMean averages a named sampler statistic over all steps and chains.
func (t *Trace) StatMean(name string) (float64, error) {
	v, ok := t.SampleStats[name]
	if !ok {
		return 0, errors.Errorf("No sampler statistic named %s", name)
	}
	return stat.Mean(v.Data, nil), nil
}
