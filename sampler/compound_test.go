package sampler

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/probkit/temper/kernel"
	"github.com/probkit/temper/model"
	"github.com/probkit/temper/tensor"
)

func TestCompoundDefaultAssignment(t *testing.T) {
	assert := assert.New(t)

	st, err := model.InitializeState(mixedModel(), nil, nil)
	assert.NoError(err)

	groups, err := assignCompoundGroups(st, nil)
	assert.NoError(err)
	assert.Len(groups, 2)

	// Gradient-supporting "a" gets NUTS (no proposal override), discrete
	// "b" gets random-walk Metropolis with a Bernoulli proposal
	assert.Equal([]int{0}, groups[0].Parts)
	assert.Nil(groups[0].Opts["new_state_fn"])
	assert.Equal([]int{1}, groups[1].Parts)
	assert.NotNil(groups[1].Opts["new_state_fn"])
}

func TestCompoundContiguousGrouping(t *testing.T) {
	assert := assert.New(t)

	m := model.New("runs", func(e *model.Eval) error {
		if _, err := e.Random("a", model.NewNormal(tensor.Scalar(0), tensor.Scalar(1))); err != nil {
			return err
		}
		if _, err := e.Random("b", model.NewNormal(tensor.Scalar(0), tensor.Scalar(1))); err != nil {
			return err
		}
		if _, err := e.Random("c", model.NewBernoulli(tensor.Scalar(0.5))); err != nil {
			return err
		}
		_, err := e.Random("d", model.NewBernoulli(tensor.Scalar(0.5)))
		return err
	})

	st, err := model.InitializeState(m, nil, nil)
	assert.NoError(err)

	groups, err := assignCompoundGroups(st, nil)
	assert.NoError(err)
	assert.Len(groups, 2)
	assert.Equal([]int{0, 1}, groups[0].Parts)
	assert.Equal([]int{2, 3}, groups[1].Parts)
}

func TestCompoundProposalFamiliesSplitGroups(t *testing.T) {
	assert := assert.New(t)

	// Adjacent discrete variables with different default proposals must not
	// share a sub-kernel
	m := model.New("families", func(e *model.Eval) error {
		if _, err := e.Random("b", model.NewBernoulli(tensor.Scalar(0.5))); err != nil {
			return err
		}
		_, err := e.Random("p", model.NewPoisson(tensor.Scalar(3)))
		return err
	})

	st, err := model.InitializeState(m, nil, nil)
	assert.NoError(err)

	groups, err := assignCompoundGroups(st, nil)
	assert.NoError(err)
	assert.Len(groups, 2)
}

func TestCompoundExplicitMapping(t *testing.T) {
	assert := assert.New(t)

	st, err := model.InitializeState(mixedModel(), nil, nil)
	assert.NoError(err)

	// Forcing RWM onto the continuous variable is allowed
	groups, err := assignCompoundGroups(st, map[string]Variant{"a": RandomWalkM})
	assert.NoError(err)
	assert.Len(groups, 2)

	// A gradient-requiring sampler on a discrete variable is a hard error
	_, err = assignCompoundGroups(st, map[string]Variant{"b": NUTS})
	assert.Error(err)
	assert.Contains(err.Error(), "does not support gradients")

	// Only NUTS and RandomWalkM may appear in the compound path
	_, err = assignCompoundGroups(st, map[string]Variant{"a": HMC})
	assert.Error(err)
	assert.Contains(err.Error(), "not implemented")
}

func TestCompoundEndToEnd(t *testing.T) {
	assert := assert.New(t)

	s, err := NewCompoundStep(mixedModel(), kernel.Options{"seed": 23})
	assert.NoError(err)

	cfg := DefaultSampleConfig()
	cfg.NumSamples = 40
	cfg.NumChains = 2
	cfg.BurnIn = 10

	tr, err := s.Sample(cfg)
	assert.NoError(err)

	assert.Equal([]int{2, 40}, tr.Posterior["a"].Shape)
	b := tr.Posterior["b"]
	assert.Equal([]int{2, 40}, b.Shape)
	for _, v := range b.Data {
		assert.True(v == 0 || v == 1)
	}

	// Compound sampling reports no kernel statistics
	assert.Nil(tr.SampleStats)
}

func TestCompoundDiscreteFirstMultiChain(t *testing.T) {
	assert := assert.New(t)

	// The discrete variable comes first, so the gradient group sits at a
	// non-zero state index and its per-chain evaluations must line up with
	// the full-batch parts around it
	m := model.New("discrete_first", func(e *model.Eval) error {
		if _, err := e.Random("b", model.NewBernoulli(tensor.Scalar(0.5))); err != nil {
			return err
		}
		_, err := e.Random("a", model.NewNormal(tensor.Scalar(0), tensor.Scalar(1)))
		return err
	})

	s, err := NewCompoundStep(m, kernel.Options{"seed": 31})
	assert.NoError(err)

	cfg := DefaultSampleConfig()
	cfg.NumSamples = 30
	cfg.NumChains = 2
	cfg.BurnIn = 10

	tr, err := s.Sample(cfg)
	assert.NoError(err)

	a := tr.Posterior["a"]
	assert.Equal([]int{2, 30}, a.Shape)
	for _, v := range a.Data {
		assert.False(math.IsNaN(v))
	}
	b := tr.Posterior["b"]
	assert.Equal([]int{2, 30}, b.Shape)
	for _, v := range b.Data {
		assert.True(v == 0 || v == 1)
	}
}

func TestCompoundExplicitMappingThroughSampler(t *testing.T) {
	assert := assert.New(t)

	s, err := NewCompoundStep(mixedModel(), kernel.Options{
		"sampler_methods": map[string]Variant{"a": RandomWalkM},
		"seed":            29,
	})
	assert.NoError(err)

	cfg := DefaultSampleConfig()
	cfg.NumSamples = 10
	cfg.NumChains = 2
	cfg.BurnIn = 5

	tr, err := s.Sample(cfg)
	assert.NoError(err)
	assert.Equal([]int{2, 10}, tr.Posterior["a"].Shape)
}
