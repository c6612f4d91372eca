package smc

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/probkit/temper/model"
	"github.com/probkit/temper/tensor"
)

func priorOnlyModel() *model.Model {
	return model.New("prioronly", func(e *model.Eval) error {
		_, err := e.Random("x", model.NewNormal(tensor.Scalar(0), tensor.Scalar(1)))
		return err
	})
}

func conjugateModel(y tensor.Tensor) *model.Model {
	return model.New("conjugate", func(e *model.Eval) error {
		mu, err := e.Random("mu", model.NewNormal(tensor.Scalar(0), tensor.Scalar(1)))
		if err != nil {
			return err
		}
		return e.Observe("y", model.NewNormal(mu, tensor.Scalar(1)), y)
	})
}

func TestSampleValidation(t *testing.T) {
	assert := assert.New(t)

	_, err := Sample(nil, DefaultConfig())
	assert.Error(err)

	cfg := DefaultConfig()
	st, err := model.InitializeState(priorOnlyModel(), nil, nil)
	assert.NoError(err)
	cfg.State = st
	cfg.Observed = map[string]tensor.Tensor{"x": tensor.Scalar(1)}
	_, err = Sample(priorOnlyModel(), cfg)
	assert.Error(err)
	assert.Contains(err.Error(), "both state and observed")
}

func TestMissingLikelihoodIsAnError(t *testing.T) {
	assert := assert.New(t)

	cfg := DefaultConfig()
	cfg.Replicas = 10
	cfg.NumChains = 2

	_, err := Sample(priorOnlyModel(), cfg)
	assert.Error(err)
	assert.Contains(err.Error(), "both likelihood and prior")
}

func TestMissingPriorIsAnError(t *testing.T) {
	assert := assert.New(t)

	// Observing the only random variable leaves no prior contribution and
	// nothing to sample
	cfg := DefaultConfig()
	cfg.Replicas = 10
	cfg.Observed = map[string]tensor.Tensor{"x": tensor.Scalar(0.5)}

	_, err := Sample(priorOnlyModel(), cfg)
	assert.Error(err)
}

func TestSampleShapesAndStages(t *testing.T) {
	assert := assert.New(t)

	y := tensor.FromSlice([]float64{0.9, 1.1, 1.0, 0.8, 1.2})
	cfg := DefaultConfig()
	cfg.Replicas = 100
	cfg.NumChains = 2
	cfg.Seed = 31
	cfg.RejuvenationSteps = 3

	stages := 0
	lastBeta := 0.0
	cfg.Progress = func(stage int, beta float64) {
		stages = stage
		assert.GreaterOrEqual(beta, lastBeta)
		lastBeta = beta
	}

	tr, err := Sample(conjugateModel(y), cfg)
	assert.NoError(err)

	mu, ok := tr.Posterior["mu"]
	assert.True(ok)
	assert.Equal([]int{2, 100}, mu.Shape)
	for _, v := range mu.Data {
		assert.False(math.IsNaN(v))
	}

	assert.GreaterOrEqual(stages, 1)
	assert.LessOrEqual(stages, 50)
	assert.InDelta(1.0, lastBeta, 1e-9)

	n, err := tr.SampleStats["n_stage"].ScalarValue()
	assert.NoError(err)
	assert.Equal(float64(stages), n)

	// Five observations at ~1 against a standard normal prior put the
	// posterior mean of mu near 5/6
	mean, err := tr.PosteriorMean("mu")
	assert.NoError(err)
	assert.InDelta(5.0/6.0, mean, 0.25)
}

func TestSampleWithSuppliedState(t *testing.T) {
	assert := assert.New(t)

	y := tensor.FromSlice([]float64{0.9, 1.1, 1.0})
	m := conjugateModel(y)

	// A caller-supplied state carries no replica axis; the population
	// starts from replica-tiled copies of its values
	st, err := model.InitializeState(m, nil, nil)
	assert.NoError(err)

	cfg := DefaultConfig()
	cfg.Replicas = 50
	cfg.NumChains = 2
	cfg.Seed = 43
	cfg.RejuvenationSteps = 2
	cfg.State = st

	tr, err := Sample(m, cfg)
	assert.NoError(err)

	mu, ok := tr.Posterior["mu"]
	assert.True(ok)
	assert.Equal([]int{2, 50}, mu.Shape)
	for _, v := range mu.Data {
		assert.False(math.IsNaN(v))
	}

	beta, err := tr.SampleStats["beta"].ScalarValue()
	assert.NoError(err)
	assert.InDelta(1.0, beta, 1e-9)
}

func TestFusedDisablesProgress(t *testing.T) {
	assert := assert.New(t)

	y := tensor.FromSlice([]float64{1.0})
	cfg := DefaultConfig()
	cfg.Replicas = 50
	cfg.NumChains = 1
	cfg.Seed = 37
	cfg.RejuvenationSteps = 2
	cfg.Fused = true

	calls := 0
	cfg.Progress = func(stage int, beta float64) { calls++ }

	_, err := Sample(conjugateModel(y), cfg)
	assert.NoError(err)
	assert.Equal(0, calls)
}
