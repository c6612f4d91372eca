package model

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/probkit/temper/rand"
	"github.com/probkit/temper/tensor"
)

func simpleModel() *Model {
	return New("simple", func(e *Eval) error {
		_, err := e.Random("x", NewNormal(tensor.Scalar(0), tensor.Scalar(1)))
		return err
	})
}

func regressionModel(y tensor.Tensor) *Model {
	return New("reg", func(e *Eval) error {
		mu, err := e.Random("mu", NewNormal(tensor.Scalar(0), tensor.Scalar(10)))
		if err != nil {
			return err
		}
		sigma, err := e.Random("sigma", NewHalfNormal(tensor.Scalar(1)), WithTransform(Log()))
		if err != nil {
			return err
		}
		if err := e.Observe("y", NewNormal(mu, sigma), y); err != nil {
			return err
		}
		e.Deterministic("spread", sigma)
		return nil
	})
}

func TestInitializeState(t *testing.T) {
	assert := assert.New(t)

	_, err := InitializeState(nil, nil, nil)
	assert.Error(err)

	st, err := InitializeState(simpleModel(), nil, nil)
	assert.NoError(err)
	assert.Equal([]string{"x"}, st.UnobservedKeys())
	assert.Equal(1, st.PriorTermCount())
	assert.Equal(0, st.LikelihoodTermCount())

	// x starts at the prior mean
	assert.Equal(0.0, st.UnobservedValues["x"].Data[0])
}

func TestInitializeStateExclusiveArgs(t *testing.T) {
	assert := assert.New(t)

	st, err := InitializeState(simpleModel(), nil, nil)
	assert.NoError(err)

	_, err = InitializeState(simpleModel(), map[string]tensor.Tensor{"x": tensor.Scalar(1)}, st)
	assert.Error(err)
	assert.Contains(err.Error(), "both state and observed")
}

func TestObservedOverride(t *testing.T) {
	assert := assert.New(t)

	// Supplying x as observed turns the prior variable into a likelihood term
	st, err := InitializeState(simpleModel(), map[string]tensor.Tensor{"x": tensor.Scalar(0.5)}, nil)
	assert.NoError(err)
	assert.Empty(st.UnobservedKeys())
	assert.Equal(1, st.LikelihoodTermCount())
	assert.Equal(0, st.PriorTermCount())
}

func TestTransformedVariableBookkeeping(t *testing.T) {
	assert := assert.New(t)

	y := tensor.FromSlice([]float64{1, 2, 3})
	st, err := InitializeState(regressionModel(y), nil, nil)
	assert.NoError(err)

	// The sampled key is the canonical transformed name
	assert.Equal([]string{"mu", "__log_sigma"}, st.UnobservedKeys())
	assert.Equal("sigma", UnscopedName("__log_sigma"))
	assert.Equal("mu", UnscopedName("mu"))

	// Deterministics carry both the declared quantity and the user-facing
	// value of the transformed variable
	names, values := st.DeterministicsList()
	assert.Equal([]string{"spread", "sigma"}, names)
	assert.Len(values, 2)

	// sigma was initialized at 1, so its sampled log-space value is 0
	assert.InDelta(0.0, st.UnobservedValues["__log_sigma"].Data[0], 1e-12)
	assert.InDelta(1.0, values[1].Data[0], 1e-12)
}

func TestDuplicateNames(t *testing.T) {
	assert := assert.New(t)

	m := New("dup", func(e *Eval) error {
		if _, err := e.Random("x", NewNormal(tensor.Scalar(0), tensor.Scalar(1))); err != nil {
			return err
		}
		_, err := e.Random("x", NewNormal(tensor.Scalar(0), tensor.Scalar(1)))
		return err
	})

	_, err := InitializeState(m, nil, nil)
	assert.Error(err)
	assert.Contains(err.Error(), "Duplicate")
}

func TestCollectLogProb(t *testing.T) {
	assert := assert.New(t)

	y := tensor.FromSlice([]float64{0, 0})
	m := New("two", func(e *Eval) error {
		mu, err := e.Random("mu", NewNormal(tensor.Scalar(0), tensor.Scalar(1)))
		if err != nil {
			return err
		}
		return e.Observe("y", NewNormal(mu, tensor.Scalar(1)), y)
	})

	st, err := InitializeState(m, nil, nil)
	assert.NoError(err)

	reduced, err := st.CollectLogProb(true)
	assert.NoError(err)
	assert.True(reduced.IsScalar())

	unreduced, err := st.CollectLogProb(false)
	assert.NoError(err)
	assert.Equal(3, unreduced.Size())
	assert.InDelta(reduced.Data[0], unreduced.SumAll(), 1e-12)

	// Prior and likelihood split apart cleanly
	p := st.CollectPriorLogProb()
	l := st.CollectLikelihoodLogProb()
	assert.InDelta(reduced.Data[0], p.Data[0]+l.Data[0], 1e-12)
}

func TestFromValuesIsPure(t *testing.T) {
	assert := assert.New(t)

	m := simpleModel()
	st, err := InitializeState(m, nil, nil)
	assert.NoError(err)

	val := []tensor.Tensor{tensor.Scalar(0.75)}
	var got []float64
	for i := 0; i < 3; i++ {
		ev, err := FromValues(st.UnobservedKeys(), val, st.ObservedValues)
		assert.NoError(err)
		assert.NoError(Evaluate(m, ev))
		lp, err := ev.CollectLogProb(true)
		assert.NoError(err)
		got = append(got, lp.Data[0])
	}
	assert.Equal(got[0], got[1])
	assert.Equal(got[1], got[2])

	want := distNormalLogProb(0.75)
	assert.InDelta(want, got[0], 1e-12)
}

func distNormalLogProb(x float64) float64 {
	return -0.5*x*x - 0.5*math.Log(2*math.Pi)
}

func TestInitializeStateSMC(t *testing.T) {
	assert := assert.New(t)

	gen, err := rand.NewGenerator(42)
	assert.NoError(err)

	st, err := InitializeStateSMC(simpleModel(), nil, nil, 64, gen)
	assert.NoError(err)

	x := st.UnobservedValues["x"]
	assert.Equal([]int{64}, x.Shape)

	// Prior draws should not be degenerate
	spread := 0.0
	for _, v := range x.Data {
		spread += math.Abs(v)
	}
	assert.Greater(spread, 0.0)

	_, err = InitializeStateSMC(simpleModel(), nil, nil, 0, gen)
	assert.Error(err)
}

func TestDiscreteMetadata(t *testing.T) {
	assert := assert.New(t)

	m := New("mixed", func(e *Eval) error {
		if _, err := e.Random("a", NewNormal(tensor.Scalar(0), tensor.Scalar(1))); err != nil {
			return err
		}
		_, err := e.Random("b", NewBernoulli(tensor.Scalar(0.4)))
		return err
	})

	st, err := InitializeState(m, nil, nil)
	assert.NoError(err)
	assert.Equal([]string{"a"}, st.ContinuousKeys())
	assert.Equal([]string{"b"}, st.DiscreteKeys())

	d, err := st.Dist("b")
	assert.NoError(err)
	assert.True(d.Discrete())
	assert.False(d.HasGrad())

	_, err = st.Dist("nope")
	assert.Error(err)
}
