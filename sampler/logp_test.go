package sampler

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/probkit/temper/model"
	"github.com/probkit/temper/tensor"
)

func scalarNormalModel() *model.Model {
	return model.New("scalar", func(e *model.Eval) error {
		_, err := e.Random("x", model.NewNormal(tensor.Scalar(0), tensor.Scalar(1)))
		return err
	})
}

func observedOnlyModel() *model.Model {
	y := tensor.FromSlice([]float64{1, 2})
	return model.New("obsonly", func(e *model.Eval) error {
		return e.Observe("y", model.NewNormal(tensor.Scalar(0), tensor.Scalar(1)), y)
	})
}

func TestBuildLogpErrors(t *testing.T) {
	assert := assert.New(t)

	_, err := BuildLogp(nil, BuildConfig{})
	assert.Error(err)

	st, err := model.InitializeState(scalarNormalModel(), nil, nil)
	assert.NoError(err)
	_, err = BuildLogp(scalarNormalModel(), BuildConfig{
		Observed: map[string]tensor.Tensor{"x": tensor.Scalar(1)},
		State:    st,
	})
	assert.Error(err)
	assert.Contains(err.Error(), "both state and observed")

	_, err = BuildLogp(observedOnlyModel(), BuildConfig{})
	assert.Error(err)
	assert.Contains(err.Error(), "no unobserved")
}

func TestBuildLogpReduced(t *testing.T) {
	assert := assert.New(t)

	built, err := BuildLogp(scalarNormalModel(), BuildConfig{CollectReduced: true})
	assert.NoError(err)
	assert.Equal([]string{"x"}, built.InitKeys)

	lp, err := built.Logp([]tensor.Tensor{tensor.Scalar(0)})
	assert.NoError(err)
	assert.True(lp.IsScalar())
	assert.InDelta(-0.5*math.Log(2*math.Pi), lp.Data[0], 1e-12)

	// Pure: same input, same output
	lp2, err := built.Logp([]tensor.Tensor{tensor.Scalar(0)})
	assert.NoError(err)
	assert.Equal(lp.Data[0], lp2.Data[0])
}

func TestBuildLogpUnreduced(t *testing.T) {
	assert := assert.New(t)

	y := tensor.FromSlice([]float64{0, 1, 2})
	m := model.New("unred", func(e *model.Eval) error {
		mu, err := e.Random("mu", model.NewNormal(tensor.Scalar(0), tensor.Scalar(1)))
		if err != nil {
			return err
		}
		return e.Observe("y", model.NewNormal(mu, tensor.Scalar(1)), y)
	})

	built, err := BuildLogp(m, BuildConfig{CollectReduced: false})
	assert.NoError(err)

	lp, err := built.Logp([]tensor.Tensor{tensor.Scalar(0)})
	assert.NoError(err)
	// One prior term plus three observation terms
	assert.Equal(4, lp.Size())

	red, err := BuildLogp(m, BuildConfig{CollectReduced: true})
	assert.NoError(err)
	rlp, err := red.Logp([]tensor.Tensor{tensor.Scalar(0)})
	assert.NoError(err)
	assert.InDelta(rlp.Data[0], lp.SumAll(), 1e-12)
}

func TestDeterministicsCallback(t *testing.T) {
	assert := assert.New(t)

	m := model.New("det", func(e *model.Eval) error {
		x, err := e.Random("x", model.NewNormal(tensor.Scalar(0), tensor.Scalar(1)))
		if err != nil {
			return err
		}
		double := x.Clone()
		for i := range double.Data {
			double.Data[i] *= 2
		}
		e.Deterministic("double", double)
		return nil
	})

	built, err := BuildLogp(m, BuildConfig{CollectReduced: true})
	assert.NoError(err)
	assert.Equal([]string{"double"}, built.DeterministicNames)

	vals, err := built.Deterministics([]tensor.Tensor{tensor.Scalar(1.5)})
	assert.NoError(err)
	assert.Len(vals, 1)
	assert.Equal(3.0, vals[0].Data[0])
}

func TestTileInitRoundTrip(t *testing.T) {
	assert := assert.New(t)

	orig := []tensor.Tensor{tensor.Scalar(2.5), tensor.FromSlice([]float64{1, 2, 3})}
	tiled := TileInit(orig, 4)

	assert.Equal([]int{4}, tiled[0].Shape)
	assert.Equal([]int{4, 3}, tiled[1].Shape)

	for i, tt := range tiled {
		for r := 0; r < 4; r++ {
			s, err := tt.Lead(r)
			assert.NoError(err)
			assert.True(s.Equal(orig[i]))
		}
	}
}
