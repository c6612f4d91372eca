package cmd

import (
	"math"

	"github.com/pkg/errors"

	"github.com/probkit/temper/model"
	"github.com/probkit/temper/tensor"
)

// DemoModelNames lists the built-in models in menu order.
func DemoModelNames() []string {
	return []string{"normal", "regression", "coin"}
}

// demoModel builds one of the built-in demo models by name.
func demoModel(name string) (*model.Model, error) {
	switch name {
	case "normal":
		return normalModel(), nil
	case "regression":
		return regressionModel(), nil
	case "coin":
		return coinModel(), nil
	}
	return nil, errors.Errorf("Unknown demo model %s (have %v)", name, DemoModelNames())
}

// normalModel is the smallest possible model: one standard normal variable.
func normalModel() *model.Model {
	return model.New("normal", func(e *model.Eval) error {
		_, err := e.Random("x", model.NewNormal(tensor.Scalar(0), tensor.Scalar(1)))
		return err
	})
}

// regressionModel estimates the location and scale of a small data set,
// with the scale sampled in log space.
func regressionModel() *model.Model {
	y := tensor.FromSlice([]float64{1.1, 1.9, 3.2, 3.8, 5.1, 6.2, 6.8, 8.1})

	return model.New("regression", func(e *model.Eval) error {
		mu, err := e.Random("mu", model.NewNormal(tensor.Scalar(0), tensor.Scalar(10)))
		if err != nil {
			return err
		}
		sigma, err := e.Random("sigma", model.NewHalfNormal(tensor.Scalar(1)), model.WithTransform(model.Log()))
		if err != nil {
			return err
		}
		if err := e.Observe("y", model.NewNormal(mu, sigma), y); err != nil {
			return err
		}
		e.Deterministic("spread", sigma)
		return nil
	})
}

// coinModel infers a coin's bias from observed flips through a logit-normal
// prior, keeping the sampled space continuous for the gradient kernels.
func coinModel() *model.Model {
	flips := tensor.FromSlice([]float64{1, 1, 0, 1, 1, 1, 0, 1, 0, 1})

	return model.New("coin", func(e *model.Eval) error {
		theta, err := e.Random("theta", model.NewNormal(tensor.Scalar(0), tensor.Scalar(1.5)))
		if err != nil {
			return err
		}
		p := theta.Clone()
		for i, v := range p.Data {
			p.Data[i] = 1.0 / (1.0 + math.Exp(-v))
		}
		if err := e.Observe("flips", model.NewBernoulli(p), flips); err != nil {
			return err
		}
		e.Deterministic("bias", p)
		return nil
	})
}
