// Package proposal provides stateless proposal samplers for the
// random-walk Metropolis kernel over discrete supports. Each factory takes
// a scale (one value, or one per state part) and returns a function that
// maps the current state parts to proposed new parts. The scale must be a
// single value or line up 1:1 against the state parts; anything else is a
// configuration error.
package proposal

import (
	"math"

	"github.com/pkg/errors"
	"gonum.org/v1/gonum/stat/distuv"

	"github.com/probkit/temper/rand"
	"github.com/probkit/temper/tensor"
)

// expandScales applies the broadcast contract: no scales means a default
// of 1, one scale is repeated per part, otherwise the count must match.
func expandScales(scales []float64, nParts int) ([]float64, error) {
	if len(scales) == 0 {
		scales = []float64{1.0}
	}
	if len(scales) == 1 {
		out := make([]float64, nParts)
		for i := range out {
			out[i] = scales[0]
		}
		return out, nil
	}
	if len(scales) != nParts {
		return nil, errors.Errorf("Scale must broadcast with state parts: %d scales for %d parts", len(scales), nParts)
	}
	return scales, nil
}

// CategoricalUniform returns a proposal that redraws every element
// uniformly over {0..eventShape-1}, ignoring the current value.
func CategoricalUniform(eventShape int, scales ...float64) func(parts []tensor.Tensor, gen *rand.Generator) ([]tensor.Tensor, error) {
	return func(parts []tensor.Tensor, gen *rand.Generator) ([]tensor.Tensor, error) {
		if _, err := expandScales(scales, len(parts)); err != nil {
			return nil, err
		}
		out := make([]tensor.Tensor, len(parts))
		for i, p := range parts {
			q := p.Clone()
			for j := range q.Data {
				q.Data[j] = float64(gen.Intn(eventShape))
			}
			out[i] = q
		}
		return out, nil
	}
}

// Bernoulli returns a proposal that flips each element with probability
// 0.5*scale, keeping the state on {0,1} via a modulo-2 walk.
func Bernoulli(scales ...float64) func(parts []tensor.Tensor, gen *rand.Generator) ([]tensor.Tensor, error) {
	return func(parts []tensor.Tensor, gen *rand.Generator) ([]tensor.Tensor, error) {
		sc, err := expandScales(scales, len(parts))
		if err != nil {
			return nil, err
		}
		out := make([]tensor.Tensor, len(parts))
		for i, p := range parts {
			flip := distuv.Bernoulli{P: 0.5 * sc[i], Src: gen}
			q := p.Clone()
			for j := range q.Data {
				q.Data[j] = math.Mod(q.Data[j]+flip.Rand(), 2.0)
			}
			out[i] = q
		}
		return out, nil
	}
}

// GaussianRound returns a proposal that adds Gaussian noise of the given
// scale and rounds back onto the integers.
func GaussianRound(scales ...float64) func(parts []tensor.Tensor, gen *rand.Generator) ([]tensor.Tensor, error) {
	return func(parts []tensor.Tensor, gen *rand.Generator) ([]tensor.Tensor, error) {
		sc, err := expandScales(scales, len(parts))
		if err != nil {
			return nil, err
		}
		out := make([]tensor.Tensor, len(parts))
		for i, p := range parts {
			step := distuv.Normal{Mu: 0, Sigma: sc[i], Src: gen}
			q := p.Clone()
			for j := range q.Data {
				q.Data[j] = math.Round(q.Data[j] + step.Rand())
			}
			out[i] = q
		}
		return out, nil
	}
}

// Poisson returns a proposal that redraws every element from a Poisson
// with the scale as its rate, independent of the current value.
func Poisson(scales ...float64) func(parts []tensor.Tensor, gen *rand.Generator) ([]tensor.Tensor, error) {
	return func(parts []tensor.Tensor, gen *rand.Generator) ([]tensor.Tensor, error) {
		sc, err := expandScales(scales, len(parts))
		if err != nil {
			return nil, err
		}
		out := make([]tensor.Tensor, len(parts))
		for i, p := range parts {
			draw := distuv.Poisson{Lambda: sc[i], Src: gen}
			q := p.Clone()
			for j := range q.Data {
				q.Data[j] = draw.Rand()
			}
			out[i] = q
		}
		return out, nil
	}
}
