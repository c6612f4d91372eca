package model

import (
	"math"

	"github.com/probkit/temper/tensor"
)

// A Transform reparameterizes a constrained random variable onto an
// unconstrained sampling space. Samplers always see the transformed value
// under the canonical "__<name>_<var>" key; the user-facing value is
// reconciled back during deterministic collection.
type Transform interface {
	Name() string
	// Forward maps a user-space value into sampling space.
	Forward(x tensor.Tensor) tensor.Tensor
	// Inverse maps a sampling-space value back into user space.
	Inverse(y tensor.Tensor) tensor.Tensor
	// LogDetJacobian is the summed log |dx/dy| at the sampling-space value.
	LogDetJacobian(y tensor.Tensor) float64
}

type logTransform struct{}

// Log returns the log transform for positive-support distributions.
func Log() Transform {
	return logTransform{}
}

func (logTransform) Name() string { return "log" }

func (logTransform) Forward(x tensor.Tensor) tensor.Tensor {
	out := x.Clone()
	for i, v := range out.Data {
		out.Data[i] = math.Log(v)
	}
	return out
}

func (logTransform) Inverse(y tensor.Tensor) tensor.Tensor {
	out := y.Clone()
	for i, v := range out.Data {
		out.Data[i] = math.Exp(v)
	}
	return out
}

// x = exp(y), so log|dx/dy| = y, summed over elements.
func (logTransform) LogDetJacobian(y tensor.Tensor) float64 {
	return y.SumAll()
}

// TransformedName is the canonical sampling-space key for a transformed
// variable, e.g. ("log", "sigma") -> "__log_sigma".
func TransformedName(tr Transform, name string) string {
	return "__" + tr.Name() + "_" + name
}
