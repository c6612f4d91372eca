package kernel

import (
	"math"

	"gonum.org/v1/gonum/floats"

	"github.com/probkit/temper/rand"
	"github.com/probkit/temper/tensor"
)

// HMCSchema is the statically declared option set for HamiltonianMonteCarlo.
var HMCSchema = Schema{"step_size", "num_leapfrog_steps", "name"}

// HamiltonianMonteCarlo simulates Hamiltonian dynamics over the log target
// for a fixed number of leapfrog steps, then applies a Metropolis
// correction. Gradients come from central finite differences over the
// target (gonum diff/fd); the orchestration layer guarantees the target is
// differentiable before this kernel is ever constructed.
type HamiltonianMonteCarlo struct {
	target        TargetFn
	stepSize      float64
	leapfrogSteps int
	name          string
}

// NewHamiltonianMonteCarlo builds an HMC kernel for the target.
func NewHamiltonianMonteCarlo(target TargetFn, opts Options) (Kernel, error) {
	stepSize, err := opts.Float("step_size", 0.1)
	if err != nil {
		return nil, err
	}
	steps, err := opts.Int("num_leapfrog_steps", 3)
	if err != nil {
		return nil, err
	}
	name, err := opts.String("name", "hmc")
	if err != nil {
		return nil, err
	}
	return &HamiltonianMonteCarlo{
		target:        target,
		stepSize:      stepSize,
		leapfrogSteps: steps,
		name:          name,
	}, nil
}

// StepSize returns the current leapfrog step size.
func (k *HamiltonianMonteCarlo) StepSize() float64 { return k.stepSize }

// SetStepSize replaces the leapfrog step size (used by adaptation).
func (k *HamiltonianMonteCarlo) SetStepSize(s float64) { k.stepSize = s }

// leapfrog advances position/momentum by one step of size eps, returning
// the new log probability as well.
func leapfrog(ft flatTarget, x []float64, r []float64, eps float64) ([]float64, []float64, float64, error) {
	x1 := append([]float64{}, x...)
	r1 := append([]float64{}, r...)

	floats.AddScaled(r1, 0.5*eps, ft.gradient(x1))
	floats.AddScaled(x1, eps, r1)
	floats.AddScaled(r1, 0.5*eps, ft.gradient(x1))

	lp, err := ft.logProb(x1)
	return x1, r1, lp, err
}

func kineticEnergy(r []float64) float64 {
	return 0.5 * floats.Dot(r, r)
}

// Step advances every chain by one HMC transition.
func (k *HamiltonianMonteCarlo) Step(parts []tensor.Tensor, gen *rand.Generator) ([]tensor.Tensor, Results, error) {
	nc, err := NumChains(parts)
	if err != nil {
		return nil, Results{}, err
	}

	ft := newFlatTarget(k.target, parts)
	next := CloneParts(parts)
	res := NewResults(nc)
	res.StepSize = k.stepSize

	for c := 0; c < nc; c++ {
		x0, err := flattenChain(parts, c)
		if err != nil {
			return nil, Results{}, err
		}
		lp0, err := ft.logProb(x0)
		if err != nil {
			return nil, Results{}, err
		}

		r := make([]float64, len(x0))
		for i := range r {
			r[i] = gen.NormFloat64()
		}
		h0 := -lp0 + kineticEnergy(r)

		x := x0
		lp := lp0
		for s := 0; s < k.leapfrogSteps; s++ {
			x, r, lp, err = leapfrog(ft, x, r, k.stepSize)
			if err != nil {
				return nil, Results{}, err
			}
		}
		h1 := -lp + kineticEnergy(r)

		la := h0 - h1
		res.LogAcceptRatio[c] = la
		res.AcceptProb[c] = math.Exp(math.Min(0, la))
		res.LeapfrogsTaken[c] = float64(k.leapfrogSteps)
		res.TargetLogProb[c] = lp0
		res.Energy[c] = h0

		if math.Log(gen.Float64()) < la {
			if err := writeChain(next, c, x); err != nil {
				return nil, Results{}, err
			}
			res.TargetLogProb[c] = lp
			res.Energy[c] = h1
		}
	}

	return next, res, nil
}
