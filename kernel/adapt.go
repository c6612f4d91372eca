package kernel

import (
	"math"

	"github.com/pkg/errors"

	"github.com/probkit/temper/buffer"
	"github.com/probkit/temper/rand"
	"github.com/probkit/temper/tensor"
)

// DualAveragingSchema is the statically declared option set for
// DualAveragingStepSize.
var DualAveragingSchema = Schema{"num_adaptation_steps", "target_accept_prob", "name"}

// SimpleAdaptationSchema is the statically declared option set for
// SimpleStepSize.
var SimpleAdaptationSchema = Schema{"num_adaptation_steps", "adaptation_rate", "target_accept_prob", "name"}

// DualAveragingStepSize tunes the inner kernel's step size during the
// first num_adaptation_steps transitions using Nesterov dual averaging of
// the acceptance statistic, then freezes the averaged step size.
type DualAveragingStepSize struct {
	inner Kernel
	ss    StepSized

	numAdapt int
	target   float64

	t          float64
	mu         float64
	logStepBar float64
	hBar       float64
	started    bool
}

// Dual-averaging constants per Hoffman & Gelman.
const (
	daGamma = 0.05
	daT0    = 10.0
	daKappa = 0.75
)

// NewDualAveragingStepSize wraps an inner step-sized kernel.
func NewDualAveragingStepSize(inner Kernel, opts Options) (Kernel, error) {
	ss, ok := inner.(StepSized)
	if !ok {
		return nil, errors.Errorf("Inner kernel %T does not expose a step size to adapt", inner)
	}
	numAdapt, err := opts.Int("num_adaptation_steps", 100)
	if err != nil {
		return nil, err
	}
	target, err := opts.Float("target_accept_prob", 0.75)
	if err != nil {
		return nil, err
	}
	return &DualAveragingStepSize{
		inner:    inner,
		ss:       ss,
		numAdapt: numAdapt,
		target:   target,
	}, nil
}

// Step delegates to the inner kernel and updates its step size while the
// adaptation window is open.
func (k *DualAveragingStepSize) Step(parts []tensor.Tensor, gen *rand.Generator) ([]tensor.Tensor, Results, error) {
	if !k.started {
		k.mu = math.Log(10.0 * k.ss.StepSize())
		k.logStepBar = math.Log(k.ss.StepSize())
		k.started = true
	}

	next, res, err := k.inner.Step(parts, gen)
	if err != nil {
		return nil, Results{}, err
	}

	if int(k.t) < k.numAdapt {
		k.t++
		w := 1.0 / (k.t + daT0)
		k.hBar = (1.0-w)*k.hBar + w*(k.target-res.MeanAcceptProb())

		logStep := k.mu - math.Sqrt(k.t)/daGamma*k.hBar
		eta := math.Pow(k.t, -daKappa)
		k.logStepBar = eta*logStep + (1.0-eta)*k.logStepBar

		if int(k.t) >= k.numAdapt {
			k.ss.SetStepSize(math.Exp(k.logStepBar))
		} else {
			k.ss.SetStepSize(math.Exp(logStep))
		}
	}

	res.StepSize = k.ss.StepSize()
	return next, res, nil
}

// SimpleStepSize nudges the inner kernel's step size up or down by a fixed
// rate whenever the windowed acceptance average strays from the target.
type SimpleStepSize struct {
	inner Kernel
	ss    StepSized

	numAdapt int
	target   float64
	rate     float64

	t      int
	window *buffer.CircularFloat
}

// Acceptance window length for the simple adaptation rule.
const simpleAdaptWindow = 25

// NewSimpleStepSize wraps an inner step-sized kernel.
func NewSimpleStepSize(inner Kernel, opts Options) (Kernel, error) {
	ss, ok := inner.(StepSized)
	if !ok {
		return nil, errors.Errorf("Inner kernel %T does not expose a step size to adapt", inner)
	}
	numAdapt, err := opts.Int("num_adaptation_steps", 100)
	if err != nil {
		return nil, err
	}
	target, err := opts.Float("target_accept_prob", 0.75)
	if err != nil {
		return nil, err
	}
	rate, err := opts.Float("adaptation_rate", 0.01)
	if err != nil {
		return nil, err
	}
	return &SimpleStepSize{
		inner:    inner,
		ss:       ss,
		numAdapt: numAdapt,
		target:   target,
		rate:     rate,
		window:   buffer.NewCircularFloat(simpleAdaptWindow),
	}, nil
}

// Step delegates to the inner kernel and applies the windowed adjustment
// while the adaptation window is open.
func (k *SimpleStepSize) Step(parts []tensor.Tensor, gen *rand.Generator) ([]tensor.Tensor, Results, error) {
	next, res, err := k.inner.Step(parts, gen)
	if err != nil {
		return nil, Results{}, err
	}

	if k.t < k.numAdapt {
		k.t++
		k.window.Add(res.MeanAcceptProb())
		if k.window.Full() {
			if k.window.Mean() > k.target {
				k.ss.SetStepSize(k.ss.StepSize() * (1.0 + k.rate))
			} else {
				k.ss.SetStepSize(k.ss.StepSize() / (1.0 + k.rate))
			}
		}
	}

	res.StepSize = k.ss.StepSize()
	return next, res, nil
}
