package kernel

import (
	"math"

	"gonum.org/v1/gonum/floats"

	"github.com/probkit/temper/rand"
	"github.com/probkit/temper/tensor"
)

// NUTSSchema is the statically declared option set for NoUTurn.
var NUTSSchema = Schema{"step_size", "max_tree_depth", "max_energy_diff", "name"}

// NoUTurn is the No-U-Turn sampler (Hoffman & Gelman): HMC with the
// trajectory length chosen dynamically by doubling a leapfrog tree until
// the path turns back on itself. Uses the same finite-difference gradient
// machinery as HamiltonianMonteCarlo.
type NoUTurn struct {
	target        TargetFn
	stepSize      float64
	maxTreeDepth  int
	maxEnergyDiff float64
	name          string
}

// NewNoUTurn builds a NUTS kernel for the target.
func NewNoUTurn(target TargetFn, opts Options) (Kernel, error) {
	stepSize, err := opts.Float("step_size", 0.1)
	if err != nil {
		return nil, err
	}
	maxDepth, err := opts.Int("max_tree_depth", 10)
	if err != nil {
		return nil, err
	}
	maxDiff, err := opts.Float("max_energy_diff", 1000.0)
	if err != nil {
		return nil, err
	}
	name, err := opts.String("name", "nuts")
	if err != nil {
		return nil, err
	}
	return &NoUTurn{
		target:        target,
		stepSize:      stepSize,
		maxTreeDepth:  maxDepth,
		maxEnergyDiff: maxDiff,
		name:          name,
	}, nil
}

// StepSize returns the current leapfrog step size.
func (k *NoUTurn) StepSize() float64 { return k.stepSize }

// SetStepSize replaces the leapfrog step size (used by adaptation).
func (k *NoUTurn) SetStepSize(s float64) { k.stepSize = s }

// treeStats accumulates per-transition diagnostics across the recursion.
type treeStats struct {
	joint0    float64
	leapfrogs int
	sumAlpha  float64
	nAlpha    int
	diverged  bool
}

// tree is one explored subtree: leftmost/rightmost states plus the
// candidate draw and the valid-point count.
type tree struct {
	xm, rm []float64
	xp, rp []float64
	xq     []float64
	n      int
	s      bool
}

func noUTurn(xm, xp, rm, rp []float64) bool {
	dx := make([]float64, len(xm))
	floats.SubTo(dx, xp, xm)
	return floats.Dot(dx, rm) >= 0 && floats.Dot(dx, rp) >= 0
}

func (k *NoUTurn) buildTree(ft flatTarget, x, r []float64, logu float64, dir float64, depth int, gen *rand.Generator, st *treeStats) (tree, error) {
	if depth == 0 {
		x1, r1, lp, err := leapfrog(ft, x, r, dir*k.stepSize)
		if err != nil {
			return tree{}, err
		}
		st.leapfrogs++

		joint := lp - kineticEnergy(r1)
		n := 0
		if logu <= joint {
			n = 1
		}
		s := logu < joint+k.maxEnergyDiff
		if !s {
			st.diverged = true
		}

		st.sumAlpha += math.Exp(math.Min(0, joint-st.joint0))
		st.nAlpha++

		return tree{xm: x1, rm: r1, xp: x1, rp: r1, xq: x1, n: n, s: s}, nil
	}

	t1, err := k.buildTree(ft, x, r, logu, dir, depth-1, gen, st)
	if err != nil {
		return tree{}, err
	}
	if !t1.s {
		return t1, nil
	}

	var t2 tree
	if dir < 0 {
		t2, err = k.buildTree(ft, t1.xm, t1.rm, logu, dir, depth-1, gen, st)
		if err != nil {
			return tree{}, err
		}
		t1.xm, t1.rm = t2.xm, t2.rm
	} else {
		t2, err = k.buildTree(ft, t1.xp, t1.rp, logu, dir, depth-1, gen, st)
		if err != nil {
			return tree{}, err
		}
		t1.xp, t1.rp = t2.xp, t2.rp
	}

	if t2.n > 0 && gen.Float64() < float64(t2.n)/float64(t1.n+t2.n) {
		t1.xq = t2.xq
	}
	t1.n += t2.n
	t1.s = t2.s && noUTurn(t1.xm, t1.xp, t1.rm, t1.rp)
	return t1, nil
}

// Step advances every chain by one NUTS transition.
func (k *NoUTurn) Step(parts []tensor.Tensor, gen *rand.Generator) ([]tensor.Tensor, Results, error) {
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

		r0 := make([]float64, len(x0))
		for i := range r0 {
			r0[i] = gen.NormFloat64()
		}

		st := &treeStats{joint0: lp0 - kineticEnergy(r0)}
		logu := st.joint0 + math.Log(gen.Float64())

		xm := append([]float64{}, x0...)
		xp := append([]float64{}, x0...)
		rm := append([]float64{}, r0...)
		rp := append([]float64{}, r0...)
		xNew := x0
		n := 1
		s := true

		for depth := 0; s && depth < k.maxTreeDepth; depth++ {
			dir := 1.0
			if gen.Float64() < 0.5 {
				dir = -1.0
			}

			var t tree
			if dir < 0 {
				t, err = k.buildTree(ft, xm, rm, logu, dir, depth, gen, st)
				if err != nil {
					return nil, Results{}, err
				}
				xm, rm = t.xm, t.rm
			} else {
				t, err = k.buildTree(ft, xp, rp, logu, dir, depth, gen, st)
				if err != nil {
					return nil, Results{}, err
				}
				xp, rp = t.xp, t.rp
			}

			if t.s && t.n > 0 && gen.Float64() < float64(t.n)/float64(n) {
				xNew = t.xq
			}
			n += t.n
			s = t.s && noUTurn(xm, xp, rm, rp)
		}

		lp1, err := ft.logProb(xNew)
		if err != nil {
			return nil, Results{}, err
		}
		if err := writeChain(next, c, xNew); err != nil {
			return nil, Results{}, err
		}

		accept := 0.0
		if st.nAlpha > 0 {
			accept = st.sumAlpha / float64(st.nAlpha)
		}
		res.TargetLogProb[c] = lp1
		res.LeapfrogsTaken[c] = float64(st.leapfrogs)
		res.AcceptProb[c] = accept
		res.LogAcceptRatio[c] = math.Log(math.Max(accept, 1e-300))
		res.Energy[c] = -st.joint0
		if st.diverged {
			res.Diverging[c] = 1.0
		}
	}

	return next, res, nil
}
