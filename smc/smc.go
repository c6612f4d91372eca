// Package smc implements a sequential Monte Carlo sampler: a population of
// replicas per chain is annealed from the prior to the posterior through a
// tempered target prior + beta*likelihood. The temperature increments are
// chosen adaptively from the population's effective sample size, with
// systematic resampling and random-walk rejuvenation between stages.
package smc

import (
	"math"

	"github.com/pkg/errors"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"

	"github.com/probkit/temper/kernel"
	"github.com/probkit/temper/model"
	"github.com/probkit/temper/rand"
	"github.com/probkit/temper/sampler"
	"github.com/probkit/temper/tensor"
	"github.com/probkit/temper/trace"
)

// Config drives one SMC invocation.
type Config struct {
	// Replicas is the population size per chain.
	Replicas  int
	NumChains int

	// Observed overrides and a full prior state are mutually exclusive.
	Observed map[string]tensor.Tensor
	State    *model.SamplingState

	Seed int64

	// MaxStages bounds the annealing loop even when the adaptive schedule
	// fails to reach beta=1.
	MaxStages int

	// TargetESS is the effective-sample-size fraction the temperature
	// bisection aims for when choosing each increment.
	TargetESS float64

	// RejuvenationSteps is the number of random-walk Metropolis moves
	// applied to every particle after each resampling.
	RejuvenationSteps int

	// Fused hands the whole annealing loop to the runner as one opaque
	// unit: no progress callbacks fire.
	Fused bool

	Progress func(stage int, beta float64)
}

// DefaultConfig mirrors the stock population and schedule settings.
func DefaultConfig() Config {
	return Config{
		Replicas:          1000,
		NumChains:         10,
		MaxStages:         50,
		TargetESS:         0.5,
		RejuvenationSteps: 10,
		Seed:              1,
	}
}

func (c *Config) fillDefaults() {
	if c.Replicas < 1 {
		c.Replicas = 1000
	}
	if c.NumChains < 1 {
		c.NumChains = 10
	}
	if c.MaxStages < 1 {
		c.MaxStages = 50
	}
	if c.TargetESS <= 0 || c.TargetESS >= 1 {
		c.TargetESS = 0.5
	}
	if c.RejuvenationSteps < 1 {
		c.RejuvenationSteps = 10
	}
	if c.Seed == 0 {
		c.Seed = 1
	}
}

// Sample runs the SMC sampler against a model. The final particle
// population is returned as the posterior, shaped [chains, replicas, ...]
// per variable.
func Sample(m *model.Model, cfg Config) (*trace.Trace, error) {
	if m == nil {
		return nil, errors.Errorf("sample only supports temper model values, but no model was passed")
	}
	if cfg.State != nil && cfg.Observed != nil {
		return nil, errors.Errorf("Can not use both state and observed arguments")
	}
	cfg.fillDefaults()

	gen, err := rand.NewGenerator(cfg.Seed)
	if err != nil {
		return nil, err
	}
	defer gen.Close()

	// Initial population: one prior draw per replica, discovered by a
	// single replica-batched model evaluation.
	st, err := model.InitializeStateSMC(m, cfg.Observed, cfg.State, cfg.Replicas, gen)
	if err != nil {
		return nil, err
	}
	if len(st.UnobservedKeys()) < 1 {
		return nil, errors.Errorf("Can not calculate a log probability: the model %s has no unobserved values", m.Name)
	}
	if st.PriorTermCount() < 1 || st.LikelihoodTermCount() < 1 {
		return nil, errors.Errorf("Can not run SMC: the model %s should contain both likelihood and prior", m.Name)
	}

	keys := st.UnobservedKeys()
	observed := st.ObservedValues

	priorCore := func(parts []tensor.Tensor) (tensor.Tensor, error) {
		ev, err := model.FromValues(keys, parts, observed)
		if err != nil {
			return tensor.Tensor{}, err
		}
		if err := model.Evaluate(m, ev); err != nil {
			return tensor.Tensor{}, err
		}
		return ev.CollectPriorLogProb(), nil
	}
	lkhCore := func(parts []tensor.Tensor) (tensor.Tensor, error) {
		ev, err := model.FromValues(keys, parts, observed)
		if err != nil {
			return tensor.Tensor{}, err
		}
		if err := model.Evaluate(m, ev); err != nil {
			return tensor.Tensor{}, err
		}
		return ev.CollectLikelihoodLogProb(), nil
	}

	// Prior-drawn init values carry one leading replica axis already; the
	// core rank of each variable is everything behind it. Values from a
	// caller-supplied state arrive unbatched, so the whole value is core
	// and the population starts as replica-tiled copies of it (the
	// rejuvenation moves spread them out).
	replicaBatched := st.UnobservedList()
	coreNDims := make([]int, len(replicaBatched))
	for i, v := range replicaBatched {
		if cfg.State != nil {
			coreNDims[i] = v.NDim()
			replicaBatched[i] = tensor.Tile(v, cfg.Replicas)
		} else {
			coreNDims[i] = v.NDim() - 1
		}
	}

	// One rank-polymorphic lift serves both layouts the loop needs: the
	// (chain, replica) grid for weighting and the flat particle axis for
	// rejuvenation.
	priorLifted := sampler.RankPolymorphic(priorCore, coreNDims)
	lkhLifted := sampler.RankPolymorphic(lkhCore, coreNDims)

	parts := make([]tensor.Tensor, len(replicaBatched))
	for i, v := range replicaBatched {
		parts[i] = tensor.Tile(v, cfg.NumChains)
	}

	beta := 0.0
	stage := 0
	for beta < 1.0 && stage < cfg.MaxStages {
		stage++

		lkh, err := lkhLifted(parts)
		if err != nil {
			return nil, errors.Wrap(err, "Likelihood evaluation failed")
		}

		dbeta := chooseIncrement(lkh, cfg.NumChains, cfg.Replicas, 1.0-beta, cfg.TargetESS)
		beta += dbeta

		if err := resample(parts, lkh, dbeta, cfg.NumChains, cfg.Replicas, gen); err != nil {
			return nil, err
		}

		if err := rejuvenate(parts, priorLifted, lkhLifted, beta, cfg, gen); err != nil {
			return nil, err
		}

		if !cfg.Fused && cfg.Progress != nil {
			cfg.Progress(stage, beta)
		}
	}

	posterior := map[string]tensor.Tensor{}
	for i, key := range keys {
		posterior[key] = parts[i]
	}
	stats := map[string]tensor.Tensor{
		"n_stage": tensor.Scalar(float64(stage)),
		"beta":    tensor.Scalar(beta),
	}
	return trace.New(posterior, stats, st.ObservedValues), nil
}

// essFraction computes the normalized effective sample size of one chain's
// population under importance weights proportional to exp(dbeta*lkh).
func essFraction(lkh []float64, dbeta float64) float64 {
	logw := make([]float64, len(lkh))
	for i, l := range lkh {
		logw[i] = dbeta * l
	}
	lse := floats.LogSumExp(logw)

	sumSq := 0.0
	for _, lw := range logw {
		w := math.Exp(lw - lse)
		sumSq += w * w
	}
	if sumSq == 0 {
		return 0
	}
	return 1.0 / (sumSq * float64(len(lkh)))
}

// chooseIncrement bisects for the largest temperature increment that keeps
// the worst chain's effective sample size at or above the target fraction.
// If even the full remaining step satisfies the target, the schedule jumps
// straight to beta=1.
func chooseIncrement(lkh tensor.Tensor, chains int, replicas int, remaining float64, target float64) float64 {
	minESS := func(dbeta float64) float64 {
		worst := math.Inf(1)
		for c := 0; c < chains; c++ {
			f := essFraction(lkh.Data[c*replicas:(c+1)*replicas], dbeta)
			if f < worst {
				worst = f
			}
		}
		return worst
	}

	if minESS(remaining) >= target {
		return remaining
	}

	lo, hi := 0.0, remaining
	for i := 0; i < 32; i++ {
		mid := 0.5 * (lo + hi)
		if minESS(mid) >= target {
			lo = mid
		} else {
			hi = mid
		}
	}
	return math.Max(lo, remaining*1e-6)
}

// resample replaces each chain's population, in place, by a systematic
// resample under the stage's importance weights.
func resample(parts []tensor.Tensor, lkh tensor.Tensor, dbeta float64, chains int, replicas int, gen *rand.Generator) error {
	for c := 0; c < chains; c++ {
		logw := make([]float64, replicas)
		for r := 0; r < replicas; r++ {
			logw[r] = dbeta * lkh.Data[c*replicas+r]
		}
		lse := floats.LogSumExp(logw)

		// Cumulative weights and evenly spaced positions with one shared
		// random offset.
		cum := 0.0
		u := gen.Float64() / float64(replicas)
		idx := make([]int, replicas)
		j := 0
		for r := 0; r < replicas; r++ {
			cum += math.Exp(logw[r] - lse)
			for j < replicas && u+float64(j)/float64(replicas) <= cum {
				idx[j] = r
				j++
			}
		}
		for ; j < replicas; j++ {
			idx[j] = replicas - 1
		}

		for _, p := range parts {
			if err := gatherReplicas(p, c, replicas, idx); err != nil {
				return err
			}
		}
	}
	return nil
}

// gatherReplicas rewrites chain c's replica axis of one part according to
// the resampling index list.
func gatherReplicas(p tensor.Tensor, c int, replicas int, idx []int) error {
	chain, err := p.Lead(c)
	if err != nil {
		return err
	}
	stride := chain.Size() / replicas
	src := append([]float64{}, chain.Data...)
	for r, from := range idx {
		copy(chain.Data[r*stride:(r+1)*stride], src[from*stride:(from+1)*stride])
	}
	return nil
}

// rejuvenate moves every particle with a few random-walk Metropolis steps
// against the current tempered target, de-duplicating the population after
// resampling. The proposal scale follows the particle spread.
func rejuvenate(parts []tensor.Tensor, priorFlat sampler.LogProbFn, lkhFlat sampler.LogProbFn, beta float64, cfg Config, gen *rand.Generator) error {
	flat := make([]tensor.Tensor, len(parts))
	nFlat := cfg.NumChains * cfg.Replicas
	for i, p := range parts {
		f, err := p.Reshape(append([]int{nFlat}, p.Shape[2:]...)...)
		if err != nil {
			return err
		}
		flat[i] = f
	}

	tempered := func(state []tensor.Tensor) (tensor.Tensor, error) {
		pr, err := priorFlat(state)
		if err != nil {
			return tensor.Tensor{}, err
		}
		lk, err := lkhFlat(state)
		if err != nil {
			return tensor.Tensor{}, err
		}
		out := pr.Clone()
		for i := range out.Data {
			out.Data[i] += beta * lk.Data[i]
		}
		return out, nil
	}

	k, err := kernel.NewRandomWalkMetropolis(tempered, kernel.Options{
		"scale": particleSpread(flat),
	})
	if err != nil {
		return err
	}

	state := flat
	for s := 0; s < cfg.RejuvenationSteps; s++ {
		next, _, err := k.Step(state, gen)
		if err != nil {
			return errors.Wrap(err, "Rejuvenation step failed")
		}
		state = next
	}

	// Write the moved particles back into the (chain, replica) layout.
	for i, p := range parts {
		copy(p.Data, state[i].Data)
	}
	return nil
}

// particleSpread is the pooled standard deviation of the population's
// coordinates, floored so degenerate populations still move.
func particleSpread(parts []tensor.Tensor) float64 {
	var all []float64
	for _, p := range parts {
		all = append(all, p.Data...)
	}
	s := stat.StdDev(all, nil)
	if math.IsNaN(s) || s < 1e-6 {
		return 1e-6
	}
	return s
}
