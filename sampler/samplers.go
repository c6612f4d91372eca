// Package sampler is the orchestration layer between declarative models
// and the MCMC kernels: it builds pure log-probability closures from a
// model, lifts them over the chain batch axis, binds them to a kernel and
// optional step-size adaptation, runs the chain loop, and assembles the
// structured trace.
package sampler

import (
	"github.com/pkg/errors"

	"github.com/probkit/temper/kernel"
	"github.com/probkit/temper/model"
	"github.com/probkit/temper/rand"
	"github.com/probkit/temper/tensor"
	"github.com/probkit/temper/trace"
)

// Variant enumerates the sampler bindings. Each is a fixed association of
// kernel, optional adaptation wrapper, defaults, and trace schema,
// registered once in a static table rather than discovered at runtime.
type Variant string

// The supported sampler variants.
const (
	HMC          Variant = "hmc"
	HMCSimple    Variant = "hmc_simple"
	NUTS         Variant = "nuts"
	NUTSSimple   Variant = "nuts_simple"
	RandomWalkM  Variant = "randomwalkm"
	CompoundStep Variant = "compound"
)

// chainSchema is the statically declared option set of the chain runner.
var chainSchema = kernel.Schema{"num_steps_between_results", "seed"}

// traceFn maps kernel diagnostics to per-stat, per-chain columns aligned
// with the binding's stat names.
type traceFn func(res kernel.Results) [][]float64

type binding struct {
	kernelMaker       kernel.Maker
	kernelSchema      kernel.Schema
	adaptMaker        kernel.AdaptMaker
	adaptSchema       kernel.Schema
	defaultKernelOpts kernel.Options
	defaultAdaptOpts  kernel.Options
	grad              bool
	statNames         []string
	trace             traceFn
}

func hmcTrace(res kernel.Results) [][]float64 {
	return [][]float64{res.AcceptProb}
}

func nutsTrace(res kernel.Results) [][]float64 {
	return [][]float64{
		res.TargetLogProb,
		res.LeapfrogsTaken,
		res.Diverging,
		res.Energy,
		res.AcceptProb,
	}
}

func rwmTrace(res kernel.Results) [][]float64 {
	return [][]float64{res.AcceptProb}
}

// bindings is the static variant table.
var bindings = map[Variant]binding{
	HMC: {
		kernelMaker:       kernel.NewHamiltonianMonteCarlo,
		kernelSchema:      kernel.HMCSchema,
		adaptMaker:        kernel.NewDualAveragingStepSize,
		adaptSchema:       kernel.DualAveragingSchema,
		defaultKernelOpts: kernel.Options{"step_size": 0.1, "num_leapfrog_steps": 3},
		defaultAdaptOpts:  kernel.Options{},
		grad:              true,
		statNames:         []string{"mean_tree_accept"},
		trace:             hmcTrace,
	},
	HMCSimple: {
		kernelMaker:       kernel.NewHamiltonianMonteCarlo,
		kernelSchema:      kernel.HMCSchema,
		adaptMaker:        kernel.NewSimpleStepSize,
		adaptSchema:       kernel.SimpleAdaptationSchema,
		defaultKernelOpts: kernel.Options{"step_size": 0.1, "num_leapfrog_steps": 3},
		defaultAdaptOpts:  kernel.Options{},
		grad:              true,
		statNames:         []string{"mean_tree_accept"},
		trace:             hmcTrace,
	},
	NUTS: {
		kernelMaker:       kernel.NewNoUTurn,
		kernelSchema:      kernel.NUTSSchema,
		adaptMaker:        kernel.NewDualAveragingStepSize,
		adaptSchema:       kernel.DualAveragingSchema,
		defaultKernelOpts: kernel.Options{"step_size": 0.1},
		defaultAdaptOpts:  kernel.Options{"num_adaptation_steps": 100},
		grad:              true,
		statNames:         []string{"lp", "tree_size", "diverging", "energy", "mean_tree_accept"},
		trace:             nutsTrace,
	},
	NUTSSimple: {
		kernelMaker:       kernel.NewNoUTurn,
		kernelSchema:      kernel.NUTSSchema,
		adaptMaker:        kernel.NewSimpleStepSize,
		adaptSchema:       kernel.SimpleAdaptationSchema,
		defaultKernelOpts: kernel.Options{"step_size": 0.1},
		defaultAdaptOpts:  kernel.Options{"num_adaptation_steps": 100},
		grad:              true,
		statNames:         []string{"lp", "tree_size", "diverging", "energy", "mean_tree_accept"},
		trace:             nutsTrace,
	},
	RandomWalkM: {
		kernelMaker:       kernel.NewRandomWalkMetropolis,
		kernelSchema:      kernel.RWMSchema,
		defaultKernelOpts: kernel.Options{},
		grad:              false,
		statNames:         []string{"mean_accept"},
		trace:             rwmTrace,
	},
	CompoundStep: {
		kernelSchema:      kernel.CompoundSchema,
		defaultKernelOpts: kernel.Options{},
		grad:              false,
	},
}

// Lookup resolves a variant by its string key.
func Lookup(name string) (Variant, error) {
	v := Variant(name)
	if _, ok := bindings[v]; !ok {
		return "", errors.Errorf("Unknown sampler %s", name)
	}
	return v, nil
}

// VariantNames returns every registered sampler key.
func VariantNames() []string {
	return []string{
		string(HMC), string(HMCSimple),
		string(NUTS), string(NUTSSimple),
		string(RandomWalkM), string(CompoundStep),
	}
}

// A Sampler is a configured (not yet running) chain sampler: a model plus
// validated, partitioned options.
type Sampler struct {
	variant Variant
	model   *model.Model
	b       binding

	kernelOpts kernel.Options
	adaptOpts  kernel.Options
	chainOpts  kernel.Options

	samplerMethods map[string]Variant
}

// New validates the model against the chosen variant and partitions the
// user options across kernel, adaptation, and chain runner by membership
// in their statically declared schemas. A name accepted by more than one
// target is a hard configuration error.
func New(variant Variant, m *model.Model, opts kernel.Options) (*Sampler, error) {
	b, ok := bindings[variant]
	if !ok {
		return nil, errors.Errorf("Unknown sampler %s", variant)
	}
	if m == nil {
		return nil, errors.Errorf("sample only supports temper model values, but no model was passed")
	}

	st, err := model.InitializeState(m, nil, nil)
	if err != nil {
		return nil, err
	}
	if b.grad && len(st.DiscreteKeys()) > 0 {
		return nil, errors.Errorf("Discrete distributions can not be used with a gradient-based sampler")
	}

	s := &Sampler{
		variant:    variant,
		model:      m,
		b:          b,
		kernelOpts: kernel.Options{},
		adaptOpts:  kernel.Options{},
		chainOpts:  kernel.Options{},
	}

	for key, val := range opts {
		inKernel := b.kernelSchema.Contains(key)
		inAdapt := b.adaptMaker != nil && b.adaptSchema.Contains(key)
		inChain := chainSchema.Contains(key)

		matches := 0
		for _, hit := range []bool{inKernel, inAdapt, inChain} {
			if hit {
				matches++
			}
		}
		if matches > 1 {
			return nil, errors.Errorf("Ambiguity in setting option %s for kernel, adaptation, and chain runner", key)
		}
		if matches == 0 {
			return nil, errors.Errorf("Sampler %s does not support option %s", variant, key)
		}

		switch {
		case inKernel:
			s.kernelOpts[key] = val
		case inAdapt:
			s.adaptOpts[key] = val
		default:
			s.chainOpts[key] = val
		}
	}

	if variant == CompoundStep {
		if v, ok := s.kernelOpts["sampler_methods"]; ok {
			methods, ok := v.(map[string]Variant)
			if !ok {
				return nil, errors.Errorf("Option sampler_methods must map variable names to sampler variants, have %T", v)
			}
			s.samplerMethods = methods
			delete(s.kernelOpts, "sampler_methods")
		}
	}

	s.kernelOpts.Merge(b.defaultKernelOpts)
	s.adaptOpts.Merge(b.defaultAdaptOpts)

	return s, nil
}

// NewHMC creates a Hamiltonian Monte Carlo sampler.
func NewHMC(m *model.Model, opts kernel.Options) (*Sampler, error) { return New(HMC, m, opts) }

// NewHMCSimple is HMC with simple windowed step-size adaptation.
func NewHMCSimple(m *model.Model, opts kernel.Options) (*Sampler, error) {
	return New(HMCSimple, m, opts)
}

// NewNUTS creates a No-U-Turn sampler.
func NewNUTS(m *model.Model, opts kernel.Options) (*Sampler, error) { return New(NUTS, m, opts) }

// NewNUTSSimple is NUTS with simple windowed step-size adaptation.
func NewNUTSSimple(m *model.Model, opts kernel.Options) (*Sampler, error) {
	return New(NUTSSimple, m, opts)
}

// NewRandomWalkM creates a random-walk Metropolis sampler.
func NewRandomWalkM(m *model.Model, opts kernel.Options) (*Sampler, error) {
	return New(RandomWalkM, m, opts)
}

// NewCompoundStep creates a mixed-kernel sampler that assigns a sub-kernel
// per variable.
func NewCompoundStep(m *model.Model, opts kernel.Options) (*Sampler, error) {
	return New(CompoundStep, m, opts)
}

// SampleConfig drives one sample invocation.
type SampleConfig struct {
	NumSamples int
	NumChains  int
	BurnIn     int

	// Observed overrides and a full prior state are mutually exclusive.
	Observed map[string]tensor.Tensor
	State    *model.SamplingState

	// UseAutoBatching selects the per-slice mapped batching strategy;
	// otherwise the per-draw function is lifted rank-polymorphically.
	UseAutoBatching bool

	// Fused hands the whole chain loop to the runner as one opaque unit:
	// no progress callbacks fire and no partial results are observable.
	Fused bool

	Progress func(done int, total int)
}

// DefaultSampleConfig mirrors the stock draw/chain/burn-in counts.
func DefaultSampleConfig() SampleConfig {
	return SampleConfig{
		NumSamples:      1000,
		NumChains:       10,
		BurnIn:          100,
		UseAutoBatching: true,
	}
}

func (c *SampleConfig) fillDefaults() {
	if c.NumSamples < 1 {
		c.NumSamples = 1000
	}
	if c.NumChains < 1 {
		c.NumChains = 10
	}
	if c.BurnIn < 0 {
		c.BurnIn = 0
	}
}

// Sample runs the configured sampler: builds and vectorizes the
// log-probability closures, tiles the initial state across chains,
// constructs the (possibly adapted) kernel, and drives the chain loop for
// burn-in plus the requested draws. Configuration errors surface before
// any sampling work; a failure inside the loop aborts the invocation.
func (s *Sampler) Sample(cfg SampleConfig) (*trace.Trace, error) {
	if cfg.State != nil && cfg.Observed != nil {
		return nil, errors.Errorf("Can not use both state and observed arguments")
	}
	cfg.fillDefaults()

	built, err := BuildLogp(s.model, BuildConfig{
		Observed:       cfg.Observed,
		State:          cfg.State,
		CollectReduced: cfg.UseAutoBatching,
	})
	if err != nil {
		return nil, err
	}

	var parallel LogProbFn
	if cfg.UseAutoBatching {
		parallel = AutoBatch(built.Logp)
	} else {
		core := make([]int, len(built.InitValues))
		for i, v := range built.InitValues {
			core[i] = v.NDim()
		}
		parallel = SumTrailingTo(RankPolymorphic(built.Logp, core), 1)
	}
	detCb := AutoBatchMulti(built.Deterministics)

	var k kernel.Kernel
	if s.variant == CompoundStep {
		groups, err := assignCompoundGroups(built.State, s.samplerMethods)
		if err != nil {
			return nil, err
		}
		k, err = kernel.NewCompound(kernel.TargetFn(parallel), groups)
		if err != nil {
			return nil, err
		}
	} else {
		k, err = s.b.kernelMaker(kernel.TargetFn(parallel), s.kernelOpts.Clone())
		if err != nil {
			return nil, err
		}
		if s.b.adaptMaker != nil {
			k, err = s.b.adaptMaker(k, s.adaptOpts.Clone())
			if err != nil {
				return nil, err
			}
		}
	}

	seed, err := s.chainOpts.Int("seed", 1)
	if err != nil {
		return nil, err
	}
	between, err := s.chainOpts.Int("num_steps_between_results", 0)
	if err != nil {
		return nil, err
	}
	gen, err := rand.NewGenerator(int64(seed))
	if err != nil {
		return nil, err
	}
	defer gen.Close()

	init := TileInit(built.InitValues, cfg.NumChains)

	return s.runChains(k, gen, init, built, detCb, cfg, between)
}

// runChains is the fixed-length chain loop plus trace assembly.
func (s *Sampler) runChains(k kernel.Kernel, gen *rand.Generator, init []tensor.Tensor, built *Built, detCb DeterministicsFn, cfg SampleConfig, between int) (*trace.Trace, error) {
	total := cfg.BurnIn + cfg.NumSamples*(1+between)
	done := 0
	progress := func() {
		done++
		if !cfg.Fused && cfg.Progress != nil {
			cfg.Progress(done, total)
		}
	}

	state := init
	var res kernel.Results
	var err error

	advance := func() error {
		state, res, err = k.Step(state, gen)
		if err != nil {
			return errors.Wrap(err, "Chain sampling step failed")
		}
		progress()
		return nil
	}

	// Burn-in prefix is discarded, never recorded
	for i := 0; i < cfg.BurnIn; i++ {
		if err := advance(); err != nil {
			return nil, err
		}
	}

	draws := make([][]tensor.Tensor, 0, cfg.NumSamples)
	statRows := make([][][]float64, 0, cfg.NumSamples)
	detRows := make([][]tensor.Tensor, 0, cfg.NumSamples)

	for d := 0; d < cfg.NumSamples; d++ {
		for j := 0; j <= between; j++ {
			if err := advance(); err != nil {
				return nil, err
			}
		}

		draws = append(draws, kernel.CloneParts(state))
		if s.b.trace != nil {
			cols := s.b.trace(res)
			row := make([][]float64, len(cols))
			for i, col := range cols {
				row[i] = append([]float64{}, col...)
			}
			statRows = append(statRows, row)
		}
		if len(built.DeterministicNames) > 0 {
			dets, err := detCb(state)
			if err != nil {
				return nil, errors.Wrap(err, "Deterministics callback failed")
			}
			detRows = append(detRows, dets)
		}
	}

	posterior := map[string]tensor.Tensor{}
	for vi, key := range built.InitKeys {
		col := make([]tensor.Tensor, len(draws))
		for d := range draws {
			col[d] = draws[d][vi]
		}
		stacked, err := tensor.Stack(col)
		if err != nil {
			return nil, err
		}
		byChain, err := stacked.Transpose01()
		if err != nil {
			return nil, err
		}
		posterior[key] = byChain
	}

	for di, name := range built.DeterministicNames {
		col := make([]tensor.Tensor, len(detRows))
		for d := range detRows {
			col[d] = detRows[d][di]
		}
		stacked, err := tensor.Stack(col)
		if err != nil {
			return nil, err
		}
		byChain, err := stacked.Transpose01()
		if err != nil {
			return nil, err
		}
		posterior[name] = byChain
	}

	var sampleStats map[string]tensor.Tensor
	if s.b.trace != nil {
		sampleStats = map[string]tensor.Tensor{}
		for si, name := range s.b.statNames {
			t := tensor.New(len(statRows), cfg.NumChains)
			for d, row := range statRows {
				copy(t.Data[d*cfg.NumChains:(d+1)*cfg.NumChains], row[si])
			}
			byChain, err := t.Transpose01()
			if err != nil {
				return nil, err
			}
			sampleStats[name] = byChain
		}
	}

	return trace.New(posterior, sampleStats, built.State.ObservedValues), nil
}
