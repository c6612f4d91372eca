package cmd

import (
	"time"

	"github.com/spf13/cobra"

	"github.com/probkit/temper/kernel"
	"github.com/probkit/temper/sampler"
)

var sampleCmd = &cobra.Command{
	Use:   "sample",
	Short: "Draw posterior samples with an MCMC kernel",
	RunE: func(cmd *cobra.Command, args []string) error {
		params.Loggers()
		return RunSample(params)
	},
}

func init() {
	sampleCmd.Flags().StringVarP(&params.samplerName, "sampler", "s", "nuts", "Sampler to use (one of hmc, hmc_simple, nuts, nuts_simple, randomwalkm, compound)")
	sampleCmd.Flags().IntVarP(&params.numSamples, "samples", "n", 1000, "Number of posterior draws per chain")
	sampleCmd.Flags().IntVarP(&params.burnIn, "burnin", "b", 100, "Number of burn-in steps to discard")
}

// RunSample drives one MCMC sampling run from the command line params.
func RunSample(sp *startupParams) error {
	mod, err := demoModel(sp.modelName)
	if err != nil {
		return err
	}

	variant, err := sampler.Lookup(sp.samplerName)
	if err != nil {
		return err
	}

	sp.out.Printf("Sampling %s with %s\n", sp.modelName, variant)
	sp.tra.Printf("Chains: %d, Samples: %d, Burn-in: %d, Seed: %d\n",
		sp.numChains, sp.numSamples, sp.burnIn, sp.randomSeed)

	s, err := sampler.New(variant, mod, kernel.Options{"seed": int(sp.randomSeed)})
	if err != nil {
		return err
	}

	cfg := sampler.DefaultSampleConfig()
	cfg.NumSamples = sp.numSamples
	cfg.NumChains = sp.numChains
	cfg.BurnIn = sp.burnIn
	cfg.Fused = sp.fused

	var mon *monitor
	if sp.monitorAddr != "" && !sp.fused {
		mon = &monitor{}
		if err := mon.Start(sp.monitorAddr); err != nil {
			return err
		}
		defer mon.Stop()

		mon.NumChains.Set(int64(sp.numChains))
		mon.NumSamples.Set(int64(sp.numSamples))
		mon.BurnIn.Set(int64(sp.burnIn))

		start := time.Now()
		cfg.Progress = func(done int, total int) {
			mon.StepsDone.Set(int64(done))
			mon.TotalSteps.Set(int64(total))
			mon.RunTime.Set(time.Since(start).Seconds())
		}
	}

	startTime := time.Now()
	tr, err := s.Sample(cfg)
	if err != nil {
		return err
	}
	sp.out.Printf("Finished in %v\n", time.Since(startTime))

	for _, name := range tr.Names() {
		mean, err := tr.PosteriorMean(name)
		if err != nil {
			return err
		}
		sd, err := tr.PosteriorStdDev(name)
		if err != nil {
			return err
		}
		sp.out.Printf("%-16s mean:%9.4f sd:%9.4f\n", name, mean, sd)
	}

	for name := range tr.SampleStats {
		mean, err := tr.StatMean(name)
		if err != nil {
			return err
		}
		sp.tra.Printf("stat %-16s mean:%9.4f\n", name, mean)
	}

	return nil
}
