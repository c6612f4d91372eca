package cmd

import (
	"time"

	"github.com/spf13/cobra"

	"github.com/probkit/temper/smc"
)

var smcCmd = &cobra.Command{
	Use:   "smc",
	Short: "Draw posterior samples with sequential Monte Carlo",
	RunE: func(cmd *cobra.Command, args []string) error {
		params.Loggers()
		return RunSMC(params)
	},
}

func init() {
	smcCmd.Flags().IntVarP(&params.replicas, "replicas", "p", 1000, "Population size per chain")
}

// RunSMC drives one SMC run from the command line params.
func RunSMC(sp *startupParams) error {
	mod, err := demoModel(sp.modelName)
	if err != nil {
		return err
	}

	sp.out.Printf("Running SMC on %s\n", sp.modelName)
	sp.tra.Printf("Chains: %d, Replicas: %d, Seed: %d\n", sp.numChains, sp.replicas, sp.randomSeed)

	cfg := smc.DefaultConfig()
	cfg.Replicas = sp.replicas
	cfg.NumChains = sp.numChains
	cfg.Seed = sp.randomSeed
	cfg.Fused = sp.fused
	if !sp.fused {
		cfg.Progress = func(stage int, beta float64) {
			sp.tra.Printf("stage %2d beta %6.4f\n", stage, beta)
		}
	}

	startTime := time.Now()
	tr, err := smc.Sample(mod, cfg)
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

	if stages, ok := tr.SampleStats["n_stage"]; ok {
		sp.out.Printf("Annealing stages: %.0f\n", stages.Data[0])
	}

	return nil
}
