// Package cmd is the command line interface for the temper samplers.
package cmd

import (
	"fmt"
	"io/ioutil"
	"log"
	"os"

	"github.com/spf13/cobra"
)

// startupParams carries everything parsed from the command line plus the
// loggers the commands write through.
type startupParams struct {
	verbose     bool
	modelName   string
	samplerName string
	randomSeed  int64

	numSamples int
	numChains  int
	burnIn     int
	replicas   int

	fused       bool
	monitorAddr string

	out *log.Logger
	tra *log.Logger
}

// Loggers sets up output based on the verbose flag: the trace logger is
// silenced unless verbose is on.
func (sp *startupParams) Loggers() {
	sp.out = log.New(os.Stdout, "", 0)
	if sp.verbose {
		sp.tra = log.New(os.Stdout, "", 0)
	} else {
		sp.tra = log.New(ioutil.Discard, "", 0)
	}
}

var params = &startupParams{}

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "temper",
	Short: "MCMC and SMC posterior sampling",
	Long: `temper draws posterior samples from probabilistic models.
Among other features:

  - HMC, NUTS, and random-walk Metropolis kernels with step-size adaptation
  - A compound stepper mixing kernels across discrete and continuous variables
  - A sequential Monte Carlo sampler with adaptive tempering
`,
	Run: func(cmd *cobra.Command, args []string) {
		cmd.Help()
	},
}

// Execute adds all child commands to the root command and sets flags appropriately.
// This is called by main.main(). It only needs to happen once to the rootCmd.
func Execute() {
	rootCmd.PersistentFlags().BoolVarP(&params.verbose, "verbose", "v", false, "Verbose logging (default is much more parsimonious)")
	rootCmd.PersistentFlags().StringVarP(&params.modelName, "model", "m", "", fmt.Sprintf("Name of the built-in demo model to sample %v", DemoModelNames()))
	rootCmd.PersistentFlags().Int64VarP(&params.randomSeed, "seed", "r", 1, "Random seed to use")
	rootCmd.PersistentFlags().IntVarP(&params.numChains, "chains", "c", 10, "Number of independent chains")
	rootCmd.PersistentFlags().BoolVar(&params.fused, "fused", false, "Run the whole chain loop as one unit without progress reporting")
	rootCmd.PersistentFlags().StringVar(&params.monitorAddr, "monitor", "", "Address for the HTTP progress monitor (e.g. :8000)")

	rootCmd.MarkPersistentFlagRequired("model")

	rootCmd.AddCommand(sampleCmd)
	rootCmd.AddCommand(smcCmd)

	if err := rootCmd.Execute(); err != nil {
		fmt.Println(err)
		os.Exit(1)
	}
}
