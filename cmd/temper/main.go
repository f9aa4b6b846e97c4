// Command temper runs the annealed importance sampler on a built-in model
// from a YAML configuration and prints posterior summaries.
package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "temper",
	Short: "Posterior sampling by annealed importance sampling with learned transports",
	Long: `temper draws posterior samples by annealing from the prior to the posterior,
refitting a learned density model as the proposal at every temperature stage.`,
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	if err := rootCmd.ExecuteContext(ctx); err != nil {
		os.Exit(1)
	}
}
