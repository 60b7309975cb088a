// Command vibid identifies stiffness and damping of simulated oscillators
// with Unscented Kalman Filter and Particle Filter.
package main

import (
	"context"
	"os"
	"os/signal"

	"github.com/spf13/cobra"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	cobra.CheckErr(NewCmd().ExecuteContext(ctx))
}

// NewCmd returns vibid root command
func NewCmd() *cobra.Command {
	cobra.EnableCommandSorting = false

	rootCmd := &cobra.Command{
		Use:           "vibid [command] [flags]",
		Short:         "vibid estimates state and parameters of vibrating systems",
		SilenceUsage:  true,
		SilenceErrors: true,
		CompletionOptions: cobra.CompletionOptions{
			DisableDefaultCmd: true,
		},
		Run: func(cmd *cobra.Command, args []string) {
			cmd.Print(cmd.UsageString())
		},
	}
	rootCmd.PersistentFlags().String("log-file", "", "`<path>` of rotated log file; logs go to stderr if empty")
	rootCmd.PersistentFlags().String("log-level", "info", "`<level>` one of debug, info, warn, error")

	runCmd := &cobra.Command{
		Use:   "run [flags]",
		Short: "Simulate scenario and run filters on it",
		Args:  cobra.NoArgs,
		RunE:  doRun,
	}
	runCmd.Flags().StringP("config", "c", "", "`<path>` to scenario YAML; default scenario is used if empty")
	runCmd.Flags().StringP("filter", "f", "both", "`<filter>` to run: ukf, pf or both")
	runCmd.Flags().StringP("out", "o", "", "`<path>` to CSV file estimates are written to")
	runCmd.Flags().StringP("plot", "p", "", "`<path>` to PNG file; one plot per parameter is saved with parameter name appended")
	runCmd.Flags().Int("steps", 0, "override number of scenario steps")
	runCmd.Flags().Bool("metrics", false, "print filter metrics when done")

	configCmd := &cobra.Command{
		Use:   "config [flags]",
		Short: "Print scenario YAML",
		Args:  cobra.NoArgs,
		RunE:  doConfig,
	}
	configCmd.Flags().StringP("config", "c", "", "`<path>` to scenario YAML to validate and print")

	rootCmd.AddCommand(
		runCmd,
		configCmd,
	)
	return rootCmd
}
