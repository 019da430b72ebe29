// Command synclane runs, or simulates, the state sync coordinator.
package main

import (
	"os"

	"github.com/spf13/cobra"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:          "synclane",
		Short:        "Debounced, per-lane state synchronisation",
		SilenceUsage: true,
	}
	root.PersistentFlags().StringP("config", "c", "", "path to a YAML config file (SYNCLANE_* variables override it)")
	root.AddCommand(
		newRunCmd(),
		newSimulateCmd(),
		newConfigCmd(),
	)
	return root
}
