package main

import (
	"github.com/joeycumines/go-synclane/config"
	"github.com/spf13/cobra"
)

func newConfigCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Inspect configuration",
	}
	cmd.AddCommand(
		&cobra.Command{
			Use:   "example",
			Short: "Print an annotated example config file",
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, args []string) error {
				return config.DumpExample(cmd.OutOrStdout())
			},
		},
		&cobra.Command{
			Use:   "validate",
			Short: "Load and validate the config, printing the effective result",
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, args []string) error {
				cfg, err := loadConfig(cmd)
				if err != nil {
					return err
				}
				cmd.Printf("mode: %s\nchannels: %v\n", cfg.ChannelMode(), cfg.Channels)
				return nil
			},
		},
	)
	return cmd
}

func loadConfig(cmd *cobra.Command) (*config.Config, error) {
	path, err := cmd.Flags().GetString("config")
	if err != nil {
		return nil, err
	}
	return config.Load(path)
}
