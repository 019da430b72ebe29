package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/joeycumines/go-synclane/coordinator"
	"github.com/joeycumines/go-synclane/syncstate"
	"github.com/joeycumines/logiface"
	"github.com/spf13/cobra"
)

func newRunCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "run",
		Short: "Run the coordinator until interrupted",
		Long: `Runs every channel worker, and the focus worker, until SIGINT or SIGTERM.
Sync requests are logged, rather than sent anywhere.`,
		Args: cobra.NoArgs,
		RunE: runRun,
	}
}

func runRun(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}

	logger, closer, err := cfg.Logging.NewLogger()
	if err != nil {
		return err
	}
	defer closer.Close()

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	x, err := coordinator.New(ctx, cfg, coordinator.Options{
		Transport: loggingTransport(logger),
		Logger:    logger,
	})
	if err != nil {
		return err
	}

	return x.Run(ctx)
}

func loggingTransport(logger *logiface.Logger[logiface.Event]) syncstate.Transport {
	return syncstate.TransportFunc(func(ctx context.Context, req syncstate.Request) error {
		logger.Info().
			Str(`lane`, string(req.Lane)).
			Int(`attempt`, req.Attempt).
			Any(`changes`, req.Changes).
			Log(`sync request`)
		return nil
	})
}
