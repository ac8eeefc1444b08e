package main

import (
	"os"
	"os/signal"

	"github.com/sandevgo/memtier/pkg/log"
	"github.com/sandevgo/memtier/pkg/srv"
	"github.com/spf13/cobra"
)

var startCmd = &cobra.Command{
	Use:   "start",
	Short: "Start the background workers",
	Long:  `Opens the record store and runs the scorer, promoter and consolidator on their schedules until interrupted.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt)
		defer stop()

		// logger setup
		var flushLog func()
		ctx, flushLog = setupLogger(ctx)
		defer flushLog()

		logger := log.FromCtx(ctx)
		logger.Info().Msg("starting memtier")

		services, _ := NewServices(ctx)

		srv.StartServices(ctx, services)

		// Wait for shutdown signal
		srv.ShutdownServices(ctx, services)
		logger.Info().Msg("memtier has been shut down gracefully")

		return nil
	},
}

func init() {
	rootCmd.AddCommand(startCmd)
}
