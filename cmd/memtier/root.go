package main

import (
	"context"
	"os"

	"github.com/sandevgo/memtier/internal/config"
	"github.com/sandevgo/memtier/pkg/log"
	"github.com/spf13/cobra"
)

var (
	debug bool
)

var rootCmd = &cobra.Command{
	Use:   "memtier",
	Short: "memtier — tiered memory lifecycle engine",
	Long: `memtier retains, scores and evolves agent memory records,
migrating them through short-term, working and long-term tiers
under unattended background workers.`,
}

func Execute() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func init() {
	// Global flags available to all subcommands
	rootCmd.PersistentFlags().BoolVarP(&debug, "debug", "d", config.IsDebug(), "enable debug logging")
}

func setupLogger(ctx context.Context) (context.Context, func()) {
	isDebug := debug || config.IsDebug()
	return log.NewContextWithLogger(ctx, isDebug)
}
