package main

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/sandevgo/memtier/pkg/log"
	"github.com/spf13/cobra"
)

var runCmd = &cobra.Command{
	Use:   "run <worker>",
	Short: "Run one worker immediately",
	Long:  `Triggers a single worker outside its schedule and prints the run result as JSON.`,
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, flushLog := setupLogger(cmd.Context())
		defer flushLog()

		services, sched := NewServices(ctx)
		defer shutdownAll(ctx, services)

		name := args[0]
		result, err := sched.RunNow(ctx, name)
		if err != nil {
			return fmt.Errorf("%w (workers: %s)", err, strings.Join(sched.Workers(), ", "))
		}

		out, err := json.MarshalIndent(result, "", "  ")
		if err != nil {
			return err
		}
		fmt.Println(string(out))

		if !result.Success {
			log.FromCtx(ctx).Error().Str("worker", name).Str("error", result.Error).Msg("run failed")
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(runCmd)
}
