package main

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"
)

var statsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Show store and consolidation statistics",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, flushLog := setupLogger(cmd.Context())
		defer flushLog()

		engine, closeDB := openEngine(ctx)
		defer closeDB()

		stats, err := engine.Stats(ctx)
		if err != nil {
			return err
		}

		out, err := json.MarshalIndent(stats, "", "  ")
		if err != nil {
			return err
		}
		fmt.Println(string(out))
		return nil
	},
}

func init() {
	rootCmd.AddCommand(statsCmd)
}
