package main

import (
	"encoding/json"
	"fmt"

	"github.com/sandevgo/memtier/internal/service/consolidate"
	"github.com/spf13/cobra"
)

var (
	gcApply         bool
	gcMaxAgeDays    int
	gcMinImportance float64
)

var gcCmd = &cobra.Command{
	Use:   "gc",
	Short: "Garbage-collect low-value memories",
	Long: `Selects aged, low-importance, rarely accessed memories and reports them.
A dry run by default; pass --apply to archive the candidates.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, flushLog := setupLogger(cmd.Context())
		defer flushLog()

		engine, closeDB := openEngine(ctx)
		defer closeDB()

		result, err := engine.GarbageCollect(ctx, consolidate.GCOptions{
			MaxAgeDays:    gcMaxAgeDays,
			MinImportance: gcMinImportance,
			Apply:         gcApply,
		})
		if err != nil {
			return err
		}

		out, err := json.MarshalIndent(result, "", "  ")
		if err != nil {
			return err
		}
		fmt.Println(string(out))
		return nil
	},
}

func init() {
	gcCmd.Flags().BoolVar(&gcApply, "apply", false, "archive candidates instead of reporting them")
	gcCmd.Flags().IntVar(&gcMaxAgeDays, "max-age-days", 90, "minimum age in days")
	gcCmd.Flags().Float64Var(&gcMinImportance, "min-importance", 0.3, "importance below which records qualify")
	rootCmd.AddCommand(gcCmd)
}
