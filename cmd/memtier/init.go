package main

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/sandevgo/memtier/internal/config"
	"github.com/sandevgo/memtier/pkg/env"
	"github.com/spf13/cobra"
)

var initCmd = &cobra.Command{
	Use:   "init",
	Short: "Write a default .env into the runtime directory",
	RunE: func(cmd *cobra.Command, args []string) error {
		runtimePath := config.GetRuntimePath()
		if err := os.MkdirAll(runtimePath, 0755); err != nil {
			return fmt.Errorf("failed to create runtime directory: %w", err)
		}

		envPath := filepath.Join(runtimePath, ".env")
		if _, err := os.Stat(envPath); err == nil {
			return fmt.Errorf("%s already exists", envPath)
		}

		var content string
		for _, cfg := range []any{
			&config.AppConfig{},
			&config.LifecycleConfig{},
			&config.WorkersConfig{},
		} {
			section, err := env.MarshalEnv(cfg)
			if err != nil {
				return err
			}
			content += section
		}

		if err := os.WriteFile(envPath, []byte(content), 0644); err != nil {
			return fmt.Errorf("failed to write .env: %w", err)
		}

		fmt.Printf("wrote %s\n", envPath)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(initCmd)
}
