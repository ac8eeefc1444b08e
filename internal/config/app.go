package config

import (
	"context"
	"path/filepath"

	"github.com/caarlos0/env/v11"
	"github.com/sandevgo/memtier/pkg/log"
)

type AppConfig struct {
	RuntimePath string `env:"MEMTIER_RUNTIME_PATH" envDefault:".memtier"`
}

func NewAppConfig(ctx context.Context) *AppConfig {
	c := &AppConfig{}
	if err := env.Parse(c); err != nil {
		log.FromCtx(ctx).Fatal().Err(err).Msg("failed to parse app config")
	}
	return c
}

func (c AppConfig) GetRuntimePath() string {
	return c.RuntimePath
}

func (c AppConfig) GetDatabasePath() string {
	return filepath.Join(c.RuntimePath, "memtier.db")
}

func (c AppConfig) GetEnvPath() string {
	return filepath.Join(c.RuntimePath, ".env")
}
