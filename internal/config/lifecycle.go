package config

import (
	"context"

	"github.com/caarlos0/env/v11"
	"github.com/sandevgo/memtier/pkg/log"
)

// LifecycleConfig holds the thresholds driving tier transitions and the
// garbage-collection policy.
type LifecycleConfig struct {
	ShortTermDays   int `env:"MEMTIER_SHORT_TERM_DAYS" envDefault:"7"`
	WorkingTermDays int `env:"MEMTIER_WORKING_TERM_DAYS" envDefault:"30"`

	ImportanceScoreThreshold   float64 `env:"MEMTIER_IMPORTANCE_SCORE_THRESHOLD" envDefault:"0.7"`
	MinAccessCountForPromotion int     `env:"MEMTIER_MIN_ACCESS_FOR_PROMOTION" envDefault:"3"`

	GCMaxAgeDays    int     `env:"MEMTIER_GC_MAX_AGE_DAYS" envDefault:"90"`
	GCMinImportance float64 `env:"MEMTIER_GC_MIN_IMPORTANCE" envDefault:"0.2"`

	SimilarityThreshold float64 `env:"MEMTIER_SIMILARITY_THRESHOLD" envDefault:"0.85"`
	// AutoMergeThreshold gates the consolidator's unattended merges; only
	// exact duplicates are merged automatically regardless.
	AutoMergeThreshold float64 `env:"MEMTIER_AUTO_MERGE_THRESHOLD" envDefault:"0.95"`
}

func NewLifecycleConfig(ctx context.Context) *LifecycleConfig {
	c := &LifecycleConfig{}
	if err := env.Parse(c); err != nil {
		log.FromCtx(ctx).Fatal().Err(err).Msg("failed to parse lifecycle config")
	}
	return c
}

// WorkersConfig holds per-worker batch sizes and cron schedules.
// Expressions are standard 5-field cron; they are validated at scheduler
// startup and an invalid one aborts the process before any job registers.
type WorkersConfig struct {
	ScorerBatchSize int `env:"MEMTIER_SCORER_BATCH_SIZE" envDefault:"50"`

	ScorerSchedule       string `env:"MEMTIER_SCORER_SCHEDULE" envDefault:"*/5 * * * *"`
	PromoterSchedule     string `env:"MEMTIER_PROMOTER_SCHEDULE" envDefault:"0 * * * *"`
	ConsolidatorSchedule string `env:"MEMTIER_CONSOLIDATOR_SCHEDULE" envDefault:"0 2 * * *"`
}

func NewWorkersConfig(ctx context.Context) *WorkersConfig {
	c := &WorkersConfig{}
	if err := env.Parse(c); err != nil {
		log.FromCtx(ctx).Fatal().Err(err).Msg("failed to parse workers config")
	}
	return c
}
