package worker

import (
	"context"

	"github.com/sandevgo/memtier/internal/config"
	"github.com/sandevgo/memtier/internal/core"
	"github.com/sandevgo/memtier/internal/service/consolidate"
	"github.com/sandevgo/memtier/pkg/log"
)

// Consolidator runs the daily cleanup pass: merge exact duplicates, then
// garbage-collect low-value records. Each step is independent; a failure
// in one is recorded and the pass continues.
type Consolidator struct {
	engine *consolidate.Engine
	cfg    *config.LifecycleConfig
}

func NewConsolidator(engine *consolidate.Engine, cfg *config.LifecycleConfig) *Consolidator {
	return &Consolidator{engine: engine, cfg: cfg}
}

func (c *Consolidator) Name() string {
	return "memory_consolidator"
}

func (c *Consolidator) Process(ctx context.Context) (core.ProcessStats, error) {
	logger := log.FromCtx(ctx)
	stats := core.ProcessStats{Details: map[string]any{}}

	duplicatesFound := 0
	duplicatesMerged := 0
	garbageCollected := 0
	var stepErrors []string

	// Step 1: merge exact duplicates. Near-duplicates are reported only;
	// merging them unattended is too aggressive.
	groups, err := c.engine.FindDuplicates(ctx, consolidate.FindOptions{
		SimilarityThreshold: c.cfg.AutoMergeThreshold,
	})
	if err != nil {
		stepErrors = append(stepErrors, "duplicate detection: "+err.Error())
		logger.Error().Err(err).Msg("duplicate detection failed")
	} else {
		duplicatesFound = len(groups)
		for _, group := range groups {
			if group.Kind != "exact" || group.Count < 2 {
				continue
			}
			result, err := c.engine.Merge(ctx, group.IDs, consolidate.StrategyKeepBest)
			if err != nil {
				stepErrors = append(stepErrors, "merge: "+err.Error())
				logger.Error().Err(err).Str("hash", group.ContentHash).Msg("duplicate merge failed")
				continue
			}
			duplicatesMerged += result.ArchivedCount
		}
	}

	// Step 2: garbage collection, applied for real on the scheduled pass.
	gc, err := c.engine.GarbageCollect(ctx, consolidate.GCOptions{
		MaxAgeDays:    c.cfg.GCMaxAgeDays,
		MinImportance: c.cfg.GCMinImportance,
		Apply:         true,
	})
	if err != nil {
		stepErrors = append(stepErrors, "garbage collection: "+err.Error())
		logger.Error().Err(err).Msg("garbage collection failed")
	} else {
		garbageCollected = gc.Archived
	}

	stats.Processed = duplicatesMerged + garbageCollected
	stats.Errors = len(stepErrors)
	stats.Details["duplicates_found"] = duplicatesFound
	stats.Details["duplicates_merged"] = duplicatesMerged
	stats.Details["garbage_collected"] = garbageCollected
	if len(stepErrors) > 0 {
		stats.Details["errors"] = stepErrors
	}

	return stats, nil
}
