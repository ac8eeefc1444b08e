package worker

import (
	"context"
	"fmt"

	"github.com/sandevgo/memtier/internal/core"
	"github.com/sandevgo/memtier/internal/service/scoring"
	"github.com/sandevgo/memtier/pkg/log"
)

// ScorerStore is the record-store surface the scorer needs.
type ScorerStore interface {
	ListUnscored(ctx context.Context, limit int) ([]core.MemoryRecord, error)
	SetImportanceScores(ctx context.Context, scores map[string]float64) error
}

// Scorer computes importance scores for records that do not have one yet.
// Already-scored records are left alone; re-scoring on input change is a
// separate operation with no schedule.
type Scorer struct {
	store     ScorerStore
	scoring   *scoring.Service
	batchSize int
}

func NewScorer(store ScorerStore, svc *scoring.Service, batchSize int) *Scorer {
	return &Scorer{store: store, scoring: svc, batchSize: batchSize}
}

func (s *Scorer) Name() string {
	return "importance_scorer"
}

func (s *Scorer) Process(ctx context.Context) (core.ProcessStats, error) {
	logger := log.FromCtx(ctx)
	stats := core.ProcessStats{}

	records, err := s.store.ListUnscored(ctx, s.batchSize)
	if err != nil {
		return stats, fmt.Errorf("failed to list unscored memories: %w", err)
	}
	if len(records) == 0 {
		logger.Debug().Msg("no unscored memories")
		return stats, nil
	}

	scores := make(map[string]float64, len(records))
	var total float64
	for i := range records {
		rec := &records[i]

		// Score never panics by contract, but one malformed record must
		// not sink the batch.
		score, err := s.scoreOne(ctx, rec)
		if err != nil {
			logger.Error().Err(err).Str("id", rec.ID).Msg("failed to score memory")
			stats.Errors++
			continue
		}

		scores[rec.ID] = score
		total += score
		stats.Processed++
	}

	if err := s.store.SetImportanceScores(ctx, scores); err != nil {
		return stats, fmt.Errorf("failed to write scores: %w", err)
	}

	stats.Skipped = len(records) - stats.Processed - stats.Errors
	stats.Details = map[string]any{
		"scored": len(scores),
	}
	if len(scores) > 0 {
		stats.Details["avg_score"] = total / float64(len(scores))
	}

	return stats, nil
}

func (s *Scorer) scoreOne(ctx context.Context, rec *core.MemoryRecord) (score float64, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("scoring panic: %v", r)
		}
	}()
	return s.scoring.Score(ctx, rec), nil
}
