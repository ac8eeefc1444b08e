package lifecycle

import (
	"context"
	"fmt"
	"time"

	"github.com/sandevgo/memtier/internal/config"
	"github.com/sandevgo/memtier/internal/core"
	"github.com/sandevgo/memtier/pkg/log"
)

// archiveScoreCeiling is the importance below which a silent short-term
// record qualifies for archival.
const archiveScoreCeiling = 0.3

// Store is the record-store surface the state machine needs. The three
// candidate queries are tier-scoped and disjoint: a record can match at
// most one transition per cycle.
type Store interface {
	ListShortPromotable(ctx context.Context, cutoff time.Time, minScore float64, minAccess int) ([]core.MemoryRecord, error)
	ListWorkingExpired(ctx context.Context, cutoff time.Time, maxAccess int) ([]core.MemoryRecord, error)
	ListShortArchivable(ctx context.Context, cutoff time.Time, maxScore float64) ([]core.MemoryRecord, error)
	ApplyTierChanges(ctx context.Context, toWorking, toLong, toArchive []string) error
}

// CycleResult reports one promotion cycle.
type CycleResult struct {
	PromotedToWorking int
	PromotedToLong    int
	Archived          int
}

func (r CycleResult) Total() int {
	return r.PromotedToWorking + r.PromotedToLong + r.Archived
}

// Machine evaluates tier transitions. Tiers only move forward; archival is
// terminal and applied only to short-term noise here (garbage collection
// handles the rest).
type Machine struct {
	store Store
	cfg   *config.LifecycleConfig
	now   func() time.Time
}

func NewMachine(store Store, cfg *config.LifecycleConfig) *Machine {
	return &Machine{store: store, cfg: cfg, now: time.Now}
}

func NewMachineWithClock(store Store, cfg *config.LifecycleConfig, now func() time.Time) *Machine {
	return &Machine{store: store, cfg: cfg, now: now}
}

// Cycle runs one evaluation pass. All selected transitions commit in a
// single transaction; a failure rolls back the whole cycle and the next
// scheduled run retries it.
func (m *Machine) Cycle(ctx context.Context) (CycleResult, error) {
	logger := log.FromCtx(ctx)
	now := m.now()

	var result CycleResult

	// short → working: old enough and promoted by merit (importance) or
	// engagement (access count).
	shortCutoff := now.AddDate(0, 0, -m.cfg.ShortTermDays)
	promotable, err := m.store.ListShortPromotable(ctx, shortCutoff,
		m.cfg.ImportanceScoreThreshold, m.cfg.MinAccessCountForPromotion)
	if err != nil {
		return result, fmt.Errorf("failed to list short-term candidates: %w", err)
	}

	// working → long: aged out with low engagement. Unused content moves
	// toward eventual compression; heavily used content stays working.
	workingCutoff := now.AddDate(0, 0, -m.cfg.WorkingTermDays)
	expired, err := m.store.ListWorkingExpired(ctx, workingCutoff,
		m.cfg.MinAccessCountForPromotion)
	if err != nil {
		return result, fmt.Errorf("failed to list working-term candidates: %w", err)
	}

	// short → archived: never accessed, scored low, well past the
	// short-term window. Silent noise.
	archiveCutoff := now.AddDate(0, 0, -3*m.cfg.ShortTermDays)
	archivable, err := m.store.ListShortArchivable(ctx, archiveCutoff, archiveScoreCeiling)
	if err != nil {
		return result, fmt.Errorf("failed to list archive candidates: %w", err)
	}

	toWorking := recordIDs(promotable)
	toLong := recordIDs(expired)
	toArchive := recordIDs(archivable)

	if err := m.store.ApplyTierChanges(ctx, toWorking, toLong, toArchive); err != nil {
		return result, fmt.Errorf("failed to apply tier changes: %w", err)
	}

	result.PromotedToWorking = len(toWorking)
	result.PromotedToLong = len(toLong)
	result.Archived = len(toArchive)

	if result.Total() > 0 {
		logger.Info().
			Int("to_working", result.PromotedToWorking).
			Int("to_long", result.PromotedToLong).
			Int("archived", result.Archived).
			Msg("promotion cycle applied")
	}

	return result, nil
}

func recordIDs(records []core.MemoryRecord) []string {
	if len(records) == 0 {
		return nil
	}
	ids := make([]string, len(records))
	for i, rec := range records {
		ids[i] = rec.ID
	}
	return ids
}
