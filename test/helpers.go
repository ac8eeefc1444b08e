package test

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/sandevgo/memtier/internal/core"
	"github.com/sandevgo/memtier/internal/storage/sqlite"
	"github.com/stretchr/testify/require"
)

// Now is the fixed clock test fixtures are built against.
var Now = time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)

// Clock returns Now; inject it wherever a service takes a clock.
func Clock() time.Time {
	return Now
}

// NewRepo opens a migrated throwaway database.
func NewRepo(t *testing.T) *sqlite.MemoryRepo {
	t.Helper()

	ctx := context.Background()
	db, err := sqlite.NewDB(ctx, filepath.Join(t.TempDir(), "memtier.db"))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	return sqlite.NewMemoryRepo(db)
}

// Record builds a plausible short-tier record; mutate adjusts it.
func Record(id string, mutate ...func(*core.MemoryRecord)) *core.MemoryRecord {
	content := "memory content for " + id
	rec := &core.MemoryRecord{
		ID:          id,
		Tier:        core.TierShort,
		Type:        core.TypeNote,
		Source:      core.SourceManual,
		Content:     content,
		ContentHash: core.HashContent(content),
		Timestamp:   Now.Add(-24 * time.Hour),
		CreatedAt:   Now.Add(-24 * time.Hour),
	}
	for _, m := range mutate {
		m(rec)
	}
	return rec
}

// WithScore sets the importance score.
func WithScore(score float64) func(*core.MemoryRecord) {
	return func(r *core.MemoryRecord) {
		r.ImportanceScore = &score
	}
}

// WithAge moves timestamp and createdAt the given number of days into the
// past relative to Now.
func WithAge(days int) func(*core.MemoryRecord) {
	return func(r *core.MemoryRecord) {
		r.Timestamp = Now.AddDate(0, 0, -days)
		r.CreatedAt = r.Timestamp
	}
}

// Insert stores all records, failing the test on error.
func Insert(t *testing.T, repo *sqlite.MemoryRepo, records ...*core.MemoryRecord) {
	t.Helper()
	for _, rec := range records {
		require.NoError(t, repo.Insert(context.Background(), rec))
	}
}
