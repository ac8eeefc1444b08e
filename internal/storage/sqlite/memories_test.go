package sqlite_test

import (
	"context"
	"testing"
	"time"

	"github.com/sandevgo/memtier/internal/core"
	"github.com/sandevgo/memtier/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryRepo_InsertGetRoundtrip(t *testing.T) {
	repo := test.NewRepo(t)
	ctx := context.Background()

	rec := test.Record("r1", func(r *core.MemoryRecord) {
		r.Project = "memtier"
		r.FilePath = "internal/core/record.go"
		r.Language = "go"
		r.Tags = []string{"ops", "db"}
		r.Entities = []string{"sqlite"}
		r.AccessCount = 4
		r.LastAccessed = test.Now.Add(-time.Hour)
		r.PromotedFrom = "r0"
	}, test.WithScore(0.42))

	test.Insert(t, repo, rec)

	got, err := repo.Get(ctx, "r1")
	require.NoError(t, err)

	assert.Equal(t, rec.ID, got.ID)
	assert.Equal(t, core.TierShort, got.Tier)
	assert.Equal(t, rec.Content, got.Content)
	assert.Equal(t, rec.ContentHash, got.ContentHash)
	assert.Equal(t, rec.Project, got.Project)
	assert.Equal(t, rec.FilePath, got.FilePath)
	assert.Equal(t, rec.Language, got.Language)
	assert.Equal(t, rec.Tags, got.Tags)
	assert.Equal(t, rec.Entities, got.Entities)
	assert.Equal(t, rec.AccessCount, got.AccessCount)
	assert.Equal(t, rec.PromotedFrom, got.PromotedFrom)
	assert.False(t, got.Archived)
	require.NotNil(t, got.ImportanceScore)
	assert.InDelta(t, 0.42, *got.ImportanceScore, 1e-9)
	assert.True(t, got.Timestamp.Equal(rec.Timestamp), "timestamp should survive the roundtrip")
	assert.True(t, got.LastAccessed.Equal(rec.LastAccessed))
}

func TestMemoryRepo_GetMissing(t *testing.T) {
	repo := test.NewRepo(t)

	_, err := repo.Get(context.Background(), "nope")
	assert.ErrorContains(t, err, "not found")
}

func TestMemoryRepo_ListUnscored(t *testing.T) {
	repo := test.NewRepo(t)
	ctx := context.Background()

	test.Insert(t, repo,
		test.Record("scored", test.WithScore(0.5)),
		test.Record("old-unscored", test.WithAge(10)),
		test.Record("new-unscored", test.WithAge(1)),
		test.Record("archived-unscored", func(r *core.MemoryRecord) { r.Archived = true }),
	)

	got, err := repo.ListUnscored(ctx, 10)
	require.NoError(t, err)

	require.Len(t, got, 2)
	// newest first
	assert.Equal(t, "new-unscored", got[0].ID)
	assert.Equal(t, "old-unscored", got[1].ID)

	limited, err := repo.ListUnscored(ctx, 1)
	require.NoError(t, err)
	require.Len(t, limited, 1)
}

func TestMemoryRepo_SetImportanceScores(t *testing.T) {
	repo := test.NewRepo(t)
	ctx := context.Background()

	test.Insert(t, repo, test.Record("a"), test.Record("b"))

	err := repo.SetImportanceScores(ctx, map[string]float64{"a": 0.9, "b": 0.1})
	require.NoError(t, err)

	a, err := repo.Get(ctx, "a")
	require.NoError(t, err)
	require.NotNil(t, a.ImportanceScore)
	assert.InDelta(t, 0.9, *a.ImportanceScore, 1e-9)
}

func TestMemoryRepo_ApplyTierChanges(t *testing.T) {
	repo := test.NewRepo(t)
	ctx := context.Background()

	test.Insert(t, repo,
		test.Record("w"),
		test.Record("l", func(r *core.MemoryRecord) { r.Tier = core.TierWorking }),
		test.Record("x"),
		test.Record("untouched"),
	)

	err := repo.ApplyTierChanges(ctx, []string{"w"}, []string{"l"}, []string{"x"})
	require.NoError(t, err)

	w, _ := repo.Get(ctx, "w")
	assert.Equal(t, core.TierWorking, w.Tier)

	l, _ := repo.Get(ctx, "l")
	assert.Equal(t, core.TierLong, l.Tier)

	x, _ := repo.Get(ctx, "x")
	assert.True(t, x.Archived)

	u, _ := repo.Get(ctx, "untouched")
	assert.Equal(t, core.TierShort, u.Tier)
	assert.False(t, u.Archived)
}

func TestMemoryRepo_ExactDuplicateGroups(t *testing.T) {
	repo := test.NewRepo(t)
	ctx := context.Background()

	dup := func(id string) *core.MemoryRecord {
		return test.Record(id, func(r *core.MemoryRecord) {
			r.Content = "same content"
			r.ContentHash = core.HashContent("same content")
		})
	}

	test.Insert(t, repo, dup("d1"), dup("d2"), test.Record("solo"))

	groups, err := repo.ExactDuplicateGroups(ctx, "", 20)
	require.NoError(t, err)

	require.Len(t, groups, 1)
	assert.Equal(t, "exact", groups[0].Kind)
	assert.Equal(t, 2, groups[0].Count)
	assert.InDelta(t, 1.0, groups[0].Similarity, 1e-9)
	assert.ElementsMatch(t, []string{"d1", "d2"}, groups[0].IDs)

	// archived records don't count toward duplicate groups
	require.NoError(t, repo.Archive(ctx, []string{"d2"}))
	groups, err = repo.ExactDuplicateGroups(ctx, "", 20)
	require.NoError(t, err)
	assert.Empty(t, groups)
}

func TestMemoryRepo_ArchiveAndInsert_Atomic(t *testing.T) {
	repo := test.NewRepo(t)
	ctx := context.Background()

	test.Insert(t, repo, test.Record("orig"))

	// duplicate primary key forces the insert to fail; the archival must
	// roll back with it
	err := repo.ArchiveAndInsert(ctx, []string{"orig"}, test.Record("orig"))
	require.Error(t, err)

	got, err := repo.Get(ctx, "orig")
	require.NoError(t, err)
	assert.False(t, got.Archived, "failed insert must roll back the archival")

	// and the happy path commits both
	err = repo.ArchiveAndInsert(ctx, []string{"orig"}, test.Record("merged"))
	require.NoError(t, err)

	orig, _ := repo.Get(ctx, "orig")
	assert.True(t, orig.Archived)
	_, err = repo.Get(ctx, "merged")
	assert.NoError(t, err)
}

func TestMemoryRepo_GCCandidates_Ordering(t *testing.T) {
	repo := test.NewRepo(t)
	ctx := context.Background()

	test.Insert(t, repo,
		test.Record("low-old", test.WithAge(200), test.WithScore(0.05)),
		test.Record("low-new", test.WithAge(100), test.WithScore(0.05)),
		test.Record("mid", test.WithAge(150), test.WithScore(0.15)),
		test.Record("important", test.WithAge(300), test.WithScore(0.9)),
		test.Record("busy", test.WithAge(300), test.WithScore(0.05), func(r *core.MemoryRecord) {
			r.AccessCount = 10
		}),
	)

	cutoff := test.Now.AddDate(0, 0, -90)
	got, err := repo.GCCandidates(ctx, 0.3, cutoff, 3, 100)
	require.NoError(t, err)

	require.Len(t, got, 3)
	assert.Equal(t, "low-old", got[0].ID, "lowest importance, then oldest first")
	assert.Equal(t, "low-new", got[1].ID)
	assert.Equal(t, "mid", got[2].ID)
}

func TestMemoryRepo_Stats(t *testing.T) {
	repo := test.NewRepo(t)
	ctx := context.Background()

	test.Insert(t, repo,
		test.Record("s1"),
		test.Record("w1", func(r *core.MemoryRecord) { r.Tier = core.TierWorking }),
		test.Record("gone", func(r *core.MemoryRecord) { r.Archived = true }),
	)

	stats, err := repo.Stats(ctx)
	require.NoError(t, err)

	assert.Equal(t, 2, stats.TotalActive)
	assert.Equal(t, 1, stats.TotalArchived)
	assert.Equal(t, 1, stats.TierDistribution[core.TierShort])
	assert.Equal(t, 1, stats.TierDistribution[core.TierWorking])
}

func TestMemoryRepo_PeerContents(t *testing.T) {
	repo := test.NewRepo(t)
	ctx := context.Background()

	test.Insert(t, repo,
		test.Record("n1"),
		test.Record("n2"),
		test.Record("c1", func(r *core.MemoryRecord) { r.Type = core.TypeCode }),
	)

	notes, err := repo.PeerContents(ctx, core.TypeNote, 100)
	require.NoError(t, err)
	assert.Len(t, notes, 2)

	code, err := repo.PeerContents(ctx, core.TypeCode, 100)
	require.NoError(t, err)
	assert.Len(t, code, 1)
}
