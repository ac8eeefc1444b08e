package consolidate_test

import (
	"context"
	"strings"
	"testing"

	"github.com/sandevgo/memtier/internal/core"
	"github.com/sandevgo/memtier/internal/service/consolidate"
	"github.com/sandevgo/memtier/internal/storage/sqlite"
	"github.com/sandevgo/memtier/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newEngine(t *testing.T) (*consolidate.Engine, *sqlite.MemoryRepo) {
	repo := test.NewRepo(t)
	engine := consolidate.NewEngineWith(repo, consolidate.JaroWinkler, test.Clock)
	return engine, repo
}

func dupRecord(id, content string, mutate ...func(*core.MemoryRecord)) *core.MemoryRecord {
	all := append([]func(*core.MemoryRecord){func(r *core.MemoryRecord) {
		r.Content = content
		r.ContentHash = core.HashContent(content)
	}}, mutate...)
	return test.Record(id, all...)
}

func TestFindDuplicates_ExactGroup(t *testing.T) {
	engine, repo := newEngine(t)
	ctx := context.Background()

	test.Insert(t, repo,
		dupRecord("a", "identical payload"),
		dupRecord("b", "identical payload"),
		dupRecord("c", "completely different and much longer text about something else entirely"),
	)

	groups, err := engine.FindDuplicates(ctx, consolidate.FindOptions{})
	require.NoError(t, err)

	require.NotEmpty(t, groups)
	exact := groups[0]
	assert.Equal(t, "exact", exact.Kind)
	assert.Equal(t, 2, exact.Count)
	assert.InDelta(t, 1.0, exact.Similarity, 1e-9)
	assert.ElementsMatch(t, []string{"a", "b"}, exact.IDs)
}

func TestFindDuplicates_NearPair(t *testing.T) {
	engine, repo := newEngine(t)
	ctx := context.Background()

	test.Insert(t, repo,
		dupRecord("n1", "deployed payments service to production cluster at noon"),
		dupRecord("n2", "deployed payments service to production cluster at dusk"),
		dupRecord("other", "grocery list: apples, oranges, coffee beans and oat milk"),
	)

	groups, err := engine.FindDuplicates(ctx, consolidate.FindOptions{SimilarityThreshold: 0.9})
	require.NoError(t, err)

	require.Len(t, groups, 1)
	near := groups[0]
	assert.Equal(t, "near", near.Kind)
	assert.ElementsMatch(t, []string{"n1", "n2"}, near.IDs)
	assert.GreaterOrEqual(t, near.Similarity, 0.9)
}

func TestFindDuplicates_LengthRatioPreFilter(t *testing.T) {
	engine, repo := newEngine(t)
	ctx := context.Background()

	short := "deploy"
	long := strings.Repeat("deploy ", 40)

	test.Insert(t, repo, dupRecord("short", short), dupRecord("long", long))

	groups, err := engine.FindDuplicates(ctx, consolidate.FindOptions{SimilarityThreshold: 0.1})
	require.NoError(t, err)
	assert.Empty(t, groups, "pairs outside the [0.5,2] length ratio are never compared")
}

func TestMerge_RequiresTwoRecords(t *testing.T) {
	engine, _ := newEngine(t)

	_, err := engine.Merge(context.Background(), []string{"only"}, consolidate.StrategyKeepBest)
	assert.ErrorContains(t, err, "at least 2")
}

func TestMerge_UnknownStrategy(t *testing.T) {
	engine, repo := newEngine(t)
	test.Insert(t, repo, test.Record("a"), test.Record("b"))

	_, err := engine.Merge(context.Background(), []string{"a", "b"}, "summarize")
	assert.ErrorContains(t, err, "unknown merge strategy")
}

func TestMergeKeepBest_Conservation(t *testing.T) {
	engine, repo := newEngine(t)
	ctx := context.Background()

	test.Insert(t, repo,
		test.Record("weak", test.WithScore(0.1)),
		test.Record("strong", test.WithScore(0.9), func(r *core.MemoryRecord) { r.AccessCount = 10 }),
		test.Record("middling", test.WithScore(0.5)),
		test.Record("bystander", test.WithScore(0.05)),
	)

	result, err := engine.Merge(ctx, []string{"weak", "strong", "middling"}, consolidate.StrategyKeepBest)
	require.NoError(t, err)

	assert.Equal(t, "strong", result.KeptID)
	assert.ElementsMatch(t, []string{"weak", "middling"}, result.ArchivedIDs)
	assert.Equal(t, 2, result.ArchivedCount)

	// exactly one survivor among the inputs, bystanders untouched
	strong, _ := repo.Get(ctx, "strong")
	assert.False(t, strong.Archived)
	weak, _ := repo.Get(ctx, "weak")
	assert.True(t, weak.Archived)
	bystander, _ := repo.Get(ctx, "bystander")
	assert.False(t, bystander.Archived)
}

func TestMergeKeepBest_TieBreaksOnInputOrder(t *testing.T) {
	engine, repo := newEngine(t)
	ctx := context.Background()

	// identical composite scores: same importance, access, content length
	test.Insert(t, repo,
		dupRecord("first", "same length!", test.WithScore(0.5)),
		dupRecord("second", "same length?", test.WithScore(0.5)),
	)

	result, err := engine.Merge(ctx, []string{"second", "first"}, consolidate.StrategyKeepBest)
	require.NoError(t, err)
	assert.Equal(t, "second", result.KeptID, "first in caller order wins ties")
}

func TestMergeCombine(t *testing.T) {
	engine, repo := newEngine(t)
	ctx := context.Background()

	test.Insert(t, repo,
		dupRecord("c1", "alpha content", test.WithScore(0.3), func(r *core.MemoryRecord) {
			r.Project = "atlas"
			r.Tags = []string{"x"}
			r.Entities = []string{"api"}
		}),
		dupRecord("c2", "beta content", test.WithScore(0.8), func(r *core.MemoryRecord) {
			r.Project = "atlas"
			r.Tags = []string{"y"}
			r.Entities = []string{"db"}
		}),
		dupRecord("c3", "gamma content", test.WithScore(0.5), func(r *core.MemoryRecord) {
			r.Project = "zephyr"
		}),
	)

	result, err := engine.Merge(ctx, []string{"c1", "c2", "c3"}, consolidate.StrategyCombine)
	require.NoError(t, err)

	assert.Equal(t, 3, result.ArchivedCount)
	require.NotEmpty(t, result.NewID)

	merged, err := repo.Get(ctx, result.NewID)
	require.NoError(t, err)

	assert.Equal(t, core.TierWorking, merged.Tier)
	assert.Equal(t, core.TypeNote, merged.Type)
	assert.Equal(t, core.SourceConsolidation, merged.Source)
	assert.Equal(t, "atlas", merged.Project, "most frequent project wins")
	assert.Contains(t, merged.Content, "alpha content")
	assert.Contains(t, merged.Content, "beta content")
	assert.Contains(t, merged.Content, "gamma content")
	assert.ElementsMatch(t, []string{"x", "y"}, merged.Tags)
	assert.ElementsMatch(t, []string{"api", "db"}, merged.Entities)
	require.NotNil(t, merged.ImportanceScore)
	assert.InDelta(t, 0.8, *merged.ImportanceScore, 1e-9, "max importance of inputs")
	assert.Equal(t, core.HashContent(merged.Content), merged.ContentHash)

	for _, id := range []string{"c1", "c2", "c3"} {
		rec, _ := repo.Get(ctx, id)
		assert.True(t, rec.Archived, "%s should be archived", id)
	}
}

func TestCreateAbstraction(t *testing.T) {
	engine, repo := newEngine(t)
	ctx := context.Background()

	test.Insert(t, repo,
		test.Record("s1", test.WithScore(0.4), func(r *core.MemoryRecord) {
			r.Project = "atlas"
			r.Entities = []string{"redis"}
		}),
		test.Record("s2", test.WithScore(0.6), func(r *core.MemoryRecord) {
			r.Type = core.TypeCode
			r.Entities = []string{"postgres"}
		}),
	)

	result, err := engine.CreateAbstraction(ctx, []string{"s1", "s2"}, "Cache strategy", "")
	require.NoError(t, err)

	assert.Equal(t, 2, result.SourceCount)
	assert.Contains(t, result.Summary, "2 memories")
	assert.InDelta(t, 0.6, result.ImportanceScore, 1e-9, "avg 0.5 plus 0.1 boost")

	abstraction, err := repo.Get(ctx, result.AbstractionID)
	require.NoError(t, err)
	assert.Equal(t, core.TierLong, abstraction.Tier)
	assert.Equal(t, core.TypeInsight, abstraction.Type)
	assert.Contains(t, abstraction.Content, "Cache strategy")
	assert.ElementsMatch(t, []string{"postgres", "redis"}, abstraction.Entities)

	// sources stay active, unlike a merge
	for _, id := range []string{"s1", "s2"} {
		rec, _ := repo.Get(ctx, id)
		assert.False(t, rec.Archived)
	}
}

func TestCreateAbstraction_NoSources(t *testing.T) {
	engine, _ := newEngine(t)

	_, err := engine.CreateAbstraction(context.Background(), nil, "t", "")
	assert.ErrorContains(t, err, "no memory ids")
}

func TestGarbageCollect_DryRunIsIdempotent(t *testing.T) {
	engine, repo := newEngine(t)
	ctx := context.Background()

	test.Insert(t, repo,
		test.Record("junk1", test.WithAge(120), test.WithScore(0.05)),
		test.Record("junk2", test.WithAge(150), test.WithScore(0.1)),
		test.Record("keeper", test.WithAge(150), test.WithScore(0.9)),
	)

	first, err := engine.GarbageCollect(ctx, consolidate.GCOptions{})
	require.NoError(t, err)
	assert.True(t, first.DryRun)
	assert.Equal(t, 2, first.CandidatesFound)
	assert.Equal(t, 0, first.Archived)

	second, err := engine.GarbageCollect(ctx, consolidate.GCOptions{})
	require.NoError(t, err)
	assert.Equal(t, first.CandidatesFound, second.CandidatesFound)

	sampleIDs := func(r *consolidate.GCResult) []string {
		ids := make([]string, len(r.Samples))
		for i, s := range r.Samples {
			ids[i] = s.ID
		}
		return ids
	}
	assert.Equal(t, sampleIDs(first), sampleIDs(second))

	// nothing was archived
	for _, id := range []string{"junk1", "junk2", "keeper"} {
		rec, _ := repo.Get(ctx, id)
		assert.False(t, rec.Archived)
	}
}

func TestGarbageCollect_Apply(t *testing.T) {
	engine, repo := newEngine(t)
	ctx := context.Background()

	test.Insert(t, repo,
		test.Record("junk", test.WithAge(120), test.WithScore(0.05)),
		test.Record("keeper", test.WithAge(120), test.WithScore(0.9)),
	)

	result, err := engine.GarbageCollect(ctx, consolidate.GCOptions{Apply: true})
	require.NoError(t, err)
	assert.False(t, result.DryRun)
	assert.Equal(t, 1, result.Archived)

	junk, _ := repo.Get(ctx, "junk")
	assert.True(t, junk.Archived)
	keeper, _ := repo.Get(ctx, "keeper")
	assert.False(t, keeper.Archived)
}
