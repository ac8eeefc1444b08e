package consolidate

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/sandevgo/memtier/internal/core"
	"github.com/sandevgo/memtier/pkg/log"
)

// Merge strategies.
const (
	StrategyKeepBest = "keep_best"
	StrategyCombine  = "combine"
)

const (
	// nearWindowSize bounds the pairwise comparison to the newest active
	// records so the O(n²) scan stays cheap.
	nearWindowSize = 200
	// comparePrefixLen limits similarity computation to a content prefix.
	comparePrefixLen = 500

	maxGroups    = 20
	maxNearPairs = 20

	gcCandidateLimit = 100
	gcMaxAccessCount = 3
	gcSampleSize     = 5
)

// Store is the record-store surface consolidation needs.
type Store interface {
	ListActiveByIDs(ctx context.Context, ids []string) ([]core.MemoryRecord, error)
	ListRecentActive(ctx context.Context, project string, limit int) ([]core.MemoryRecord, error)
	ExactDuplicateGroups(ctx context.Context, project string, limit int) ([]core.DuplicateGroup, error)
	Insert(ctx context.Context, rec *core.MemoryRecord) error
	Archive(ctx context.Context, ids []string) error
	ArchiveAndInsert(ctx context.Context, archive []string, rec *core.MemoryRecord) error
	GCCandidates(ctx context.Context, minImportance float64, cutoff time.Time, maxAccess, limit int) ([]core.MemoryRecord, error)
	Stats(ctx context.Context) (*core.TierStats, error)
}

// Engine finds duplicate records and merges, abstracts, or garbage-collects
// them. Destructive operations are transactional through the store and
// report errors as result objects; a partial merge is never committed.
type Engine struct {
	store      Store
	similarity func(a, b string) float64
	now        func() time.Time
}

func NewEngine(store Store) *Engine {
	return &Engine{store: store, similarity: JaroWinkler, now: time.Now}
}

// NewEngineWith injects the similarity function and clock, for tests and
// for callers providing their own text-similarity collaborator.
func NewEngineWith(store Store, similarity func(a, b string) float64, now func() time.Time) *Engine {
	return &Engine{store: store, similarity: similarity, now: now}
}

// FindOptions controls duplicate detection.
type FindOptions struct {
	// SimilarityThreshold is the minimum near-duplicate similarity.
	SimilarityThreshold float64
	// Project optionally scopes detection to one project.
	Project string
	// Limit caps the returned groups.
	Limit int
}

// FindDuplicates returns exact-duplicate groups and near-duplicate pairs,
// largest and most similar first.
func (e *Engine) FindDuplicates(ctx context.Context, opts FindOptions) ([]core.DuplicateGroup, error) {
	if opts.SimilarityThreshold <= 0 {
		opts.SimilarityThreshold = 0.85
	}
	if opts.Limit <= 0 {
		opts.Limit = 50
	}

	exact, err := e.store.ExactDuplicateGroups(ctx, opts.Project, maxGroups)
	if err != nil {
		return nil, fmt.Errorf("failed to find exact duplicates: %w", err)
	}

	near, err := e.findNearDuplicates(ctx, opts.Project, opts.SimilarityThreshold)
	if err != nil {
		return nil, fmt.Errorf("failed to find near duplicates: %w", err)
	}

	groups := append(exact, near...)
	sort.SliceStable(groups, func(i, j int) bool {
		if groups[i].Count != groups[j].Count {
			return groups[i].Count > groups[j].Count
		}
		return groups[i].Similarity > groups[j].Similarity
	})

	if len(groups) > opts.Limit {
		groups = groups[:opts.Limit]
	}
	return groups, nil
}

func (e *Engine) findNearDuplicates(ctx context.Context, project string, threshold float64) ([]core.DuplicateGroup, error) {
	records, err := e.store.ListRecentActive(ctx, project, nearWindowSize)
	if err != nil {
		return nil, err
	}

	var pairs []core.DuplicateGroup
	checked := make(map[[2]string]bool)

	for i := 0; i < len(records) && len(pairs) < maxNearPairs; i++ {
		for j := i + 1; j < len(records); j++ {
			a, b := &records[i], &records[j]

			key := pairKey(a.ID, b.ID)
			if checked[key] {
				continue
			}
			checked[key] = true

			// cheap pre-filter before the expensive comparison
			ratio := float64(len(a.Content)) / float64(max(len(b.Content), 1))
			if ratio < 0.5 || ratio > 2 {
				continue
			}

			sim := e.similarity(prefix(a.Content), prefix(b.Content))
			if sim >= threshold {
				pairs = append(pairs, core.DuplicateGroup{
					Kind:       "near",
					IDs:        []string{a.ID, b.ID},
					Count:      2,
					Similarity: sim,
				})
				if len(pairs) >= maxNearPairs {
					break
				}
			}
		}
	}
	return pairs, nil
}

// MergeResult describes a completed merge.
type MergeResult struct {
	Strategy      string   `json:"strategy"`
	KeptID        string   `json:"kept_id,omitempty"`
	NewID         string   `json:"new_id,omitempty"`
	ArchivedIDs   []string `json:"archived_ids"`
	ArchivedCount int      `json:"archived_count"`
}

// Merge consolidates the given records with the chosen strategy.
func (e *Engine) Merge(ctx context.Context, ids []string, strategy string) (*MergeResult, error) {
	if len(ids) < 2 {
		return nil, fmt.Errorf("need at least 2 memories to merge, got %d", len(ids))
	}

	records, err := e.store.ListActiveByIDs(ctx, ids)
	if err != nil {
		return nil, fmt.Errorf("failed to load merge candidates: %w", err)
	}
	if len(records) < 2 {
		return nil, fmt.Errorf("found only %d active memories among merge candidates", len(records))
	}

	// Preserve the caller's id order; ties in keep_best break on first
	// encountered.
	records = sortByInputOrder(records, ids)

	switch strategy {
	case StrategyKeepBest:
		return e.mergeKeepBest(ctx, records)
	case StrategyCombine:
		return e.mergeCombine(ctx, records)
	default:
		return nil, fmt.Errorf("unknown merge strategy: %s", strategy)
	}
}

func (e *Engine) mergeKeepBest(ctx context.Context, records []core.MemoryRecord) (*MergeResult, error) {
	best := 0
	bestScore := -1.0
	for i := range records {
		if s := keepScore(&records[i]); s > bestScore {
			best = i
			bestScore = s
		}
	}

	var archive []string
	for i := range records {
		if i != best {
			archive = append(archive, records[i].ID)
		}
	}

	if err := e.store.Archive(ctx, archive); err != nil {
		return nil, fmt.Errorf("failed to archive merge losers: %w", err)
	}

	log.FromCtx(ctx).Debug().
		Str("kept", records[best].ID).
		Int("archived", len(archive)).
		Msg("merged duplicates, kept best")

	return &MergeResult{
		Strategy:      StrategyKeepBest,
		KeptID:        records[best].ID,
		ArchivedIDs:   archive,
		ArchivedCount: len(archive),
	}, nil
}

// keepScore ranks merge candidates by importance, engagement and content
// volume.
func keepScore(rec *core.MemoryRecord) float64 {
	return rec.Importance(0.5)*0.4 +
		minf(float64(rec.AccessCount)/10, 1)*0.3 +
		minf(float64(len(rec.Content))/10000, 1)*0.3
}

func (e *Engine) mergeCombine(ctx context.Context, records []core.MemoryRecord) (*MergeResult, error) {
	var sb strings.Builder
	sb.WriteString("# Combined Memory\n\n")

	tags := newStringSet()
	entities := newStringSet()
	importance := 0.0
	for i := range records {
		rec := &records[i]
		sb.WriteString("---\n")
		sb.WriteString(rec.Content)
		sb.WriteString("\n")

		tags.addAll(rec.Tags)
		entities.addAll(rec.Entities)
		if s := rec.Importance(0.5); s > importance {
			importance = s
		}
	}

	content := sb.String()
	now := e.now()

	merged := &core.MemoryRecord{
		ID:              uuid.NewString(),
		Tier:            core.TierWorking,
		Type:            core.TypeNote,
		Source:          core.SourceConsolidation,
		Content:         content,
		ContentHash:     core.HashContent(content),
		Timestamp:       now,
		Project:         mostFrequentProject(records),
		Tags:            tags.sorted(),
		Entities:        entities.sorted(),
		ImportanceScore: &importance,
		CreatedAt:       now,
	}

	archive := make([]string, len(records))
	for i := range records {
		archive[i] = records[i].ID
	}

	if err := e.store.ArchiveAndInsert(ctx, archive, merged); err != nil {
		return nil, fmt.Errorf("failed to commit combine merge: %w", err)
	}

	return &MergeResult{
		Strategy:      StrategyCombine,
		NewID:         merged.ID,
		ArchivedIDs:   archive,
		ArchivedCount: len(archive),
	}, nil
}

// AbstractionResult describes a created abstraction record.
type AbstractionResult struct {
	AbstractionID   string   `json:"abstraction_id"`
	Title           string   `json:"title"`
	Summary         string   `json:"summary"`
	SourceCount     int      `json:"source_count"`
	SourceIDs       []string `json:"source_ids"`
	ImportanceScore float64  `json:"importance_score"`
}

// CreateAbstraction synthesizes one long-term insight record summarizing
// the sources. Unlike Merge, the source records stay active.
func (e *Engine) CreateAbstraction(ctx context.Context, ids []string, title, summary string) (*AbstractionResult, error) {
	if len(ids) == 0 {
		return nil, fmt.Errorf("no memory ids provided")
	}

	records, err := e.store.ListActiveByIDs(ctx, ids)
	if err != nil {
		return nil, fmt.Errorf("failed to load abstraction sources: %w", err)
	}
	if len(records) == 0 {
		return nil, fmt.Errorf("no active memories found for abstraction")
	}

	if summary == "" {
		summary = abstractionSummary(records)
	}

	entities := newStringSet()
	total := 0.0
	for i := range records {
		entities.addAll(records[i].Entities)
		total += records[i].Importance(0.5)
	}
	importance := minf(total/float64(len(records))+0.1, 1.0)

	content := fmt.Sprintf("# %s\n\n%s\n\n---\nAbstraction of %d memories.", title, summary, len(records))
	now := e.now()

	abstraction := &core.MemoryRecord{
		ID:              uuid.NewString(),
		Tier:            core.TierLong,
		Type:            core.TypeInsight,
		Source:          core.SourceConsolidation,
		Content:         content,
		ContentHash:     core.HashContent(content),
		Timestamp:       now,
		Project:         mostFrequentProject(records),
		Entities:        entities.sorted(),
		ImportanceScore: &importance,
		CreatedAt:       now,
	}

	if err := e.store.Insert(ctx, abstraction); err != nil {
		return nil, fmt.Errorf("failed to insert abstraction: %w", err)
	}

	return &AbstractionResult{
		AbstractionID:   abstraction.ID,
		Title:           title,
		Summary:         summary,
		SourceCount:     len(records),
		SourceIDs:       ids,
		ImportanceScore: importance,
	}, nil
}

func abstractionSummary(records []core.MemoryRecord) string {
	types := newStringSet()
	projects := newStringSet()
	for i := range records {
		types.add(records[i].Type)
		if records[i].Project != "" {
			projects.add(records[i].Project)
		}
	}

	summary := fmt.Sprintf("This abstraction consolidates %d memories", len(records))
	if len(types.values) > 0 {
		summary += " of types: " + strings.Join(types.sorted(), ", ")
	}
	if len(projects.values) > 0 {
		summary += " from projects: " + strings.Join(projects.sorted(), ", ")
	}
	return summary + "."
}

// GCOptions controls garbage collection.
type GCOptions struct {
	MaxAgeDays    int
	MinImportance float64
	// Apply actually archives; the default is a dry run.
	Apply bool
}

// GCResult reports a garbage-collection pass. Samples are returned in both
// modes for audit.
type GCResult struct {
	DryRun          bool                `json:"dry_run"`
	CandidatesFound int                 `json:"candidates_found"`
	Archived        int                 `json:"archived"`
	Samples         []core.MemoryRecord `json:"samples"`
}

// GarbageCollect archives aged, low-importance, low-engagement records.
// Dry-run passes are read-only and therefore idempotent.
func (e *Engine) GarbageCollect(ctx context.Context, opts GCOptions) (*GCResult, error) {
	if opts.MaxAgeDays <= 0 {
		opts.MaxAgeDays = 90
	}
	if opts.MinImportance <= 0 {
		opts.MinImportance = 0.3
	}

	cutoff := e.now().AddDate(0, 0, -opts.MaxAgeDays)
	candidates, err := e.store.GCCandidates(ctx, opts.MinImportance, cutoff, gcMaxAccessCount, gcCandidateLimit)
	if err != nil {
		return nil, fmt.Errorf("failed to select gc candidates: %w", err)
	}

	result := &GCResult{
		DryRun:          !opts.Apply,
		CandidatesFound: len(candidates),
		Samples:         candidates[:min(len(candidates), gcSampleSize)],
	}

	if opts.Apply && len(candidates) > 0 {
		ids := make([]string, len(candidates))
		for i := range candidates {
			ids[i] = candidates[i].ID
		}
		if err := e.store.Archive(ctx, ids); err != nil {
			return nil, fmt.Errorf("failed to archive gc candidates: %w", err)
		}
		result.Archived = len(ids)

		log.FromCtx(ctx).Info().Int("archived", result.Archived).Msg("garbage collected memories")
	}

	return result, nil
}

// Stats reports consolidation potential.
func (e *Engine) Stats(ctx context.Context) (*core.TierStats, error) {
	return e.store.Stats(ctx)
}

// --- helpers ---

func prefix(content string) string {
	if len(content) > comparePrefixLen {
		return content[:comparePrefixLen]
	}
	return content
}

func pairKey(a, b string) [2]string {
	if a < b {
		return [2]string{a, b}
	}
	return [2]string{b, a}
}

func sortByInputOrder(records []core.MemoryRecord, ids []string) []core.MemoryRecord {
	pos := make(map[string]int, len(ids))
	for i, id := range ids {
		pos[id] = i
	}
	sort.SliceStable(records, func(i, j int) bool {
		return pos[records[i].ID] < pos[records[j].ID]
	})
	return records
}

func mostFrequentProject(records []core.MemoryRecord) string {
	counts := make(map[string]int)
	for i := range records {
		if p := records[i].Project; p != "" {
			counts[p]++
		}
	}
	best := ""
	bestCount := 0
	for p, n := range counts {
		if n > bestCount {
			best = p
			bestCount = n
		}
	}
	return best
}

type stringSet struct {
	values map[string]struct{}
}

func newStringSet() *stringSet {
	return &stringSet{values: make(map[string]struct{})}
}

func (s *stringSet) add(v string) {
	s.values[v] = struct{}{}
}

func (s *stringSet) addAll(vs []string) {
	for _, v := range vs {
		s.values[v] = struct{}{}
	}
}

func (s *stringSet) sorted() []string {
	if len(s.values) == 0 {
		return nil
	}
	out := make([]string, 0, len(s.values))
	for v := range s.values {
		out = append(out, v)
	}
	sort.Strings(out)
	return out
}

func minf(a, b float64) float64 {
	if a < b {
		return a
	}
	return b
}
