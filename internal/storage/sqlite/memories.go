package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/sandevgo/memtier/internal/core"
)

// recordColumns is the shared column list for full-record scans. Every
// query returning records selects exactly these, in this order.
const recordColumns = `id, tier, type, source, content, content_hash, timestamp,
	project, file_path, language, tags, entities, importance_score,
	access_count, created_at, last_accessed, promoted_from, archived`

type MemoryRepo struct {
	db *sql.DB
}

func NewMemoryRepo(db *sql.DB) *MemoryRepo {
	return &MemoryRepo{db: db}
}

func (r *MemoryRepo) Insert(ctx context.Context, rec *core.MemoryRecord) error {
	return insertRecord(ctx, r.db, rec)
}

func (r *MemoryRepo) Get(ctx context.Context, id string) (*core.MemoryRecord, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT `+recordColumns+` FROM memories WHERE id = ?`, id)

	rec, err := scanRecord(row)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("memory %s not found", id)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get memory: %w", err)
	}
	return rec, nil
}

// ListActiveByIDs returns the non-archived records among the given ids.
func (r *MemoryRepo) ListActiveByIDs(ctx context.Context, ids []string) ([]core.MemoryRecord, error) {
	if len(ids) == 0 {
		return nil, nil
	}

	query := fmt.Sprintf(
		`SELECT %s FROM memories WHERE id IN (%s) AND archived = 0`,
		recordColumns, placeholders(len(ids)))

	return r.queryRecords(ctx, query, toAny(ids)...)
}

// ListUnscored returns active records with no importance score, newest
// first. This is the scorer's default selection; scored records are only
// revisited by an explicit re-score, which is not scheduled.
func (r *MemoryRepo) ListUnscored(ctx context.Context, limit int) ([]core.MemoryRecord, error) {
	query := `SELECT ` + recordColumns + `
		FROM memories
		WHERE archived = 0 AND importance_score IS NULL
		ORDER BY timestamp DESC
		LIMIT ?`

	return r.queryRecords(ctx, query, limit)
}

// PeerContents returns the newest active contents of the given type, used
// as the corpus context for uniqueness scoring.
func (r *MemoryRepo) PeerContents(ctx context.Context, recordType string, limit int) ([]string, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT content FROM memories
		 WHERE type = ? AND archived = 0
		 ORDER BY timestamp DESC LIMIT ?`,
		recordType, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query peer contents: %w", err)
	}
	defer rows.Close()

	var contents []string
	for rows.Next() {
		var c string
		if err := rows.Scan(&c); err != nil {
			return nil, err
		}
		if c != "" {
			contents = append(contents, c)
		}
	}
	return contents, rows.Err()
}

// SetImportanceScores writes a batch of scores in a single transaction.
func (r *MemoryRepo) SetImportanceScores(ctx context.Context, scores map[string]float64) error {
	if len(scores) == 0 {
		return nil
	}

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, `UPDATE memories SET importance_score = ? WHERE id = ?`)
	if err != nil {
		return err
	}
	defer stmt.Close()

	for id, score := range scores {
		if _, err := stmt.ExecContext(ctx, score, id); err != nil {
			return fmt.Errorf("failed to update score for %s: %w", id, err)
		}
	}

	return tx.Commit()
}

// ListShortPromotable returns short-tier records old enough to leave
// short-term that qualify by importance or engagement.
func (r *MemoryRepo) ListShortPromotable(ctx context.Context, cutoff time.Time, minScore float64, minAccess int) ([]core.MemoryRecord, error) {
	query := `SELECT ` + recordColumns + `
		FROM memories
		WHERE tier = 'short' AND archived = 0
		  AND timestamp < ?
		  AND (importance_score >= ? OR access_count >= ?)`

	return r.queryRecords(ctx, query, timeToMs(cutoff), minScore, minAccess)
}

// ListWorkingExpired returns working-tier records past the working-term
// age whose engagement stayed below the promotion threshold. These move to
// long-term for eventual compression, not by merit.
func (r *MemoryRepo) ListWorkingExpired(ctx context.Context, cutoff time.Time, maxAccess int) ([]core.MemoryRecord, error) {
	query := `SELECT ` + recordColumns + `
		FROM memories
		WHERE tier = 'working' AND archived = 0
		  AND timestamp < ?
		  AND access_count < ?`

	return r.queryRecords(ctx, query, timeToMs(cutoff), maxAccess)
}

// ListShortArchivable returns silent low-value short-tier records: never
// accessed, scored below maxScore, older than the archive cutoff.
func (r *MemoryRepo) ListShortArchivable(ctx context.Context, cutoff time.Time, maxScore float64) ([]core.MemoryRecord, error) {
	query := `SELECT ` + recordColumns + `
		FROM memories
		WHERE tier = 'short' AND archived = 0
		  AND timestamp < ?
		  AND importance_score < ?
		  AND access_count = 0`

	return r.queryRecords(ctx, query, timeToMs(cutoff), maxScore)
}

// ApplyTierChanges applies one promotion cycle in a single transaction.
// Either every change lands or none does.
func (r *MemoryRepo) ApplyTierChanges(ctx context.Context, toWorking, toLong, toArchive []string) error {
	if len(toWorking) == 0 && len(toLong) == 0 && len(toArchive) == 0 {
		return nil
	}

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if err := updateTier(ctx, tx, toWorking, core.TierWorking); err != nil {
		return err
	}
	if err := updateTier(ctx, tx, toLong, core.TierLong); err != nil {
		return err
	}
	if err := archiveIDs(ctx, tx, toArchive); err != nil {
		return err
	}

	return tx.Commit()
}

// ExactDuplicateGroups returns groups of active records sharing a content
// hash. Similarity within a group is 1.0 by definition.
func (r *MemoryRepo) ExactDuplicateGroups(ctx context.Context, project string, limit int) ([]core.DuplicateGroup, error) {
	query := `SELECT content_hash, GROUP_CONCAT(id), COUNT(*) AS n
		FROM memories
		WHERE archived = 0`
	args := []any{}

	if project != "" {
		query += ` AND project = ?`
		args = append(args, project)
	}

	query += ` GROUP BY content_hash HAVING n > 1 ORDER BY n DESC LIMIT ?`
	args = append(args, limit)

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query duplicate groups: %w", err)
	}
	defer rows.Close()

	var groups []core.DuplicateGroup
	for rows.Next() {
		var hash, ids string
		var count int
		if err := rows.Scan(&hash, &ids, &count); err != nil {
			return nil, err
		}
		groups = append(groups, core.DuplicateGroup{
			Kind:        "exact",
			ContentHash: hash,
			IDs:         strings.Split(ids, ","),
			Count:       count,
			Similarity:  1.0,
		})
	}
	return groups, rows.Err()
}

// ListRecentActive returns the newest active records, optionally scoped to
// a project. It bounds the near-duplicate comparison window.
func (r *MemoryRepo) ListRecentActive(ctx context.Context, project string, limit int) ([]core.MemoryRecord, error) {
	query := `SELECT ` + recordColumns + ` FROM memories WHERE archived = 0`
	args := []any{}

	if project != "" {
		query += ` AND project = ?`
		args = append(args, project)
	}

	query += ` ORDER BY timestamp DESC LIMIT ?`
	args = append(args, limit)

	return r.queryRecords(ctx, query, args...)
}

// Archive marks the given records archived in one transaction.
func (r *MemoryRepo) Archive(ctx context.Context, ids []string) error {
	if len(ids) == 0 {
		return nil
	}

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if err := archiveIDs(ctx, tx, ids); err != nil {
		return err
	}
	return tx.Commit()
}

// ArchiveAndInsert archives the given records and inserts their
// replacement atomically. A failed insert rolls back the archival, so a
// merge can never half-commit.
func (r *MemoryRepo) ArchiveAndInsert(ctx context.Context, archive []string, rec *core.MemoryRecord) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if err := archiveIDs(ctx, tx, archive); err != nil {
		return err
	}
	if err := insertRecord(ctx, tx, rec); err != nil {
		return err
	}
	return tx.Commit()
}

// GCCandidates returns aged, low-importance, low-engagement records,
// lowest importance first then oldest first.
func (r *MemoryRepo) GCCandidates(ctx context.Context, minImportance float64, cutoff time.Time, maxAccess, limit int) ([]core.MemoryRecord, error) {
	query := `SELECT ` + recordColumns + `
		FROM memories
		WHERE archived = 0
		  AND importance_score < ?
		  AND timestamp < ?
		  AND access_count < ?
		ORDER BY importance_score ASC, timestamp ASC
		LIMIT ?`

	return r.queryRecords(ctx, query, minImportance, timeToMs(cutoff), maxAccess, limit)
}

// Stats reports the live population and consolidation potential.
func (r *MemoryRepo) Stats(ctx context.Context) (*core.TierStats, error) {
	stats := &core.TierStats{TierDistribution: make(map[core.Tier]int)}

	row := r.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM memories WHERE archived = 0`)
	if err := row.Scan(&stats.TotalActive); err != nil {
		return nil, err
	}

	row = r.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM memories WHERE archived = 1`)
	if err := row.Scan(&stats.TotalArchived); err != nil {
		return nil, err
	}

	rows, err := r.db.QueryContext(ctx,
		`SELECT tier, COUNT(*) FROM memories WHERE archived = 0 GROUP BY tier`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	for rows.Next() {
		var tier string
		var n int
		if err := rows.Scan(&tier, &n); err != nil {
			return nil, err
		}
		stats.TierDistribution[core.Tier(tier)] = n
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	row = r.db.QueryRowContext(ctx, `
		SELECT COUNT(*) FROM (
			SELECT content_hash, COUNT(*) AS n
			FROM memories WHERE archived = 0
			GROUP BY content_hash HAVING n > 1
		)`)
	if err := row.Scan(&stats.ExactDuplicateGroups); err != nil {
		return nil, err
	}

	row = r.db.QueryRowContext(ctx, `
		SELECT COUNT(*) FROM memories
		WHERE archived = 0 AND importance_score < 0.3 AND access_count < 2`)
	if err := row.Scan(&stats.LowQualityCandidates); err != nil {
		return nil, err
	}

	return stats, nil
}

// --- helpers ---

type execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

func insertRecord(ctx context.Context, ex execer, rec *core.MemoryRecord) error {
	tags, err := marshalStrings(rec.Tags)
	if err != nil {
		return fmt.Errorf("failed to marshal tags: %w", err)
	}
	entities, err := marshalStrings(rec.Entities)
	if err != nil {
		return fmt.Errorf("failed to marshal entities: %w", err)
	}

	_, err = ex.ExecContext(ctx, `
		INSERT INTO memories (`+recordColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		rec.ID, string(rec.Tier), rec.Type, rec.Source, rec.Content, rec.ContentHash,
		timeToMs(rec.Timestamp),
		nullString(rec.Project), nullString(rec.FilePath), nullString(rec.Language),
		tags, entities,
		nullFloat(rec.ImportanceScore),
		rec.AccessCount,
		timeToMs(rec.CreatedAt),
		nullMs(rec.LastAccessed),
		nullString(rec.PromotedFrom),
		boolToInt(rec.Archived),
	)
	if err != nil {
		return fmt.Errorf("failed to insert memory: %w", err)
	}
	return nil
}

func updateTier(ctx context.Context, tx *sql.Tx, ids []string, tier core.Tier) error {
	if len(ids) == 0 {
		return nil
	}
	query := fmt.Sprintf(
		`UPDATE memories SET tier = ? WHERE id IN (%s) AND archived = 0`,
		placeholders(len(ids)))

	args := append([]any{string(tier)}, toAny(ids)...)
	if _, err := tx.ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("failed to update tier to %s: %w", tier, err)
	}
	return nil
}

func archiveIDs(ctx context.Context, tx *sql.Tx, ids []string) error {
	if len(ids) == 0 {
		return nil
	}
	query := fmt.Sprintf(
		`UPDATE memories SET archived = 1 WHERE id IN (%s)`,
		placeholders(len(ids)))

	if _, err := tx.ExecContext(ctx, query, toAny(ids)...); err != nil {
		return fmt.Errorf("failed to archive memories: %w", err)
	}
	return nil
}

func (r *MemoryRepo) queryRecords(ctx context.Context, query string, args ...any) ([]core.MemoryRecord, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query memories: %w", err)
	}
	defer rows.Close()

	var records []core.MemoryRecord
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan memory: %w", err)
		}
		records = append(records, *rec)
	}
	return records, rows.Err()
}

type scanner interface {
	Scan(dest ...any) error
}

func scanRecord(s scanner) (*core.MemoryRecord, error) {
	var rec core.MemoryRecord
	var tier string
	var ts, createdAt int64
	var project, filePath, language, tags, entities, promotedFrom sql.NullString
	var importance sql.NullFloat64
	var lastAccessed sql.NullInt64
	var archived int

	err := s.Scan(
		&rec.ID, &tier, &rec.Type, &rec.Source, &rec.Content, &rec.ContentHash,
		&ts, &project, &filePath, &language, &tags, &entities,
		&importance, &rec.AccessCount, &createdAt, &lastAccessed,
		&promotedFrom, &archived,
	)
	if err != nil {
		return nil, err
	}

	rec.Tier = core.Tier(tier)
	rec.Timestamp = msToTime(ts)
	rec.CreatedAt = msToTime(createdAt)
	rec.Project = project.String
	rec.FilePath = filePath.String
	rec.Language = language.String
	rec.PromotedFrom = promotedFrom.String
	rec.Archived = archived != 0

	if importance.Valid {
		score := importance.Float64
		rec.ImportanceScore = &score
	}
	if lastAccessed.Valid {
		rec.LastAccessed = msToTime(lastAccessed.Int64)
	}

	if rec.Tags, err = unmarshalStrings(tags); err != nil {
		return nil, fmt.Errorf("failed to unmarshal tags: %w", err)
	}
	if rec.Entities, err = unmarshalStrings(entities); err != nil {
		return nil, fmt.Errorf("failed to unmarshal entities: %w", err)
	}

	return &rec, nil
}

func marshalStrings(values []string) (any, error) {
	if len(values) == 0 {
		return nil, nil
	}
	b, err := json.Marshal(values)
	if err != nil {
		return nil, err
	}
	return string(b), nil
}

func unmarshalStrings(raw sql.NullString) ([]string, error) {
	if !raw.Valid || raw.String == "" {
		return nil, nil
	}
	var values []string
	if err := json.Unmarshal([]byte(raw.String), &values); err != nil {
		return nil, err
	}
	return values, nil
}

func placeholders(n int) string {
	return strings.TrimSuffix(strings.Repeat("?,", n), ",")
}

func toAny(ids []string) []any {
	args := make([]any, len(ids))
	for i, id := range ids {
		args[i] = id
	}
	return args
}

func nullString(s string) any {
	if s == "" {
		return nil
	}
	return s
}

func nullFloat(f *float64) any {
	if f == nil {
		return nil
	}
	return *f
}

func nullMs(t time.Time) any {
	if t.IsZero() {
		return nil
	}
	return timeToMs(t)
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

// Timestamps are persisted as epoch milliseconds.
func timeToMs(t time.Time) int64 {
	return t.UnixMilli()
}

func msToTime(ms int64) time.Time {
	return time.UnixMilli(ms).UTC()
}
