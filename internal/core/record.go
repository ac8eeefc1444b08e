package core

import (
	"crypto/sha256"
	"encoding/hex"
	"time"
)

// Tier is the lifecycle stage of an active memory record.
type Tier string

const (
	TierShort   Tier = "short"
	TierWorking Tier = "working"
	TierLong    Tier = "long"
)

// Record sources, in decreasing credibility order.
const (
	SourceManual        = "manual"
	SourceIDE           = "ide"
	SourceTerminal      = "terminal"
	SourceConsolidation = "consolidation"
	SourceUnknown       = "unknown"
)

// Record types.
const (
	TypeCode         = "code"
	TypeConversation = "conversation"
	TypeEvent        = "event"
	TypeNote         = "note"
	TypeCommand      = "command"
	TypeInsight      = "insight"
)

// MemoryRecord is the unit of retention. Tier only ever moves forward
// (short → working → long) and Archived is terminal; nothing in the core
// physically deletes a record.
type MemoryRecord struct {
	ID          string
	Tier        Tier
	Type        string
	Source      string
	Content     string
	ContentHash string

	// Timestamp is the logical event time of the underlying activity.
	Timestamp time.Time

	Project  string
	FilePath string
	Language string
	Tags     []string
	Entities []string

	// ImportanceScore is nil until the scorer has run.
	ImportanceScore *float64
	AccessCount     int

	CreatedAt    time.Time
	LastAccessed time.Time

	// PromotedFrom references the original record when this one is a
	// derived summary or merge product.
	PromotedFrom string

	Archived bool
}

// Scored reports whether the record has an importance score.
func (r *MemoryRecord) Scored() bool {
	return r.ImportanceScore != nil
}

// Importance returns the score or the given fallback when unscored.
func (r *MemoryRecord) Importance(fallback float64) float64 {
	if r.ImportanceScore == nil {
		return fallback
	}
	return *r.ImportanceScore
}

// HashContent computes the deterministic content hash used for
// exact-duplicate detection.
func HashContent(content string) string {
	sum := sha256.Sum256([]byte(content))
	return hex.EncodeToString(sum[:])
}

// DuplicateGroup is a set of active records considered duplicates of each
// other. Exact groups share a content hash and have Similarity 1.0; near
// groups are pairs above the similarity threshold.
type DuplicateGroup struct {
	Kind        string   `json:"kind"` // "exact" or "near"
	ContentHash string   `json:"content_hash,omitempty"`
	IDs         []string `json:"memory_ids"`
	Count       int      `json:"count"`
	Similarity  float64  `json:"similarity"`
}

// TierStats summarizes the live population of the store.
type TierStats struct {
	TotalActive          int          `json:"total_active"`
	TotalArchived        int          `json:"total_archived"`
	TierDistribution     map[Tier]int `json:"tier_distribution"`
	ExactDuplicateGroups int          `json:"exact_duplicate_groups"`
	LowQualityCandidates int          `json:"low_quality_candidates"`
}
