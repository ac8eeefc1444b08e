package scoring

import (
	"context"
	"math"
	"time"

	"github.com/sandevgo/memtier/internal/core"
	"github.com/sandevgo/memtier/pkg/log"
)

// Factor weights. They must sum to 1.0.
const (
	weightUniqueness  = 0.30
	weightCredibility = 0.20
	weightEngagement  = 0.25
	weightRecency     = 0.15
	weightContext     = 0.10
)

const (
	// peerLimit bounds the same-type corpus used for uniqueness.
	peerLimit = 100

	recencyHalfLifeDays = 7.0
	maxRecencyAgeDays   = 365.0
)

var sourceScores = map[string]float64{
	core.SourceManual:   0.8, // explicitly saved by the user
	core.SourceIDE:      0.7,
	core.SourceTerminal: 0.6, // may be noise
	core.SourceUnknown:  0.5,
}

var typeScores = map[string]float64{
	core.TypeCode:         0.9,
	core.TypeConversation: 0.8,
	core.TypeEvent:        0.7,
	core.TypeNote:         0.7,
	core.TypeCommand:      0.5,
}

// PeerSource supplies the same-type corpus context for uniqueness scoring.
type PeerSource interface {
	PeerContents(ctx context.Context, recordType string, limit int) ([]string, error)
}

// Service computes importance scores. Scoring is deterministic for a fixed
// record, corpus snapshot and clock; malformed optional fields degrade to
// neutral defaults rather than failing.
type Service struct {
	peers PeerSource
	now   func() time.Time
}

func NewService(peers PeerSource) *Service {
	return &Service{peers: peers, now: time.Now}
}

// NewServiceWithClock is used by tests that need a fixed clock.
func NewServiceWithClock(peers PeerSource, now func() time.Time) *Service {
	return &Service{peers: peers, now: now}
}

// Score returns the record's importance in [0,1].
func (s *Service) Score(ctx context.Context, rec *core.MemoryRecord) float64 {
	uniqueness := s.scoreUniqueness(ctx, rec)
	credibility := scoreCredibility(rec.Source, rec.Type)
	engagement := s.scoreEngagement(rec.AccessCount, rec.CreatedAt)
	recency := s.scoreRecency(rec.Timestamp)
	richness := scoreContext(rec)

	score := uniqueness*weightUniqueness +
		credibility*weightCredibility +
		engagement*weightEngagement +
		recency*weightRecency +
		richness*weightContext

	return clamp(score)
}

// scoreUniqueness estimates information density relative to up to 100
// same-type peers. Fewer than 2 peers means the type is too new to judge.
func (s *Service) scoreUniqueness(ctx context.Context, rec *core.MemoryRecord) float64 {
	if rec.Content == "" {
		return 0.5
	}

	corpus, err := s.peers.PeerContents(ctx, rec.Type, peerLimit)
	if err != nil {
		log.FromCtx(ctx).Warn().Err(err).Msg("uniqueness corpus fetch failed")
		return 0.5
	}

	if len(corpus) < 2 {
		return 0.8
	}

	density := termDensity(rec.Content, corpus)
	return clamp(density * 2)
}

func scoreCredibility(source, recordType string) float64 {
	sourceBase, ok := sourceScores[source]
	if !ok {
		sourceBase = 0.5
	}
	typeBase, ok := typeScores[recordType]
	if !ok {
		typeBase = 0.5
	}
	return (sourceBase + typeBase) / 2
}

func (s *Service) scoreEngagement(accessCount int, createdAt time.Time) float64 {
	if accessCount == 0 {
		return 0.2
	}

	ageDays := s.now().Sub(createdAt).Hours() / 24
	if ageDays <= 0 {
		return 0.5 // too new to judge
	}

	frequency := float64(accessCount) / math.Max(1, ageDays)
	engagement := math.Min(1.0, frequency)

	if accessCount >= 5 {
		engagement = math.Min(1.0, engagement*1.2)
	}
	return engagement
}

func (s *Service) scoreRecency(timestamp time.Time) float64 {
	age := s.now().Sub(timestamp)
	if age < 0 {
		return 1.0 // future timestamp, treat as very recent
	}

	ageDays := age.Hours() / 24
	if ageDays > maxRecencyAgeDays {
		return 0.01
	}

	decayRate := math.Ln2 / recencyHalfLifeDays
	return clamp(math.Exp(-decayRate * ageDays))
}

func scoreContext(rec *core.MemoryRecord) float64 {
	score := 0.5

	if rec.Project != "" {
		score += 0.15
	}
	if rec.FilePath != "" {
		score += 0.15
	}
	score += math.Min(0.2, float64(len(rec.Tags))*0.05)

	return clamp(score)
}

func clamp(v float64) float64 {
	return math.Max(0.0, math.Min(1.0, v))
}
