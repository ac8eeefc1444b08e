package worker

import (
	"context"
	"fmt"

	"github.com/sandevgo/memtier/internal/core"
	"github.com/sandevgo/memtier/internal/service/lifecycle"
)

// Promoter drives the tier state machine on a schedule.
type Promoter struct {
	machine *lifecycle.Machine
}

func NewPromoter(machine *lifecycle.Machine) *Promoter {
	return &Promoter{machine: machine}
}

func (p *Promoter) Name() string {
	return "memory_promoter"
}

func (p *Promoter) Process(ctx context.Context) (core.ProcessStats, error) {
	result, err := p.machine.Cycle(ctx)
	if err != nil {
		return core.ProcessStats{}, fmt.Errorf("promotion cycle failed: %w", err)
	}

	return core.ProcessStats{
		Processed: result.Total(),
		Details: map[string]any{
			"promoted_to_working": result.PromotedToWorking,
			"promoted_to_long":    result.PromotedToLong,
			"archived":            result.Archived,
		},
	}, nil
}
