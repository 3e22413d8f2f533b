package merge

import (
	"context"
	"sort"

	"github.com/secmon-lab/reasonbank/pkg/domain/model"
	"github.com/secmon-lab/reasonbank/pkg/domain/types"
	"github.com/secmon-lab/reasonbank/pkg/utils/logging"
)

// Voting selects the best record of a group and drops the rest. No
// information is synthesized; the result is a deterministic pure
// function of the input group. Selection priority: highest
// retrieval_count, then success=true preferred, then most recent
// timestamp.
type Voting struct {
	minGroupSize int
}

// NewVoting creates a voting merge strategy
func NewVoting(minGroupSize int) *Voting {
	if minGroupSize < 2 {
		minGroupSize = 2
	}
	return &Voting{minGroupSize: minGroupSize}
}

// Name returns the strategy name
func (s *Voting) Name() string {
	return "voting"
}

// ShouldMerge checks the minimum group size and agent homogeneity
func (s *Voting) ShouldMerge(ctx context.Context, group []*model.Memory, agentID types.AgentID) bool {
	if len(group) < s.minGroupSize {
		return false
	}
	if err := validateGroup(group, agentID); err != nil {
		logging.From(ctx).Warn("merge group rejected", "error", err.Error(), "agentID", agentID)
		return false
	}
	return true
}

// Merge selects the winner and annotates it with provenance. The
// winner keeps its identity; all other group members become its
// merged_from sources.
func (s *Voting) Merge(ctx context.Context, group []*model.Memory, agentID types.AgentID) (*model.MergeResult, error) {
	if err := validateGroup(group, agentID); err != nil {
		return nil, err
	}

	sorted := make([]*model.Memory, len(group))
	copy(sorted, group)
	sort.SliceStable(sorted, func(i, j int) bool {
		a, b := sorted[i], sorted[j]
		if a.RetrievalCount != b.RetrievalCount {
			return a.RetrievalCount > b.RetrievalCount
		}
		if a.Success != b.Success {
			return a.Success
		}
		return a.CreatedAt.After(b.CreatedAt)
	})
	winner := sorted[0].Clone()

	mergedFrom := make([]model.MemoryID, 0, len(group)-1)
	for _, mem := range group {
		if mem.ID != winner.ID {
			mergedFrom = append(mergedFrom, mem.ID)
		}
	}

	winner.IsMerged = true
	winner.MergedFrom = mergedFrom

	logging.From(ctx).Info("selected best memory by voting",
		"memoryID", winner.ID,
		"groupSize", len(group),
		"agentID", agentID,
	)

	return &model.MergeResult{
		Memory:           winner,
		MergedFrom:       mergedFrom,
		AbstractionLevel: model.AbstractionSelected,
		Strategy:         s.Name(),
		OriginalCount:    len(group),
	}, nil
}
