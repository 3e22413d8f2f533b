package retrieval

import (
	"context"
	"sort"

	"github.com/m-mizutani/goerr/v2"
	"github.com/secmon-lab/reasonbank/pkg/domain/interfaces"
	"github.com/secmon-lab/reasonbank/pkg/domain/model"
	"github.com/secmon-lab/reasonbank/pkg/domain/types"
	"github.com/secmon-lab/reasonbank/pkg/utils/similarity"
)

// Cosine is the baseline strategy: pure cosine similarity between the
// query vector and each candidate's embedding. It is bit-for-bit
// deterministic given identical inputs and has no side effects.
type Cosine struct {
	repo interfaces.MemoryRepository
}

// NewCosine creates a cosine retrieval strategy
func NewCosine(repo interfaces.MemoryRepository) *Cosine {
	return &Cosine{repo: repo}
}

// Name returns the strategy name
func (s *Cosine) Name() string {
	return "cosine"
}

// Retrieve ranks the agent's memories by cosine similarity
func (s *Cosine) Retrieve(ctx context.Context, query string, queryVec []float32, topK int, agentID types.AgentID) ([]model.ScoredMemory, error) {
	memories, err := s.repo.List(ctx, agentID)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to list memories for retrieval", goerr.V("agentID", agentID))
	}
	if len(memories) == 0 {
		return []model.ScoredMemory{}, nil
	}

	scored := make([]model.ScoredMemory, 0, len(memories))
	for _, mem := range memories {
		if len(mem.Embedding) == 0 {
			continue
		}
		scored = append(scored, model.ScoredMemory{
			ID:    mem.ID,
			Score: similarity.Cosine(queryVec, mem.Embedding),
		})
	}

	sort.SliceStable(scored, func(i, j int) bool {
		return scored[i].Score > scored[j].Score
	})

	if topK < len(scored) {
		scored = scored[:topK]
	}
	return scored, nil
}
