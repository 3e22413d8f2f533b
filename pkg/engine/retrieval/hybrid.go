package retrieval

import (
	"context"
	"math"
	"sort"
	"time"

	"github.com/m-mizutani/goerr/v2"
	"github.com/secmon-lab/reasonbank/pkg/domain/interfaces"
	"github.com/secmon-lab/reasonbank/pkg/domain/model"
	"github.com/secmon-lab/reasonbank/pkg/domain/types"
	"github.com/secmon-lab/reasonbank/pkg/utils/similarity"
)

// HybridConfig holds the weights and decay parameter of the hybrid
// scoring strategy. Weights are expected to sum to roughly 1 by
// convention; this is not enforced.
type HybridConfig struct {
	SemanticWeight    float64 `toml:"semantic"`
	ConfidenceWeight  float64 `toml:"confidence"`
	SuccessWeight     float64 `toml:"success"`
	RecencyWeight     float64 `toml:"recency"`
	DecayHalflifeDays float64 `toml:"time_decay_halflife"`
}

// DefaultHybridConfig returns the default hybrid scoring parameters
func DefaultHybridConfig() HybridConfig {
	return HybridConfig{
		SemanticWeight:    0.6,
		ConfidenceWeight:  0.2,
		SuccessWeight:     0.15,
		RecencyWeight:     0.05,
		DecayHalflifeDays: 30,
	}
}

// Hybrid combines semantic similarity with usage confidence, a
// success/failure bias, and recency decay:
//
//	score = w_sem*cos + w_conf*confidence - w_recency*(1-decay) + w_success*bonus
//
// The score is a pure function of the record state and query vector.
type Hybrid struct {
	repo interfaces.MemoryRepository
	cfg  HybridConfig
	now  func() time.Time
}

// NewHybrid creates a hybrid retrieval strategy
func NewHybrid(repo interfaces.MemoryRepository, cfg HybridConfig) *Hybrid {
	return &Hybrid{repo: repo, cfg: cfg, now: time.Now}
}

// Name returns the strategy name
func (s *Hybrid) Name() string {
	return "hybrid"
}

// Retrieve ranks the agent's memories by hybrid score
func (s *Hybrid) Retrieve(ctx context.Context, query string, queryVec []float32, topK int, agentID types.AgentID) ([]model.ScoredMemory, error) {
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
			Score: s.Score(queryVec, mem),
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

// Score computes the hybrid score of one memory against the query vector
func (s *Hybrid) Score(queryVec []float32, mem *model.Memory) float64 {
	semantic := similarity.Cosine(queryVec, mem.Embedding)
	confidence := confidenceScore(mem.RetrievalCount)
	decay := s.timeDecay(mem.CreatedAt)

	successBonus := -0.5
	if mem.Success {
		successBonus = 1.0
	}

	return s.cfg.SemanticWeight*semantic +
		s.cfg.ConfidenceWeight*confidence -
		s.cfg.RecencyWeight*(1-decay) +
		s.cfg.SuccessWeight*successBonus
}

// confidenceScore maps the retrieval count into [0.5, 1.0]. Unused
// records start at 0.5 and the score saturates toward 1.0 as usage
// grows.
func confidenceScore(retrievalCount int) float64 {
	return 0.5 + 0.5*math.Tanh(float64(retrievalCount)/10)
}

// timeDecay computes exponential decay with the configured halflife.
// A missing creation time yields 1.0: no recency penalty.
func (s *Hybrid) timeDecay(createdAt time.Time) float64 {
	if createdAt.IsZero() {
		return 1.0
	}

	daysElapsed := s.now().Sub(createdAt).Hours() / 24
	if daysElapsed < 0 {
		return 1.0
	}

	lambda := math.Ln2 / s.cfg.DecayHalflifeDays
	return math.Exp(-lambda * daysElapsed)
}
