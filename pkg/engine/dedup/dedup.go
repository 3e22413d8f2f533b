// Package dedup detects near-duplicate memories by embedding
// similarity: a single-record check on the write path and a greedy
// clustering pass for offline cleanup.
package dedup

import (
	"context"
	"fmt"

	"github.com/m-mizutani/goerr/v2"
	"github.com/secmon-lab/reasonbank/pkg/domain/interfaces"
	"github.com/secmon-lab/reasonbank/pkg/domain/model"
	"github.com/secmon-lab/reasonbank/pkg/domain/types"
	"github.com/secmon-lab/reasonbank/pkg/engine/retrieval"
	"github.com/secmon-lab/reasonbank/pkg/utils/logging"
	"github.com/secmon-lab/reasonbank/pkg/utils/similarity"
)

// Config holds tuning for the duplicate detector
type Config struct {
	Threshold float64 `toml:"threshold"`
	TopKCheck int     `toml:"top_k_check"`
}

// DefaultConfig returns the default dedup parameters
func DefaultConfig() Config {
	return Config{Threshold: 0.90, TopKCheck: 1}
}

// Validate checks the configuration at construction time
func (c Config) Validate() error {
	if c.Threshold <= 0 || c.Threshold > 1 {
		return goerr.New("dedup threshold must be in (0, 1]", goerr.V("threshold", c.Threshold))
	}
	if c.TopKCheck < 1 {
		return goerr.New("dedup top_k_check must be at least 1", goerr.V("top_k_check", c.TopKCheck))
	}
	return nil
}

// Detector flags new memories that duplicate an existing record of the
// same agent, and partitions an agent's records into duplicate groups.
type Detector struct {
	repo      interfaces.MemoryRepository
	retrieval retrieval.Strategy
	cfg       Config
}

// New creates a Detector. The retrieval strategy is used for the
// single-record nearest-neighbor check; clustering compares embeddings
// directly.
func New(repo interfaces.MemoryRepository, rs retrieval.Strategy, cfg Config) (*Detector, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &Detector{repo: repo, retrieval: rs, cfg: cfg}, nil
}

// CheckDuplicate reports whether a near-duplicate of the given memory
// already exists within the agent's records. It never fails: a missing
// embedding or a collaborator error degrades to "not a duplicate" with
// an explanatory reason.
func (d *Detector) CheckDuplicate(ctx context.Context, mem *model.Memory, embedding []float32, agentID types.AgentID) *model.DuplicateResult {
	logger := logging.From(ctx)

	if len(embedding) == 0 {
		logger.Warn("no embedding provided for duplicate check", "memoryID", mem.ID)
		return model.NotDuplicate("no embedding provided")
	}

	nearest, err := d.retrieval.Retrieve(ctx, mem.Query, embedding, d.cfg.TopKCheck, agentID)
	if err != nil {
		logger.Error("duplicate check retrieval failed, treating as not duplicate",
			"error", err.Error(), "agentID", agentID)
		return model.NotDuplicate("error during check: " + err.Error())
	}

	for _, candidate := range nearest {
		if candidate.Score < d.cfg.Threshold {
			continue
		}
		logger.Info("found semantically similar memory",
			"memoryID", candidate.ID,
			"score", candidate.Score,
			"threshold", d.cfg.Threshold,
			"agentID", agentID,
		)
		return &model.DuplicateResult{
			IsDuplicate: true,
			DuplicateOf: candidate.ID,
			Score:       candidate.Score,
			Reason:      fmt.Sprintf("semantically similar to existing memory (score=%.3f)", candidate.Score),
		}
	}

	return model.NotDuplicate(fmt.Sprintf("no similar memories above threshold %.2f", d.cfg.Threshold))
}

// FindDuplicateGroups partitions an agent's records into clusters of
// mutually similar memories using greedy single-link clustering over
// stored order: each unvisited record pulls in every later unvisited
// record whose similarity to it meets the threshold. This is not
// transitive closure; records similar to a common third but not to
// each other may split across groups depending on visit order. Only
// groups of size >= 2 are returned, and no memory appears in two
// groups. Cost is O(n^2) embedding comparisons per agent.
func (d *Detector) FindDuplicateGroups(ctx context.Context, agentID types.AgentID, limit int) ([][]model.MemoryID, error) {
	memories, err := d.repo.List(ctx, agentID)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to list memories for duplicate grouping", goerr.V("agentID", agentID))
	}
	if len(memories) < 2 {
		return [][]model.MemoryID{}, nil
	}

	visited := make(map[model.MemoryID]bool, len(memories))
	var groups [][]model.MemoryID

	for i, mem := range memories {
		if visited[mem.ID] {
			continue
		}
		visited[mem.ID] = true

		if len(mem.Embedding) == 0 {
			continue
		}

		group := []model.MemoryID{mem.ID}
		for _, other := range memories[i+1:] {
			if visited[other.ID] || len(other.Embedding) == 0 {
				continue
			}
			if similarity.Cosine(mem.Embedding, other.Embedding) >= d.cfg.Threshold {
				group = append(group, other.ID)
				visited[other.ID] = true
			}
		}

		if len(group) >= 2 {
			groups = append(groups, group)
		}
	}

	if limit > 0 && len(groups) > limit {
		groups = groups[:limit]
	}

	logging.From(ctx).Info("found duplicate groups",
		"groups", len(groups), "agentID", agentID)

	return groups, nil
}
