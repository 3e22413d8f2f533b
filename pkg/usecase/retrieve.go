package usecase

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/m-mizutani/goerr/v2"
	"github.com/secmon-lab/reasonbank/pkg/domain/model"
	"github.com/secmon-lab/reasonbank/pkg/domain/types"
	"github.com/secmon-lab/reasonbank/pkg/utils/logging"
)

// Retrieve ranks the agent's memories against the query, drops hits
// below the minimum score threshold, bumps retrieval statistics of the
// returned records, and formats the hits for prompt injection.
func (uc *UseCases) Retrieve(ctx context.Context, query string, topK int, agentID types.AgentID) (*model.RetrieveResult, error) {
	if query == "" {
		return nil, ErrEmptyQuery
	}

	if topK <= 0 {
		topK = uc.cfg.DefaultTopK
	}
	if topK > uc.cfg.MaxTopK {
		topK = uc.cfg.MaxTopK
	}

	queryVec, err := uc.embedText(ctx, query)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to embed retrieval query")
	}

	return uc.RetrieveByVector(ctx, query, queryVec, topK, agentID)
}

// RetrieveByVector is Retrieve with a precomputed query vector; used
// directly by callers that already hold an embedding.
func (uc *UseCases) RetrieveByVector(ctx context.Context, query string, queryVec []float32, topK int, agentID types.AgentID) (*model.RetrieveResult, error) {
	logger := logging.From(ctx)

	scored, err := uc.retrieval.Retrieve(ctx, query, queryVec, topK, agentID)
	if err != nil {
		return nil, goerr.Wrap(err, "retrieval failed", goerr.V("agentID", agentID))
	}

	if len(scored) == 0 {
		return &model.RetrieveResult{
			Status:   model.StatusNoMemories,
			Message:  "memory store is empty or no relevant memories found",
			Query:    query,
			Memories: []model.RetrievedMemory{},
		}, nil
	}

	now := time.Now().UTC()
	var hits []model.RetrievedMemory
	filtered := 0

	for _, candidate := range scored {
		if candidate.Score < uc.cfg.MinScoreThreshold {
			filtered++
			continue
		}

		mem, err := uc.repo.Memory().Get(ctx, candidate.ID)
		if err != nil {
			logger.Warn("retrieved memory missing from store, skipping",
				"memoryID", candidate.ID, "error", err.Error())
			continue
		}

		if err := uc.repo.Memory().BumpRetrievalStats(ctx, candidate.ID, now); err != nil {
			logger.Warn("failed to bump retrieval stats",
				"memoryID", candidate.ID, "error", err.Error())
		}

		hits = append(hits, model.RetrievedMemory{
			ID:          mem.ID,
			Score:       candidate.Score,
			Title:       mem.Title,
			Description: mem.Description,
			Content:     mem.Content,
			Success:     mem.Success,
			Tags:        mem.Tags,
		})
	}

	if len(hits) == 0 {
		return &model.RetrieveResult{
			Status:        model.StatusNoMemories,
			Message:       fmt.Sprintf("no memories above relevance threshold %.2f (%d filtered)", uc.cfg.MinScoreThreshold, filtered),
			Query:         query,
			MinScore:      uc.cfg.MinScoreThreshold,
			FilteredCount: filtered,
			Memories:      []model.RetrievedMemory{},
		}, nil
	}

	return &model.RetrieveResult{
		Status:          model.StatusSuccess,
		Query:           query,
		Strategy:        uc.retrieval.Name(),
		TopK:            topK,
		MinScore:        uc.cfg.MinScoreThreshold,
		FilteredCount:   filtered,
		Memories:        hits,
		FormattedPrompt: formatMemoriesForPrompt(hits),
	}, nil
}

// formatMemoriesForPrompt renders retrieval hits as a text block that
// can be injected directly into an agent's prompt.
func formatMemoriesForPrompt(memories []model.RetrievedMemory) string {
	if len(memories) == 0 {
		return ""
	}

	var b strings.Builder
	b.WriteString("Here are memory items accumulated from past interactions that may help with the task. Use them when they seem relevant.\n\n")

	for i, mem := range memories {
		status := "lesson from failure"
		if mem.Success {
			status = "successful experience"
		}
		fmt.Fprintf(&b, "**Memory %d [%s] - %s**\n%s\n\n", i+1, status, mem.Title, mem.Content)
	}

	return strings.TrimSpace(b.String())
}
