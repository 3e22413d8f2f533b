package usecase

import (
	"context"
	"fmt"
	"time"

	"github.com/m-mizutani/goerr/v2"
	"github.com/secmon-lab/reasonbank/pkg/domain/model"
	"github.com/secmon-lab/reasonbank/pkg/domain/types"
	"github.com/secmon-lab/reasonbank/pkg/utils/logging"
)

// OnMemoriesCreated is the management hook for a batch of newly
// extracted memories: it filters out duplicates of existing records,
// persists the survivors, and then checks per survivor whether enough
// similar records have accumulated to justify a merge. Merges run as
// detached background tasks; the hook returns before they complete.
func (uc *UseCases) OnMemoriesCreated(ctx context.Context, memories []*model.Memory, agentID types.AgentID) (*model.ManagementResult, error) {
	logger := logging.From(ctx)
	logger.Info("processing new memories", "count", len(memories), "agentID", agentID)

	var unique []*model.Memory
	duplicates := 0

	if uc.cfg.DedupOnExtraction {
		for _, mem := range memories {
			result := uc.dedup.CheckDuplicate(ctx, mem, mem.Embedding, agentID)
			if result.IsDuplicate {
				logger.Info("skipping duplicate memory",
					"title", mem.Title,
					"duplicateOf", result.DuplicateOf,
					"score", result.Score,
					"agentID", agentID,
				)
				duplicates++
				continue
			}
			unique = append(unique, mem)
		}
	} else {
		unique = memories
	}

	if len(unique) > 0 {
		if err := uc.repo.Memory().SaveBatch(ctx, unique); err != nil {
			return nil, goerr.Wrap(err, "failed to save new memories", goerr.V("agentID", agentID))
		}
	}

	merges := 0
	if uc.cfg.MergeAutoExecute {
		for _, mem := range unique {
			if uc.checkMergeOpportunity(ctx, mem, agentID) {
				merges++
			}
		}
	}

	return &model.ManagementResult{
		UniqueMemories:  unique,
		DuplicatesFound: duplicates,
		MergesTriggered: merges,
		Message: fmt.Sprintf("processed %d unique memories, skipped %d duplicates, triggered %d merges",
			len(unique), duplicates, merges),
	}, nil
}

// checkMergeOpportunity decides whether the new memory completes a
// similarity cluster and, if so, spawns the merge. Returns true when a
// merge was triggered. Errors never propagate: a failed check means
// "merge not triggered".
func (uc *UseCases) checkMergeOpportunity(ctx context.Context, mem *model.Memory, agentID types.AgentID) bool {
	logger := logging.From(ctx)

	if len(mem.Embedding) == 0 {
		return false
	}

	// The record itself is already persisted and will come back as its
	// own best match, so fetch one extra slot before excluding it.
	similar, err := uc.retrieval.Retrieve(ctx, mem.Query, mem.Embedding, uc.cfg.MergeCandidateLimit+1, agentID)
	if err != nil {
		logger.Error("merge opportunity check failed", "error", err.Error(), "agentID", agentID)
		return false
	}

	var similarIDs []model.MemoryID
	for _, candidate := range similar {
		if candidate.ID == mem.ID {
			continue
		}
		if candidate.Score >= uc.cfg.MergeSimilarityThreshold {
			similarIDs = append(similarIDs, candidate.ID)
		}
	}

	// The new record itself counts toward the cluster size
	if len(similarIDs)+1 < uc.cfg.MergeMinSimilarCount {
		return false
	}

	group := make([]*model.Memory, 0, len(similarIDs)+1)
	for _, id := range similarIDs {
		existing, err := uc.repo.Memory().Get(ctx, id)
		if err != nil {
			logger.Warn("similar memory vanished before merge", "memoryID", id)
			continue
		}
		group = append(group, existing)
	}
	group = append(group, mem)

	if !uc.merge.ShouldMerge(ctx, group, agentID) {
		return false
	}

	// Advisory lock: skip if a merge for this agent is already in
	// flight, so overlapping clusters cannot be archived twice.
	uc.mergeMu.Lock()
	if uc.mergeBusy[agentID] {
		uc.mergeMu.Unlock()
		logger.Info("merge already in flight for agent, skipping trigger", "agentID", agentID)
		return false
	}
	uc.mergeBusy[agentID] = true
	uc.mergeMu.Unlock()

	logger.Info("merge opportunity detected",
		"groupSize", len(group), "agentID", agentID)

	uc.dispatch(ctx, func(ctx context.Context) error {
		defer func() {
			uc.mergeMu.Lock()
			delete(uc.mergeBusy, agentID)
			uc.mergeMu.Unlock()
		}()
		return uc.executeMerge(ctx, group, agentID)
	})

	return true
}

// executeMerge runs in the background: consolidate the group, persist
// the result with a fresh identity and embedding, then archive and
// delete the originals. A failure leaves the source records untouched;
// the next extraction cycle may re-trigger the merge.
func (uc *UseCases) executeMerge(ctx context.Context, group []*model.Memory, agentID types.AgentID) error {
	logger := logging.From(ctx)
	logger.Info("executing merge", "groupSize", len(group), "agentID", agentID)

	result, err := uc.merge.Merge(ctx, group, agentID)
	if err != nil {
		return goerr.Wrap(err, "merge failed", goerr.V("agentID", agentID))
	}

	merged := result.Memory.Clone()
	merged.ID = model.NewMemoryID()
	merged.CreatedAt = time.Now().UTC()
	merged.RetrievalCount = 0
	merged.LastRetrieved = nil

	embedSource := merged.Query
	if embedSource == "" {
		embedSource = merged.Description
	}
	embedding, err := uc.embedText(ctx, embedSource)
	if err != nil {
		return goerr.Wrap(err, "failed to embed merged memory", goerr.V("memoryID", merged.ID))
	}
	merged.Embedding = embedding

	if err := uc.repo.Memory().SaveBatch(ctx, []*model.Memory{merged}); err != nil {
		return goerr.Wrap(err, "failed to save merged memory", goerr.V("memoryID", merged.ID))
	}

	logger.Info("merged memory saved", "memoryID", merged.ID, "agentID", agentID)

	if err := uc.archiveMerged(ctx, group, merged.ID, agentID); err != nil {
		return err
	}

	logger.Info("merge completed",
		"sources", len(group),
		"memoryID", merged.ID,
		"agentID", agentID,
	)
	return nil
}

// archiveMerged tags every superseded group member and removes it from
// the active store; the fresh merged record replaces the whole group.
// Ownership is re-validated per record before archival and again
// inside Delete.
func (uc *UseCases) archiveMerged(ctx context.Context, group []*model.Memory, mergedInto model.MemoryID, agentID types.AgentID) error {
	logger := logging.From(ctx)
	now := time.Now().UTC()

	var archived []*model.Memory
	for _, mem := range group {
		if agentID != "" && mem.AgentID != agentID {
			logger.Warn("skipping archive of foreign-agent memory",
				"memoryID", mem.ID, "memoryAgentID", mem.AgentID, "agentID", agentID)
			continue
		}

		record := mem.Clone()
		record.Archived = true
		t := now
		record.ArchivedAt = &t
		record.ArchivedReason = "merged"
		record.MergedInto = mergedInto
		archived = append(archived, record)
	}

	if len(archived) == 0 {
		return nil
	}

	if err := uc.repo.Memory().Archive(ctx, archived); err != nil {
		return goerr.Wrap(err, "failed to archive merged sources", goerr.V("mergedInto", mergedInto))
	}

	ids := make([]model.MemoryID, len(archived))
	for i, mem := range archived {
		ids[i] = mem.ID
	}
	deleted, err := uc.repo.Memory().Delete(ctx, ids, agentID)
	if err != nil {
		return goerr.Wrap(err, "failed to delete merged sources", goerr.V("mergedInto", mergedInto))
	}

	logger.Info("archived merged sources", "archived", len(archived), "deleted", deleted, "agentID", agentID)
	return nil
}
