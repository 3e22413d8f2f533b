package usecase

import (
	"context"
	"fmt"

	"github.com/m-mizutani/goerr/v2"
	"github.com/secmon-lab/reasonbank/pkg/domain/model"
	"github.com/secmon-lab/reasonbank/pkg/domain/types"
	"github.com/secmon-lab/reasonbank/pkg/utils/logging"
	"golang.org/x/sync/errgroup"
)

// CleanupDuplicates scans one agent's memories for duplicate groups and
// removes all but the oldest record of each group. With dryRun the
// report describes what would be deleted without touching the store.
func (uc *UseCases) CleanupDuplicates(ctx context.Context, agentID types.AgentID, dryRun bool) (*model.CleanupReport, error) {
	logger := logging.From(ctx)

	groups, err := uc.dedup.FindDuplicateGroups(ctx, agentID, 0)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to find duplicate groups", goerr.V("agentID", agentID))
	}

	report := &model.CleanupReport{
		AgentID: agentID,
		DryRun:  dryRun,
	}

	var toDelete []model.MemoryID
	for _, group := range groups {
		if len(group) < 2 {
			continue
		}
		report.DuplicateGroups++
		// The first entry of each group is the earliest stored record
		report.ToKeep++
		toDelete = append(toDelete, group[1:]...)
	}
	report.ToDelete = len(toDelete)

	if dryRun || len(toDelete) == 0 {
		return report, nil
	}

	deleted, err := uc.repo.Memory().Delete(ctx, toDelete, agentID)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to delete duplicates", goerr.V("agentID", agentID))
	}
	report.DeletedIDs = toDelete[:deleted]

	logger.Info("cleanup completed",
		"agentID", agentID,
		"groups", report.DuplicateGroups,
		"deleted", deleted,
	)
	return report, nil
}

// CleanupAll runs duplicate cleanup for every agent found in the store,
// fanning out one cleanup per agent.
func (uc *UseCases) CleanupAll(ctx context.Context, dryRun bool) ([]*model.CleanupReport, error) {
	all, err := uc.repo.Memory().List(ctx, "")
	if err != nil {
		return nil, goerr.Wrap(err, "failed to list memories")
	}

	seen := map[types.AgentID]bool{}
	var agents []types.AgentID
	for _, mem := range all {
		if !seen[mem.AgentID] {
			seen[mem.AgentID] = true
			agents = append(agents, mem.AgentID)
		}
	}

	reports := make([]*model.CleanupReport, len(agents))
	eg, ctx := errgroup.WithContext(ctx)
	for i, agentID := range agents {
		eg.Go(func() error {
			report, err := uc.CleanupDuplicates(ctx, agentID, dryRun)
			if err != nil {
				return fmt.Errorf("cleanup for agent %s: %w", agentID, err)
			}
			reports[i] = report
			return nil
		})
	}
	if err := eg.Wait(); err != nil {
		return nil, err
	}

	return reports, nil
}

// Stats reports active and archived record counts.
func (uc *UseCases) Stats(ctx context.Context, agentID types.AgentID) (*model.MemoryStats, error) {
	stats, err := uc.repo.Memory().Stats(ctx, agentID)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to gather stats", goerr.V("agentID", agentID))
	}
	return stats, nil
}
