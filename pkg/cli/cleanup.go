package cli

import (
	"context"
	"os"

	"github.com/fatih/color"
	"github.com/m-mizutani/goerr/v2"

	"github.com/secmon-lab/reasonbank/pkg/cli/config"
	"github.com/secmon-lab/reasonbank/pkg/domain/model"
	"github.com/secmon-lab/reasonbank/pkg/domain/types"
	"github.com/secmon-lab/reasonbank/pkg/usecase"
	"github.com/secmon-lab/reasonbank/pkg/utils/logging"
	"github.com/urfave/cli/v3"
)

func cmdCleanup() *cli.Command {
	var agentID string
	var dryRun bool
	var repoCfg config.Repository
	var engineCfg config.Engine

	flags := []cli.Flag{
		&cli.StringFlag{
			Name:        "agent-id",
			Usage:       "Restrict cleanup to one agent (all agents when omitted)",
			Sources:     cli.EnvVars("REASONBANK_AGENT_ID"),
			Destination: &agentID,
		},
		&cli.BoolFlag{
			Name:        "dry-run",
			Usage:       "Report duplicate groups without deleting anything",
			Value:       true,
			Sources:     cli.EnvVars("REASONBANK_CLEANUP_DRY_RUN"),
			Destination: &dryRun,
		},
	}
	flags = append(flags, repoCfg.Flags()...)
	flags = append(flags, engineCfg.Flags()...)

	return &cli.Command{
		Name:  "cleanup",
		Usage: "Find and remove duplicate memories",
		Flags: flags,
		Action: func(ctx context.Context, c *cli.Command) error {
			repo, err := repoCfg.Configure(ctx)
			if err != nil {
				return goerr.Wrap(err, "failed to initialize repository")
			}
			defer func() {
				if err := repo.Close(); err != nil {
					logging.Default().Error("failed to close repository", "error", err.Error())
				}
			}()

			engines, err := engineCfg.Configure(ctx, repo.Memory(), nil)
			if err != nil {
				return goerr.Wrap(err, "failed to configure engines")
			}

			uc, err := usecase.New(repo, engines.Retrieval, engines.Dedup, engines.Merge,
				usecase.WithConfig(engines.Manager),
			)
			if err != nil {
				return goerr.Wrap(err, "failed to build use cases")
			}

			var reports []*model.CleanupReport
			if agentID != "" {
				id := types.AgentID(agentID)
				if err := id.Validate(); err != nil {
					return err
				}
				report, err := uc.CleanupDuplicates(ctx, id, dryRun)
				if err != nil {
					return err
				}
				reports = []*model.CleanupReport{report}
			} else {
				reports, err = uc.CleanupAll(ctx, dryRun)
				if err != nil {
					return err
				}
			}

			printCleanupReports(reports, dryRun)
			return nil
		},
	}
}

func printCleanupReports(reports []*model.CleanupReport, dryRun bool) {
	bold := color.New(color.Bold)
	green := color.New(color.FgGreen)
	yellow := color.New(color.FgYellow)
	red := color.New(color.FgRed)

	if dryRun {
		yellow.Fprintln(os.Stdout, "dry run: no memories were deleted")
	}

	totalGroups := 0
	totalDeleted := 0
	for _, report := range reports {
		agent := string(report.AgentID)
		if agent == "" {
			agent = "(no agent)"
		}
		bold.Fprintf(os.Stdout, "agent %s\n", agent)

		if report.DuplicateGroups == 0 {
			green.Fprintln(os.Stdout, "  no duplicates found")
			continue
		}

		yellow.Fprintf(os.Stdout, "  %d duplicate group(s): keep %d, remove %d\n",
			report.DuplicateGroups, report.ToKeep, report.ToDelete)
		if !dryRun {
			red.Fprintf(os.Stdout, "  deleted %d memories\n", len(report.DeletedIDs))
			totalDeleted += len(report.DeletedIDs)
		}
		totalGroups += report.DuplicateGroups
	}

	bold.Fprintf(os.Stdout, "total: %d group(s)", totalGroups)
	if !dryRun {
		bold.Fprintf(os.Stdout, ", %d deleted", totalDeleted)
	}
	bold.Fprintln(os.Stdout)
}
