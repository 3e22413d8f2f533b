package config

import (
	"context"
	"os"

	"github.com/m-mizutani/goerr/v2"
	"github.com/m-mizutani/gollem"
	"github.com/pelletier/go-toml/v2"
	"github.com/secmon-lab/reasonbank/pkg/domain/interfaces"
	"github.com/secmon-lab/reasonbank/pkg/engine/dedup"
	"github.com/secmon-lab/reasonbank/pkg/engine/merge"
	"github.com/secmon-lab/reasonbank/pkg/engine/retrieval"
	"github.com/secmon-lab/reasonbank/pkg/usecase"
	"github.com/secmon-lab/reasonbank/pkg/utils/logging"
	"github.com/urfave/cli/v3"
)

// Engine holds CLI flags selecting the scoring/merge strategies and an
// optional TOML tuning file for their parameters.
type Engine struct {
	retrievalStrategy string
	mergeStrategy     string
	tuningPath        string
}

// Flags returns CLI flags for engine configuration
func (e *Engine) Flags() []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{
			Name:        "retrieval-strategy",
			Usage:       "Retrieval scoring strategy (cosine or hybrid)",
			Value:       "hybrid",
			Sources:     cli.EnvVars("REASONBANK_RETRIEVAL_STRATEGY"),
			Destination: &e.retrievalStrategy,
		},
		&cli.StringFlag{
			Name:        "merge-strategy",
			Usage:       "Memory merge strategy (voting or llm)",
			Value:       "llm",
			Sources:     cli.EnvVars("REASONBANK_MERGE_STRATEGY"),
			Destination: &e.mergeStrategy,
		},
		&cli.StringFlag{
			Name:        "engine-config",
			Usage:       "Path to a TOML file tuning engine thresholds and weights",
			Sources:     cli.EnvVars("REASONBANK_ENGINE_CONFIG"),
			Destination: &e.tuningPath,
		},
	}
}

// tuning is the TOML layout of the engine configuration file. Absent
// sections keep their defaults.
type tuning struct {
	Hybrid  retrieval.HybridConfig `toml:"hybrid"`
	Dedup   dedup.Config           `toml:"dedup"`
	Merge   merge.Config           `toml:"merge"`
	Manager usecase.Config         `toml:"manager"`
}

func (e *Engine) loadTuning() (*tuning, error) {
	t := &tuning{
		Hybrid:  retrieval.DefaultHybridConfig(),
		Dedup:   dedup.DefaultConfig(),
		Merge:   merge.DefaultConfig(),
		Manager: usecase.DefaultConfig(),
	}
	if e.tuningPath == "" {
		return t, nil
	}

	data, err := os.ReadFile(e.tuningPath)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to read engine config file", goerr.V("path", e.tuningPath))
	}
	if err := toml.Unmarshal(data, t); err != nil {
		return nil, goerr.Wrap(err, "failed to parse engine config TOML", goerr.V("path", e.tuningPath))
	}
	return t, nil
}

// Engines bundles the constructed engines plus the orchestrator config
type Engines struct {
	Retrieval retrieval.Strategy
	Dedup     *dedup.Detector
	Merge     merge.Strategy
	Manager   usecase.Config
}

// Configure builds the engines from the flags and tuning file. Unknown
// strategy names and out-of-range parameters fail here, before anything
// starts serving. An "llm" merge strategy without an LLM client falls
// back to voting.
func (e *Engine) Configure(ctx context.Context, repo interfaces.MemoryRepository, llmClient gollem.LLMClient) (*Engines, error) {
	t, err := e.loadTuning()
	if err != nil {
		return nil, err
	}
	if err := t.Manager.Validate(); err != nil {
		return nil, goerr.Wrap(err, "invalid manager configuration")
	}

	rs, err := retrieval.New(e.retrievalStrategy, repo, &retrieval.Config{Hybrid: t.Hybrid})
	if err != nil {
		return nil, err
	}

	dd, err := dedup.New(repo, rs, t.Dedup)
	if err != nil {
		return nil, err
	}

	mergeName := e.mergeStrategy
	if mergeName == "llm" && llmClient == nil {
		logging.Default().Warn("LLM client not configured, falling back to voting merge strategy")
		mergeName = "voting"
	}
	ms, err := merge.New(mergeName, t.Merge, llmClient)
	if err != nil {
		return nil, err
	}

	logging.Default().Info("Engines configured",
		"retrieval", rs.Name(),
		"merge", ms.Name(),
		"tuning_file", e.tuningPath,
	)

	return &Engines{
		Retrieval: rs,
		Dedup:     dd,
		Merge:     ms,
		Manager:   t.Manager,
	}, nil
}
