// Package usecase orchestrates the memory-consolidation engine: the
// retrieve and extract operations, the per-record management hook that
// drives deduplication and background merges, and the offline
// duplicate cleanup.
package usecase

import (
	"context"
	"sync"

	"github.com/m-mizutani/goerr/v2"
	"github.com/m-mizutani/gollem"
	"github.com/secmon-lab/reasonbank/pkg/domain/interfaces"
	"github.com/secmon-lab/reasonbank/pkg/domain/types"
	"github.com/secmon-lab/reasonbank/pkg/engine/dedup"
	"github.com/secmon-lab/reasonbank/pkg/engine/merge"
	"github.com/secmon-lab/reasonbank/pkg/engine/retrieval"
	"github.com/secmon-lab/reasonbank/pkg/utils/async"
)

// Config holds orchestrator tuning. Zero values are replaced with
// defaults by Validate.
type Config struct {
	DefaultTopK       int     `toml:"default_top_k"`
	MaxTopK           int     `toml:"max_top_k"`
	MinScoreThreshold float64 `toml:"min_score_threshold"`

	DedupOnExtraction bool `toml:"dedup_on_extraction"`

	MergeAutoExecute         bool    `toml:"merge_auto_execute"`
	MergeSimilarityThreshold float64 `toml:"merge_similarity_threshold"`
	MergeMinSimilarCount     int     `toml:"merge_min_similar_count"`
	MergeCandidateLimit      int     `toml:"merge_candidate_limit"`

	MaxMemoriesPerTrajectory int  `toml:"max_memories_per_trajectory"`
	AsyncByDefault           bool `toml:"async_by_default"`
}

// DefaultConfig returns the default orchestrator parameters
func DefaultConfig() Config {
	return Config{
		DefaultTopK:              1,
		MaxTopK:                  10,
		MinScoreThreshold:        0.85,
		DedupOnExtraction:        true,
		MergeAutoExecute:         true,
		MergeSimilarityThreshold: 0.85,
		MergeMinSimilarCount:     3,
		MergeCandidateLimit:      10,
		MaxMemoriesPerTrajectory: 3,
		AsyncByDefault:           true,
	}
}

// Validate fills defaults and rejects inconsistent values
func (c *Config) Validate() error {
	def := DefaultConfig()
	if c.DefaultTopK <= 0 {
		c.DefaultTopK = def.DefaultTopK
	}
	if c.MaxTopK <= 0 {
		c.MaxTopK = def.MaxTopK
	}
	if c.MinScoreThreshold == 0 {
		c.MinScoreThreshold = def.MinScoreThreshold
	}
	if c.MergeSimilarityThreshold == 0 {
		c.MergeSimilarityThreshold = def.MergeSimilarityThreshold
	}
	if c.MergeMinSimilarCount <= 0 {
		c.MergeMinSimilarCount = def.MergeMinSimilarCount
	}
	if c.MergeCandidateLimit <= 0 {
		c.MergeCandidateLimit = def.MergeCandidateLimit
	}
	if c.MaxMemoriesPerTrajectory <= 0 {
		c.MaxMemoriesPerTrajectory = def.MaxMemoriesPerTrajectory
	}

	if c.MergeSimilarityThreshold < 0 || c.MergeSimilarityThreshold > 1 {
		return goerr.New("merge similarity threshold must be in [0, 1]",
			goerr.V("threshold", c.MergeSimilarityThreshold))
	}
	if c.MinScoreThreshold < 0 || c.MinScoreThreshold > 1 {
		return goerr.New("min score threshold must be in [0, 1]",
			goerr.V("threshold", c.MinScoreThreshold))
	}
	return nil
}

// UseCases wires the engines and collaborators. Engines are built once
// at process start and passed in; there are no process-wide registries.
type UseCases struct {
	repo      interfaces.Repository
	llmClient gollem.LLMClient
	retrieval retrieval.Strategy
	dedup     *dedup.Detector
	merge     merge.Strategy
	cfg       Config

	// Per-agent advisory lock guarding the detect-cluster-then-spawn
	// section, so two near-simultaneous extractions cannot trigger
	// merges over overlapping record sets.
	mergeMu   sync.Mutex
	mergeBusy map[types.AgentID]bool

	// dispatch runs background work; replaced in tests to run inline
	dispatch func(ctx context.Context, handler func(ctx context.Context) error)
}

// Option configures UseCases
type Option func(*UseCases)

// WithLLMClient sets the LLM/embedding collaborator. Without it,
// retrieval by text, extraction, and LLM merge are unavailable.
func WithLLMClient(client gollem.LLMClient) Option {
	return func(uc *UseCases) {
		uc.llmClient = client
	}
}

// WithConfig overrides the orchestrator tuning
func WithConfig(cfg Config) Option {
	return func(uc *UseCases) {
		uc.cfg = cfg
	}
}

// New creates the use case layer from its engines
func New(repo interfaces.Repository, rs retrieval.Strategy, dd *dedup.Detector, ms merge.Strategy, opts ...Option) (*UseCases, error) {
	uc := &UseCases{
		repo:      repo,
		retrieval: rs,
		dedup:     dd,
		merge:     ms,
		cfg:       DefaultConfig(),
		mergeBusy: make(map[types.AgentID]bool),
		dispatch:  async.Dispatch,
	}
	for _, opt := range opts {
		opt(uc)
	}
	if err := uc.cfg.Validate(); err != nil {
		return nil, err
	}
	return uc, nil
}
