// Package merge consolidates a group of similar memories into one
// record: either by selecting a representative (voting) or by
// synthesizing a more abstract record through an LLM call.
package merge

import (
	"context"

	"github.com/m-mizutani/goerr/v2"
	"github.com/m-mizutani/gollem"
	"github.com/secmon-lab/reasonbank/pkg/domain/model"
	"github.com/secmon-lab/reasonbank/pkg/domain/types"
)

// Sentinel errors for merge input validation
var (
	ErrEmptyGroup      = goerr.New("cannot merge empty memory group")
	ErrMixedAgentGroup = goerr.New("memory group contains records of a different agent")
)

// Strategy consolidates a group of same-agent memories. ShouldMerge is
// a cheap predicate that must reject mixed-agent input by returning
// false; Merge must raise on mixed-agent or empty input.
type Strategy interface {
	Name() string
	ShouldMerge(ctx context.Context, group []*model.Memory, agentID types.AgentID) bool
	Merge(ctx context.Context, group []*model.Memory, agentID types.AgentID) (*model.MergeResult, error)
}

// Config holds tuning for the merge strategy family
type Config struct {
	VotingMinGroupSize int     `toml:"voting_min_group_size"`
	LLMMinGroupSize    int     `toml:"llm_min_group_size"`
	LLMMinSuccessRate  float64 `toml:"llm_min_success_rate"`
}

// DefaultConfig returns the default merge parameters
func DefaultConfig() Config {
	return Config{
		VotingMinGroupSize: 2,
		LLMMinGroupSize:    3,
		LLMMinSuccessRate:  0.6,
	}
}

// Factory constructs a merge Strategy
type Factory func(cfg Config, llmClient gollem.LLMClient) (Strategy, error)

var factories = map[string]Factory{
	"voting": func(cfg Config, _ gollem.LLMClient) (Strategy, error) {
		return NewVoting(cfg.VotingMinGroupSize), nil
	},
	"llm": func(cfg Config, llmClient gollem.LLMClient) (Strategy, error) {
		if llmClient == nil {
			return nil, goerr.New("llm merge strategy requires an LLM client")
		}
		return NewLLM(llmClient, cfg.LLMMinGroupSize, cfg.LLMMinSuccessRate), nil
	},
}

// New builds the named merge strategy. Unknown names fail fast.
func New(name string, cfg Config, llmClient gollem.LLMClient) (Strategy, error) {
	factory, ok := factories[name]
	if !ok {
		return nil, goerr.New("unknown merge strategy", goerr.V("strategy", name))
	}
	return factory(cfg, llmClient)
}

// validateGroup checks agent homogeneity of a merge group
func validateGroup(group []*model.Memory, agentID types.AgentID) error {
	if len(group) == 0 {
		return ErrEmptyGroup
	}
	if agentID == "" {
		return nil
	}
	for _, mem := range group {
		if mem.AgentID != agentID {
			return goerr.Wrap(ErrMixedAgentGroup, "agent mismatch in merge group",
				goerr.V("memoryID", mem.ID),
				goerr.V("memoryAgentID", mem.AgentID),
				goerr.V("agentID", agentID),
			)
		}
	}
	return nil
}
