// Package retrieval ranks stored memories against a query vector.
// Strategies are interchangeable and selected by configuration name at
// boot; unknown names are rejected at construction time.
package retrieval

import (
	"context"

	"github.com/m-mizutani/goerr/v2"
	"github.com/secmon-lab/reasonbank/pkg/domain/interfaces"
	"github.com/secmon-lab/reasonbank/pkg/domain/model"
	"github.com/secmon-lab/reasonbank/pkg/domain/types"
)

// Strategy ranks an agent's memories against a query vector. The
// returned list is ordered by score descending and has at most topK
// entries. Records without a stored embedding are silently excluded.
// Ties are broken by stable input order only; callers must not rely on
// any secondary ordering beyond determinism for identical input.
type Strategy interface {
	Name() string
	Retrieve(ctx context.Context, query string, queryVec []float32, topK int, agentID types.AgentID) ([]model.ScoredMemory, error)
}

// Factory constructs a Strategy bound to a repository
type Factory func(repo interfaces.MemoryRepository, cfg *Config) Strategy

var factories = map[string]Factory{
	"cosine": func(repo interfaces.MemoryRepository, _ *Config) Strategy {
		return NewCosine(repo)
	},
	"hybrid": func(repo interfaces.MemoryRepository, cfg *Config) Strategy {
		return NewHybrid(repo, cfg.Hybrid)
	},
}

// Config holds tuning for the retrieval strategy family
type Config struct {
	Hybrid HybridConfig
}

// New builds the named retrieval strategy. Unknown names fail fast.
func New(name string, repo interfaces.MemoryRepository, cfg *Config) (Strategy, error) {
	factory, ok := factories[name]
	if !ok {
		return nil, goerr.New("unknown retrieval strategy", goerr.V("strategy", name))
	}
	if cfg == nil {
		cfg = &Config{Hybrid: DefaultHybridConfig()}
	}
	return factory(repo, cfg), nil
}
