package config_test

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/m-mizutani/gt"
	"github.com/secmon-lab/reasonbank/pkg/cli/config"
	"github.com/secmon-lab/reasonbank/pkg/repository/memory"
)

func TestEngineConfigure(t *testing.T) {
	ctx := context.Background()
	repo := memory.New()

	t.Run("defaults build hybrid retrieval with voting fallback", func(t *testing.T) {
		var cfg config.Engine
		cfg.SetEngineFlags("hybrid", "llm", "")

		engines, err := cfg.Configure(ctx, repo.Memory(), nil)
		gt.NoError(t, err).Required()
		gt.Value(t, engines.Retrieval.Name()).Equal("hybrid")
		// no LLM client: llm strategy degrades to voting
		gt.Value(t, engines.Merge.Name()).Equal("voting")
		gt.Number(t, engines.Manager.MergeMinSimilarCount).Equal(3)
	})

	t.Run("unknown retrieval strategy fails at boot", func(t *testing.T) {
		var cfg config.Engine
		cfg.SetEngineFlags("bm25", "voting", "")

		_, err := cfg.Configure(ctx, repo.Memory(), nil)
		gt.Error(t, err)
	})

	t.Run("tuning file overrides thresholds", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "engine.toml")
		gt.NoError(t, os.WriteFile(path, []byte(`
[hybrid]
semantic = 0.8
confidence = 0.1
success = 0.05
recency = 0.05
time_decay_halflife = 14

[dedup]
threshold = 0.95
top_k_check = 2

[manager]
merge_min_similar_count = 5
min_score_threshold = 0.7
`), 0600)).Required()

		var cfg config.Engine
		cfg.SetEngineFlags("hybrid", "voting", path)

		engines, err := cfg.Configure(ctx, repo.Memory(), nil)
		gt.NoError(t, err).Required()
		gt.Number(t, engines.Manager.MergeMinSimilarCount).Equal(5)
		gt.Number(t, engines.Manager.MinScoreThreshold).Equal(0.7)
		// unset sections keep their defaults
		gt.Number(t, engines.Manager.MaxTopK).Equal(10)
	})

	t.Run("out-of-range tuning fails at boot", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "engine.toml")
		gt.NoError(t, os.WriteFile(path, []byte(`
[dedup]
threshold = 1.5
`), 0600)).Required()

		var cfg config.Engine
		cfg.SetEngineFlags("cosine", "voting", path)

		_, err := cfg.Configure(ctx, repo.Memory(), nil)
		gt.Error(t, err)
	})

	t.Run("missing tuning file fails", func(t *testing.T) {
		var cfg config.Engine
		cfg.SetEngineFlags("cosine", "voting", "/does/not/exist.toml")

		_, err := cfg.Configure(ctx, repo.Memory(), nil)
		gt.Error(t, err)
	})
}

func TestRepositoryConfigure(t *testing.T) {
	ctx := context.Background()

	t.Run("memory backend", func(t *testing.T) {
		var cfg config.Repository
		cfg.SetBackend("memory")

		repo, err := cfg.Configure(ctx)
		gt.NoError(t, err).Required()
		gt.NoError(t, repo.Close())
	})

	t.Run("chromem backend", func(t *testing.T) {
		var cfg config.Repository
		cfg.SetBackend("chromem")

		repo, err := cfg.Configure(ctx)
		gt.NoError(t, err).Required()
		gt.NoError(t, repo.Close())
	})

	t.Run("firestore without project fails", func(t *testing.T) {
		var cfg config.Repository
		cfg.SetBackend("firestore")

		_, err := cfg.Configure(ctx)
		gt.Error(t, err)
	})

	t.Run("unknown backend fails", func(t *testing.T) {
		var cfg config.Repository
		cfg.SetBackend("postgres")

		_, err := cfg.Configure(ctx)
		gt.Error(t, err)
	})
}
