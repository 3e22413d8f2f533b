package dedup_test

import (
	"context"
	"testing"
	"time"

	"github.com/m-mizutani/gt"
	"github.com/secmon-lab/reasonbank/pkg/domain/model"
	"github.com/secmon-lab/reasonbank/pkg/domain/types"
	"github.com/secmon-lab/reasonbank/pkg/engine/dedup"
	"github.com/secmon-lab/reasonbank/pkg/engine/retrieval"
	"github.com/secmon-lab/reasonbank/pkg/repository/memory"
)

func newDetector(t *testing.T, repo *memory.Repository) *dedup.Detector {
	t.Helper()
	rs := retrieval.NewCosine(repo.Memory())
	d, err := dedup.New(repo.Memory(), rs, dedup.DefaultConfig())
	gt.NoError(t, err).Required()
	return d
}

func putMemory(t *testing.T, repo *memory.Repository, agentID types.AgentID, title string, embedding []float32) *model.Memory {
	t.Helper()
	mem := &model.Memory{
		ID:        model.NewMemoryID(),
		AgentID:   agentID,
		CreatedAt: time.Now().UTC(),
		Success:   true,
		Title:     title,
		Content:   title + " content",
		Embedding: embedding,
	}
	saved, err := repo.Memory().Put(context.Background(), mem)
	gt.NoError(t, err).Required()
	return saved
}

func TestCheckDuplicate(t *testing.T) {
	ctx := context.Background()

	t.Run("detects near-identical memory", func(t *testing.T) {
		repo := memory.New()
		existing := putMemory(t, repo, "agent-a", "retry with backoff", []float32{1, 0, 0})
		d := newDetector(t, repo)

		candidate := &model.Memory{ID: model.NewMemoryID(), AgentID: "agent-a", Title: "retry with backoff"}
		result := d.CheckDuplicate(ctx, candidate, []float32{0.99, 0.05, 0}, "agent-a")
		gt.Bool(t, result.IsDuplicate).True()
		gt.Value(t, result.DuplicateOf).Equal(existing.ID)
		gt.Number(t, result.Score).Greater(0.9)
	})

	t.Run("dissimilar memory passes", func(t *testing.T) {
		repo := memory.New()
		putMemory(t, repo, "agent-a", "retry with backoff", []float32{1, 0, 0})
		d := newDetector(t, repo)

		candidate := &model.Memory{ID: model.NewMemoryID(), AgentID: "agent-a", Title: "parse dates as UTC"}
		result := d.CheckDuplicate(ctx, candidate, []float32{0, 1, 0}, "agent-a")
		gt.Bool(t, result.IsDuplicate).False()
		gt.Value(t, result.DuplicateOf).Equal(model.MemoryID(""))
	})

	t.Run("empty store is never a duplicate", func(t *testing.T) {
		repo := memory.New()
		d := newDetector(t, repo)

		candidate := &model.Memory{ID: model.NewMemoryID(), AgentID: "agent-a"}
		result := d.CheckDuplicate(ctx, candidate, []float32{1, 0, 0}, "agent-a")
		gt.Bool(t, result.IsDuplicate).False()
	})

	t.Run("another agent's identical memory is invisible", func(t *testing.T) {
		repo := memory.New()
		putMemory(t, repo, "agent-b", "retry with backoff", []float32{1, 0, 0})
		d := newDetector(t, repo)

		candidate := &model.Memory{ID: model.NewMemoryID(), AgentID: "agent-a"}
		result := d.CheckDuplicate(ctx, candidate, []float32{1, 0, 0}, "agent-a")
		gt.Bool(t, result.IsDuplicate).False()
	})

	t.Run("missing embedding degrades to not duplicate", func(t *testing.T) {
		repo := memory.New()
		putMemory(t, repo, "agent-a", "retry with backoff", []float32{1, 0, 0})
		d := newDetector(t, repo)

		candidate := &model.Memory{ID: model.NewMemoryID(), AgentID: "agent-a"}
		result := d.CheckDuplicate(ctx, candidate, nil, "agent-a")
		gt.Bool(t, result.IsDuplicate).False()
		gt.Value(t, result.Reason).Equal("no embedding provided")
	})
}

func TestFindDuplicateGroups(t *testing.T) {
	ctx := context.Background()

	t.Run("clusters similar memories", func(t *testing.T) {
		repo := memory.New()
		a1 := putMemory(t, repo, "agent-a", "a1", []float32{1, 0, 0})
		a2 := putMemory(t, repo, "agent-a", "a2", []float32{0.99, 0.01, 0})
		putMemory(t, repo, "agent-a", "lonely", []float32{0, 1, 0})
		b1 := putMemory(t, repo, "agent-a", "b1", []float32{0, 0, 1})
		b2 := putMemory(t, repo, "agent-a", "b2", []float32{0, 0.01, 0.99})
		d := newDetector(t, repo)

		groups, err := d.FindDuplicateGroups(ctx, "agent-a", 0)
		gt.NoError(t, err).Required()
		gt.Array(t, groups).Length(2).Required()
		gt.Value(t, groups[0]).Equal([]model.MemoryID{a1.ID, a2.ID})
		gt.Value(t, groups[1]).Equal([]model.MemoryID{b1.ID, b2.ID})
	})

	t.Run("no memory appears in two groups", func(t *testing.T) {
		repo := memory.New()
		// chain: a~b and b~c but a!~c; greedy pass assigns b to a's group
		putMemory(t, repo, "agent-a", "a", []float32{1, 0, 0})
		putMemory(t, repo, "agent-a", "b", []float32{0.95, 0.3122499, 0})
		putMemory(t, repo, "agent-a", "c", []float32{0.81, 0.5864299, 0})
		d := newDetector(t, repo)

		groups, err := d.FindDuplicateGroups(ctx, "agent-a", 0)
		gt.NoError(t, err).Required()

		seen := map[model.MemoryID]bool{}
		for _, group := range groups {
			gt.Number(t, len(group)).GreaterOrEqual(2)
			for _, id := range group {
				gt.Bool(t, seen[id]).False()
				seen[id] = true
			}
		}
	})

	t.Run("fewer than two records yields nothing", func(t *testing.T) {
		repo := memory.New()
		putMemory(t, repo, "agent-a", "only one", []float32{1, 0, 0})
		d := newDetector(t, repo)

		groups, err := d.FindDuplicateGroups(ctx, "agent-a", 0)
		gt.NoError(t, err).Required()
		gt.Array(t, groups).Length(0)
	})

	t.Run("limit caps the returned groups", func(t *testing.T) {
		repo := memory.New()
		putMemory(t, repo, "agent-a", "a1", []float32{1, 0, 0})
		putMemory(t, repo, "agent-a", "a2", []float32{1, 0, 0})
		putMemory(t, repo, "agent-a", "b1", []float32{0, 0, 1})
		putMemory(t, repo, "agent-a", "b2", []float32{0, 0, 1})
		d := newDetector(t, repo)

		groups, err := d.FindDuplicateGroups(ctx, "agent-a", 1)
		gt.NoError(t, err).Required()
		gt.Array(t, groups).Length(1)
	})
}

func TestConfigValidate(t *testing.T) {
	repo := memory.New()
	rs := retrieval.NewCosine(repo.Memory())

	t.Run("threshold out of range", func(t *testing.T) {
		_, err := dedup.New(repo.Memory(), rs, dedup.Config{Threshold: 1.5, TopKCheck: 1})
		gt.Error(t, err)
	})

	t.Run("top_k_check below one", func(t *testing.T) {
		_, err := dedup.New(repo.Memory(), rs, dedup.Config{Threshold: 0.9, TopKCheck: 0})
		gt.Error(t, err)
	})
}
