package repository_test

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/m-mizutani/gt"
	"github.com/secmon-lab/reasonbank/pkg/domain/interfaces"
	"github.com/secmon-lab/reasonbank/pkg/domain/model"
	"github.com/secmon-lab/reasonbank/pkg/domain/types"
	"github.com/secmon-lab/reasonbank/pkg/repository/chromem"
	"github.com/secmon-lab/reasonbank/pkg/repository/firestore"
	"github.com/secmon-lab/reasonbank/pkg/repository/memory"
)

func testEmbedding(seed float32) []float32 {
	vec := make([]float32, model.EmbeddingDimension)
	vec[0] = seed
	vec[1] = 1 - seed
	return vec
}

func runMemoryRepositoryTest(t *testing.T, newRepo func(t *testing.T) interfaces.Repository) {
	t.Helper()

	newMemory := func(agentID, title string, success bool) *model.Memory {
		return &model.Memory{
			ID:          model.NewMemoryID(),
			AgentID:     types.AgentID(agentID),
			CreatedAt:   time.Now().UTC().Truncate(time.Millisecond),
			Success:     success,
			Title:       title,
			Description: title + " description",
			Content:     title + " content",
			Query:       "task for " + title,
			Embedding:   testEmbedding(0.5),
		}
	}

	t.Run("Put and Get roundtrip", func(t *testing.T) {
		repo := newRepo(t)
		ctx := context.Background()

		mem := newMemory("agent-put", "first memory", true)
		created, err := repo.Memory().Put(ctx, mem)
		gt.NoError(t, err).Required()
		gt.Value(t, created.ID).Equal(mem.ID)

		got, err := repo.Memory().Get(ctx, mem.ID)
		gt.NoError(t, err).Required()
		gt.Value(t, got.Title).Equal(mem.Title)
		gt.Value(t, got.AgentID).Equal(mem.AgentID)
		gt.Bool(t, got.Success).True()
	})

	t.Run("Put assigns missing ID", func(t *testing.T) {
		repo := newRepo(t)
		ctx := context.Background()

		mem := newMemory("agent-noid", "no id", true)
		mem.ID = ""
		created, err := repo.Memory().Put(ctx, mem)
		gt.NoError(t, err).Required()
		gt.Value(t, created.ID).NotEqual(model.MemoryID(""))
	})

	t.Run("Get unknown ID fails", func(t *testing.T) {
		repo := newRepo(t)
		_, err := repo.Memory().Get(context.Background(), model.NewMemoryID())
		gt.Error(t, err)
	})

	t.Run("List scopes by agent", func(t *testing.T) {
		repo := newRepo(t)
		ctx := context.Background()

		_, err := repo.Memory().Put(ctx, newMemory("agent-list-a", "a1", true))
		gt.NoError(t, err).Required()
		_, err = repo.Memory().Put(ctx, newMemory("agent-list-a", "a2", false))
		gt.NoError(t, err).Required()
		_, err = repo.Memory().Put(ctx, newMemory("agent-list-b", "b1", true))
		gt.NoError(t, err).Required()

		listed, err := repo.Memory().List(ctx, "agent-list-a")
		gt.NoError(t, err).Required()
		gt.Array(t, listed).Length(2)
		for _, mem := range listed {
			gt.Value(t, string(mem.AgentID)).Equal("agent-list-a")
		}
	})

	t.Run("List returns records in creation order", func(t *testing.T) {
		repo := newRepo(t)
		ctx := context.Background()

		base := time.Now().UTC().Truncate(time.Millisecond).Add(-time.Hour)
		for i, title := range []string{"oldest", "middle", "newest"} {
			mem := newMemory("agent-order", title, true)
			mem.CreatedAt = base.Add(time.Duration(i) * time.Minute)
			_, err := repo.Memory().Put(ctx, mem)
			gt.NoError(t, err).Required()
		}

		listed, err := repo.Memory().List(ctx, "agent-order")
		gt.NoError(t, err).Required()
		gt.Array(t, listed).Length(3).Required()
		gt.Value(t, listed[0].Title).Equal("oldest")
		gt.Value(t, listed[1].Title).Equal("middle")
		gt.Value(t, listed[2].Title).Equal("newest")
	})

	t.Run("ListVectors skips unknown IDs", func(t *testing.T) {
		repo := newRepo(t)
		ctx := context.Background()

		mem := newMemory("agent-vec", "with vector", true)
		_, err := repo.Memory().Put(ctx, mem)
		gt.NoError(t, err).Required()

		vectors, err := repo.Memory().ListVectors(ctx, []model.MemoryID{mem.ID, model.NewMemoryID()})
		gt.NoError(t, err).Required()
		gt.Number(t, len(vectors)).Equal(1)
		gt.Array(t, vectors[mem.ID]).Length(model.EmbeddingDimension)
	})

	t.Run("BumpRetrievalStats increments usage", func(t *testing.T) {
		repo := newRepo(t)
		ctx := context.Background()

		mem := newMemory("agent-bump", "bumped", true)
		_, err := repo.Memory().Put(ctx, mem)
		gt.NoError(t, err).Required()

		retrievedAt := time.Now().UTC().Truncate(time.Millisecond)
		gt.NoError(t, repo.Memory().BumpRetrievalStats(ctx, mem.ID, retrievedAt)).Required()
		gt.NoError(t, repo.Memory().BumpRetrievalStats(ctx, mem.ID, retrievedAt)).Required()

		got, err := repo.Memory().Get(ctx, mem.ID)
		gt.NoError(t, err).Required()
		gt.Number(t, got.RetrievalCount).Equal(2)
		gt.Bool(t, got.LastRetrieved != nil).True()
	})

	t.Run("SaveBatch persists all records", func(t *testing.T) {
		repo := newRepo(t)
		ctx := context.Background()

		batch := []*model.Memory{
			newMemory("agent-batch", "one", true),
			newMemory("agent-batch", "two", false),
			newMemory("agent-batch", "three", true),
		}
		gt.NoError(t, repo.Memory().SaveBatch(ctx, batch)).Required()

		listed, err := repo.Memory().List(ctx, "agent-batch")
		gt.NoError(t, err).Required()
		gt.Array(t, listed).Length(3)
	})

	t.Run("Archive excludes record from retrieval path but keeps provenance", func(t *testing.T) {
		repo := newRepo(t)
		ctx := context.Background()

		mem := newMemory("agent-archive", "superseded", true)
		_, err := repo.Memory().Put(ctx, mem)
		gt.NoError(t, err).Required()

		mergedInto := model.NewMemoryID()
		archived := mem.Clone()
		archived.Archived = true
		now := time.Now().UTC().Truncate(time.Millisecond)
		archived.ArchivedAt = &now
		archived.ArchivedReason = "merged"
		archived.MergedInto = mergedInto

		gt.NoError(t, repo.Memory().Archive(ctx, []*model.Memory{archived})).Required()
		deleted, err := repo.Memory().Delete(ctx, []model.MemoryID{mem.ID}, mem.AgentID)
		gt.NoError(t, err).Required()
		gt.Number(t, deleted).Equal(1)

		_, err = repo.Memory().Get(ctx, mem.ID)
		gt.Error(t, err)

		fromArchive, err := repo.Memory().GetArchived(ctx, mem.ID)
		gt.NoError(t, err).Required()
		gt.Bool(t, fromArchive.Archived).True()
		gt.Value(t, fromArchive.ArchivedReason).Equal("merged")
		gt.Value(t, fromArchive.MergedInto).Equal(mergedInto)

		listed, err := repo.Memory().List(ctx, "agent-archive")
		gt.NoError(t, err).Required()
		gt.Array(t, listed).Length(0)
	})

	t.Run("Delete skips other agents' records", func(t *testing.T) {
		repo := newRepo(t)
		ctx := context.Background()

		mine := newMemory("agent-del-a", "mine", true)
		theirs := newMemory("agent-del-b", "theirs", true)
		_, err := repo.Memory().Put(ctx, mine)
		gt.NoError(t, err).Required()
		_, err = repo.Memory().Put(ctx, theirs)
		gt.NoError(t, err).Required()

		deleted, err := repo.Memory().Delete(ctx, []model.MemoryID{mine.ID, theirs.ID}, "agent-del-a")
		gt.NoError(t, err).Required()
		gt.Number(t, deleted).Equal(1)

		_, err = repo.Memory().Get(ctx, theirs.ID)
		gt.NoError(t, err)
	})

	t.Run("Stats counts outcomes per agent", func(t *testing.T) {
		repo := newRepo(t)
		ctx := context.Background()

		_, err := repo.Memory().Put(ctx, newMemory("agent-stats", "win", true))
		gt.NoError(t, err).Required()
		_, err = repo.Memory().Put(ctx, newMemory("agent-stats", "loss", false))
		gt.NoError(t, err).Required()
		_, err = repo.Memory().Put(ctx, newMemory("agent-stats-other", "noise", true))
		gt.NoError(t, err).Required()

		stats, err := repo.Memory().Stats(ctx, "agent-stats")
		gt.NoError(t, err).Required()
		gt.Number(t, stats.Total).Equal(2)
		gt.Number(t, stats.SuccessCount).Equal(1)
		gt.Number(t, stats.FailureCount).Equal(1)
	})
}

func TestMemoryRepository_Memory(t *testing.T) {
	runMemoryRepositoryTest(t, func(t *testing.T) interfaces.Repository {
		return memory.New()
	})
}

func TestMemoryRepository_Chromem(t *testing.T) {
	runMemoryRepositoryTest(t, func(t *testing.T) interfaces.Repository {
		repo, err := chromem.New()
		gt.NoError(t, err).Required()
		return repo
	})
}

func TestMemoryRepository_Firestore(t *testing.T) {
	projectID := os.Getenv("FIRESTORE_PROJECT_ID")
	if projectID == "" {
		t.Skip("FIRESTORE_PROJECT_ID not set")
	}

	runMemoryRepositoryTest(t, func(t *testing.T) interfaces.Repository {
		repo, err := firestore.New(context.Background(), projectID, "",
			firestore.WithCollectionPrefix("test_"+uuid.NewString()[:8]+"_"),
		)
		gt.NoError(t, err).Required()
		return repo
	})
}
