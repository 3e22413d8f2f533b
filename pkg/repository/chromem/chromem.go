// Package chromem provides a repository backend on top of chromem-go,
// an embedded vector database. Like the in-memory backend it holds all
// data in process, but stores records as vector documents, which keeps
// the document/vector pairing in one place.
package chromem

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/m-mizutani/goerr/v2"
	chromem "github.com/philippgille/chromem-go"
	"github.com/secmon-lab/reasonbank/pkg/domain/interfaces"
	"github.com/secmon-lab/reasonbank/pkg/domain/model"
	"github.com/secmon-lab/reasonbank/pkg/domain/types"
)

// ErrNotFound is returned when a requested record does not exist
var ErrNotFound = goerr.New("not found")

// Repository is the chromem-go implementation of interfaces.Repository
type Repository struct {
	memory *memoryRepository
}

var _ interfaces.Repository = &Repository{}

// New creates a chromem repository
func New() (*Repository, error) {
	db := chromem.NewDB()
	active, err := db.GetOrCreateCollection("memories", nil, nil)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to create memories collection")
	}
	archive, err := db.GetOrCreateCollection("memories_archive", nil, nil)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to create archive collection")
	}

	return &Repository{
		memory: &memoryRepository{
			active:  active,
			archive: archive,
			owner:   make(map[model.MemoryID]types.AgentID),
		},
	}, nil
}

// Memory returns the memory record repository
func (r *Repository) Memory() interfaces.MemoryRepository {
	return r.memory
}

// Close is a no-op; chromem flushes writes synchronously
func (r *Repository) Close() error {
	return nil
}

// memoryRepository stores each record as one chromem document: the
// record JSON as content, the vector as the document embedding, and
// the agent ID as filterable metadata. An insertion-order ID index is
// kept on the side because chromem has no list operation.
type memoryRepository struct {
	active  *chromem.Collection
	archive *chromem.Collection

	mu    sync.RWMutex
	order []model.MemoryID
	owner map[model.MemoryID]types.AgentID
}

func toDocument(mem *model.Memory) (chromem.Document, error) {
	content, err := json.Marshal(mem)
	if err != nil {
		return chromem.Document{}, goerr.Wrap(err, "failed to marshal memory", goerr.V("memoryID", mem.ID))
	}

	return chromem.Document{
		ID:      mem.ID.String(),
		Content: string(content),
		Metadata: map[string]string{
			"agent_id":   mem.AgentID.String(),
			"created_at": mem.CreatedAt.UTC().Format(time.RFC3339Nano),
		},
		Embedding: mem.Embedding,
	}, nil
}

func fromDocument(doc chromem.Document) (*model.Memory, error) {
	var mem model.Memory
	if err := json.Unmarshal([]byte(doc.Content), &mem); err != nil {
		return nil, goerr.Wrap(err, "failed to unmarshal memory document", goerr.V("documentID", doc.ID))
	}
	if len(doc.Embedding) > 0 {
		mem.Embedding = make([]float32, len(doc.Embedding))
		copy(mem.Embedding, doc.Embedding)
	}
	return &mem, nil
}

func (r *memoryRepository) Put(ctx context.Context, mem *model.Memory) (*model.Memory, error) {
	created := mem.Clone()
	if created.ID == "" {
		created.ID = model.NewMemoryID()
	}
	if created.CreatedAt.IsZero() {
		created.CreatedAt = time.Now().UTC()
	}

	doc, err := toDocument(created)
	if err != nil {
		return nil, err
	}
	if err := r.active.AddDocument(ctx, doc); err != nil {
		return nil, goerr.Wrap(err, "failed to add memory document", goerr.V("memoryID", created.ID))
	}

	r.mu.Lock()
	if _, exists := r.owner[created.ID]; !exists {
		r.order = append(r.order, created.ID)
	}
	r.owner[created.ID] = created.AgentID
	r.mu.Unlock()

	return created, nil
}

func (r *memoryRepository) Get(ctx context.Context, memoryID model.MemoryID) (*model.Memory, error) {
	doc, err := r.active.GetByID(ctx, memoryID.String())
	if err != nil {
		return nil, goerr.Wrap(ErrNotFound, "memory not found", goerr.V("memoryID", memoryID))
	}
	return fromDocument(doc)
}

func (r *memoryRepository) GetArchived(ctx context.Context, memoryID model.MemoryID) (*model.Memory, error) {
	doc, err := r.archive.GetByID(ctx, memoryID.String())
	if err != nil {
		return nil, goerr.Wrap(ErrNotFound, "archived memory not found", goerr.V("memoryID", memoryID))
	}
	return fromDocument(doc)
}

func (r *memoryRepository) List(ctx context.Context, agentID types.AgentID) ([]*model.Memory, error) {
	r.mu.RLock()
	ids := make([]model.MemoryID, 0, len(r.order))
	for _, id := range r.order {
		if agentID != "" && r.owner[id] != agentID {
			continue
		}
		ids = append(ids, id)
	}
	r.mu.RUnlock()

	result := make([]*model.Memory, 0, len(ids))
	for _, id := range ids {
		mem, err := r.Get(ctx, id)
		if err != nil {
			continue
		}
		result = append(result, mem)
	}
	return result, nil
}

func (r *memoryRepository) ListVectors(ctx context.Context, memoryIDs []model.MemoryID) (map[model.MemoryID][]float32, error) {
	result := make(map[model.MemoryID][]float32, len(memoryIDs))
	for _, id := range memoryIDs {
		doc, err := r.active.GetByID(ctx, id.String())
		if err != nil || len(doc.Embedding) == 0 {
			continue
		}
		vec := make([]float32, len(doc.Embedding))
		copy(vec, doc.Embedding)
		result[id] = vec
	}
	return result, nil
}

func (r *memoryRepository) BumpRetrievalStats(ctx context.Context, memoryID model.MemoryID, retrievedAt time.Time) error {
	mem, err := r.Get(ctx, memoryID)
	if err != nil {
		return err
	}

	mem.RetrievalCount++
	t := retrievedAt
	mem.LastRetrieved = &t

	doc, err := toDocument(mem)
	if err != nil {
		return err
	}
	if err := r.active.AddDocument(ctx, doc); err != nil {
		return goerr.Wrap(err, "failed to update memory document", goerr.V("memoryID", memoryID))
	}
	return nil
}

func (r *memoryRepository) SaveBatch(ctx context.Context, memories []*model.Memory) error {
	for _, mem := range memories {
		if _, err := r.Put(ctx, mem); err != nil {
			return err
		}
	}
	return nil
}

func (r *memoryRepository) Archive(ctx context.Context, memories []*model.Memory) error {
	for _, mem := range memories {
		doc, err := toDocument(mem)
		if err != nil {
			return err
		}
		if err := r.archive.AddDocument(ctx, doc); err != nil {
			return goerr.Wrap(err, "failed to archive memory document", goerr.V("memoryID", mem.ID))
		}
	}
	return nil
}

func (r *memoryRepository) Delete(ctx context.Context, memoryIDs []model.MemoryID, agentID types.AgentID) (int, error) {
	deleted := 0
	for _, id := range memoryIDs {
		r.mu.RLock()
		owner, exists := r.owner[id]
		r.mu.RUnlock()
		if !exists {
			continue
		}
		if agentID != "" && owner != agentID {
			continue
		}

		if err := r.active.Delete(ctx, nil, nil, id.String()); err != nil {
			return deleted, goerr.Wrap(err, "failed to delete memory document", goerr.V("memoryID", id))
		}

		r.mu.Lock()
		delete(r.owner, id)
		remaining := r.order[:0]
		for _, oid := range r.order {
			if oid != id {
				remaining = append(remaining, oid)
			}
		}
		r.order = remaining
		r.mu.Unlock()
		deleted++
	}
	return deleted, nil
}

func (r *memoryRepository) Stats(ctx context.Context, agentID types.AgentID) (*model.MemoryStats, error) {
	memories, err := r.List(ctx, agentID)
	if err != nil {
		return nil, err
	}

	stats := &model.MemoryStats{}
	for _, mem := range memories {
		stats.Total++
		if mem.Success {
			stats.SuccessCount++
		} else {
			stats.FailureCount++
		}
	}
	return stats, nil
}
