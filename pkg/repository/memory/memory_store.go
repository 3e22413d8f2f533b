package memory

import (
	"context"
	"sync"
	"time"

	"github.com/m-mizutani/goerr/v2"
	"github.com/secmon-lab/reasonbank/pkg/domain/model"
	"github.com/secmon-lab/reasonbank/pkg/domain/types"
)

// memoryRepository keeps active records in insertion order so that
// list-based operations (greedy clustering, tie breaking) are
// deterministic across calls.
type memoryRepository struct {
	mu      sync.RWMutex
	entries map[model.MemoryID]*model.Memory
	order   []model.MemoryID
	archive map[model.MemoryID]*model.Memory
}

func newMemoryRepository() *memoryRepository {
	return &memoryRepository{
		entries: make(map[model.MemoryID]*model.Memory),
		archive: make(map[model.MemoryID]*model.Memory),
	}
}

func (r *memoryRepository) Put(ctx context.Context, mem *model.Memory) (*model.Memory, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	created := mem.Clone()
	if created.ID == "" {
		created.ID = model.NewMemoryID()
	}
	if created.CreatedAt.IsZero() {
		created.CreatedAt = time.Now().UTC()
	}

	if _, exists := r.entries[created.ID]; !exists {
		r.order = append(r.order, created.ID)
	}
	r.entries[created.ID] = created

	return created.Clone(), nil
}

func (r *memoryRepository) Get(ctx context.Context, memoryID model.MemoryID) (*model.Memory, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	mem, exists := r.entries[memoryID]
	if !exists {
		return nil, goerr.Wrap(ErrNotFound, "memory not found", goerr.V("memoryID", memoryID))
	}
	return mem.Clone(), nil
}

func (r *memoryRepository) List(ctx context.Context, agentID types.AgentID) ([]*model.Memory, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	result := make([]*model.Memory, 0, len(r.order))
	for _, id := range r.order {
		mem, exists := r.entries[id]
		if !exists {
			continue
		}
		if agentID != "" && mem.AgentID != agentID {
			continue
		}
		result = append(result, mem.Clone())
	}
	return result, nil
}

func (r *memoryRepository) ListVectors(ctx context.Context, memoryIDs []model.MemoryID) (map[model.MemoryID][]float32, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	result := make(map[model.MemoryID][]float32, len(memoryIDs))
	for _, id := range memoryIDs {
		mem, exists := r.entries[id]
		if !exists || len(mem.Embedding) == 0 {
			continue
		}
		vec := make([]float32, len(mem.Embedding))
		copy(vec, mem.Embedding)
		result[id] = vec
	}
	return result, nil
}

func (r *memoryRepository) BumpRetrievalStats(ctx context.Context, memoryID model.MemoryID, retrievedAt time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	mem, exists := r.entries[memoryID]
	if !exists {
		return goerr.Wrap(ErrNotFound, "memory not found", goerr.V("memoryID", memoryID))
	}

	mem.RetrievalCount++
	t := retrievedAt
	mem.LastRetrieved = &t
	return nil
}

func (r *memoryRepository) SaveBatch(ctx context.Context, memories []*model.Memory) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, mem := range memories {
		saved := mem.Clone()
		if saved.ID == "" {
			saved.ID = model.NewMemoryID()
		}
		if saved.CreatedAt.IsZero() {
			saved.CreatedAt = time.Now().UTC()
		}
		if _, exists := r.entries[saved.ID]; !exists {
			r.order = append(r.order, saved.ID)
		}
		r.entries[saved.ID] = saved
	}
	return nil
}

func (r *memoryRepository) Archive(ctx context.Context, memories []*model.Memory) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, mem := range memories {
		r.archive[mem.ID] = mem.Clone()
	}
	return nil
}

func (r *memoryRepository) GetArchived(ctx context.Context, memoryID model.MemoryID) (*model.Memory, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	mem, exists := r.archive[memoryID]
	if !exists {
		return nil, goerr.Wrap(ErrNotFound, "archived memory not found", goerr.V("memoryID", memoryID))
	}
	return mem.Clone(), nil
}

func (r *memoryRepository) Delete(ctx context.Context, memoryIDs []model.MemoryID, agentID types.AgentID) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	deleted := 0
	for _, id := range memoryIDs {
		mem, exists := r.entries[id]
		if !exists {
			continue
		}
		if agentID != "" && mem.AgentID != agentID {
			continue
		}
		delete(r.entries, id)
		deleted++
	}

	if deleted > 0 {
		remaining := r.order[:0]
		for _, id := range r.order {
			if _, exists := r.entries[id]; exists {
				remaining = append(remaining, id)
			}
		}
		r.order = remaining
	}
	return deleted, nil
}

func (r *memoryRepository) Stats(ctx context.Context, agentID types.AgentID) (*model.MemoryStats, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	stats := &model.MemoryStats{}
	for _, mem := range r.entries {
		if agentID != "" && mem.AgentID != agentID {
			continue
		}
		stats.Total++
		if mem.Success {
			stats.SuccessCount++
		} else {
			stats.FailureCount++
		}
	}
	return stats, nil
}
