package interfaces

import (
	"context"
	"time"

	"github.com/secmon-lab/reasonbank/pkg/domain/model"
	"github.com/secmon-lab/reasonbank/pkg/domain/types"
)

// MemoryRepository defines the interface for Memory data persistence.
// Implementations must serialize their own reads and writes: the
// orchestrator issues independent concurrent read-modify-write
// sequences without higher-level locking.
type MemoryRepository interface {
	// Put creates a new memory entry with its embedding
	Put(ctx context.Context, memory *model.Memory) (*model.Memory, error)

	// Get retrieves an active (non-archived) memory entry by ID
	Get(ctx context.Context, memoryID model.MemoryID) (*model.Memory, error)

	// List retrieves all active memory entries. An empty agentID lists
	// every agent's records; a non-empty agentID must only return that
	// agent's records.
	List(ctx context.Context, agentID types.AgentID) ([]*model.Memory, error)

	// ListVectors returns the embedding vectors for the given memory IDs.
	// IDs without a stored vector are silently absent from the result.
	ListVectors(ctx context.Context, memoryIDs []model.MemoryID) (map[model.MemoryID][]float32, error)

	// BumpRetrievalStats increments retrieval_count and sets
	// last_retrieved for a memory
	BumpRetrievalStats(ctx context.Context, memoryID model.MemoryID, retrievedAt time.Time) error

	// SaveBatch persists multiple memory entries at once
	SaveBatch(ctx context.Context, memories []*model.Memory) error

	// Archive moves the given records to the retrieval-excluded archive
	// store. Archived records remain addressable for provenance lookups
	// via GetArchived.
	Archive(ctx context.Context, memories []*model.Memory) error

	// GetArchived retrieves an archived memory entry by ID
	GetArchived(ctx context.Context, memoryID model.MemoryID) (*model.Memory, error)

	// Delete removes memories from the active store. A non-empty
	// agentID restricts deletion to that agent's records; mismatched
	// records are skipped. Returns the number of records deleted.
	Delete(ctx context.Context, memoryIDs []model.MemoryID, agentID types.AgentID) (int, error)

	// Stats summarizes the active store, optionally scoped to one agent
	Stats(ctx context.Context, agentID types.AgentID) (*model.MemoryStats, error)
}
