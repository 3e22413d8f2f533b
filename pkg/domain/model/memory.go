package model

import (
	"time"

	"github.com/google/uuid"
	"github.com/secmon-lab/reasonbank/pkg/domain/types"
)

// EmbeddingDimension is the fixed vector size for memory embeddings
const EmbeddingDimension = 768

// MemoryID is a UUID-based identifier for Memory
type MemoryID string

// NewMemoryID generates a new UUID v4 MemoryID
func NewMemoryID() MemoryID {
	return MemoryID(uuid.New().String())
}

// String returns the string representation of MemoryID
func (m MemoryID) String() string {
	return string(m)
}

// Memory represents a stored experience record: what worked or failed
// for a past task, distilled into reusable text. The embedding is
// computed once from the record's own text at creation time and is
// immutable thereafter.
type Memory struct {
	ID        MemoryID      `json:"memory_id"`
	AgentID   types.AgentID `json:"agent_id,omitempty"`
	CreatedAt time.Time     `json:"timestamp"`
	Success   bool          `json:"success"`

	Title       string `json:"title"`
	Description string `json:"description"`
	Content     string `json:"content"`
	Query       string `json:"query"`

	RetrievalCount int        `json:"retrieval_count"`
	LastRetrieved  *time.Time `json:"last_retrieved,omitempty"`
	Tags           []string   `json:"tags,omitempty"`

	// Provenance when this record is a consolidation result
	IsMerged   bool       `json:"is_merged,omitempty"`
	MergedFrom []MemoryID `json:"merged_from,omitempty"`

	// Set only when the record has been superseded by a merge
	Archived       bool       `json:"archived,omitempty"`
	ArchivedAt     *time.Time `json:"archived_at,omitempty"`
	ArchivedReason string     `json:"archived_reason,omitempty"`
	MergedInto     MemoryID   `json:"merged_into,omitempty"`

	Embedding []float32 `json:"-"`
}

// EmbeddingText returns the text the memory's embedding is computed
// from: the record's own content, not the originating query.
func (m *Memory) EmbeddingText() string {
	return m.Title + " " + m.Description + " " + m.Content
}

// Clone returns a deep copy of the memory
func (m *Memory) Clone() *Memory {
	copied := *m
	if m.Embedding != nil {
		copied.Embedding = make([]float32, len(m.Embedding))
		copy(copied.Embedding, m.Embedding)
	}
	if m.Tags != nil {
		copied.Tags = append([]string{}, m.Tags...)
	}
	if m.MergedFrom != nil {
		copied.MergedFrom = append([]MemoryID{}, m.MergedFrom...)
	}
	if m.LastRetrieved != nil {
		t := *m.LastRetrieved
		copied.LastRetrieved = &t
	}
	if m.ArchivedAt != nil {
		t := *m.ArchivedAt
		copied.ArchivedAt = &t
	}
	return &copied
}

// MemoryStats summarizes a memory store
type MemoryStats struct {
	Total        int `json:"total"`
	SuccessCount int `json:"success_count"`
	FailureCount int `json:"failure_count"`
}
