package model

import "github.com/secmon-lab/reasonbank/pkg/domain/types"

// ManagementResult reports what the memory manager did with a batch of
// newly created memories.
type ManagementResult struct {
	UniqueMemories  []*Memory `json:"-"`
	DuplicatesFound int       `json:"duplicates_skipped"`
	MergesTriggered int       `json:"merges_triggered"`
	Message         string    `json:"message,omitempty"`
}

// CleanupReport is the result of a duplicate-cleanup run
type CleanupReport struct {
	AgentID         types.AgentID `json:"agent_id,omitempty"`
	DuplicateGroups int           `json:"duplicate_groups"`
	ToDelete        int           `json:"memories_to_delete"`
	ToKeep          int           `json:"memories_to_keep"`
	DryRun          bool          `json:"dry_run"`
	DeletedIDs      []MemoryID    `json:"deleted_ids"`
}

// ExtractedMemory is the caller-facing summary of one saved memory
type ExtractedMemory struct {
	ID          MemoryID `json:"memory_id"`
	Title       string   `json:"title"`
	Description string   `json:"description"`
	Content     string   `json:"content,omitempty"`
}

// ExtractResult is the response of the extract operation
type ExtractResult struct {
	Status         string            `json:"status"`
	Message        string            `json:"message,omitempty"`
	TaskID         string            `json:"task_id"`
	AsyncMode      bool              `json:"async_mode"`
	Success        *bool             `json:"success,omitempty"`
	ExtractedCount int               `json:"extracted_count"`
	Memories       []ExtractedMemory `json:"memories"`
	Management     *ManagementResult `json:"management,omitempty"`
}

// TrajectoryStep is one step of an agent task trajectory submitted for
// memory extraction.
type TrajectoryStep struct {
	Role    string `json:"role,omitempty"`
	Action  string `json:"action,omitempty"`
	Content string `json:"content"`
}
