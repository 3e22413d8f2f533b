package model

// ScoredMemory is a retrieval candidate with its ranking score
type ScoredMemory struct {
	ID    MemoryID `json:"memory_id"`
	Score float64  `json:"score"`
}

// RetrievedMemory is a fully resolved retrieval hit returned to callers
type RetrievedMemory struct {
	ID          MemoryID `json:"memory_id"`
	Score       float64  `json:"score"`
	Title       string   `json:"title"`
	Description string   `json:"description"`
	Content     string   `json:"content"`
	Success     bool     `json:"success"`
	Tags        []string `json:"tags"`
}

// RetrieveResult is the response of the retrieve operation
type RetrieveResult struct {
	Status          string            `json:"status"`
	Message         string            `json:"message,omitempty"`
	Query           string            `json:"query"`
	Strategy        string            `json:"retrieval_strategy,omitempty"`
	TopK            int               `json:"top_k,omitempty"`
	MinScore        float64           `json:"min_score_threshold,omitempty"`
	FilteredCount   int               `json:"filtered_count"`
	Memories        []RetrievedMemory `json:"memories"`
	FormattedPrompt string            `json:"formatted_prompt"`
}

// Retrieve operation statuses
const (
	StatusSuccess    = "success"
	StatusNoMemories = "no_memories"
	StatusCompleted  = "completed"
	StatusProcessing = "processing"
)
