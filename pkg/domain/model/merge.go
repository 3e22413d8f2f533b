package model

// Abstraction levels assigned by a merge
const (
	// AbstractionSelected marks an as-is selected experience
	AbstractionSelected = 0
	// AbstractionPattern marks a generalized pattern
	AbstractionPattern = 1
	// AbstractionPrinciple marks a distilled principle
	AbstractionPrinciple = 2
)

// MergeResult is the outcome of consolidating a group of similar
// memories: one selected or synthesized record plus provenance.
type MergeResult struct {
	Memory           *Memory    `json:"memory"`
	MergedFrom       []MemoryID `json:"merged_from"`
	AbstractionLevel int        `json:"abstraction_level"`
	Strategy         string     `json:"strategy"`
	OriginalCount    int        `json:"original_count"`
}
