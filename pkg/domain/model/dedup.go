package model

// DuplicateResult is the outcome of a single-record duplicate check.
// It is ephemeral and never persisted.
type DuplicateResult struct {
	IsDuplicate bool     `json:"is_duplicate"`
	DuplicateOf MemoryID `json:"duplicate_of,omitempty"`
	Score       float64  `json:"similarity_score,omitempty"`
	Reason      string   `json:"reason,omitempty"`
}

// NotDuplicate builds a negative DuplicateResult with an explanatory reason
func NotDuplicate(reason string) *DuplicateResult {
	return &DuplicateResult{IsDuplicate: false, Reason: reason}
}
