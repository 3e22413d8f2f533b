package usecase

import "errors"

// Sentinel errors for the use case layer
var (
	ErrNoLLMClient = errors.New("no LLM client configured")
	ErrEmptyQuery  = errors.New("query must not be empty")
)
