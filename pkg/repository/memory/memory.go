// Package memory provides an in-process repository backend. It is the
// default for development and tests; all data is lost on process exit.
package memory

import (
	"github.com/secmon-lab/reasonbank/pkg/domain/interfaces"
)

// Repository is the in-memory implementation of interfaces.Repository
type Repository struct {
	memory *memoryRepository
}

var _ interfaces.Repository = &Repository{}

// New creates a new in-memory repository
func New() *Repository {
	return &Repository{
		memory: newMemoryRepository(),
	}
}

// Memory returns the memory record repository
func (r *Repository) Memory() interfaces.MemoryRepository {
	return r.memory
}

// Close is a no-op for the in-memory backend
func (r *Repository) Close() error {
	return nil
}
