// Package firestore provides a Firestore-backed repository. Memories
// are stored in a flat collection keyed by memory ID with the agent ID
// as a filterable field; archived records live in a sibling
// collection excluded from retrieval.
package firestore

import (
	"context"

	"cloud.google.com/go/firestore"
	"github.com/m-mizutani/goerr/v2"
	"github.com/secmon-lab/reasonbank/pkg/domain/interfaces"
)

// Firestore is the Firestore implementation of interfaces.Repository
type Firestore struct {
	client *firestore.Client
	memory *memoryRepository
}

var _ interfaces.Repository = &Firestore{}

// Option configures the Firestore repository
type Option func(*Firestore)

// WithCollectionPrefix prefixes all collection names, for tests that
// share a database.
func WithCollectionPrefix(prefix string) Option {
	return func(f *Firestore) {
		f.memory.collectionPrefix = prefix
	}
}

// New creates a Firestore repository
func New(ctx context.Context, projectID, databaseID string, opts ...Option) (*Firestore, error) {
	var client *firestore.Client
	var err error
	if databaseID == "" {
		client, err = firestore.NewClient(ctx, projectID)
	} else {
		client, err = firestore.NewClientWithDatabase(ctx, projectID, databaseID)
	}
	if err != nil {
		return nil, goerr.Wrap(err, "failed to create firestore client",
			goerr.V("projectID", projectID),
			goerr.V("databaseID", databaseID),
		)
	}

	f := &Firestore{
		client: client,
		memory: newMemoryRepository(client),
	}
	for _, opt := range opts {
		opt(f)
	}

	return f, nil
}

// Memory returns the memory record repository
func (f *Firestore) Memory() interfaces.MemoryRepository {
	return f.memory
}

// Close closes the underlying Firestore client
func (f *Firestore) Close() error {
	return f.client.Close()
}
