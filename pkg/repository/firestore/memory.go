package firestore

import (
	"context"
	"sort"
	"time"

	"cloud.google.com/go/firestore"
	"github.com/m-mizutani/goerr/v2"
	"github.com/secmon-lab/reasonbank/pkg/domain/model"
	"github.com/secmon-lab/reasonbank/pkg/domain/types"
	"google.golang.org/api/iterator"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

// memoryDoc is the Firestore document representation of model.Memory.
// Embedding is stored as firestore.Vector32 for FindNearest vector
// search support.
type memoryDoc struct {
	ID             model.MemoryID     `firestore:"ID"`
	AgentID        string             `firestore:"AgentID"`
	CreatedAt      time.Time          `firestore:"CreatedAt"`
	Success        bool               `firestore:"Success"`
	Title          string             `firestore:"Title"`
	Description    string             `firestore:"Description"`
	Content        string             `firestore:"Content"`
	Query          string             `firestore:"Query"`
	RetrievalCount int                `firestore:"RetrievalCount"`
	LastRetrieved  *time.Time         `firestore:"LastRetrieved,omitempty"`
	Tags           []string           `firestore:"Tags,omitempty"`
	IsMerged       bool               `firestore:"IsMerged"`
	MergedFrom     []string           `firestore:"MergedFrom,omitempty"`
	Archived       bool               `firestore:"Archived"`
	ArchivedAt     *time.Time         `firestore:"ArchivedAt,omitempty"`
	ArchivedReason string             `firestore:"ArchivedReason,omitempty"`
	MergedInto     string             `firestore:"MergedInto,omitempty"`
	Embedding      firestore.Vector32 `firestore:"Embedding,omitempty"`
}

func toMemoryDoc(m *model.Memory) *memoryDoc {
	doc := &memoryDoc{
		ID:             m.ID,
		AgentID:        m.AgentID.String(),
		CreatedAt:      m.CreatedAt,
		Success:        m.Success,
		Title:          m.Title,
		Description:    m.Description,
		Content:        m.Content,
		Query:          m.Query,
		RetrievalCount: m.RetrievalCount,
		LastRetrieved:  m.LastRetrieved,
		Tags:           m.Tags,
		IsMerged:       m.IsMerged,
		Archived:       m.Archived,
		ArchivedAt:     m.ArchivedAt,
		ArchivedReason: m.ArchivedReason,
		MergedInto:     m.MergedInto.String(),
	}
	for _, id := range m.MergedFrom {
		doc.MergedFrom = append(doc.MergedFrom, id.String())
	}
	if len(m.Embedding) > 0 {
		doc.Embedding = firestore.Vector32(m.Embedding)
	}
	return doc
}

func fromMemoryDoc(d *memoryDoc) *model.Memory {
	m := &model.Memory{
		ID:             d.ID,
		AgentID:        types.AgentID(d.AgentID),
		CreatedAt:      d.CreatedAt,
		Success:        d.Success,
		Title:          d.Title,
		Description:    d.Description,
		Content:        d.Content,
		Query:          d.Query,
		RetrievalCount: d.RetrievalCount,
		LastRetrieved:  d.LastRetrieved,
		Tags:           d.Tags,
		IsMerged:       d.IsMerged,
		Archived:       d.Archived,
		ArchivedAt:     d.ArchivedAt,
		ArchivedReason: d.ArchivedReason,
		MergedInto:     model.MemoryID(d.MergedInto),
	}
	for _, id := range d.MergedFrom {
		m.MergedFrom = append(m.MergedFrom, model.MemoryID(id))
	}
	if len(d.Embedding) > 0 {
		m.Embedding = []float32(d.Embedding)
	}
	return m
}

type memoryRepository struct {
	client           *firestore.Client
	collectionPrefix string
}

func newMemoryRepository(client *firestore.Client) *memoryRepository {
	return &memoryRepository{client: client}
}

func (r *memoryRepository) memories() *firestore.CollectionRef {
	return r.client.Collection(r.collectionPrefix + "memories")
}

func (r *memoryRepository) archived() *firestore.CollectionRef {
	return r.client.Collection(r.collectionPrefix + "memories_archive")
}

func (r *memoryRepository) Put(ctx context.Context, mem *model.Memory) (*model.Memory, error) {
	created := mem.Clone()
	if created.ID == "" {
		created.ID = model.NewMemoryID()
	}
	if created.CreatedAt.IsZero() {
		created.CreatedAt = time.Now().UTC()
	}

	docRef := r.memories().Doc(created.ID.String())
	if _, err := docRef.Set(ctx, toMemoryDoc(created)); err != nil {
		return nil, goerr.Wrap(err, "failed to create memory", goerr.V("memoryID", created.ID))
	}
	return created, nil
}

func (r *memoryRepository) Get(ctx context.Context, memoryID model.MemoryID) (*model.Memory, error) {
	return r.getFrom(ctx, r.memories(), memoryID)
}

func (r *memoryRepository) GetArchived(ctx context.Context, memoryID model.MemoryID) (*model.Memory, error) {
	return r.getFrom(ctx, r.archived(), memoryID)
}

func (r *memoryRepository) getFrom(ctx context.Context, col *firestore.CollectionRef, memoryID model.MemoryID) (*model.Memory, error) {
	doc, err := col.Doc(memoryID.String()).Get(ctx)
	if err != nil {
		if status.Code(err) == codes.NotFound {
			return nil, goerr.Wrap(ErrNotFound, "memory not found", goerr.V("memoryID", memoryID))
		}
		return nil, goerr.Wrap(err, "failed to get memory", goerr.V("memoryID", memoryID))
	}

	var d memoryDoc
	if err := doc.DataTo(&d); err != nil {
		return nil, goerr.Wrap(err, "failed to decode memory document", goerr.V("memoryID", memoryID))
	}
	return fromMemoryDoc(&d), nil
}

func (r *memoryRepository) List(ctx context.Context, agentID types.AgentID) ([]*model.Memory, error) {
	q := r.memories().Query
	if agentID != "" {
		// Ordering happens client-side: Where + OrderBy on different
		// fields would require a composite index.
		q = r.memories().Where("AgentID", "==", agentID.String())
	}

	iter := q.Documents(ctx)
	defer iter.Stop()

	var result []*model.Memory
	for {
		doc, err := iter.Next()
		if err == iterator.Done {
			break
		}
		if err != nil {
			return nil, goerr.Wrap(err, "failed to iterate memories", goerr.V("agentID", agentID))
		}

		var d memoryDoc
		if err := doc.DataTo(&d); err != nil {
			return nil, goerr.Wrap(err, "failed to decode memory document")
		}
		result = append(result, fromMemoryDoc(&d))
	}

	sort.Slice(result, func(i, j int) bool {
		if result[i].CreatedAt.Equal(result[j].CreatedAt) {
			return result[i].ID < result[j].ID
		}
		return result[i].CreatedAt.Before(result[j].CreatedAt)
	})
	return result, nil
}

func (r *memoryRepository) ListVectors(ctx context.Context, memoryIDs []model.MemoryID) (map[model.MemoryID][]float32, error) {
	result := make(map[model.MemoryID][]float32, len(memoryIDs))
	for _, id := range memoryIDs {
		mem, err := r.Get(ctx, id)
		if err != nil {
			// Missing records are silently absent from the result
			continue
		}
		if len(mem.Embedding) > 0 {
			result[id] = mem.Embedding
		}
	}
	return result, nil
}

func (r *memoryRepository) BumpRetrievalStats(ctx context.Context, memoryID model.MemoryID, retrievedAt time.Time) error {
	docRef := r.memories().Doc(memoryID.String())
	_, err := docRef.Update(ctx, []firestore.Update{
		{Path: "RetrievalCount", Value: firestore.Increment(1)},
		{Path: "LastRetrieved", Value: retrievedAt},
	})
	if err != nil {
		if status.Code(err) == codes.NotFound {
			return goerr.Wrap(ErrNotFound, "memory not found", goerr.V("memoryID", memoryID))
		}
		return goerr.Wrap(err, "failed to update retrieval stats", goerr.V("memoryID", memoryID))
	}
	return nil
}

func (r *memoryRepository) SaveBatch(ctx context.Context, memories []*model.Memory) error {
	bw := r.client.BulkWriter(ctx)
	for _, mem := range memories {
		saved := mem.Clone()
		if saved.ID == "" {
			saved.ID = model.NewMemoryID()
		}
		if saved.CreatedAt.IsZero() {
			saved.CreatedAt = time.Now().UTC()
		}
		if _, err := bw.Set(r.memories().Doc(saved.ID.String()), toMemoryDoc(saved)); err != nil {
			return goerr.Wrap(err, "failed to enqueue memory write", goerr.V("memoryID", saved.ID))
		}
	}
	bw.End()
	return nil
}

func (r *memoryRepository) Archive(ctx context.Context, memories []*model.Memory) error {
	bw := r.client.BulkWriter(ctx)
	for _, mem := range memories {
		if _, err := bw.Set(r.archived().Doc(mem.ID.String()), toMemoryDoc(mem)); err != nil {
			return goerr.Wrap(err, "failed to enqueue archive write", goerr.V("memoryID", mem.ID))
		}
	}
	bw.End()
	return nil
}

func (r *memoryRepository) Delete(ctx context.Context, memoryIDs []model.MemoryID, agentID types.AgentID) (int, error) {
	deleted := 0
	for _, id := range memoryIDs {
		mem, err := r.Get(ctx, id)
		if err != nil {
			continue
		}
		if agentID != "" && mem.AgentID != agentID {
			continue
		}
		if _, err := r.memories().Doc(id.String()).Delete(ctx); err != nil {
			return deleted, goerr.Wrap(err, "failed to delete memory", goerr.V("memoryID", id))
		}
		deleted++
	}
	return deleted, nil
}

func (r *memoryRepository) Stats(ctx context.Context, agentID types.AgentID) (*model.MemoryStats, error) {
	memories, err := r.List(ctx, agentID)
	if err != nil {
		return nil, err
	}

	stats := &model.MemoryStats{}
	for _, mem := range memories {
		stats.Total++
		if mem.Success {
			stats.SuccessCount++
		} else {
			stats.FailureCount++
		}
	}
	return stats, nil
}
