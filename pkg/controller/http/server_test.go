package http_test

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/m-mizutani/gollem"
	"github.com/m-mizutani/gt"
	httpctrl "github.com/secmon-lab/reasonbank/pkg/controller/http"
	"github.com/secmon-lab/reasonbank/pkg/domain/model"
	"github.com/secmon-lab/reasonbank/pkg/engine/dedup"
	"github.com/secmon-lab/reasonbank/pkg/engine/merge"
	"github.com/secmon-lab/reasonbank/pkg/engine/retrieval"
	"github.com/secmon-lab/reasonbank/pkg/repository/memory"
	"github.com/secmon-lab/reasonbank/pkg/usecase"
)

type mockSession struct{}

func (s *mockSession) GenerateContent(ctx context.Context, input ...gollem.Input) (*gollem.Response, error) {
	return &gollem.Response{Texts: []string{
		`{"memories":[{"title":"T","description":"D","content":"C"}]}`,
	}}, nil
}

func (s *mockSession) Generate(ctx context.Context, input []gollem.Input, options ...gollem.GenerateOption) (*gollem.Response, error) {
	return s.GenerateContent(ctx, input...)
}

func (s *mockSession) GenerateStream(ctx context.Context, input ...gollem.Input) (<-chan *gollem.Response, error) {
	return nil, nil
}

func (s *mockSession) Stream(ctx context.Context, input []gollem.Input, options ...gollem.GenerateOption) (<-chan *gollem.Response, error) {
	return s.GenerateStream(ctx, input...)
}

func (s *mockSession) History() (*gollem.History, error) { return nil, nil }

func (s *mockSession) AppendHistory(*gollem.History) error { return nil }

func (s *mockSession) CountToken(ctx context.Context, input ...gollem.Input) (int, error) {
	return 0, nil
}

type mockClient struct{}

func (c *mockClient) NewSession(ctx context.Context, options ...gollem.SessionOption) (gollem.Session, error) {
	return &mockSession{}, nil
}

func (c *mockClient) GenerateEmbedding(ctx context.Context, dimension int, input []string) ([][]float64, error) {
	result := make([][]float64, len(input))
	for i := range input {
		result[i] = []float64{1, 0, 0}
	}
	return result, nil
}

func newServer(t *testing.T, repo *memory.Repository, client gollem.LLMClient) *httpctrl.Server {
	t.Helper()

	rs := retrieval.NewCosine(repo.Memory())
	dd, err := dedup.New(repo.Memory(), rs, dedup.DefaultConfig())
	gt.NoError(t, err).Required()

	opts := []usecase.Option{}
	if client != nil {
		opts = append(opts, usecase.WithLLMClient(client))
	}
	uc, err := usecase.New(repo, rs, dd, merge.NewVoting(2), opts...)
	gt.NoError(t, err).Required()

	return httpctrl.New(uc)
}

func TestHealthEndpoint(t *testing.T) {
	srv := newServer(t, memory.New(), nil)

	rec := httptest.NewRecorder()
	srv.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))
	gt.Number(t, rec.Code).Equal(http.StatusOK)
}

func TestRetrieveEndpoint(t *testing.T) {
	repo := memory.New()
	mem := &model.Memory{
		ID:        model.NewMemoryID(),
		AgentID:   "agent-a",
		CreatedAt: time.Now().UTC(),
		Success:   true,
		Title:     "retry with backoff",
		Content:   "use exponential backoff",
		Embedding: []float32{1, 0, 0},
	}
	_, err := repo.Memory().Put(context.Background(), mem)
	gt.NoError(t, err).Required()

	srv := newServer(t, repo, &mockClient{})

	post := func(body string) *httptest.ResponseRecorder {
		rec := httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodPost, "/api/v1/memories/retrieve", bytes.NewBufferString(body))
		req.Header.Set("Content-Type", "application/json")
		srv.ServeHTTP(rec, req)
		return rec
	}

	t.Run("returns matching memories", func(t *testing.T) {
		rec := post(`{"query":"how to retry","top_k":3,"agent_id":"agent-a"}`)
		gt.Number(t, rec.Code).Equal(http.StatusOK)

		var result model.RetrieveResult
		gt.NoError(t, json.Unmarshal(rec.Body.Bytes(), &result)).Required()
		gt.Value(t, result.Status).Equal(model.StatusSuccess)
		gt.Array(t, result.Memories).Length(1)
		gt.Value(t, result.Memories[0].Title).Equal("retry with backoff")
	})

	t.Run("empty query is a bad request", func(t *testing.T) {
		rec := post(`{"query":""}`)
		gt.Number(t, rec.Code).Equal(http.StatusBadRequest)
	})

	t.Run("invalid agent id is a bad request", func(t *testing.T) {
		rec := post(`{"query":"q","agent_id":"--bad--"}`)
		gt.Number(t, rec.Code).Equal(http.StatusBadRequest)
	})

	t.Run("malformed body is a bad request", func(t *testing.T) {
		rec := post(`{"query":`)
		gt.Number(t, rec.Code).Equal(http.StatusBadRequest)
	})
}

func TestExtractEndpoint(t *testing.T) {
	t.Run("without LLM client the endpoint is unavailable", func(t *testing.T) {
		srv := newServer(t, memory.New(), nil)

		rec := httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodPost, "/api/v1/memories/extract",
			bytes.NewBufferString(`{"query":"task","trajectory":[{"content":"step"}]}`))
		srv.ServeHTTP(rec, req)
		gt.Number(t, rec.Code).Equal(http.StatusServiceUnavailable)
	})

	t.Run("async extraction is accepted", func(t *testing.T) {
		srv := newServer(t, memory.New(), &mockClient{})

		rec := httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodPost, "/api/v1/memories/extract",
			bytes.NewBufferString(`{"query":"task","trajectory":[{"content":"step"}],"success_signal":true}`))
		srv.ServeHTTP(rec, req)
		gt.Number(t, rec.Code).Equal(http.StatusAccepted)

		var result model.ExtractResult
		gt.NoError(t, json.Unmarshal(rec.Body.Bytes(), &result)).Required()
		gt.Value(t, result.Status).Equal(model.StatusProcessing)
		gt.Bool(t, result.AsyncMode).True()
	})

	t.Run("sync extraction completes inline", func(t *testing.T) {
		srv := newServer(t, memory.New(), &mockClient{})

		rec := httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodPost, "/api/v1/memories/extract",
			bytes.NewBufferString(`{"query":"task","trajectory":[{"content":"step"}],"success_signal":true,"async_mode":false,"agent_id":"agent-a"}`))
		srv.ServeHTTP(rec, req)
		gt.Number(t, rec.Code).Equal(http.StatusOK)

		var result model.ExtractResult
		gt.NoError(t, json.Unmarshal(rec.Body.Bytes(), &result)).Required()
		gt.Value(t, result.Status).Equal(model.StatusCompleted)
		gt.Number(t, result.ExtractedCount).Equal(1)
	})
}

func TestStatsEndpoint(t *testing.T) {
	repo := memory.New()
	for i, success := range []bool{true, true, false} {
		_, err := repo.Memory().Put(context.Background(), &model.Memory{
			ID:        model.NewMemoryID(),
			AgentID:   "agent-a",
			CreatedAt: time.Now().UTC().Add(time.Duration(i) * time.Second),
			Success:   success,
			Title:     "m",
			Content:   "c",
		})
		gt.NoError(t, err).Required()
	}
	srv := newServer(t, repo, nil)

	rec := httptest.NewRecorder()
	srv.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/memories/stats?agent_id=agent-a", nil))
	gt.Number(t, rec.Code).Equal(http.StatusOK)

	var stats model.MemoryStats
	gt.NoError(t, json.Unmarshal(rec.Body.Bytes(), &stats)).Required()
	gt.Number(t, stats.Total).Equal(3)
	gt.Number(t, stats.SuccessCount).Equal(2)
	gt.Number(t, stats.FailureCount).Equal(1)
}
