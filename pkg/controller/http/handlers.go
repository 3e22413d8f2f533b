package http

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/m-mizutani/goerr/v2"
	"github.com/secmon-lab/reasonbank/pkg/domain/model"
	"github.com/secmon-lab/reasonbank/pkg/domain/types"
	"github.com/secmon-lab/reasonbank/pkg/usecase"
	"github.com/secmon-lab/reasonbank/pkg/utils/errutil"
	"github.com/secmon-lab/reasonbank/pkg/utils/safe"
)

type retrieveRequest struct {
	Query   string        `json:"query"`
	TopK    int           `json:"top_k,omitempty"`
	AgentID types.AgentID `json:"agent_id,omitempty"`
}

func (s *Server) retrieveHandler(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var req retrieveRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		errutil.HandleHTTP(ctx, w, goerr.Wrap(err, "invalid retrieve request body"), http.StatusBadRequest)
		return
	}
	if req.AgentID != "" {
		if err := req.AgentID.Validate(); err != nil {
			errutil.HandleHTTP(ctx, w, err, http.StatusBadRequest)
			return
		}
	}

	result, err := s.uc.Retrieve(ctx, req.Query, req.TopK, req.AgentID)
	if err != nil {
		status := http.StatusInternalServerError
		if errors.Is(err, usecase.ErrEmptyQuery) {
			status = http.StatusBadRequest
		}
		errutil.HandleHTTP(ctx, w, err, status)
		return
	}

	respondJSON(ctx, w, http.StatusOK, result)
}

type extractRequest struct {
	Trajectory []model.TrajectoryStep `json:"trajectory"`
	Query      string                 `json:"query"`
	Success    *bool                  `json:"success_signal,omitempty"`
	AsyncMode  *bool                  `json:"async_mode,omitempty"`
	AgentID    types.AgentID          `json:"agent_id,omitempty"`
}

func (s *Server) extractHandler(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var req extractRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		errutil.HandleHTTP(ctx, w, goerr.Wrap(err, "invalid extract request body"), http.StatusBadRequest)
		return
	}

	input := &usecase.ExtractInput{
		Trajectory: req.Trajectory,
		Query:      req.Query,
		Success:    req.Success,
		AsyncMode:  req.AsyncMode,
		AgentID:    req.AgentID,
	}

	result, err := s.uc.Extract(ctx, input)
	if err != nil {
		status := http.StatusInternalServerError
		switch {
		case errors.Is(err, usecase.ErrNoLLMClient):
			status = http.StatusServiceUnavailable
		case errors.Is(err, usecase.ErrEmptyQuery):
			status = http.StatusBadRequest
		}
		errutil.HandleHTTP(ctx, w, err, status)
		return
	}

	code := http.StatusOK
	if result.Status == model.StatusProcessing {
		code = http.StatusAccepted
	}
	respondJSON(ctx, w, code, result)
}

func (s *Server) statsHandler(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	agentID := types.AgentID(r.URL.Query().Get("agent_id"))
	if agentID != "" {
		if err := agentID.Validate(); err != nil {
			errutil.HandleHTTP(ctx, w, err, http.StatusBadRequest)
			return
		}
	}

	stats, err := s.uc.Stats(ctx, agentID)
	if err != nil {
		errutil.HandleHTTP(ctx, w, err, http.StatusInternalServerError)
		return
	}

	respondJSON(ctx, w, http.StatusOK, stats)
}

func respondJSON(ctx context.Context, w http.ResponseWriter, code int, body any) {
	data, err := json.Marshal(body)
	if err != nil {
		errutil.HandleHTTP(ctx, w, goerr.Wrap(err, "failed to marshal response"), http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	safe.Write(ctx, w, data)
}
