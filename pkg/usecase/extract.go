package usecase

import (
	"bytes"
	"context"
	_ "embed"
	"encoding/json"
	"fmt"
	"strings"
	"text/template"
	"time"

	"github.com/google/uuid"
	"github.com/m-mizutani/goerr/v2"
	"github.com/m-mizutani/gollem"
	"github.com/secmon-lab/reasonbank/pkg/domain/model"
	"github.com/secmon-lab/reasonbank/pkg/domain/types"
	"github.com/secmon-lab/reasonbank/pkg/utils/logging"
)

//go:embed prompt/judge.md
var judgePromptTmpl string

//go:embed prompt/extract_success.md
var extractSuccessTmpl string

//go:embed prompt/extract_failure.md
var extractFailureTmpl string

var (
	judgePrompt          = template.Must(template.New("judge").Parse(judgePromptTmpl))
	extractSuccessPrompt = template.Must(template.New("extract_success").Parse(extractSuccessTmpl))
	extractFailurePrompt = template.Must(template.New("extract_failure").Parse(extractFailureTmpl))
)

// ExtractInput is a completed task trajectory submitted for memory
// extraction. SuccessSignal, if set, skips the LLM success judgement.
// AsyncMode, if unset, follows the configured default.
type ExtractInput struct {
	Trajectory []model.TrajectoryStep
	Query      string
	Success    *bool
	AsyncMode  *bool
	AgentID    types.AgentID
}

// Validate checks the input before any processing starts
func (x *ExtractInput) Validate() error {
	if len(x.Trajectory) == 0 {
		return goerr.New("trajectory must not be empty")
	}
	if strings.TrimSpace(x.Query) == "" {
		return goerr.Wrap(ErrEmptyQuery, "extraction requires the original task query")
	}
	if x.AgentID != "" {
		if err := x.AgentID.Validate(); err != nil {
			return err
		}
	}
	return nil
}

// Extract distills a task trajectory into durable memories. In async
// mode it returns immediately with a task ID and runs the pipeline in
// the background; otherwise it blocks until extraction and memory
// management finish.
func (uc *UseCases) Extract(ctx context.Context, input *ExtractInput) (*model.ExtractResult, error) {
	if uc.llmClient == nil {
		return nil, ErrNoLLMClient
	}
	if err := input.Validate(); err != nil {
		return nil, err
	}

	taskID := "extract_" + uuid.NewString()[:8]

	asyncMode := uc.cfg.AsyncByDefault
	if input.AsyncMode != nil {
		asyncMode = *input.AsyncMode
	}

	if asyncMode {
		uc.dispatch(ctx, func(ctx context.Context) error {
			result, err := uc.runExtraction(ctx, input, taskID)
			if err != nil {
				return goerr.Wrap(err, "background extraction failed", goerr.V("taskID", taskID))
			}
			logging.From(ctx).Info("background extraction finished",
				"taskID", taskID,
				"extracted", result.ExtractedCount,
			)
			return nil
		})

		return &model.ExtractResult{
			Status:    model.StatusProcessing,
			Message:   "extraction started in background",
			TaskID:    taskID,
			AsyncMode: true,
		}, nil
	}

	result, err := uc.runExtraction(ctx, input, taskID)
	if err != nil {
		return nil, err
	}
	return result, nil
}

func (uc *UseCases) runExtraction(ctx context.Context, input *ExtractInput, taskID string) (*model.ExtractResult, error) {
	logger := logging.From(ctx)

	success := uc.judgeSuccess(ctx, input)
	logger.Info("trajectory judged", "taskID", taskID, "success", success, "agentID", input.AgentID)

	extracted, err := uc.extractMemories(ctx, input, success)
	if err != nil {
		return nil, err
	}
	if len(extracted) > uc.cfg.MaxMemoriesPerTrajectory {
		extracted = extracted[:uc.cfg.MaxMemoriesPerTrajectory]
	}

	now := time.Now().UTC()
	memories := make([]*model.Memory, 0, len(extracted))
	for _, item := range extracted {
		mem := &model.Memory{
			ID:          model.NewMemoryID(),
			AgentID:     input.AgentID,
			CreatedAt:   now,
			Success:     success,
			Title:       item.Title,
			Description: item.Description,
			Content:     item.Content,
			Query:       input.Query,
		}
		embedding, err := uc.embedText(ctx, mem.EmbeddingText())
		if err != nil {
			return nil, goerr.Wrap(err, "failed to embed extracted memory", goerr.V("title", mem.Title))
		}
		mem.Embedding = embedding
		memories = append(memories, mem)
	}

	management, err := uc.OnMemoriesCreated(ctx, memories, input.AgentID)
	if err != nil {
		return nil, err
	}

	saved := make([]model.ExtractedMemory, len(management.UniqueMemories))
	for i, mem := range management.UniqueMemories {
		saved[i] = model.ExtractedMemory{
			ID:          mem.ID,
			Title:       mem.Title,
			Description: mem.Description,
		}
	}

	logger.Info("extraction completed",
		"taskID", taskID,
		"extracted", len(extracted),
		"saved", len(saved),
		"agentID", input.AgentID,
	)

	return &model.ExtractResult{
		Status:         model.StatusCompleted,
		Message:        fmt.Sprintf("extracted %d memories, saved %d", len(extracted), len(saved)),
		TaskID:         taskID,
		AsyncMode:      false,
		Success:        &success,
		ExtractedCount: len(extracted),
		Memories:       saved,
		Management:     management,
	}, nil
}

// judgeSuccess determines whether the trajectory succeeded. An explicit
// caller signal wins; otherwise the LLM judges, and any judgement
// failure counts as a failed task so no overconfident strategies get
// extracted from it.
func (uc *UseCases) judgeSuccess(ctx context.Context, input *ExtractInput) bool {
	if input.Success != nil {
		return *input.Success
	}

	logger := logging.From(ctx)

	prompt, err := renderTrajectoryPrompt(judgePrompt, input, 0)
	if err != nil {
		logger.Warn("failed to build judge prompt, treating as failure", "error", err.Error())
		return false
	}

	session, err := uc.llmClient.NewSession(ctx,
		gollem.WithSessionContentType(gollem.ContentTypeJSON),
		gollem.WithSessionResponseSchema(judgeResponseSchema()),
	)
	if err != nil {
		logger.Warn("failed to create judge session, treating as failure", "error", err.Error())
		return false
	}

	resp, err := session.GenerateContent(ctx, gollem.Text(prompt))
	if err != nil || len(resp.Texts) == 0 {
		logger.Warn("success judgement failed, treating as failure", "agentID", input.AgentID)
		return false
	}

	var verdict struct {
		Result string `json:"result"`
		Reason string `json:"reason"`
	}
	if err := json.Unmarshal([]byte(resp.Texts[0]), &verdict); err != nil {
		logger.Warn("malformed judge response, treating as failure", "response", resp.Texts[0])
		return false
	}

	logger.Info("judge verdict", "result", verdict.Result, "reason", verdict.Reason)
	return strings.EqualFold(verdict.Result, "success")
}

func (uc *UseCases) extractMemories(ctx context.Context, input *ExtractInput, success bool) ([]model.ExtractedMemory, error) {
	tmpl := extractFailurePrompt
	if success {
		tmpl = extractSuccessPrompt
	}

	prompt, err := renderTrajectoryPrompt(tmpl, input, uc.cfg.MaxMemoriesPerTrajectory)
	if err != nil {
		return nil, err
	}

	session, err := uc.llmClient.NewSession(ctx,
		gollem.WithSessionContentType(gollem.ContentTypeJSON),
		gollem.WithSessionResponseSchema(extractResponseSchema()),
	)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to create extraction session")
	}

	resp, err := session.GenerateContent(ctx, gollem.Text(prompt))
	if err != nil {
		return nil, goerr.Wrap(err, "memory extraction failed", goerr.V("agentID", input.AgentID))
	}
	if len(resp.Texts) == 0 {
		return nil, goerr.New("memory extraction returned empty result", goerr.V("agentID", input.AgentID))
	}

	var parsed struct {
		Memories []struct {
			Title       string `json:"title"`
			Description string `json:"description"`
			Content     string `json:"content"`
		} `json:"memories"`
	}
	if err := json.Unmarshal([]byte(resp.Texts[0]), &parsed); err != nil {
		return nil, goerr.Wrap(err, "failed to parse extraction response JSON",
			goerr.V("response", resp.Texts[0]),
		)
	}

	var items []model.ExtractedMemory
	for _, m := range parsed.Memories {
		if m.Title == "" || m.Content == "" {
			logging.From(ctx).Warn("skipping incomplete extracted memory", "title", m.Title)
			continue
		}
		items = append(items, model.ExtractedMemory{
			Title:       m.Title,
			Description: m.Description,
			Content:     m.Content,
		})
	}
	return items, nil
}

func renderTrajectoryPrompt(tmpl *template.Template, input *ExtractInput, maxMemories int) (string, error) {
	var trajectory strings.Builder
	for i, step := range input.Trajectory {
		label := step.Role
		if step.Action != "" {
			if label != "" {
				label += "/"
			}
			label += step.Action
		}
		if label == "" {
			label = "step"
		}
		fmt.Fprintf(&trajectory, "[%d] %s: %s\n", i+1, label, step.Content)
	}

	var buf bytes.Buffer
	err := tmpl.Execute(&buf, map[string]any{
		"Query":       input.Query,
		"Trajectory":  trajectory.String(),
		"MaxMemories": maxMemories,
	})
	if err != nil {
		return "", goerr.Wrap(err, "failed to render prompt template")
	}
	return buf.String(), nil
}

func judgeResponseSchema() *gollem.Parameter {
	return &gollem.Parameter{
		Title:       "TaskVerdict",
		Description: "Judgement of whether the trajectory achieved the task",
		Type:        gollem.TypeObject,
		Properties: map[string]*gollem.Parameter{
			"result": {
				Type:        gollem.TypeString,
				Description: `"success" or "failure"`,
				Required:    true,
			},
			"reason": {
				Type:        gollem.TypeString,
				Description: "Short justification of the verdict",
				Required:    true,
			},
		},
	}
}

func extractResponseSchema() *gollem.Parameter {
	return &gollem.Parameter{
		Title:       "ExtractedMemories",
		Description: "Memory items distilled from a task trajectory",
		Type:        gollem.TypeObject,
		Properties: map[string]*gollem.Parameter{
			"memories": {
				Type:        gollem.TypeArray,
				Description: "Extracted memory items",
				Required:    true,
				Items: &gollem.Parameter{
					Type: gollem.TypeObject,
					Properties: map[string]*gollem.Parameter{
						"title":       {Type: gollem.TypeString, Required: true},
						"description": {Type: gollem.TypeString, Required: true},
						"content":     {Type: gollem.TypeString, Required: true},
					},
				},
			},
		},
	}
}
