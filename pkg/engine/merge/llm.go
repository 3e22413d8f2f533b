package merge

import (
	"bytes"
	"context"
	_ "embed"
	"encoding/json"
	"fmt"
	"strings"
	"text/template"

	"github.com/m-mizutani/goerr/v2"
	"github.com/m-mizutani/gollem"
	"github.com/secmon-lab/reasonbank/pkg/domain/model"
	"github.com/secmon-lab/reasonbank/pkg/domain/types"
	"github.com/secmon-lab/reasonbank/pkg/utils/logging"
)

//go:embed prompt/merge.md
var mergePromptTmpl string

var mergePrompt = template.Must(template.New("merge").Parse(mergePromptTmpl))

// LLM synthesizes a new, more abstract memory from a group of similar
// experiences via a summarization call. It only merges groups whose
// members are mostly successful, to avoid conflating conflicting
// success/failure experiences.
type LLM struct {
	client         gollem.LLMClient
	minGroupSize   int
	minSuccessRate float64
}

// NewLLM creates an LLM merge strategy
func NewLLM(client gollem.LLMClient, minGroupSize int, minSuccessRate float64) *LLM {
	if minGroupSize < 2 {
		minGroupSize = 3
	}
	return &LLM{
		client:         client,
		minGroupSize:   minGroupSize,
		minSuccessRate: minSuccessRate,
	}
}

// Name returns the strategy name
func (s *LLM) Name() string {
	return "llm"
}

// ShouldMerge checks group size, agent homogeneity, and the success
// ratio within the group.
func (s *LLM) ShouldMerge(ctx context.Context, group []*model.Memory, agentID types.AgentID) bool {
	if len(group) < s.minGroupSize {
		return false
	}
	if err := validateGroup(group, agentID); err != nil {
		logging.From(ctx).Warn("merge group rejected", "error", err.Error(), "agentID", agentID)
		return false
	}

	successCount := 0
	for _, mem := range group {
		if mem.Success {
			successCount++
		}
	}
	successRate := float64(successCount) / float64(len(group))
	if successRate < s.minSuccessRate {
		logging.From(ctx).Info("success rate too low for merge",
			"successRate", successRate, "agentID", agentID)
		return false
	}

	return true
}

// mergedResponse is the JSON structure expected from the summarization call
type mergedResponse struct {
	Title            string `json:"title"`
	Description      string `json:"description"`
	Content          string `json:"content"`
	AbstractionLevel *int   `json:"abstraction_level"`
	Query            string `json:"query"`
}

// Merge asks the LLM to extract the common pattern of the group and
// returns the synthesized record. A malformed or incomplete response
// is a hard failure propagated to the caller.
func (s *LLM) Merge(ctx context.Context, group []*model.Memory, agentID types.AgentID) (*model.MergeResult, error) {
	if err := validateGroup(group, agentID); err != nil {
		return nil, err
	}

	prompt, err := s.buildPrompt(group)
	if err != nil {
		return nil, err
	}

	session, err := s.client.NewSession(ctx,
		gollem.WithSessionContentType(gollem.ContentTypeJSON),
		gollem.WithSessionResponseSchema(mergeResponseSchema()),
	)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to create session for memory merge")
	}

	resp, err := session.GenerateContent(ctx, gollem.Text(prompt))
	if err != nil {
		return nil, goerr.Wrap(err, "failed to generate merged memory", goerr.V("agentID", agentID))
	}
	if len(resp.Texts) == 0 {
		return nil, goerr.New("merge generation returned empty result", goerr.V("agentID", agentID))
	}

	var merged mergedResponse
	if err := json.Unmarshal([]byte(resp.Texts[0]), &merged); err != nil {
		return nil, goerr.Wrap(err, "failed to parse merge response JSON",
			goerr.V("response", resp.Texts[0]),
		)
	}
	if merged.Title == "" || merged.Content == "" || merged.Description == "" || merged.AbstractionLevel == nil {
		return nil, goerr.New("merge response missing required field",
			goerr.V("response", resp.Texts[0]),
		)
	}

	mergedFrom := make([]model.MemoryID, len(group))
	for i, mem := range group {
		mergedFrom[i] = mem.ID
	}

	query := merged.Query
	if query == "" {
		query = "<generic>"
	}

	// A merged insight is treated as a positive takeaway
	result := &model.Memory{
		AgentID:     agentID,
		Success:     true,
		Title:       merged.Title,
		Description: merged.Description,
		Content:     merged.Content,
		Query:       query,
		IsMerged:    true,
		MergedFrom:  mergedFrom,
	}

	logging.From(ctx).Info("llm merge successful",
		"sources", len(group),
		"title", merged.Title,
		"agentID", agentID,
	)

	return &model.MergeResult{
		Memory:           result,
		MergedFrom:       mergedFrom,
		AbstractionLevel: *merged.AbstractionLevel,
		Strategy:         s.Name(),
		OriginalCount:    len(group),
	}, nil
}

func (s *LLM) buildPrompt(group []*model.Memory) (string, error) {
	var experiences strings.Builder
	for i, mem := range group {
		fmt.Fprintf(&experiences, "### Experience %d\n", i+1)
		fmt.Fprintf(&experiences, "**Title**: %s\n", mem.Title)
		fmt.Fprintf(&experiences, "**Description**: %s\n", mem.Description)
		fmt.Fprintf(&experiences, "**Content**: %s\n", mem.Content)
		fmt.Fprintf(&experiences, "**Original task**: %s\n\n", mem.Query)
	}

	var buf bytes.Buffer
	if err := mergePrompt.Execute(&buf, map[string]string{
		"Experiences": experiences.String(),
	}); err != nil {
		return "", goerr.Wrap(err, "failed to execute merge prompt template")
	}
	return buf.String(), nil
}

func mergeResponseSchema() *gollem.Parameter {
	return &gollem.Parameter{
		Title:       "MergedMemory",
		Description: "Generalized experience consolidated from similar memories",
		Type:        gollem.TypeObject,
		Properties: map[string]*gollem.Parameter{
			"title": {
				Type:        gollem.TypeString,
				Description: "Short name of the generalized experience",
				Required:    true,
			},
			"description": {
				Type:        gollem.TypeString,
				Description: "One-sentence summary of the experience",
				Required:    true,
			},
			"content": {
				Type:        gollem.TypeString,
				Description: "Full generalized experience text",
				Required:    true,
			},
			"abstraction_level": {
				Type:        gollem.TypeInteger,
				Description: "1 for a generalized pattern, 2 for a distilled principle",
				Required:    true,
			},
			"query": {
				Type:        gollem.TypeString,
				Description: "Generic task description this experience applies to",
				Required:    false,
			},
		},
	}
}
