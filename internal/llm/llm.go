// Package llm drafts template scripts with an OpenAI-compatible model. Drafts
// are advisory: they are linted and handed back, never submitted.
package llm

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	openai "github.com/sashabaranov/go-openai"

	"github.com/pavelanni/qtadmin/internal/llm/prompts"
	"github.com/pavelanni/qtadmin/internal/model"
	"github.com/pavelanni/qtadmin/internal/validate"
)

// ErrEmptyDraft is returned when the model answers without usable scripts.
var ErrEmptyDraft = errors.New("model returned an empty draft")

// Draft is a proposed script pair for a template.
type Draft struct {
	DynamicQuestion string                          `json:"dynamic_question"`
	LogicalAnswer   string                          `json:"logical_answer"`
	Notes           string                          `json:"notes,omitempty"`
	Issues          map[string][]validate.LintIssue `json:"issues,omitempty"`
}

// Client wraps an OpenAI-compatible API client.
type Client struct {
	api   *openai.Client
	model string
}

// New creates a new LLM client.
func New(baseURL, apiKey, modelName string) *Client {
	config := openai.DefaultConfig(apiKey)
	if baseURL != "" {
		config.BaseURL = baseURL
	}
	return &Client{
		api:   openai.NewClientWithConfig(config),
		model: modelName,
	}
}

// Ping checks that the endpoint answers and knows the configured model.
func (c *Client) Ping(ctx context.Context) error {
	models, err := c.api.ListModels(ctx)
	if err != nil {
		return fmt.Errorf("list models: %w", err)
	}
	for _, m := range models.Models {
		if m.ID == c.model {
			return nil
		}
	}
	slog.Warn("configured model not listed by endpoint", "model", c.model, "available", len(models.Models))
	return nil
}

// DraftScripts asks the model for a dynamic_question/logical_answer pair
// matching the taxonomy and format of d.
func (c *Client) DraftScripts(ctx context.Context, d model.TemplateDraft) (*Draft, error) {
	sys, usr, err := prompts.BuildDraftPrompt(prompts.NewDraftData(d))
	if err != nil {
		return nil, err
	}

	resp, err := c.api.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model: c.model,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: sys},
			{Role: openai.ChatMessageRoleUser, Content: usr},
		},
		ResponseFormat: &openai.ChatCompletionResponseFormat{
			Type: openai.ChatCompletionResponseFormatTypeJSONObject,
		},
		Temperature: 0.4,
	})
	if err != nil {
		return nil, fmt.Errorf("LLM API call: %w", err)
	}
	if len(resp.Choices) == 0 {
		return nil, fmt.Errorf("LLM returned no choices")
	}

	raw := resp.Choices[0].Message.Content
	slog.Debug("LLM response", "raw", raw)
	return parseDraft(raw, d)
}

// parseDraft decodes the model reply and lints the scripts in the context
// of the rest of the template.
func parseDraft(raw string, d model.TemplateDraft) (*Draft, error) {
	var out Draft
	if err := json.Unmarshal([]byte(stripFence(raw)), &out); err != nil {
		return nil, fmt.Errorf("parse LLM response: %w (raw: %s)", err, raw)
	}
	out.DynamicQuestion = strings.TrimSpace(out.DynamicQuestion)
	out.LogicalAnswer = strings.TrimSpace(out.LogicalAnswer)
	out.Notes = strings.TrimSpace(out.Notes)
	if out.DynamicQuestion == "" && out.LogicalAnswer == "" {
		return nil, ErrEmptyDraft
	}

	d.DynamicQuestion = out.DynamicQuestion
	d.LogicalAnswer = out.LogicalAnswer
	if issues := validate.LintTemplate(d); len(issues) > 0 {
		out.Issues = issues
	}
	return &out, nil
}

// stripFence removes a ```json fence some models add even in JSON mode.
func stripFence(s string) string {
	s = strings.TrimSpace(s)
	if !strings.HasPrefix(s, "```") {
		return s
	}
	s = strings.TrimPrefix(s, "```")
	s = strings.TrimPrefix(s, "json")
	s = strings.TrimSuffix(strings.TrimSpace(s), "```")
	return strings.TrimSpace(s)
}
