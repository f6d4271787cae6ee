package llm

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"slices"

	"github.com/pavelanni/examforge/internal/llm/prompts"
	"github.com/pavelanni/examforge/internal/mdmap"

	openai "github.com/sashabaranov/go-openai"
)

// Suggestion is one span proposed by the LLM.
type Suggestion struct {
	Type   mdmap.Type   `json:"type"`
	Lines  []int        `json:"lines"`
	UIType mdmap.UIType `json:"uiType,omitempty"`
	IsAns  bool         `json:"isAns,omitempty"`
}

// rawSuggestion also accepts a from/to range in place of a line list.
type rawSuggestion struct {
	Suggestion
	From int `json:"from"`
	To   int `json:"to"`
}

// Client wraps an OpenAI-compatible API client.
type Client struct {
	api     *openai.Client
	model   string
	variant prompts.PromptVariant
}

// New creates a new LLM client.
func New(baseURL, apiKey, modelName string, variant prompts.PromptVariant) *Client {
	config := openai.DefaultConfig(apiKey)
	if baseURL != "" {
		config.BaseURL = baseURL
	}
	return &Client{
		api:     openai.NewClientWithConfig(config),
		model:   modelName,
		variant: variant,
	}
}

// SuggestAnnotations asks the LLM to annotate a transcript. Suggestions with an
// unknown type or lines outside the transcript are dropped.
func (c *Client) SuggestAnnotations(ctx context.Context, lines []mdmap.Line) ([]Suggestion, error) {
	prompt, err := prompts.BuildSuggestPrompt(c.variant, lines)
	if err != nil {
		return nil, fmt.Errorf("build prompt: %w", err)
	}

	resp, err := c.api.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model: c.model,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleUser, Content: prompt},
		},
		ResponseFormat: &openai.ChatCompletionResponseFormat{
			Type: openai.ChatCompletionResponseFormatTypeJSONObject,
		},
		Temperature: 0.1,
	})
	if err != nil {
		return nil, fmt.Errorf("LLM API call: %w", err)
	}

	if len(resp.Choices) == 0 {
		return nil, fmt.Errorf("LLM returned no choices")
	}

	raw := resp.Choices[0].Message.Content
	slog.Debug("LLM response", "raw", raw)

	return parseSuggestions(raw, len(lines))
}

func parseSuggestions(raw string, lineCount int) ([]Suggestion, error) {
	var payload struct {
		Annotations []rawSuggestion `json:"annotations"`
	}
	if err := json.Unmarshal([]byte(raw), &payload); err != nil {
		return nil, fmt.Errorf("parse LLM response: %w (raw: %s)", err, raw)
	}

	out := make([]Suggestion, 0, len(payload.Annotations))
	for _, r := range payload.Annotations {
		s := r.Suggestion
		if len(s.Lines) == 0 && r.From > 0 && r.To >= r.From {
			for l := r.From; l <= r.To; l++ {
				s.Lines = append(s.Lines, l)
			}
		}
		if !s.Type.Valid() {
			slog.Warn("dropping suggestion with unknown type", "type", s.Type)
			continue
		}
		if len(s.Lines) == 0 || slices.Min(s.Lines) < 1 || slices.Max(s.Lines) > lineCount {
			slog.Warn("dropping suggestion with invalid lines", "type", s.Type, "lines", s.Lines)
			continue
		}
		if s.UIType != "" && !s.UIType.Valid() {
			s.UIType = ""
		}
		out = append(out, s)
	}
	return out, nil
}
