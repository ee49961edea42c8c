package scorer

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/sashabaranov/go-openai"
	"github.com/sashabaranov/go-openai/jsonschema"
)

func (s *scorer) processBatch(ctx context.Context, texts []string, options scoringOptions) ([]Result, error) {
	slog.Debug("Processing batch of texts", "batch_size", len(texts), "model", options.model)

	schema, err := jsonschema.GenerateSchemaForType(sentimentResponse{})
	if err != nil {
		return nil, fmt.Errorf("failed to generate JSON schema for batch of %d texts: %w", len(texts), err)
	}

	input, err := formatTextsForBatch(texts)
	if err != nil {
		return nil, fmt.Errorf("failed to format batch of %d texts: %w", len(texts), err)
	}

	resp, err := s.createChatCompletion(ctx, s.buildChatRequest(options.model, input, schema))
	if err != nil {
		return nil, fmt.Errorf("failed to create chat completion for batch of %d texts: %w", len(texts), err)
	}

	items, err := s.parseResponse(resp, len(texts))
	if err != nil {
		return nil, fmt.Errorf("failed to parse response for batch of %d texts: %w", len(texts), err)
	}

	return alignResults(items, len(texts))
}

func (s *scorer) buildChatRequest(model, input string, schema *jsonschema.Definition) openai.ChatCompletionRequest {
	return openai.ChatCompletionRequest{
		Model: model,
		Messages: []openai.ChatCompletionMessage{
			{
				Role:    openai.ChatMessageRoleSystem,
				Content: s.prompt,
			},
			{
				Role:    openai.ChatMessageRoleUser,
				Content: input,
			},
		},
		ResponseFormat: &openai.ChatCompletionResponseFormat{
			Type: openai.ChatCompletionResponseFormatTypeJSONSchema,
			JSONSchema: &openai.ChatCompletionResponseFormatJSONSchema{
				Schema: schema,
				Name:   "sentiment_scoring",
			},
		},
	}
}

func (s *scorer) createChatCompletion(ctx context.Context, req openai.ChatCompletionRequest) (*openai.ChatCompletionResponse, error) {
	start := time.Now()
	resp, err := s.client.CreateChatCompletion(ctx, req)
	if err != nil {
		s.metrics.RecordAPICall("chat_completions", "error", time.Since(start).Seconds())
		return nil, fmt.Errorf("OpenAI API request failed: %w", err)
	}
	s.metrics.RecordAPICall("chat_completions", "success", time.Since(start).Seconds())
	s.metrics.RecordTokensUsed("prompt", resp.Usage.PromptTokens)
	s.metrics.RecordTokensUsed("completion", resp.Usage.CompletionTokens)
	s.metrics.RecordTokensUsed("total", resp.Usage.TotalTokens)

	if len(resp.Choices) == 0 {
		return nil, fmt.Errorf("OpenAI returned empty response with no choices")
	}

	return &resp, nil
}

func (s *scorer) parseResponse(resp *openai.ChatCompletionResponse, expectedCount int) ([]sentimentItem, error) {
	var result sentimentResponse
	if err := json.Unmarshal([]byte(resp.Choices[0].Message.Content), &result); err != nil {
		return nil, fmt.Errorf("failed to unmarshal OpenAI response (expected %d texts): %w", expectedCount, err)
	}

	if err := validateResponse(result, expectedCount); err != nil {
		return nil, err
	}

	return result.Results, nil
}

func validateResponse(result sentimentResponse, expectedCount int) error {
	if len(result.Results) != expectedCount {
		return fmt.Errorf("%w: expected %d results, received %d",
			ErrResultMismatch, expectedCount, len(result.Results))
	}

	for _, item := range result.Results {
		if !isValidLabel(item.Label) {
			return fmt.Errorf("invalid label %q for text %d", item.Label, item.Index)
		}
		if item.Score < 0 || item.Score > 1 {
			return fmt.Errorf("invalid score %v for text %d: score must be between 0 and 1", item.Score, item.Index)
		}
	}

	return nil
}

// alignResults orders items by their index; every position must be filled exactly once
func alignResults(items []sentimentItem, count int) ([]Result, error) {
	results := make([]Result, count)
	seen := make([]bool, count)
	for _, item := range items {
		if item.Index < 0 || item.Index >= count {
			return nil, fmt.Errorf("%w: index %d out of range", ErrResultMismatch, item.Index)
		}
		if seen[item.Index] {
			return nil, fmt.Errorf("%w: duplicate index %d", ErrResultMismatch, item.Index)
		}
		seen[item.Index] = true
		results[item.Index] = Result{Label: item.Label, Score: item.Score}

		slog.Debug("Text scored",
			"index", item.Index,
			"label", item.Label,
			"score", item.Score)
	}
	return results, nil
}

func isValidLabel(label string) bool {
	switch label {
	case LabelPositive, LabelNegative, LabelNeutral:
		return true
	default:
		return false
	}
}

func formatTextsForBatch(texts []string) (string, error) {
	type indexedText struct {
		Index int    `json:"index"`
		Text  string `json:"text"`
	}

	input := struct {
		Texts []indexedText `json:"texts"`
	}{
		Texts: make([]indexedText, len(texts)),
	}
	for i, text := range texts {
		input.Texts[i] = indexedText{Index: i, Text: text}
	}

	jsonData, err := json.MarshalIndent(input, "", "  ")
	if err != nil {
		return "", err
	}

	return string(jsonData), nil
}
