// Package google adapts Google's Gemini API to the ChatModel
// interface using generative-ai-go.
package google

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/generative-ai-go/genai"
	"google.golang.org/api/option"

	"github.com/strataworks/strata/pipeline/model"
)

// DefaultModel is used when no model name is supplied.
const DefaultModel = "gemini-1.5-flash"

// Model implements model.ChatModel for Gemini. Close must be called
// when the model is no longer needed to release the client.
type Model struct {
	client    *genai.Client
	modelName string
}

// New creates a Gemini-backed ChatModel. An empty modelName selects
// DefaultModel. The context is used only for client construction.
func New(ctx context.Context, apiKey, modelName string) (*Model, error) {
	if apiKey == "" {
		return nil, errors.New("API key cannot be empty")
	}
	if modelName == "" {
		modelName = DefaultModel
	}

	client, err := genai.NewClient(ctx, option.WithAPIKey(apiKey))
	if err != nil {
		return nil, fmt.Errorf("failed to create Gemini client: %w", err)
	}
	return &Model{
		client:    client,
		modelName: modelName,
	}, nil
}

// Close releases the underlying Gemini client.
func (m *Model) Close() error {
	if m.client != nil {
		return m.client.Close()
	}
	return nil
}

// Complete implements the model.ChatModel interface.
func (m *Model) Complete(ctx context.Context, req model.Request) (model.Response, error) {
	if err := ctx.Err(); err != nil {
		return model.Response{}, err
	}
	if req.Prompt == "" {
		return model.Response{}, errors.New("prompt is required")
	}

	gm := m.client.GenerativeModel(m.modelName)
	if req.System != "" {
		gm.SystemInstruction = &genai.Content{
			Parts: []genai.Part{genai.Text(req.System)},
		}
	}
	if req.MaxTokens > 0 {
		gm.SetMaxOutputTokens(int32(req.MaxTokens))
	}

	resp, err := gm.GenerateContent(ctx, genai.Text(req.Prompt))
	if err != nil {
		return model.Response{}, model.Classify("google", err)
	}

	tokensUsed := 0
	if resp.UsageMetadata != nil {
		tokensUsed = int(resp.UsageMetadata.TotalTokenCount)
	}

	var text strings.Builder
	if len(resp.Candidates) > 0 && resp.Candidates[0].Content != nil {
		for _, part := range resp.Candidates[0].Content.Parts {
			if t, ok := part.(genai.Text); ok {
				text.WriteString(string(t))
			}
		}
	}

	return model.Response{
		Text:       text.String(),
		TokensUsed: tokensUsed,
		Provider:   "google",
	}, nil
}
