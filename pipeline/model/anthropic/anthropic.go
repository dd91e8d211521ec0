// Package anthropic adapts Anthropic's Claude API to the ChatModel
// interface using the official anthropic-sdk-go client.
package anthropic

import (
	"context"
	"errors"
	"strings"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"

	"github.com/strataworks/strata/pipeline/model"
)

// DefaultModel is used when no model name is supplied.
const DefaultModel = "claude-3-5-sonnet-20241022"

const defaultMaxTokens = 4096

// Model implements model.ChatModel for Claude. Safe for concurrent
// use; the underlying SDK client handles concurrent requests.
type Model struct {
	client    *anthropic.Client
	modelName string
}

// New creates a Claude-backed ChatModel. An empty modelName selects
// DefaultModel. The API key comes from https://console.anthropic.com/.
func New(apiKey, modelName string) *Model {
	if modelName == "" {
		modelName = DefaultModel
	}
	client := anthropic.NewClient(option.WithAPIKey(apiKey))
	return &Model{
		client:    &client,
		modelName: modelName,
	}
}

// Complete implements the model.ChatModel interface.
func (m *Model) Complete(ctx context.Context, req model.Request) (model.Response, error) {
	if err := ctx.Err(); err != nil {
		return model.Response{}, err
	}
	if req.Prompt == "" {
		return model.Response{}, errors.New("prompt is required")
	}

	maxTokens := req.MaxTokens
	if maxTokens == 0 {
		maxTokens = defaultMaxTokens
	}

	prompt := req.Prompt
	if req.System != "" {
		prompt = req.System + "\n\n" + prompt
	}

	message, err := m.client.Messages.New(ctx, anthropic.MessageNewParams{
		Model:     anthropic.Model(m.modelName),
		MaxTokens: int64(maxTokens),
		Messages: []anthropic.MessageParam{
			anthropic.NewUserMessage(anthropic.NewTextBlock(prompt)),
		},
	})
	if err != nil {
		return model.Response{}, model.Classify("anthropic", err)
	}

	var text strings.Builder
	for _, block := range message.Content {
		if block.Type == "text" {
			text.WriteString(block.Text)
		}
	}

	return model.Response{
		Text:       text.String(),
		TokensUsed: int(message.Usage.InputTokens + message.Usage.OutputTokens),
		Provider:   "anthropic",
	}, nil
}
