// Package openai adapts OpenAI's chat completion API to the ChatModel
// interface using the official openai-go client.
package openai

import (
	"context"
	"errors"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
	"github.com/openai/openai-go/shared"

	"github.com/strataworks/strata/pipeline/model"
)

// DefaultModel is used when no model name is supplied.
const DefaultModel = "gpt-4o"

// Model implements model.ChatModel for GPT models. Safe for
// concurrent use; the SDK client handles thread safety internally.
type Model struct {
	client    *openai.Client
	modelName string
}

// New creates a GPT-backed ChatModel. An empty modelName selects
// DefaultModel.
func New(apiKey, modelName string) (*Model, error) {
	if apiKey == "" {
		return nil, errors.New("API key cannot be empty")
	}
	if modelName == "" {
		modelName = DefaultModel
	}

	client := openai.NewClient(
		option.WithAPIKey(apiKey),
	)
	return &Model{
		client:    &client,
		modelName: modelName,
	}, nil
}

// Complete implements the model.ChatModel interface.
func (m *Model) Complete(ctx context.Context, req model.Request) (model.Response, error) {
	if err := ctx.Err(); err != nil {
		return model.Response{}, err
	}
	if req.Prompt == "" {
		return model.Response{}, errors.New("prompt is required")
	}

	prompt := req.Prompt
	if req.System != "" {
		prompt = req.System + "\n\n" + prompt
	}

	params := openai.ChatCompletionNewParams{
		Model: shared.ChatModel(m.modelName),
		Messages: []openai.ChatCompletionMessageParamUnion{
			{
				OfUser: &openai.ChatCompletionUserMessageParam{
					Content: openai.ChatCompletionUserMessageParamContentUnion{
						OfString: openai.String(prompt),
					},
				},
			},
		},
	}
	if req.MaxTokens > 0 {
		params.MaxTokens = openai.Int(int64(req.MaxTokens))
	}

	completion, err := m.client.Chat.Completions.New(ctx, params)
	if err != nil {
		return model.Response{}, model.Classify("openai", err)
	}
	if len(completion.Choices) == 0 {
		return model.Response{}, &model.ModelError{
			Code:      "api_error",
			Message:   "no response choices from OpenAI API",
			Retryable: true,
		}
	}

	return model.Response{
		Text:       completion.Choices[0].Message.Content,
		TokensUsed: int(completion.Usage.TotalTokens),
		Provider:   "openai",
	}, nil
}
