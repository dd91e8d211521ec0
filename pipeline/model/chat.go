// Package model defines the chat-model boundary used by analysis
// handlers.
//
// A ChatModel turns one prompt into one completion. Handlers stay
// thin: they render a prompt, call Complete, and parse the text that
// comes back. Provider specifics (authentication, message formats,
// retry behavior) live in the adapter subpackages:
//
//	model/anthropic  Claude via the official anthropic-sdk-go
//	model/openai     GPT via the official openai-go
//	model/google     Gemini via generative-ai-go
//
// Example:
//
//	m := anthropic.New(os.Getenv("ANTHROPIC_API_KEY"), "")
//	resp, err := m.Complete(ctx, model.Request{
//	    System: "You are a research assistant.",
//	    Prompt: "Summarize the following abstract: ...",
//	})
//	if err != nil {
//	    log.Fatal(err)
//	}
//	fmt.Println(resp.Text)
package model

import "context"

// Request is a single completion request.
type Request struct {
	// System sets context and behavior. Optional; adapters fold it
	// into the provider's native system mechanism or prepend it to
	// the prompt.
	System string

	// Prompt is the user-facing input. Required.
	Prompt string

	// MaxTokens caps the completion length. Zero means the adapter's
	// default.
	MaxTokens int
}

// Response is a completion result.
type Response struct {
	// Text is the generated completion.
	Text string

	// TokensUsed is the total token count the provider reported for
	// the request, zero when the provider does not report usage.
	TokensUsed int

	// Provider identifies which adapter produced the response.
	Provider string
}

// ChatModel is implemented by every provider adapter.
//
// Implementations must respect context cancellation and translate
// provider errors into *ModelError so callers can branch on
// retryability without knowing the provider.
type ChatModel interface {
	Complete(ctx context.Context, req Request) (Response, error)
}

// ModelError is the common error shape across providers.
type ModelError struct {
	// Code classifies the failure: "invalid_api_key", "rate_limited",
	// "quota_exceeded", "timeout", "parse_error", or "api_error".
	Code string

	// Message is the human-readable description.
	Message string

	// Retryable reports whether retrying the same request can
	// plausibly succeed.
	Retryable bool
}

func (e *ModelError) Error() string {
	return e.Code + ": " + e.Message
}
