package model

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

// Classify maps a provider SDK error onto a *ModelError.
//
// Every adapter funnels its API errors through here, so callers see
// one taxonomy regardless of provider. Classification is by error
// message inspection because the SDKs do not share error types.
func Classify(provider string, err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return &ModelError{
			Code:      "timeout",
			Message:   "request cancelled or timed out",
			Retryable: true,
		}
	}

	msg := err.Error()
	switch {
	case strings.Contains(msg, "401"),
		strings.Contains(msg, "403"),
		strings.Contains(msg, "authentication"),
		strings.Contains(msg, "api_key"):
		return &ModelError{
			Code:      "invalid_api_key",
			Message:   "API key is invalid or expired",
			Retryable: false,
		}
	case strings.Contains(msg, "429"),
		strings.Contains(msg, "rate_limit"),
		strings.Contains(msg, "too many requests"):
		return &ModelError{
			Code:      "rate_limited",
			Message:   "API rate limit exceeded",
			Retryable: true,
		}
	case strings.Contains(msg, "quota"),
		strings.Contains(msg, "billing"):
		return &ModelError{
			Code:      "quota_exceeded",
			Message:   "API quota exceeded",
			Retryable: false,
		}
	case strings.Contains(msg, "timeout"),
		strings.Contains(msg, "deadline"):
		return &ModelError{
			Code:      "timeout",
			Message:   "request timed out",
			Retryable: true,
		}
	default:
		return &ModelError{
			Code:      "api_error",
			Message:   fmt.Sprintf("%s API error: %v", provider, err),
			Retryable: false,
		}
	}
}
