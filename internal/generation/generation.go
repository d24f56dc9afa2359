// Package generation calls the black-box text generation service.
//
// The default Generator talks to any OpenAI-compatible chat completion API
// (DeepSeek by default) through langchaingo, rate limited and retried with
// exponential backoff on transient failures.
package generation

import (
	"context"
	"errors"

	"github.com/fyrsmithlabs/healthqa/internal/conversation"
)

var (
	// ErrUnavailable wraps every failure to obtain a completion.
	ErrUnavailable = errors.New("generation service unavailable")

	// ErrEmptyResponse is returned when the service answers with no text.
	ErrEmptyResponse = errors.New("empty completion")

	// ErrInvalidConfig indicates invalid configuration.
	ErrInvalidConfig = errors.New("invalid generation configuration")
)

// Request is one completion call.
type Request struct {
	// System is the system prompt.
	System string
	// History is prior dialogue, oldest first.
	History conversation.History
	// Prompt is the final user message.
	Prompt string
	// MaxTokens and Temperature override the configured defaults when set.
	MaxTokens   int
	Temperature *float64
}

// Generator produces text for a prompt.
type Generator interface {
	Generate(ctx context.Context, req Request) (string, error)
}

// GeneratorFunc adapts a function to Generator.
type GeneratorFunc func(ctx context.Context, req Request) (string, error)

// Generate calls f.
func (f GeneratorFunc) Generate(ctx context.Context, req Request) (string, error) {
	return f(ctx, req)
}
