package generation

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/fyrsmithlabs/healthqa/internal/config"
	"github.com/fyrsmithlabs/healthqa/internal/conversation"
	"github.com/tmc/langchaingo/llms"
	"github.com/tmc/langchaingo/llms/openai"
	"github.com/tmc/langchaingo/schema"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

const defaultBaseBackoff = 500 * time.Millisecond

// contentModel is the part of llms.Model the generator needs.
type contentModel interface {
	GenerateContent(ctx context.Context, messages []llms.MessageContent, options ...llms.CallOption) (*llms.ContentResponse, error)
}

// OpenAIGenerator implements Generator over an OpenAI-compatible API.
type OpenAIGenerator struct {
	model       contentModel
	modelName   string
	temperature float64
	maxTokens   int
	maxRetries  int
	backoff     time.Duration
	limiter     *rate.Limiter
	logger      *zap.Logger
}

// NewOpenAIGenerator builds a generator from the generation config section.
func NewOpenAIGenerator(cfg config.GenerationConfig, logger *zap.Logger) (*OpenAIGenerator, error) {
	if cfg.APIKey.Value() == "" {
		return nil, fmt.Errorf("%w: api key required", ErrInvalidConfig)
	}
	if cfg.Model == "" {
		return nil, fmt.Errorf("%w: model required", ErrInvalidConfig)
	}

	opts := []openai.Option{
		openai.WithModel(cfg.Model),
		openai.WithToken(cfg.APIKey.Value()),
	}
	if cfg.BaseURL != "" {
		opts = append(opts, openai.WithBaseURL(cfg.BaseURL))
	}
	llm, err := openai.New(opts...)
	if err != nil {
		return nil, fmt.Errorf("creating openai client: %w", err)
	}
	return newOpenAIGenerator(llm, cfg, logger), nil
}

func newOpenAIGenerator(model contentModel, cfg config.GenerationConfig, logger *zap.Logger) *OpenAIGenerator {
	if logger == nil {
		logger = zap.NewNop()
	}
	limit := rate.Inf
	if cfg.RateLimit > 0 {
		limit = rate.Limit(cfg.RateLimit)
	}
	burst := cfg.Burst
	if burst <= 0 {
		burst = 1
	}
	return &OpenAIGenerator{
		model:       model,
		modelName:   cfg.Model,
		temperature: cfg.Temperature,
		maxTokens:   cfg.MaxTokens,
		maxRetries:  cfg.MaxRetries,
		backoff:     defaultBaseBackoff,
		limiter:     rate.NewLimiter(limit, burst),
		logger:      logger,
	}
}

// Generate sends the request, retrying transient failures.
// Every error returned wraps ErrUnavailable.
func (g *OpenAIGenerator) Generate(ctx context.Context, req Request) (string, error) {
	if err := g.limiter.Wait(ctx); err != nil {
		return "", fmt.Errorf("%w: rate limiter: %v", ErrUnavailable, err)
	}

	messages := buildMessages(req)
	temperature := g.temperature
	if req.Temperature != nil {
		temperature = *req.Temperature
	}
	maxTokens := g.maxTokens
	if req.MaxTokens > 0 {
		maxTokens = req.MaxTokens
	}
	callOpts := []llms.CallOption{llms.WithTemperature(temperature)}
	if maxTokens > 0 {
		callOpts = append(callOpts, llms.WithMaxTokens(maxTokens))
	}

	var lastErr error
	for attempt := 0; attempt <= g.maxRetries; attempt++ {
		if attempt > 0 {
			backoff := g.backoff * time.Duration(1<<(attempt-1))
			select {
			case <-time.After(backoff):
			case <-ctx.Done():
				return "", fmt.Errorf("%w: %v", ErrUnavailable, ctx.Err())
			}
		}

		resp, err := g.model.GenerateContent(ctx, messages, callOpts...)
		if err == nil {
			if len(resp.Choices) == 0 || strings.TrimSpace(resp.Choices[0].Content) == "" {
				return "", fmt.Errorf("%w: %w", ErrUnavailable, ErrEmptyResponse)
			}
			return resp.Choices[0].Content, nil
		}

		lastErr = err
		if !isRetryable(ctx, err) {
			break
		}
		g.logger.Debug("generation attempt failed",
			zap.String("model", g.modelName),
			zap.Int("attempt", attempt+1),
			zap.Error(err),
		)
	}
	return "", fmt.Errorf("%w: %v", ErrUnavailable, lastErr)
}

func buildMessages(req Request) []llms.MessageContent {
	messages := make([]llms.MessageContent, 0, len(req.History)+2)
	if req.System != "" {
		messages = append(messages, llms.TextParts(schema.ChatMessageTypeSystem, req.System))
	}
	for _, turn := range req.History {
		role := schema.ChatMessageTypeHuman
		if turn.Role == conversation.RoleAssistant {
			role = schema.ChatMessageTypeAI
		}
		messages = append(messages, llms.TextParts(role, turn.Content))
	}
	return append(messages, llms.TextParts(schema.ChatMessageTypeHuman, req.Prompt))
}

// isRetryable treats cancellation and client errors (4xx other than 429)
// as permanent.
func isRetryable(ctx context.Context, err error) bool {
	if ctx.Err() != nil || errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}
	msg := err.Error()
	for _, code := range []string{"400", "401", "403", "404", "422"} {
		if strings.Contains(msg, "status code: "+code) {
			return false
		}
	}
	return true
}
