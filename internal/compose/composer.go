// Package compose turns graded evidence into a cited answer.
package compose

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/fyrsmithlabs/healthqa/internal/conversation"
	"github.com/fyrsmithlabs/healthqa/internal/evidence"
	"github.com/fyrsmithlabs/healthqa/internal/generation"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.uber.org/zap"
)

var tracer = otel.Tracer("healthqa.compose")

// ErrGenerationUnavailable wraps every generation failure.
var ErrGenerationUnavailable = errors.New("generation unavailable")

// Config configures a Composer.
type Config struct {
	// Timeout bounds each generation call.
	Timeout time.Duration
	// HistoryTurns is how many prior turns are sent with the prompt.
	HistoryTurns int
	// AnswerWithoutEvidence asks for a general answer instead of the
	// apology when nothing was retrieved.
	AnswerWithoutEvidence bool
}

// Answer is a composed reply.
type Answer struct {
	Text       string
	Disclaimer string
	// Grounded is false for the apology and for ungrounded answers.
	Grounded bool
}

// Composer builds prompts and calls the generation service.
type Composer struct {
	gen    generation.Generator
	config Config
	logger *zap.Logger
}

// New returns a Composer.
func New(gen generation.Generator, cfg Config, logger *zap.Logger) *Composer {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Composer{gen: gen, config: cfg, logger: logger}
}

// Compose answers question from graded, which should already be sorted.
func (c *Composer) Compose(ctx context.Context, question string, history conversation.History, graded []evidence.Graded) (Answer, error) {
	if len(graded) == 0 && !c.config.AnswerWithoutEvidence {
		return NoEvidence(), nil
	}

	ctx, span := tracer.Start(ctx, "Composer.Compose")
	defer span.End()
	span.SetAttributes(attribute.Int("evidence_count", len(graded)))

	req := generation.Request{History: history.Trim(c.config.HistoryTurns)}
	if len(graded) == 0 {
		req.System = ungroundedSystemPrompt
		req.Prompt = question
	} else {
		req.System = systemPrompt
		req.Prompt = userPrompt(question, graded)
	}

	if c.config.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.config.Timeout)
		defer cancel()
	}

	start := time.Now()
	text, err := c.gen.Generate(ctx, req)
	if err == nil && strings.TrimSpace(text) == "" {
		err = generation.ErrEmptyResponse
	}
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		c.logger.Warn("generation failed", zap.Error(err), zap.Duration("elapsed", time.Since(start)))
		return Answer{}, fmt.Errorf("%w: %v", ErrGenerationUnavailable, err)
	}

	c.logger.Debug("answer composed",
		zap.Int("evidence_count", len(graded)),
		zap.Duration("elapsed", time.Since(start)))

	return Answer{
		Text:       strings.TrimSpace(text),
		Disclaimer: Disclaimer,
		Grounded:   len(graded) > 0,
	}, nil
}

// NoEvidence is the fixed reply used when retrieval found nothing.
func NoEvidence() Answer {
	return Answer{Text: Apology, Disclaimer: Disclaimer}
}
