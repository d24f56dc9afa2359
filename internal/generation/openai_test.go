package generation

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/fyrsmithlabs/healthqa/internal/config"
	"github.com/fyrsmithlabs/healthqa/internal/conversation"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tmc/langchaingo/llms"
	"github.com/tmc/langchaingo/schema"
)

type fakeModel struct {
	errs     []error
	content  string
	calls    int
	messages []llms.MessageContent
	opts     llms.CallOptions
}

func (f *fakeModel) GenerateContent(_ context.Context, messages []llms.MessageContent, options ...llms.CallOption) (*llms.ContentResponse, error) {
	f.calls++
	f.messages = messages
	for _, o := range options {
		o(&f.opts)
	}
	if len(f.errs) > 0 {
		err := f.errs[0]
		f.errs = f.errs[1:]
		return nil, err
	}
	return &llms.ContentResponse{Choices: []*llms.ContentChoice{{Content: f.content}}}, nil
}

func newTestGenerator(m *fakeModel, retries int) *OpenAIGenerator {
	g := newOpenAIGenerator(m, config.GenerationConfig{
		Model:       "deepseek-chat",
		Temperature: 0.3,
		MaxTokens:   2000,
		MaxRetries:  retries,
	}, nil)
	g.backoff = time.Millisecond
	return g
}

func TestGenerate_BuildsMessages(t *testing.T) {
	m := &fakeModel{content: "建议低盐饮食。"}
	g := newTestGenerator(m, 0)

	out, err := g.Generate(context.Background(), Request{
		System: "system rules",
		History: conversation.History{
			conversation.User("我头疼"),
			conversation.Assistant("哪个部位？"),
		},
		Prompt: "左侧太阳穴",
	})
	require.NoError(t, err)
	assert.Equal(t, "建议低盐饮食。", out)

	require.Len(t, m.messages, 4)
	assert.Equal(t, schema.ChatMessageTypeSystem, m.messages[0].Role)
	assert.Equal(t, schema.ChatMessageTypeHuman, m.messages[1].Role)
	assert.Equal(t, schema.ChatMessageTypeAI, m.messages[2].Role)
	assert.Equal(t, schema.ChatMessageTypeHuman, m.messages[3].Role)
	assert.Equal(t, 2000, m.opts.MaxTokens)
	assert.InDelta(t, 0.3, m.opts.Temperature, 1e-9)
}

func TestGenerate_OverridesOptions(t *testing.T) {
	m := &fakeModel{content: "ok"}
	g := newTestGenerator(m, 0)
	zero := 0.0

	_, err := g.Generate(context.Background(), Request{Prompt: "q", MaxTokens: 50, Temperature: &zero})
	require.NoError(t, err)
	assert.Equal(t, 50, m.opts.MaxTokens)
	assert.Equal(t, 0.0, m.opts.Temperature)
}

func TestGenerate_RetriesTransient(t *testing.T) {
	m := &fakeModel{content: "ok", errs: []error{errors.New("API returned unexpected status code: 503")}}
	g := newTestGenerator(m, 2)

	out, err := g.Generate(context.Background(), Request{Prompt: "q"})
	require.NoError(t, err)
	assert.Equal(t, "ok", out)
	assert.Equal(t, 2, m.calls)
}

func TestGenerate_PermanentError(t *testing.T) {
	m := &fakeModel{errs: []error{errors.New("API returned unexpected status code: 401: invalid key")}}
	g := newTestGenerator(m, 3)

	_, err := g.Generate(context.Background(), Request{Prompt: "q"})
	require.ErrorIs(t, err, ErrUnavailable)
	assert.Equal(t, 1, m.calls)
}

func TestGenerate_ExhaustsRetries(t *testing.T) {
	boom := errors.New("connection reset")
	m := &fakeModel{errs: []error{boom, boom, boom}}
	g := newTestGenerator(m, 2)

	_, err := g.Generate(context.Background(), Request{Prompt: "q"})
	require.ErrorIs(t, err, ErrUnavailable)
	assert.Equal(t, 3, m.calls)
}

func TestGenerate_EmptyResponse(t *testing.T) {
	g := newTestGenerator(&fakeModel{content: "  "}, 0)
	_, err := g.Generate(context.Background(), Request{Prompt: "q"})
	assert.ErrorIs(t, err, ErrUnavailable)
	assert.ErrorIs(t, err, ErrEmptyResponse)
}

func TestGenerate_CanceledContext(t *testing.T) {
	m := &fakeModel{content: "ok"}
	g := newTestGenerator(m, 0)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := g.Generate(ctx, Request{Prompt: "q"})
	assert.ErrorIs(t, err, ErrUnavailable)
}

func TestNewOpenAIGenerator_Validation(t *testing.T) {
	_, err := NewOpenAIGenerator(config.GenerationConfig{Model: "deepseek-chat"}, nil)
	assert.ErrorIs(t, err, ErrInvalidConfig)

	g, err := NewOpenAIGenerator(config.GenerationConfig{
		Model:   "deepseek-chat",
		BaseURL: "https://api.deepseek.com/v1",
		APIKey:  config.Secret("sk-test"),
	}, nil)
	require.NoError(t, err)
	assert.NotNil(t, g)
}
