package logging

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

func TestNewLogger(t *testing.T) {
	logger, err := NewLogger(NewDefaultConfig(), nil)
	require.NoError(t, err)
	require.NotNil(t, logger.Underlying())
	assert.True(t, logger.Enabled(zapcore.InfoLevel))
	assert.False(t, logger.Enabled(zapcore.DebugLevel))
}

func TestNewLogger_InvalidConfig(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"bad format", func(c *Config) { c.Format = "xml" }},
		{"no output", func(c *Config) { c.Stdout = false }},
		{"bad pattern", func(c *Config) { c.Redaction.Patterns = []string{"("} }},
		{"zero tick", func(c *Config) { c.Sampling.Tick = 0 }},
		{"empty field", func(c *Config) { c.Fields = map[string]string{"k": ""} }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := NewDefaultConfig()
			tt.mutate(cfg)
			_, err := NewLogger(cfg, nil)
			assert.Error(t, err)
		})
	}
}

func TestLogger_Levels(t *testing.T) {
	tl := NewTestLogger()
	ctx := context.Background()

	tl.Trace(ctx, "trace msg")
	tl.Debug(ctx, "debug msg")
	tl.Info(ctx, "info msg")
	tl.Warn(ctx, "warn msg")
	tl.Error(ctx, "error msg")

	tl.AssertLogged(t, TraceLevel, "trace msg")
	tl.AssertLogged(t, zapcore.DebugLevel, "debug msg")
	tl.AssertLogged(t, zapcore.InfoLevel, "info msg")
	tl.AssertLogged(t, zapcore.WarnLevel, "warn msg")
	tl.AssertLogged(t, zapcore.ErrorLevel, "error msg")
	assert.Len(t, tl.All(), 5)
}

func TestLogger_ContextFields(t *testing.T) {
	tl := NewTestLogger()

	traceID, _ := trace.TraceIDFromHex("0102030405060708090a0b0c0d0e0f10")
	spanID, _ := trace.SpanIDFromHex("0102030405060708")
	sc := trace.NewSpanContext(trace.SpanContextConfig{TraceID: traceID, SpanID: spanID})

	ctx := trace.ContextWithSpanContext(context.Background(), sc)
	ctx = WithSessionID(ctx, "sess-1")
	ctx = WithRequestID(ctx, "req_9")

	tl.Info(ctx, "turn handled", zap.Int("evidences", 3))

	tl.AssertField(t, "turn handled", "session.id", "sess-1")
	tl.AssertField(t, "turn handled", "request.id", "req_9")
	tl.AssertField(t, "turn handled", "trace_id", "0102030405060708090a0b0c0d0e0f10")
	tl.AssertField(t, "turn handled", "evidences", int64(3))
}

func TestLogger_WithAndNamed(t *testing.T) {
	tl := NewTestLogger()
	child := tl.Named("dialogue").With(zap.String("component", "orchestrator"))

	child.Info(context.Background(), "ready")

	entries := tl.FilterMessage("ready").All()
	require.Len(t, entries, 1)
	assert.Equal(t, "dialogue", entries[0].LoggerName)
	assert.Equal(t, "orchestrator", entries[0].ContextMap()["component"])
}

func TestParseLevel(t *testing.T) {
	l, err := ParseLevel("trace")
	require.NoError(t, err)
	assert.Equal(t, TraceLevel, l)

	l, err = ParseLevel("warn")
	require.NoError(t, err)
	assert.Equal(t, zapcore.WarnLevel, l)

	_, err = ParseLevel("loud")
	assert.Error(t, err)
}

func TestFromContext(t *testing.T) {
	assert.NotNil(t, FromContext(context.Background()))

	tl := NewTestLogger()
	ctx := WithLogger(context.Background(), tl.Logger)
	assert.Same(t, tl.Logger, FromContext(ctx))
}

func TestWithSessionID_IgnoresUnsafeIDs(t *testing.T) {
	ctx := WithSessionID(context.Background(), "bad id\nwith newline")
	assert.Empty(t, SessionIDFromContext(ctx))

	ctx = WithRequestID(context.Background(), "")
	assert.Empty(t, RequestIDFromContext(ctx))
}

func TestTestLogger_AssertNoText(t *testing.T) {
	tl := NewTestLogger()
	ctx := context.Background()

	tl.Trace(ctx, "message body", zap.String("message", "我头疼"))
	tl.Info(ctx, "clarification requested", zap.String("category", "headache"))

	tl.AssertNoText(t, "我头疼")
}
