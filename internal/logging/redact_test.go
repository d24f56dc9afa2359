package logging

import (
	"testing"

	"github.com/fyrsmithlabs/healthqa/internal/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

func encodeEntry(t *testing.T, enc zapcore.Encoder, fields ...zap.Field) string {
	t.Helper()
	buf, err := enc.EncodeEntry(zapcore.Entry{Message: "m"}, fields)
	require.NoError(t, err)
	defer buf.Free()
	return buf.String()
}

func newTestRedactor(t *testing.T) *RedactingEncoder {
	t.Helper()
	base := zapcore.NewJSONEncoder(zap.NewProductionEncoderConfig())
	enc, err := NewRedactingEncoder(base, NewDefaultConfig().Redaction)
	require.NoError(t, err)
	return enc
}

func TestRedactingEncoder_SensitiveKeys(t *testing.T) {
	out := encodeEntry(t, newTestRedactor(t),
		zap.String("api_key", "abc"),
		zap.String("API_KEY", "abc"),
		zap.String("model", "deepseek-chat"),
	)

	assert.NotContains(t, out, `"abc"`)
	assert.Contains(t, out, `"api_key":"[REDACTED]"`)
	assert.Contains(t, out, `"model":"deepseek-chat"`)
}

func TestRedactingEncoder_ValuePatterns(t *testing.T) {
	out := encodeEntry(t, newTestRedactor(t),
		zap.String("header", "Bearer eyJhbGciOi"),
		zap.String("note", "key sk-abcdefghijklmnopqrstu used"),
	)

	assert.NotContains(t, out, "eyJhbGciOi")
	assert.NotContains(t, out, "sk-abcdefghijklmnopqrstu")
	assert.Contains(t, out, "[REDACTED:pattern]")
}

func TestRedactingEncoder_CloneKeepsRules(t *testing.T) {
	clone := newTestRedactor(t).Clone()
	out := encodeEntry(t, clone, zap.String("password", "hunter2"))
	assert.NotContains(t, out, "hunter2")
}

func TestRedactingEncoder_Disabled(t *testing.T) {
	base := zapcore.NewJSONEncoder(zap.NewProductionEncoderConfig())
	enc, err := NewRedactingEncoder(base, RedactionConfig{Enabled: false})
	require.NoError(t, err)

	out := encodeEntry(t, enc, zap.String("password", "visible"))
	assert.Contains(t, out, "visible")
}

func TestNewRedactingEncoder_RejectsBadPatterns(t *testing.T) {
	base := zapcore.NewJSONEncoder(zap.NewProductionEncoderConfig())

	_, err := NewRedactingEncoder(base, RedactionConfig{Enabled: true, Patterns: []string{"[unclosed"}})
	assert.Error(t, err)
}

func TestSecretField(t *testing.T) {
	f := Secret("api_key", config.Secret("sk-12345"))
	assert.Equal(t, "[REDACTED:8]", f.String)

	f = RedactedString("token", "abc")
	assert.Equal(t, "[REDACTED:3]", f.String)
}
