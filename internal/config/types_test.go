package config

import (
	"encoding/json"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDuration_UnmarshalText(t *testing.T) {
	var d Duration
	require.NoError(t, d.UnmarshalText([]byte("1m30s")))
	assert.Equal(t, 90*time.Second, d.Duration())

	require.NoError(t, d.UnmarshalText([]byte("1825d")))
	assert.Equal(t, 1825*24*time.Hour, d.Duration())

	require.NoError(t, d.UnmarshalText([]byte(" 2h ")))
	assert.Equal(t, 2*time.Hour, d.Duration())

	assert.Error(t, d.UnmarshalText([]byte("-5s")))
	assert.Error(t, d.UnmarshalText([]byte("-3d")))
	assert.Error(t, d.UnmarshalText([]byte("1.5d")))
	assert.Error(t, d.UnmarshalText([]byte("soon")))
}

func TestDuration_MarshalJSON(t *testing.T) {
	b, err := json.Marshal(struct{ TTL Duration }{Duration(90 * time.Minute)})
	require.NoError(t, err)
	assert.JSONEq(t, `{"TTL":"1h30m0s"}`, string(b))
}

func TestSecret_NeverLeaks(t *testing.T) {
	s := Secret("sk-live-123")

	assert.Equal(t, "[REDACTED]", s.String())
	assert.Equal(t, "[REDACTED]", fmt.Sprintf("%v", s))
	assert.NotContains(t, fmt.Sprintf("%#v", s), "sk-live")

	b, err := json.Marshal(struct{ Key Secret }{s})
	require.NoError(t, err)
	assert.JSONEq(t, `{"Key":"[REDACTED]"}`, string(b))

	assert.Equal(t, "sk-live-123", s.Value())
	assert.True(t, s.IsSet())
	assert.False(t, Secret("").IsSet())
	assert.Equal(t, "", Secret("").String())
}
