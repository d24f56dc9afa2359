package session

import (
	"context"
	"testing"
	"time"

	"github.com/fyrsmithlabs/healthqa/internal/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewStore(t *testing.T) {
	store, err := NewStore(context.Background(), config.SessionConfig{
		Backend:     "memory",
		TTL:         config.Duration(time.Hour),
		MaxSessions: 5,
	}, nil)
	require.NoError(t, err)
	assert.IsType(t, &MemoryStore{}, store)

	_, err = NewStore(context.Background(), config.SessionConfig{Backend: "etcd"}, nil)
	assert.Error(t, err)
}
