package vectorstore

import (
	"context"
	"testing"

	"github.com/fyrsmithlabs/healthqa/internal/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewStore(t *testing.T) {
	ctx := context.Background()
	emb := &bagEmbedder{dim: 8}

	s, err := NewStore(ctx, config.VectorStoreConfig{
		Provider:   "chromem",
		Collection: "kb_test",
		Chromem:    config.ChromemConfig{Path: t.TempDir()},
	}, emb, 8, nil)
	require.NoError(t, err)
	assert.IsType(t, &ChromemStore{}, s)

	_, err = NewStore(ctx, config.VectorStoreConfig{Provider: "qdrant"}, emb, 0, nil)
	assert.ErrorIs(t, err, ErrInvalidConfig)

	_, err = NewStore(ctx, config.VectorStoreConfig{Provider: "faiss"}, emb, 8, nil)
	assert.ErrorIs(t, err, ErrInvalidConfig)
}
