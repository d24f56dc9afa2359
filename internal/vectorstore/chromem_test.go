package vectorstore

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/fyrsmithlabs/healthqa/internal/conversation"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestChromem(t *testing.T, path string) *ChromemStore {
	t.Helper()
	s, err := NewChromemStore(ChromemConfig{Path: path}, &bagEmbedder{dim: 64}, nil)
	require.NoError(t, err)
	return s
}

func TestChromemStore_AddAndSearch(t *testing.T) {
	ctx := context.Background()
	s := newTestChromem(t, t.TempDir())

	ids, err := s.AddDocuments(ctx, []Document{
		{ID: "a", Content: "hypertension diet low salt", Metadata: map[string]string{"document_type": "guideline"}},
		{ID: "b", Content: "感冒咳嗽怎么办", Metadata: map[string]string{"document_type": "forum"}},
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "b"}, ids)

	n, err := s.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	// k larger than the collection is capped.
	results, err := s.Search(ctx, "hypertension salt", 10)
	require.NoError(t, err)
	require.Len(t, results, 2)
	assert.Equal(t, "a", results[0].ID)
	assert.Equal(t, "guideline", results[0].Metadata["document_type"])
	assert.GreaterOrEqual(t, results[0].Score, results[1].Score)
}

func TestChromemStore_Persistence(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()

	s := newTestChromem(t, dir)
	_, err := s.AddDocuments(ctx, []Document{{ID: "x", Content: "fever in children"}})
	require.NoError(t, err)
	require.NoError(t, s.Close())

	reopened := newTestChromem(t, dir)
	n, err := reopened.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}

func TestChromemStore_EmptyCollection(t *testing.T) {
	s := newTestChromem(t, "")
	results, err := s.Search(context.Background(), "anything", 3)
	require.NoError(t, err)
	assert.Empty(t, results)
}

func TestChromemStore_Validation(t *testing.T) {
	ctx := context.Background()
	s := newTestChromem(t, "")

	_, err := s.AddDocuments(ctx, nil)
	assert.ErrorIs(t, err, ErrEmptyDocuments)

	_, err = s.AddDocuments(ctx, []Document{{Content: "no id"}})
	assert.Error(t, err)

	_, err = s.Search(ctx, "", 3)
	assert.ErrorIs(t, err, ErrInvalidQuery)

	_, err = s.Search(ctx, "q", 0)
	assert.ErrorIs(t, err, ErrInvalidQuery)
}

func TestChromemStore_LongChineseQuery(t *testing.T) {
	ctx := context.Background()
	s := newTestChromem(t, "")
	_, err := s.AddDocuments(ctx, []Document{{ID: "g1", Content: "高血压患者每日食盐摄入应少于5克"}})
	require.NoError(t, err)

	// 3500 CJK runes is 10500 bytes but a valid chat message.
	q := strings.Repeat("高血压饮食", 700)
	require.Greater(t, len(q), 10000)
	results, err := s.Search(ctx, q, 3)
	require.NoError(t, err)
	assert.Len(t, results, 1)

	// A clarified query joins two maximal messages.
	joined := strings.Repeat("痛", conversation.MaxContentRunes) + "。补充信息：" + strings.Repeat("痛", conversation.MaxContentRunes)
	_, err = validateSearch(joined, 5)
	assert.NoError(t, err)

	_, err = validateSearch(strings.Repeat("痛", maxQueryRunes+1), 5)
	assert.ErrorIs(t, err, ErrInvalidQuery)
}

func TestChromemStore_EmbedderFailure(t *testing.T) {
	s, err := NewChromemStore(ChromemConfig{}, &bagEmbedder{dim: 8, fail: errors.New("model offline")}, nil)
	require.NoError(t, err)

	_, err = s.AddDocuments(context.Background(), []Document{{ID: "a", Content: "x"}})
	assert.ErrorIs(t, err, ErrEmbeddingFailed)
}

func TestNewChromemStore_RequiresEmbedder(t *testing.T) {
	_, err := NewChromemStore(ChromemConfig{}, nil, nil)
	assert.ErrorIs(t, err, ErrInvalidConfig)
}

func TestValidateCollectionName(t *testing.T) {
	tests := []struct {
		name  string
		valid bool
	}{
		{"health_knowledge", true},
		{"kb2", true},
		{"", false},
		{"Health", false},
		{"../etc", false},
		{"has space", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateCollectionName(tt.name)
			if tt.valid {
				assert.NoError(t, err)
			} else {
				assert.ErrorIs(t, err, ErrInvalidCollectionName)
			}
		})
	}
}
