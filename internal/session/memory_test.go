package session

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/fyrsmithlabs/healthqa/internal/conversation"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNew(t *testing.T) {
	s := New("")
	assert.NotEmpty(t, s.ID)
	assert.False(t, s.CreatedAt.IsZero())

	assert.Equal(t, "abc", New("abc").ID)
	assert.NotEqual(t, New("").ID, New("").ID)
}

func TestMemoryStore_SaveAndGet(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore(time.Hour, 10)

	s := New("s1")
	s.History = s.History.Append(conversation.User("我头疼"), conversation.Assistant("哪个部位？"))
	s.PendingClarification = true
	s.PendingQuery = "我头疼"
	require.NoError(t, store.Save(ctx, s))

	got, err := store.Get(ctx, "s1")
	require.NoError(t, err)
	assert.Equal(t, s.History, got.History)
	assert.True(t, got.PendingClarification)
	assert.Equal(t, "我头疼", got.PendingQuery)
}

func TestMemoryStore_Isolation(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore(time.Hour, 10)

	s := New("s1")
	s.History = conversation.History{conversation.User("a")}
	require.NoError(t, store.Save(ctx, s))

	s.History[0].Content = "mutated"
	got, err := store.Get(ctx, "s1")
	require.NoError(t, err)
	assert.Equal(t, "a", got.History[0].Content)

	got.History[0].Content = "mutated again"
	again, err := store.Get(ctx, "s1")
	require.NoError(t, err)
	assert.Equal(t, "a", again.History[0].Content)
}

func TestMemoryStore_NotFound(t *testing.T) {
	store := NewMemoryStore(time.Hour, 10)
	_, err := store.Get(context.Background(), "missing")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestMemoryStore_Expiry(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore(time.Minute, 10)
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	store.now = func() time.Time { return now }

	require.NoError(t, store.Save(ctx, New("s1")))
	_, err := store.Get(ctx, "s1")
	require.NoError(t, err)

	now = now.Add(2 * time.Minute)
	_, err = store.Get(ctx, "s1")
	assert.ErrorIs(t, err, ErrNotFound)
	assert.Zero(t, store.Len())
}

func TestMemoryStore_LRUEviction(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore(time.Hour, 2)
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	store.now = func() time.Time {
		now = now.Add(time.Second)
		return now
	}

	require.NoError(t, store.Save(ctx, New("a")))
	require.NoError(t, store.Save(ctx, New("b")))
	_, err := store.Get(ctx, "a")
	require.NoError(t, err)

	require.NoError(t, store.Save(ctx, New("c")))
	assert.Equal(t, 2, store.Len())

	_, err = store.Get(ctx, "b")
	assert.ErrorIs(t, err, ErrNotFound, "least recently used entry should be evicted")
	_, err = store.Get(ctx, "a")
	assert.NoError(t, err)
}

func TestMemoryStore_UpdateDoesNotEvict(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore(time.Hour, 2)

	require.NoError(t, store.Save(ctx, New("a")))
	require.NoError(t, store.Save(ctx, New("b")))
	require.NoError(t, store.Save(ctx, New("a")))
	assert.Equal(t, 2, store.Len())
}

func TestMemoryStore_Delete(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore(time.Hour, 10)
	require.NoError(t, store.Save(ctx, New("a")))
	require.NoError(t, store.Delete(ctx, "a"))
	require.NoError(t, store.Delete(ctx, "a"))

	_, err := store.Get(ctx, "a")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestMemoryStore_RejectsInvalidID(t *testing.T) {
	store := NewMemoryStore(time.Hour, 10)
	err := store.Save(context.Background(), &Session{})
	assert.ErrorIs(t, err, ErrInvalidID)
}

func TestMemoryStore_Concurrent(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore(time.Hour, 50)

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			id := fmt.Sprintf("s%d", i)
			for j := 0; j < 20; j++ {
				_ = store.Save(ctx, New(id))
				_, _ = store.Get(ctx, id)
			}
		}(i)
	}
	wg.Wait()
	assert.Equal(t, 20, store.Len())
}
