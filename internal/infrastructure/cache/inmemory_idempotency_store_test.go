package cache

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestInMemoryStore_MarkProcessed(t *testing.T) {
	store := NewInMemoryIdempotencyStore()
	defer store.Close()
	ctx := context.Background()

	first, err := store.MarkProcessed(ctx, "allocation:t1:tx1", time.Hour)
	require.NoError(t, err)
	assert.True(t, first)

	second, err := store.MarkProcessed(ctx, "allocation:t1:tx1", time.Hour)
	require.NoError(t, err)
	assert.False(t, second)
}

func TestInMemoryStore_IsProcessed(t *testing.T) {
	store := NewInMemoryIdempotencyStore()
	defer store.Close()
	ctx := context.Background()

	processed, err := store.IsProcessed(ctx, "unknown")
	require.NoError(t, err)
	assert.False(t, processed)

	_, err = store.MarkProcessed(ctx, "known", time.Hour)
	require.NoError(t, err)

	processed, err = store.IsProcessed(ctx, "known")
	require.NoError(t, err)
	assert.True(t, processed)
}

func TestInMemoryStore_Unmark(t *testing.T) {
	store := NewInMemoryIdempotencyStore()
	defer store.Close()
	ctx := context.Background()

	_, err := store.MarkProcessed(ctx, "released", time.Hour)
	require.NoError(t, err)

	require.NoError(t, store.Unmark(ctx, "released"))

	again, err := store.MarkProcessed(ctx, "released", time.Hour)
	require.NoError(t, err)
	assert.True(t, again)

	// Unknown keys are a no-op
	require.NoError(t, store.Unmark(ctx, "never-marked"))
}

func TestInMemoryStore_ExpiredKeyCanBeReused(t *testing.T) {
	store := NewInMemoryIdempotencyStore()
	defer store.Close()
	ctx := context.Background()

	_, err := store.MarkProcessed(ctx, "short", time.Millisecond)
	require.NoError(t, err)

	time.Sleep(10 * time.Millisecond)

	processed, err := store.IsProcessed(ctx, "short")
	require.NoError(t, err)
	assert.False(t, processed)

	again, err := store.MarkProcessed(ctx, "short", time.Hour)
	require.NoError(t, err)
	assert.True(t, again)
}

func TestInMemoryStore_Cleanup(t *testing.T) {
	store := NewInMemoryIdempotencyStore()
	defer store.Close()
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		_, err := store.MarkProcessed(ctx, fmt.Sprintf("key-%d", i), time.Millisecond)
		require.NoError(t, err)
	}
	assert.Equal(t, 5, store.Size())

	time.Sleep(10 * time.Millisecond)
	store.cleanup()
	assert.Equal(t, 0, store.Size())
}

func TestInMemoryStore_ConcurrentMark(t *testing.T) {
	store := NewInMemoryIdempotencyStore()
	defer store.Close()
	ctx := context.Background()

	const goroutines = 20
	var wins int32
	var mu sync.Mutex
	var wg sync.WaitGroup

	for i := 0; i < goroutines; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			ok, err := store.MarkProcessed(ctx, "contested", time.Hour)
			assert.NoError(t, err)
			if ok {
				mu.Lock()
				wins++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, int32(1), wins)
}

func TestInMemoryStore_CloseIsIdempotent(t *testing.T) {
	store := NewInMemoryIdempotencyStore()
	require.NoError(t, store.Close())
	require.NoError(t, store.Close())
}
