package kvstore

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/YuvDwi/Cradle/errors"
)

func TestMemoryStore_IncrWithTTL(t *testing.T) {
	store := NewMemoryStore(context.Background())
	defer store.Close()

	ctx := context.Background()

	t.Run("counts within window", func(t *testing.T) {
		for want := int64(1); want <= 3; want++ {
			got, err := store.IncrWithTTL(ctx, "counter", time.Minute)
			require.NoError(t, err)
			assert.Equal(t, want, got)
		}
	})

	t.Run("expired window restarts at one", func(t *testing.T) {
		got, err := store.IncrWithTTL(ctx, "short", 30*time.Millisecond)
		require.NoError(t, err)
		assert.Equal(t, int64(1), got)

		time.Sleep(50 * time.Millisecond)

		got, err = store.IncrWithTTL(ctx, "short", 30*time.Millisecond)
		require.NoError(t, err)
		assert.Equal(t, int64(1), got)
	})

	t.Run("later hits keep the original window", func(t *testing.T) {
		_, err := store.IncrWithTTL(ctx, "window", 60*time.Millisecond)
		require.NoError(t, err)

		time.Sleep(40 * time.Millisecond)

		// Second hit must not extend the window
		_, err = store.IncrWithTTL(ctx, "window", 60*time.Millisecond)
		require.NoError(t, err)

		time.Sleep(30 * time.Millisecond)

		got, err := store.IncrWithTTL(ctx, "window", 60*time.Millisecond)
		require.NoError(t, err)
		assert.Equal(t, int64(1), got, "window should have expired from first hit")
	})
}

func TestMemoryStore_ConcurrentIncr(t *testing.T) {
	store := NewMemoryStore(context.Background())
	defer store.Close()

	ctx := context.Background()

	const goroutines = 10
	const perGoroutine = 10

	var wg sync.WaitGroup
	for i := 0; i < goroutines; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < perGoroutine; j++ {
				_, err := store.IncrWithTTL(ctx, "shared", time.Minute)
				assert.NoError(t, err)
			}
		}()
	}
	wg.Wait()

	final, err := store.IncrWithTTL(ctx, "shared", time.Minute)
	require.NoError(t, err)
	assert.Equal(t, int64(goroutines*perGoroutine+1), final)
}

func TestMemoryStore_JSONRoundTrip(t *testing.T) {
	store := NewMemoryStore(context.Background())
	defer store.Close()

	ctx := context.Background()

	type payload struct {
		DeviceID string  `json:"device_id"`
		Score    float64 `json:"score"`
	}

	t.Run("set and get", func(t *testing.T) {
		in := payload{DeviceID: "nursery-1", Score: 0.92}
		require.NoError(t, store.SetJSON(ctx, "doc", in, time.Minute))

		var out payload
		require.NoError(t, store.GetJSON(ctx, "doc", &out))
		assert.Equal(t, in, out)
	})

	t.Run("missing key", func(t *testing.T) {
		var out payload
		err := store.GetJSON(ctx, "absent", &out)
		assert.ErrorIs(t, err, errors.ErrKeyNotFound)
	})

	t.Run("expired key", func(t *testing.T) {
		require.NoError(t, store.SetJSON(ctx, "fleeting", payload{DeviceID: "d"}, 20*time.Millisecond))

		time.Sleep(40 * time.Millisecond)

		var out payload
		err := store.GetJSON(ctx, "fleeting", &out)
		assert.ErrorIs(t, err, errors.ErrKeyNotFound)
	})

	t.Run("overwrite refreshes value and expiry", func(t *testing.T) {
		require.NoError(t, store.SetJSON(ctx, "doc2", payload{Score: 0.1}, time.Minute))
		require.NoError(t, store.SetJSON(ctx, "doc2", payload{Score: 0.2}, time.Minute))

		var out payload
		require.NoError(t, store.GetJSON(ctx, "doc2", &out))
		assert.Equal(t, 0.2, out.Score)
	})
}

func TestMemoryStore_Delete(t *testing.T) {
	store := NewMemoryStore(context.Background())
	defer store.Close()

	ctx := context.Background()

	require.NoError(t, store.SetJSON(ctx, "gone", map[string]int{"a": 1}, time.Minute))
	require.NoError(t, store.Delete(ctx, "gone"))

	var out map[string]int
	assert.ErrorIs(t, store.GetJSON(ctx, "gone", &out), errors.ErrKeyNotFound)

	// Deleting an absent key is not an error
	assert.NoError(t, store.Delete(ctx, "never-existed"))
}

func TestMemoryStore_JanitorSweeps(t *testing.T) {
	store := NewMemoryStore(context.Background(), WithCleanupInterval(10*time.Millisecond))
	defer store.Close()

	ctx := context.Background()

	require.NoError(t, store.SetJSON(ctx, "sweep-me", 1, 15*time.Millisecond))
	assert.Equal(t, 1, store.Size())

	time.Sleep(60 * time.Millisecond)
	assert.Equal(t, 0, store.Size())
}

func TestMemoryStore_Close(t *testing.T) {
	store := NewMemoryStore(context.Background())

	assert.NoError(t, store.Close())
	// Second close must not panic or hang
	assert.NoError(t, store.Close())
}

func TestMemoryStore_Ping(t *testing.T) {
	store := NewMemoryStore(context.Background())
	defer store.Close()

	assert.NoError(t, store.Ping(context.Background()))
}
