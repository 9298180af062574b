package kvstore

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/YuvDwi/Cradle/errors"
	"github.com/YuvDwi/Cradle/natsclient"
)

func TestNATSStore(t *testing.T) {
	if testing.Short() {
		t.Skip("Skipping integration test in short mode")
	}

	tc := natsclient.NewTestClient(t, natsclient.WithJetStream())
	ctx := context.Background()

	store, err := NewNATSStore(ctx, tc.Client, "cradle-kv-test")
	require.NoError(t, err)
	defer store.Close()

	require.NoError(t, store.Ping(ctx))

	t.Run("incr counts within window", func(t *testing.T) {
		for want := int64(1); want <= 3; want++ {
			got, err := store.IncrWithTTL(ctx, "counter", time.Minute)
			require.NoError(t, err)
			assert.Equal(t, want, got)
		}
	})

	t.Run("expired window restarts at one", func(t *testing.T) {
		got, err := store.IncrWithTTL(ctx, "short", 50*time.Millisecond)
		require.NoError(t, err)
		assert.Equal(t, int64(1), got)

		time.Sleep(80 * time.Millisecond)

		got, err = store.IncrWithTTL(ctx, "short", 50*time.Millisecond)
		require.NoError(t, err)
		assert.Equal(t, int64(1), got)
	})

	t.Run("concurrent increments converge", func(t *testing.T) {
		const writers = 6
		const perWriter = 5

		var wg sync.WaitGroup
		errs := make(chan error, writers)

		for i := 0; i < writers; i++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				for j := 0; j < perWriter; j++ {
					if _, err := store.IncrWithTTL(ctx, "contended", time.Minute); err != nil {
						errs <- err
						return
					}
				}
			}()
		}

		wg.Wait()
		close(errs)
		for err := range errs {
			t.Fatalf("concurrent increment failed: %v", err)
		}

		final, err := store.IncrWithTTL(ctx, "contended", time.Minute)
		require.NoError(t, err)
		assert.Equal(t, int64(writers*perWriter+1), final)
	})

	t.Run("json round trip", func(t *testing.T) {
		type doc struct {
			DeviceID string `json:"device_id"`
			Online   bool   `json:"online"`
		}

		in := doc{DeviceID: "nursery-1", Online: true}
		require.NoError(t, store.SetJSON(ctx, "presence", in, time.Minute))

		var out doc
		require.NoError(t, store.GetJSON(ctx, "presence", &out))
		assert.Equal(t, in, out)
	})

	t.Run("missing key", func(t *testing.T) {
		var out map[string]any
		err := store.GetJSON(ctx, "absent", &out)
		assert.ErrorIs(t, err, errors.ErrKeyNotFound)
	})

	t.Run("record expiry hides stale values", func(t *testing.T) {
		require.NoError(t, store.SetJSON(ctx, "fleeting", 42, 50*time.Millisecond))

		var out int
		require.NoError(t, store.GetJSON(ctx, "fleeting", &out))
		assert.Equal(t, 42, out)

		time.Sleep(80 * time.Millisecond)

		err := store.GetJSON(ctx, "fleeting", &out)
		assert.ErrorIs(t, err, errors.ErrKeyNotFound)

		// The expired read evicts the record, so a second read misses
		// without even parsing
		err = store.GetJSON(ctx, "fleeting", &out)
		assert.ErrorIs(t, err, errors.ErrKeyNotFound)
	})

	t.Run("delete", func(t *testing.T) {
		require.NoError(t, store.SetJSON(ctx, "gone", 1, time.Minute))
		require.NoError(t, store.Delete(ctx, "gone"))

		var out int
		assert.ErrorIs(t, store.GetJSON(ctx, "gone", &out), errors.ErrKeyNotFound)

		assert.NoError(t, store.Delete(ctx, "never-existed"))
	})
}

func TestNewNATSStore_ReusesBucket(t *testing.T) {
	if testing.Short() {
		t.Skip("Skipping integration test in short mode")
	}

	tc := natsclient.NewTestClient(t, natsclient.WithJetStream())
	ctx := context.Background()

	first, err := NewNATSStore(ctx, tc.Client, "cradle-kv-shared")
	require.NoError(t, err)

	require.NoError(t, first.SetJSON(ctx, "k", "v", time.Minute))

	// Second store against the same bucket sees the first store's data
	second, err := NewNATSStore(ctx, tc.Client, "cradle-kv-shared")
	require.NoError(t, err)

	var out string
	require.NoError(t, second.GetJSON(ctx, "k", &out))
	assert.Equal(t, "v", out)
}
