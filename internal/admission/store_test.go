package admission

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/HanTheDev/llm-fusion-gateway/internal/models"
	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestRedisStore(t *testing.T) *RedisStore {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })
	return NewRedisStoreWithClient(client, time.Hour)
}

func testStores(t *testing.T) map[string]Store {
	return map[string]Store{
		"memory": NewMemoryStore(),
		"redis":  newTestRedisStore(t),
	}
}

func TestStoreCompareAndSwap(t *testing.T) {
	for name, store := range testStores(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()

			p, version, err := store.Get(ctx, "caller-1")
			require.NoError(t, err)
			assert.Nil(t, p)
			assert.Zero(t, version)

			profile := &models.CallerProfile{CallerID: "caller-1", Tier: models.TierStandard}
			ok, err := store.CompareAndSwap(ctx, "caller-1", 0, profile)
			require.NoError(t, err)
			require.True(t, ok)

			// A second insert against the stale version loses.
			ok, err = store.CompareAndSwap(ctx, "caller-1", 0, profile)
			require.NoError(t, err)
			assert.False(t, ok)

			got, version, err := store.Get(ctx, "caller-1")
			require.NoError(t, err)
			require.NotNil(t, got)
			assert.Equal(t, uint64(1), version)
			assert.Equal(t, models.TierStandard, got.Tier)

			got.Tier = models.TierPrivileged
			ok, err = store.CompareAndSwap(ctx, "caller-1", version, got)
			require.NoError(t, err)
			require.True(t, ok)

			keys, err := store.Keys(ctx)
			require.NoError(t, err)
			assert.Equal(t, []string{"caller-1"}, keys)

			ok, err = store.CompareAndSwap(ctx, "caller-1", 2, nil)
			require.NoError(t, err)
			require.True(t, ok)

			p, _, err = store.Get(ctx, "caller-1")
			require.NoError(t, err)
			assert.Nil(t, p)
		})
	}
}

func TestStoreBlacklist(t *testing.T) {
	for name, store := range testStores(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()

			require.NoError(t, store.Blacklist(ctx, "198.51.100.7"))
			listed, err := store.IsBlacklisted(ctx, "198.51.100.7")
			require.NoError(t, err)
			assert.True(t, listed)

			require.NoError(t, store.Unblacklist(ctx, "198.51.100.7"))
			listed, err = store.IsBlacklisted(ctx, "198.51.100.7")
			require.NoError(t, err)
			assert.False(t, listed)
		})
	}
}

func TestMemoryStoreReturnsCopies(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()
	require.NoError(t, store.Put(ctx, &models.CallerProfile{
		CallerID: "caller-1",
		Records:  []models.RequestRecord{{Outcome: models.OutcomeAllowed}},
	}))

	p, _, err := store.Get(ctx, "caller-1")
	require.NoError(t, err)
	p.Records[0].Outcome = models.OutcomeBlocked

	again, _, err := store.Get(ctx, "caller-1")
	require.NoError(t, err)
	assert.Equal(t, models.OutcomeAllowed, again.Records[0].Outcome)
}

func TestControllerOverRedisStore(t *testing.T) {
	ctx := context.Background()
	c, clock := newTestController(t, tightMinuteConfig(), newTestRedisStore(t))

	for i := 0; i < 5; i++ {
		require.True(t, c.Check(ctx, browserMeta("caller-1", fmt.Sprintf("q%d", i))).Allowed)
		clock.Advance(11 * time.Second)
	}
	d := c.Check(ctx, browserMeta("caller-1", "q5"))
	assert.False(t, d.Allowed)
	assert.Equal(t, models.LimitMinute, d.LimitType)

	view, err := c.Profile(ctx, "caller-1")
	require.NoError(t, err)
	assert.Equal(t, 6, view.RecordCount)
	assert.Equal(t, "standard", view.Tier)
}

func TestKeyLockSerializesSameKey(t *testing.T) {
	locks := newKeyLock()

	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		holders int
		peak    int
	)
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			unlock := locks.Lock("k")
			mu.Lock()
			holders++
			peak = max(peak, holders)
			mu.Unlock()

			time.Sleep(time.Millisecond)

			mu.Lock()
			holders--
			mu.Unlock()
			unlock()
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, peak)
	assert.Empty(t, locks.locks)
}
