package cache

import (
	"context"
	"errors"
	"regexp"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestStore(t *testing.T, cfg StoreConfig) *Store {
	t.Helper()
	s := NewStore(cfg, nil)
	t.Cleanup(s.Stop)
	return s
}

func TestGetReturnsLiveValueAndExpiresAfterTTL(t *testing.T) {
	s := newTestStore(t, StoreConfig{})

	s.Set("patch:123", "wobble bass", EntryOptions{TTL: 50 * time.Millisecond})

	v, ok := s.Get("patch:123")
	require.True(t, ok)
	assert.Equal(t, "wobble bass", v)

	time.Sleep(60 * time.Millisecond)

	_, ok = s.Get("patch:123")
	assert.False(t, ok, "expired entry must read as a miss")

	// Expiry discovered on read physically removes the entry.
	assert.Equal(t, 0, s.Stats().Size)
}

func TestHasDoesNotTouchAccessStats(t *testing.T) {
	s := newTestStore(t, StoreConfig{})

	s.Set("k", 1)
	require.True(t, s.Has("k"))
	require.True(t, s.Has("k"))

	stats := s.Stats()
	require.Len(t, stats.Items, 1)
	assert.Equal(t, int64(0), stats.Items[0].AccessCount)

	assert.False(t, s.Has("missing"))
}

func TestDeleteReportsPresence(t *testing.T) {
	s := newTestStore(t, StoreConfig{})

	s.Set("k", 1)
	assert.True(t, s.Delete("k"))
	assert.False(t, s.Delete("k"), "deleting an absent key is a no-op")
}

func TestSetEvictsLeastRecentlyUsedBeforeInsert(t *testing.T) {
	s := newTestStore(t, StoreConfig{MaxSize: 10})

	keys := []string{"a", "b", "c", "d", "e", "f", "g", "h", "i", "j"}
	for _, k := range keys {
		s.Set(k, k)
		time.Sleep(time.Millisecond) // distinct lastAccessed ordering
	}

	// Touch everything except "a" so "a" is the LRU victim.
	for _, k := range keys[1:] {
		_, ok := s.Get(k)
		require.True(t, ok)
	}

	s.Set("k", "k")

	stats := s.Stats()
	assert.LessOrEqual(t, stats.Size, 10, "size bound must hold after every set")

	_, ok := s.Get("a")
	assert.False(t, ok, "least recently accessed entry should have been evicted")
	_, ok = s.Get("k")
	assert.True(t, ok)
}

func TestAccessBookkeeping(t *testing.T) {
	s := newTestStore(t, StoreConfig{})

	s.Set("hot", 1)
	s.Set("cold", 2)

	for i := 0; i < 3; i++ {
		_, ok := s.Get("hot")
		require.True(t, ok)
	}

	stats := s.Stats()
	require.Len(t, stats.Items, 2)

	// Sorted by descending access count.
	assert.Equal(t, "hot", stats.Items[0].Key)
	assert.Equal(t, int64(3), stats.Items[0].AccessCount)
	assert.Equal(t, "cold", stats.Items[1].Key)
	assert.Equal(t, int64(0), stats.Items[1].AccessCount)

	// Heuristic: totalAccesses / (totalAccesses + entryCount) * 100.
	assert.InDelta(t, 60.0, stats.HitRate, 0.001)
}

func TestClearByPattern(t *testing.T) {
	s := newTestStore(t, StoreConfig{})

	for _, k := range []string{"user:1:profile", "user:2:profile", "user:1:settings", "product:1:details"} {
		s.Set(k, k)
	}

	n := s.ClearByPattern(regexp.MustCompile(`^user:`))
	assert.Equal(t, 3, n)

	_, ok := s.Get("product:1:details")
	assert.True(t, ok, "non-matching keys must survive a pattern clear")
}

func TestClearRemovesEverything(t *testing.T) {
	s := newTestStore(t, StoreConfig{})

	s.Set("a", 1)
	s.Set("b", 2)

	assert.Equal(t, 2, s.Clear())
	assert.Equal(t, 0, s.Stats().Size)
}

func TestGetOrSetInvokesFactoryOncePerColdKey(t *testing.T) {
	s := newTestStore(t, StoreConfig{})
	ctx := context.Background()

	calls := 0
	factory := func(context.Context) (interface{}, error) {
		calls++
		return "computed", nil
	}

	v, err := s.GetOrSet(ctx, "k", factory)
	require.NoError(t, err)
	assert.Equal(t, "computed", v)

	v, err = s.GetOrSet(ctx, "k", factory)
	require.NoError(t, err)
	assert.Equal(t, "computed", v)

	assert.Equal(t, 1, calls, "warm key must not invoke the factory again")
}

func TestGetOrSetFactoryFailureIsNotCached(t *testing.T) {
	s := newTestStore(t, StoreConfig{})
	ctx := context.Background()

	boom := errors.New("backing store unavailable")
	_, err := s.GetOrSet(ctx, "k", func(context.Context) (interface{}, error) {
		return nil, boom
	})
	require.ErrorIs(t, err, boom)

	assert.False(t, s.Has("k"), "failures must not be cached")
}

// Pins the documented no-single-flight behavior: two concurrent misses for
// the same key each pay the full compute cost.
func TestGetOrSetConcurrentMissesEachInvokeFactory(t *testing.T) {
	s := newTestStore(t, StoreConfig{})
	ctx := context.Background()

	var calls int32
	gate := make(chan struct{})

	factory := func(context.Context) (interface{}, error) {
		atomic.AddInt32(&calls, 1)
		<-gate
		return "v", nil
	}

	var wg sync.WaitGroup
	for i := 0; i < 2; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			v, err := s.GetOrSet(ctx, "shared", factory)
			assert.NoError(t, err)
			assert.Equal(t, "v", v)
		}()
	}

	// Both goroutines must enter the factory before either completes.
	require.Eventually(t, func() bool {
		return atomic.LoadInt32(&calls) == 2
	}, time.Second, time.Millisecond)

	close(gate)
	wg.Wait()

	assert.Equal(t, int32(2), atomic.LoadInt32(&calls))
}

func TestSweepRemovesExpiredEntriesWithoutReads(t *testing.T) {
	s := newTestStore(t, StoreConfig{SweepInterval: 20 * time.Millisecond})

	s.Set("never-read", 1, EntryOptions{TTL: 10 * time.Millisecond})

	require.Eventually(t, func() bool {
		return s.Stats().Size == 0
	}, time.Second, 5*time.Millisecond)
}

func TestStopIsIdempotentAndClears(t *testing.T) {
	s := NewStore(StoreConfig{}, nil)
	s.Set("k", 1)

	s.Stop()
	s.Stop() // second call must not panic or double-fire

	assert.Equal(t, 0, s.Stats().Size)
}
