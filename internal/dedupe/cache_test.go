// ABOUTME: Tests for the request key cache used for idempotent sends.
// ABOUTME: Validates TTL expiration, size limits, eviction, cleanup, and concurrency safety.

package dedupe

import (
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestCache_LookupMissing(t *testing.T) {
	cache := New(5*time.Minute, 100)
	defer cache.Close()

	_, ok := cache.Lookup("never-seen-key")
	assert.False(t, ok)
}

func TestCache_RememberAndLookup(t *testing.T) {
	cache := New(5*time.Minute, 100)
	defer cache.Close()

	cache.Remember(Key("conv-1", "client-1"), "msg-1")

	got, ok := cache.Lookup("conv-1:client-1")
	assert.True(t, ok)
	assert.Equal(t, "msg-1", got)

	// Same client id on another conversation is a different key
	_, ok = cache.Lookup(Key("conv-2", "client-1"))
	assert.False(t, ok)
}

func TestCache_RememberOverwrites(t *testing.T) {
	cache := New(5*time.Minute, 100)
	defer cache.Close()

	cache.Remember("k", "first")
	cache.Remember("k", "second")

	got, ok := cache.Lookup("k")
	assert.True(t, ok)
	assert.Equal(t, "second", got)
	assert.Equal(t, 1, cache.Len())
}

func TestCache_Expired(t *testing.T) {
	cache := New(10*time.Millisecond, 100)
	defer cache.Close()

	cache.Remember("expiring-key", "v")
	_, ok := cache.Lookup("expiring-key")
	assert.True(t, ok)

	time.Sleep(20 * time.Millisecond)

	_, ok = cache.Lookup("expiring-key")
	assert.False(t, ok)
}

func TestCache_EvictsOldestAtCapacity(t *testing.T) {
	cache := New(5*time.Minute, 3)
	defer cache.Close()

	cache.Remember("key-1", "1")
	cache.Remember("key-2", "2")
	cache.Remember("key-3", "3")
	cache.Remember("key-4", "4")

	_, ok := cache.Lookup("key-1")
	assert.False(t, ok, "oldest key should be evicted")
	for _, k := range []string{"key-2", "key-3", "key-4"} {
		_, ok := cache.Lookup(k)
		assert.True(t, ok, k)
	}
	assert.Equal(t, 3, cache.Len())
}

func TestCache_RefreshMovesToBack(t *testing.T) {
	cache := New(5*time.Minute, 2)
	defer cache.Close()

	cache.Remember("key-1", "1")
	cache.Remember("key-2", "2")
	cache.Remember("key-1", "1b") // key-1 is now newest
	cache.Remember("key-3", "3")  // evicts key-2

	_, ok := cache.Lookup("key-2")
	assert.False(t, ok)
	got, ok := cache.Lookup("key-1")
	assert.True(t, ok)
	assert.Equal(t, "1b", got)
}

func TestCache_Forget(t *testing.T) {
	cache := New(5*time.Minute, 10)
	defer cache.Close()

	cache.Remember("k", "v")
	cache.Forget("k")
	cache.Forget("missing")

	_, ok := cache.Lookup("k")
	assert.False(t, ok)
	assert.Zero(t, cache.Len())
}

func TestCache_RemoveExpired(t *testing.T) {
	cache := New(10*time.Millisecond, 10)
	defer cache.Close()

	cache.Remember("old", "v")
	time.Sleep(20 * time.Millisecond)
	cache.Remember("fresh", "v")

	cache.removeExpired()

	assert.Equal(t, 1, cache.Len())
	_, ok := cache.Lookup("fresh")
	assert.True(t, ok)
}

func TestCache_CloseIsIdempotent(t *testing.T) {
	cache := New(time.Minute, 10)
	cache.Close()
	cache.Close()
}

func TestCache_ConcurrentAccess(t *testing.T) {
	cache := New(5*time.Minute, 1000)
	defer cache.Close()

	var wg sync.WaitGroup
	for i := range 20 {
		wg.Go(func() {
			for j := range 50 {
				key := fmt.Sprintf("k-%d-%d", i, j)
				cache.Remember(key, key)
				cache.Lookup(key)
			}
		})
	}
	wg.Wait()

	assert.Equal(t, 1000, cache.Len())
}
