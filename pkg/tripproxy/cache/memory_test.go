package cache_test

import (
	"strconv"
	"sync"
	"testing"

	"github.com/randalmurphal/tripproxy/pkg/tripproxy/cache"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryStore_LRUEviction(t *testing.T) {
	store := cache.NewMemoryStore(2)
	defer store.Close()

	require.NoError(t, store.Set("a", sampleEntry("a"), 0))
	require.NoError(t, store.Set("b", sampleEntry("b"), 0))

	// Touch "a" so "b" becomes least recently used
	_, err := store.Get("a")
	require.NoError(t, err)

	require.NoError(t, store.Set("c", sampleEntry("c"), 0))

	assert.Equal(t, 2, store.Len())
	_, err = store.Get("b")
	assert.ErrorIs(t, err, cache.ErrNotFound)
	_, err = store.Get("a")
	assert.NoError(t, err)
	_, err = store.Get("c")
	assert.NoError(t, err)
}

func TestMemoryStore_DefaultSize(t *testing.T) {
	store := cache.NewMemoryStore(0)
	defer store.Close()

	for i := 0; i < cache.DefaultMemorySize+10; i++ {
		require.NoError(t, store.Set(strconv.Itoa(i), sampleEntry("x"), 0))
	}
	assert.Equal(t, cache.DefaultMemorySize, store.Len())
}

func TestMemoryStore_Concurrent(t *testing.T) {
	store := cache.NewMemoryStore(50)
	defer store.Close()

	const numGoroutines = 100
	const numOps = 50

	var wg sync.WaitGroup
	wg.Add(numGoroutines)

	for i := 0; i < numGoroutines; i++ {
		go func(id int) {
			defer wg.Done()

			for j := 0; j < numOps; j++ {
				key := "key-" + strconv.Itoa((id+j)%80)

				// Mix of operations
				switch j % 4 {
				case 0, 1:
					_ = store.Set(key, sampleEntry("data"), 0)
				case 2:
					_, _ = store.Get(key)
				case 3:
					_ = store.Delete(key)
				}
			}
		}(i)
	}

	wg.Wait()

	// Should not panic or deadlock
	assert.LessOrEqual(t, store.Len(), 50)
}
