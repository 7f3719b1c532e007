package channel

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestKeyedMutexSerializesSameKey(t *testing.T) {
	km := newKeyedMutex()

	counter := 0
	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			km.Lock("room-1|2026-09-05")
			counter++
			km.Unlock("room-1|2026-09-05")
		}()
	}
	wg.Wait()

	assert.Equal(t, 50, counter)
}

func TestKeyedMutexReleasesIdleEntries(t *testing.T) {
	km := newKeyedMutex()

	for _, key := range []string{"a|2026-09-05", "b|2026-09-05", "a|2026-09-06"} {
		km.Lock(key)
		km.Unlock(key)
	}

	// Entries live only while held or contended.
	km.mu.Lock()
	defer km.mu.Unlock()
	assert.Empty(t, km.locks)
}
