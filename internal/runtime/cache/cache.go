package cache

import (
	"context"
	"sync"

	"github.com/CosmWasm/hostapi/types"
)

// Entry is a cached item that owns resources released on removal.
type Entry interface {
	Close(ctx context.Context) error
}

// Cache holds loaded runtime modules keyed by the hash of their code.
type Cache[E Entry] struct {
	mu          sync.RWMutex
	entries     map[types.Hash]E
	pinned      map[types.Hash]struct{}
	moduleHits  map[types.Hash]uint32
	moduleSizes map[types.Hash]uint64
}

// New creates a new cache instance
func New[E Entry]() *Cache[E] {
	return &Cache[E]{
		entries:     make(map[types.Hash]E),
		pinned:      make(map[types.Hash]struct{}),
		moduleHits:  make(map[types.Hash]uint32),
		moduleSizes: make(map[types.Hash]uint64),
	}
}

// Save stores an entry for code of the given size. An entry already cached
// under the same hash is kept and returned instead.
func (c *Cache[E]) Save(hash types.Hash, entry E, size uint64) (E, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if existing, ok := c.entries[hash]; ok {
		return existing, false
	}
	c.entries[hash] = entry
	c.moduleSizes[hash] = size
	return entry, true
}

// Load retrieves an entry and counts the hit.
func (c *Cache[E]) Load(hash types.Hash) (E, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	entry, exists := c.entries[hash]
	if exists {
		c.moduleHits[hash]++
	}
	return entry, exists
}

// Pin marks an entry as pinned in memory
func (c *Cache[E]) Pin(hash types.Hash) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.pinned[hash] = struct{}{}
}

// Unpin removes the pin from an entry
func (c *Cache[E]) Unpin(hash types.Hash) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.pinned, hash)
}

// Remove closes and deletes an entry if it's not pinned
func (c *Cache[E]) Remove(ctx context.Context, hash types.Hash) (bool, error) {
	c.mu.Lock()
	entry, ok := c.entries[hash]
	if _, isPinned := c.pinned[hash]; isPinned || !ok {
		c.mu.Unlock()
		return false, nil
	}
	c.drop(hash)
	c.mu.Unlock()

	return true, entry.Close(ctx)
}

func (c *Cache[E]) drop(hash types.Hash) {
	delete(c.entries, hash)
	delete(c.moduleHits, hash)
	delete(c.moduleSizes, hash)
}

// Stats reports the number of hits and the code size of an entry.
func (c *Cache[E]) Stats(hash types.Hash) (hits uint32, size uint64) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.moduleHits[hash], c.moduleSizes[hash]
}

func (c *Cache[E]) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries)
}

// Close closes every entry, pinned or not, and empties the cache.
func (c *Cache[E]) Close(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	var firstErr error
	for hash, entry := range c.entries {
		if err := entry.Close(ctx); err != nil && firstErr == nil {
			firstErr = err
		}
		c.drop(hash)
	}
	c.pinned = make(map[types.Hash]struct{})
	return firstErr
}
