package embedding

import (
	"sync"

	"github.com/mfenderov/recall/internal/clip"
)

// DefaultCacheCapacity is the number of vectors kept in memory.
const DefaultCacheCapacity = 100

// Cache maps record ids to vectors. Eviction is by insertion order: once the
// capacity is exceeded the earliest-inserted ids are dropped, no matter how
// recently they were read.
//
// Reads share the lock; a write blocks new reads until it completes.
// Returned vectors are shared and must not be modified.
type Cache struct {
	mu       sync.RWMutex
	capacity int
	entries  map[string]clip.Vector
	order    []string
}

// NewCache creates a cache holding at most capacity vectors.
func NewCache(capacity int) *Cache {
	if capacity <= 0 {
		capacity = DefaultCacheCapacity
	}
	return &Cache{
		capacity: capacity,
		entries:  make(map[string]clip.Vector, capacity+1),
		order:    make([]string, 0, capacity+1),
	}
}

// Get returns the cached vector for id.
func (c *Cache) Get(id string) (clip.Vector, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	v, ok := c.entries[id]
	return v, ok
}

// Put stores v under id. Replacing an existing id keeps its original
// insertion position.
func (c *Cache) Put(id string, v clip.Vector) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if _, exists := c.entries[id]; !exists {
		c.order = append(c.order, id)
	}
	c.entries[id] = v

	if surplus := len(c.order) - c.capacity; surplus > 0 {
		for _, old := range c.order[:surplus] {
			delete(c.entries, old)
		}
		c.order = append(c.order[:0], c.order[surplus:]...)
	}
}

// Len returns the number of cached vectors.
func (c *Cache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries)
}

// Clear empties the cache.
func (c *Cache) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()

	clear(c.entries)
	c.order = c.order[:0]
}
