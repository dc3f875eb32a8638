package embedding

import (
	"container/list"
	"crypto/sha256"
	"sync"
)

// CacheStats reports the size and hit rate of an EmbeddingCache.
type CacheStats struct {
	Entries int    `json:"entries"`
	Hits    uint64 `json:"hits"`
	Misses  uint64 `json:"misses"`
}

// EmbeddingCache is an LRU of vectors keyed by the SHA-256 of the text, so
// chunk-sized keys do not stay in memory.
type EmbeddingCache struct {
	mu       sync.Mutex
	capacity int
	items    map[[sha256.Size]byte]*list.Element
	order    *list.List
	hits     uint64
	misses   uint64
}

type cacheEntry struct {
	key    [sha256.Size]byte
	vector []float32
}

// NewEmbeddingCache returns a cache holding at most capacity vectors (minimum 1).
func NewEmbeddingCache(capacity int) *EmbeddingCache {
	if capacity < 1 {
		capacity = 1
	}
	return &EmbeddingCache{
		capacity: capacity,
		items:    make(map[[sha256.Size]byte]*list.Element, capacity),
		order:    list.New(),
	}
}

// Get returns the vector cached for text.
func (c *EmbeddingCache) Get(text string) ([]float32, bool) {
	key := sha256.Sum256([]byte(text))
	c.mu.Lock()
	defer c.mu.Unlock()
	el, ok := c.items[key]
	if !ok {
		c.misses++
		return nil, false
	}
	c.hits++
	c.order.MoveToFront(el)
	return el.Value.(*cacheEntry).vector, true
}

// Set stores vec for text and evicts the least recently used entry when full.
func (c *EmbeddingCache) Set(text string, vec []float32) {
	key := sha256.Sum256([]byte(text))
	c.mu.Lock()
	defer c.mu.Unlock()
	if el, ok := c.items[key]; ok {
		el.Value.(*cacheEntry).vector = vec
		c.order.MoveToFront(el)
		return
	}
	c.items[key] = c.order.PushFront(&cacheEntry{key: key, vector: vec})
	for c.order.Len() > c.capacity {
		oldest := c.order.Back()
		c.order.Remove(oldest)
		delete(c.items, oldest.Value.(*cacheEntry).key)
	}
}

// Stats returns the current entry count and hit counters.
func (c *EmbeddingCache) Stats() CacheStats {
	c.mu.Lock()
	defer c.mu.Unlock()
	return CacheStats{Entries: c.order.Len(), Hits: c.hits, Misses: c.misses}
}
