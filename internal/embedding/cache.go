package embedding

import (
	"crypto/sha256"
	"encoding/hex"
	"strings"
	"sync"
	"time"
)

// Cache is a process-local TTL map from query text to embedding vector.
// Reads take a shared lock; entries expire lazily on lookup. It is shared
// between the query path and the ingestion pipeline.
type Cache struct {
	mu      sync.RWMutex
	ttl     time.Duration
	entries map[string]cacheEntry
	now     func() time.Time
}

type cacheEntry struct {
	vec []float32
	at  time.Time
}

func NewCache(ttl time.Duration) *Cache {
	return &Cache{
		ttl:     ttl,
		entries: make(map[string]cacheEntry),
		now:     time.Now,
	}
}

// Key is the hex digest of the trimmed text.
func Key(text string) string {
	sum := sha256.Sum256([]byte(strings.TrimSpace(text)))
	return hex.EncodeToString(sum[:])
}

func (c *Cache) Get(key string) ([]float32, bool) {
	c.mu.RLock()
	e, ok := c.entries[key]
	c.mu.RUnlock()
	if !ok {
		return nil, false
	}
	if c.now().Sub(e.at) > c.ttl {
		c.mu.Lock()
		// Re-check under the write lock; another goroutine may have
		// refreshed the entry.
		if e2, ok2 := c.entries[key]; ok2 && c.now().Sub(e2.at) > c.ttl {
			delete(c.entries, key)
		}
		c.mu.Unlock()
		return nil, false
	}
	return e.vec, true
}

func (c *Cache) Put(key string, vec []float32) {
	c.mu.Lock()
	c.entries[key] = cacheEntry{vec: vec, at: c.now()}
	c.mu.Unlock()
}

// Len reports live entries, for stats and tests.
func (c *Cache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries)
}
