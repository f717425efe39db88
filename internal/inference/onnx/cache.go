package onnx

import "sync"

// hypothesisCacheSize bounds the hypothesis cache. Label sets in practice are
// small and repeat, so this is plenty before a reset.
const hypothesisCacheSize = 4096

// idCache maps text to token IDs. It holds at most max entries and is
// cleared when a put would exceed that.
type idCache struct {
	mu      sync.RWMutex
	max     int
	entries map[string][]int64
}

func newIDCache(max int) *idCache {
	return &idCache{max: max, entries: make(map[string][]int64)}
}

func (c *idCache) get(text string) ([]int64, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	ids, ok := c.entries[text]
	return ids, ok
}

func (c *idCache) put(text string, ids []int64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, ok := c.entries[text]; ok {
		return
	}
	if len(c.entries) >= c.max {
		c.entries = make(map[string][]int64, c.max)
	}
	c.entries[text] = ids
}

func (c *idCache) len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries)
}
