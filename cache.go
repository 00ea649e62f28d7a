package aidetect

import (
	"container/list"
	"context"
	"sync"
)

// DefaultCacheSize is the entry bound of NewMemoryCache when size <= 0.
const DefaultCacheSize = 1024

// MemoryCache is a size-bounded in-memory LRU Cache. It is safe for
// concurrent use.
type MemoryCache struct {
	mu    sync.Mutex
	size  int
	order *list.List // front = most recently used
	items map[string]*list.Element
}

type cacheItem struct {
	key    string
	result *AnalysisResult
}

// NewMemoryCache returns an LRU cache holding at most size results.
func NewMemoryCache(size int) *MemoryCache {
	if size <= 0 {
		size = DefaultCacheSize
	}
	return &MemoryCache{
		size:  size,
		order: list.New(),
		items: make(map[string]*list.Element, size),
	}
}

// Get returns the cached result for key, marking it recently used.
func (c *MemoryCache) Get(_ context.Context, key string) (*AnalysisResult, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	el, ok := c.items[key]
	if !ok {
		return nil, false
	}
	c.order.MoveToFront(el)
	return el.Value.(*cacheItem).result, true
}

// Put stores result under key, evicting the least recently used entry when full.
// Last write wins.
func (c *MemoryCache) Put(_ context.Context, key string, result *AnalysisResult) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if el, ok := c.items[key]; ok {
		el.Value.(*cacheItem).result = result
		c.order.MoveToFront(el)
		return
	}

	c.items[key] = c.order.PushFront(&cacheItem{key: key, result: result})
	for c.order.Len() > c.size {
		oldest := c.order.Back()
		c.order.Remove(oldest)
		delete(c.items, oldest.Value.(*cacheItem).key)
	}
}

// Len returns the number of cached results.
func (c *MemoryCache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.order.Len()
}

var _ Cache = (*MemoryCache)(nil)
