package cache

import (
	"container/list"
	"sync"
	"time"

	"github.com/ClareAI/astra-sales-engine/pkg/logger"
	"go.uber.org/zap"
)

// Cache is a fixed-capacity key-value store with least-recently-used eviction
// and optional lazy time-to-live expiry. Every component that must remember
// per-contact data goes through one of these so memory stays bounded no
// matter how many contacts are active.
//
// Get and Set both count as a touch: the entry moves to the most-recently-used
// position. Expiry is evaluated on access; no background sweep is required for
// correctness, but StartSweep can be used for the context-window variant so
// idle contacts are released proactively.
type Cache[K comparable, V any] struct {
	mu         sync.Mutex
	maxEntries int
	ttl        time.Duration // zero means no expiry
	order      *list.List    // front = most recently used
	entries    map[K]*list.Element

	stopSweep chan struct{}
	sweepOnce sync.Once
}

type cacheEntry[K comparable, V any] struct {
	key        K
	value      V
	insertedAt time.Time
}

// New creates a bounded cache. maxEntries must be positive; ttl of zero
// disables expiry.
func New[K comparable, V any](maxEntries int, ttl time.Duration) *Cache[K, V] {
	if maxEntries <= 0 {
		maxEntries = 1
	}
	return &Cache[K, V]{
		maxEntries: maxEntries,
		ttl:        ttl,
		order:      list.New(),
		entries:    make(map[K]*list.Element),
		stopSweep:  make(chan struct{}),
	}
}

// Get returns the value for key if present and not expired. An expired entry
// is removed and reported as absent. A hit moves the entry to the
// most-recently-used position.
func (c *Cache[K, V]) Get(key K) (V, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	var zero V
	elem, ok := c.entries[key]
	if !ok {
		return zero, false
	}

	entry := elem.Value.(*cacheEntry[K, V])
	if c.expired(entry) {
		c.removeElement(elem)
		return zero, false
	}

	c.order.MoveToFront(elem)
	return entry.value, true
}

// Set inserts or replaces the value for key. Any existing entry for the key
// is removed first; if the cache is full, the least-recently-used entry is
// evicted before inserting.
func (c *Cache[K, V]) Set(key K, value V) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if elem, ok := c.entries[key]; ok {
		c.removeElement(elem)
	}

	if c.order.Len() >= c.maxEntries {
		if oldest := c.order.Back(); oldest != nil {
			c.removeElement(oldest)
		}
	}

	entry := &cacheEntry[K, V]{key: key, value: value, insertedAt: time.Now()}
	c.entries[key] = c.order.PushFront(entry)
}

// Delete removes the entry for key if present.
func (c *Cache[K, V]) Delete(key K) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if elem, ok := c.entries[key]; ok {
		c.removeElement(elem)
	}
}

// Len returns the number of live entries. Expired entries that have not been
// touched yet still count until the next access or sweep.
func (c *Cache[K, V]) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.order.Len()
}

// StartSweep launches a background goroutine that removes expired entries at
// the given interval. No-op when the cache has no TTL.
func (c *Cache[K, V]) StartSweep(interval time.Duration) {
	if c.ttl <= 0 || interval <= 0 {
		return
	}
	c.sweepOnce.Do(func() {
		go func() {
			ticker := time.NewTicker(interval)
			defer ticker.Stop()
			for {
				select {
				case <-c.stopSweep:
					return
				case <-ticker.C:
					c.sweep()
				}
			}
		}()
	})
}

// StopSweep stops the background sweep goroutine if one is running.
func (c *Cache[K, V]) StopSweep() {
	select {
	case <-c.stopSweep:
	default:
		close(c.stopSweep)
	}
}

func (c *Cache[K, V]) sweep() {
	c.mu.Lock()
	defer c.mu.Unlock()

	removed := 0
	for elem := c.order.Back(); elem != nil; {
		prev := elem.Prev()
		if c.expired(elem.Value.(*cacheEntry[K, V])) {
			c.removeElement(elem)
			removed++
		}
		elem = prev
	}
	if removed > 0 {
		logger.Base().Debug("cache sweep removed expired entries", zap.Int("removed", removed), zap.Int("remaining", c.order.Len()))
	}
}

func (c *Cache[K, V]) expired(entry *cacheEntry[K, V]) bool {
	return c.ttl > 0 && time.Since(entry.insertedAt) > c.ttl
}

func (c *Cache[K, V]) removeElement(elem *list.Element) {
	entry := elem.Value.(*cacheEntry[K, V])
	c.order.Remove(elem)
	delete(c.entries, entry.key)
}
