// Package cache stores cost-sharing profiles and other tenant-scoped bytes.
package cache

import (
	"container/list"
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/opensource-finance/kestrel/internal/domain"
)

const defaultLocalSize = 10000

// LRUCache is an in-process byte cache bounded by entry count. Entries
// expire lazily on read. It backs the "memory" cache type and the local
// tier of the two-tier cache.
type LRUCache struct {
	mu       sync.Mutex
	capacity int
	entries  map[lruKey]*list.Element
	recency  *list.List // front is most recently used
	now      func() time.Time
}

type lruKey struct {
	tenantID string
	key      string
}

type lruEntry struct {
	id      lruKey
	value   []byte
	expires time.Time // zero means no expiry
}

func (e *lruEntry) expired(now time.Time) bool {
	return !e.expires.IsZero() && !now.Before(e.expires)
}

// NewLRUCache returns a cache holding at most capacity entries.
func NewLRUCache(capacity int) *LRUCache {
	if capacity <= 0 {
		capacity = defaultLocalSize
	}
	return &LRUCache{
		capacity: capacity,
		entries:  make(map[lruKey]*list.Element),
		recency:  list.New(),
		now:      time.Now,
	}
}

// Get returns nil, nil on a miss or an expired entry.
func (c *LRUCache) Get(ctx context.Context, tenantID string, key string) ([]byte, error) {
	if tenantID == "" {
		return nil, fmt.Errorf("tenantID is required")
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	elem, ok := c.entries[lruKey{tenantID, key}]
	if !ok {
		return nil, nil
	}
	entry := elem.Value.(*lruEntry)
	if entry.expired(c.now()) {
		c.drop(elem)
		return nil, nil
	}
	c.recency.MoveToFront(elem)
	return entry.value, nil
}

// Set stores value for ttl. A non-positive ttl keeps the entry until it
// is evicted or deleted.
func (c *LRUCache) Set(ctx context.Context, tenantID string, key string, value []byte, ttl time.Duration) error {
	if tenantID == "" {
		return fmt.Errorf("tenantID is required")
	}

	var expires time.Time
	if ttl > 0 {
		expires = c.now().Add(ttl)
	}
	id := lruKey{tenantID, key}

	c.mu.Lock()
	defer c.mu.Unlock()

	if elem, ok := c.entries[id]; ok {
		entry := elem.Value.(*lruEntry)
		entry.value, entry.expires = value, expires
		c.recency.MoveToFront(elem)
		return nil
	}

	c.entries[id] = c.recency.PushFront(&lruEntry{id: id, value: value, expires: expires})
	for c.recency.Len() > c.capacity {
		c.drop(c.recency.Back())
	}
	return nil
}

func (c *LRUCache) Delete(ctx context.Context, tenantID string, key string) error {
	if tenantID == "" {
		return fmt.Errorf("tenantID is required")
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if elem, ok := c.entries[lruKey{tenantID, key}]; ok {
		c.drop(elem)
	}
	return nil
}

// GetProfile returns the cached profile for benefitID, or nil on a miss.
func (c *LRUCache) GetProfile(ctx context.Context, tenantID string, benefitID string) (*domain.CostSharingProfile, error) {
	return getProfile(ctx, c, tenantID, benefitID)
}

func (c *LRUCache) SetProfile(ctx context.Context, tenantID string, profile *domain.CostSharingProfile, ttl time.Duration) error {
	return setProfile(ctx, c, tenantID, profile, ttl)
}

func (c *LRUCache) Ping(ctx context.Context) error {
	return nil
}

// Close empties the cache. It stays usable afterwards.
func (c *LRUCache) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	clear(c.entries)
	c.recency.Init()
	return nil
}

// Stats reports the number of entries held, expired ones included, and
// the capacity.
func (c *LRUCache) Stats() (size int, capacity int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.recency.Len(), c.capacity
}

func (c *LRUCache) drop(elem *list.Element) {
	if elem == nil {
		return
	}
	c.recency.Remove(elem)
	delete(c.entries, elem.Value.(*lruEntry).id)
}
