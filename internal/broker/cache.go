package broker

import (
	"container/list"
	"sync"
)

// byteLRU is a bounded LRU keyed by (topic, seqno), evicted by total
// payload bytes rather than entry count, the way the delivery cache needs
// to be since record sizes vary widely. There is no ecosystem library in
// the retrieved pack for a byte-budgeted LRU; this is a small use of
// container/list, the standard approach for an LRU's intrusive doubly
// linked recency list.
type byteLRU struct {
	mu       sync.Mutex
	capacity int64
	used     int64
	ll       *list.List
	items    map[cacheKey]*list.Element
}

type cacheKey struct {
	topic string
	seqno uint64
}

type cacheEntry struct {
	key     cacheKey
	payload []byte
}

func newByteLRU(capacity int64) *byteLRU {
	return &byteLRU{capacity: capacity, ll: list.New(), items: make(map[cacheKey]*list.Element)}
}

// Put inserts or refreshes an entry, evicting the least-recently-used
// entries until the cache is back under capacity.
func (c *byteLRU) Put(topic string, seqno uint64, payload []byte) {
	c.mu.Lock()
	defer c.mu.Unlock()
	key := cacheKey{topic: topic, seqno: seqno}
	if el, ok := c.items[key]; ok {
		c.used -= int64(len(el.Value.(*cacheEntry).payload))
		c.ll.MoveToFront(el)
		el.Value.(*cacheEntry).payload = payload
		c.used += int64(len(payload))
	} else {
		el := c.ll.PushFront(&cacheEntry{key: key, payload: payload})
		c.items[key] = el
		c.used += int64(len(payload))
	}
	for c.used > c.capacity && c.ll.Len() > 0 {
		c.evictOldest()
	}
}

func (c *byteLRU) evictOldest() {
	back := c.ll.Back()
	if back == nil {
		return
	}
	entry := back.Value.(*cacheEntry)
	c.used -= int64(len(entry.payload))
	delete(c.items, entry.key)
	c.ll.Remove(back)
}

// Get returns payload for (topic, seqno) and marks it recently used.
func (c *byteLRU) Get(topic string, seqno uint64) ([]byte, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	el, ok := c.items[cacheKey{topic: topic, seqno: seqno}]
	if !ok {
		return nil, false
	}
	c.ll.MoveToFront(el)
	return el.Value.(*cacheEntry).payload, true
}

// SetCapacity mutates the byte budget, evicting immediately if it shrinks
// below current usage.
func (c *byteLRU) SetCapacity(capacity int64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.capacity = capacity
	for c.used > c.capacity && c.ll.Len() > 0 {
		c.evictOldest()
	}
}

// Usage reports current bytes used and configured capacity.
func (c *byteLRU) Usage() (used, capacity int64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.used, c.capacity
}

// Clear evicts every entry.
func (c *byteLRU) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.ll = list.New()
	c.items = make(map[cacheKey]*list.Element)
	c.used = 0
}
