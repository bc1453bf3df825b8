package application

import (
	"sync"
	"time"
)

// deliveryCache remembers recently processed inbound delivery ids so that a
// transport redelivering the same message is answered without reprocessing.
type deliveryCache struct {
	mu         sync.Mutex
	now        func() time.Time
	ttl        time.Duration
	maxEntries int
	entries    map[string]time.Time
}

func newDeliveryCache(ttl time.Duration, maxEntries int, now func() time.Time) *deliveryCache {
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	if maxEntries <= 0 {
		maxEntries = 10000
	}
	if now == nil {
		now = time.Now
	}
	return &deliveryCache{
		now:        now,
		ttl:        ttl,
		maxEntries: maxEntries,
		entries:    make(map[string]time.Time),
	}
}

// Claim records id and reports whether it was new. Empty ids are always new.
func (c *deliveryCache) Claim(id string) bool {
	if c == nil || id == "" {
		return true
	}
	now := c.now()

	c.mu.Lock()
	defer c.mu.Unlock()

	if expiresAt, ok := c.entries[id]; ok && !now.After(expiresAt) {
		return false
	}
	if len(c.entries) >= c.maxEntries {
		c.cleanupLocked(now)
	}
	if len(c.entries) >= c.maxEntries {
		c.evictOneLocked()
	}
	c.entries[id] = now.Add(c.ttl)
	return true
}

// Forget drops id so a redelivery is processed again.
func (c *deliveryCache) Forget(id string) {
	if c == nil || id == "" {
		return
	}
	c.mu.Lock()
	delete(c.entries, id)
	c.mu.Unlock()
}

func (c *deliveryCache) Len() int {
	if c == nil {
		return 0
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}

func (c *deliveryCache) cleanupLocked(now time.Time) {
	for id, expiresAt := range c.entries {
		if now.After(expiresAt) {
			delete(c.entries, id)
		}
	}
}

// evictOneLocked drops the entry closest to expiry.
func (c *deliveryCache) evictOneLocked() {
	var (
		oldest   string
		earliest time.Time
	)
	for id, expiresAt := range c.entries {
		if oldest == "" || expiresAt.Before(earliest) {
			oldest, earliest = id, expiresAt
		}
	}
	delete(c.entries, oldest)
}
