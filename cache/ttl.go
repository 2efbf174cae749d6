package cache

import (
	"sync"
	"time"
)

type entry struct {
	token      string
	insertedAt time.Time
}

// TTL is a map-backed cache safe for concurrent use. Expired entries are never
// returned and are swept periodically when a cleanup interval is configured.
type TTL struct {
	mu      sync.RWMutex
	entries map[string]entry
	ttl     time.Duration
	now     func() time.Time

	stopCleanup chan struct{}
	stopOnce    sync.Once
}

// NewTTL returns a cache whose entries live for ttl. A positive cleanupInterval
// starts a sweeper goroutine that runs until [TTL.Close]. now defaults to time.Now.
func NewTTL(ttl, cleanupInterval time.Duration, now func() time.Time) *TTL {
	if now == nil {
		now = time.Now
	}
	c := &TTL{
		entries:     make(map[string]entry),
		ttl:         ttl,
		now:         now,
		stopCleanup: make(chan struct{}),
	}

	if cleanupInterval > 0 {
		go func() {
			ticker := time.NewTicker(cleanupInterval)
			defer ticker.Stop()

			for {
				select {
				case <-ticker.C:
					c.evictExpired()
				case <-c.stopCleanup:
					return
				}
			}
		}()
	}

	return c
}

// Get returns the cached token for identity if it was inserted less than ttl ago.
func (c *TTL) Get(identity string) (string, bool) {
	c.mu.RLock()
	e, ok := c.entries[identity]
	c.mu.RUnlock()

	if !ok || !c.fresh(e) {
		return "", false
	}
	return e.token, true
}

// Set stores token for identity, restarting its TTL.
func (c *TTL) Set(identity, token string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.entries[identity] = entry{token: token, insertedAt: c.now()}
}

// Delete removes identity from the cache.
func (c *TTL) Delete(identity string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	delete(c.entries, identity)
}

// Len reports the number of stored entries, including expired ones not yet swept.
func (c *TTL) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()

	return len(c.entries)
}

// Close stops the sweeper goroutine. It is safe to call more than once.
func (c *TTL) Close() {
	c.stopOnce.Do(func() { close(c.stopCleanup) })
}

func (c *TTL) fresh(e entry) bool {
	return c.now().Before(e.insertedAt.Add(c.ttl))
}

func (c *TTL) evictExpired() {
	c.mu.Lock()
	defer c.mu.Unlock()

	for key, e := range c.entries {
		if !c.fresh(e) {
			delete(c.entries, key)
		}
	}
}
