package cache

import (
	"fmt"
	"time"

	"github.com/dgraph-io/ristretto/v2"
)

// Ristretto is a bounded cache backed by ristretto. Admission is probabilistic, so
// a Set may be dropped under pressure; a dropped entry only costs a store read.
type Ristretto struct {
	cache *ristretto.Cache[string, entry]
	ttl   time.Duration
	now   func() time.Time
}

// NewRistretto returns a cache holding at most maxEntries identities for ttl each.
func NewRistretto(ttl time.Duration, maxEntries int64, now func() time.Time) (*Ristretto, error) {
	if maxEntries <= 0 {
		maxEntries = 1 << 20
	}
	if now == nil {
		now = time.Now
	}

	c, err := ristretto.NewCache(&ristretto.Config[string, entry]{
		NumCounters: maxEntries * 10,
		MaxCost:     maxEntries,
		BufferItems: 64,

		IgnoreInternalCost: true,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to initialize session cache: %w", err)
	}

	return &Ristretto{cache: c, ttl: ttl, now: now}, nil
}

// Get returns the cached token for identity if it was inserted less than ttl ago.
func (r *Ristretto) Get(identity string) (string, bool) {
	e, ok := r.cache.Get(identity)
	if !ok || !r.now().Before(e.insertedAt.Add(r.ttl)) {
		return "", false
	}
	return e.token, true
}

// Set stores token for identity and waits for the write buffer to drain so the
// entry is visible to the next Get.
func (r *Ristretto) Set(identity, token string) {
	r.cache.SetWithTTL(identity, entry{token: token, insertedAt: r.now()}, 1, r.ttl)
	r.cache.Wait()
}

// Delete removes identity from the cache.
func (r *Ristretto) Delete(identity string) {
	r.cache.Del(identity)
}

// Close releases ristretto's background goroutines.
func (r *Ristretto) Close() {
	r.cache.Close()
}
