package cache

import (
	"sync"
	"time"

	"github.com/upnext/upnextd/internal/domain"
)

// Cache holds per-(provider, day) fetch results for a configurable TTL so the
// aggregator can skip redundant network fetches between cycles.
//
// Expiry is lazy: an entry past its TTL is evicted on the Get that observes
// it. At a handful of providers and one key per day there is nothing for a
// background sweeper to do.
type Cache struct {
	mu      sync.Mutex
	ttl     time.Duration
	entries map[string]entry
	now     func() time.Time
}

type entry struct {
	meetings  []domain.Meeting
	fetchedAt time.Time
}

// New creates a cache with the given TTL.
func New(ttl time.Duration) *Cache {
	return &Cache{
		ttl:     ttl,
		entries: make(map[string]entry),
		now:     time.Now,
	}
}

// key is stable across repeated same-day calls: the day component is the
// midnight-aligned boundary, not wall-clock now.
func key(providerID string, day time.Time) string {
	return providerID + "|" + day.Format("2006-01-02")
}

// Get returns the cached meetings for (providerID, day), or ok=false when the
// entry is absent or older than the TTL.
func (c *Cache) Get(providerID string, day time.Time) ([]domain.Meeting, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	k := key(providerID, day)
	e, ok := c.entries[k]
	if !ok {
		return nil, false
	}
	if c.now().Sub(e.fetchedAt) > c.ttl {
		delete(c.entries, k)
		return nil, false
	}
	return e.meetings, true
}

// Set stores meetings for (providerID, day), stamped at call time. Overwrites
// unconditionally.
func (c *Cache) Set(providerID string, day time.Time, meetings []domain.Meeting) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.entries[key(providerID, day)] = entry{
		meetings:  meetings,
		fetchedAt: c.now(),
	}
}

// Invalidate removes every entry belonging to providerID, leaving other
// providers' entries untouched. Used when a provider is disabled or
// disconnected.
func (c *Cache) Invalidate(providerID string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	prefix := providerID + "|"
	for k := range c.entries {
		if len(k) >= len(prefix) && k[:len(prefix)] == prefix {
			delete(c.entries, k)
		}
	}
}

// InvalidateAll clears the whole cache so the next cycle performs live
// fetches for every enabled provider.
func (c *Cache) InvalidateAll() {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.entries = make(map[string]entry)
}

// SetTTL changes the TTL used by subsequent Get calls. Entries that fall
// outside the new window are evicted on their next read, not retroactively.
func (c *Cache) SetTTL(ttl time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.ttl = ttl
}

// TTL returns the current TTL.
func (c *Cache) TTL() time.Duration {
	c.mu.Lock()
	defer c.mu.Unlock()

	return c.ttl
}
