package registry

import (
	"sync"
	"time"

	"golang.org/x/sync/singleflight"
)

// CachedRegistry wraps a Registry with a TTL cache. Concurrent resolves of
// the same id are collapsed through a singleflight group so a slow backing
// store is hit once per id per TTL window. Not-found results are cached too;
// an unknown id stays unknown until Invalidate or expiry.
type CachedRegistry struct {
	mu      sync.RWMutex
	backing Registry
	ttl     time.Duration
	items   map[string]cacheItem
	group   singleflight.Group
}

type cacheItem struct {
	skill     Skill
	err       error
	expiresAt time.Time
}

func NewCachedRegistry(backing Registry, ttl time.Duration) *CachedRegistry {
	if ttl <= 0 {
		ttl = 30 * time.Second
	}
	return &CachedRegistry{
		backing: backing,
		ttl:     ttl,
		items:   make(map[string]cacheItem),
	}
}

func (c *CachedRegistry) Resolve(skillID string) (Skill, error) {
	c.mu.RLock()
	item, ok := c.items[skillID]
	c.mu.RUnlock()
	if ok && time.Now().Before(item.expiresAt) {
		return item.skill, item.err
	}

	v, err, _ := c.group.Do(skillID, func() (any, error) {
		skill, rerr := c.backing.Resolve(skillID)
		c.mu.Lock()
		c.items[skillID] = cacheItem{
			skill:     skill,
			err:       rerr,
			expiresAt: time.Now().Add(c.ttl),
		}
		c.mu.Unlock()
		return skill, rerr
	})
	if err != nil {
		return Skill{}, err
	}
	return v.(Skill), nil
}

// Invalidate drops every cached entry. The watcher calls this when the
// skills directory changes.
func (c *CachedRegistry) Invalidate() {
	c.mu.Lock()
	c.items = make(map[string]cacheItem)
	c.mu.Unlock()
}
