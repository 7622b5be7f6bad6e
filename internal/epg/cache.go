package epg

import (
	"sync"

	"github.com/demon-editor/core/internal/model"
)

// FavCache holds the current event per service display name. It backs
// the bouquet-details row annotation and is replaced wholesale on each
// refresh.
type FavCache struct {
	mu     sync.RWMutex
	events map[string]model.EpgEvent
}

func NewFavCache() *FavCache {
	return &FavCache{events: make(map[string]model.EpgEvent)}
}

// Replace swaps in a new snapshot keyed by display name.
func (c *FavCache) Replace(events map[string]model.EpgEvent) {
	c.mu.Lock()
	c.events = events
	c.mu.Unlock()
}

// Current returns the running event for a display name.
func (c *FavCache) Current(name string) (model.EpgEvent, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	ev, ok := c.events[name]
	return ev, ok
}

// Len reports how many services have a current event.
func (c *FavCache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.events)
}

// TabCache holds the full event list per service, keyed by the id the
// active source uses (service reference or guide channel id).
type TabCache struct {
	mu     sync.RWMutex
	events map[string][]model.EpgEvent
}

func NewTabCache() *TabCache {
	return &TabCache{events: make(map[string][]model.EpgEvent)}
}

// Replace swaps in a new snapshot.
func (c *TabCache) Replace(events map[string][]model.EpgEvent) {
	c.mu.Lock()
	c.events = events
	c.mu.Unlock()
}

// Events returns the list for one key. The slice is shared; callers
// must not mutate it.
func (c *TabCache) Events(key string) []model.EpgEvent {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.events[key]
}

// Keys returns all cached ids.
func (c *TabCache) Keys() []string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	keys := make([]string, 0, len(c.events))
	for k := range c.events {
		keys = append(keys, k)
	}
	return keys
}
