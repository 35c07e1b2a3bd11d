package ticket

import (
	"context"
	"strings"
	"sync"

	"github.com/7FIl/CS-Bot/domain/infra"
	"github.com/7FIl/CS-Bot/domain/model"
)

// FAQCache serves FAQ entries from memory, reloading on demand. A refresh
// replaces the snapshot wholesale; readers holding the old slice keep a
// consistent view until they drop it.
type FAQCache struct {
	ds infra.Datastore

	mu      sync.RWMutex
	entries []model.FAQEntry
}

func NewFAQCache(ds infra.Datastore) *FAQCache {
	return &FAQCache{ds: ds}
}

// Get returns the snapshot, reloading from the store when refresh is set or
// the cache is still empty. On a failed reload the previous snapshot stays
// in place.
func (c *FAQCache) Get(ctx context.Context, refresh bool) ([]model.FAQEntry, error) {
	c.mu.RLock()
	cached := c.entries
	c.mu.RUnlock()

	if !refresh && len(cached) > 0 {
		return cached, nil
	}

	entries, err := c.ds.LoadFAQ(ctx)
	if err != nil {
		return nil, err
	}
	c.mu.Lock()
	c.entries = entries
	c.mu.Unlock()
	return entries, nil
}

// Find looks up an entry by trigger id, case-insensitively.
func (c *FAQCache) Find(ctx context.Context, triggerID string) (*model.FAQEntry, error) {
	entries, err := c.Get(ctx, false)
	if err != nil {
		return nil, err
	}
	want := strings.ToLower(strings.TrimSpace(triggerID))
	for i := range entries {
		if strings.ToLower(strings.TrimSpace(entries[i].TriggerID)) == want {
			return &entries[i], nil
		}
	}
	return nil, nil
}
