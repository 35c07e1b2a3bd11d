package ticket

import (
	"time"

	"github.com/jellydator/ttlcache/v3"
)

// Control is the in-memory state attached to a ticket's interactive buttons
// for the ticket's lifetime: the discussion thread and the staff member who
// claimed it. Controls idle-expire and are lost on process restart; the
// thread id is also persisted in the ticket row, claimed_by is not.
type Control struct {
	OrderID      string
	ThreadID     string
	RequesterTag string
	ClaimedBy    string
}

// Controls is the per-ticket control registry, keyed by order id. Each hit
// extends the idle window.
type Controls struct {
	cache *ttlcache.Cache[string, *Control]
}

const defaultControlTTL = time.Hour

func NewControls(idleTTL time.Duration) *Controls {
	if idleTTL <= 0 {
		idleTTL = defaultControlTTL
	}
	return &Controls{
		cache: ttlcache.New(ttlcache.WithTTL[string, *Control](idleTTL)),
	}
}

// Start runs the eviction loop. Call once, in a goroutine.
func (c *Controls) Start() { c.cache.Start() }

func (c *Controls) Stop() { c.cache.Stop() }

func (c *Controls) Register(ctl *Control) {
	c.cache.Set(ctl.OrderID, ctl, ttlcache.DefaultTTL)
}

// Get returns nil once the control has idle-expired.
func (c *Controls) Get(orderID string) *Control {
	item := c.cache.Get(orderID)
	if item == nil {
		return nil
	}
	return item.Value()
}

func (c *Controls) Drop(orderID string) {
	c.cache.Delete(orderID)
}
