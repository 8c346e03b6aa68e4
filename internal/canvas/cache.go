package canvas

import (
	"sync"
	"time"
)

// StatusCache holds the last-known device status snapshot.
//
// Reads never touch the network: Get returns the cached snapshot if it
// is fresh enough, or ErrStale so the caller can decide whether to pay
// for a refresh through the session. Writes happen only as a side
// effect of operations already in flight.
//
// Thread Safety:
//   - All methods are safe for concurrent use.
type StatusCache struct {
	mu      sync.RWMutex
	status  DeviceStatus
	fetched time.Time
	valid   bool
}

// NewStatusCache creates an empty cache. Get returns ErrStale until
// the first successful refresh populates it.
func NewStatusCache() *StatusCache {
	return &StatusCache{}
}

// Get returns a copy of the cached status if it is no older than
// maxAge. A maxAge of zero accepts any cached snapshot.
//
// Returns ErrStale when the cache is empty or too old. It never blocks
// on the network.
func (c *StatusCache) Get(maxAge time.Duration) (DeviceStatus, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	if !c.valid {
		return DeviceStatus{}, ErrStale
	}
	if maxAge > 0 && time.Since(c.fetched) > maxAge {
		return DeviceStatus{}, ErrStale
	}

	return c.status, nil
}

// Age returns how old the cached snapshot is. Returns a negative
// duration when the cache has never been populated.
func (c *StatusCache) Age() time.Duration {
	c.mu.RLock()
	defer c.mu.RUnlock()

	if !c.valid {
		return -1
	}
	return time.Since(c.fetched)
}

// set replaces the snapshot wholesale. Called by the session when an
// operation response carries status fields.
func (c *StatusCache) set(status DeviceStatus) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.status = status
	c.fetched = time.Now()
	c.valid = true
}
