package cache

import (
	"sync"
	"time"

	"github.com/moguard/panel/internal/domain/admin"
)

// AdminCache is the username/id/api-key -> Admin lookup cache (§4.E), TTL 50
// minutes. It is filled once at startup by Replace; no scheduled job refreshes
// it and no request handler calls Put or Remove, so admin changes made through
// the API after startup are not reflected in it. Reads do not consult the
// TTL; Stale reports whether it has elapsed.
type AdminCache struct {
	mu          sync.RWMutex
	byID        map[int64]*admin.Admin
	byUsername  map[string]int64
	byAPIKey    map[string]int64
	lastUpdated time.Time
	ttl         time.Duration
}

// NewAdminCache constructs an empty Admin Cache with the given TTL.
func NewAdminCache(ttl time.Duration) *AdminCache {
	return &AdminCache{
		byID: make(map[int64]*admin.Admin), byUsername: make(map[string]int64), byAPIKey: make(map[string]int64),
		ttl: ttl,
	}
}

// Stale reports whether the cache needs a full refresh.
func (c *AdminCache) Stale() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return time.Since(c.lastUpdated) > c.ttl
}

// Replace atomically swaps in a freshly loaded admin set.
func (c *AdminCache) Replace(admins []*admin.Admin) {
	byID := make(map[int64]*admin.Admin, len(admins))
	byUsername := make(map[string]int64, len(admins))
	byAPIKey := make(map[string]int64, len(admins))
	for _, a := range admins {
		byID[a.ID()] = a
		byUsername[a.Username()] = a.ID()
		byAPIKey[a.APIKey()] = a.ID()
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.byID = byID
	c.byUsername = byUsername
	c.byAPIKey = byAPIKey
	c.lastUpdated = time.Now().UTC()
}

// Put inserts or replaces a single admin, first dropping the username and
// api-key entries of the admin previously cached under the same id.
func (c *AdminCache) Put(a *admin.Admin) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if old, ok := c.byID[a.ID()]; ok {
		delete(c.byUsername, old.Username())
		delete(c.byAPIKey, old.APIKey())
	}
	c.byID[a.ID()] = a
	c.byUsername[a.Username()] = a.ID()
	c.byAPIKey[a.APIKey()] = a.ID()
}

// Remove evicts an admin, e.g. after a soft-delete.
func (c *AdminCache) Remove(id int64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	a, ok := c.byID[id]
	if !ok {
		return
	}
	delete(c.byID, id)
	delete(c.byUsername, a.Username())
	delete(c.byAPIKey, a.APIKey())
}

func (c *AdminCache) ByID(id int64) (*admin.Admin, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	a, ok := c.byID[id]
	return a, ok
}

func (c *AdminCache) ByUsername(username string) (*admin.Admin, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	id, ok := c.byUsername[username]
	if !ok {
		return nil, false
	}
	a, ok := c.byID[id]
	return a, ok
}

func (c *AdminCache) ByAPIKey(apiKey string) (*admin.Admin, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	id, ok := c.byAPIKey[apiKey]
	if !ok {
		return nil, false
	}
	a, ok := c.byID[id]
	return a, ok
}
