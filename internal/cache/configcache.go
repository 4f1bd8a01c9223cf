package cache

import "github.com/moguard/panel/internal/nodeclient"

// ConfigCache is the process-wide node_id -> inbound/service catalog (§4.C).
// A failed refresh stores an explicit empty slice rather than leaving the key
// absent, so callers can tell "known empty" from "never fetched".
type ConfigCache struct {
	inner *TTLCache[int64, []nodeclient.InboundOrService]
}

// NewConfigCache constructs an empty Config Cache.
func NewConfigCache() *ConfigCache {
	return &ConfigCache{inner: NewTTLCache[int64, []nodeclient.InboundOrService](0)}
}

// Set stores a node's catalog, or an explicit empty slice on failure.
func (c *ConfigCache) Set(nodeID int64, configs []nodeclient.InboundOrService) {
	if configs == nil {
		configs = []nodeclient.InboundOrService{}
	}
	c.inner.Set(nodeID, configs)
}

// Get returns a node's cached catalog and whether it has ever been fetched.
func (c *ConfigCache) Get(nodeID int64) ([]nodeclient.InboundOrService, bool) {
	return c.inner.Get(nodeID)
}

// Clear drops a node's cached catalog entirely (e.g. the node was removed).
func (c *ConfigCache) Clear(nodeID int64) {
	c.inner.Delete(nodeID)
}
