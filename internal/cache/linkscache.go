package cache

// GuardUsername is the synthetic per-node user whose credential set is kept
// maximal (all inbounds/services, unlimited data) purely to harvest a
// complete prototype link list for cloning at link-generation time (§4.D).
const GuardUsername = "guard"

// LinksCache is the process-wide node_id -> prototype link list (§4.D),
// refreshed once a minute by maintaining the "guard" user on every node.
type LinksCache struct {
	inner *TTLCache[int64, []string]
}

// NewLinksCache constructs an empty Links Cache.
func NewLinksCache() *LinksCache {
	return &LinksCache{inner: NewTTLCache[int64, []string](0)}
}

// Set stores a node's prototype links.
func (c *LinksCache) Set(nodeID int64, links []string) {
	c.inner.Set(nodeID, links)
}

// Get returns a node's cached prototype links.
func (c *LinksCache) Get(nodeID int64) ([]string, bool) {
	return c.inner.Get(nodeID)
}

// All returns every node's prototype links, keyed by node id, for the link
// generator's interleaving pass.
func (c *LinksCache) All() map[int64][]string {
	return c.inner.All()
}
