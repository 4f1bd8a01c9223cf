package cache

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/moguard/panel/internal/domain/admin"
)

func newTestAdmin(id int64, username, apiKey string) *admin.Admin {
	now := time.Now().UTC()
	return admin.Reconstruct(
		id, username, "hash", admin.RoleSeller, apiKey, "secret",
		true, true, true,
		0, 0, 0, 0,
		1, 90,
		nil, admin.Presentation{}, admin.NotifySinks{}, admin.TOTPState{},
		false, now, now,
	)
}

func TestAdminCacheReplaceAndLookups(t *testing.T) {
	c := NewAdminCache(50 * time.Minute)
	assert.True(t, c.Stale())

	c.Replace([]*admin.Admin{newTestAdmin(1, "alice", "key-1"), newTestAdmin(2, "bob", "key-2")})
	assert.False(t, c.Stale())

	a, ok := c.ByID(1)
	assert.True(t, ok)
	assert.Equal(t, "alice", a.Username())

	a, ok = c.ByUsername("bob")
	assert.True(t, ok)
	assert.Equal(t, int64(2), a.ID())

	a, ok = c.ByAPIKey("key-1")
	assert.True(t, ok)
	assert.Equal(t, "alice", a.Username())

	_, ok = c.ByUsername("carol")
	assert.False(t, ok)
}

func TestAdminCachePutAndRemove(t *testing.T) {
	c := NewAdminCache(time.Minute)
	c.Put(newTestAdmin(1, "alice", "key-1"))

	a, ok := c.ByUsername("alice")
	assert.True(t, ok)
	assert.Equal(t, int64(1), a.ID())

	c.Remove(1)
	_, ok = c.ByID(1)
	assert.False(t, ok)
	_, ok = c.ByUsername("alice")
	assert.False(t, ok)
	_, ok = c.ByAPIKey("key-1")
	assert.False(t, ok)
}
