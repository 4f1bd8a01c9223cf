package cache

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestTTLCacheStaleAfterTTL(t *testing.T) {
	c := NewTTLCache[int64, string](10 * time.Millisecond)
	assert.True(t, c.Stale())

	c.Replace(map[int64]string{1: "a"})
	assert.False(t, c.Stale())

	time.Sleep(15 * time.Millisecond)
	assert.True(t, c.Stale())
}

func TestTTLCacheGetSetDelete(t *testing.T) {
	c := NewTTLCache[int64, string](time.Minute)
	c.Set(1, "a")
	v, ok := c.Get(1)
	assert.True(t, ok)
	assert.Equal(t, "a", v)

	c.Delete(1)
	_, ok = c.Get(1)
	assert.False(t, ok)
}
