package subscription

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDerivedProperties(t *testing.T) {
	sub, err := New("alice", 1, "a", "b", 100, 0, 0, "", nil)
	require.NoError(t, err)
	assert.False(t, sub.Limited())

	sub.totalUsage = 200
	assert.True(t, sub.Limited())
	assert.Equal(t, int64(200), sub.CurrentUsage())

	sub.resetUsage = 150
	assert.Equal(t, int64(50), sub.CurrentUsage())
	assert.False(t, sub.Limited())
}

func TestExpiredAndPending(t *testing.T) {
	now := time.Now().UTC()

	unlimited, _ := New("bob", 1, "a", "b", 0, 0, 0, "", nil)
	assert.False(t, unlimited.Expired(now))

	expired, _ := New("carol", 1, "a", "b", 0, now.Add(-time.Hour).Unix(), 0, "", nil)
	assert.True(t, expired.Expired(now))

	pending, _ := New("dave", 1, "a", "b", 0, -86400, 0, "", nil)
	assert.True(t, pending.Pending())
	assert.True(t, pending.IsActive(now))
}

func TestActivateExpireScenarioS3(t *testing.T) {
	now := time.Now().UTC()
	sub, _ := New("erin", 1, "a", "b", 0, -86400, 0, "", nil)

	ok := sub.ActivateExpire(now)
	assert.True(t, ok)
	assert.False(t, sub.Pending())
	assert.InDelta(t, now.Unix()+86400, sub.LimitExpire(), 2)

	ok = sub.ActivateExpire(now)
	assert.False(t, ok, "activate_expire is a no-op once the subscription is no longer pending")
}

func TestIsOnlineWindow(t *testing.T) {
	now := time.Now().UTC()
	sub := Reconstruct(1, "frank", 1, "a", "b", true, true, false, false, false, false, false, false,
		0, 0, 0, 0, "", 0, now.Add(-60*time.Second),
		now, time.Time{}, time.Time{}, time.Time{}, time.Time{}, time.Time{}, time.Time{},
		"", "", "", nil)
	assert.True(t, sub.IsOnline(now))

	sub2 := Reconstruct(1, "gina", 1, "a", "b", true, true, false, false, false, false, false, false,
		0, 0, 0, 0, "", 0, now.Add(-200*time.Second),
		now, time.Time{}, time.Time{}, time.Time{}, time.Time{}, time.Time{}, time.Time{},
		"", "", "", nil)
	assert.False(t, sub2.IsOnline(now))
}

func TestUsageRateScenarioS1(t *testing.T) {
	bucket := time.Now().UTC().Truncate(time.Hour)
	rate := 0.5

	row := NewUsageRow(1, 1, bucket, 0, rate, bucket)
	assert.Equal(t, int64(0), row.AdjustedUsage)
	assert.Equal(t, int64(0), row.RawCounter)

	row = row.ApplyDelta(1000, rate)
	assert.Equal(t, int64(500), row.AdjustedUsage)
	assert.Equal(t, int64(1000), row.RawCounter)

	row = row.ApplyDelta(800, rate) // counter reset
	assert.Equal(t, int64(500), row.AdjustedUsage, "reset must not credit usage")
	assert.Equal(t, int64(800), row.RawCounter)

	row = row.ApplyDelta(1200, rate)
	assert.Equal(t, int64(700), row.AdjustedUsage)
}
