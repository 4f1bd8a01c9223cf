package store

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/moguard/panel/internal/domain/subscription"
)

func TestSubscriptionRepositoryRoundTrip(t *testing.T) {
	db := setupTestDB(t)
	repo := NewSubscriptionRepository(db)
	ctx := context.Background()

	sub, err := subscription.New("alice", 1, "a1111111111111111111111111111a1", "b2222222", 0, 0, 0, "", []int64{1, 2})
	require.NoError(t, err)

	saved, err := repo.Create(ctx, sub)
	require.NoError(t, err)
	assert.NotZero(t, saved.ID())

	fetched, err := repo.GetByUsername(ctx, "alice")
	require.NoError(t, err)
	assert.Equal(t, []int64{1, 2}, fetched.ServiceIDs())

	byKey, err := repo.GetByAccessKey(ctx, "a1111111111111111111111111111a1")
	require.NoError(t, err)
	assert.Equal(t, fetched.ID(), byKey.ID())
}

func TestSubscriptionRepositoryListReachedOlderThanRespectsFIFOAndLimit(t *testing.T) {
	db := setupTestDB(t)
	repo := NewSubscriptionRepository(db)
	ctx := context.Background()
	now := time.Now().UTC()

	for i, username := range []string{"u1", "u2", "u3"} {
		sub, err := subscription.New(username, 1, string(rune('a'+i))+"111111111111111111111111111111", "c0000000", 0, 0, 0, "", nil)
		require.NoError(t, err)
		saved, err := repo.Create(ctx, sub)
		require.NoError(t, err)
		saved.MarkReached(true, now.Add(-time.Duration(i)*time.Hour))
		require.NoError(t, repo.Update(ctx, saved))
	}

	reached, err := repo.ListReachedOlderThan(ctx, now, 2)
	require.NoError(t, err)
	require.Len(t, reached, 2)
	assert.True(t, reached[0].ReachedAt().Before(reached[1].ReachedAt()) || reached[0].ReachedAt().Equal(reached[1].ReachedAt()))
}
