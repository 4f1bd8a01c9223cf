package store

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/moguard/panel/internal/domain/node"
)

func setupTestDB(t *testing.T) *gorm.DB {
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(&nodeModel{}, &adminModel{}, &serviceModel{},
		&subscriptionModel{}, &usageModel{}, &usageLogModel{}, &autoRenewalModel{}))
	return db
}

func TestNodeRepositoryCreateAndGet(t *testing.T) {
	db := setupTestDB(t)
	repo := NewNodeRepository(db)
	ctx := context.Background()

	n, err := node.New("edge-1", node.KindMarzban, "https://edge-1.example", "admin", "secret")
	require.NoError(t, err)

	saved, err := repo.Create(ctx, n)
	require.NoError(t, err)
	assert.NotZero(t, saved.ID())

	fetched, err := repo.Get(ctx, saved.ID())
	require.NoError(t, err)
	assert.Equal(t, "edge-1", fetched.Remark())
	assert.True(t, fetched.Availabled())
}

func TestNodeRepositoryListAvailableExcludesRemoved(t *testing.T) {
	db := setupTestDB(t)
	repo := NewNodeRepository(db)
	ctx := context.Background()

	n1, _ := node.New("a", node.KindMarzneshin, "https://a", "u", "p")
	n2, _ := node.New("b", node.KindRustneshin, "https://b", "u", "p")
	a1, err := repo.Create(ctx, n1)
	require.NoError(t, err)
	a2, err := repo.Create(ctx, n2)
	require.NoError(t, err)
	_ = a1

	require.NoError(t, repo.Delete(ctx, a2.ID()))

	available, err := repo.ListAvailable(ctx)
	require.NoError(t, err)
	require.Len(t, available, 1)
	assert.Equal(t, "a", available[0].Remark())
}
