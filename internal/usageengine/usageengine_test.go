package usageengine

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/moguard/panel/internal/domain/admin"
	"github.com/moguard/panel/internal/domain/subscription"
	"github.com/moguard/panel/internal/nodeclient"
)

type mockUsageRepository struct {
	rows map[[3]int64]subscription.Usage
	logs map[[2]int64]subscription.UsageLog
	next int64
}

func newMockUsageRepository() *mockUsageRepository {
	return &mockUsageRepository{rows: map[[3]int64]subscription.Usage{}, logs: map[[2]int64]subscription.UsageLog{}}
}

func usageKey(subID, nodeID int64, bucket time.Time) [3]int64 {
	return [3]int64{subID, nodeID, bucket.Unix()}
}

func logKey(subID int64, bucket time.Time) [2]int64 {
	return [2]int64{subID, bucket.Unix()}
}

func (m *mockUsageRepository) Get(ctx context.Context, subscriptionID, nodeID int64, bucket time.Time) (*subscription.Usage, error) {
	if row, ok := m.rows[usageKey(subscriptionID, nodeID, bucket)]; ok {
		return &row, nil
	}
	return nil, nil
}

func (m *mockUsageRepository) BulkUpsert(ctx context.Context, rows []subscription.Usage) error {
	for _, row := range rows {
		m.rows[usageKey(row.SubscriptionID, row.NodeID, row.HourBucket)] = row
	}
	return nil
}

func (m *mockUsageRepository) SumByBucket(ctx context.Context, subscriptionID int64, bucket time.Time) (int64, error) {
	var total int64
	for k, row := range m.rows {
		if k[0] == subscriptionID && k[2] == bucket.Unix() {
			total += row.AdjustedUsage
		}
	}
	return total, nil
}

func (m *mockUsageRepository) SumTotal(ctx context.Context, subscriptionID int64) (int64, error) {
	var total int64
	for k, row := range m.rows {
		if k[0] == subscriptionID {
			total += row.AdjustedUsage
		}
	}
	return total, nil
}

func (m *mockUsageRepository) SumLoggedTotal(ctx context.Context, subscriptionID int64) (int64, error) {
	var total int64
	for k, log := range m.logs {
		if k[0] == subscriptionID {
			total += log.Usage
		}
	}
	return total, nil
}

func (m *mockUsageRepository) GetLog(ctx context.Context, subscriptionID int64, bucket time.Time) (*subscription.UsageLog, error) {
	if log, ok := m.logs[logKey(subscriptionID, bucket)]; ok {
		return &log, nil
	}
	return nil, nil
}

func (m *mockUsageRepository) AppendLog(ctx context.Context, logs []subscription.UsageLog) error {
	for _, log := range logs {
		m.next++
		log.ID = m.next
		m.logs[logKey(log.SubscriptionID, log.HourBucket)] = log
	}
	return nil
}

func (m *mockUsageRepository) UpdateLog(ctx context.Context, log subscription.UsageLog) error {
	m.logs[logKey(log.SubscriptionID, log.HourBucket)] = log
	return nil
}

type mockSubscriptionRepository struct {
	subs map[int64]*subscription.Subscription
}

func (m *mockSubscriptionRepository) Create(ctx context.Context, s *subscription.Subscription) (*subscription.Subscription, error) {
	return s, nil
}
func (m *mockSubscriptionRepository) Update(ctx context.Context, s *subscription.Subscription) error {
	m.subs[s.ID()] = s
	return nil
}
func (m *mockSubscriptionRepository) Get(ctx context.Context, id int64) (*subscription.Subscription, error) {
	return m.subs[id], nil
}
func (m *mockSubscriptionRepository) GetByUsername(ctx context.Context, username string) (*subscription.Subscription, error) {
	for _, s := range m.subs {
		if s.Username() == username {
			return s, nil
		}
	}
	return nil, nil
}
func (m *mockSubscriptionRepository) GetByAccessKey(ctx context.Context, accessKey string) (*subscription.Subscription, error) {
	return nil, nil
}
func (m *mockSubscriptionRepository) ListActive(ctx context.Context) ([]*subscription.Subscription, error) {
	out := make([]*subscription.Subscription, 0, len(m.subs))
	for _, s := range m.subs {
		out = append(out, s)
	}
	return out, nil
}
func (m *mockSubscriptionRepository) ListByOwner(ctx context.Context, ownerID int64) ([]*subscription.Subscription, error) {
	return nil, nil
}
func (m *mockSubscriptionRepository) ListReachedOlderThan(ctx context.Context, cutoff time.Time, limit int) ([]*subscription.Subscription, error) {
	return nil, nil
}
func (m *mockSubscriptionRepository) BulkCreate(ctx context.Context, subs []*subscription.Subscription) error {
	return nil
}
func (m *mockSubscriptionRepository) Delete(ctx context.Context, id int64) error { return nil }

type mockAdminRepository struct {
	admins map[int64]*admin.Admin
}

func (m *mockAdminRepository) Create(ctx context.Context, a *admin.Admin) (*admin.Admin, error) {
	return a, nil
}
func (m *mockAdminRepository) Update(ctx context.Context, a *admin.Admin) error { return nil }
func (m *mockAdminRepository) Get(ctx context.Context, id int64) (*admin.Admin, error) {
	return m.admins[id], nil
}
func (m *mockAdminRepository) GetByUsername(ctx context.Context, username string) (*admin.Admin, error) {
	return nil, nil
}
func (m *mockAdminRepository) GetByAPIKey(ctx context.Context, apiKey string) (*admin.Admin, error) {
	return nil, nil
}
func (m *mockAdminRepository) List(ctx context.Context) ([]*admin.Admin, error) {
	out := make([]*admin.Admin, 0, len(m.admins))
	for _, a := range m.admins {
		out = append(out, a)
	}
	return out, nil
}
func (m *mockAdminRepository) Delete(ctx context.Context, id int64) error { return nil }
func (m *mockAdminRepository) AdjustCounts(ctx context.Context, id int64, countDelta, usageDelta int64) error {
	a := m.admins[id]
	a.AdjustCounts(countDelta, usageDelta)
	return nil
}
func (m *mockAdminRepository) SyncCurrentCounts(ctx context.Context) error { return nil }

func TestIngestCreditsNewRowAndSubscriptionUsage(t *testing.T) {
	sub, err := subscription.New("alice", 1, "ak", "sk", 0, 0, 0, "", []int64{1})
	require.NoError(t, err)

	usageRepo := newMockUsageRepository()
	subRepo := &mockSubscriptionRepository{subs: map[int64]*subscription.Subscription{sub.ID(): sub}}

	engine := New(usageRepo, subRepo, &mockAdminRepository{admins: map[int64]*admin.Admin{}}, nil)

	snapshots := []NodeSnapshot{{
		NodeID:    10,
		UsageRate: 1.0,
		Users: map[string]nodeclient.UserView{
			"sk": {Username: "sk", LifetimeUsedTraffic: 1000, CreatedAt: time.Now()},
		},
	}}

	err = engine.Ingest(context.Background(), snapshots, []*subscription.Subscription{sub})
	require.NoError(t, err)
	assert.Equal(t, int64(1000), sub.TotalUsage())
}

func TestLogHourlyAccumulatesUnloggedUsage(t *testing.T) {
	sub, err := subscription.New("bob", 7, "ak2", "sk2", 0, 0, 0, "", []int64{1})
	require.NoError(t, err)
	sub.AddUsage(5000, time.Now().UTC())

	owner, err := admin.New("owner1", "hash", admin.RoleSeller, "key", "secret")
	require.NoError(t, err)

	usageRepo := newMockUsageRepository()
	bucket := time.Now().UTC().Truncate(time.Hour)
	usageRepo.rows[usageKey(sub.ID(), 10, bucket)] = subscription.Usage{
		SubscriptionID: sub.ID(), NodeID: 10, HourBucket: bucket, AdjustedUsage: 5000,
	}

	subRepo := &mockSubscriptionRepository{subs: map[int64]*subscription.Subscription{sub.ID(): sub}}
	adminRepo := &mockAdminRepository{admins: map[int64]*admin.Admin{sub.OwnerID(): owner}}

	engine := New(usageRepo, subRepo, adminRepo, nil)
	require.NoError(t, engine.LogHourly(context.Background()))

	logged, err := usageRepo.SumLoggedTotal(context.Background(), sub.ID())
	require.NoError(t, err)
	assert.Equal(t, int64(5000), logged)
	assert.Equal(t, int64(5000), owner.CurrentUsage())
}
