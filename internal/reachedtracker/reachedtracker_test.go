package reachedtracker

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/moguard/panel/internal/domain/admin"
	"github.com/moguard/panel/internal/domain/subscription"
)

type fakeSubscriptionRepository struct {
	subs map[int64]*subscription.Subscription
}

func (f *fakeSubscriptionRepository) Create(ctx context.Context, s *subscription.Subscription) (*subscription.Subscription, error) {
	return s, nil
}
func (f *fakeSubscriptionRepository) Update(ctx context.Context, s *subscription.Subscription) error {
	f.subs[s.ID()] = s
	return nil
}
func (f *fakeSubscriptionRepository) Get(ctx context.Context, id int64) (*subscription.Subscription, error) {
	return f.subs[id], nil
}
func (f *fakeSubscriptionRepository) GetByUsername(ctx context.Context, username string) (*subscription.Subscription, error) {
	return nil, nil
}
func (f *fakeSubscriptionRepository) GetByAccessKey(ctx context.Context, accessKey string) (*subscription.Subscription, error) {
	return nil, nil
}
func (f *fakeSubscriptionRepository) ListActive(ctx context.Context) ([]*subscription.Subscription, error) {
	out := make([]*subscription.Subscription, 0, len(f.subs))
	for _, s := range f.subs {
		out = append(out, s)
	}
	return out, nil
}
func (f *fakeSubscriptionRepository) ListByOwner(ctx context.Context, ownerID int64) ([]*subscription.Subscription, error) {
	out := make([]*subscription.Subscription, 0)
	for _, s := range f.subs {
		if s.OwnerID() == ownerID {
			out = append(out, s)
		}
	}
	return out, nil
}
func (f *fakeSubscriptionRepository) ListReachedOlderThan(ctx context.Context, cutoff time.Time, limit int) ([]*subscription.Subscription, error) {
	return nil, nil
}
func (f *fakeSubscriptionRepository) BulkCreate(ctx context.Context, subs []*subscription.Subscription) error {
	return nil
}
func (f *fakeSubscriptionRepository) Delete(ctx context.Context, id int64) error { return nil }
func (f *fakeSubscriptionRepository) ListFiltered(ctx context.Context, filter subscription.Filter, now time.Time) ([]*subscription.Subscription, int64, error) {
	return nil, 0, nil
}
func (f *fakeSubscriptionRepository) Stats(ctx context.Context, now time.Time) (subscription.Stats, error) {
	return subscription.Stats{}, nil
}

type fakeAutoRenewalRepository struct {
	queue map[int64][]*subscription.AutoRenewal
}

func (f *fakeAutoRenewalRepository) Create(ctx context.Context, r *subscription.AutoRenewal) (*subscription.AutoRenewal, error) {
	f.queue[r.SubscriptionID()] = append(f.queue[r.SubscriptionID()], r)
	return r, nil
}
func (f *fakeAutoRenewalRepository) NextFor(ctx context.Context, subscriptionID int64) (*subscription.AutoRenewal, error) {
	q := f.queue[subscriptionID]
	if len(q) == 0 {
		return nil, nil
	}
	return q[0], nil
}
func (f *fakeAutoRenewalRepository) Consume(ctx context.Context, id int64) error {
	for subID, q := range f.queue {
		for i, r := range q {
			if r.ID() == id {
				f.queue[subID] = append(q[:i], q[i+1:]...)
				return nil
			}
		}
	}
	return nil
}
func (f *fakeAutoRenewalRepository) DeleteForSubscription(ctx context.Context, subscriptionID int64) error {
	delete(f.queue, subscriptionID)
	return nil
}

type fakeAdminRepository struct {
	admins map[int64]*admin.Admin
}

func (f *fakeAdminRepository) Create(ctx context.Context, a *admin.Admin) (*admin.Admin, error) {
	return a, nil
}
func (f *fakeAdminRepository) Update(ctx context.Context, a *admin.Admin) error {
	f.admins[a.ID()] = a
	return nil
}
func (f *fakeAdminRepository) Get(ctx context.Context, id int64) (*admin.Admin, error) {
	return f.admins[id], nil
}
func (f *fakeAdminRepository) GetByUsername(ctx context.Context, username string) (*admin.Admin, error) {
	return nil, nil
}
func (f *fakeAdminRepository) GetByAPIKey(ctx context.Context, apiKey string) (*admin.Admin, error) {
	return nil, nil
}
func (f *fakeAdminRepository) List(ctx context.Context) ([]*admin.Admin, error) {
	out := make([]*admin.Admin, 0, len(f.admins))
	for _, a := range f.admins {
		out = append(out, a)
	}
	return out, nil
}
func (f *fakeAdminRepository) Delete(ctx context.Context, id int64) error { return nil }
func (f *fakeAdminRepository) AdjustCounts(ctx context.Context, id int64, countDelta, usageDelta int64) error {
	return nil
}
func (f *fakeAdminRepository) SyncCurrentCounts(ctx context.Context) error { return nil }

func TestTickMarksReachedOnUsageLimit(t *testing.T) {
	owner, err := admin.New("owner1", "hash", admin.RoleSeller, "key", "secret")
	require.NoError(t, err)

	sub, err := subscription.New("bob", owner.ID(), "ak-bob", "sk-bob", 1000, 0, 0, "", nil)
	require.NoError(t, err)
	sub.AddUsage(1001, time.Now().UTC())

	subs := &fakeSubscriptionRepository{subs: map[int64]*subscription.Subscription{sub.ID(): sub}}
	renewals := &fakeAutoRenewalRepository{queue: map[int64][]*subscription.AutoRenewal{}}
	admins := &fakeAdminRepository{admins: map[int64]*admin.Admin{owner.ID(): owner}}

	tr := New(subs, renewals, admins, nil)
	require.NoError(t, tr.Tick(context.Background()))

	got := subs.subs[sub.ID()]
	assert.True(t, got.Reached())
	assert.False(t, got.ReachedAt().IsZero())
}

func TestTickConsumesQueuedAutoRenewalAndReconnects(t *testing.T) {
	owner, err := admin.New("owner2", "hash", admin.RoleSeller, "key", "secret")
	require.NoError(t, err)

	sub, err := subscription.New("carol", owner.ID(), "ak-carol", "sk-carol", 1000, 0, 0, "", nil)
	require.NoError(t, err)
	sub.AddUsage(1000, time.Now().UTC())
	sub.MarkReached(true, time.Now().UTC())

	renewal := subscription.NewAutoRenewal(sub.ID(), 2000, 0, false)

	subs := &fakeSubscriptionRepository{subs: map[int64]*subscription.Subscription{sub.ID(): sub}}
	renewals := &fakeAutoRenewalRepository{queue: map[int64][]*subscription.AutoRenewal{sub.ID(): {renewal}}}
	admins := &fakeAdminRepository{admins: map[int64]*admin.Admin{owner.ID(): owner}}

	tr := New(subs, renewals, admins, nil)
	require.NoError(t, tr.Tick(context.Background()))

	got := subs.subs[sub.ID()]
	assert.False(t, got.Reached())
	assert.Equal(t, int64(2000), got.LimitUsage())
	assert.Empty(t, renewals.queue[sub.ID()])
}

func TestResellerGateSetsDebtedOverQuota(t *testing.T) {
	owner := admin.Reconstruct(
		1, "reseller1", "hash", admin.RoleReseller, "key", "secret",
		true, true, true,
		0, 1000, 0, 1500,
		1, 90,
		nil, admin.Presentation{AccessTag: "guards", UpdateInterval: 1}, admin.NotifySinks{}, admin.TOTPState{},
		false, time.Now().UTC(), time.Now().UTC(),
	)

	sub, err := subscription.New("dave", owner.ID(), "ak-dave", "sk-dave", 0, 0, 0, "", nil)
	require.NoError(t, err)

	subs := &fakeSubscriptionRepository{subs: map[int64]*subscription.Subscription{sub.ID(): sub}}
	renewals := &fakeAutoRenewalRepository{queue: map[int64][]*subscription.AutoRenewal{}}
	admins := &fakeAdminRepository{admins: map[int64]*admin.Admin{owner.ID(): owner}}

	tr := New(subs, renewals, admins, nil)
	require.NoError(t, tr.ResellerGate(context.Background()))

	assert.True(t, subs.subs[sub.ID()].Debted())
}
