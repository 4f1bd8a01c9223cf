package reconciler

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/moguard/panel/internal/cache"
	"github.com/moguard/panel/internal/domain/node"
	"github.com/moguard/panel/internal/domain/service"
	"github.com/moguard/panel/internal/domain/subscription"
	"github.com/moguard/panel/internal/nodeclient"
	"github.com/moguard/panel/internal/usageengine"
)

type fakeNodeRepository struct {
	nodes map[int64]*node.Node
}

func (f *fakeNodeRepository) Create(ctx context.Context, n *node.Node) (*node.Node, error) { return n, nil }
func (f *fakeNodeRepository) Update(ctx context.Context, n *node.Node) error                { return nil }
func (f *fakeNodeRepository) Get(ctx context.Context, id int64) (*node.Node, error)         { return f.nodes[id], nil }
func (f *fakeNodeRepository) List(ctx context.Context) ([]*node.Node, error)                { return f.all(), nil }
func (f *fakeNodeRepository) ListAvailable(ctx context.Context) ([]*node.Node, error)        { return f.all(), nil }
func (f *fakeNodeRepository) Delete(ctx context.Context, id int64) error                     { return nil }
func (f *fakeNodeRepository) UpdateAccess(ctx context.Context, id int64, token string, at time.Time) error {
	return nil
}
func (f *fakeNodeRepository) all() []*node.Node {
	out := make([]*node.Node, 0, len(f.nodes))
	for _, n := range f.nodes {
		out = append(out, n)
	}
	return out
}

type fakeServiceRepository struct {
	services map[int64]*service.Service
}

func (f *fakeServiceRepository) Create(ctx context.Context, s *service.Service) (*service.Service, error) {
	return s, nil
}
func (f *fakeServiceRepository) Update(ctx context.Context, s *service.Service) error { return nil }
func (f *fakeServiceRepository) Get(ctx context.Context, id int64) (*service.Service, error) {
	return f.services[id], nil
}
func (f *fakeServiceRepository) List(ctx context.Context) ([]*service.Service, error) {
	out := make([]*service.Service, 0, len(f.services))
	for _, s := range f.services {
		out = append(out, s)
	}
	return out, nil
}
func (f *fakeServiceRepository) ListByIDs(ctx context.Context, ids []int64) ([]*service.Service, error) {
	return nil, nil
}
func (f *fakeServiceRepository) Delete(ctx context.Context, id int64) error { return nil }

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
	return nil, nil
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

// fakeClient is a minimal in-memory nodeclient.Client double recording the
// calls a tick makes against one node.
type fakeClient struct {
	configs []nodeclient.InboundOrService
	users   map[string]nodeclient.UserView

	created     []string
	activated   []string
	deactivated []string
	deleted     []string
}

func (c *fakeClient) Login(ctx context.Context, username, password string) (string, error) {
	return "tok", nil
}
func (c *fakeClient) GetAdminIsActive(ctx context.Context, username, token string) (bool, error) {
	return true, nil
}
func (c *fakeClient) GetInboundsOrServices(ctx context.Context, token string) ([]nodeclient.InboundOrService, error) {
	return c.configs, nil
}
func (c *fakeClient) GetUser(ctx context.Context, serverKey, token string) (*nodeclient.UserView, error) {
	if u, ok := c.users[serverKey]; ok {
		return &u, nil
	}
	return nil, nil
}
func (c *fakeClient) ListUsers(ctx context.Context, token string, page, size int, usernames []string, activate *bool) ([]nodeclient.UserView, error) {
	out := make([]nodeclient.UserView, 0, len(c.users))
	for _, u := range c.users {
		out = append(out, u)
	}
	return out, nil
}
func (c *fakeClient) CreateUser(ctx context.Context, d nodeclient.DesiredUser, token string) (*nodeclient.UserView, error) {
	c.created = append(c.created, d.Username)
	v := nodeclient.UserView{Username: d.Username, IsActive: true, ServiceIDs: d.ServiceIDs, Proxies: d.Proxies, Inbounds: d.Inbounds}
	if c.users == nil {
		c.users = map[string]nodeclient.UserView{}
	}
	c.users[d.Username] = v
	return &v, nil
}
func (c *fakeClient) UpdateUser(ctx context.Context, serverKey string, d nodeclient.DesiredUser, token string) (*nodeclient.UserView, error) {
	return nil, nil
}
func (c *fakeClient) DeleteUser(ctx context.Context, serverKey, token string) error {
	c.deleted = append(c.deleted, serverKey)
	delete(c.users, serverKey)
	return nil
}
func (c *fakeClient) ActivateUser(ctx context.Context, serverKey, token string) error {
	c.activated = append(c.activated, serverKey)
	return nil
}
func (c *fakeClient) DeactivateUser(ctx context.Context, serverKey, token string) error {
	c.deactivated = append(c.deactivated, serverKey)
	return nil
}
func (c *fakeClient) ResetUser(ctx context.Context, serverKey, token string) error { return nil }
func (c *fakeClient) RevokeSub(ctx context.Context, serverKey, token string) error { return nil }
func (c *fakeClient) UsersCount(ctx context.Context, token string) (int, error)    { return len(c.users), nil }
func (c *fakeClient) SubscriptionLinks(ctx context.Context, user *nodeclient.UserView, token string) ([]string, error) {
	return nil, nil
}
func (c *fakeClient) FetchScriptedUsers(ctx context.Context, scriptURL, scriptSecret string) ([]nodeclient.UserView, error) {
	return nil, nil
}

type fakeUsageRepository struct{}

func (f *fakeUsageRepository) Get(ctx context.Context, subscriptionID, nodeID int64, bucket time.Time) (*subscription.Usage, error) {
	return nil, nil
}
func (f *fakeUsageRepository) BulkUpsert(ctx context.Context, rows []subscription.Usage) error {
	return nil
}
func (f *fakeUsageRepository) SumByBucket(ctx context.Context, subscriptionID int64, bucket time.Time) (int64, error) {
	return 0, nil
}
func (f *fakeUsageRepository) SumTotal(ctx context.Context, subscriptionID int64) (int64, error) {
	return 0, nil
}
func (f *fakeUsageRepository) SumLoggedTotal(ctx context.Context, subscriptionID int64) (int64, error) {
	return 0, nil
}
func (f *fakeUsageRepository) GetLog(ctx context.Context, subscriptionID int64, bucket time.Time) (*subscription.UsageLog, error) {
	return nil, nil
}
func (f *fakeUsageRepository) AppendLog(ctx context.Context, logs []subscription.UsageLog) error {
	return nil
}
func (f *fakeUsageRepository) UpdateLog(ctx context.Context, log subscription.UsageLog) error {
	return nil
}

func TestTickCreatesMissingActiveUserOnInSetNode(t *testing.T) {
	n, err := node.New("node-1", node.KindMarzneshin, "https://node1", "admin", "pw")
	require.NoError(t, err)

	svc, err := service.New("bundle", []int64{n.ID()})
	require.NoError(t, err)

	sub, err := subscription.New("alice", 1, "ak-alice", "sk-alice", 0, 0, 0, "", []int64{svc.ID()})
	require.NoError(t, err)

	client := &fakeClient{configs: []nodeclient.InboundOrService{{ID: 100}}, users: map[string]nodeclient.UserView{}}

	nodes := &fakeNodeRepository{nodes: map[int64]*node.Node{n.ID(): n}}
	services := &fakeServiceRepository{services: map[int64]*service.Service{svc.ID(): svc}}
	subs := &fakeSubscriptionRepository{subs: map[int64]*subscription.Subscription{sub.ID(): sub}}

	usage := usageengine.New(&fakeUsageRepository{}, subs, nil, nil)

	r := New(nodes, services, subs, usage, cache.NewConfigCache(), cache.NewLinksCache(), nil)
	r.newClient = func(kind node.Kind, host string) (nodeclient.Client, error) { return client, nil }

	require.NoError(t, r.Tick(context.Background()))

	assert.Eventually(t, func() bool {
		return len(client.created) == 1 && client.created[0] == "sk-alice"
	}, time.Second, 10*time.Millisecond)
}
