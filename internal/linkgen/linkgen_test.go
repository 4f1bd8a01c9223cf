package linkgen

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/moguard/panel/internal/cache"
	"github.com/moguard/panel/internal/domain/admin"
	"github.com/moguard/panel/internal/domain/node"
	"github.com/moguard/panel/internal/domain/service"
	"github.com/moguard/panel/internal/domain/subscription"
)

type fakeNodeRepository struct {
	nodes []*node.Node
}

func (f *fakeNodeRepository) Create(ctx context.Context, n *node.Node) (*node.Node, error) {
	return n, nil
}
func (f *fakeNodeRepository) Update(ctx context.Context, n *node.Node) error { return nil }
func (f *fakeNodeRepository) Get(ctx context.Context, id int64) (*node.Node, error) {
	for _, n := range f.nodes {
		if n.ID() == id {
			return n, nil
		}
	}
	return nil, nil
}
func (f *fakeNodeRepository) List(ctx context.Context) ([]*node.Node, error) { return f.nodes, nil }
func (f *fakeNodeRepository) ListAvailable(ctx context.Context) ([]*node.Node, error) {
	return f.nodes, nil
}
func (f *fakeNodeRepository) Delete(ctx context.Context, id int64) error { return nil }
func (f *fakeNodeRepository) UpdateAccess(ctx context.Context, id int64, token string, at time.Time) error {
	return nil
}

type fakeServiceRepository struct {
	services []*service.Service
}

func (f *fakeServiceRepository) Create(ctx context.Context, s *service.Service) (*service.Service, error) {
	return s, nil
}
func (f *fakeServiceRepository) Update(ctx context.Context, s *service.Service) error { return nil }
func (f *fakeServiceRepository) Get(ctx context.Context, id int64) (*service.Service, error) {
	return nil, nil
}
func (f *fakeServiceRepository) List(ctx context.Context) ([]*service.Service, error) {
	return f.services, nil
}
func (f *fakeServiceRepository) ListByIDs(ctx context.Context, ids []int64) ([]*service.Service, error) {
	want := map[int64]bool{}
	for _, id := range ids {
		want[id] = true
	}
	var out []*service.Service
	for _, s := range f.services {
		if want[s.ID()] {
			out = append(out, s)
		}
	}
	return out, nil
}
func (f *fakeServiceRepository) Delete(ctx context.Context, id int64) error { return nil }

func newTestNode(id int64, priority, offsetLink, batchSize int) *node.Node {
	return node.Reconstruct(
		id, "node", node.KindMarzban, "host", "user", "pass",
		"token", time.Now().UTC(),
		offsetLink, batchSize, priority, 1.0, "",
		"", "", true, true, false,
		time.Now().UTC(), time.Now().UTC(),
	)
}

func newTestOwner(id int64, username string, placeholders []admin.Placeholder, presentation admin.Presentation) *admin.Admin {
	now := time.Now().UTC()
	return admin.Reconstruct(
		id, username, "hash", admin.RoleSeller, "key", "secret",
		true, true, true,
		0, 0, 0, 0,
		1, 90,
		placeholders, presentation, admin.NotifySinks{}, admin.TOTPState{},
		false, now, now,
	)
}

func TestGenerateRewritesVlessLinkWithConfigRename(t *testing.T) {
	owner := newTestOwner(1, "owner1", nil, admin.Presentation{
		AccessTag:      "guards",
		UpdateInterval: 1,
		ConfigRename:   "{server_id} {server_emoji} {username}",
	})

	sub, err := subscription.New("alice", owner.ID(), "ak-alice", "sk-alice", 0, 0, 0, "", []int64{1})
	require.NoError(t, err)

	n := newTestNode(7, 10, 0, 10)
	svc := service.Reconstruct(1, "svc", []int64{7})

	links := cache.NewLinksCache()
	links.Set(n.ID(), []string{"vless://old-uuid@example.com:443?type=ws#%F0%9F%87%A8%F0%9F%87%A6%20original"})

	gen := New(&fakeNodeRepository{nodes: []*node.Node{n}}, &fakeServiceRepository{services: []*service.Service{svc}}, links)

	out, err := gen.Generate(context.Background(), sub, owner, time.Now().UTC())
	require.NoError(t, err)
	require.Len(t, out, 1)

	assert.True(t, strings.HasPrefix(out[0], "vless://"))
	assert.Contains(t, out[0], "@example.com:443")
	assert.NotContains(t, out[0], "old-uuid")
	assert.Contains(t, out[0], "07")
	assert.Contains(t, out[0], "alice")
}

func TestGenerateReturnsPlaceholdersOnlyWhenInactive(t *testing.T) {
	owner := newTestOwner(2, "owner2", []admin.Placeholder{
		{Category: admin.PlaceholderInfo, Remark: "info {username}"},
		{Category: admin.PlaceholderDisabled, Remark: "disabled {username}"},
		{Category: admin.PlaceholderLimited, Remark: "limited {username}"},
	}, admin.Presentation{AccessTag: "guards", UpdateInterval: 1})

	now := time.Now().UTC()
	sub := subscription.Reconstruct(
		1, "bob", owner.ID(), "ak-bob", "sk-bob",
		false, true, false, false, false, false, false, true,
		0, 0, 0, 0, "",
		0, time.Time{},
		now, time.Time{}, time.Time{}, time.Time{}, time.Time{}, time.Time{}, time.Time{},
		"", "", "",
		nil,
	)

	links := cache.NewLinksCache()
	gen := New(&fakeNodeRepository{}, &fakeServiceRepository{}, links)

	out, err := gen.Generate(context.Background(), sub, owner, time.Now().UTC())
	require.NoError(t, err)
	require.Len(t, out, 2)

	joined := strings.Join(out, " ")
	assert.Contains(t, joined, "disabled%20bob")
	assert.NotContains(t, joined, "limited")
}

func TestGeneratePlaceholdersSelectsLimitedOverDisabled(t *testing.T) {
	owner := newTestOwner(3, "owner3", []admin.Placeholder{
		{Category: admin.PlaceholderLimited, Remark: "limited {username}"},
		{Category: admin.PlaceholderDisabled, Remark: "disabled {username}"},
	}, admin.Presentation{AccessTag: "guards", UpdateInterval: 1})

	sub, err := subscription.New("carol", owner.ID(), "ak-carol", "sk-carol", 1000, 0, 0, "", nil)
	require.NoError(t, err)
	sub.AddUsage(1001, time.Now().UTC())
	sub.SetEnabled(false, time.Now().UTC())

	vars := buildFormat(sub, "owner3", time.Now().UTC())
	out := generatePlaceholders(sub, owner, vars, time.Now().UTC())

	require.Len(t, out, 1)
	assert.Contains(t, out[0], "limited%20carol")
}

func TestInterleaveRespectsBatchSizeAndMaxLinks(t *testing.T) {
	nodeA := newTestNode(1, 10, 0, 2)
	nodeB := newTestNode(2, 5, 0, 2)

	nodeLinks := map[int64][]string{
		1: {"a1", "a2", "a3"},
		2: {"b1", "b2"},
	}

	out := interleave([]*node.Node{nodeA, nodeB}, nodeLinks, 3)
	assert.Equal(t, []string{"a1", "a2", "b1"}, out)
}
