package scheduler

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/moguard/panel/internal/domain/node"
)

type fakeNodeRepository struct {
	nodes       []*node.Node
	accessCalls map[int64]string
}

func (f *fakeNodeRepository) Create(ctx context.Context, n *node.Node) (*node.Node, error) { return n, nil }
func (f *fakeNodeRepository) Update(ctx context.Context, n *node.Node) error               { return nil }
func (f *fakeNodeRepository) Get(ctx context.Context, id int64) (*node.Node, error)        { return nil, nil }
func (f *fakeNodeRepository) List(ctx context.Context) ([]*node.Node, error)               { return f.nodes, nil }
func (f *fakeNodeRepository) ListAvailable(ctx context.Context) ([]*node.Node, error)      { return f.nodes, nil }
func (f *fakeNodeRepository) Delete(ctx context.Context, id int64) error                   { return nil }
func (f *fakeNodeRepository) UpdateAccess(ctx context.Context, id int64, token string, at time.Time) error {
	if f.accessCalls == nil {
		f.accessCalls = make(map[int64]string)
	}
	f.accessCalls[id] = token
	return nil
}

func newTestNode(id int64, kind node.Kind, accessAge time.Duration) *node.Node {
	now := time.Now().UTC()
	return node.Reconstruct(
		id, "n", kind, "https://example.invalid", "admin", "pw",
		"stale-token", now.Add(-accessAge),
		0, 0, 0, 1.0, "",
		"", "", false, true, false,
		now, now,
	)
}

func TestRefreshNodeAccessSkipsFreshNodes(t *testing.T) {
	repo := &fakeNodeRepository{nodes: []*node.Node{newTestNode(1, node.KindMarzban, time.Minute)}}
	s := &Scheduler{nodes: repo}

	err := s.refreshNodeAccess(context.Background())
	require.NoError(t, err)
	assert.Empty(t, repo.accessCalls)
}

func TestRefreshNodeAccessUnknownKindSkipsWithoutAborting(t *testing.T) {
	repo := &fakeNodeRepository{nodes: []*node.Node{
		newTestNode(1, node.Kind("unsupported"), 9*time.Hour),
		newTestNode(2, node.Kind("unsupported"), 9*time.Hour),
	}}
	s := &Scheduler{nodes: repo}

	err := s.refreshNodeAccess(context.Background())
	require.NoError(t, err)
	assert.Empty(t, repo.accessCalls)
}

func TestLogHealthNeverErrors(t *testing.T) {
	s := &Scheduler{}
	require.NoError(t, s.logHealth(context.Background()))
}
