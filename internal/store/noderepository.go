package store

import (
	"context"
	"fmt"
	"time"

	"gorm.io/gorm"

	"github.com/moguard/panel/internal/domain/node"
)

// NodeRepository implements node.Repository over gorm.
type NodeRepository struct {
	db *gorm.DB
}

// NewNodeRepository constructs a node.Repository backed by db.
func NewNodeRepository(db *gorm.DB) node.Repository {
	return &NodeRepository{db: db}
}

func nodeToModel(n *node.Node) *nodeModel {
	access, accessAt := n.Access()
	return &nodeModel{
		ID: n.ID(), Remark: n.Remark(), Kind: string(n.Kind()), Host: n.Host(),
		Username: n.Username(), Password: n.Password(),
		Access: access, AccessUpdatedAt: accessAt,
		OffsetLink: n.OffsetLink(), BatchSize: n.BatchSize(), Priority: n.Priority(),
		UsageRate: n.UsageRate(), RateDisplay: n.RateDisplay(),
		ScriptURL: n.ScriptURL(), ScriptSecret: n.ScriptSecret(),
		ShowConfigs: n.ShowConfigs(), Enabled: n.Availabled() && !n.Removed(), Removed: n.Removed(),
		CreatedAt: n.CreatedAt(),
	}
}

func modelToNode(m *nodeModel) *node.Node {
	return node.Reconstruct(
		m.ID, m.Remark, node.Kind(m.Kind), m.Host, m.Username, m.Password,
		m.Access, m.AccessUpdatedAt,
		m.OffsetLink, m.BatchSize, m.Priority, m.UsageRate, m.RateDisplay,
		m.ScriptURL, m.ScriptSecret, m.ShowConfigs, m.Enabled, m.Removed,
		m.CreatedAt, m.UpdatedAt,
	)
}

func (r *NodeRepository) Create(ctx context.Context, n *node.Node) (*node.Node, error) {
	m := nodeToModel(n)
	if err := r.db.WithContext(ctx).Create(m).Error; err != nil {
		return nil, fmt.Errorf("store: create node: %w", err)
	}
	return modelToNode(m), nil
}

func (r *NodeRepository) Update(ctx context.Context, n *node.Node) error {
	m := nodeToModel(n)
	if err := r.db.WithContext(ctx).Model(&nodeModel{}).Where("id = ?", m.ID).Updates(m).Error; err != nil {
		return fmt.Errorf("store: update node %d: %w", m.ID, err)
	}
	return nil
}

func (r *NodeRepository) Get(ctx context.Context, id int64) (*node.Node, error) {
	var m nodeModel
	if err := r.db.WithContext(ctx).First(&m, id).Error; err != nil {
		return nil, fmt.Errorf("store: get node %d: %w", id, err)
	}
	return modelToNode(&m), nil
}

func (r *NodeRepository) List(ctx context.Context) ([]*node.Node, error) {
	var ms []*nodeModel
	if err := r.db.WithContext(ctx).Order("priority desc, id asc").Find(&ms).Error; err != nil {
		return nil, fmt.Errorf("store: list nodes: %w", err)
	}
	out := make([]*node.Node, 0, len(ms))
	for _, m := range ms {
		out = append(out, modelToNode(m))
	}
	return out, nil
}

func (r *NodeRepository) ListAvailable(ctx context.Context) ([]*node.Node, error) {
	var ms []*nodeModel
	if err := r.db.WithContext(ctx).Where("enabled = ? AND removed = ?", true, false).
		Order("priority desc, id asc").Find(&ms).Error; err != nil {
		return nil, fmt.Errorf("store: list available nodes: %w", err)
	}
	out := make([]*node.Node, 0, len(ms))
	for _, m := range ms {
		out = append(out, modelToNode(m))
	}
	return out, nil
}

func (r *NodeRepository) Delete(ctx context.Context, id int64) error {
	if err := r.db.WithContext(ctx).Model(&nodeModel{}).Where("id = ?", id).
		Updates(map[string]any{"removed": true}).Error; err != nil {
		return fmt.Errorf("store: remove node %d: %w", id, err)
	}
	return nil
}

func (r *NodeRepository) UpdateAccess(ctx context.Context, id int64, token string, at time.Time) error {
	if err := r.db.WithContext(ctx).Model(&nodeModel{}).Where("id = ?", id).
		Updates(map[string]any{"access": token, "access_updated_at": at}).Error; err != nil {
		return fmt.Errorf("store: update node %d access: %w", id, err)
	}
	return nil
}
