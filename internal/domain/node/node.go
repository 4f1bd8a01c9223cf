// Package node models an upstream proxy host and the sync tuning the
// reconciler needs to project subscriptions onto it.
package node

import (
	"context"
	"fmt"
	"sync"
	"time"

	apperrors "github.com/moguard/panel/internal/shared/errors"
)

// Kind is the node's REST dialect. The reconciler and node client stay
// dialect-agnostic above this tag; dialect-specific payload construction
// lives entirely behind nodeclient.Client.
type Kind string

const (
	KindMarzban    Kind = "marzban"
	KindMarzneshin Kind = "marzneshin"
	KindRustneshin Kind = "rustneshin"
)

func (k Kind) Valid() bool {
	switch k {
	case KindMarzban, KindMarzneshin, KindRustneshin:
		return true
	default:
		return false
	}
}

// Node is the Node aggregate (§3). Mutable fields are guarded by mu so
// concurrent reconciler goroutines can safely read Availabled()/EffectiveAddr()
// while a background access-token refresh writes Access/AccessUpdatedAt.
type Node struct {
	mu sync.RWMutex

	id       int64
	remark   string
	kind     Kind
	host     string
	username string
	password string

	access          string
	accessUpdatedAt time.Time

	offsetLink  int
	batchSize   int
	priority    int
	usageRate   float64
	rateDisplay string

	scriptURL    string
	scriptSecret string

	showConfigs bool
	enabled     bool
	removed     bool

	createdAt time.Time
	updatedAt time.Time
}

// New validates and constructs a Node for initial creation.
func New(remark string, kind Kind, host, username, password string) (*Node, error) {
	if remark == "" {
		return nil, apperrors.NewValidationError("remark is required")
	}
	if !kind.Valid() {
		return nil, apperrors.NewValidationError("invalid node category", string(kind))
	}
	if host == "" {
		return nil, apperrors.NewValidationError("host is required")
	}
	now := time.Now().UTC()
	return &Node{
		kind:        kind,
		remark:      remark,
		host:        host,
		username:    username,
		password:    password,
		batchSize:   1,
		usageRate:   1.0,
		showConfigs: true,
		enabled:     true,
		createdAt:   now,
		updatedAt:   now,
	}, nil
}

// Reconstruct rebuilds a Node from persisted state without re-validating
// invariants that the store already enforced.
func Reconstruct(
	id int64, remark string, kind Kind, host, username, password string,
	access string, accessUpdatedAt time.Time,
	offsetLink, batchSize, priority int, usageRate float64, rateDisplay string,
	scriptURL, scriptSecret string, showConfigs, enabled, removed bool,
	createdAt, updatedAt time.Time,
) *Node {
	return &Node{
		id: id, remark: remark, kind: kind, host: host, username: username, password: password,
		access: access, accessUpdatedAt: accessUpdatedAt,
		offsetLink: offsetLink, batchSize: batchSize, priority: priority,
		usageRate: usageRate, rateDisplay: rateDisplay,
		scriptURL: scriptURL, scriptSecret: scriptSecret,
		showConfigs: showConfigs, enabled: enabled, removed: removed,
		createdAt: createdAt, updatedAt: updatedAt,
	}
}

func (n *Node) ID() int64        { return n.id }
func (n *Node) Remark() string   { return n.remark }
func (n *Node) Kind() Kind       { return n.kind }
func (n *Node) Host() string     { return n.host }
func (n *Node) Username() string { return n.username }
func (n *Node) Password() string { return n.password }

func (n *Node) OffsetLink() int      { return n.offsetLink }
func (n *Node) BatchSize() int       { return n.batchSize }
func (n *Node) Priority() int        { return n.priority }
func (n *Node) UsageRate() float64   { return n.usageRate }
func (n *Node) RateDisplay() string  { return n.rateDisplay }
func (n *Node) ScriptURL() string    { return n.scriptURL }
func (n *Node) ScriptSecret() string { return n.scriptSecret }
func (n *Node) IsScripted() bool     { return n.scriptURL != "" }
func (n *Node) ShowConfigs() bool    { return n.showConfigs }
func (n *Node) Removed() bool        { return n.removed }
func (n *Node) CreatedAt() time.Time { return n.createdAt }

// Availabled reports whether the node should be targeted by the reconciler
// and exposed through the link generator.
func (n *Node) Availabled() bool {
	return n.enabled && !n.removed
}

// Access returns the cached bearer token and its last-refresh time.
func (n *Node) Access() (string, time.Time) {
	n.mu.RLock()
	defer n.mu.RUnlock()
	return n.access, n.accessUpdatedAt
}

// NeedsAccessRefresh reports whether the cached token is absent or older
// than 8h, per §3's "refresh when null or older than 8 h".
func (n *Node) NeedsAccessRefresh(now time.Time) bool {
	n.mu.RLock()
	defer n.mu.RUnlock()
	if n.access == "" {
		return true
	}
	return now.Sub(n.accessUpdatedAt) >= 8*time.Hour
}

// SetAccess write-through updates the cached bearer token.
func (n *Node) SetAccess(token string, at time.Time) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.access = token
	n.accessUpdatedAt = at
}

// FormattedID is server_id zero-padded to two digits, used by the link
// generator's config_rename template (§4.I).
func (n *Node) FormattedID() string {
	return fmt.Sprintf("%02d", n.id)
}

// Update applies a node's editable fields — the PUT /api/nodes/{id} surface.
func (n *Node) Update(
	remark, host, username, password string,
	offsetLink, batchSize, priority int, usageRate float64, rateDisplay string,
	scriptURL, scriptSecret string, showConfigs, enabled bool,
) {
	n.remark, n.host, n.username, n.password = remark, host, username, password
	n.offsetLink, n.batchSize, n.priority = offsetLink, batchSize, priority
	n.usageRate, n.rateDisplay = usageRate, rateDisplay
	n.scriptURL, n.scriptSecret = scriptURL, scriptSecret
	n.showConfigs, n.enabled = showConfigs, enabled
	n.updatedAt = time.Now().UTC()
}

// MarkRemoved soft-deletes the node, excluding it from every future
// reconciler/cache tick via Availabled().
func (n *Node) MarkRemoved() {
	n.removed = true
	n.updatedAt = time.Now().UTC()
}

// Repository persists and retrieves Node aggregates.
type Repository interface {
	Create(ctx context.Context, n *Node) (*Node, error)
	Update(ctx context.Context, n *Node) error
	Get(ctx context.Context, id int64) (*Node, error)
	List(ctx context.Context) ([]*Node, error)
	ListAvailable(ctx context.Context) ([]*Node, error)
	Delete(ctx context.Context, id int64) error
	UpdateAccess(ctx context.Context, id int64, token string, at time.Time) error
}
