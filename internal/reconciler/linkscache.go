package reconciler

import (
	"context"
	"fmt"
	"reflect"

	"go.uber.org/zap"

	"github.com/moguard/panel/internal/cache"
	"github.com/moguard/panel/internal/domain/node"
	"github.com/moguard/panel/internal/nodeclient"
	"github.com/moguard/panel/internal/shared/logger"
)

// RefreshLinks runs the per-minute Links Cache refresh (§4.D): maintain a
// synthetic "guard" user with every config on the node enabled, then harvest
// its prototype link list for the link generator to clone per subscription.
func (r *Reconciler) RefreshLinks(ctx context.Context) error {
	nodes, err := r.nodes.ListAvailable(ctx)
	if err != nil {
		return err
	}
	for _, n := range nodes {
		r.refreshNodeLinks(ctx, n)
	}
	return nil
}

func (r *Reconciler) refreshNodeLinks(ctx context.Context, n *node.Node) {
	client, err := r.newClient(n.Kind(), n.Host())
	if err != nil {
		r.fallbackLinks(ctx, n.ID())
		return
	}

	token, err := r.token(ctx, n, client)
	if err != nil {
		r.fallbackLinks(ctx, n.ID())
		return
	}

	configs, ok := r.configs.Get(n.ID())
	if !ok || len(configs) == 0 {
		r.fallbackLinks(ctx, n.ID())
		return
	}

	// GetUser collapses "not found" and every other failure into the same
	// ErrUpstreamFailed sentinel, so a fetch error is treated as "missing"
	// per §4.D step 3 and the guard user is (re)created.
	cctx, cancel := context.WithTimeout(ctx, nodeclient.RequestTimeout)
	user, err := client.GetUser(cctx, cache.GuardUsername, token)
	cancel()

	if err != nil || user == nil {
		user, err = r.createGuardUser(ctx, client, n, configs, token)
		if err != nil {
			logger.Get().Error("reconciler: create guard user failed", zap.Int64("node_id", n.ID()), zap.Error(err))
			r.fallbackLinks(ctx, n.ID())
			return
		}
	} else {
		r.syncGuardUser(ctx, client, n, configs, token, *user)
	}

	cctx, cancel = context.WithTimeout(ctx, nodeclient.RequestTimeout)
	links, err := client.SubscriptionLinks(cctx, user, token)
	cancel()
	if err != nil {
		logger.Get().Warn("reconciler: fetch guard links failed", zap.Int64("node_id", n.ID()), zap.Error(err))
		r.fallbackLinks(ctx, n.ID())
		return
	}
	r.links.Set(n.ID(), links)
	if r.redis != nil {
		r.redis.PublishLinks(ctx, n.ID(), links)
	}
}

// fallbackLinks tries a peer replica's last-published guard link list via
// RedisShare before giving up to an explicit empty set.
func (r *Reconciler) fallbackLinks(ctx context.Context, nodeID int64) {
	if r.redis != nil {
		if links, ok := r.redis.FetchLinks(ctx, nodeID); ok {
			r.links.Set(nodeID, links)
			return
		}
	}
	r.links.Set(nodeID, nil)
}

func (r *Reconciler) createGuardUser(ctx context.Context, client nodeclient.Client, n *node.Node, configs []nodeclient.InboundOrService, token string) (*nodeclient.UserView, error) {
	desired := nodeclient.DesiredUser{
		Username:   cache.GuardUsername,
		DataLimit:  0,
		ServiceIDs: desiredServiceIDs(configs),
		Key:        guardAccessKey(n.ID()),
	}
	if n.Kind() == node.KindMarzban {
		desired.Proxies, desired.Inbounds = desiredMarzbanConfig(configs, desired.Key)
	}
	cctx, cancel := context.WithTimeout(ctx, nodeclient.RequestTimeout)
	defer cancel()
	return client.CreateUser(cctx, desired, token)
}

func (r *Reconciler) syncGuardUser(ctx context.Context, client nodeclient.Client, n *node.Node, configs []nodeclient.InboundOrService, token string, user nodeclient.UserView) {
	desired := nodeclient.DesiredUser{
		Username:   cache.GuardUsername,
		DataLimit:  0,
		ServiceIDs: desiredServiceIDs(configs),
	}
	var changed bool
	if n.Kind() == node.KindMarzban {
		proxies, inbounds := desiredMarzbanConfig(configs, guardAccessKey(n.ID()))
		if !reflect.DeepEqual(proxies, user.Proxies) || !reflect.DeepEqual(inbounds, user.Inbounds) {
			desired.Proxies, desired.Inbounds = proxies, inbounds
			changed = true
		}
	} else if !reflect.DeepEqual(desired.ServiceIDs, user.ServiceIDs) {
		changed = true
	}
	if !changed {
		return
	}
	cctx, cancel := context.WithTimeout(ctx, nodeclient.RequestTimeout)
	defer cancel()
	if _, err := client.UpdateUser(cctx, cache.GuardUsername, desired, token); err != nil {
		logger.Get().Error("reconciler: sync guard user failed", zap.Int64("node_id", n.ID()), zap.Error(err))
	}
}

// guardAccessKey derives a stable per-node access_key for the guard user so
// its credentials are deterministic across refreshes without persisting a
// row for it.
func guardAccessKey(nodeID int64) string {
	return fmt.Sprintf("guard-node-%d", nodeID)
}
