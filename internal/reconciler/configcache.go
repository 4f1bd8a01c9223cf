package reconciler

import (
	"context"

	"go.uber.org/zap"

	"github.com/moguard/panel/internal/domain/node"
	"github.com/moguard/panel/internal/nodeclient"
	"github.com/moguard/panel/internal/shared/logger"
)

// RefreshConfigs runs the per-minute Config Cache refresh (§4.C). It is a
// standalone job independent of Tick's own node fetch: the two run on the
// same cadence but are scheduled separately, matching the source's
// update_configs_task/track_subscriptions split.
func (r *Reconciler) RefreshConfigs(ctx context.Context) error {
	nodes, err := r.nodes.ListAvailable(ctx)
	if err != nil {
		return err
	}
	for _, n := range nodes {
		r.refreshNodeConfigs(ctx, n)
	}
	return nil
}

func (r *Reconciler) refreshNodeConfigs(ctx context.Context, n *node.Node) {
	client, err := r.newClient(n.Kind(), n.Host())
	if err != nil {
		r.fallbackConfigs(ctx, n.ID())
		return
	}

	token, err := r.token(ctx, n, client)
	if err != nil {
		r.fallbackConfigs(ctx, n.ID())
		return
	}

	cctx, cancel := context.WithTimeout(ctx, nodeclient.RequestTimeout)
	configs, err := client.GetInboundsOrServices(cctx, token)
	cancel()
	if err != nil || len(configs) == 0 {
		if err != nil {
			logger.Get().Warn("reconciler: config cache refresh failed", zap.Int64("node_id", n.ID()), zap.Error(err))
		}
		r.fallbackConfigs(ctx, n.ID())
		return
	}
	r.configs.Set(n.ID(), configs)
	if r.redis != nil {
		r.redis.PublishConfig(ctx, n.ID(), configs)
	}
}

// fallbackConfigs is called when a node's own fetch fails; it tries a peer
// replica's last-published catalog via RedisShare before giving up to an
// explicit empty set.
func (r *Reconciler) fallbackConfigs(ctx context.Context, nodeID int64) {
	if r.redis != nil {
		var configs []nodeclient.InboundOrService
		if r.redis.FetchConfig(ctx, nodeID, &configs) {
			r.configs.Set(nodeID, configs)
			return
		}
	}
	r.configs.Set(nodeID, nil)
}
