// Package reconciler runs the per-minute tick that fetches every node's user
// inventory, ingests usage, and drives create/update/activate/deactivate on
// upstream nodes to match subscription state (SPEC_FULL.md §4.F).
package reconciler

import (
	"context"
	"sync"
	"time"

	"github.com/sethvargo/go-retry"
	"go.uber.org/zap"

	"github.com/moguard/panel/internal/cache"
	"github.com/moguard/panel/internal/domain/node"
	"github.com/moguard/panel/internal/domain/service"
	"github.com/moguard/panel/internal/domain/subscription"
	"github.com/moguard/panel/internal/nodeclient"
	"github.com/moguard/panel/internal/notify"
	"github.com/moguard/panel/internal/shared/logger"
	"github.com/moguard/panel/internal/usageengine"
)

// backgroundSyncConcurrency is the semaphore size bounding the per-(sub,node)
// sync fan-out (§5 "chan struct{} semaphore of 10").
const backgroundSyncConcurrency = 10

// clientFactory builds a dialect client for a node; overridden in tests.
type clientFactory func(kind node.Kind, host string) (nodeclient.Client, error)

// Reconciler owns one tick of the sync loop. A single instance is shared by
// the scheduler job; Tick is not safe to call concurrently with itself
// (guarded externally by gocron's singleton mode), but backgroundSync's own
// TryLock guard additionally protects against an overrunning previous tick's
// sync stage still being in flight.
type Reconciler struct {
	nodes    node.Repository
	services service.Repository
	subs     subscription.Repository
	usage    *usageengine.Engine
	configs  *cache.ConfigCache
	links    *cache.LinksCache
	notifier *notify.Dispatcher
	redis    *cache.RedisShare
	newClient clientFactory

	syncing sync.Mutex
}

// New constructs a Reconciler.
func New(
	nodes node.Repository, services service.Repository, subs subscription.Repository,
	usage *usageengine.Engine, configs *cache.ConfigCache, links *cache.LinksCache,
	notifier *notify.Dispatcher,
) *Reconciler {
	return &Reconciler{
		nodes: nodes, services: services, subs: subs,
		usage: usage, configs: configs, links: links,
		notifier: notifier, newClient: nodeclient.New,
	}
}

// WithRedisShare attaches the cross-replica cache mirror. Optional: a
// Reconciler with no RedisShare falls back to "cache miss" instead of
// reading a peer replica's last-known-good catalog/links.
func (r *Reconciler) WithRedisShare(redis *cache.RedisShare) *Reconciler {
	r.redis = redis
	return r
}

// nodeFetch is one node's tick result: configs is nil when the fetch failed
// entirely (§4.F step 1 "mark node as (None, {})").
type nodeFetch struct {
	n       *node.Node
	configs []nodeclient.InboundOrService
	users   map[string]nodeclient.UserView
	token   string
}

// Tick runs one full reconciliation pass (§4.F steps 1-6).
func (r *Reconciler) Tick(ctx context.Context) error {
	nodes, err := r.nodes.ListAvailable(ctx)
	if err != nil {
		return err
	}

	fetches := r.fetchAll(ctx, nodes)

	subs, err := r.subs.ListActive(ctx)
	if err != nil {
		return err
	}

	if err := r.usage.Ingest(ctx, toUsageSnapshots(fetches), subs); err != nil {
		logger.Get().Error("reconciler: usage ingestion failed", zap.Error(err))
	}

	subs, err = r.subs.ListActive(ctx)
	if err != nil {
		return err
	}

	servicesByID, err := r.loadServices(ctx)
	if err != nil {
		return err
	}

	go r.backgroundSync(context.Background(), fetches, subs, servicesByID)
	return nil
}

// fetchAll fetches every node's configs+users in parallel (§4.F step 1).
func (r *Reconciler) fetchAll(ctx context.Context, nodes []*node.Node) []nodeFetch {
	out := make([]nodeFetch, len(nodes))
	var wg sync.WaitGroup
	for i, n := range nodes {
		wg.Add(1)
		go func(i int, n *node.Node) {
			defer wg.Done()
			out[i] = r.fetchNode(ctx, n)
		}(i, n)
	}
	wg.Wait()
	return out
}

func (r *Reconciler) fetchNode(ctx context.Context, n *node.Node) nodeFetch {
	client, err := r.newClient(n.Kind(), n.Host())
	if err != nil {
		logger.Get().Error("reconciler: build client", zap.Int64("node_id", n.ID()), zap.Error(err))
		return nodeFetch{n: n}
	}

	token, err := r.token(ctx, n, client)
	if err != nil {
		logger.Get().Error("reconciler: login failed", zap.Int64("node_id", n.ID()), zap.Error(err))
		r.notifyUnavailable(n)
		return nodeFetch{n: n}
	}

	configs, err := client.GetInboundsOrServices(ctx, token)
	if err != nil {
		logger.Get().Warn("reconciler: config fetch failed", zap.Int64("node_id", n.ID()), zap.Error(err))
		r.configs.Set(n.ID(), nil)
	} else {
		r.configs.Set(n.ID(), configs)
	}

	var users map[string]nodeclient.UserView
	if n.IsScripted() {
		users, err = r.fetchScripted(ctx, n, client)
	} else {
		users, err = r.fetchPaginated(ctx, n, client, token)
	}
	if err != nil {
		logger.Get().Error("reconciler: user inventory fetch failed", zap.Int64("node_id", n.ID()), zap.Error(err))
		r.notifyUnavailable(n)
		return nodeFetch{n: n}
	}

	return nodeFetch{n: n, configs: configs, users: users, token: token}
}

// token returns the node's cached bearer token, logging in on first use. The
// scheduled 8h access-token refresh job keeps it fresh between ticks.
func (r *Reconciler) token(ctx context.Context, n *node.Node, client nodeclient.Client) (string, error) {
	if tok, _ := n.Access(); tok != "" {
		return tok, nil
	}
	tok, err := client.Login(ctx, n.Username(), n.Password())
	if err != nil {
		return "", err
	}
	n.SetAccess(tok, time.Now().UTC())
	_ = r.nodes.UpdateAccess(ctx, n.ID(), tok, time.Now().UTC())
	return tok, nil
}

func (r *Reconciler) fetchScripted(ctx context.Context, n *node.Node, client nodeclient.Client) (map[string]nodeclient.UserView, error) {
	sctx, cancel := context.WithTimeout(ctx, nodeclient.ScriptedTimeout)
	defer cancel()
	views, err := client.FetchScriptedUsers(sctx, n.ScriptURL(), n.ScriptSecret())
	if err != nil {
		return nil, err
	}
	return indexUsers(views), nil
}

// fetchPaginated resolves the node's total user count (up to 2 attempts,
// 1.5s apart) then pages through list_users (up to 10 attempts per page),
// per §4.F step 1.
func (r *Reconciler) fetchPaginated(ctx context.Context, n *node.Node, client nodeclient.Client, token string) (map[string]nodeclient.UserView, error) {
	const pageSize = 100

	var total int
	countBackoff := retry.WithMaxRetries(1, retry.NewConstant(1500*time.Millisecond))
	err := retry.Do(ctx, countBackoff, func(ctx context.Context) error {
		cctx, cancel := context.WithTimeout(ctx, nodeclient.RequestTimeout)
		defer cancel()
		n, err := client.UsersCount(cctx, token)
		if err != nil {
			return retry.RetryableError(err)
		}
		total = n
		return nil
	})
	if err != nil {
		return nil, err
	}

	pages := (total + pageSize - 1) / pageSize
	if pages == 0 {
		return map[string]nodeclient.UserView{}, nil
	}

	users := make(map[string]nodeclient.UserView, total)
	var mu sync.Mutex
	pageBackoff := retry.WithMaxRetries(9, retry.NewExponential(50*time.Millisecond))

	var wg sync.WaitGroup
	errs := make([]error, pages)
	for p := 1; p <= pages; p++ {
		wg.Add(1)
		go func(p int) {
			defer wg.Done()
			err := retry.Do(ctx, pageBackoff, func(ctx context.Context) error {
				cctx, cancel := context.WithTimeout(ctx, nodeclient.RequestTimeout)
				defer cancel()
				views, err := client.ListUsers(cctx, token, p, pageSize, nil, nil)
				if err != nil {
					return retry.RetryableError(err)
				}
				mu.Lock()
				for _, v := range views {
					users[v.Username] = v
				}
				mu.Unlock()
				return nil
			})
			errs[p-1] = err
		}(p)
	}
	wg.Wait()

	for _, err := range errs {
		if err != nil {
			return nil, err
		}
	}
	return users, nil
}

func indexUsers(views []nodeclient.UserView) map[string]nodeclient.UserView {
	out := make(map[string]nodeclient.UserView, len(views))
	for _, v := range views {
		out[v.Username] = v
	}
	return out
}

func (r *Reconciler) notifyUnavailable(n *node.Node) {
	if r.notifier == nil {
		return
	}
	r.notifier.Notify(notify.Event{
		Level: notify.LevelError,
		Title: "UnavailableNode",
		Body:  n.Remark(),
	})
}

func (r *Reconciler) loadServices(ctx context.Context) (map[int64]*service.Service, error) {
	all, err := r.services.List(ctx)
	if err != nil {
		return nil, err
	}
	out := make(map[int64]*service.Service, len(all))
	for _, s := range all {
		out[s.ID()] = s
	}
	return out, nil
}

func toUsageSnapshots(fetches []nodeFetch) []usageengine.NodeSnapshot {
	out := make([]usageengine.NodeSnapshot, 0, len(fetches))
	for _, f := range fetches {
		if f.configs == nil {
			continue
		}
		out = append(out, usageengine.NodeSnapshot{NodeID: f.n.ID(), UsageRate: f.n.UsageRate(), Users: f.users})
	}
	return out
}

// subscriptionNodeIDs returns the set of node ids a subscription's selected
// services project onto.
func subscriptionNodeIDs(serviceIDs []int64, servicesByID map[int64]*service.Service) map[int64]bool {
	out := map[int64]bool{}
	for _, sid := range serviceIDs {
		s, ok := servicesByID[sid]
		if !ok {
			continue
		}
		for _, nid := range s.NodeIDs() {
			out[nid] = true
		}
	}
	return out
}
