package reconciler

import (
	"context"
	"reflect"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/moguard/panel/internal/credential"
	"github.com/moguard/panel/internal/domain/node"
	"github.com/moguard/panel/internal/domain/service"
	"github.com/moguard/panel/internal/domain/subscription"
	"github.com/moguard/panel/internal/nodeclient"
	"github.com/moguard/panel/internal/notify"
	"github.com/moguard/panel/internal/shared/logger"
)

// guardUsername is the node-side user every node carries regardless of
// subscription state; garbage collection never deletes it (§4.F GC step).
const guardUsername = "guard"

// backgroundSync runs the per-(sub,node) decision table plus garbage
// collection over one tick's fetch results (§4.F steps 2-6). It is launched
// fire-and-forget from Tick and single-flights against overlapping ticks via
// syncing.TryLock.
func (r *Reconciler) backgroundSync(ctx context.Context, fetches []nodeFetch, subs []*subscription.Subscription, servicesByID map[int64]*service.Service) {
	if !r.syncing.TryLock() {
		logger.Get().Warn("reconciler: sync already running, skipping background sync")
		if r.notifier != nil {
			r.notifier.Notify(notify.Event{Level: notify.LevelWarning, Title: "LockedTask", Body: "Subscriptions Sync"})
		}
		return
	}
	defer r.syncing.Unlock()

	defer func() {
		if rec := recover(); rec != nil {
			logger.Get().Error("reconciler: background sync panic", zap.Any("recover", rec))
		}
	}()

	now := time.Now().UTC()
	live := make([]*subscription.Subscription, 0, len(subs))
	liveServerKeys := make(map[string]bool, len(subs))
	for _, s := range subs {
		if s.ShouldBeRemove(now) {
			continue
		}
		live = append(live, s)
		liveServerKeys[s.ServerKey()] = true
	}

	sem := make(chan struct{}, backgroundSyncConcurrency)
	var wg sync.WaitGroup
	run := func(fn func()) {
		wg.Add(1)
		sem <- struct{}{}
		go func() {
			defer wg.Done()
			defer func() { <-sem }()
			fn()
		}()
	}

	for _, f := range fetches {
		if f.configs == nil {
			continue
		}
		f := f
		for _, sub := range live {
			sub := sub
			nodeIDs := subscriptionNodeIDs(sub.ServiceIDs(), servicesByID)
			inSet := nodeIDs[f.n.ID()]
			run(func() { r.syncSubOnNode(ctx, f, sub, inSet, now) })
		}
	}

	for _, f := range fetches {
		if f.configs == nil {
			continue
		}
		f := f
		for username := range f.users {
			if username == guardUsername || liveServerKeys[username] {
				continue
			}
			username := username
			run(func() { r.deleteUser(ctx, f, username) })
		}
	}

	wg.Wait()
}

// syncSubOnNode applies the §4.F decision table for one (subscription, node)
// pair: create/no-op when the node has no matching user yet, deactivate when
// the node or the subscription's selection no longer covers it, otherwise
// run config sync followed by activation parity.
func (r *Reconciler) syncSubOnNode(ctx context.Context, f nodeFetch, sub *subscription.Subscription, inSet bool, now time.Time) {
	client, err := r.newClient(f.n.Kind(), f.n.Host())
	if err != nil {
		logger.Get().Error("reconciler: build client for sync", zap.Int64("node_id", f.n.ID()), zap.Error(err))
		return
	}

	subActive := sub.IsActive(now)
	user, present := f.users[sub.ServerKey()]

	if !present {
		if subActive && inSet {
			r.createUser(ctx, client, f, sub)
		}
		return
	}

	if !f.n.Availabled() {
		if user.IsActive {
			r.deactivateUser(ctx, client, f, sub)
		}
		return
	}

	if !inSet {
		if user.IsActive {
			r.deactivateUser(ctx, client, f, sub)
		}
		return
	}

	r.syncConfig(ctx, client, f, sub, user)

	switch {
	case subActive && !user.IsActive:
		r.activateUser(ctx, client, f, sub)
	case !subActive && user.IsActive:
		r.deactivateUser(ctx, client, f, sub)
	}
}

func (r *Reconciler) createUser(ctx context.Context, client nodeclient.Client, f nodeFetch, sub *subscription.Subscription) {
	desired := nodeclient.DesiredUser{
		Username:   sub.ServerKey(),
		DataLimit:  0,
		ServiceIDs: desiredServiceIDs(f.configs),
		Key:        sub.AccessKey(),
	}
	if f.n.Kind() == node.KindMarzban {
		desired.Proxies, desired.Inbounds = desiredMarzbanConfig(f.configs, sub.AccessKey())
	}

	cctx, cancel := context.WithTimeout(ctx, nodeclient.RequestTimeout)
	defer cancel()
	if _, err := client.CreateUser(cctx, desired, f.token); err != nil {
		logger.Get().Error("reconciler: create user failed",
			zap.Int64("node_id", f.n.ID()), zap.String("server_key", sub.ServerKey()), zap.Error(err))
	}
}

// syncConfig recomputes desired proxies/inbounds or service_ids and PUTs
// only when they differ from the node's current view (§4.F config sync).
func (r *Reconciler) syncConfig(ctx context.Context, client nodeclient.Client, f nodeFetch, sub *subscription.Subscription, user nodeclient.UserView) {
	desired := nodeclient.DesiredUser{
		Username:   sub.ServerKey(),
		DataLimit:  0,
		ServiceIDs: desiredServiceIDs(f.configs),
	}

	var changed bool
	if f.n.Kind() == node.KindMarzban {
		proxies, inbounds := syncMarzbanConfig(f.configs, sub.AccessKey(), sub.Changed(), user.Proxies)
		if !reflect.DeepEqual(proxies, user.Proxies) || !reflect.DeepEqual(inbounds, user.Inbounds) {
			desired.Proxies, desired.Inbounds = proxies, inbounds
			changed = true
		}
	} else {
		if !reflect.DeepEqual(desired.ServiceIDs, user.ServiceIDs) {
			changed = true
		}
	}
	if !changed {
		return
	}

	cctx, cancel := context.WithTimeout(ctx, nodeclient.RequestTimeout)
	defer cancel()
	if _, err := client.UpdateUser(cctx, sub.ServerKey(), desired, f.token); err != nil {
		logger.Get().Error("reconciler: sync config failed",
			zap.Int64("node_id", f.n.ID()), zap.String("server_key", sub.ServerKey()), zap.Error(err))
	}
}

func (r *Reconciler) activateUser(ctx context.Context, client nodeclient.Client, f nodeFetch, sub *subscription.Subscription) {
	cctx, cancel := context.WithTimeout(ctx, nodeclient.RequestTimeout)
	defer cancel()
	if err := client.ActivateUser(cctx, sub.ServerKey(), f.token); err != nil {
		logger.Get().Error("reconciler: activate user failed",
			zap.Int64("node_id", f.n.ID()), zap.String("server_key", sub.ServerKey()), zap.Error(err))
	}
}

func (r *Reconciler) deactivateUser(ctx context.Context, client nodeclient.Client, f nodeFetch, sub *subscription.Subscription) {
	cctx, cancel := context.WithTimeout(ctx, nodeclient.RequestTimeout)
	defer cancel()
	if err := client.DeactivateUser(cctx, sub.ServerKey(), f.token); err != nil {
		logger.Get().Error("reconciler: deactivate user failed",
			zap.Int64("node_id", f.n.ID()), zap.String("server_key", sub.ServerKey()), zap.Error(err))
	}
}

func (r *Reconciler) deleteUser(ctx context.Context, f nodeFetch, username string) {
	client, err := r.newClient(f.n.Kind(), f.n.Host())
	if err != nil {
		logger.Get().Error("reconciler: build client for gc", zap.Int64("node_id", f.n.ID()), zap.Error(err))
		return
	}
	cctx, cancel := context.WithTimeout(ctx, nodeclient.RequestTimeout)
	defer cancel()
	if err := client.DeleteUser(cctx, username, f.token); err != nil {
		logger.Get().Error("reconciler: gc delete user failed",
			zap.Int64("node_id", f.n.ID()), zap.String("username", username), zap.Error(err))
		return
	}
	logger.Get().Info("reconciler: removed unknown user", zap.Int64("node_id", f.n.ID()), zap.String("username", username))
}

func desiredServiceIDs(configs []nodeclient.InboundOrService) []int64 {
	ids := make([]int64, 0, len(configs))
	for _, c := range configs {
		ids = append(ids, c.ID)
	}
	return ids
}

// desiredMarzbanConfig derives a subscription's per-protocol proxy
// credentials and inbound tag lists from every config present on the node,
// always freshly derived from access_key (used on create).
func desiredMarzbanConfig(configs []nodeclient.InboundOrService, accessKey string) (map[string]string, map[string][]string) {
	proxies := map[string]string{}
	inbounds := map[string][]string{}
	for _, c := range configs {
		if _, ok := proxies[c.Protocol]; !ok {
			proxies[c.Protocol] = protocolCredential(accessKey, c.Protocol)
		}
		inbounds[c.Protocol] = append(inbounds[c.Protocol], c.Tag)
	}
	return proxies, inbounds
}

// syncMarzbanConfig is desiredMarzbanConfig's update-time counterpart: a
// protocol already present on the node keeps its current credential unless
// sub.changed, matching the source's "regenerate only on rotation" rule.
func syncMarzbanConfig(configs []nodeclient.InboundOrService, accessKey string, changed bool, current map[string]string) (map[string]string, map[string][]string) {
	proxies := map[string]string{}
	inbounds := map[string][]string{}
	for _, c := range configs {
		if _, ok := proxies[c.Protocol]; !ok {
			if cur, present := current[c.Protocol]; present && !changed {
				proxies[c.Protocol] = cur
			} else {
				proxies[c.Protocol] = protocolCredential(accessKey, c.Protocol)
			}
		}
		inbounds[c.Protocol] = append(inbounds[c.Protocol], c.Tag)
	}
	return proxies, inbounds
}

func protocolCredential(accessKey, protocol string) string {
	switch protocol {
	case "trojan", "shadowsocks":
		return credential.Password(accessKey, protocol)
	default:
		return credential.UUID(accessKey, protocol)
	}
}
