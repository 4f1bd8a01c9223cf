// Package usageengine turns a reconciler tick's raw per-node user inventory
// into SubscriptionUsage rows, refreshes each subscription's cached
// total_usage/online_at, and rolls unlogged usage into hourly log rows
// (SPEC_FULL.md §4.G).
package usageengine

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/moguard/panel/internal/domain/admin"
	"github.com/moguard/panel/internal/domain/subscription"
	"github.com/moguard/panel/internal/nodeclient"
	"github.com/moguard/panel/internal/shared/logger"
)

// NodeSnapshot is one successfully-fetched node's user inventory for a tick,
// as handed over by the reconciler (nodes whose fetch failed are excluded
// before reaching the engine).
type NodeSnapshot struct {
	NodeID    int64
	UsageRate float64
	Users     map[string]nodeclient.UserView
}

// Engine owns usage ingestion and the hourly log rollup.
type Engine struct {
	usage    subscription.UsageRepository
	subs     subscription.Repository
	admins   admin.Repository
	reporter *Reporter
}

// New constructs an Engine. reporter may be nil to disable upstream reporting.
func New(usage subscription.UsageRepository, subs subscription.Repository, admins admin.Repository, reporter *Reporter) *Engine {
	return &Engine{usage: usage, subs: subs, admins: admins, reporter: reporter}
}

// Ingest runs one tick's worth of usage accounting (§4.G, first paragraph):
// for every subscription present on a fetched node, apply the delta against
// its existing SubscriptionUsage row and refresh the subscription's cached
// total_usage/online_at.
func (e *Engine) Ingest(ctx context.Context, snapshots []NodeSnapshot, subs []*subscription.Subscription) error {
	now := time.Now().UTC()
	bucket := now.Truncate(time.Hour)

	byServerKey := make(map[string]*subscription.Subscription, len(subs))
	for _, s := range subs {
		byServerKey[s.ServerKey()] = s
	}

	for _, snap := range snapshots {
		for serverKey, u := range snap.Users {
			sub, ok := byServerKey[serverKey]
			if !ok {
				continue
			}
			if err := e.applyNodeUsage(ctx, sub, snap.NodeID, snap.UsageRate, u, bucket, now); err != nil {
				logger.Get().Error("usageengine: apply node usage failed",
					zap.Int64("subscription_id", sub.ID()), zap.Int64("node_id", snap.NodeID), zap.Error(err))
			}
		}
	}
	return nil
}

// applyNodeUsage upserts the (sub,node,bucket) row and folds the row's
// adjusted-usage delta back into the subscription's cached total_usage
// (§4.A bulk_upsert_usages; the source's one-statement cache refresh is
// expressed here as a per-subscription AddUsage + Update, see DESIGN.md).
func (e *Engine) applyNodeUsage(ctx context.Context, sub *subscription.Subscription, nodeID int64, rate float64, u nodeclient.UserView, bucket, now time.Time) error {
	existing, err := e.usage.Get(ctx, sub.ID(), nodeID, bucket)
	if err != nil {
		return err
	}

	var row subscription.Usage
	var before int64
	if existing == nil {
		row = subscription.NewUsageRow(sub.ID(), nodeID, bucket, u.LifetimeUsedTraffic, rate, now)
	} else {
		before = existing.AdjustedUsage
		row = existing.ApplyDelta(u.LifetimeUsedTraffic, rate)
	}
	row.UpdatedAt = now

	if err := e.usage.BulkUpsert(ctx, []subscription.Usage{row}); err != nil {
		return err
	}

	delta := row.AdjustedUsage - before
	if delta > 0 {
		sub.ActivateExpire(now)
		sub.AddUsage(delta, now)
		if err := e.subs.Update(ctx, sub); err != nil {
			return err
		}
	}
	return nil
}

// LogHourly runs the per-minute hourly log rollup (§4.G "Hourly log task").
func (e *Engine) LogHourly(ctx context.Context) error {
	subs, err := e.subs.ListActive(ctx)
	if err != nil {
		return err
	}
	if len(subs) == 0 {
		return nil
	}

	admins, err := e.admins.List(ctx)
	if err != nil {
		return err
	}
	adminByID := make(map[int64]*admin.Admin, len(admins))
	for _, a := range admins {
		adminByID[a.ID()] = a
	}

	now := time.Now().UTC()
	bucket := now.Truncate(time.Hour)

	adminDeltas := make(map[int64]int64)
	reportDeltas := make(map[string]int64)

	for _, sub := range subs {
		total, err := e.usage.SumTotal(ctx, sub.ID())
		if err != nil {
			logger.Get().Error("usageengine: sum total usage failed", zap.Int64("subscription_id", sub.ID()), zap.Error(err))
			continue
		}
		allLogged, err := e.usage.SumLoggedTotal(ctx, sub.ID())
		if err != nil {
			logger.Get().Error("usageengine: sum logged usage failed", zap.Int64("subscription_id", sub.ID()), zap.Error(err))
			continue
		}

		unlogged := total - allLogged
		if unlogged <= 0 {
			continue
		}

		if err := e.appendLog(ctx, sub.ID(), bucket, unlogged); err != nil {
			logger.Get().Error("usageengine: append usage log failed", zap.Int64("subscription_id", sub.ID()), zap.Error(err))
			continue
		}

		adminDeltas[sub.OwnerID()] += unlogged
		reportDeltas[sub.Username()] += unlogged
	}

	for ownerID, delta := range adminDeltas {
		if delta <= 0 {
			continue
		}
		if err := e.admins.AdjustCounts(ctx, ownerID, 0, delta); err != nil {
			logger.Get().Error("usageengine: adjust owner current_usage failed", zap.Int64("owner_id", ownerID), zap.Error(err))
		}
	}

	if e.reporter != nil && len(reportDeltas) > 0 {
		e.reporter.Send(ctx, reportDeltas)
	}
	return nil
}

func (e *Engine) appendLog(ctx context.Context, subscriptionID int64, bucket time.Time, unlogged int64) error {
	existing, err := e.usage.GetLog(ctx, subscriptionID, bucket)
	if err != nil {
		return err
	}
	if existing != nil {
		existing.Usage += unlogged
		return e.usage.UpdateLog(ctx, *existing)
	}
	return e.usage.AppendLog(ctx, []subscription.UsageLog{{
		SubscriptionID: subscriptionID,
		HourBucket:     bucket,
		Usage:          unlogged,
	}})
}
