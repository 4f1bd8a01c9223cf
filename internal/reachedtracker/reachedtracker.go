// Package reachedtracker runs the per-minute job that raises near-limit
// warning flags, transitions subscriptions into the reached state, consumes
// queued auto-renewals, reconnects subscriptions that fell back under their
// limits, and soft-deletes subscriptions past their auto-delete window
// (SPEC_FULL.md §4.H).
package reachedtracker

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/moguard/panel/internal/domain/admin"
	"github.com/moguard/panel/internal/domain/subscription"
	"github.com/moguard/panel/internal/notify"
	"github.com/moguard/panel/internal/shared/logger"
)

const (
	defaultExpireWarningDays   = 1
	defaultUsageWarningPercent = 90
)

// Tracker owns one tick of the reached/auto-renewal/auto-delete pipeline and
// the separate reseller debt gate.
type Tracker struct {
	subs     subscription.Repository
	renewals subscription.AutoRenewalRepository
	admins   admin.Repository
	notifier *notify.Dispatcher
}

// New constructs a Tracker.
func New(subs subscription.Repository, renewals subscription.AutoRenewalRepository, admins admin.Repository, notifier *notify.Dispatcher) *Tracker {
	return &Tracker{subs: subs, renewals: renewals, admins: admins, notifier: notifier}
}

// Tick runs steps 1-5 of §4.H over every non-removed subscription.
func (t *Tracker) Tick(ctx context.Context) error {
	subs, err := t.subs.ListActive(ctx)
	if err != nil {
		return err
	}
	admins, err := t.admins.List(ctx)
	if err != nil {
		return err
	}
	adminByID := make(map[int64]*admin.Admin, len(admins))
	for _, a := range admins {
		adminByID[a.ID()] = a
	}

	now := time.Now().UTC()
	for _, sub := range subs {
		if sub.Removed() {
			continue
		}
		owner := adminByID[sub.OwnerID()]
		if err := t.processOne(ctx, sub, owner, now); err != nil {
			logger.Get().Error("reachedtracker: process subscription failed", zap.Int64("subscription_id", sub.ID()), zap.Error(err))
		}
	}
	return nil
}

func (t *Tracker) processOne(ctx context.Context, sub *subscription.Subscription, owner *admin.Admin, now time.Time) error {
	changed := t.applyWarnings(sub, owner, now)

	limited := sub.Limited()
	expired := sub.Expired(now)

	if !sub.Reached() && (limited || expired) {
		sub.MarkReached(limited, now)
		changed = true
		t.notifyReached(sub)
	}

	if sub.Reached() {
		renewed, err := t.applyAutoRenewal(ctx, sub, now)
		if err != nil {
			return err
		}
		if renewed {
			changed = true
			limited = sub.Limited()
			expired = sub.Expired(now)
		}
	}

	if sub.Reached() && !limited && !expired {
		sub.Reconnect()
		changed = true
	}

	if sub.Reached() && sub.AutoDeleteDays() > 0 && !sub.ReachedAt().IsZero() {
		cutoff := time.Duration(sub.AutoDeleteDays()) * 24 * time.Hour
		if now.Sub(sub.ReachedAt()) >= cutoff {
			sub.MarkRemoved(now)
			changed = true
			t.notifyAutoDeleted(sub)
		}
	}

	if !changed {
		return nil
	}
	return t.subs.Update(ctx, sub)
}

// applyWarnings computes and applies the idempotent near-limit warning flags
// (§4.H step 1). Returns whether the subscription's state changed.
func (t *Tracker) applyWarnings(sub *subscription.Subscription, owner *admin.Admin, now time.Time) bool {
	expireWarningDays := defaultExpireWarningDays
	usageWarningPercent := defaultUsageWarningPercent
	if owner != nil {
		if owner.ExpireWarningDays() > 0 {
			expireWarningDays = owner.ExpireWarningDays()
		}
		if owner.UsageWarningPercent() > 0 {
			usageWarningPercent = owner.UsageWarningPercent()
		}
	}

	var expireWarn bool
	if sub.LimitExpire() > 0 {
		daysLeft := float64(sub.LimitExpire()-now.Unix()) / 86400
		expireWarn = daysLeft <= float64(expireWarningDays)
	}

	var usageWarn bool
	if sub.LimitUsage() > 0 {
		usageWarn = 100*sub.CurrentUsage()/sub.LimitUsage() >= int64(usageWarningPercent)
	}

	if expireWarn == sub.OnReachedExpire() && usageWarn == sub.OnReachedUsage() {
		return false
	}
	sub.SetReachedWarnings(expireWarn, usageWarn)
	return true
}

// applyAutoRenewal consumes the oldest queued renewal row for sub, if any
// (§4.H step 3). Returns whether a renewal was applied.
func (t *Tracker) applyAutoRenewal(ctx context.Context, sub *subscription.Subscription, now time.Time) (bool, error) {
	renewal, err := t.renewals.NextFor(ctx, sub.ID())
	if err != nil {
		return false, err
	}
	if renewal == nil {
		return false, nil
	}

	resetUsage := sub.ResetUsage()
	if renewal.ResetUsage() {
		resetUsage = sub.TotalUsage()
	}
	sub.ApplyAutoRenewal(renewal.LimitUsage(), renewal.ResolvedLimitExpire(now.Unix()), resetUsage, now)

	if err := t.renewals.Consume(ctx, renewal.ID()); err != nil {
		return false, err
	}
	return true, nil
}

func (t *Tracker) notifyReached(sub *subscription.Subscription) {
	if t.notifier == nil {
		return
	}
	t.notifier.Notify(notify.Event{
		AdminID: sub.OwnerID(),
		Level:   notify.LevelWarning,
		Title:   "SubscriptionReached",
		Body:    sub.Username(),
	})
}

func (t *Tracker) notifyAutoDeleted(sub *subscription.Subscription) {
	if t.notifier == nil {
		return
	}
	t.notifier.Notify(notify.Event{
		AdminID: sub.OwnerID(),
		Level:   notify.LevelInfo,
		Title:   "SubscriptionAutoDeleted",
		Body:    sub.Username(),
	})
}

// ResellerGate runs the separate per-minute job that gates subscriptions'
// debted flag on whether their SELLER/RESELLER owner is over its own usage
// quota (§4.H "Reseller gating").
func (t *Tracker) ResellerGate(ctx context.Context) error {
	admins, err := t.admins.List(ctx)
	if err != nil {
		return err
	}

	for _, owner := range admins {
		if !owner.IsReseller() {
			continue
		}
		subs, err := t.subs.ListByOwner(ctx, owner.ID())
		if err != nil {
			logger.Get().Error("reachedtracker: list subscriptions by owner failed", zap.Int64("owner_id", owner.ID()), zap.Error(err))
			continue
		}
		debted := owner.ReachedUsageLimit()
		for _, sub := range subs {
			if sub.Debted() == debted {
				continue
			}
			sub.SetDebted(debted)
			if err := t.subs.Update(ctx, sub); err != nil {
				logger.Get().Error("reachedtracker: update debted flag failed", zap.Int64("subscription_id", sub.ID()), zap.Error(err))
			}
		}
	}
	return nil
}
