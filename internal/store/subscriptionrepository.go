package store

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"gorm.io/gorm"

	"github.com/moguard/panel/internal/domain/subscription"
	"github.com/moguard/panel/internal/store/queryexpr"
)

// SubscriptionRepository implements subscription.Repository over gorm.
type SubscriptionRepository struct {
	db *gorm.DB
}

// NewSubscriptionRepository constructs a subscription.Repository backed by db.
func NewSubscriptionRepository(db *gorm.DB) subscription.Repository {
	return &SubscriptionRepository{db: db}
}

func subToModel(s *subscription.Subscription) (*subscriptionModel, error) {
	raw, err := json.Marshal(s.ServiceIDs())
	if err != nil {
		return nil, fmt.Errorf("store: encode subscription service ids: %w", err)
	}
	return &subscriptionModel{
		ID: s.ID(), Username: s.Username(), OwnerID: s.OwnerID(),
		AccessKey: s.AccessKey(), ServerKey: s.ServerKey(),
		Enabled: s.Enabled(), Activated: s.Activated(), Reached: s.Reached(), Debted: s.Debted(),
		OnReachedExpire: s.OnReachedExpire(), OnReachedUsage: s.OnReachedUsage(),
		Removed: s.Removed(), Changed: s.Changed(),
		LimitUsage: s.LimitUsage(), ResetUsage: s.ResetUsage(), LimitExpire: s.LimitExpire(),
		AutoDeleteDays: s.AutoDeleteDays(), Note: s.Note(),
		TotalUsage: s.TotalUsage(), OnlineAt: s.OnlineAt(),
		CreatedAt: s.CreatedAt(), ReachedAt: s.ReachedAt(), InactiveAt: s.InactiveAt(),
		LastRequestAt: s.LastRequestAt(),
		TelegramID:    s.TelegramID(), DiscordWebhookURL: s.DiscordWebhookURL(),
		ServiceIDsRaw: string(raw),
	}, nil
}

func modelToSub(m *subscriptionModel) (*subscription.Subscription, error) {
	var serviceIDs []int64
	if m.ServiceIDsRaw != "" {
		if err := json.Unmarshal([]byte(m.ServiceIDsRaw), &serviceIDs); err != nil {
			return nil, fmt.Errorf("store: decode subscription service ids: %w", err)
		}
	}
	return subscription.Reconstruct(
		m.ID, m.Username, m.OwnerID, m.AccessKey, m.ServerKey,
		m.Enabled, m.Activated, m.Reached, m.Debted, m.OnReachedExpire, m.OnReachedUsage, m.Removed, m.Changed,
		m.LimitUsage, m.ResetUsage, m.LimitExpire, m.AutoDeleteDays, m.Note,
		m.TotalUsage, m.OnlineAt,
		m.CreatedAt, m.LastResetAt, m.LastRevokeAt, m.LastRequestAt, m.InactiveAt, m.ReachedAt, m.RemovedAt,
		m.LastClientAgent, m.TelegramID, m.DiscordWebhookURL,
		serviceIDs,
	), nil
}

func (r *SubscriptionRepository) Create(ctx context.Context, s *subscription.Subscription) (*subscription.Subscription, error) {
	m, err := subToModel(s)
	if err != nil {
		return nil, err
	}
	if err := r.db.WithContext(ctx).Create(m).Error; err != nil {
		return nil, fmt.Errorf("store: create subscription: %w", err)
	}
	return modelToSub(m)
}

func (r *SubscriptionRepository) Update(ctx context.Context, s *subscription.Subscription) error {
	m, err := subToModel(s)
	if err != nil {
		return err
	}
	if err := r.db.WithContext(ctx).Model(&subscriptionModel{}).Where("id = ?", m.ID).Updates(m).Error; err != nil {
		return fmt.Errorf("store: update subscription %d: %w", m.ID, err)
	}
	return nil
}

func (r *SubscriptionRepository) Get(ctx context.Context, id int64) (*subscription.Subscription, error) {
	var m subscriptionModel
	if err := r.db.WithContext(ctx).First(&m, id).Error; err != nil {
		return nil, fmt.Errorf("store: get subscription %d: %w", id, err)
	}
	return modelToSub(&m)
}

func (r *SubscriptionRepository) GetByUsername(ctx context.Context, username string) (*subscription.Subscription, error) {
	var m subscriptionModel
	if err := r.db.WithContext(ctx).Where("username = ? AND removed = ?", username, false).First(&m).Error; err != nil {
		return nil, fmt.Errorf("store: get subscription by username %q: %w", username, err)
	}
	return modelToSub(&m)
}

func (r *SubscriptionRepository) GetByAccessKey(ctx context.Context, accessKey string) (*subscription.Subscription, error) {
	var m subscriptionModel
	if err := r.db.WithContext(ctx).Where("access_key = ? AND removed = ?", accessKey, false).First(&m).Error; err != nil {
		return nil, fmt.Errorf("store: get subscription by access key: %w", err)
	}
	return modelToSub(&m)
}

// ListActive returns every non-removed subscription the reconciler should
// consider on a tick (derived IsActive/ShouldBeRemove are still evaluated in
// memory; this query is the coarse "not already gone" filter).
func (r *SubscriptionRepository) ListActive(ctx context.Context) ([]*subscription.Subscription, error) {
	var ms []*subscriptionModel
	if err := r.db.WithContext(ctx).Where("removed = ?", false).Find(&ms).Error; err != nil {
		return nil, fmt.Errorf("store: list active subscriptions: %w", err)
	}
	return modelsToSubs(ms)
}

func (r *SubscriptionRepository) ListByOwner(ctx context.Context, ownerID int64) ([]*subscription.Subscription, error) {
	var ms []*subscriptionModel
	if err := r.db.WithContext(ctx).Where("owner_id = ? AND removed = ?", ownerID, false).Find(&ms).Error; err != nil {
		return nil, fmt.Errorf("store: list subscriptions by owner %d: %w", ownerID, err)
	}
	return modelsToSubs(ms)
}

// ListReachedOlderThan returns reached, non-removed subscriptions whose
// reached_at is at or before cutoff, oldest reached_at first, capped at limit
// rows. The Reached Tracker does not call it; it walks ListActive instead.
func (r *SubscriptionRepository) ListReachedOlderThan(ctx context.Context, cutoff time.Time, limit int) ([]*subscription.Subscription, error) {
	var ms []*subscriptionModel
	if err := r.db.WithContext(ctx).
		Where("reached = ? AND removed = ? AND reached_at <= ?", true, false, cutoff).
		Order("reached_at asc").Limit(limit).Find(&ms).Error; err != nil {
		return nil, fmt.Errorf("store: list reached subscriptions: %w", err)
	}
	return modelsToSubs(ms)
}

// ListFiltered implements the admin list surface's filter/search/order/page
// params (§6 `GET /api/subscriptions`), delegating the derived-boolean
// filters to queryexpr so the SQL predicate matches the in-memory method.
func (r *SubscriptionRepository) ListFiltered(ctx context.Context, f subscription.Filter, now time.Time) ([]*subscription.Subscription, int64, error) {
	q := r.db.WithContext(ctx).Model(&subscriptionModel{}).Where("removed = ?", false)
	nowUnix := now.Unix()

	if f.Limited != nil {
		if *f.Limited {
			q = q.Where(queryexpr.Limited)
		} else {
			q = q.Where("NOT (" + queryexpr.Limited + ")")
		}
	}
	if f.Expired != nil {
		expr := queryexpr.Expired("?")
		if *f.Expired {
			q = q.Where(expr, nowUnix)
		} else {
			q = q.Where("NOT ("+expr+")", nowUnix)
		}
	}
	if f.IsActive != nil {
		expr := queryexpr.IsActive("?")
		if *f.IsActive {
			q = q.Where(expr, nowUnix, nowUnix)
		} else {
			q = q.Where("NOT ("+expr+")", nowUnix, nowUnix)
		}
	}
	if f.Enabled != nil {
		q = q.Where("enabled = ?", *f.Enabled)
	}
	if f.Online != nil {
		expr := queryexpr.IsOnline("?")
		if *f.Online {
			q = q.Where(expr, nowUnix)
		} else {
			q = q.Where("NOT ("+expr+")", nowUnix)
		}
	}
	if f.Search != "" {
		q = q.Where("username LIKE ?", "%"+f.Search+"%")
	}

	var total int64
	if err := q.Count(&total).Error; err != nil {
		return nil, 0, fmt.Errorf("store: count filtered subscriptions: %w", err)
	}

	order := "created_at desc"
	switch f.OrderBy {
	case "username", "-username":
		order = orderClause(f.OrderBy, "username")
	case "total_usage", "-total_usage":
		order = orderClause(f.OrderBy, "total_usage")
	case "created_at", "-created_at":
		order = orderClause(f.OrderBy, "created_at")
	}
	q = q.Order(order)

	size := f.Size
	if size <= 0 {
		size = 50
	}
	page := f.Page
	if page <= 0 {
		page = 1
	}
	q = q.Limit(size).Offset((page - 1) * size)

	var ms []*subscriptionModel
	if err := q.Find(&ms).Error; err != nil {
		return nil, 0, fmt.Errorf("store: list filtered subscriptions: %w", err)
	}
	subs, err := modelsToSubs(ms)
	if err != nil {
		return nil, 0, err
	}
	return subs, total, nil
}

func orderClause(field, column string) string {
	if len(field) > 0 && field[0] == '-' {
		return column + " desc"
	}
	return column + " asc"
}

// Stats computes the breakdown for `GET /api/subscriptions/stats` with a
// single grouped query over the same queryexpr predicates.
func (r *SubscriptionRepository) Stats(ctx context.Context, now time.Time) (subscription.Stats, error) {
	base := r.db.WithContext(ctx).Model(&subscriptionModel{}).Where("removed = ?", false)
	var stats subscription.Stats
	nowUnix := now.Unix()

	if err := base.Session(&gorm.Session{}).Count(&stats.Total).Error; err != nil {
		return stats, fmt.Errorf("store: count subscriptions: %w", err)
	}
	if err := base.Session(&gorm.Session{}).Where(queryexpr.IsActive("?"), nowUnix, nowUnix).Count(&stats.Active).Error; err != nil {
		return stats, fmt.Errorf("store: count active subscriptions: %w", err)
	}
	if err := base.Session(&gorm.Session{}).Where(queryexpr.Expired("?"), nowUnix).Count(&stats.Expired).Error; err != nil {
		return stats, fmt.Errorf("store: count expired subscriptions: %w", err)
	}
	if err := base.Session(&gorm.Session{}).Where(queryexpr.Limited).Count(&stats.Limited).Error; err != nil {
		return stats, fmt.Errorf("store: count limited subscriptions: %w", err)
	}
	if err := base.Session(&gorm.Session{}).Where("enabled = ?", false).Count(&stats.Disabled).Error; err != nil {
		return stats, fmt.Errorf("store: count disabled subscriptions: %w", err)
	}
	if err := base.Session(&gorm.Session{}).Where(queryexpr.IsOnline("?"), nowUnix).Count(&stats.Online).Error; err != nil {
		return stats, fmt.Errorf("store: count online subscriptions: %w", err)
	}
	return stats, nil
}

func (r *SubscriptionRepository) BulkCreate(ctx context.Context, subs []*subscription.Subscription) error {
	if len(subs) == 0 {
		return nil
	}
	ms := make([]*subscriptionModel, 0, len(subs))
	for _, s := range subs {
		m, err := subToModel(s)
		if err != nil {
			return err
		}
		ms = append(ms, m)
	}
	if err := r.db.WithContext(ctx).CreateInBatches(ms, 200).Error; err != nil {
		return fmt.Errorf("store: bulk create subscriptions: %w", err)
	}
	return nil
}

func (r *SubscriptionRepository) Delete(ctx context.Context, id int64) error {
	if err := r.db.WithContext(ctx).Model(&subscriptionModel{}).Where("id = ?", id).
		Updates(map[string]any{"removed": true, "removed_at": time.Now().UTC()}).Error; err != nil {
		return fmt.Errorf("store: remove subscription %d: %w", id, err)
	}
	return nil
}

func modelsToSubs(ms []*subscriptionModel) ([]*subscription.Subscription, error) {
	out := make([]*subscription.Subscription, 0, len(ms))
	for _, m := range ms {
		s, err := modelToSub(m)
		if err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	return out, nil
}
