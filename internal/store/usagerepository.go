package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/moguard/panel/internal/domain/subscription"
)

// UsageRepository implements subscription.UsageRepository over gorm.
type UsageRepository struct {
	db *gorm.DB
}

// NewUsageRepository constructs a subscription.UsageRepository backed by db.
func NewUsageRepository(db *gorm.DB) subscription.UsageRepository {
	return &UsageRepository{db: db}
}

func (r *UsageRepository) Get(ctx context.Context, subscriptionID, nodeID int64, bucket time.Time) (*subscription.Usage, error) {
	var m usageModel
	err := r.db.WithContext(ctx).
		Where("subscription_id = ? AND node_id = ? AND hour_bucket = ?", subscriptionID, nodeID, bucket).
		First(&m).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("store: get usage row: %w", err)
	}
	return &subscription.Usage{
		ID: m.ID, SubscriptionID: m.SubscriptionID, NodeID: m.NodeID, HourBucket: m.HourBucket,
		RawCounter: m.RawCounter, AdjustedUsage: m.AdjustedUsage, UpdatedAt: m.UpdatedAt,
	}, nil
}

// BulkUpsert writes a tick's worth of usage rows in one upsert statement,
// matching the source's bulk_upsert_usages (§4.A).
func (r *UsageRepository) BulkUpsert(ctx context.Context, rows []subscription.Usage) error {
	if len(rows) == 0 {
		return nil
	}
	ms := make([]usageModel, 0, len(rows))
	for _, row := range rows {
		ms = append(ms, usageModel{
			SubscriptionID: row.SubscriptionID, NodeID: row.NodeID, HourBucket: row.HourBucket,
			RawCounter: row.RawCounter, AdjustedUsage: row.AdjustedUsage, UpdatedAt: row.UpdatedAt,
		})
	}
	err := r.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "subscription_id"}, {Name: "node_id"}, {Name: "hour_bucket"}},
		DoUpdates: clause.AssignmentColumns([]string{"raw_counter", "adjusted_usage", "updated_at"}),
	}).CreateInBatches(ms, 200).Error
	if err != nil {
		return fmt.Errorf("store: bulk upsert usages: %w", err)
	}
	return nil
}

func (r *UsageRepository) SumByBucket(ctx context.Context, subscriptionID int64, bucket time.Time) (int64, error) {
	var total int64
	err := r.db.WithContext(ctx).Model(&usageModel{}).
		Where("subscription_id = ? AND hour_bucket = ?", subscriptionID, bucket).
		Select("COALESCE(SUM(adjusted_usage), 0)").Scan(&total).Error
	if err != nil {
		return 0, fmt.Errorf("store: sum usage by bucket: %w", err)
	}
	return total, nil
}

// SumTotal returns Σ adjusted_usage across every bucket/node for a
// subscription (§4.G hourly log task step 1's `total`). Usage.ApplyDelta
// already clamps each row non-negative before it is ever persisted, so no
// floor function is needed at read time.
func (r *UsageRepository) SumTotal(ctx context.Context, subscriptionID int64) (int64, error) {
	var total int64
	err := r.db.WithContext(ctx).Model(&usageModel{}).
		Where("subscription_id = ?", subscriptionID).
		Select("COALESCE(SUM(adjusted_usage), 0)").Scan(&total).Error
	if err != nil {
		return 0, fmt.Errorf("store: sum total usage: %w", err)
	}
	return total, nil
}

// SumLoggedTotal returns Σ usage across every UsageLog row for a subscription
// (§4.G hourly log task step 1's `all_logged`).
func (r *UsageRepository) SumLoggedTotal(ctx context.Context, subscriptionID int64) (int64, error) {
	var total int64
	err := r.db.WithContext(ctx).Model(&usageLogModel{}).
		Where("subscription_id = ?", subscriptionID).
		Select("COALESCE(SUM(usage), 0)").Scan(&total).Error
	if err != nil {
		return 0, fmt.Errorf("store: sum logged usage: %w", err)
	}
	return total, nil
}

// GetLog returns the existing log row for (subscriptionID, bucket), or nil.
func (r *UsageRepository) GetLog(ctx context.Context, subscriptionID int64, bucket time.Time) (*subscription.UsageLog, error) {
	var m usageLogModel
	err := r.db.WithContext(ctx).
		Where("subscription_id = ? AND hour_bucket = ?", subscriptionID, bucket).
		First(&m).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("store: get usage log row: %w", err)
	}
	return &subscription.UsageLog{ID: m.ID, SubscriptionID: m.SubscriptionID, HourBucket: m.HourBucket, Usage: m.Usage}, nil
}

// UpdateLog overwrites an existing log row's usage total by id.
func (r *UsageRepository) UpdateLog(ctx context.Context, log subscription.UsageLog) error {
	err := r.db.WithContext(ctx).Model(&usageLogModel{}).Where("id = ?", log.ID).
		Update("usage", log.Usage).Error
	if err != nil {
		return fmt.Errorf("store: update usage log %d: %w", log.ID, err)
	}
	return nil
}

func (r *UsageRepository) AppendLog(ctx context.Context, logs []subscription.UsageLog) error {
	if len(logs) == 0 {
		return nil
	}
	ms := make([]usageLogModel, 0, len(logs))
	for _, l := range logs {
		ms = append(ms, usageLogModel{SubscriptionID: l.SubscriptionID, HourBucket: l.HourBucket, Usage: l.Usage})
	}
	if err := r.db.WithContext(ctx).CreateInBatches(ms, 200).Error; err != nil {
		return fmt.Errorf("store: append usage logs: %w", err)
	}
	return nil
}
