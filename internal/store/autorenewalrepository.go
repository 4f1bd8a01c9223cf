package store

import (
	"context"
	"errors"
	"fmt"

	"gorm.io/gorm"

	"github.com/moguard/panel/internal/domain/subscription"
)

// AutoRenewalRepository implements subscription.AutoRenewalRepository over gorm.
type AutoRenewalRepository struct {
	db *gorm.DB
}

// NewAutoRenewalRepository constructs a subscription.AutoRenewalRepository
// backed by db.
func NewAutoRenewalRepository(db *gorm.DB) subscription.AutoRenewalRepository {
	return &AutoRenewalRepository{db: db}
}

func (r *AutoRenewalRepository) Create(ctx context.Context, ren *subscription.AutoRenewal) (*subscription.AutoRenewal, error) {
	m := autoRenewalModel{
		SubscriptionID: ren.SubscriptionID(), LimitUsage: ren.LimitUsage(),
		LimitExpire: ren.LimitExpire(), ResetUsage: ren.ResetUsage(),
	}
	if err := r.db.WithContext(ctx).Create(&m).Error; err != nil {
		return nil, fmt.Errorf("store: create auto renewal: %w", err)
	}
	return subscription.ReconstructAutoRenewal(m.ID, m.SubscriptionID, m.LimitUsage, m.LimitExpire, m.ResetUsage), nil
}

// NextFor returns the oldest queued row (lowest id) for a subscription, the
// FIFO order the reached tracker applies renewals in (§4.H step 3).
func (r *AutoRenewalRepository) NextFor(ctx context.Context, subscriptionID int64) (*subscription.AutoRenewal, error) {
	var m autoRenewalModel
	err := r.db.WithContext(ctx).Where("subscription_id = ?", subscriptionID).Order("id asc").First(&m).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("store: next auto renewal: %w", err)
	}
	return subscription.ReconstructAutoRenewal(m.ID, m.SubscriptionID, m.LimitUsage, m.LimitExpire, m.ResetUsage), nil
}

func (r *AutoRenewalRepository) Consume(ctx context.Context, id int64) error {
	if err := r.db.WithContext(ctx).Delete(&autoRenewalModel{}, id).Error; err != nil {
		return fmt.Errorf("store: consume auto renewal %d: %w", id, err)
	}
	return nil
}

func (r *AutoRenewalRepository) DeleteForSubscription(ctx context.Context, subscriptionID int64) error {
	if err := r.db.WithContext(ctx).Where("subscription_id = ?", subscriptionID).Delete(&autoRenewalModel{}).Error; err != nil {
		return fmt.Errorf("store: delete auto renewals for subscription %d: %w", subscriptionID, err)
	}
	return nil
}
