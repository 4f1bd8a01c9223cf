package subscription

import "context"

// AutoRenewal is one queued replacement-quota row (§3). Rows are consumed
// FIFO by ascending ID — the lowest id is always the next one applied, which
// is why ID is exported but never settable by callers other than the store.
type AutoRenewal struct {
	id             int64
	subscriptionID int64
	limitUsage     int64
	limitExpire    int64
	resetUsage     bool
}

// NewAutoRenewal constructs a queued renewal row.
func NewAutoRenewal(subscriptionID int64, limitUsage, limitExpire int64, resetUsage bool) *AutoRenewal {
	return &AutoRenewal{
		subscriptionID: subscriptionID,
		limitUsage:     limitUsage,
		limitExpire:    limitExpire,
		resetUsage:     resetUsage,
	}
}

// ReconstructAutoRenewal rebuilds a row from persisted state.
func ReconstructAutoRenewal(id, subscriptionID int64, limitUsage, limitExpire int64, resetUsage bool) *AutoRenewal {
	return &AutoRenewal{id: id, subscriptionID: subscriptionID, limitUsage: limitUsage, limitExpire: limitExpire, resetUsage: resetUsage}
}

func (r *AutoRenewal) ID() int64             { return r.id }
func (r *AutoRenewal) SubscriptionID() int64 { return r.subscriptionID }
func (r *AutoRenewal) LimitUsage() int64     { return r.limitUsage }
func (r *AutoRenewal) LimitExpire() int64    { return r.limitExpire }
func (r *AutoRenewal) ResetUsage() bool      { return r.resetUsage }

// ResolvedLimitExpire computes the new limit_expire to apply when this
// renewal fires (§4.H step 3): negative stays as-is (pending, clock starts on
// next hit), positive becomes `now + value`, zero means unlimited.
func (r *AutoRenewal) ResolvedLimitExpire(nowUnix int64) int64 {
	switch {
	case r.limitExpire < 0:
		return r.limitExpire
	case r.limitExpire > 0:
		return nowUnix + r.limitExpire
	default:
		return 0
	}
}

// AutoRenewalRepository manages the FIFO auto-renewal queue (§4.H).
type AutoRenewalRepository interface {
	Create(ctx context.Context, r *AutoRenewal) (*AutoRenewal, error)
	// NextFor returns the oldest queued renewal for a subscription, or nil.
	NextFor(ctx context.Context, subscriptionID int64) (*AutoRenewal, error)
	Consume(ctx context.Context, id int64) error
	DeleteForSubscription(ctx context.Context, subscriptionID int64) error
}
