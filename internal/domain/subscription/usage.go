package subscription

import (
	"context"
	"time"
)

// Usage is a SubscriptionUsage row (§3): per (subscription, node, hour
// bucket) counters. RawCounter mirrors the last-seen upstream lifetime
// counter (`_usage` in the spec's notation); AdjustedUsage is our rate-scaled
// running total for that bucket (`usage`).
type Usage struct {
	ID             int64
	SubscriptionID int64
	NodeID         int64
	HourBucket     time.Time
	RawCounter     int64
	AdjustedUsage  int64
	UpdatedAt      time.Time
}

// UsageLog is an hourly SubscriptionUsageLogs aggregate row (§3).
type UsageLog struct {
	ID             int64
	SubscriptionID int64
	HourBucket     time.Time
	Usage          int64
}

// ApplyDelta implements the Store's `bulk_upsert_usages` per-row rule (§4.A,
// invariants 1/3/4). counter is the freshly observed upstream lifetime
// counter; rate is the node's usage_rate. Returns the row with RawCounter and
// AdjustedUsage updated; UpdatedAt must be stamped by the caller with the
// tick's `now`.
func (u Usage) ApplyDelta(counter int64, rate float64) Usage {
	delta := counter - u.RawCounter
	switch {
	case delta < 0:
		// Upstream counter reset: no phantom credit, just resync the baseline.
		u.RawCounter = counter
	case delta > 0:
		credited := roundRate(float64(delta) * rate)
		u.AdjustedUsage += credited
		if u.AdjustedUsage < 0 {
			u.AdjustedUsage = 0
		}
		u.RawCounter = counter
	}
	return u
}

// NewUsageRow builds the first SubscriptionUsage row for a (sub, node,
// bucket) pair that has no existing row yet (§4.A "If no existing row").
func NewUsageRow(subscriptionID, nodeID int64, bucket time.Time, counter int64, rate float64, updatedAt time.Time) Usage {
	return Usage{
		SubscriptionID: subscriptionID,
		NodeID:         nodeID,
		HourBucket:     bucket,
		RawCounter:     counter,
		AdjustedUsage:  roundRate(float64(counter) * rate),
		UpdatedAt:      updatedAt,
	}
}

func roundRate(v float64) int64 {
	if v < 0 {
		return int64(v - 0.5)
	}
	return int64(v + 0.5)
}

// UsageRepository persists per-(subscription,node,hour) usage counters and
// their hourly rollup logs (§3, §4.A).
type UsageRepository interface {
	// Get returns the existing row for (subscriptionID, nodeID, bucket), or
	// nil if none exists yet.
	Get(ctx context.Context, subscriptionID, nodeID int64, bucket time.Time) (*Usage, error)
	// BulkUpsert writes back a tick's worth of updated rows in one statement.
	BulkUpsert(ctx context.Context, rows []Usage) error
	// SumByBucket returns the total adjusted usage across all nodes for a
	// subscription's current hour bucket, used to drive AddUsage per tick.
	SumByBucket(ctx context.Context, subscriptionID int64, bucket time.Time) (int64, error)
	// SumTotal returns Σ adjusted_usage across every bucket/node for a
	// subscription (§4.G hourly log task step 1's `total`).
	SumTotal(ctx context.Context, subscriptionID int64) (int64, error)
	// SumLoggedTotal returns Σ usage across every UsageLog row for a
	// subscription (§4.G hourly log task step 1's `all_logged`).
	SumLoggedTotal(ctx context.Context, subscriptionID int64) (int64, error)
	// GetLog returns the existing log row for (subscriptionID, bucket), or nil.
	GetLog(ctx context.Context, subscriptionID int64, bucket time.Time) (*UsageLog, error)
	AppendLog(ctx context.Context, logs []UsageLog) error
	// UpdateLog overwrites an existing log row's usage total in place, used
	// when the current hour's row already exists (§4.G hourly log task step 2).
	UpdateLog(ctx context.Context, log UsageLog) error
}
