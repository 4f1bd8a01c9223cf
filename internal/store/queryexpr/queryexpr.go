// Package queryexpr builds SQL WHERE fragments that mirror the pure boolean
// methods on subscription.Subscription (IsActive, Limited, Expired, Pending)
// so list/count queries can filter on the same predicate the in-memory
// aggregate evaluates, without duplicating the logic's meaning in two places
// (SPEC_FULL.md §9 "hybrid ORM properties").
package queryexpr

import "fmt"

// Limited mirrors Subscription.Limited: limit_usage>0 AND (total_usage -
// reset_usage) > limit_usage.
const Limited = "limit_usage > 0 AND (total_usage - reset_usage) > limit_usage"

// Expired renders Subscription.Expired(now) for a bound :now parameter.
func Expired(nowPlaceholder string) string {
	return fmt.Sprintf("limit_expire > 0 AND %s >= limit_expire", nowPlaceholder)
}

// Pending mirrors Subscription.Pending: limit_expire < 0.
const Pending = "limit_expire < 0"

// IsOnline mirrors Subscription.IsOnline(now): online_at within 120s of now.
func IsOnline(nowPlaceholder string) string {
	return fmt.Sprintf("online_at IS NOT NULL AND %s - online_at <= 120", nowPlaceholder)
}

// IsActive mirrors Subscription.IsActive(now): enabled AND activated AND NOT
// expired AND NOT limited AND NOT debted.
func IsActive(nowPlaceholder string) string {
	return fmt.Sprintf("enabled = TRUE AND activated = TRUE AND debted = FALSE AND NOT (%s) AND NOT (%s)",
		Expired(nowPlaceholder), Limited)
}
