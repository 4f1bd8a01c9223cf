// Package biztime provides UTC time helpers shared by the usage engine and
// the reached tracker. All storage and transport use UTC; there is no
// per-tenant display timezone in this schema.
package biztime

import "time"

// NowUTC returns current time in UTC.
func NowUTC() time.Time {
	return time.Now().UTC()
}

// TruncateToHourUTC returns current time truncated to hour in UTC. Used to key
// SubscriptionUsage and SubscriptionUsageLogs rows by hour bucket.
func TruncateToHourUTC() time.Time {
	return NowUTC().Truncate(time.Hour)
}

// TruncateHourUTC truncates an arbitrary time to its hour boundary in UTC.
func TruncateHourUTC(t time.Time) time.Time {
	return t.UTC().Truncate(time.Hour)
}
