// Package subscription models the Subscription aggregate and its derived
// properties. Every derived boolean here has a matching SQL fragment builder
// in internal/store/queryexpr so the same predicate is used in memory and in
// WHERE/ORDER BY clauses (SPEC_FULL.md §9 "hybrid ORM properties").
package subscription

import (
	"context"
	"regexp"
	"time"

	apperrors "github.com/moguard/panel/internal/shared/errors"
)

var usernamePattern = regexp.MustCompile(`^[a-z0-9_]{3,30}$`)

// Subscription is the Subscription aggregate (§3).
type Subscription struct {
	id      int64
	username string
	ownerID int64

	accessKey string
	serverKey string

	enabled         bool
	activated       bool
	reached         bool
	debted          bool
	onReachedExpire bool
	onReachedUsage  bool
	removed         bool
	changed         bool

	limitUsage     int64
	resetUsage     int64
	limitExpire    int64 // unix seconds; negative = pending duration, 0 = unlimited, positive = absolute
	autoDeleteDays int

	note string

	totalUsage int64
	onlineAt   time.Time

	createdAt      time.Time
	lastResetAt    time.Time
	lastRevokeAt   time.Time
	lastRequestAt  time.Time
	inactiveAt     time.Time
	reachedAt      time.Time
	removedAt      time.Time

	lastClientAgent     string
	telegramID          string
	discordWebhookURL   string

	serviceIDs []int64
}

// New validates and constructs a Subscription for bulk-create (§4.A
// subscription.bulk_create).
func New(username string, ownerID int64, accessKey, serverKey string, limitUsage, limitExpire int64, autoDeleteDays int, note string, serviceIDs []int64) (*Subscription, error) {
	if !usernamePattern.MatchString(username) {
		return nil, apperrors.NewValidationError("username must be 3-30 lowercase letters, digits or underscores")
	}
	if autoDeleteDays < 0 || autoDeleteDays > 999 {
		return nil, apperrors.NewValidationError("auto_delete_days must be between 0 and 999")
	}
	if len(note) > 1024 {
		return nil, apperrors.NewValidationError("note must be at most 1024 characters")
	}
	now := time.Now().UTC()
	return &Subscription{
		username:       username,
		ownerID:        ownerID,
		accessKey:      accessKey,
		serverKey:      serverKey,
		enabled:        true,
		activated:      true,
		limitUsage:     limitUsage,
		limitExpire:    limitExpire,
		autoDeleteDays: autoDeleteDays,
		note:           note,
		serviceIDs:     serviceIDs,
		createdAt:      now,
	}, nil
}

// Reconstruct rebuilds a Subscription from persisted state.
func Reconstruct(
	id int64, username string, ownerID int64, accessKey, serverKey string,
	enabled, activated, reached, debted, onReachedExpire, onReachedUsage, removed, changed bool,
	limitUsage, resetUsage, limitExpire int64, autoDeleteDays int, note string,
	totalUsage int64, onlineAt time.Time,
	createdAt, lastResetAt, lastRevokeAt, lastRequestAt, inactiveAt, reachedAt, removedAt time.Time,
	lastClientAgent, telegramID, discordWebhookURL string,
	serviceIDs []int64,
) *Subscription {
	return &Subscription{
		id: id, username: username, ownerID: ownerID, accessKey: accessKey, serverKey: serverKey,
		enabled: enabled, activated: activated, reached: reached, debted: debted,
		onReachedExpire: onReachedExpire, onReachedUsage: onReachedUsage, removed: removed, changed: changed,
		limitUsage: limitUsage, resetUsage: resetUsage, limitExpire: limitExpire, autoDeleteDays: autoDeleteDays,
		note: note, totalUsage: totalUsage, onlineAt: onlineAt,
		createdAt: createdAt, lastResetAt: lastResetAt, lastRevokeAt: lastRevokeAt, lastRequestAt: lastRequestAt,
		inactiveAt: inactiveAt, reachedAt: reachedAt, removedAt: removedAt,
		lastClientAgent: lastClientAgent, telegramID: telegramID, discordWebhookURL: discordWebhookURL,
		serviceIDs: serviceIDs,
	}
}

func (s *Subscription) ID() int64           { return s.id }
func (s *Subscription) Username() string    { return s.username }
func (s *Subscription) OwnerID() int64      { return s.ownerID }
func (s *Subscription) AccessKey() string   { return s.accessKey }
func (s *Subscription) ServerKey() string   { return s.serverKey }
func (s *Subscription) Enabled() bool       { return s.enabled }
func (s *Subscription) Activated() bool     { return s.activated }
func (s *Subscription) Reached() bool       { return s.reached }
func (s *Subscription) Debted() bool        { return s.debted }
func (s *Subscription) OnReachedExpire() bool { return s.onReachedExpire }
func (s *Subscription) OnReachedUsage() bool  { return s.onReachedUsage }
func (s *Subscription) Removed() bool       { return s.removed }
func (s *Subscription) Changed() bool       { return s.changed }
func (s *Subscription) LimitUsage() int64   { return s.limitUsage }
func (s *Subscription) ResetUsage() int64   { return s.resetUsage }
func (s *Subscription) LimitExpire() int64  { return s.limitExpire }
func (s *Subscription) AutoDeleteDays() int { return s.autoDeleteDays }
func (s *Subscription) Note() string        { return s.note }
func (s *Subscription) TotalUsage() int64   { return s.totalUsage }
func (s *Subscription) OnlineAt() time.Time { return s.onlineAt }
func (s *Subscription) CreatedAt() time.Time { return s.createdAt }
func (s *Subscription) ReachedAt() time.Time { return s.reachedAt }
func (s *Subscription) InactiveAt() time.Time { return s.inactiveAt }
func (s *Subscription) LastRequestAt() time.Time { return s.lastRequestAt }
func (s *Subscription) ServiceIDs() []int64 { return s.serviceIDs }
func (s *Subscription) TelegramID() string  { return s.telegramID }
func (s *Subscription) DiscordWebhookURL() string { return s.discordWebhookURL }

// CurrentUsage is `total_usage - reset_usage`, clamped to zero by construction
// (invariant 1): reset_usage never exceeds total_usage because Reached
// Tracker's auto-renewal step sets reset_usage = total_usage at the moment of
// reset, and total_usage is monotonically non-decreasing between resets.
func (s *Subscription) CurrentUsage() int64 {
	v := s.totalUsage - s.resetUsage
	if v < 0 {
		return 0
	}
	return v
}

// Limited reports `limit_usage > 0 ∧ current_usage > limit_usage` (§3).
func (s *Subscription) Limited() bool {
	return s.limitUsage > 0 && s.CurrentUsage() > s.limitUsage
}

// Expired reports `limit_expire > 0 ∧ now ≥ limit_expire` (§3).
func (s *Subscription) Expired(now time.Time) bool {
	return s.limitExpire > 0 && now.Unix() >= s.limitExpire
}

// Pending reports `limit_expire < 0` (§3): the expiry clock has not started.
func (s *Subscription) Pending() bool {
	return s.limitExpire < 0
}

// IsOnline reports whether online_at is within 120s of now (§3).
func (s *Subscription) IsOnline(now time.Time) bool {
	if s.onlineAt.IsZero() {
		return false
	}
	return now.Sub(s.onlineAt) <= 120*time.Second
}

// IsActive reports `enabled ∧ activated ∧ ¬expired ∧ ¬limited ∧ ¬debted` (§3).
func (s *Subscription) IsActive(now time.Time) bool {
	return s.enabled && s.activated && !s.Expired(now) && !s.Limited() && !s.debted
}

// ShouldBeRemove mirrors the reconciler's background-sync skip predicate:
// `(reached_at older than 24h) ∨ (inactive_at older than 24h)`. Such
// subscriptions are left for the Reached Tracker's auto-delete step instead
// of being touched by per-tick sync.
func (s *Subscription) ShouldBeRemove(now time.Time) bool {
	if !s.reachedAt.IsZero() && now.Sub(s.reachedAt) >= 24*time.Hour {
		return true
	}
	if !s.inactiveAt.IsZero() && now.Sub(s.inactiveAt) >= 24*time.Hour {
		return true
	}
	return false
}

// ActivateExpire converts a pending (`limit_expire<0`) subscription into an
// absolute deadline the first time usage is observed (§4.A `activate_expire`,
// §8 invariant 7 / scenario S3). Returns false if the subscription was not
// pending (no-op).
func (s *Subscription) ActivateExpire(now time.Time) bool {
	if !s.Pending() {
		return false
	}
	s.limitExpire = now.Unix() + (-s.limitExpire)
	return true
}

// MarkChanged flips the one-time "credentials rotated" flag (§6: "if the
// subscription has changed=false, schedules a background mark_changed →
// revoke_subscription").
func (s *Subscription) MarkChanged() {
	s.changed = true
}

// Revoke rotates the client-facing access_key and sets changed, so the next
// reconcile tick re-derives node credentials from the new key.
func (s *Subscription) Revoke(newAccessKey string, now time.Time) {
	s.accessKey = newAccessKey
	s.changed = true
	s.lastRevokeAt = now
}

// RecordClientHit updates last_request_at/last_client_agent (§6). Returns
// true the first time this subscription is ever hit, so the caller can emit
// a one-time `first_requested_subscription` notification.
func (s *Subscription) RecordClientHit(userAgent string, now time.Time) (firstHit bool) {
	firstHit = s.lastRequestAt.IsZero()
	s.lastRequestAt = now
	if len(userAgent) > 256 {
		userAgent = userAgent[:256]
	}
	s.lastClientAgent = userAgent
	return firstHit
}

// AddUsage raises total_usage by delta (§4.A ingestion) and marks online_at
// when the subscription is actively transmitting.
func (s *Subscription) AddUsage(delta int64, now time.Time) {
	if delta <= 0 {
		return
	}
	s.totalUsage += delta
	s.onlineAt = now
}

// MarkReached transitions the subscription into the reached state (§4.H);
// byUsage distinguishes which limit tripped for the onReachedExpire/Usage flags.
func (s *Subscription) MarkReached(byUsage bool, now time.Time) {
	s.reached = true
	s.reachedAt = now
	if byUsage {
		s.onReachedUsage = true
	} else {
		s.onReachedExpire = true
	}
}

// SetReachedWarnings sets the idempotent near-limit warning flags (§4.H step
// 1), independent of whether the subscription has actually transitioned to
// reached yet.
func (s *Subscription) SetReachedWarnings(expireWarning, usageWarning bool) {
	s.onReachedExpire = expireWarning
	s.onReachedUsage = usageWarning
}

// Reconnect clears the reached state without touching limits, for a
// subscription that is no longer limited or expired (§4.H step 4).
func (s *Subscription) Reconnect() {
	s.reached = false
	s.reachedAt = time.Time{}
	s.onReachedExpire = false
	s.onReachedUsage = false
}

// ApplyAutoRenewal resets usage/expiry per an AutoRenewal row and clears the
// reached state (§4.H step 3).
func (s *Subscription) ApplyAutoRenewal(newLimitUsage, newLimitExpire, newResetUsage int64, now time.Time) {
	s.limitUsage = newLimitUsage
	s.limitExpire = newLimitExpire
	s.resetUsage = newResetUsage
	s.reached = false
	s.reachedAt = time.Time{}
	s.onReachedExpire = false
	s.onReachedUsage = false
	s.lastResetAt = now
}

// MarkInactive stamps inactive_at the first time a subscription goes
// unreachable on all its nodes (§4.H auto-delete countdown).
func (s *Subscription) MarkInactive(now time.Time) {
	if s.inactiveAt.IsZero() {
		s.inactiveAt = now
	}
}

// ClearInactive resets the inactive countdown once the subscription is seen
// active again on any node.
func (s *Subscription) ClearInactive() {
	s.inactiveAt = time.Time{}
}

// MarkRemoved soft-deletes the subscription, nulling username so it can be
// reused (§4.H auto-delete, §4.A bulk_remove).
func (s *Subscription) MarkRemoved(now time.Time) {
	s.removed = true
	s.removedAt = now
	s.username = ""
}

// SetDebted flips the reseller-quota gate (§4.H).
func (s *Subscription) SetDebted(debted bool) {
	s.debted = debted
}

// SetEnabled toggles enabled, clearing or stamping the inactive countdown
// the way the source's enable/disable class methods do.
func (s *Subscription) SetEnabled(enabled bool, now time.Time) {
	s.enabled = enabled
	if enabled {
		s.inactiveAt = time.Time{}
	} else {
		s.inactiveAt = now
	}
}

// ResetUsageCounter re-baselines current_usage to zero by moving the
// reset_usage watermark up to total_usage, without touching total_usage
// itself (so historical usage logs remain accurate).
func (s *Subscription) ResetUsageCounter(now time.Time) {
	s.resetUsage = s.totalUsage
	s.lastResetAt = now
}

// Update applies a subscription's editable fields — the PUT
// /api/subscriptions/{username} surface.
func (s *Subscription) Update(limitUsage, limitExpire int64, autoDeleteDays int, note string, serviceIDs []int64) {
	s.limitUsage, s.limitExpire, s.autoDeleteDays = limitUsage, limitExpire, autoDeleteDays
	s.note, s.serviceIDs = note, serviceIDs
}

// AttachServices adds serviceIDs to the subscription's selection, skipping
// ones already present.
func (s *Subscription) AttachServices(serviceIDs ...int64) {
	existing := make(map[int64]bool, len(s.serviceIDs))
	for _, id := range s.serviceIDs {
		existing[id] = true
	}
	for _, id := range serviceIDs {
		if !existing[id] {
			s.serviceIDs = append(s.serviceIDs, id)
			existing[id] = true
		}
	}
}

// DetachServices removes serviceIDs from the subscription's selection.
func (s *Subscription) DetachServices(serviceIDs ...int64) {
	remove := make(map[int64]bool, len(serviceIDs))
	for _, id := range serviceIDs {
		remove[id] = true
	}
	out := s.serviceIDs[:0:0]
	for _, id := range s.serviceIDs {
		if !remove[id] {
			out = append(out, id)
		}
	}
	s.serviceIDs = out
}

// Filter narrows the admin-facing list/count/stats endpoints (§6 `GET
// /api/subscriptions`). A nil bool pointer means "don't filter on this".
type Filter struct {
	Limited  *bool
	Expired  *bool
	IsActive *bool
	Enabled  *bool
	Online   *bool
	Search   string
	OrderBy  string
	Page     int
	Size     int
}

// Stats is the aggregate count breakdown for `GET /api/subscriptions/stats`.
type Stats struct {
	Total    int64
	Active   int64
	Expired  int64
	Limited  int64
	Disabled int64
	Online   int64
}

// Repository persists and retrieves Subscription aggregates.
type Repository interface {
	Create(ctx context.Context, s *Subscription) (*Subscription, error)
	Update(ctx context.Context, s *Subscription) error
	Get(ctx context.Context, id int64) (*Subscription, error)
	GetByUsername(ctx context.Context, username string) (*Subscription, error)
	GetByAccessKey(ctx context.Context, accessKey string) (*Subscription, error)
	ListActive(ctx context.Context) ([]*Subscription, error)
	ListByOwner(ctx context.Context, ownerID int64) ([]*Subscription, error)
	ListReachedOlderThan(ctx context.Context, cutoff time.Time, limit int) ([]*Subscription, error)
	ListFiltered(ctx context.Context, f Filter, now time.Time) ([]*Subscription, int64, error)
	Stats(ctx context.Context, now time.Time) (Stats, error)
	BulkCreate(ctx context.Context, subs []*Subscription) error
	Delete(ctx context.Context, id int64) error
}
