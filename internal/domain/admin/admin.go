// Package admin models the Admin aggregate: the tenant/reseller owner of
// subscriptions, its presentation config, notification sinks, and TOTP state.
package admin

import (
	"context"
	"regexp"
	"time"

	apperrors "github.com/moguard/panel/internal/shared/errors"
)

// Role is a flat three-value role enum (§3) — this spec has no dynamic policy
// engine, so authorization is a handful of role checks in internal/httpapi,
// not a casbin policy (see DESIGN.md).
type Role string

const (
	RoleOwner    Role = "OWNER"
	RoleSeller   Role = "SELLER"
	RoleReseller Role = "RESELLER"
)

var usernamePattern = regexp.MustCompile(`^[A-Za-z0-9]{3,30}$`)
var accessTagPattern = regexp.MustCompile(`^[A-Za-z0-9]{4,30}$`)

// PlaceholderCategory groups placeholder link templates by subscription state.
type PlaceholderCategory string

const (
	PlaceholderInfo     PlaceholderCategory = "info"
	PlaceholderLimited  PlaceholderCategory = "limited"
	PlaceholderExpired  PlaceholderCategory = "expired"
	PlaceholderDisabled PlaceholderCategory = "disabled"
)

// Placeholder is one placeholder link template (§4.I step 1).
type Placeholder struct {
	Category PlaceholderCategory
	Remark   string
	Address  string
	UUID     string
	Port     int
}

// Presentation groups the client-facing formatting config (§3).
type Presentation struct {
	AccessPrefix      string
	AccessTitle       string
	AccessDescription string
	AccessTag         string // default "guards", 4-30 alnum
	ConfigRename      string
	Announce          string
	AnnounceURL       string
	SupportURL        string
	UpdateInterval    int
	MaxLinks          int
	ShuffleLinks      bool
	UsernameTag       bool
}

// NotifySinks groups the admin's notification destinations.
type NotifySinks struct {
	TelegramToken       string
	TelegramChatID      string
	TelegramTopicID     string
	TelegramEnabled     bool
	DiscordWebhookURL   string
	DiscordEnabled      bool
}

// TOTPState groups TOTP enrollment state.
type TOTPState struct {
	Secret        string
	SecretPending string
	Status        bool
	LastRevokedAt time.Time
}

// Admin is the Admin aggregate.
type Admin struct {
	id           int64
	username     string
	passwordHash string
	role         Role

	apiKey string
	secret string

	canCreate bool
	canUpdate bool
	canRemove bool

	countLimit   int64
	usageLimit   int64
	currentCount int64
	currentUsage int64

	expireWarningDays    int
	usageWarningPercent  int

	placeholders []Placeholder
	presentation Presentation
	notify       NotifySinks
	totp         TOTPState

	removed   bool
	createdAt time.Time
	updatedAt time.Time
}

// New validates and constructs an Admin. OWNER role cannot be created through
// this constructor's public entrypoint (internal/httpapi never calls New with
// RoleOwner; an OWNER aggregate is only ever rebuilt from stored rows through
// Reconstruct, and the schema migration inserts no admin row) — enforced here so
// the invariant holds regardless of caller.
func New(username, passwordHash string, role Role, apiKey, secret string) (*Admin, error) {
	if !usernamePattern.MatchString(username) {
		return nil, apperrors.NewValidationError("username must be 3-30 alphanumeric characters")
	}
	if role == RoleOwner {
		return nil, apperrors.NewValidationError("owner role cannot be created via this operation")
	}
	if role != RoleSeller && role != RoleReseller {
		return nil, apperrors.NewValidationError("invalid role", string(role))
	}
	now := time.Now().UTC()
	return &Admin{
		username:     username,
		passwordHash: passwordHash,
		role:         role,
		apiKey:       apiKey,
		secret:       secret,
		canCreate:    true,
		canUpdate:    true,
		canRemove:    true,
		expireWarningDays:   1,
		usageWarningPercent: 90,
		presentation: Presentation{
			AccessTag:      "guards",
			UpdateInterval: 1,
		},
		createdAt: now,
		updatedAt: now,
	}, nil
}

// Reconstruct rebuilds an Admin from persisted state.
func Reconstruct(
	id int64, username, passwordHash string, role Role, apiKey, secret string,
	canCreate, canUpdate, canRemove bool,
	countLimit, usageLimit, currentCount, currentUsage int64,
	expireWarningDays, usageWarningPercent int,
	placeholders []Placeholder, presentation Presentation, notify NotifySinks, totp TOTPState,
	removed bool, createdAt, updatedAt time.Time,
) *Admin {
	return &Admin{
		id: id, username: username, passwordHash: passwordHash, role: role,
		apiKey: apiKey, secret: secret,
		canCreate: canCreate, canUpdate: canUpdate, canRemove: canRemove,
		countLimit: countLimit, usageLimit: usageLimit,
		currentCount: currentCount, currentUsage: currentUsage,
		expireWarningDays: expireWarningDays, usageWarningPercent: usageWarningPercent,
		placeholders: placeholders, presentation: presentation, notify: notify, totp: totp,
		removed: removed, createdAt: createdAt, updatedAt: updatedAt,
	}
}

func (a *Admin) ID() int64             { return a.id }
func (a *Admin) Username() string      { return a.username }
func (a *Admin) PasswordHash() string  { return a.passwordHash }
func (a *Admin) Role() Role            { return a.role }
func (a *Admin) APIKey() string        { return a.apiKey }
func (a *Admin) Secret() string        { return a.secret }
func (a *Admin) CurrentCount() int64   { return a.currentCount }
func (a *Admin) CurrentUsage() int64   { return a.currentUsage }
func (a *Admin) CountLimit() int64     { return a.countLimit }
func (a *Admin) UsageLimit() int64     { return a.usageLimit }
func (a *Admin) Removed() bool         { return a.removed }
func (a *Admin) Placeholders() []Placeholder { return a.placeholders }
func (a *Admin) Presentation() Presentation  { return a.presentation }
func (a *Admin) Notify() NotifySinks         { return a.notify }
func (a *Admin) TOTP() TOTPState             { return a.totp }
func (a *Admin) ExpireWarningDays() int      { return a.expireWarningDays }
func (a *Admin) UsageWarningPercent() int    { return a.usageWarningPercent }
func (a *Admin) CanCreate() bool             { return a.canCreate }
func (a *Admin) CanUpdate() bool             { return a.canUpdate }
func (a *Admin) CanRemove() bool             { return a.canRemove }

// IsReseller reports whether this admin's quota gates its subscriptions'
// debted flag (§4.H reseller gating).
func (a *Admin) IsReseller() bool {
	return a.role == RoleSeller || a.role == RoleReseller
}

// ReachedUsageLimit reports whether a reseller-class admin is over its own
// usage quota (§4.H): `usage_limit>0 ∧ current_usage ≥ usage_limit`.
func (a *Admin) ReachedUsageLimit() bool {
	return a.usageLimit > 0 && a.currentUsage >= a.usageLimit
}

// ValidAccessTag reports whether tag satisfies the client-facing URL pattern
// `^[A-Za-z0-9]{4,30}$` (§6).
func ValidAccessTag(tag string) bool {
	return accessTagPattern.MatchString(tag)
}

// AdjustCounts applies a delta to current_count/current_usage atomically in
// memory; the store applies the same delta transactionally (§4.A bulk_create,
// §4.G hourly usage log).
func (a *Admin) AdjustCounts(countDelta, usageDelta int64) {
	a.currentCount += countDelta
	a.currentUsage += usageDelta
	a.updatedAt = time.Now().UTC()
}

// Update applies an admin's editable fields (everything except identity,
// role and api credentials) — the PUT /api/admins/{id} surface.
func (a *Admin) Update(
	canCreate, canUpdate, canRemove bool,
	countLimit, usageLimit int64,
	expireWarningDays, usageWarningPercent int,
	placeholders []Placeholder, presentation Presentation, notify NotifySinks,
) {
	a.canCreate, a.canUpdate, a.canRemove = canCreate, canUpdate, canRemove
	a.countLimit, a.usageLimit = countLimit, usageLimit
	a.expireWarningDays, a.usageWarningPercent = expireWarningDays, usageWarningPercent
	a.placeholders, a.presentation, a.notify = placeholders, presentation, notify
	a.updatedAt = time.Now().UTC()
}

// SetPasswordHash rotates the stored bcrypt hash.
func (a *Admin) SetPasswordHash(hash string) {
	a.passwordHash = hash
	a.updatedAt = time.Now().UTC()
}

// BeginTOTPEnrollment stores a freshly generated secret as pending until
// confirmed by a verified code (§3 `totp_secret_pending`).
func (a *Admin) BeginTOTPEnrollment(secret string) {
	a.totp.SecretPending = secret
	a.updatedAt = time.Now().UTC()
}

// ConfirmTOTPEnrollment promotes the pending secret to active. Returns false
// if there is no pending enrollment to confirm.
func (a *Admin) ConfirmTOTPEnrollment() bool {
	if a.totp.SecretPending == "" {
		return false
	}
	a.totp.Secret = a.totp.SecretPending
	a.totp.SecretPending = ""
	a.totp.Status = true
	a.updatedAt = time.Now().UTC()
	return true
}

// DisableTOTP clears the active secret and records the revocation time
// (§3 `last_totp_revoked_at`).
func (a *Admin) DisableTOTP(now time.Time) {
	a.totp.Secret = ""
	a.totp.SecretPending = ""
	a.totp.Status = false
	a.totp.LastRevokedAt = now
	a.updatedAt = now
}

// MarkRemoved soft-deletes the admin: username is nulled so it can be
// reused, matching §3's "soft-deleted via removed=true with username
// nulled".
func (a *Admin) MarkRemoved() {
	a.removed = true
	a.username = ""
	a.updatedAt = time.Now().UTC()
}

// Repository persists and retrieves Admin aggregates.
type Repository interface {
	Create(ctx context.Context, a *Admin) (*Admin, error)
	Update(ctx context.Context, a *Admin) error
	Get(ctx context.Context, id int64) (*Admin, error)
	GetByUsername(ctx context.Context, username string) (*Admin, error)
	GetByAPIKey(ctx context.Context, apiKey string) (*Admin, error)
	List(ctx context.Context) ([]*Admin, error)
	Delete(ctx context.Context, id int64) error
	AdjustCounts(ctx context.Context, id int64, countDelta, usageDelta int64) error
	// SyncCurrentCounts recomputes every admin's current_count as
	// COUNT(subscriptions WHERE owner_id=admin.id AND NOT removed) in one
	// statement (§4.A admin.sync_current_counts, §4.F step 4).
	SyncCurrentCounts(ctx context.Context) error
}
