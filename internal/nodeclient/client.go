// Package nodeclient implements the three node REST dialects (marzban,
// marzneshin, rustneshin) behind one common interface. The reconciler never
// imports a dialect package directly; it consumes only Client and UserView
// (SPEC_FULL.md §9 "polymorphism over three node dialects").
package nodeclient

import (
	"context"
	"time"
)

// UserView is the dialect-agnostic projection of an upstream user the
// reconciler and usage engine consume. Dialect-specific payload construction
// (proxies/inbounds vs service_ids) stays behind Client; callers needing the
// dialect-specific shape go through BuildCreatePayload/BuildUpdatePayload.
type UserView struct {
	Username            string
	IsActive            bool
	LifetimeUsedTraffic int64
	CreatedAt           time.Time
	ServiceIDs          []int64           // marzneshin/rustneshin
	Proxies             map[string]string // marzban: protocol -> credential
	Inbounds            map[string][]string // marzban: protocol -> [tags]
}

// DesiredUser is what the reconciler wants a node's user to look like; Client
// implementations translate it into their dialect's create/update payload.
type DesiredUser struct {
	Username   string
	DataLimit  int64 // 0 = unlimited
	ServiceIDs []int64
	Proxies    map[string]string
	Inbounds   map[string][]string
	// Key is an opaque per-user secret marzneshin/rustneshin accept on create
	// (§4.D step 3: "pass a fresh access_key as key").
	Key string
}

// InboundOrService is the per-node catalog entry the Config Cache stores:
// marzban calls these "inbounds", marzneshin/rustneshin call them "services".
type InboundOrService struct {
	ID       int64
	Protocol string // marzban only; empty for marzneshin/rustneshin
	Tag      string
}

// Client is the common surface every dialect implements (§4.B).
type Client interface {
	Login(ctx context.Context, username, password string) (token string, err error)
	GetAdminIsActive(ctx context.Context, username, token string) (bool, error)
	GetInboundsOrServices(ctx context.Context, token string) ([]InboundOrService, error)
	GetUser(ctx context.Context, serverKey, token string) (*UserView, error)
	ListUsers(ctx context.Context, token string, page, size int, usernames []string, activate *bool) ([]UserView, error)
	CreateUser(ctx context.Context, desired DesiredUser, token string) (*UserView, error)
	UpdateUser(ctx context.Context, serverKey string, desired DesiredUser, token string) (*UserView, error)
	DeleteUser(ctx context.Context, serverKey, token string) error
	ActivateUser(ctx context.Context, serverKey, token string) error
	DeactivateUser(ctx context.Context, serverKey, token string) error
	ResetUser(ctx context.Context, serverKey, token string) error
	RevokeSub(ctx context.Context, serverKey, token string) error
	UsersCount(ctx context.Context, token string) (int, error)
	// SubscriptionLinks returns the ready-made link list for a user: marzban
	// returns it directly from the user payload; marzneshin/rustneshin fetch
	// `subscription_url + "/v2ray"` and base64-decode (§4.B, §4.D step 5).
	SubscriptionLinks(ctx context.Context, user *UserView, token string) ([]string, error)
	// FetchScriptedUsers issues the node's optional bulk scripted inventory GET
	// (§4.F step 1) with an X-Api-Key header instead of the admin bearer token.
	FetchScriptedUsers(ctx context.Context, scriptURL, scriptSecret string) ([]UserView, error)
}

// RequestTimeout is the 10s-per-request deadline every dialect call applies
// (§4.B), except scripted inventory fetches which use ScriptedTimeout.
const RequestTimeout = 10 * time.Second

// ScriptedTimeout is the deadline for a node's optional bulk scripted
// inventory endpoint (§4.F step 1, §6 "Scripted inventory endpoint").
const ScriptedTimeout = 60 * time.Second
