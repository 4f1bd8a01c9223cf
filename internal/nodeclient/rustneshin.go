package nodeclient

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"strconv"
	"time"
)

// rustneshinClient implements Client for the rustneshin dialect (§4.D).
// Wire shape mirrors marzneshin except the username list filter is sent as a
// JSON-encoded string, not repeated query params (source: rustneshin.py
// get_users uses json.dumps(usernames)).
type rustneshinClient struct {
	transport
}

// NewRustneshin constructs a rustneshin dialect client.
func NewRustneshin(host string) Client {
	return &rustneshinClient{transport: newTransport(host)}
}

type rustneshinToken struct {
	AccessToken string `json:"access_token"`
	IsSudo      bool   `json:"is_sudo"`
}

type rustneshinUser struct {
	ID                  int64     `json:"id"`
	Username            string    `json:"username"`
	Key                 string    `json:"key"`
	IsActive            bool      `json:"is_active"`
	Activated           bool      `json:"activated"`
	Expired             bool      `json:"expired"`
	DataLimitReached    bool      `json:"data_limit_reached"`
	Enabled             bool      `json:"enabled"`
	DataLimit           *int64    `json:"data_limit"`
	UsedTraffic         int64     `json:"used_traffic"`
	LifetimeUsedTraffic int64     `json:"lifetime_used_traffic"`
	SubscriptionURL     string    `json:"subscription_url"`
	ServiceIDs          []int64   `json:"service_ids"`
	CreatedAt           time.Time `json:"created_at"`
}

func rustneshinToView(u rustneshinUser) *UserView {
	return &UserView{
		Username:            u.Username,
		IsActive:            u.IsActive,
		LifetimeUsedTraffic: u.LifetimeUsedTraffic,
		CreatedAt:           u.CreatedAt,
		ServiceIDs:          u.ServiceIDs,
	}
}

func (c *rustneshinClient) Login(ctx context.Context, username, password string) (string, error) {
	var tok rustneshinToken
	body := map[string]string{"username": username, "password": password}
	if err := c.do(ctx, "POST", "/api/admins/token", requestOpts{body: body}, &tok); err != nil {
		return "", err
	}
	return tok.AccessToken, nil
}

func (c *rustneshinClient) GetAdminIsActive(ctx context.Context, username, token string) (bool, error) {
	var admin struct {
		IsSudo  bool `json:"is_sudo"`
		Enabled bool `json:"enabled"`
	}
	if err := c.do(ctx, "GET", "/api/admins/"+username, requestOpts{token: token}, &admin); err != nil {
		return false, err
	}
	return admin.IsSudo && admin.Enabled, nil
}

func (c *rustneshinClient) GetInboundsOrServices(ctx context.Context, token string) ([]InboundOrService, error) {
	var resp struct {
		Items []struct {
			ID   int64   `json:"id"`
			Name *string `json:"name"`
		} `json:"items"`
	}
	if err := c.do(ctx, "GET", "/api/services", requestOpts{token: token}, &resp); err != nil {
		return nil, err
	}
	out := make([]InboundOrService, 0, len(resp.Items))
	for _, s := range resp.Items {
		tag := ""
		if s.Name != nil {
			tag = *s.Name
		}
		out = append(out, InboundOrService{ID: s.ID, Tag: tag})
	}
	return out, nil
}

func (c *rustneshinClient) GetUser(ctx context.Context, serverKey, token string) (*UserView, error) {
	var u rustneshinUser
	if err := c.do(ctx, "GET", "/api/users/"+serverKey, requestOpts{token: token}, &u); err != nil {
		return nil, err
	}
	return rustneshinToView(u), nil
}

func (c *rustneshinClient) ListUsers(ctx context.Context, token string, page, size int, usernames []string, activate *bool) ([]UserView, error) {
	params := url.Values{}
	params.Set("page", strconv.Itoa(page))
	params.Set("size", strconv.Itoa(size))
	if len(usernames) > 0 {
		encoded, err := json.Marshal(usernames)
		if err != nil {
			return nil, fmt.Errorf("nodeclient: encode username filter: %w", err)
		}
		params.Set("username", string(encoded))
	}
	if activate != nil {
		if *activate {
			params.Set("enabled", "true")
		} else {
			params.Set("enabled", "false")
		}
	}
	var resp struct {
		Items []rustneshinUser `json:"items"`
	}
	if err := c.do(ctx, "GET", "/api/users", requestOpts{token: token, params: params}, &resp); err != nil {
		return nil, err
	}
	views := make([]UserView, 0, len(resp.Items))
	for _, u := range resp.Items {
		views = append(views, *rustneshinToView(u))
	}
	return views, nil
}

func rustneshinPayload(d DesiredUser) map[string]any {
	return map[string]any{
		"username":        d.Username,
		"key":             d.Key,
		"data_limit":      d.DataLimit,
		"service_ids":     d.ServiceIDs,
		"expire_strategy": "never",
		"data_limit_reset_strategy": "no_reset",
		"enabled":         true,
	}
}

func (c *rustneshinClient) CreateUser(ctx context.Context, d DesiredUser, token string) (*UserView, error) {
	var u rustneshinUser
	if err := c.do(ctx, "POST", "/api/users", requestOpts{token: token, body: rustneshinPayload(d)}, &u); err != nil {
		return nil, err
	}
	return rustneshinToView(u), nil
}

func (c *rustneshinClient) UpdateUser(ctx context.Context, serverKey string, d DesiredUser, token string) (*UserView, error) {
	var u rustneshinUser
	payload := rustneshinPayload(d)
	delete(payload, "username")
	delete(payload, "key")
	if err := c.do(ctx, "PUT", "/api/users/"+serverKey, requestOpts{token: token, body: payload}, &u); err != nil {
		return nil, err
	}
	return rustneshinToView(u), nil
}

func (c *rustneshinClient) DeleteUser(ctx context.Context, serverKey, token string) error {
	return c.do(ctx, "DELETE", "/api/users/"+serverKey, requestOpts{token: token}, nil)
}

func (c *rustneshinClient) ActivateUser(ctx context.Context, serverKey, token string) error {
	return c.do(ctx, "POST", "/api/users/"+serverKey+"/enable", requestOpts{token: token}, nil)
}

func (c *rustneshinClient) DeactivateUser(ctx context.Context, serverKey, token string) error {
	return c.do(ctx, "POST", "/api/users/"+serverKey+"/disable", requestOpts{token: token}, nil)
}

func (c *rustneshinClient) ResetUser(ctx context.Context, serverKey, token string) error {
	return c.do(ctx, "POST", "/api/users/"+serverKey+"/reset", requestOpts{token: token}, nil)
}

func (c *rustneshinClient) RevokeSub(ctx context.Context, serverKey, token string) error {
	return c.do(ctx, "POST", "/api/users/"+serverKey+"/revoke_sub", requestOpts{token: token}, nil)
}

func (c *rustneshinClient) UsersCount(ctx context.Context, token string) (int, error) {
	var resp struct {
		Total int `json:"total"`
	}
	if err := c.do(ctx, "GET", "/api/system/stats/users", requestOpts{token: token}, &resp); err != nil {
		return 0, err
	}
	return resp.Total, nil
}

func (c *rustneshinClient) FetchScriptedUsers(ctx context.Context, scriptURL, scriptSecret string) ([]UserView, error) {
	var resp struct {
		Users []rustneshinUser `json:"users"`
	}
	if err := doScripted(ctx, scriptURL, scriptSecret, &resp); err != nil {
		return nil, err
	}
	views := make([]UserView, 0, len(resp.Users))
	for _, u := range resp.Users {
		views = append(views, *rustneshinToView(u))
	}
	return views, nil
}

func (c *rustneshinClient) SubscriptionLinks(ctx context.Context, user *UserView, token string) ([]string, error) {
	var u rustneshinUser
	if err := c.do(ctx, "GET", "/api/users/"+user.Username, requestOpts{token: token}, &u); err != nil {
		return nil, err
	}
	if u.SubscriptionURL == "" {
		return nil, fmt.Errorf("nodeclient: rustneshin user %q has no subscription_url", user.Username)
	}
	return fetchV2raySubscription(ctx, u.SubscriptionURL)
}
