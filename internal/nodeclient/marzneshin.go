package nodeclient

import (
	"context"
	"fmt"
	"net/url"
	"strconv"
	"time"
)

// marzneshinClient implements Client for the marzneshin dialect (§4.D).
type marzneshinClient struct {
	transport
}

// NewMarzneshin constructs a marzneshin dialect client.
func NewMarzneshin(host string) Client {
	return &marzneshinClient{transport: newTransport(host)}
}

type marzneshinToken struct {
	AccessToken string `json:"access_token"`
	IsSudo      bool   `json:"is_sudo"`
}

type marzneshinUser struct {
	Username            string    `json:"username"`
	Key                 string    `json:"key"`
	IsActive            bool      `json:"is_active"`
	DataLimit           *int64    `json:"data_limit"`
	LifetimeUsedTraffic *int64    `json:"lifetime_used_traffic"`
	UsedTraffic         *int64    `json:"used_traffic"`
	SubscriptionURL     string    `json:"subscription_url"`
	ServiceIDs          []int64   `json:"service_ids"`
	Enabled             bool      `json:"enabled"`
	CreatedAt           time.Time `json:"created_at"`
}

func marzneshinToView(u marzneshinUser) *UserView {
	var lifetime int64
	if u.LifetimeUsedTraffic != nil {
		lifetime = *u.LifetimeUsedTraffic
	}
	return &UserView{
		Username:            u.Username,
		IsActive:            u.IsActive,
		LifetimeUsedTraffic: lifetime,
		CreatedAt:           u.CreatedAt,
		ServiceIDs:          u.ServiceIDs,
	}
}

func (c *marzneshinClient) Login(ctx context.Context, username, password string) (string, error) {
	var tok marzneshinToken
	body := map[string]string{
		"grant_type": "password", "username": username, "password": password,
		"scope": "", "client_id": "", "client_secret": "",
	}
	if err := c.do(ctx, "POST", "/api/admins/token", requestOpts{body: body}, &tok); err != nil {
		return "", err
	}
	return tok.AccessToken, nil
}

func (c *marzneshinClient) GetAdminIsActive(ctx context.Context, username, token string) (bool, error) {
	var admin struct {
		IsSudo  bool `json:"is_sudo"`
		Enabled bool `json:"enabled"`
	}
	if err := c.do(ctx, "GET", "/api/admins/"+username, requestOpts{token: token}, &admin); err != nil {
		return false, err
	}
	return admin.IsSudo && admin.Enabled, nil
}

func (c *marzneshinClient) GetInboundsOrServices(ctx context.Context, token string) ([]InboundOrService, error) {
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

func (c *marzneshinClient) GetUser(ctx context.Context, serverKey, token string) (*UserView, error) {
	var u marzneshinUser
	if err := c.do(ctx, "GET", "/api/users/"+serverKey, requestOpts{token: token}, &u); err != nil {
		return nil, err
	}
	return marzneshinToView(u), nil
}

func (c *marzneshinClient) ListUsers(ctx context.Context, token string, page, size int, usernames []string, activate *bool) ([]UserView, error) {
	params := url.Values{}
	params.Set("page", strconv.Itoa(page))
	params.Set("size", strconv.Itoa(size))
	for _, u := range usernames {
		params.Add("username", u)
	}
	if activate != nil {
		if *activate {
			params.Set("enabled", "true")
		} else {
			params.Set("enabled", "false")
		}
	}
	var resp struct {
		Items []marzneshinUser `json:"items"`
	}
	if err := c.do(ctx, "GET", "/api/users", requestOpts{token: token, params: params}, &resp); err != nil {
		return nil, err
	}
	views := make([]UserView, 0, len(resp.Items))
	for _, u := range resp.Items {
		views = append(views, *marzneshinToView(u))
	}
	return views, nil
}

func marzneshinPayload(d DesiredUser) map[string]any {
	return map[string]any{
		"username":       d.Username,
		"key":            d.Key,
		"data_limit":     d.DataLimit,
		"service_ids":    d.ServiceIDs,
		"expire_strategy": "never",
		"enabled":        true,
	}
}

func (c *marzneshinClient) CreateUser(ctx context.Context, d DesiredUser, token string) (*UserView, error) {
	var u marzneshinUser
	if err := c.do(ctx, "POST", "/api/users", requestOpts{token: token, body: marzneshinPayload(d)}, &u); err != nil {
		return nil, err
	}
	return marzneshinToView(u), nil
}

func (c *marzneshinClient) UpdateUser(ctx context.Context, serverKey string, d DesiredUser, token string) (*UserView, error) {
	var u marzneshinUser
	payload := marzneshinPayload(d)
	delete(payload, "username")
	delete(payload, "key")
	if err := c.do(ctx, "PUT", "/api/users/"+serverKey, requestOpts{token: token, body: payload}, &u); err != nil {
		return nil, err
	}
	return marzneshinToView(u), nil
}

func (c *marzneshinClient) DeleteUser(ctx context.Context, serverKey, token string) error {
	return c.do(ctx, "DELETE", "/api/users/"+serverKey, requestOpts{token: token}, nil)
}

func (c *marzneshinClient) ActivateUser(ctx context.Context, serverKey, token string) error {
	return c.do(ctx, "POST", "/api/users/"+serverKey+"/enable", requestOpts{token: token}, nil)
}

func (c *marzneshinClient) DeactivateUser(ctx context.Context, serverKey, token string) error {
	return c.do(ctx, "POST", "/api/users/"+serverKey+"/disable", requestOpts{token: token}, nil)
}

func (c *marzneshinClient) ResetUser(ctx context.Context, serverKey, token string) error {
	return c.do(ctx, "POST", "/api/users/"+serverKey+"/reset", requestOpts{token: token}, nil)
}

func (c *marzneshinClient) RevokeSub(ctx context.Context, serverKey, token string) error {
	return c.do(ctx, "POST", "/api/users/"+serverKey+"/revoke_sub", requestOpts{token: token}, nil)
}

func (c *marzneshinClient) UsersCount(ctx context.Context, token string) (int, error) {
	var resp struct {
		Total int `json:"total"`
	}
	if err := c.do(ctx, "GET", "/api/system/stats/users", requestOpts{token: token}, &resp); err != nil {
		return 0, err
	}
	return resp.Total, nil
}

func (c *marzneshinClient) FetchScriptedUsers(ctx context.Context, scriptURL, scriptSecret string) ([]UserView, error) {
	var resp struct {
		Users []marzneshinUser `json:"users"`
	}
	if err := doScripted(ctx, scriptURL, scriptSecret, &resp); err != nil {
		return nil, err
	}
	views := make([]UserView, 0, len(resp.Users))
	for _, u := range resp.Users {
		views = append(views, *marzneshinToView(u))
	}
	return views, nil
}

// SubscriptionLinks fetches the node's v2ray-formatted subscription payload
// and splits it into individual links (§4.D step 5: marzneshin/rustneshin
// serve links at subscription_url + "/v2ray", newline-delimited base64).
func (c *marzneshinClient) SubscriptionLinks(ctx context.Context, user *UserView, token string) ([]string, error) {
	var u marzneshinUser
	if err := c.do(ctx, "GET", "/api/users/"+user.Username, requestOpts{token: token}, &u); err != nil {
		return nil, err
	}
	if u.SubscriptionURL == "" {
		return nil, fmt.Errorf("nodeclient: marzneshin user %q has no subscription_url", user.Username)
	}
	return fetchV2raySubscription(ctx, u.SubscriptionURL)
}
