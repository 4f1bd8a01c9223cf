package nodeclient

import (
	"context"
	"fmt"
	"net/url"
	"strconv"
	"time"
)

// marzbanClient implements Client for the marzban dialect (§4.B).
type marzbanClient struct {
	transport
}

// NewMarzban constructs a marzban dialect client.
func NewMarzban(host string) Client {
	return &marzbanClient{transport: newTransport(host)}
}

type marzbanToken struct {
	AccessToken string `json:"access_token"`
}

type marzbanUser struct {
	Username            string              `json:"username"`
	Proxies             map[string]any      `json:"proxies"`
	Expire              *int64              `json:"expire"`
	DataLimit           *int64              `json:"data_limit"`
	Inbounds            map[string][]string `json:"inbounds"`
	Status              string              `json:"status"`
	LifetimeUsedTraffic int64               `json:"lifetime_used_traffic"`
	SubscriptionURL     string              `json:"subscription_url"`
	Links               []string            `json:"links"`
	CreatedAt           time.Time           `json:"created_at"`
}

func (u marzbanUser) isActive() bool {
	return u.Status == "active" || u.Status == "on_hold"
}

func (c *marzbanClient) Login(ctx context.Context, username, password string) (string, error) {
	var tok marzbanToken
	body := map[string]string{
		"grant_type": "password", "username": username, "password": password,
		"scope": "", "client_id": "", "client_secret": "",
	}
	if err := c.do(ctx, "POST", "/api/admin/token", requestOpts{body: body}, &tok); err != nil {
		return "", err
	}
	return tok.AccessToken, nil
}

func (c *marzbanClient) GetAdminIsActive(ctx context.Context, username, token string) (bool, error) {
	var admin struct {
		IsSudo bool `json:"is_sudo"`
	}
	if err := c.do(ctx, "GET", "/api/admin/"+username, requestOpts{token: token}, &admin); err != nil {
		return false, err
	}
	return admin.IsSudo, nil
}

func (c *marzbanClient) GetInboundsOrServices(ctx context.Context, token string) ([]InboundOrService, error) {
	var inbounds map[string][]struct {
		Tag      string `json:"tag"`
		Protocol string `json:"protocol"`
	}
	if err := c.do(ctx, "GET", "/api/inbounds", requestOpts{token: token}, &inbounds); err != nil {
		return nil, err
	}
	var out []InboundOrService
	for _, list := range inbounds {
		for _, ib := range list {
			out = append(out, InboundOrService{Protocol: ib.Protocol, Tag: ib.Tag})
		}
	}
	return out, nil
}

func toUserView(u marzbanUser) *UserView {
	proxies := map[string]string{}
	for proto, raw := range u.Proxies {
		if m, ok := raw.(map[string]any); ok {
			if id, ok := m["id"].(string); ok {
				proxies[proto] = id
			} else if pw, ok := m["password"].(string); ok {
				proxies[proto] = pw
			}
		}
	}
	return &UserView{
		Username:            u.Username,
		IsActive:            u.isActive(),
		LifetimeUsedTraffic: u.LifetimeUsedTraffic,
		CreatedAt:           u.CreatedAt,
		Proxies:             proxies,
		Inbounds:            u.Inbounds,
	}
}

func (c *marzbanClient) GetUser(ctx context.Context, serverKey, token string) (*UserView, error) {
	var u marzbanUser
	if err := c.do(ctx, "GET", "/api/user/"+serverKey, requestOpts{token: token}, &u); err != nil {
		return nil, err
	}
	return toUserView(u), nil
}

func (c *marzbanClient) ListUsers(ctx context.Context, token string, page, size int, usernames []string, activate *bool) ([]UserView, error) {
	params := url.Values{}
	params.Set("offset", strconv.Itoa((page-1)*size))
	params.Set("limit", strconv.Itoa(size))
	for _, u := range usernames {
		params.Add("username", u)
	}
	if activate != nil {
		if *activate {
			params.Set("status", "active")
		} else {
			params.Set("status", "disabled")
		}
	}
	var resp struct {
		Users []marzbanUser `json:"users"`
	}
	if err := c.do(ctx, "GET", "/api/users", requestOpts{token: token, params: params}, &resp); err != nil {
		return nil, err
	}
	views := make([]UserView, 0, len(resp.Users))
	for _, u := range resp.Users {
		views = append(views, *toUserView(u))
	}
	return views, nil
}

func marzbanPayload(d DesiredUser) map[string]any {
	proxies := map[string]any{}
	for proto, cred := range d.Proxies {
		switch proto {
		case "shadowsocks", "trojan":
			proxies[proto] = map[string]string{"password": cred}
		default:
			proxies[proto] = map[string]string{"id": cred}
		}
	}
	return map[string]any{
		"username":   d.Username,
		"proxies":    proxies,
		"inbounds":   d.Inbounds,
		"data_limit": d.DataLimit,
		"status":     "active",
		"expire":     0,
	}
}

func (c *marzbanClient) CreateUser(ctx context.Context, d DesiredUser, token string) (*UserView, error) {
	var u marzbanUser
	if err := c.do(ctx, "POST", "/api/user", requestOpts{token: token, body: marzbanPayload(d)}, &u); err != nil {
		return nil, err
	}
	return toUserView(u), nil
}

func (c *marzbanClient) UpdateUser(ctx context.Context, serverKey string, d DesiredUser, token string) (*UserView, error) {
	var u marzbanUser
	payload := marzbanPayload(d)
	delete(payload, "username")
	if err := c.do(ctx, "PUT", "/api/user/"+serverKey, requestOpts{token: token, body: payload}, &u); err != nil {
		return nil, err
	}
	return toUserView(u), nil
}

func (c *marzbanClient) DeleteUser(ctx context.Context, serverKey, token string) error {
	return c.do(ctx, "DELETE", "/api/user/"+serverKey, requestOpts{token: token}, nil)
}

func (c *marzbanClient) ActivateUser(ctx context.Context, serverKey, token string) error {
	return c.do(ctx, "PUT", "/api/user/"+serverKey, requestOpts{token: token, body: map[string]string{"status": "active"}}, nil)
}

func (c *marzbanClient) DeactivateUser(ctx context.Context, serverKey, token string) error {
	return c.do(ctx, "PUT", "/api/user/"+serverKey, requestOpts{token: token, body: map[string]string{"status": "disabled"}}, nil)
}

func (c *marzbanClient) ResetUser(ctx context.Context, serverKey, token string) error {
	return c.do(ctx, "POST", "/api/user/"+serverKey+"/reset", requestOpts{token: token}, nil)
}

func (c *marzbanClient) RevokeSub(ctx context.Context, serverKey, token string) error {
	return c.do(ctx, "POST", "/api/user/"+serverKey+"/revoke_sub", requestOpts{token: token}, nil)
}

func (c *marzbanClient) UsersCount(ctx context.Context, token string) (int, error) {
	var resp struct {
		TotalUser int `json:"total_user"`
	}
	if err := c.do(ctx, "GET", "/api/system", requestOpts{token: token}, &resp); err != nil {
		return 0, err
	}
	return resp.TotalUser, nil
}

func (c *marzbanClient) FetchScriptedUsers(ctx context.Context, scriptURL, scriptSecret string) ([]UserView, error) {
	var resp struct {
		Users []marzbanUser `json:"users"`
	}
	if err := doScripted(ctx, scriptURL, scriptSecret, &resp); err != nil {
		return nil, err
	}
	views := make([]UserView, 0, len(resp.Users))
	for _, u := range resp.Users {
		views = append(views, *toUserView(u))
	}
	return views, nil
}

func (c *marzbanClient) SubscriptionLinks(ctx context.Context, user *UserView, token string) ([]string, error) {
	var u marzbanUser
	if err := c.do(ctx, "GET", "/api/user/"+user.Username, requestOpts{token: token}, &u); err != nil {
		return nil, err
	}
	if len(u.Links) == 0 {
		return nil, fmt.Errorf("nodeclient: marzban user %q has no links", user.Username)
	}
	return u.Links, nil
}
