package nodeclient

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRustneshinListUsersEncodesUsernameFilterAsJSON(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, `["alice","bob"]`, r.URL.Query().Get("username"))
		_ = json.NewEncoder(w).Encode(map[string]any{"items": []map[string]any{
			{"username": "alice", "is_active": true, "lifetime_used_traffic": 10, "service_ids": []int64{1}},
		}})
	}))
	defer srv.Close()

	c := NewRustneshin(srv.URL)
	views, err := c.ListUsers(context.Background(), "tok", 1, 50, []string{"alice", "bob"}, nil)
	require.NoError(t, err)
	require.Len(t, views, 1)
	assert.Equal(t, "alice", views[0].Username)
}

func TestRustneshinSubscriptionLinksDecodesBase64(t *testing.T) {
	var linksServer *httptest.Server
	linksServer = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/v2ray" {
			_, _ = w.Write([]byte("dmxlc3M6Ly9leGFtcGxlLTEKdmxlc3M6Ly9leGFtcGxlLTI="))
			return
		}
		_ = json.NewEncoder(w).Encode(map[string]any{
			"username": "alice", "subscription_url": linksServer.URL, "service_ids": []int64{1},
		})
	}))
	defer linksServer.Close()

	c := NewRustneshin(linksServer.URL)
	links, err := c.SubscriptionLinks(context.Background(), &UserView{Username: "alice"}, "tok")
	require.NoError(t, err)
	assert.Len(t, links, 2)
}
