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

func TestMarzbanLoginAndCreateUser(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch {
		case r.URL.Path == "/api/admin/token":
			_ = json.NewEncoder(w).Encode(map[string]string{"access_token": "tok-123"})
		case r.URL.Path == "/api/user" && r.Method == http.MethodPost:
			assert.Equal(t, "Bearer tok-123", r.Header.Get("Authorization"))
			var body map[string]any
			require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
			assert.Equal(t, "alice", body["username"])
			_ = json.NewEncoder(w).Encode(map[string]any{
				"username": "alice", "status": "active", "lifetime_used_traffic": 0,
			})
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	}))
	defer srv.Close()

	c := NewMarzban(srv.URL)
	ctx := context.Background()

	tok, err := c.Login(ctx, "admin", "pw")
	require.NoError(t, err)
	assert.Equal(t, "tok-123", tok)

	view, err := c.CreateUser(ctx, DesiredUser{Username: "alice", Proxies: map[string]string{"vless": "uuid-1"}}, tok)
	require.NoError(t, err)
	assert.True(t, view.IsActive)
	assert.Equal(t, "alice", view.Username)
}

func TestMarzbanUpstreamErrorBecomesSentinel(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
	}))
	defer srv.Close()

	c := NewMarzban(srv.URL)
	_, err := c.GetUser(context.Background(), "alice", "bad-token")
	assert.ErrorIs(t, err, ErrUpstreamFailed)
}

func TestMarzbanUsersCount(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(map[string]int{"total_user": 42})
	}))
	defer srv.Close()

	c := NewMarzban(srv.URL)
	n, err := c.UsersCount(context.Background(), "tok")
	require.NoError(t, err)
	assert.Equal(t, 42, n)
}
