package httpapi

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strconv"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/moguard/panel/internal/cache"
	"github.com/moguard/panel/internal/config"
	"github.com/moguard/panel/internal/domain/admin"
	"github.com/moguard/panel/internal/domain/node"
	"github.com/moguard/panel/internal/domain/service"
	"github.com/moguard/panel/internal/domain/subscription"
	"github.com/moguard/panel/internal/linkgen"
	"github.com/moguard/panel/internal/notify"
)

type fakeAdminRepository struct {
	byID       map[int64]*admin.Admin
	byUsername map[string]*admin.Admin
	byAPIKey   map[string]*admin.Admin
}

func newFakeAdminRepository() *fakeAdminRepository {
	return &fakeAdminRepository{
		byID: make(map[int64]*admin.Admin), byUsername: make(map[string]*admin.Admin), byAPIKey: make(map[string]*admin.Admin),
	}
}

func (f *fakeAdminRepository) Create(ctx context.Context, a *admin.Admin) (*admin.Admin, error) {
	if _, exists := f.byUsername[a.Username()]; exists {
		return nil, assert.AnError
	}
	f.byID[a.ID()] = a
	f.byUsername[a.Username()] = a
	f.byAPIKey[a.APIKey()] = a
	return a, nil
}
func (f *fakeAdminRepository) Update(ctx context.Context, a *admin.Admin) error {
	f.byID[a.ID()] = a
	return nil
}
func (f *fakeAdminRepository) Get(ctx context.Context, id int64) (*admin.Admin, error) {
	a, ok := f.byID[id]
	if !ok {
		return nil, assert.AnError
	}
	return a, nil
}
func (f *fakeAdminRepository) GetByUsername(ctx context.Context, username string) (*admin.Admin, error) {
	a, ok := f.byUsername[username]
	if !ok {
		return nil, assert.AnError
	}
	return a, nil
}
func (f *fakeAdminRepository) GetByAPIKey(ctx context.Context, apiKey string) (*admin.Admin, error) {
	a, ok := f.byAPIKey[apiKey]
	if !ok {
		return nil, assert.AnError
	}
	return a, nil
}
func (f *fakeAdminRepository) List(ctx context.Context) ([]*admin.Admin, error) {
	out := make([]*admin.Admin, 0, len(f.byID))
	for _, a := range f.byID {
		out = append(out, a)
	}
	return out, nil
}
func (f *fakeAdminRepository) Delete(ctx context.Context, id int64) error { delete(f.byID, id); return nil }
func (f *fakeAdminRepository) AdjustCounts(ctx context.Context, id int64, countDelta, usageDelta int64) error {
	a, ok := f.byID[id]
	if !ok {
		return nil
	}
	a.AdjustCounts(countDelta, usageDelta)
	return nil
}
func (f *fakeAdminRepository) SyncCurrentCounts(ctx context.Context) error { return nil }
func (f *fakeAdminRepository) ByID(id int64) (*admin.Admin, bool) {
	a, ok := f.byID[id]
	return a, ok
}

type fakeNodeRepository struct {
	byID map[int64]*node.Node
}

func (f *fakeNodeRepository) Create(ctx context.Context, n *node.Node) (*node.Node, error) { return n, nil }
func (f *fakeNodeRepository) Update(ctx context.Context, n *node.Node) error               { return nil }
func (f *fakeNodeRepository) Get(ctx context.Context, id int64) (*node.Node, error)        { return nil, nil }
func (f *fakeNodeRepository) List(ctx context.Context) ([]*node.Node, error)               { return nil, nil }
func (f *fakeNodeRepository) ListAvailable(ctx context.Context) ([]*node.Node, error)      { return nil, nil }
func (f *fakeNodeRepository) Delete(ctx context.Context, id int64) error                   { return nil }
func (f *fakeNodeRepository) UpdateAccess(ctx context.Context, id int64, token string, at time.Time) error {
	return nil
}

type fakeServiceRepository struct{}

func (f *fakeServiceRepository) Create(ctx context.Context, s *service.Service) (*service.Service, error) {
	return s, nil
}
func (f *fakeServiceRepository) Update(ctx context.Context, s *service.Service) error     { return nil }
func (f *fakeServiceRepository) Get(ctx context.Context, id int64) (*service.Service, error) {
	return nil, nil
}
func (f *fakeServiceRepository) List(ctx context.Context) ([]*service.Service, error) { return nil, nil }
func (f *fakeServiceRepository) ListByIDs(ctx context.Context, ids []int64) ([]*service.Service, error) {
	return nil, nil
}
func (f *fakeServiceRepository) Delete(ctx context.Context, id int64) error { return nil }

type fakeSubscriptionRepository struct {
	byUsername map[string]*subscription.Subscription
}

func newFakeSubscriptionRepository() *fakeSubscriptionRepository {
	return &fakeSubscriptionRepository{byUsername: make(map[string]*subscription.Subscription)}
}

func (f *fakeSubscriptionRepository) Create(ctx context.Context, s *subscription.Subscription) (*subscription.Subscription, error) {
	f.byUsername[s.Username()] = s
	return s, nil
}
func (f *fakeSubscriptionRepository) Update(ctx context.Context, s *subscription.Subscription) error {
	f.byUsername[s.Username()] = s
	return nil
}
func (f *fakeSubscriptionRepository) Get(ctx context.Context, id int64) (*subscription.Subscription, error) {
	for _, s := range f.byUsername {
		if s.ID() == id {
			return s, nil
		}
	}
	return nil, assert.AnError
}
func (f *fakeSubscriptionRepository) GetByUsername(ctx context.Context, username string) (*subscription.Subscription, error) {
	s, ok := f.byUsername[username]
	if !ok {
		return nil, assert.AnError
	}
	return s, nil
}
func (f *fakeSubscriptionRepository) GetByAccessKey(ctx context.Context, accessKey string) (*subscription.Subscription, error) {
	for _, s := range f.byUsername {
		if s.AccessKey() == accessKey {
			return s, nil
		}
	}
	return nil, assert.AnError
}
func (f *fakeSubscriptionRepository) ListActive(ctx context.Context) ([]*subscription.Subscription, error) {
	return nil, nil
}
func (f *fakeSubscriptionRepository) ListByOwner(ctx context.Context, ownerID int64) ([]*subscription.Subscription, error) {
	return nil, nil
}
func (f *fakeSubscriptionRepository) ListReachedOlderThan(ctx context.Context, cutoff time.Time, limit int) ([]*subscription.Subscription, error) {
	return nil, nil
}
func (f *fakeSubscriptionRepository) ListFiltered(ctx context.Context, filter subscription.Filter, now time.Time) ([]*subscription.Subscription, int64, error) {
	out := make([]*subscription.Subscription, 0, len(f.byUsername))
	for _, s := range f.byUsername {
		out = append(out, s)
	}
	return out, int64(len(out)), nil
}
func (f *fakeSubscriptionRepository) Stats(ctx context.Context, now time.Time) (subscription.Stats, error) {
	return subscription.Stats{Total: int64(len(f.byUsername))}, nil
}
func (f *fakeSubscriptionRepository) BulkCreate(ctx context.Context, subs []*subscription.Subscription) error {
	for _, s := range subs {
		if _, exists := f.byUsername[s.Username()]; exists {
			return assert.AnError
		}
	}
	for _, s := range subs {
		f.byUsername[s.Username()] = s
	}
	return nil
}
func (f *fakeSubscriptionRepository) Delete(ctx context.Context, id int64) error { return nil }

func newTestServer(t *testing.T) (*Server, *fakeAdminRepository, *fakeSubscriptionRepository) {
	t.Helper()
	admins := newFakeAdminRepository()
	nodes := &fakeNodeRepository{}
	services := &fakeServiceRepository{}
	subs := newFakeSubscriptionRepository()
	links := cache.NewLinksCache()
	gen := linkgen.New(nodes, services, links)
	notifier := notify.New(4, admins)

	cfg := &config.AuthConfig{JWTSecret: "test-secret", JWTTTL: time.Hour}
	s := NewServer(cfg, admins, nodes, services, subs, links, gen, notifier)
	return s, admins, subs
}

var nextTestAdminID int64

func seedAdmin(t *testing.T, admins *fakeAdminRepository, id int64, username, password string, role admin.Role) *admin.Admin {
	t.Helper()
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.MinCost)
	require.NoError(t, err)
	now := time.Now().UTC()
	a := admin.Reconstruct(
		id, username, string(hash), role, username+"-api-key", username+"-secret",
		true, true, true,
		0, 0, 0, 0,
		0, 0,
		nil, admin.Presentation{}, admin.NotifySinks{}, admin.TOTPState{},
		false, now, now,
	)
	created, err := admins.Create(context.Background(), a)
	require.NoError(t, err)
	return created
}

func seedOwner(t *testing.T, admins *fakeAdminRepository, username, password string) *admin.Admin {
	t.Helper()
	nextTestAdminID++
	return seedAdmin(t, admins, nextTestAdminID, username, password, admin.RoleOwner)
}

func doJSON(t *testing.T, s *Server, method, path string, body any, headers map[string]string) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	rec := httptest.NewRecorder()
	s.engine.ServeHTTP(rec, req)
	return rec
}

func TestAdminLoginRejectsUnknownUsername(t *testing.T) {
	s, _, _ := newTestServer(t)
	req := httptest.NewRequest(http.MethodPost, "/api/admins/token", bytes.NewBufferString("username=nobody&password=wrong"))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	rec := httptest.NewRecorder()
	s.engine.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestRequireAuthRejectsMissingCredentials(t *testing.T) {
	s, _, _ := newTestServer(t)
	rec := doJSON(t, s, http.MethodGet, "/api/subscriptions", nil, nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestRequireAuthAcceptsAPIKey(t *testing.T) {
	s, admins, _ := newTestServer(t)
	owner := seedOwner(t, admins, "root", "hunter2pass")

	rec := doJSON(t, s, http.MethodGet, "/api/subscriptions", nil, map[string]string{"X-API-Key": owner.APIKey()})
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestBulkCreateSubscriptionsRejectsDuplicateUsernames(t *testing.T) {
	s, admins, _ := newTestServer(t)
	owner := seedOwner(t, admins, "root", "hunter2pass")

	body := []map[string]any{
		{"username": "alice123", "limit_usage": 0, "limit_expire": 0},
		{"username": "alice123", "limit_usage": 0, "limit_expire": 0},
	}
	rec := doJSON(t, s, http.MethodPost, "/api/subscriptions", body, map[string]string{"X-API-Key": owner.APIKey()})
	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
}

func TestBulkCreateThenListSubscriptions(t *testing.T) {
	s, admins, subs := newTestServer(t)
	owner := seedOwner(t, admins, "root", "hunter2pass")

	body := []map[string]any{
		{"username": "alice123", "limit_usage": 1000, "limit_expire": 0},
	}
	rec := doJSON(t, s, http.MethodPost, "/api/subscriptions", body, map[string]string{"X-API-Key": owner.APIKey()})
	require.Equal(t, http.StatusOK, rec.Code)

	_, err := subs.GetByUsername(context.Background(), "alice123")
	require.NoError(t, err)

	listRec := doJSON(t, s, http.MethodGet, "/api/subscriptions", nil, map[string]string{"X-API-Key": owner.APIKey()})
	assert.Equal(t, http.StatusOK, listRec.Code)
}

func TestDeleteAdminRequiresOwnerRole(t *testing.T) {
	s, admins, _ := newTestServer(t)
	owner := seedOwner(t, admins, "root", "hunter2pass")
	nextTestAdminID++
	seller := seedAdmin(t, admins, nextTestAdminID, "seller1", "sellerpass1", admin.RoleSeller)

	path := "/api/admins/" + strconv.FormatInt(seller.ID(), 10)
	rec := doJSON(t, s, http.MethodDelete, path, nil, map[string]string{"X-API-Key": seller.APIKey()})
	assert.Equal(t, http.StatusForbidden, rec.Code)

	rec = doJSON(t, s, http.MethodDelete, path, nil, map[string]string{"X-API-Key": owner.APIKey()})
	assert.Equal(t, http.StatusOK, rec.Code)
}
