package notify

import (
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/moguard/panel/internal/domain/admin"
)

func TestHTMLToDiscordMarkdown(t *testing.T) {
	in := "<b>bold</b> and <i>italic</i> and <code>code</code>"
	out := htmlToDiscordMarkdown(in)
	assert.Equal(t, "**bold** and *italic* and `code`", out)
}

type fakeAdminLookup struct {
	admins map[int64]*admin.Admin
}

func (f *fakeAdminLookup) ByID(id int64) (*admin.Admin, bool) {
	a, ok := f.admins[id]
	return a, ok
}

func TestDispatcherDeliversToDiscordWebhook(t *testing.T) {
	var mu sync.Mutex
	var received string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		received = "hit"
		mu.Unlock()
		w.WriteHeader(http.StatusNoContent)
	}))
	defer srv.Close()

	now := time.Now().UTC()
	a := admin.Reconstruct(
		1, "alice", "hash", admin.RoleSeller, "key", "secret",
		true, true, true,
		0, 0, 0, 0,
		1, 90,
		nil, admin.Presentation{},
		admin.NotifySinks{DiscordEnabled: true, DiscordWebhookURL: srv.URL},
		admin.TOTPState{}, false, now, now,
	)
	lookup := &fakeAdminLookup{admins: map[int64]*admin.Admin{1: a}}

	d := New(8, lookup)
	defer d.Close()

	d.Notify(Event{AdminID: 1, Level: LevelWarning, Title: "usage near limit", Body: "90%"})

	assert.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return received == "hit"
	}, time.Second, 10*time.Millisecond)
}

func TestDispatcherDropsOnFullQueueWithoutBlocking(t *testing.T) {
	d := New(1, &fakeAdminLookup{admins: map[int64]*admin.Admin{}})
	defer d.Close()

	for i := 0; i < 10; i++ {
		d.Notify(Event{Title: "event"})
	}
}
