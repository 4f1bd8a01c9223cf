package httpapi

import (
	"context"
	"encoding/base64"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/moguard/panel/internal/domain/admin"
	"github.com/moguard/panel/internal/domain/subscription"
	"github.com/moguard/panel/internal/notify"
	"github.com/moguard/panel/internal/shared/token"
)

// handleSubscriptionLink serves the client-facing link bundle (§6 `GET
// /{tag}/{secret}`). tag is currently unused beyond shape validation: the
// subscription is resolved by its access_key alone, mirroring the original
// design where the tag only selects a URL namespace for reverse proxies.
func (s *Server) handleSubscriptionLink(c *gin.Context) {
	tag := c.Param("tag")
	secret := c.Param("secret")
	if !admin.ValidAccessTag(tag) {
		c.Status(404)
		return
	}

	sub, err := s.subs.GetByAccessKey(c.Request.Context(), secret)
	if err != nil {
		c.Status(404)
		return
	}
	owner, err := s.admins.Get(c.Request.Context(), sub.OwnerID())
	if err != nil {
		owner = nil
	}

	now := time.Now().UTC()
	links, err := s.gen.Generate(c.Request.Context(), sub, owner, now)
	if err != nil {
		respondError(c, err)
		return
	}

	s.setSubscriptionHeaders(c, sub, owner, now)
	go s.recordClientHitAndMaybeRevoke(sub.ID(), c.Request.UserAgent())

	c.Data(200, "text/plain; charset=utf-8", []byte(strings.Join(links, "\n")))
}

// handleSubscriptionInfo returns the same subscription as JSON (§6 `GET
// /{tag}/{secret}/info`).
func (s *Server) handleSubscriptionInfo(c *gin.Context) {
	tag := c.Param("tag")
	if !admin.ValidAccessTag(tag) {
		c.Status(404)
		return
	}
	sub, err := s.subs.GetByAccessKey(c.Request.Context(), c.Param("secret"))
	if err != nil {
		c.Status(404)
		return
	}
	respondJSON(c, 200, subscriptionResponse(sub, time.Now().UTC()))
}

func (s *Server) setSubscriptionHeaders(c *gin.Context, sub *subscription.Subscription, owner *admin.Admin, now time.Time) {
	var p admin.Presentation
	if owner != nil {
		p = owner.Presentation()
	}
	updateInterval := p.UpdateInterval
	if updateInterval <= 0 {
		updateInterval = 1
	}
	expire := sub.LimitExpire()
	if expire <= 0 {
		expire = 0
	}

	c.Header("profile-web-page-url", p.AccessPrefix)
	c.Header("support-url", p.SupportURL)
	c.Header("profile-title", "base64:"+base64.StdEncoding.EncodeToString([]byte(p.AccessTitle)))
	c.Header("profile-update-interval", strconv.Itoa(updateInterval))
	c.Header("subscription-userinfo", fmt.Sprintf("upload=0; download=%d; total=%d; expire=%d",
		sub.CurrentUsage(), sub.LimitUsage(), expire))
	c.Header("announce", "base64:"+base64.StdEncoding.EncodeToString([]byte(p.Announce)))
	c.Header("announce-url", p.AnnounceURL)
}

// recordClientHitAndMaybeRevoke runs the two background side effects a hit
// triggers (§6): last_request_at/last_client_agent stamping (with a
// first-hit notification), and a one-time credential rotation the first
// time this subscription is ever seen with changed=false.
func (s *Server) recordClientHitAndMaybeRevoke(subID int64, userAgent string) {
	ctx := context.Background()
	sub, err := s.subs.Get(ctx, subID)
	if err != nil {
		return
	}
	now := time.Now().UTC()
	firstHit := sub.RecordClientHit(userAgent, now)
	if !sub.Changed() {
		sub.MarkChanged()
		sub.Revoke(token.Secret(), now)
	}
	if err := s.subs.Update(ctx, sub); err != nil {
		return
	}
	if firstHit && s.notify != nil {
		s.notify.Notify(notify.Event{
			AdminID: sub.OwnerID(), Level: notify.LevelInfo,
			Title: "first_requested_subscription", Body: sub.Username(),
		})
	}
}
