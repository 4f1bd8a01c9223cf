package httpapi

import (
	"time"

	"github.com/gin-gonic/gin"

	"github.com/moguard/panel/internal/domain/subscription"
	"github.com/moguard/panel/internal/httpapi/middleware"
	apperrors "github.com/moguard/panel/internal/shared/errors"
	"github.com/moguard/panel/internal/shared/token"
)

func (s *Server) handleListSubscriptions(c *gin.Context) {
	f := subscription.Filter{
		Search:  c.Query("search"),
		OrderBy: c.Query("order_by"),
	}
	f.Limited = parseOptionalBool(c.Query("limited"))
	f.Expired = parseOptionalBool(c.Query("expired"))
	f.IsActive = parseOptionalBool(c.Query("is_active"))
	f.Enabled = parseOptionalBool(c.Query("enabled"))
	f.Online = parseOptionalBool(c.Query("online"))
	f.Page = parseOptionalInt(c.Query("page"), 1)
	f.Size = parseOptionalInt(c.Query("size"), 50)

	now := time.Now().UTC()
	subs, total, err := s.subs.ListFiltered(c.Request.Context(), f, now)
	if err != nil {
		respondError(c, err)
		return
	}
	respondJSON(c, 200, gin.H{"items": subscriptionResponses(subs, now), "total": total, "page": f.Page, "size": f.Size})
}

func (s *Server) handleCountSubscriptions(c *gin.Context) {
	now := time.Now().UTC()
	stats, err := s.subs.Stats(c.Request.Context(), now)
	if err != nil {
		respondError(c, err)
		return
	}
	respondJSON(c, 200, gin.H{"total": stats.Total})
}

func (s *Server) handleSubscriptionStats(c *gin.Context) {
	now := time.Now().UTC()
	stats, err := s.subs.Stats(c.Request.Context(), now)
	if err != nil {
		respondError(c, err)
		return
	}
	respondJSON(c, 200, stats)
}

type subscriptionCreateRequest struct {
	Username       string  `json:"username" binding:"required"`
	LimitUsage     int64   `json:"limit_usage"`
	LimitExpire    int64   `json:"limit_expire"`
	AutoDeleteDays int     `json:"auto_delete_days"`
	Note           string  `json:"note"`
	ServiceIDs     []int64 `json:"service_ids"`
}

// handleBulkCreateSubscriptions validates the ≤20, no-duplicate-username
// batch invariant (§6) before any row is persisted.
func (s *Server) handleBulkCreateSubscriptions(c *gin.Context) {
	var items []subscriptionCreateRequest
	if err := c.ShouldBindJSON(&items); err != nil {
		respondBindError(c, err)
		return
	}
	if len(items) == 0 || len(items) > 20 {
		respondError(c, apperrors.NewValidationError("must submit between 1 and 20 subscriptions"))
		return
	}
	seen := make(map[string]bool, len(items))
	for _, item := range items {
		if seen[item.Username] {
			respondError(c, apperrors.NewValidationError("duplicate username in batch", item.Username))
			return
		}
		seen[item.Username] = true
	}

	caller := middleware.CurrentAdmin(c)
	subs := make([]*subscription.Subscription, 0, len(items))
	for _, item := range items {
		sub, err := subscription.New(item.Username, caller.ID(), token.Secret(), token.ServerKey(),
			item.LimitUsage, item.LimitExpire, item.AutoDeleteDays, item.Note, item.ServiceIDs)
		if err != nil {
			respondError(c, err)
			return
		}
		subs = append(subs, sub)
	}
	if err := s.subs.BulkCreate(c.Request.Context(), subs); err != nil {
		respondError(c, apperrors.NewConflictError("one or more usernames already exist"))
		return
	}
	if err := s.admins.AdjustCounts(c.Request.Context(), caller.ID(), int64(len(subs)), 0); err != nil {
		respondError(c, err)
		return
	}
	respondJSON(c, 200, subscriptionResponses(subs, time.Now().UTC()))
}

func (s *Server) handleGetSubscription(c *gin.Context) {
	sub, err := s.subs.GetByUsername(c.Request.Context(), c.Param("username"))
	if err != nil {
		respondError(c, apperrors.NewNotFoundError("subscription not found"))
		return
	}
	respondJSON(c, 200, subscriptionResponse(sub, time.Now().UTC()))
}

type subscriptionUpdateRequest struct {
	LimitUsage     int64   `json:"limit_usage"`
	LimitExpire    int64   `json:"limit_expire"`
	AutoDeleteDays int     `json:"auto_delete_days"`
	Note           string  `json:"note"`
	ServiceIDs     []int64 `json:"service_ids"`
}

func (s *Server) handleUpdateSubscription(c *gin.Context) {
	var req subscriptionUpdateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondBindError(c, err)
		return
	}
	sub, err := s.subs.GetByUsername(c.Request.Context(), c.Param("username"))
	if err != nil {
		respondError(c, apperrors.NewNotFoundError("subscription not found"))
		return
	}
	sub.Update(req.LimitUsage, req.LimitExpire, req.AutoDeleteDays, req.Note, req.ServiceIDs)
	if err := s.subs.Update(c.Request.Context(), sub); err != nil {
		respondError(c, err)
		return
	}
	respondJSON(c, 200, subscriptionResponse(sub, time.Now().UTC()))
}

// handleDeleteSubscription soft-deletes and decrements the owner's
// current_count, the owner-side side effect of remove (§4.A remove).
func (s *Server) handleDeleteSubscription(c *gin.Context) {
	sub, err := s.subs.GetByUsername(c.Request.Context(), c.Param("username"))
	if err != nil {
		respondError(c, apperrors.NewNotFoundError("subscription not found"))
		return
	}
	sub.MarkRemoved(time.Now().UTC())
	if err := s.subs.Update(c.Request.Context(), sub); err != nil {
		respondError(c, err)
		return
	}
	if err := s.admins.AdjustCounts(c.Request.Context(), sub.OwnerID(), -1, 0); err != nil {
		respondError(c, err)
		return
	}
	respondJSON(c, 200, gin.H{"detail": "removed"})
}

type usernamesRequest struct {
	Usernames []string `json:"usernames" binding:"required,min=1,max=10"`
}

func (req usernamesRequest) validateNoDuplicates() error {
	seen := make(map[string]bool, len(req.Usernames))
	for _, u := range req.Usernames {
		if seen[u] {
			return apperrors.NewValidationError("duplicate username in request", u)
		}
		seen[u] = true
	}
	return nil
}

// bulkApply loads each named subscription, applies mutate, and persists it;
// partial failures are collected and reported instead of aborting the batch,
// matching the "lifecycle endpoints succeed optimistically" policy (§7).
func (s *Server) bulkApply(c *gin.Context, mutate func(*subscription.Subscription)) {
	var req usernamesRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondBindError(c, err)
		return
	}
	if err := req.validateNoDuplicates(); err != nil {
		respondError(c, err)
		return
	}
	updated := make([]string, 0, len(req.Usernames))
	failed := make(map[string]string)
	for _, username := range req.Usernames {
		sub, err := s.subs.GetByUsername(c.Request.Context(), username)
		if err != nil {
			failed[username] = "not found"
			continue
		}
		mutate(sub)
		if err := s.subs.Update(c.Request.Context(), sub); err != nil {
			failed[username] = "update failed"
			continue
		}
		updated = append(updated, username)
	}
	respondJSON(c, 200, gin.H{"updated": updated, "failed": failed})
}

func (s *Server) handleBulkEnable(c *gin.Context) {
	now := time.Now().UTC()
	s.bulkApply(c, func(sub *subscription.Subscription) { sub.SetEnabled(true, now) })
}

func (s *Server) handleBulkDisable(c *gin.Context) {
	now := time.Now().UTC()
	s.bulkApply(c, func(sub *subscription.Subscription) { sub.SetEnabled(false, now) })
}

func (s *Server) handleBulkRevoke(c *gin.Context) {
	now := time.Now().UTC()
	s.bulkApply(c, func(sub *subscription.Subscription) { sub.Revoke(token.Secret(), now) })
}

func (s *Server) handleBulkReset(c *gin.Context) {
	now := time.Now().UTC()
	s.bulkApply(c, func(sub *subscription.Subscription) { sub.ResetUsageCounter(now) })
}

func (s *Server) handleBulkAttachService(c *gin.Context) {
	serviceID := parseOptionalInt(c.Param("service_id"), -1)
	if serviceID < 0 {
		respondError(c, apperrors.NewValidationError("invalid service id"))
		return
	}
	s.bulkApply(c, func(sub *subscription.Subscription) { sub.AttachServices(int64(serviceID)) })
}

func (s *Server) handleBulkDetachService(c *gin.Context) {
	serviceID := parseOptionalInt(c.Param("service_id"), -1)
	if serviceID < 0 {
		respondError(c, apperrors.NewValidationError("invalid service id"))
		return
	}
	s.bulkApply(c, func(sub *subscription.Subscription) { sub.DetachServices(int64(serviceID)) })
}

type subscriptionResponseBody struct {
	Username       string  `json:"username"`
	OwnerID        int64   `json:"owner_id"`
	LimitUsage     int64   `json:"limit_usage"`
	CurrentUsage   int64   `json:"current_usage"`
	LimitExpire    int64   `json:"limit_expire"`
	AutoDeleteDays int     `json:"auto_delete_days"`
	Note           string  `json:"note"`
	Enabled        bool    `json:"enabled"`
	Activated      bool    `json:"activated"`
	Reached        bool    `json:"reached"`
	IsActive       bool    `json:"is_active"`
	ServiceIDs     []int64 `json:"service_ids"`
}

func subscriptionResponse(sub *subscription.Subscription, now time.Time) subscriptionResponseBody {
	return subscriptionResponseBody{
		Username: sub.Username(), OwnerID: sub.OwnerID(),
		LimitUsage: sub.LimitUsage(), CurrentUsage: sub.CurrentUsage(), LimitExpire: sub.LimitExpire(),
		AutoDeleteDays: sub.AutoDeleteDays(), Note: sub.Note(),
		Enabled: sub.Enabled(), Activated: sub.Activated(), Reached: sub.Reached(),
		IsActive: sub.IsActive(now), ServiceIDs: sub.ServiceIDs(),
	}
}

func subscriptionResponses(subs []*subscription.Subscription, now time.Time) []subscriptionResponseBody {
	out := make([]subscriptionResponseBody, 0, len(subs))
	for _, sub := range subs {
		out = append(out, subscriptionResponse(sub, now))
	}
	return out
}
