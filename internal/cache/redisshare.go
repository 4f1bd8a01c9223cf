package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/moguard/panel/internal/shared/logger"
)

// RedisShare publishes the in-process Config/Links caches to redis so a
// fleet of panel replicas converges on the same view between their own
// refresh ticks, grounded on the teacher's RedisTrafficCache write-through
// pattern (hash/string keys with an expiry, best-effort on read).
type RedisShare struct {
	client *redis.Client
}

// NewRedisShare wraps an already-configured redis client.
func NewRedisShare(client *redis.Client) *RedisShare {
	return &RedisShare{client: client}
}

func configKey(nodeID int64) string { return fmt.Sprintf("panel:config:%d", nodeID) }
func linksKey(nodeID int64) string  { return fmt.Sprintf("panel:links:%d", nodeID) }

// PublishConfig mirrors a node's freshly fetched catalog to redis with a
// generous expiry so a replica that hasn't polled the node yet can still
// serve from the last known-good value.
func (s *RedisShare) PublishConfig(ctx context.Context, nodeID int64, payload any) {
	raw, err := json.Marshal(payload)
	if err != nil {
		logger.Get().Error("redis share: marshal config", zap.Error(err))
		return
	}
	if err := s.client.Set(ctx, configKey(nodeID), raw, 5*time.Minute).Err(); err != nil {
		logger.Get().Error("redis share: publish config", zap.Error(err))
	}
}

// FetchConfig reads a node's last-published catalog. Returns ok=false on a
// miss or a redis error; callers fall back to their own cache or upstream.
func (s *RedisShare) FetchConfig(ctx context.Context, nodeID int64, out any) bool {
	raw, err := s.client.Get(ctx, configKey(nodeID)).Bytes()
	if err != nil {
		return false
	}
	return json.Unmarshal(raw, out) == nil
}

// PublishLinks mirrors a node's prototype link list to redis.
func (s *RedisShare) PublishLinks(ctx context.Context, nodeID int64, links []string) {
	raw, err := json.Marshal(links)
	if err != nil {
		logger.Get().Error("redis share: marshal links", zap.Error(err))
		return
	}
	if err := s.client.Set(ctx, linksKey(nodeID), raw, 5*time.Minute).Err(); err != nil {
		logger.Get().Error("redis share: publish links", zap.Error(err))
	}
}

// FetchLinks reads a node's last-published prototype link list.
func (s *RedisShare) FetchLinks(ctx context.Context, nodeID int64) ([]string, bool) {
	raw, err := s.client.Get(ctx, linksKey(nodeID)).Bytes()
	if err != nil {
		return nil, false
	}
	var links []string
	if err := json.Unmarshal(raw, &links); err != nil {
		return nil, false
	}
	return links, true
}
