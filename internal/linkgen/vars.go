package linkgen

import (
	"fmt"
	"strconv"
	"time"

	"github.com/moguard/panel/internal/domain/subscription"
)

// buildFormat renders a subscription's template variables (§4.I `sub.format`)
// used both by placeholder link rendering and by `config_rename`.
func buildFormat(sub *subscription.Subscription, ownerUsername string, now time.Time) map[string]string {
	vars := map[string]string{
		"id":             strconv.FormatInt(sub.ID(), 10),
		"username":       sub.Username(),
		"owner_username": ownerUsername,
		"access_key":     sub.AccessKey(),
		"enabled":        emojiBool(sub.Enabled()),
		"activated":      emojiBool(sub.Activated()),
		"limited":        emojiBool(sub.Limited()),
		"pending":        emojiBool(sub.Pending()),
		"expired":        emojiBool(sub.Expired(now)),
		"is_active":      emojiBool(sub.IsActive(now)),
		"current_usage":  byteConvert(sub.CurrentUsage()),
	}

	if sub.LimitUsage() > 0 {
		vars["limit_usage"] = byteConvert(sub.LimitUsage())
		vars["left_usage"] = byteConvert(sub.LimitUsage() - sub.CurrentUsage())
	} else {
		vars["limit_usage"] = infinite
		vars["left_usage"] = infinite
	}

	if sub.LimitExpire() != 0 {
		vars["expire_date"] = dateConvert(sub.LimitExpire(), now)
		vars["expire_in"] = timeConvert(sub.LimitExpire(), now)
		vars["expire_in_days"] = strconv.FormatInt(dayConvert(sub.LimitExpire(), now), 10)
	} else {
		vars["expire_date"] = infinite
		vars["expire_in"] = infinite
		vars["expire_in_days"] = infinite
	}

	return vars
}

// nodeFormat extends a subscription's format vars with per-node template
// fields used by `config_rename` (§4.I step 4).
func nodeFormat(vars map[string]string, serverID, serverEmoji, serverName string, usageRate float64) map[string]string {
	out := make(map[string]string, len(vars)+4)
	for k, v := range vars {
		out[k] = v
	}
	out["server_id"] = serverID
	out["server_emoji"] = serverEmoji
	out["server_name"] = serverName
	out["server_usage"] = fmt.Sprintf("%g", usageRate)
	return out
}
