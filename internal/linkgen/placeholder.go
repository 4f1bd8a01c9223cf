package linkgen

import (
	"fmt"
	"time"

	"github.com/moguard/panel/internal/credential"
	"github.com/moguard/panel/internal/domain/admin"
	"github.com/moguard/panel/internal/domain/subscription"
)

// generatePlaceholders renders the admin's placeholder templates applicable
// to sub's current state: info is always included, plus at most one of
// limited/expired/disabled depending on sub's flags (§4.I step 1, matching
// the source's `Subscription.placeholders` property).
func generatePlaceholders(sub *subscription.Subscription, owner *admin.Admin, vars map[string]string, now time.Time) []string {
	if owner == nil {
		return nil
	}

	var templates []admin.Placeholder
	for _, p := range owner.Placeholders() {
		if p.Category == admin.PlaceholderInfo {
			templates = append(templates, p)
		}
	}
	switch {
	case sub.Limited():
		templates = append(templates, filterCategory(owner.Placeholders(), admin.PlaceholderLimited)...)
	case sub.Expired(now):
		templates = append(templates, filterCategory(owner.Placeholders(), admin.PlaceholderExpired)...)
	case !sub.Enabled():
		templates = append(templates, filterCategory(owner.Placeholders(), admin.PlaceholderDisabled)...)
	}

	out := make([]string, 0, len(templates))
	for _, t := range templates {
		out = append(out, renderPlaceholder(t, sub, vars))
	}
	return out
}

func filterCategory(placeholders []admin.Placeholder, category admin.PlaceholderCategory) []admin.Placeholder {
	var out []admin.Placeholder
	for _, p := range placeholders {
		if p.Category == category {
			out = append(out, p)
		}
	}
	return out
}

// renderPlaceholder formats one placeholder template's remark/address/uuid
// with sub's format vars and emits a vless:// link (§4.I step 1).
func renderPlaceholder(t admin.Placeholder, sub *subscription.Subscription, vars map[string]string) string {
	remark := applyTemplate(t.Remark, vars)

	address := t.Address
	if address == "" {
		address = sub.ServerKey()
	}
	address = applyTemplate(address, vars)

	id := t.UUID
	if id == "" {
		id = credential.UUID(sub.AccessKey(), "vless")
	} else {
		id = applyTemplate(id, vars)
	}

	port := t.Port
	if port <= 0 {
		port = 1
	}

	return replaceHashRemark(fmt.Sprintf("vless://%s@%s:%d?type=ws", id, address, port), remark)
}
