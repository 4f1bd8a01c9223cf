package linkgen

import (
	"encoding/base64"
	"encoding/json"
	"net/url"
	"strings"

	"github.com/moguard/panel/internal/domain/admin"
	"github.com/moguard/panel/internal/domain/node"
	"github.com/moguard/panel/internal/domain/subscription"
)

// getLinkRemark extracts a link's display remark (§4.I `_get_link_remark`):
// the `#fragment` for most schemes, or vmess's embedded `ps` field.
func getLinkRemark(link string) string {
	if strings.HasPrefix(link, "vmess://") {
		decoded, err := base64.StdEncoding.DecodeString(link[len("vmess://"):])
		if err != nil {
			return ""
		}
		var cfg map[string]any
		if err := json.Unmarshal(decoded, &cfg); err != nil {
			return ""
		}
		ps, _ := cfg["ps"].(string)
		return ps
	}
	if idx := strings.Index(link, "#"); idx >= 0 {
		remark, err := url.QueryUnescape(link[idx+1:])
		if err != nil {
			return link[idx+1:]
		}
		return remark
	}
	return ""
}

func replaceHashRemark(link, newRemark string) string {
	base, _, _ := strings.Cut(link, "#")
	return base + "#" + strings.ReplaceAll(url.QueryEscape(newRemark), "+", "%20")
}

// rewriteLink rewrites one cached prototype link with sub's own derived
// credential and formatted remark (§4.I "Link rewrite details per URI
// scheme"). Returns "" when the link's scheme is unsupported or malformed,
// dropping it from the output the way the source silently skips it.
func rewriteLink(link string, sub *subscription.Subscription, owner *admin.Admin, n *node.Node, vars map[string]string) string {
	originalRemark := getLinkRemark(link)
	newRemark := formatRemark(owner, n, vars, originalRemark)

	switch {
	case strings.HasPrefix(link, "vless://"):
		rest := link[len("vless://"):]
		parts := strings.SplitN(rest, "@", 2)
		if len(parts) != 2 {
			return ""
		}
		newID := protocolCredential(sub.AccessKey(), protocolKey("vless"))
		return replaceHashRemark("vless://"+newID+"@"+parts[1], newRemark)

	case strings.HasPrefix(link, "vmess://"):
		decoded, err := base64.StdEncoding.DecodeString(link[len("vmess://"):])
		if err != nil {
			return ""
		}
		var cfg map[string]any
		if err := json.Unmarshal(decoded, &cfg); err != nil {
			return ""
		}
		cfg["id"] = protocolCredential(sub.AccessKey(), protocolKey("vmess"))
		cfg["ps"] = newRemark
		reencoded, err := json.Marshal(cfg)
		if err != nil {
			return ""
		}
		return "vmess://" + base64.StdEncoding.EncodeToString(reencoded)

	case strings.HasPrefix(link, "trojan://"):
		rest := link[len("trojan://"):]
		parts := strings.SplitN(rest, "@", 2)
		if len(parts) != 2 {
			return ""
		}
		newPassword := protocolCredential(sub.AccessKey(), protocolKey("trojan"))
		return replaceHashRemark("trojan://"+newPassword+"@"+parts[1], newRemark)

	case strings.HasPrefix(link, "ss://"):
		return rewriteShadowsocksLink(link, sub, newRemark)
	}
	return ""
}

func rewriteShadowsocksLink(link string, sub *subscription.Subscription, newRemark string) string {
	rest := link[len("ss://"):]
	atIndex := strings.Index(rest, "@")
	if atIndex < 0 {
		return ""
	}
	before, after := rest[:atIndex], rest[atIndex:]

	decoded, err := base64.StdEncoding.DecodeString(before)
	if err != nil {
		return ""
	}
	method, _, ok := strings.Cut(string(decoded), ":")
	if !ok {
		return ""
	}

	newPassword := protocolCredential(sub.AccessKey(), protocolKey("ss"))
	credentials := method + ":" + newPassword
	updated := "ss://" + base64.StdEncoding.EncodeToString([]byte(credentials)) + after
	return replaceHashRemark(updated, newRemark)
}
