// Package linkgen composes a subscription's client-facing link bundle from
// the Links Cache, the owner's placeholder templates, and per-subscription
// credential/remark rewriting (SPEC_FULL.md §4.I).
package linkgen

import (
	"context"
	"math/rand"
	"regexp"
	"sort"
	"strings"
	"time"

	"github.com/moguard/panel/internal/cache"
	"github.com/moguard/panel/internal/credential"
	"github.com/moguard/panel/internal/domain/admin"
	"github.com/moguard/panel/internal/domain/node"
	"github.com/moguard/panel/internal/domain/service"
	"github.com/moguard/panel/internal/domain/subscription"
)

// emojiPattern matches the Unicode blocks the client treats as flag/symbol
// emoji in a link remark (§4.I step 4 `server_emoji` extraction).
var emojiPattern = regexp.MustCompile(
	"[\U0001F1E6-\U0001F1FF\U0001F300-\U0001F5FF\U0001F600-\U0001F64F" +
		"\U0001F680-\U0001F6FF\U0001F700-\U0001F77F\U0001F780-\U0001F7FF" +
		"\U0001F800-\U0001F8FF\U0001F900-\U0001F9FF\U0001FA00-\U0001FAFF" +
		"\U00002700-\U000027BF\U00002600-\U000026FF]+")

// Generator composes subscription link bundles.
type Generator struct {
	nodes    node.Repository
	services service.Repository
	links    *cache.LinksCache
}

// New constructs a Generator.
func New(nodes node.Repository, services service.Repository, links *cache.LinksCache) *Generator {
	return &Generator{nodes: nodes, services: services, links: links}
}

// Generate builds the newline-ready link list for one subscription (§4.I).
func (g *Generator) Generate(ctx context.Context, sub *subscription.Subscription, owner *admin.Admin, now time.Time) ([]string, error) {
	vars := buildFormat(sub, ownerUsername(owner), now)
	placeholders := generatePlaceholders(sub, owner, vars, now)

	if !sub.IsActive(now) {
		return placeholders, nil
	}

	nodes, err := g.effectiveNodes(ctx, sub)
	if err != nil {
		return nil, err
	}

	nodeLinks := make(map[int64][]string, len(nodes))
	for _, n := range nodes {
		nodeLinks[n.ID()] = g.rewriteNodeLinks(n, sub, owner, vars)
	}

	maxLinks := 0
	if owner != nil {
		maxLinks = owner.Presentation().MaxLinks
	}
	interleaved := interleave(nodes, nodeLinks, maxLinks)

	return append(placeholders, interleaved...), nil
}

// effectiveNodes resolves the subscription's owner-filtered node set:
// availabled, config-showing nodes reachable through its selected services,
// sorted by priority descending (§4.I step 3).
func (g *Generator) effectiveNodes(ctx context.Context, sub *subscription.Subscription) ([]*node.Node, error) {
	services, err := g.services.ListByIDs(ctx, sub.ServiceIDs())
	if err != nil {
		return nil, err
	}
	nodeIDs := map[int64]bool{}
	for _, s := range services {
		for _, id := range s.NodeIDs() {
			nodeIDs[id] = true
		}
	}

	all, err := g.nodes.List(ctx)
	if err != nil {
		return nil, err
	}
	out := make([]*node.Node, 0, len(all))
	for _, n := range all {
		if nodeIDs[n.ID()] && n.Availabled() && n.ShowConfigs() {
			out = append(out, n)
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Priority() > out[j].Priority() })
	return out, nil
}

// rewriteNodeLinks takes one node's cached prototype links, applies the
// offset, shuffles, and rewrites each link's credentials/remark for sub
// (§4.I step 4).
func (g *Generator) rewriteNodeLinks(n *node.Node, sub *subscription.Subscription, owner *admin.Admin, vars map[string]string) []string {
	cached, _ := g.links.Get(n.ID())
	if len(cached) <= n.OffsetLink() {
		return nil
	}
	cached = cached[n.OffsetLink():]

	shuffled := make([]string, len(cached))
	copy(shuffled, cached)
	rand.Shuffle(len(shuffled), func(i, j int) { shuffled[i], shuffled[j] = shuffled[j], shuffled[i] })

	out := make([]string, 0, len(shuffled))
	for _, link := range shuffled {
		if rewritten := rewriteLink(link, sub, owner, n, vars); rewritten != "" {
			out = append(out, rewritten)
		}
	}
	return out
}

// interleave walks every node's remaining link queue in priority order,
// taking up to batch_size per pass, until every queue is empty or max_links
// is hit (§4.I step 5).
func interleave(nodes []*node.Node, nodeLinks map[int64][]string, maxLinks int) []string {
	var out []string
	for {
		progressed := false
		for _, n := range nodes {
			if maxLinks > 0 && len(out) >= maxLinks {
				return out
			}
			remaining := nodeLinks[n.ID()]
			if len(remaining) == 0 {
				continue
			}
			progressed = true

			batch := n.BatchSize()
			if batch <= 0 || batch > len(remaining) {
				batch = len(remaining)
			}
			for _, link := range remaining[:batch] {
				if maxLinks > 0 && len(out) >= maxLinks {
					return out
				}
				out = append(out, link)
			}
			nodeLinks[n.ID()] = remaining[batch:]
		}
		if !progressed {
			return out
		}
	}
}

func ownerUsername(owner *admin.Admin) string {
	if owner == nil {
		return "system"
	}
	return owner.Username()
}

func extractEmoji(remark string) string {
	return emojiPattern.FindString(remark)
}

func formatRemark(owner *admin.Admin, n *node.Node, vars map[string]string, originalRemark string) string {
	rename := ""
	if owner != nil {
		rename = owner.Presentation().ConfigRename
	}
	if strings.TrimSpace(rename) == "" {
		return originalRemark
	}

	emoji := extractEmoji(originalRemark)
	serverName := strings.TrimSpace(strings.Replace(originalRemark, emoji, "", 1))

	full := nodeFormat(vars, n.FormattedID(), emoji, serverName, n.UsageRate())
	rendered := applyTemplate(rename, full)
	return collapseSpaces(rendered)
}

func collapseSpaces(s string) string {
	return strings.TrimSpace(strings.Join(strings.Fields(s), " "))
}

// protocolKey maps a link URI scheme to the credential-derivation protocol
// name the reconciler uses when configuring the node, so a rewritten link's
// credential matches what the node actually grants.
func protocolKey(scheme string) string {
	if scheme == "ss" {
		return "shadowsocks"
	}
	return scheme
}

func protocolCredential(accessKey, protocol string) string {
	switch protocol {
	case "trojan", "shadowsocks":
		return credential.Password(accessKey, protocol)
	default:
		return credential.UUID(accessKey, protocol)
	}
}
