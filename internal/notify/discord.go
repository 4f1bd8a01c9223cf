package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

// DiscordTimeout is the per-call deadline for Discord webhook posts.
const DiscordTimeout = 10 * time.Second

type discordSink struct {
	client *http.Client
}

func newDiscordSink() *discordSink {
	return &discordSink{client: &http.Client{Timeout: DiscordTimeout}}
}

func (s *discordSink) send(ctx context.Context, webhookURL, content string) error {
	body, err := json.Marshal(map[string]string{"content": content})
	if err != nil {
		return fmt.Errorf("notify: marshal discord payload: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, webhookURL, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("notify: build discord request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.client.Do(req)
	if err != nil {
		return fmt.Errorf("notify: discord request failed: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 400 {
		text, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("notify: discord returned %s: %s", resp.Status, text)
	}
	return nil
}

// htmlToDiscordMarkdown converts the handful of HTML tags the notification
// templates ever produce (bold/italic/code/pre) into Discord's markdown
// dialect. This is a fixed substitution table, not a general HTML renderer.
func htmlToDiscordMarkdown(s string) string {
	replacer := strings.NewReplacer(
		"<b>", "**", "</b>", "**",
		"<strong>", "**", "</strong>", "**",
		"<i>", "*", "</i>", "*",
		"<em>", "*", "</em>", "*",
		"<code>", "`", "</code>", "`",
		"<pre>", "```", "</pre>", "```",
	)
	return replacer.Replace(s)
}
