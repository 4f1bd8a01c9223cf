package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	gobreaker "github.com/sony/gobreaker/v2"
)

// TelegramTimeout is the per-call deadline for Telegram sendMessage requests
// (§5 "10s to Telegram/Discord").
const TelegramTimeout = 10 * time.Second

// telegramSink posts to the Telegram Bot API directly over net/http, the way
// the teacher's internal/infrastructure/telegram.BotService does, instead of
// pulling in a full bot-framework dependency. A circuit breaker protects
// against a stuck or rate-limiting bot token taking down the dispatcher loop
// for every admin sharing it, grounded on the teacher's same breaker
// configuration (trip after 5 consecutive failures, 30s open window).
type telegramSink struct {
	client *http.Client
	cb     *gobreaker.CircuitBreaker[struct{}]
}

func newTelegramSink() *telegramSink {
	return &telegramSink{
		client: &http.Client{Timeout: TelegramTimeout},
		cb: gobreaker.NewCircuitBreaker[struct{}](gobreaker.Settings{
			Name:    "telegram-notify",
			Timeout: 30 * time.Second,
			ReadyToTrip: func(counts gobreaker.Counts) bool {
				return counts.ConsecutiveFailures >= 5
			},
		}),
	}
}

func (s *telegramSink) send(ctx context.Context, token, chatID, topicID, text string) error {
	_, err := s.cb.Execute(func() (struct{}, error) {
		return struct{}{}, s.doSend(ctx, token, chatID, topicID, text)
	})
	return err
}

func (s *telegramSink) doSend(ctx context.Context, token, chatID, topicID, text string) error {
	payload := map[string]any{
		"chat_id": chatID,
		"text":    text,
	}
	if topicID != "" {
		payload["message_thread_id"] = topicID
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("notify: marshal telegram payload: %w", err)
	}

	url := fmt.Sprintf("https://api.telegram.org/bot%s/sendMessage", token)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("notify: build telegram request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.client.Do(req)
	if err != nil {
		return fmt.Errorf("notify: telegram request failed: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 400 {
		text, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("notify: telegram returned %s: %s", resp.Status, text)
	}
	return nil
}
