package usageengine

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/moguard/panel/internal/shared/logger"
)

// ReportTimeout bounds the optional upstream usage-reporting POST (§5).
const ReportTimeout = 5 * time.Second

type usageEntry struct {
	Username string `json:"username"`
	Usage    int64  `json:"usage"`
}

// Reporter posts per-subscription usage deltas to the optional upstream
// reporting endpoint. A failed send's deltas are held in memory and merged
// into the next call rather than dropped (§4.G step 3).
type Reporter struct {
	client *http.Client
	url    string

	mu     sync.Mutex
	failed map[string]int64
}

// NewReporter builds a Reporter for the given license/secret pair, or nil if
// reporting is disabled (either value empty).
func NewReporter(licenseKey, secretKey string) *Reporter {
	if licenseKey == "" || secretKey == "" {
		return nil
	}
	return &Reporter{
		client: &http.Client{Timeout: ReportTimeout},
		url:    fmt.Sprintf("https://%s.morebot.top/api/subscriptions/%s/usages", licenseKey, secretKey),
		failed: make(map[string]int64),
	}
}

// Send posts usages (by username), merging in any deltas a prior call
// failed to deliver. On failure the combined set is retained for the next
// call instead of being dropped.
func (r *Reporter) Send(ctx context.Context, usages map[string]int64) {
	r.mu.Lock()
	merged := make(map[string]int64, len(usages)+len(r.failed))
	for username, usage := range r.failed {
		merged[username] = usage
	}
	for username, usage := range usages {
		merged[username] += usage
	}
	r.mu.Unlock()

	if err := r.post(ctx, merged); err != nil {
		r.mu.Lock()
		r.failed = merged
		r.mu.Unlock()
		logger.Get().Error("usageengine: upstream usage report failed, deltas held for retry", zap.Error(err))
		return
	}

	r.mu.Lock()
	r.failed = make(map[string]int64)
	r.mu.Unlock()
}

func (r *Reporter) post(ctx context.Context, usages map[string]int64) error {
	entries := make([]usageEntry, 0, len(usages))
	for username, usage := range usages {
		entries = append(entries, usageEntry{Username: username, Usage: usage})
	}
	body, err := json.Marshal(entries)
	if err != nil {
		return fmt.Errorf("usageengine: encode report body: %w", err)
	}

	rctx, cancel := context.WithTimeout(ctx, ReportTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(rctx, http.MethodPost, r.url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("usageengine: build report request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := r.client.Do(req)
	if err != nil {
		return fmt.Errorf("usageengine: send report: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 400 {
		return fmt.Errorf("usageengine: report endpoint returned status %d", resp.StatusCode)
	}
	return nil
}
