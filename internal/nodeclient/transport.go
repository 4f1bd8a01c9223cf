package nodeclient

import (
	"bytes"
	"context"
	"crypto/tls"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"

	"go.uber.org/zap"

	"github.com/moguard/panel/internal/shared/logger"
)

// sharedTransport is the one process-wide http.Client every dialect client
// shares (§5 "HTTP session per process"). TLS verification is disabled for
// upstream nodes on purpose: self-signed certificates are the common case for
// operator-run proxy hosts, matching the source's explicit design decision.
var sharedTransport = &http.Transport{
	MaxIdleConns:        200,
	MaxIdleConnsPerHost: 50,
	TLSClientConfig:     &tls.Config{InsecureSkipVerify: true}, //nolint:gosec
}

var sharedClientOnce sync.Once
var sharedClient *http.Client

func httpClient() *http.Client {
	sharedClientOnce.Do(func() {
		sharedClient = &http.Client{Transport: sharedTransport}
	})
	return sharedClient
}

// transport is embedded by every dialect client; it implements base.py's
// BaseClient._request contract: 4xx/5xx -> failure sentinel (here, an error),
// 204 -> success with nil body, otherwise JSON-decode into v.
type transport struct {
	host string
}

func newTransport(host string) transport {
	return transport{host: strings.TrimRight(host, "/")}
}

// ErrUpstreamFailed is returned for any 4xx/5xx response or transport error;
// callers treat it identically to the source's `return False` sentinel.
var ErrUpstreamFailed = fmt.Errorf("nodeclient: upstream request failed")

type requestOpts struct {
	token  string
	apiKey string
	body   any
	params url.Values
}

func (t transport) do(ctx context.Context, method, endpoint string, opts requestOpts, out any) error {
	u := fmt.Sprintf("%s/%s", t.host, strings.TrimLeft(endpoint, "/"))
	if len(opts.params) > 0 {
		u += "?" + opts.params.Encode()
	}

	var bodyReader io.Reader
	if opts.body != nil {
		b, err := json.Marshal(opts.body)
		if err != nil {
			return fmt.Errorf("nodeclient: marshal request body: %w", err)
		}
		bodyReader = bytes.NewReader(b)
	}

	req, err := http.NewRequestWithContext(ctx, method, u, bodyReader)
	if err != nil {
		return fmt.Errorf("nodeclient: build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if opts.token != "" {
		req.Header.Set("Authorization", "Bearer "+opts.token)
	}
	if opts.apiKey != "" {
		req.Header.Set("X-Api-Key", opts.apiKey)
	}

	resp, err := httpClient().Do(req)
	if err != nil {
		logger.Get().Error("node request failed", zap.String("method", method), zap.String("url", u), zap.Error(err))
		return ErrUpstreamFailed
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		text, _ := io.ReadAll(resp.Body)
		logger.Get().Error("node http error", zap.String("method", method), zap.String("url", u), zap.String("status", resp.Status), zap.String("body", string(text)))
		return ErrUpstreamFailed
	}
	if resp.StatusCode == http.StatusNoContent {
		return nil
	}
	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("nodeclient: decode response: %w", err)
	}
	return nil
}

// doScripted issues a GET against a node's standalone scripted inventory
// endpoint (an arbitrary operator-hosted URL, not the dialect's admin API),
// authenticated with X-Api-Key instead of a bearer token (§4.F step 1).
func doScripted(ctx context.Context, scriptURL, scriptSecret string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, scriptURL, nil)
	if err != nil {
		return fmt.Errorf("nodeclient: build scripted request: %w", err)
	}
	req.Header.Set("X-Api-Key", scriptSecret)

	resp, err := httpClient().Do(req)
	if err != nil {
		logger.Get().Error("scripted fetch failed", zap.String("url", scriptURL), zap.Error(err))
		return ErrUpstreamFailed
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 400 {
		return ErrUpstreamFailed
	}
	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("nodeclient: decode scripted response: %w", err)
	}
	return nil
}

// fetchV2raySubscription pulls the base64-encoded, newline-delimited link
// list marzneshin/rustneshin serve at a user's subscription_url (§4.D step 5).
// This endpoint is unauthenticated and lives outside the dialect's admin API,
// so it bypasses transport.do's token handling.
func fetchV2raySubscription(ctx context.Context, subscriptionURL string) ([]string, error) {
	u := strings.TrimRight(subscriptionURL, "/") + "/v2ray"
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, fmt.Errorf("nodeclient: build subscription request: %w", err)
	}
	resp, err := httpClient().Do(req)
	if err != nil {
		logger.Get().Error("subscription fetch failed", zap.String("url", u), zap.Error(err))
		return nil, ErrUpstreamFailed
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 400 {
		return nil, ErrUpstreamFailed
	}
	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("nodeclient: read subscription body: %w", err)
	}
	decoded, err := base64.StdEncoding.DecodeString(strings.TrimSpace(string(raw)))
	if err != nil {
		return nil, fmt.Errorf("nodeclient: decode subscription body: %w", err)
	}
	var links []string
	for _, line := range strings.Split(string(decoded), "\n") {
		line = strings.TrimSpace(line)
		if line != "" {
			links = append(links, line)
		}
	}
	return links, nil
}
