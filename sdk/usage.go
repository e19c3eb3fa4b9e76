package voicechat

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"time"
)

const usageCacheTTL = 5 * time.Minute

// UsageInfo is the backend's usage accounting for the calling client.
type UsageInfo struct {
	LastUsedTokens  int    `json:"last_used_tokens"`
	TotalTokens     int    `json:"total_tokens"`
	TokensLimit     int    `json:"tokens_limit"`
	TokensRemaining int    `json:"tokens_remaining"`
	ResetAt         string `json:"reset_at"`
	LimitExceeded   bool   `json:"limit_exceeded"`
}

// UsageService reports consumed tokens to the backend and answers usage
// queries through a short-lived read cache.
type UsageService struct {
	client *Client

	mu       sync.Mutex
	cached   *UsageInfo
	cachedAt time.Time
	ttl      time.Duration

	limitMu   sync.Mutex
	limitSubs []func(resetAt string)
}

// OnLimitExceeded registers fn to run with the reset instant whenever a
// usage report comes back with the limit exceeded. Every session registers
// itself here, so several sessions on one client all observe the limit.
// Registrations live for the client's lifetime.
func (u *UsageService) OnLimitExceeded(fn func(resetAt string)) {
	u.limitMu.Lock()
	u.limitSubs = append(u.limitSubs, fn)
	u.limitMu.Unlock()
}

func (u *UsageService) notifyLimitExceeded(resetAt string) {
	u.limitMu.Lock()
	subs := append([]func(string)(nil), u.limitSubs...)
	u.limitMu.Unlock()
	for _, fn := range subs {
		fn(resetAt)
	}
}

func newUsageService(c *Client) *UsageService {
	return &UsageService{client: c, ttl: usageCacheTTL}
}

// Fetch returns current usage, served from cache when the cached value is
// younger than five minutes. force bypasses the cache. Callers treat a nil
// result as "usage unknown"; failures never interrupt a conversation.
func (u *UsageService) Fetch(ctx context.Context, force bool) (*UsageInfo, error) {
	u.mu.Lock()
	if !force && u.cached != nil && time.Since(u.cachedAt) < u.ttl {
		info := *u.cached
		u.mu.Unlock()
		return &info, nil
	}
	u.mu.Unlock()

	url := u.client.baseURL + "/api/usage"
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("build usage request: %w", err)
	}
	u.client.authorize(req)

	resp, err := u.client.httpClient.Do(req)
	if err != nil {
		return nil, &TransportError{Op: http.MethodGet, URL: url, Err: err}
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("usage fetch failed (status %d)", resp.StatusCode)
	}

	var info UsageInfo
	if err := json.NewDecoder(resp.Body).Decode(&info); err != nil {
		return nil, fmt.Errorf("decode usage response: %w", err)
	}
	u.store(info)
	return &info, nil
}

// Report posts a turn's token count. On success the cache is refreshed and,
// when the account just crossed its limit, OnLimitExceeded fires with the
// reset instant. Errors are returned for logging only; the session swallows
// them so a failed report never tears down an active conversation.
func (u *UsageService) Report(ctx context.Context, tokens int) (*UsageInfo, error) {
	body, err := json.Marshal(map[string]int{"tokens": tokens})
	if err != nil {
		return nil, fmt.Errorf("encode usage report: %w", err)
	}

	url := u.client.baseURL + "/api/usage/report"
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("build usage report: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	u.client.authorize(req)

	resp, err := u.client.httpClient.Do(req)
	if err != nil {
		return nil, &TransportError{Op: http.MethodPost, URL: url, Err: err}
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("usage report failed (status %d)", resp.StatusCode)
	}

	var payload struct {
		Success bool      `json:"success"`
		Usage   UsageInfo `json:"usage"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return nil, fmt.Errorf("decode usage report response: %w", err)
	}
	u.store(payload.Usage)

	if payload.Usage.LimitExceeded {
		u.notifyLimitExceeded(payload.Usage.ResetAt)
	}
	return &payload.Usage, nil
}

func (u *UsageService) store(info UsageInfo) {
	u.mu.Lock()
	u.cached = &info
	u.cachedAt = time.Now()
	u.mu.Unlock()
}

// resetAtLayouts accepts RFC 3339 plus the zoneless ISO form the backend
// emits (Python datetime.isoformat without tzinfo, interpreted as local).
var resetAtLayouts = []string{
	time.RFC3339Nano,
	time.RFC3339,
	"2006-01-02T15:04:05.999999999",
	"2006-01-02T15:04:05",
}

// FormatResetTime renders a usage reset instant as a friendly relative
// duration: "in 2 hours and 5 minutes", "in 30 minutes", "in less than a
// minute", or "now" once the instant has passed. Unparseable input falls
// back to "in 24 hours", the backend's reset period.
func FormatResetTime(resetAt string) string {
	var at time.Time
	parsed := false
	for _, layout := range resetAtLayouts {
		t, err := time.ParseInLocation(layout, resetAt, time.Local)
		if err == nil {
			at = t
			parsed = true
			break
		}
	}
	if !parsed {
		return "in 24 hours"
	}

	until := time.Until(at)
	switch {
	case until <= 0:
		return "now"
	case until < time.Minute:
		return "in less than a minute"
	case until < time.Hour:
		return fmt.Sprintf("in %s", plural(int(until.Minutes()), "minute"))
	default:
		hours := int(until.Hours())
		minutes := int(until.Minutes()) % 60
		if minutes == 0 {
			return fmt.Sprintf("in %s", plural(hours, "hour"))
		}
		return fmt.Sprintf("in %s and %s", plural(hours, "hour"), plural(minutes, "minute"))
	}
}

func plural(n int, unit string) string {
	if n == 1 {
		return fmt.Sprintf("1 %s", unit)
	}
	return fmt.Sprintf("%d %ss", n, unit)
}
