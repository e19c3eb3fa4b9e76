package voicechat

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/pushback-ai/voicechat/pkg/transport"
)

// signalingTimeout bounds the whole offer/answer round trip; past it the
// request is aborted and surfaces as a timeout error.
const signalingTimeout = 30 * time.Second

type sessionCreateRequest struct {
	SDP    string `json:"sdp"`
	ModeID string `json:"modeId"`
}

// establishRealtimeSession performs the one-shot offer/answer exchange that
// binds the local peer to the remote AI session. It is pure request/response
// orchestration: no session state is touched here, typed failures propagate
// to the caller for mapping.
func (c *Client) establishRealtimeSession(ctx context.Context, neg transport.Negotiator, modeID string) error {
	ctx, cancel := context.WithTimeout(ctx, signalingTimeout)
	defer cancel()

	offer, err := neg.CreateOffer(ctx)
	if err != nil {
		return fmt.Errorf("create session offer: %w", err)
	}

	answer, err := c.createRealtimeSession(ctx, offer, modeID)
	if err != nil {
		return err
	}

	if err := neg.SetAnswer(answer); err != nil {
		return fmt.Errorf("apply session answer: %w", err)
	}
	return nil
}

// createRealtimeSession posts the SDP offer and selected mode to the backend
// session endpoint and returns the raw session-description answer.
//
// A 429 maps to a usage-limit error with the most specific message the
// payload offers; any other non-2xx maps to a signaling error.
func (c *Client) createRealtimeSession(ctx context.Context, offerSDP, modeID string) (string, error) {
	body, err := json.Marshal(sessionCreateRequest{SDP: offerSDP, ModeID: modeID})
	if err != nil {
		return "", fmt.Errorf("encode session request: %w", err)
	}

	url := c.baseURL + "/api/realtime/session"
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("build session request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	c.authorize(req)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			err = ctx.Err()
		}
		return "", &TransportError{Op: http.MethodPost, URL: url, Err: err}
	}
	defer resp.Body.Close()

	payload, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", &TransportError{Op: http.MethodPost, URL: url, Err: err}
	}

	switch {
	case resp.StatusCode == http.StatusTooManyRequests:
		msg := errorMessageFromBody(payload)
		if msg == "" {
			msg = msgUsageLimitFallback
		}
		return "", NewUsageLimitError(msg)
	case resp.StatusCode < 200 || resp.StatusCode >= 300:
		msg := errorMessageFromBody(payload)
		if msg == "" {
			msg = msgCreateSessionFailure
		}
		return "", NewSignalingError(msg)
	}

	// The success body is the raw SDP answer, not JSON.
	return string(payload), nil
}

// errorMessageFromBody extracts the most specific human-readable message
// from an error payload: detail.message, then a plain detail string, then a
// top-level error string. Returns "" when nothing usable is present.
func errorMessageFromBody(body []byte) string {
	var payload struct {
		Detail json.RawMessage `json:"detail"`
		Error  string          `json:"error"`
	}
	if err := json.Unmarshal(body, &payload); err != nil {
		return ""
	}

	if len(payload.Detail) > 0 {
		var structured struct {
			Message string `json:"message"`
		}
		if err := json.Unmarshal(payload.Detail, &structured); err == nil && structured.Message != "" {
			return structured.Message
		}
		var plain string
		if err := json.Unmarshal(payload.Detail, &plain); err == nil && strings.TrimSpace(plain) != "" {
			return plain
		}
	}
	return strings.TrimSpace(payload.Error)
}
