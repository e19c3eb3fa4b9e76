package voicechat

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/pushback-ai/voicechat/pkg/transcript"
	"github.com/pushback-ai/voicechat/pkg/transport"
)

// ClientOption configures a Client.
type ClientOption func(*Client)

// WithBaseURL sets the backend base URL (scheme + host, no trailing slash).
func WithBaseURL(url string) ClientOption {
	return func(c *Client) {
		c.baseURL = url
	}
}

// WithAPIKey sets the backend API key, sent as a bearer token when present.
func WithAPIKey(key string) ClientOption {
	return func(c *Client) {
		c.apiKey = key
	}
}

// WithHTTPClient sets a custom HTTP client.
func WithHTTPClient(client *http.Client) ClientOption {
	return func(c *Client) {
		c.httpClient = client
	}
}

// WithLogger sets the logger for the client and everything it builds.
func WithLogger(l *slog.Logger) ClientOption {
	return func(c *Client) {
		c.logger = l
	}
}

// SessionOption configures a Session.
type SessionOption func(*Session)

// WithMode selects the conversation mode sent during session setup.
func WithMode(modeID string) SessionOption {
	return func(s *Session) {
		s.mode = modeID
	}
}

// WithConnectTimeout overrides the absolute connection timeout (default 45s).
func WithConnectTimeout(d time.Duration) SessionOption {
	return func(s *Session) {
		s.connectTimeout = d
	}
}

// WithOnMessage registers a callback invoked for each newly materialized
// transcript message.
func WithOnMessage(fn func(transcript.Message)) SessionOption {
	return func(s *Session) {
		s.onMessage = fn
	}
}

// WithOnStateChange registers a callback invoked after every connection-state
// mutation with a fresh snapshot.
func WithOnStateChange(fn func(Snapshot)) SessionOption {
	return func(s *Session) {
		s.onState = fn
	}
}

// WithTransportConfig replaces the WebRTC transport configuration wholesale,
// including the default audio config with its voice-processing features.
func WithTransportConfig(cfg transport.Config) SessionOption {
	return func(s *Session) {
		s.transportCfg = cfg
	}
}

// WithWebSocketURL switches the session to the websocket fallback transport,
// dialed at the given realtime endpoint instead of negotiating a peer
// connection.
func WithWebSocketURL(url string) SessionOption {
	return func(s *Session) {
		s.socketURL = url
	}
}

// WithDialer replaces the transport dialer. Used by tests to run the state
// machine against a fake transport.
func WithDialer(dial func(ctx context.Context, h transport.Handlers) (transport.Connection, error)) SessionOption {
	return func(s *Session) {
		s.dial = dial
	}
}

// WithClock replaces the reconciler clock. Used by tests for deterministic
// message timestamps.
func WithClock(now func() time.Time) SessionOption {
	return func(s *Session) {
		s.now = now
	}
}
