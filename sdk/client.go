// Package voicechat is the client SDK for a realtime voice-chat backend.
//
// A Client holds backend connectivity (session signaling, usage tracking);
// a Session owns one realtime conversation: the peer transport, the live
// transcript, and the connection lifecycle.
package voicechat

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
)

const defaultBaseURL = "http://localhost:8000"

// Client is the entry point for the SDK.
type Client struct {
	Usage *UsageService

	baseURL    string
	apiKey     string
	httpClient *http.Client
	logger     *slog.Logger
}

// NewClient creates a client for the given backend.
func NewClient(opts ...ClientOption) *Client {
	c := &Client{
		baseURL: defaultBaseURL,
		logger:  slog.Default(),
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.httpClient == nil {
		c.httpClient = newDefaultHTTPClient()
	}
	c.baseURL = strings.TrimRight(c.baseURL, "/")

	c.Usage = newUsageService(c)
	return c
}

// Health probes the backend health endpoint.
func (c *Client) Health(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/api/health", nil)
	if err != nil {
		return fmt.Errorf("build health request: %w", err)
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return &TransportError{Op: http.MethodGet, URL: c.baseURL + "/api/health", Err: err}
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("backend unhealthy (status %d)", resp.StatusCode)
	}
	return nil
}

// authorize attaches the bearer token when an API key is configured.
func (c *Client) authorize(req *http.Request) {
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}
}
