package voicechat

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
)

// fakeNegotiator is a transport.Negotiator that serves a canned offer and
// records the answer it receives.
type fakeNegotiator struct {
	offer     string
	offerErr  error
	answerErr error

	gotAnswer string
}

func (f *fakeNegotiator) CreateOffer(ctx context.Context) (string, error) {
	return f.offer, f.offerErr
}

func (f *fakeNegotiator) SetAnswer(sdp string) error {
	f.gotAnswer = sdp
	return f.answerErr
}

func TestEstablishRealtimeSession_RoundTrip(t *testing.T) {
	t.Parallel()

	const answerSDP = "v=0\r\no=- 4611731400430051337 2 IN IP4 127.0.0.1\r\n"

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost || r.URL.Path != "/api/realtime/session" {
			t.Errorf("unexpected request %s %s", r.Method, r.URL.Path)
		}
		var body sessionCreateRequest
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			t.Errorf("decode request: %v", err)
		}
		if body.SDP != "v=0\r\noffer\r\n" {
			t.Errorf("sdp = %q", body.SDP)
		}
		if body.ModeID != "devils-advocate" {
			t.Errorf("modeId = %q", body.ModeID)
		}
		// Success bodies are raw SDP, not JSON.
		fmt.Fprint(w, answerSDP)
	}))
	defer server.Close()

	client := NewClient(WithBaseURL(server.URL))
	neg := &fakeNegotiator{offer: "v=0\r\noffer\r\n"}

	if err := client.establishRealtimeSession(context.Background(), neg, "devils-advocate"); err != nil {
		t.Fatalf("establishRealtimeSession error: %v", err)
	}
	if neg.gotAnswer != answerSDP {
		t.Fatalf("answer = %q, want %q", neg.gotAnswer, answerSDP)
	}
}

func TestCreateRealtimeSession_RateLimitMessages(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name string
		body string
		want string
	}{
		{"structured detail", `{"detail": {"message": "Quota exceeded", "reset_at": "2030-01-01T00:00:00Z"}}`, "Quota exceeded"},
		{"plain detail", `{"detail": "Too many sessions"}`, "Too many sessions"},
		{"error field", `{"error": "slow down"}`, "slow down"},
		{"empty body", ``, msgUsageLimitFallback},
		{"non-json body", `rate limited`, msgUsageLimitFallback},
	}

	for _, tc := range cases {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(http.StatusTooManyRequests)
				fmt.Fprint(w, tc.body)
			}))
			defer server.Close()

			client := NewClient(WithBaseURL(server.URL))
			_, err := client.createRealtimeSession(context.Background(), "v=0", "devils-advocate")

			var verr *Error
			if !errors.As(err, &verr) {
				t.Fatalf("error type = %T, want *Error", err)
			}
			if verr.Type != ErrUsageLimit {
				t.Fatalf("Type = %q, want %q", verr.Type, ErrUsageLimit)
			}
			if verr.Message != tc.want {
				t.Fatalf("Message = %q, want %q", verr.Message, tc.want)
			}
		})
	}
}

func TestCreateRealtimeSession_ServerError(t *testing.T) {
	t.Parallel()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
		fmt.Fprint(w, `{"detail": "model unavailable"}`)
	}))
	defer server.Close()

	client := NewClient(WithBaseURL(server.URL))
	_, err := client.createRealtimeSession(context.Background(), "v=0", "devils-advocate")

	var verr *Error
	if !errors.As(err, &verr) {
		t.Fatalf("error type = %T, want *Error", err)
	}
	if verr.Type != ErrSignaling {
		t.Fatalf("Type = %q, want %q", verr.Type, ErrSignaling)
	}
	if verr.Message != "model unavailable" {
		t.Fatalf("Message = %q", verr.Message)
	}
}

func TestCreateRealtimeSession_ServerErrorFallbackMessage(t *testing.T) {
	t.Parallel()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
	}))
	defer server.Close()

	client := NewClient(WithBaseURL(server.URL))
	_, err := client.createRealtimeSession(context.Background(), "v=0", "devils-advocate")

	var verr *Error
	if !errors.As(err, &verr) {
		t.Fatalf("error type = %T, want *Error", err)
	}
	if verr.Message != msgCreateSessionFailure {
		t.Fatalf("Message = %q, want %q", verr.Message, msgCreateSessionFailure)
	}
}

func TestEstablishRealtimeSession_OfferFailure(t *testing.T) {
	t.Parallel()

	client := NewClient(WithBaseURL("http://127.0.0.1:0"))
	neg := &fakeNegotiator{offerErr: errors.New("no ice candidates")}

	err := client.establishRealtimeSession(context.Background(), neg, "devils-advocate")
	if err == nil || neg.gotAnswer != "" {
		t.Fatalf("err = %v, answer = %q; want offer failure before any request", err, neg.gotAnswer)
	}
}

func TestCreateRealtimeSession_ContextCanceled(t *testing.T) {
	t.Parallel()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		<-r.Context().Done()
	}))
	defer server.Close()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	client := NewClient(WithBaseURL(server.URL))
	_, err := client.createRealtimeSession(ctx, "v=0", "devils-advocate")
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("err = %v, want context.Canceled in chain", err)
	}
}

func TestErrorMessageFromBody(t *testing.T) {
	t.Parallel()

	cases := []struct {
		body string
		want string
	}{
		{`{"detail": {"message": "inner"}}`, "inner"},
		{`{"detail": "outer"}`, "outer"},
		{`{"detail": "  "}`, ""},
		{`{"error": "top"}`, "top"},
		{`{"detail": {"code": 42}}`, ""},
		{`{}`, ""},
		{`not json`, ""},
	}
	for _, tc := range cases {
		if got := errorMessageFromBody([]byte(tc.body)); got != tc.want {
			t.Fatalf("errorMessageFromBody(%q) = %q, want %q", tc.body, got, tc.want)
		}
	}
}
