package voicechat

import (
	"fmt"
	"net/url"
)

// ErrorType categorizes session errors.
type ErrorType string

const (
	ErrPermission ErrorType = "permission_error"
	ErrTimeout    ErrorType = "timeout_error"
	ErrUsageLimit ErrorType = "usage_limit_error"
	ErrTransport  ErrorType = "transport_error"
	ErrSignaling  ErrorType = "signaling_error"
)

// Error is a typed session error. Message is the user-facing text that the
// connection state machine funnels into its error field.
type Error struct {
	Type    ErrorType `json:"type"`
	Message string    `json:"message"`

	// ResetAt carries the usage reset instant for usage-limit errors.
	ResetAt string `json:"reset_at,omitempty"`
}

func (e *Error) Error() string {
	return fmt.Sprintf("%s: %s", e.Type, e.Message)
}

// NewTimeoutError creates a timeout error.
func NewTimeoutError(message string) *Error {
	return &Error{Type: ErrTimeout, Message: message}
}

// NewUsageLimitError creates a usage-limit error.
func NewUsageLimitError(message string) *Error {
	return &Error{Type: ErrUsageLimit, Message: message}
}

// NewSignalingError creates a session-establishment error.
func NewSignalingError(message string) *Error {
	return &Error{Type: ErrSignaling, Message: message}
}

// TransportError represents HTTP transport-level failures (DNS, timeouts,
// connection reset, TLS handshake) while talking to the backend.
//
// Use errors.As(err, &TransportError{}) to distinguish transport failures
// from typed session errors (*Error).
type TransportError struct {
	Op  string
	URL string
	Err error
}

func (e *TransportError) Error() string {
	switch {
	case e == nil:
		return ""
	case e.Op != "" && e.URL != "":
		return fmt.Sprintf("transport error during %s %s: %v", e.Op, redactURLUserInfo(e.URL), e.Err)
	case e.Op != "":
		return fmt.Sprintf("transport error during %s: %v", e.Op, e.Err)
	default:
		return fmt.Sprintf("transport error: %v", e.Err)
	}
}

func (e *TransportError) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}

func redactURLUserInfo(raw string) string {
	if raw == "" {
		return raw
	}
	parsed, err := url.Parse(raw)
	if err != nil || parsed == nil {
		return raw
	}
	parsed.User = nil
	return parsed.String()
}

// User-facing error strings. The session endpoint fallbacks mirror the
// backend's own wording so the UI reads the same whether the message came
// from the payload or was synthesized locally.
const (
	msgConnectionTimeout    = "connection timeout - please try again"
	msgConnectionFailed     = "connection failed"
	msgUsageLimitFallback   = "Usage limit reached. Resets in 24 hours."
	msgCreateSessionFailure = "Failed to create session"
)
