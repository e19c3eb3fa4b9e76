// Package transport owns the realtime connection to the AI service: the
// peer-to-peer audio session with its auxiliary event channel, plus a
// websocket fallback that carries audio inside protocol events.
package transport

import (
	"context"
)

// State mirrors the underlying connection's lifecycle. WebRTC transitions
// are forwarded verbatim; the websocket transport synthesizes the same set.
type State string

const (
	StateNew          State = "new"
	StateConnecting   State = "connecting"
	StateConnected    State = "connected"
	StateDisconnected State = "disconnected"
	StateFailed       State = "failed"
	StateClosed       State = "closed"
)

// Terminal reports whether the state ends the connection.
func (s State) Terminal() bool {
	switch s {
	case StateDisconnected, StateFailed, StateClosed:
		return true
	}
	return false
}

// Handlers are the callbacks a connection drives. All are optional; nil
// handlers are skipped. Callbacks run on transport goroutines and must not
// block.
type Handlers struct {
	// OnEvent receives each raw auxiliary-channel frame.
	OnEvent func(data []byte)

	// OnChannelOpen fires once the auxiliary channel is ready for sends.
	OnChannelOpen func()

	// OnChannelError reports auxiliary-channel faults.
	OnChannelError func(err error)

	// OnStateChange receives every connection-state transition.
	OnStateChange func(state State)
}

func (h Handlers) event(data []byte) {
	if h.OnEvent != nil {
		h.OnEvent(data)
	}
}

func (h Handlers) channelOpen() {
	if h.OnChannelOpen != nil {
		h.OnChannelOpen()
	}
}

func (h Handlers) channelError(err error) {
	if h.OnChannelError != nil {
		h.OnChannelError(err)
	}
}

func (h Handlers) stateChange(s State) {
	if h.OnStateChange != nil {
		h.OnStateChange(s)
	}
}

// Connection is an open realtime transport.
type Connection interface {
	// Send serializes a structured event onto the auxiliary channel.
	// Sends are best-effort: when the channel is not open the event is
	// dropped with a warning, never queued or retried.
	Send(v any) error

	// ChannelReady reports whether the auxiliary channel accepts sends.
	ChannelReady() bool

	// State returns the connection's current lifecycle state.
	State() State

	// Close tears the connection down. Idempotent and safe on a
	// partially-initialized connection.
	Close() error
}

// Negotiator is implemented by transports that bind to the remote session
// through an SDP offer/answer exchange.
type Negotiator interface {
	// CreateOffer builds the local session description, installs it, and
	// returns its SDP for the signaling exchange.
	CreateOffer(ctx context.Context) (string, error)

	// SetAnswer installs the remote session-description answer.
	SetAnswer(sdp string) error
}
