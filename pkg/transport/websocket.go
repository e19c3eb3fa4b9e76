package transport

import (
	"context"
	"encoding/base64"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"

	"github.com/pushback-ai/voicechat/pkg/protocol"
)

// Socket is the websocket fallback transport for networks where UDP/ICE is
// unusable. Structured events ride the socket directly; microphone audio is
// base64-encoded into input_audio_buffer.append frames instead of a media
// track, so no SDP negotiation happens.
type Socket struct {
	conn   *websocket.Conn
	logger *slog.Logger

	handlers Handlers

	writeMu   sync.Mutex
	closeOnce sync.Once
	closed    atomic.Bool
	done      chan struct{}

	mu    sync.Mutex
	state State
}

var _ Connection = (*Socket)(nil)

// DialSocket connects to a realtime websocket endpoint. The connection is
// "connected" as soon as the dial succeeds, and the auxiliary channel is the
// socket itself, so OnChannelOpen fires immediately after.
func DialSocket(ctx context.Context, url string, header http.Header, h Handlers, logger *slog.Logger) (*Socket, error) {
	if logger == nil {
		logger = slog.Default()
	}

	h.stateChange(StateConnecting)
	conn, resp, err := websocket.DefaultDialer.DialContext(ctx, url, header)
	if err != nil {
		h.stateChange(StateFailed)
		if resp != nil {
			return nil, &DialError{URL: url, Status: resp.StatusCode, Err: err}
		}
		return nil, &DialError{URL: url, Err: err}
	}

	s := &Socket{
		conn:     conn,
		logger:   logger,
		handlers: h,
		done:     make(chan struct{}),
		state:    StateConnected,
	}
	h.stateChange(StateConnected)
	h.channelOpen()

	go s.readLoop()
	return s, nil
}

func (s *Socket) readLoop() {
	defer close(s.done)
	for {
		messageType, data, err := s.conn.ReadMessage()
		if err != nil {
			benign := websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) || s.closed.Load()
			s.setState(StateClosed)
			if !benign {
				s.handlers.channelError(err)
			}
			s.handlers.stateChange(StateClosed)
			return
		}
		if messageType != websocket.TextMessage {
			continue
		}
		s.handlers.event(data)
	}
}

// Send writes a structured event frame. Dropped with a warning once closed.
func (s *Socket) Send(v any) error {
	if s.closed.Load() {
		s.logger.Warn("websocket transport closed, dropping event")
		return nil
	}
	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	return s.conn.WriteJSON(v)
}

// SendAudio wraps raw PCM into an input_audio_buffer.append event.
func (s *Socket) SendAudio(pcm []byte) error {
	return s.Send(protocol.NewAudioAppend(base64.StdEncoding.EncodeToString(pcm)))
}

// ChannelReady reports whether the socket still accepts sends.
func (s *Socket) ChannelReady() bool {
	return !s.closed.Load()
}

// State returns the socket's lifecycle state.
func (s *Socket) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

func (s *Socket) setState(state State) {
	s.mu.Lock()
	s.state = state
	s.mu.Unlock()
}

// Close sends a close frame and shuts the socket. Idempotent.
func (s *Socket) Close() error {
	s.closeOnce.Do(func() {
		s.closed.Store(true)
		s.writeMu.Lock()
		_ = s.conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), time.Now().Add(2*time.Second))
		s.writeMu.Unlock()
		_ = s.conn.Close()
	})
	<-s.done
	return nil
}

// DialError reports a failed websocket dial, with the HTTP status when the
// server rejected the upgrade.
type DialError struct {
	URL    string
	Status int
	Err    error
}

func (e *DialError) Error() string {
	if e == nil {
		return ""
	}
	if e.Status != 0 {
		return fmt.Sprintf("websocket dial %s failed (status %d): %v", e.URL, e.Status, e.Err)
	}
	return fmt.Sprintf("websocket dial %s failed: %v", e.URL, e.Err)
}

func (e *DialError) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}
