package voicechat

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/pushback-ai/voicechat/pkg/audio"
	"github.com/pushback-ai/voicechat/pkg/modes"
	"github.com/pushback-ai/voicechat/pkg/protocol"
	"github.com/pushback-ai/voicechat/pkg/transcript"
	"github.com/pushback-ai/voicechat/pkg/transport"
)

// connectTimeout caps a whole connect attempt: the ~30s signaling round
// trip plus transport negotiation.
const connectTimeout = 45 * time.Second

// Snapshot is a point-in-time view of a session's connection state.
// Connected and Connecting are never simultaneously true.
type Snapshot struct {
	Connected  bool
	Connecting bool
	Err        string
	Messages   []transcript.Message
}

// Session owns one realtime conversation: transport lifecycle, the live
// transcript, timeout enforcement, and usage enforcement.
//
// All mutable state lives behind one mutex and is only touched here; the
// signaling client and usage service interact purely through calls and
// callbacks.
type Session struct {
	client *Client
	logger *slog.Logger

	mode           string
	connectTimeout time.Duration
	transportCfg   transport.Config
	socketURL      string
	now            func() time.Time
	dial           func(ctx context.Context, h transport.Handlers) (transport.Connection, error)

	onMessage func(transcript.Message)
	onState   func(Snapshot)

	mu         sync.Mutex
	connected  bool
	connecting bool
	lastErr    string
	rec        transcript.State
	conn       transport.Connection
	timer      *time.Timer

	// attempt invalidates callbacks from superseded connect attempts;
	// settled resolves the connect outcome exactly once, whichever of the
	// timeout timer and the transport state callback fires first.
	attempt int
	settled bool
}

// NewSession creates a session bound to the client's backend.
func (c *Client) NewSession(opts ...SessionOption) *Session {
	s := &Session{
		client:         c,
		logger:         c.logger,
		mode:           modes.Default().ID,
		connectTimeout: connectTimeout,
		transportCfg:   transport.Config{Audio: audio.DefaultConfig()},
		now:            time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.transportCfg.Logger == nil {
		s.transportCfg.Logger = s.logger
	}
	if s.dial == nil {
		s.dial = s.defaultDial
	}
	c.Usage.OnLimitExceeded(s.handleLimitExceeded)
	return s
}

func (s *Session) defaultDial(ctx context.Context, h transport.Handlers) (transport.Connection, error) {
	if s.socketURL != "" {
		header := make(http.Header)
		if s.client.apiKey != "" {
			header.Set("Authorization", "Bearer "+s.client.apiKey)
		}
		return transport.DialSocket(ctx, s.socketURL, header, h, s.logger)
	}
	return transport.DialPeer(ctx, s.transportCfg, h)
}

// Connect establishes the realtime session. It is a no-op while a connection
// is live or in flight, judged against the transport's own state rather than
// only the cached flags. Connect never returns an error: every failure
// resolves into the session's error state.
func (s *Session) Connect(ctx context.Context) {
	s.mu.Lock()
	if s.connecting || s.connected || s.transportBusyLocked() {
		s.mu.Unlock()
		return
	}
	s.connecting = true
	s.connected = false
	s.lastErr = ""
	s.attempt++
	s.settled = false
	attempt := s.attempt
	s.timer = time.AfterFunc(s.connectTimeout, func() { s.expireConnect(attempt) })
	s.mu.Unlock()
	s.notifyState()

	handlers := transport.Handlers{
		OnEvent: s.handleEvent,
		OnChannelOpen: func() {
			s.logger.Debug("event channel open")
		},
		OnChannelError: func(err error) {
			s.logger.Warn("event channel error", "error", err)
		},
		OnStateChange: func(st transport.State) {
			s.handleTransportState(attempt, st)
		},
	}

	conn, err := s.dial(ctx, handlers)
	if err != nil {
		s.failConnect(attempt, err)
		return
	}

	s.mu.Lock()
	if attempt != s.attempt {
		// Superseded while dialing (disconnect or timeout); discard the
		// late connection.
		s.mu.Unlock()
		_ = conn.Close()
		return
	}
	s.conn = conn
	s.mu.Unlock()

	if neg, ok := conn.(transport.Negotiator); ok {
		if err := s.client.establishRealtimeSession(ctx, neg, s.mode); err != nil {
			s.failConnect(attempt, err)
			return
		}
	}
	// "connected" arrives through the transport state callback; the timer
	// covers the remaining negotiation.
}

func (s *Session) transportBusyLocked() bool {
	if s.conn == nil {
		return false
	}
	switch s.conn.State() {
	case transport.StateConnecting, transport.StateConnected:
		return true
	}
	return false
}

// failConnect resolves a connect attempt into an error state, classifying
// the failure into a user-facing message.
func (s *Session) failConnect(attempt int, err error) {
	msg := classifyConnectError(err)
	s.logger.Warn("connect failed", "error", err)

	s.mu.Lock()
	if attempt != s.attempt || s.settled {
		s.mu.Unlock()
		return
	}
	s.attempt++
	s.settled = true
	s.teardownLocked()
	s.lastErr = msg
	s.mu.Unlock()
	s.notifyState()
}

func classifyConnectError(err error) string {
	var devErr *audio.DeviceError
	if errors.As(err, &devErr) {
		// Microphone problems must reach the user verbatim.
		return devErr.Error()
	}
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return msgConnectionTimeout
	}
	var typed *Error
	if errors.As(err, &typed) {
		return typed.Message
	}
	return err.Error()
}

// expireConnect fires when the transport has not reached "connected" within
// the absolute timeout. Bumping the attempt kills the attempt outright: a
// dial still in flight finds its generation stale when it returns, so a
// late connection can never resurrect a timed-out attempt.
func (s *Session) expireConnect(attempt int) {
	s.mu.Lock()
	if attempt != s.attempt || s.settled {
		s.mu.Unlock()
		return
	}
	s.attempt++
	s.settled = true
	s.teardownLocked()
	s.lastErr = msgConnectionTimeout
	s.mu.Unlock()
	s.notifyState()
}

// handleTransportState mirrors connection-state transitions into session
// state. Terminal transitions and "connected" each clear the connect timer,
// so whichever of the timer and this callback fires first cancels the other.
func (s *Session) handleTransportState(attempt int, st transport.State) {
	s.mu.Lock()
	if attempt != s.attempt {
		s.mu.Unlock()
		return
	}

	switch st {
	case transport.StateConnecting:
		if !s.connected {
			s.connecting = true
		}
	case transport.StateConnected:
		s.settled = true
		s.stopTimerLocked()
		s.connected = true
		s.connecting = false
	case transport.StateFailed:
		s.settled = true
		s.stopTimerLocked()
		s.teardownLocked()
		s.lastErr = msgConnectionFailed
	case transport.StateDisconnected, transport.StateClosed:
		// Benign without a prior "failed": no error surfaced.
		s.settled = true
		s.stopTimerLocked()
		s.teardownLocked()
	default:
		s.mu.Unlock()
		return
	}
	s.mu.Unlock()
	s.notifyState()
}

// Disconnect tears the session down. Idempotent and safe to call
// re-entrantly or on a never-connected session. The transcript and the last
// error survive; the caller decides whether to keep them across a reconnect.
func (s *Session) Disconnect() {
	s.mu.Lock()
	s.attempt++
	s.settled = true
	s.teardownLocked()
	s.mu.Unlock()
	s.notifyState()
}

// Close releases the session unconditionally. Suitable for defer.
func (s *Session) Close() {
	s.Disconnect()
}

// teardownLocked releases transport resources and resets per-connection
// reconciler state. Tolerates partially-constructed state: every member may
// be absent.
func (s *Session) teardownLocked() {
	s.stopTimerLocked()
	if s.conn != nil {
		conn := s.conn
		s.conn = nil
		// Close outside the lock; transport callbacks may need it.
		go func() { _ = conn.Close() }()
	}
	s.connected = false
	s.connecting = false
	s.rec = s.rec.Reset()
}

func (s *Session) stopTimerLocked() {
	if s.timer != nil {
		s.timer.Stop()
		s.timer = nil
	}
}

// SendEvent forwards a structured event to the auxiliary channel. Events are
// dropped with a warning when no channel is ready; nothing is queued.
func (s *Session) SendEvent(v any) {
	s.mu.Lock()
	conn := s.conn
	s.mu.Unlock()
	if conn == nil || !conn.ChannelReady() {
		s.logger.Warn("no open event channel, dropping event")
		return
	}
	if err := conn.Send(v); err != nil {
		s.logger.Warn("event send failed", "error", err)
	}
}

// RequestResponse asks the service to start an assistant turn.
func (s *Session) RequestResponse() {
	s.SendEvent(protocol.NewResponseCreate())
}

// Snapshot returns a copy of the current connection state.
func (s *Session) Snapshot() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.snapshotLocked()
}

func (s *Session) snapshotLocked() Snapshot {
	return Snapshot{
		Connected:  s.connected,
		Connecting: s.connecting,
		Err:        s.lastErr,
		Messages:   append([]transcript.Message(nil), s.rec.Messages...),
	}
}

func (s *Session) notifyState() {
	if s.onState == nil {
		return
	}
	s.onState(s.Snapshot())
}

// handleEvent feeds each inbound auxiliary-channel frame through the
// reconciler. Malformed frames are logged and discarded; they never affect
// connection state.
func (s *Session) handleEvent(data []byte) {
	ev, err := protocol.Decode(data)
	if err != nil {
		s.logger.Warn("discarding malformed event", "error", err)
		return
	}

	s.mu.Lock()
	next, fx := transcript.Apply(s.rec, ev, s.now)
	s.rec = next
	s.mu.Unlock()

	for _, msg := range fx.NewMessages {
		if s.onMessage != nil {
			s.onMessage(msg)
		}
	}
	if fx.ReportTokens > 0 {
		go s.reportTurnUsage(fx.ReportTokens)
	}
	if len(fx.NewMessages) > 0 {
		s.notifyState()
	}
}

// reportTurnUsage forwards a turn's token count to the usage service.
// Failures are logged and swallowed; a failed report never interrupts an
// active conversation.
func (s *Session) reportTurnUsage(tokens int) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if _, err := s.client.Usage.Report(ctx, tokens); err != nil {
		s.logger.Warn("usage report failed", "error", err)
	}
}

// handleLimitExceeded forces a disconnect with a reset-time-aware message
// when a usage report says the account's quota is exhausted.
func (s *Session) handleLimitExceeded(resetAt string) {
	s.mu.Lock()
	s.lastErr = "Usage limit reached. Resets " + FormatResetTime(resetAt) + "."
	s.mu.Unlock()
	s.Disconnect()
}
