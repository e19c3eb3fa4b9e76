package transport

import (
	"context"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"time"

	"github.com/pion/webrtc/v4"
	"github.com/pion/webrtc/v4/pkg/media"
	opus "gopkg.in/hraban/opus.v2"

	"github.com/pushback-ai/voicechat/pkg/audio"
)

const (
	defaultSTUNServer   = "stun:stun.l.google.com:19302"
	defaultChannelLabel = "oai-events"

	// 20ms opus frames at 48kHz mono.
	opusFrameDuration = 20 * time.Millisecond
	opusFrameSamples  = 960
	maxOpusPacket     = 1500
)

// Config configures a WebRTC peer transport.
type Config struct {
	// STUNServers override the default public STUN server list.
	STUNServers []string

	// ChannelLabel names the auxiliary data channel.
	ChannelLabel string

	// Audio configures microphone capture and remote playback.
	Audio audio.Config

	Logger *slog.Logger
}

func (c Config) withDefaults() Config {
	if len(c.STUNServers) == 0 {
		c.STUNServers = []string{defaultSTUNServer}
	}
	if c.ChannelLabel == "" {
		c.ChannelLabel = defaultChannelLabel
	}
	if c.Logger == nil {
		c.Logger = slog.Default()
	}
	return c
}

// Peer is the WebRTC realtime transport: local microphone on an opus media
// track, remote audio to the speaker, structured events on an ordered
// reliable data channel.
type Peer struct {
	pc      *webrtc.PeerConnection
	channel *webrtc.DataChannel
	capture *audio.Capture
	player  *audio.Player
	logger  *slog.Logger

	handlers Handlers

	mu    sync.Mutex
	state State

	stop      chan struct{}
	closeOnce sync.Once
}

var _ Connection = (*Peer)(nil)
var _ Negotiator = (*Peer)(nil)

// DialPeer acquires the microphone, builds the peer connection with its
// media track and auxiliary channel, and wires remote audio to the speaker.
// Microphone acquisition runs first: without capture there is nothing to
// negotiate, and the *audio.DeviceError must reach the user untouched.
func DialPeer(ctx context.Context, cfg Config, h Handlers) (*Peer, error) {
	cfg = cfg.withDefaults()

	capture, err := audio.NewCapture(cfg.Audio)
	if err != nil {
		return nil, err
	}

	player, err := audio.NewPlayer(cfg.Audio)
	if err != nil {
		_ = capture.Close()
		return nil, err
	}

	p := &Peer{
		capture:  capture,
		player:   player,
		logger:   cfg.Logger,
		handlers: h,
		state:    StateNew,
		stop:     make(chan struct{}),
	}

	pc, err := webrtc.NewPeerConnection(webrtc.Configuration{
		ICEServers: []webrtc.ICEServer{{URLs: cfg.STUNServers}},
	})
	if err != nil {
		p.teardown()
		return nil, fmt.Errorf("create peer connection: %w", err)
	}
	p.pc = pc

	pc.OnConnectionStateChange(func(s webrtc.PeerConnectionState) {
		state := mapPeerState(s)
		p.mu.Lock()
		p.state = state
		p.mu.Unlock()
		p.handlers.stateChange(state)
	})

	sampleRate := cfg.Audio.SampleRate
	if sampleRate <= 0 {
		sampleRate = audio.DefaultSampleRate
	}
	channels := cfg.Audio.Channels
	if channels <= 0 {
		channels = audio.DefaultChannels
	}

	track, err := webrtc.NewTrackLocalStaticSample(webrtc.RTPCodecCapability{
		MimeType:  webrtc.MimeTypeOpus,
		ClockRate: uint32(sampleRate),
		Channels:  uint16(channels),
	}, "audio", "microphone")
	if err != nil {
		p.teardown()
		return nil, fmt.Errorf("create local track: %w", err)
	}
	sender, err := pc.AddTrack(track)
	if err != nil {
		p.teardown()
		return nil, fmt.Errorf("attach local track: %w", err)
	}
	go drainRTCP(sender)
	go p.pumpMicrophone(track, cfg.Audio, sampleRate, channels)

	pc.OnTrack(func(remote *webrtc.TrackRemote, _ *webrtc.RTPReceiver) {
		go p.playRemoteTrack(remote, sampleRate, channels)
	})

	ordered := true
	channel, err := pc.CreateDataChannel(cfg.ChannelLabel, &webrtc.DataChannelInit{Ordered: &ordered})
	if err != nil {
		p.teardown()
		return nil, fmt.Errorf("create event channel: %w", err)
	}
	p.channel = channel
	channel.OnOpen(func() { p.handlers.channelOpen() })
	channel.OnError(func(err error) { p.handlers.channelError(err) })
	channel.OnMessage(func(msg webrtc.DataChannelMessage) {
		p.handlers.event(msg.Data)
	})

	return p, nil
}

// CreateOffer builds and installs the local description, waits for ICE
// candidate gathering so the offer is complete in one shot, and returns the
// SDP for the signaling exchange.
func (p *Peer) CreateOffer(ctx context.Context) (string, error) {
	offer, err := p.pc.CreateOffer(nil)
	if err != nil {
		return "", fmt.Errorf("create offer: %w", err)
	}
	gathered := webrtc.GatheringCompletePromise(p.pc)
	if err := p.pc.SetLocalDescription(offer); err != nil {
		return "", fmt.Errorf("set local description: %w", err)
	}
	select {
	case <-gathered:
	case <-ctx.Done():
		return "", ctx.Err()
	}
	local := p.pc.LocalDescription()
	if local == nil {
		return "", fmt.Errorf("local description not set")
	}
	return local.SDP, nil
}

// SetAnswer installs the remote session-description answer.
func (p *Peer) SetAnswer(sdp string) error {
	err := p.pc.SetRemoteDescription(webrtc.SessionDescription{
		Type: webrtc.SDPTypeAnswer,
		SDP:  sdp,
	})
	if err != nil {
		return fmt.Errorf("set remote description: %w", err)
	}
	return nil
}

// Send serializes v onto the auxiliary channel. Events sent before the
// channel opens, or after it closes, are dropped with a warning.
func (p *Peer) Send(v any) error {
	if !p.ChannelReady() {
		p.logger.Warn("event channel not open, dropping event")
		return nil
	}
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("encode event: %w", err)
	}
	return p.channel.SendText(string(data))
}

// ChannelReady reports whether the auxiliary channel accepts sends.
func (p *Peer) ChannelReady() bool {
	return p.channel != nil && p.channel.ReadyState() == webrtc.DataChannelStateOpen
}

// State returns the last observed peer-connection state.
func (p *Peer) State() State {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.state
}

// Close releases the channel, the peer connection, and both audio devices.
// Safe to call repeatedly and on a partially-initialized peer.
func (p *Peer) Close() error {
	p.closeOnce.Do(func() {
		close(p.stop)
		p.teardown()
	})
	return nil
}

func (p *Peer) teardown() {
	if p.channel != nil {
		_ = p.channel.Close()
	}
	if p.pc != nil {
		_ = p.pc.Close()
	}
	if p.capture != nil {
		_ = p.capture.Close()
	}
	if p.player != nil {
		_ = p.player.Close()
	}
}

func (p *Peer) pumpMicrophone(track *webrtc.TrackLocalStaticSample, audioCfg audio.Config, sampleRate, channels int) {
	enc, err := opus.NewEncoder(sampleRate, channels, opusApplication(audioCfg))
	if err != nil {
		p.logger.Warn("opus encoder init failed, microphone muted", "error", err)
		return
	}

	frameBytes := opusFrameSamples * channels * 2
	pcmBytes := make([]byte, frameBytes)
	pcm := make([]int16, opusFrameSamples*channels)
	packet := make([]byte, maxOpusPacket)

	for {
		select {
		case <-p.stop:
			return
		default:
		}
		if _, err := io.ReadFull(p.capture, pcmBytes); err != nil {
			return
		}
		for i := range pcm {
			pcm[i] = int16(binary.LittleEndian.Uint16(pcmBytes[i*2:]))
		}
		n, err := enc.Encode(pcm, packet)
		if err != nil {
			p.logger.Warn("opus encode failed", "error", err)
			continue
		}
		sample := media.Sample{Data: append([]byte(nil), packet[:n]...), Duration: opusFrameDuration}
		if err := track.WriteSample(sample); err != nil {
			p.logger.Debug("write sample failed", "error", err)
		}
	}
}

func (p *Peer) playRemoteTrack(remote *webrtc.TrackRemote, sampleRate, channels int) {
	dec, err := opus.NewDecoder(sampleRate, channels)
	if err != nil {
		p.logger.Warn("opus decoder init failed, remote audio muted", "error", err)
		return
	}

	pcm := make([]int16, opusFrameSamples*channels*3)
	out := make([]byte, len(pcm)*2)

	for {
		select {
		case <-p.stop:
			return
		default:
		}
		pkt, _, err := remote.ReadRTP()
		if err != nil {
			return
		}
		if len(pkt.Payload) == 0 {
			continue
		}
		n, err := dec.Decode(pkt.Payload, pcm)
		if err != nil {
			p.logger.Debug("opus decode failed", "error", err)
			continue
		}
		samples := n * channels
		for i := 0; i < samples; i++ {
			binary.LittleEndian.PutUint16(out[i*2:], uint16(pcm[i]))
		}
		p.player.Write(out[:samples*2])
	}
}

// opusApplication selects the encoder tuning from the requested capture
// processing: any voice-processing feature picks the speech-optimized VoIP
// application, otherwise the neutral audio application.
func opusApplication(cfg audio.Config) opus.Application {
	if cfg.VoiceProcessing() {
		return opus.AppVoIP
	}
	return opus.AppAudio
}

func drainRTCP(sender *webrtc.RTPSender) {
	buf := make([]byte, 1500)
	for {
		if _, _, err := sender.Read(buf); err != nil {
			return
		}
	}
}

func mapPeerState(s webrtc.PeerConnectionState) State {
	switch s {
	case webrtc.PeerConnectionStateNew:
		return StateNew
	case webrtc.PeerConnectionStateConnecting:
		return StateConnecting
	case webrtc.PeerConnectionStateConnected:
		return StateConnected
	case webrtc.PeerConnectionStateDisconnected:
		return StateDisconnected
	case webrtc.PeerConnectionStateFailed:
		return StateFailed
	case webrtc.PeerConnectionStateClosed:
		return StateClosed
	default:
		return StateNew
	}
}
