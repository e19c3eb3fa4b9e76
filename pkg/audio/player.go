package audio

import (
	"sync"
	"time"

	"github.com/ebitengine/oto/v3"
)

// Player feeds remote PCM to the speaker.
//
// oto pulls audio through an io.Reader, so Player is a buffer bridging the
// transport's push model into that pull model. Playback starts lazily on the
// first Write to avoid an open player hissing through connection setup.
type Player struct {
	otoCtx *oto.Context
	player *oto.Player

	mu      sync.Mutex
	cond    *sync.Cond
	buf     []byte
	playing bool
	closed  bool
}

// NewPlayer opens the default playback device.
func NewPlayer(cfg Config) (*Player, error) {
	cfg = cfg.withDefaults()

	opts := &oto.NewContextOptions{
		SampleRate:   cfg.SampleRate,
		ChannelCount: cfg.Channels,
		Format:       oto.FormatSignedInt16LE,
		// Small enough to keep conversational latency.
		BufferSize: 100 * time.Millisecond,
	}
	otoCtx, ready, err := oto.NewContext(opts)
	if err != nil {
		return nil, &DeviceError{Device: "speaker", Err: err}
	}
	<-ready

	p := &Player{
		otoCtx: otoCtx,
		buf:    make([]byte, 0, cfg.SampleRate*4),
	}
	p.cond = sync.NewCond(&p.mu)
	return p, nil
}

// Write queues PCM for playback and starts the player on first data.
func (p *Player) Write(data []byte) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return
	}
	p.buf = append(p.buf, data...)
	if !p.playing {
		p.playing = true
		p.player = p.otoCtx.NewPlayer(p)
		p.player.Play()
	}
	p.cond.Signal()
}

// Read implements io.Reader for the oto player pull loop.
func (p *Player) Read(out []byte) (int, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	for len(p.buf) == 0 && !p.closed {
		p.cond.Wait()
	}
	if p.closed && len(p.buf) == 0 {
		// Silence lets oto drain without underrun artifacts.
		for i := range out {
			out[i] = 0
		}
		return len(out), nil
	}
	n := copy(out, p.buf)
	p.buf = p.buf[n:]
	return n, nil
}

// Flush drops any queued audio without stopping the player.
func (p *Player) Flush() {
	p.mu.Lock()
	p.buf = p.buf[:0]
	p.mu.Unlock()
}

// Close stops playback and wakes any blocked pull. Idempotent.
func (p *Player) Close() error {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return nil
	}
	p.closed = true
	p.mu.Unlock()
	p.cond.Broadcast()

	if p.player != nil {
		_ = p.player.Close()
	}
	return nil
}
