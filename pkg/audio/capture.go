package audio

import (
	"io"
	"sync"

	"github.com/gen2brain/malgo"
)

// Capture streams raw PCM from the default microphone.
//
// The device callback appends into an internal buffer; Read blocks until
// data is available, so a single goroutine can pump frames to the encoder.
type Capture struct {
	ctx    *malgo.AllocatedContext
	device *malgo.Device

	mu     sync.Mutex
	cond   *sync.Cond
	buf    []byte
	closed bool
}

// NewCapture opens the default capture device. A failure here means the
// machine has no usable microphone or access was refused, and comes back as
// a *DeviceError so the caller can surface it as user-actionable.
func NewCapture(cfg Config) (*Capture, error) {
	cfg = cfg.withDefaults()

	ctxConfig := malgo.ContextConfig{}
	ctxConfig.ThreadPriority = malgo.ThreadPriorityRealtime
	mctx, err := malgo.InitContext(nil, ctxConfig, nil)
	if err != nil {
		return nil, &DeviceError{Device: "microphone", Err: err}
	}

	c := &Capture{
		ctx: mctx,
		buf: make([]byte, 0, cfg.SampleRate*2),
	}
	c.cond = sync.NewCond(&c.mu)

	deviceConfig := malgo.DefaultDeviceConfig(malgo.Capture)
	deviceConfig.Capture.Format = malgo.FormatS16
	deviceConfig.Capture.Channels = uint32(cfg.Channels)
	deviceConfig.SampleRate = uint32(cfg.SampleRate)
	deviceConfig.PeriodSizeInMilliseconds = 20

	callbacks := malgo.DeviceCallbacks{
		Data: func(_, input []byte, _ uint32) {
			c.mu.Lock()
			if !c.closed {
				c.buf = append(c.buf, input...)
			}
			c.mu.Unlock()
			c.cond.Signal()
		},
	}

	device, err := malgo.InitDevice(mctx.Context, deviceConfig, callbacks)
	if err != nil {
		_ = mctx.Uninit()
		return nil, &DeviceError{Device: "microphone", Err: err}
	}
	c.device = device

	if err := device.Start(); err != nil {
		device.Uninit()
		_ = mctx.Uninit()
		return nil, &DeviceError{Device: "microphone", Err: err}
	}
	return c, nil
}

// Read blocks until captured PCM is available, then copies it into p.
// Returns io.EOF after Close.
func (c *Capture) Read(p []byte) (int, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	for len(c.buf) == 0 && !c.closed {
		c.cond.Wait()
	}
	if c.closed && len(c.buf) == 0 {
		return 0, io.EOF
	}
	n := copy(p, c.buf)
	c.buf = c.buf[n:]
	return n, nil
}

// Close stops the device and releases the backend context. Idempotent.
func (c *Capture) Close() error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true
	c.mu.Unlock()
	c.cond.Broadcast()

	if c.device != nil {
		_ = c.device.Stop()
		c.device.Uninit()
	}
	if c.ctx != nil {
		_ = c.ctx.Uninit()
	}
	return nil
}
