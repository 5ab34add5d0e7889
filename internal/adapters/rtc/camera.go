package rtc

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/dkeye/Conference/internal/core"
	"github.com/rs/zerolog/log"
)

var (
	ErrUnknownCamera = errors.New("unknown camera")
	ErrNotCapturing  = errors.New("camera is not capturing")
)

const DefaultFrameInterval = 33 * time.Millisecond

// Camera is a synthetic capture device. Each frame is a single VP8 packet
// carrying a test pattern.
type Camera struct {
	ctx      context.Context
	devices  []core.CameraDevice
	interval time.Duration

	mu      sync.Mutex
	current *core.CameraDevice
	stream  *LocalStream
}

var _ core.CameraSource = (*Camera)(nil)

func NewCamera(ctx context.Context, devices []core.CameraDevice, interval time.Duration) *Camera {
	if interval <= 0 {
		interval = DefaultFrameInterval
	}
	return &Camera{ctx: ctx, devices: devices, interval: interval}
}

func (c *Camera) SupportedCameras() []core.CameraDevice {
	return append([]core.CameraDevice(nil), c.devices...)
}

func (c *Camera) Current() (core.CameraDevice, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.current == nil {
		return core.CameraDevice{}, false
	}
	return *c.current, true
}

func (c *Camera) lookup(dev core.CameraDevice) (core.CameraDevice, bool) {
	for _, d := range c.devices {
		if d.ID == dev.ID {
			return d, true
		}
	}
	return core.CameraDevice{}, false
}

func (c *Camera) StartCapturing(ctx context.Context, dev core.CameraDevice) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	d, ok := c.lookup(dev)
	if !ok {
		return ErrUnknownCamera
	}
	c.mu.Lock()
	c.current = &d
	c.mu.Unlock()
	log.Info().Str("module", "rtc").Str("camera", d.Name).Str("position", d.Position.String()).Msg("capture started")
	return nil
}

func (c *Camera) Change(ctx context.Context, dev core.CameraDevice) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	d, ok := c.lookup(dev)
	if !ok {
		return ErrUnknownCamera
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.current == nil {
		return ErrNotCapturing
	}
	c.current = &d
	log.Info().Str("module", "rtc").Str("camera", d.Name).Str("position", d.Position.String()).Msg("camera changed")
	return nil
}

func (c *Camera) StopCapturing() {
	c.mu.Lock()
	stream := c.stream
	wasCapturing := c.current != nil
	c.current = nil
	c.stream = nil
	c.mu.Unlock()
	if stream != nil {
		stream.Stop()
	}
	if wasCapturing {
		log.Info().Str("module", "rtc").Msg("capture stopped")
	}
}

func (c *Camera) CreateStream() (core.MediaStream, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.current == nil {
		return nil, ErrNotCapturing
	}
	s, err := newLocalStream(c.ctx, core.ContentVideo, VP8Codec, generatorConfig{
		payloadType: vp8PayloadType,
		interval:    c.interval,
		tsStep:      uint32(c.interval.Seconds() * videoClockRate),
		payload:     testPattern,
	})
	if err != nil {
		return nil, err
	}
	if c.stream != nil {
		c.stream.Stop()
	}
	c.stream = s
	return s, nil
}

// testPattern returns a VP8 payload descriptor followed by a frame whose
// first byte cycles with the sequence number.
func testPattern(seq uint16) []byte {
	return []byte{0x10, 0x00, 0x00, 0x9d, 0x01, 0x2a, byte(seq)}
}
