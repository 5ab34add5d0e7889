// Package coretest provides in-memory media sources for tests.
package coretest

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/dkeye/Conference/internal/core"
	"github.com/dkeye/Conference/internal/domain"
)

var ErrNotCapturing = errors.New("not capturing")

var streamSeq atomic.Int64

type Stream struct {
	StreamID string
	Content  core.ContentKind
}

func NewStream(kind core.ContentKind) *Stream {
	return &Stream{StreamID: fmt.Sprintf("%s-%d", kind, streamSeq.Add(1)), Content: kind}
}

func (s *Stream) ID() string             { return s.StreamID }
func (s *Stream) Kind() core.ContentKind { return s.Content }

type Microphone struct {
	Err     error
	Created atomic.Int32
}

func (m *Microphone) CreateStream() (core.MediaStream, error) {
	if m.Err != nil {
		return nil, m.Err
	}
	m.Created.Add(1)
	return NewStream(core.ContentAudio), nil
}

// Camera tracks capture state without producing media.
type Camera struct {
	Devices  []core.CameraDevice
	StartErr error

	mu      sync.Mutex
	current *core.CameraDevice
	stops   int
}

// FrontBack returns a camera with one front and one back device.
func FrontBack() *Camera {
	return &Camera{Devices: []core.CameraDevice{
		{ID: "back", Name: "Back", Position: core.CameraBack},
		{ID: "front", Name: "Front", Position: core.CameraFront},
	}}
}

func (c *Camera) SupportedCameras() []core.CameraDevice { return c.Devices }

func (c *Camera) Current() (core.CameraDevice, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.current == nil {
		return core.CameraDevice{}, false
	}
	return *c.current, true
}

func (c *Camera) StartCapturing(_ context.Context, dev core.CameraDevice) error {
	if c.StartErr != nil {
		return c.StartErr
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.current = &dev
	return nil
}

func (c *Camera) Change(_ context.Context, dev core.CameraDevice) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.current == nil {
		return ErrNotCapturing
	}
	c.current = &dev
	return nil
}

func (c *Camera) StopCapturing() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.current = nil
	c.stops++
}

func (c *Camera) Stops() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.stops
}

func (c *Camera) CreateStream() (core.MediaStream, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.current == nil {
		return nil, ErrNotCapturing
	}
	return NewStream(core.ContentVideo), nil
}

type AudioRouter struct {
	mu      sync.Mutex
	current domain.OutputSpeaker
	calls   int
}

func (a *AudioRouter) SetSpeaker(s domain.OutputSpeaker) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.current = s
	a.calls++
	return nil
}

func (a *AudioRouter) CurrentSpeaker() domain.OutputSpeaker {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.current
}

func (a *AudioRouter) Calls() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.calls
}
