package rtc

import (
	"context"
	"sync"

	"github.com/dkeye/Conference/internal/core"
)

// Microphone produces an Opus stream of silence frames. Only the most
// recently created stream stays live.
type Microphone struct {
	ctx context.Context

	mu      sync.Mutex
	current *LocalStream
}

var _ core.MicrophoneSource = (*Microphone)(nil)

func NewMicrophone(ctx context.Context) *Microphone {
	return &Microphone{ctx: ctx}
}

func (m *Microphone) CreateStream() (core.MediaStream, error) {
	s, err := newLocalStream(m.ctx, core.ContentAudio, OpusCodec, generatorConfig{
		payloadType: opusPayloadType,
		interval:    opusFrameInterval,
		tsStep:      opusClockRate / 50,
		payload:     func(uint16) []byte { return opusSilence },
	})
	if err != nil {
		return nil, err
	}
	m.mu.Lock()
	prev := m.current
	m.current = s
	m.mu.Unlock()
	if prev != nil {
		prev.Stop()
	}
	return s, nil
}

func (m *Microphone) Close() {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.current != nil {
		m.current.Stop()
		m.current = nil
	}
}
