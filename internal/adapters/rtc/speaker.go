package rtc

import (
	"sync"

	"github.com/dkeye/Conference/internal/core"
	"github.com/dkeye/Conference/internal/domain"
	"github.com/rs/zerolog/log"
)

// AudioRoute records the selected output route. The server has no audio
// hardware, so routing only changes what is reported to clients.
type AudioRoute struct {
	mu      sync.RWMutex
	current domain.OutputSpeaker
}

var _ core.AudioRouter = (*AudioRoute)(nil)

func NewAudioRoute() *AudioRoute { return &AudioRoute{} }

func (a *AudioRoute) SetSpeaker(s domain.OutputSpeaker) error {
	a.mu.Lock()
	a.current = s
	a.mu.Unlock()
	log.Debug().Str("module", "rtc").Str("speaker", s.String()).Msg("audio route set")
	return nil
}

func (a *AudioRoute) CurrentSpeaker() domain.OutputSpeaker {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.current
}
