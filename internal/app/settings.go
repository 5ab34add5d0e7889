package app

import (
	"sync"

	"github.com/dkeye/Conference/internal/domain"
)

// SettingsStore caches the mute flag and the speaker preference.
type SettingsStore struct {
	mu      sync.RWMutex
	muted   bool
	speaker domain.OutputSpeaker
}

func NewSettingsStore() *SettingsStore {
	return &SettingsStore{speaker: domain.SpeakerReceiver}
}

func (s *SettingsStore) IsMuted() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.muted
}

func (s *SettingsStore) SetMuted(muted bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.muted = muted
}

// ToggleMuted flips the flag and returns the new value.
func (s *SettingsStore) ToggleMuted() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.muted = !s.muted
	return s.muted
}

func (s *SettingsStore) Speaker() domain.OutputSpeaker {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.speaker
}

func (s *SettingsStore) SetSpeaker(sp domain.OutputSpeaker) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.speaker = sp
}
