package app

import (
	"sync"

	"github.com/dkeye/Conference/internal/core"
)

// ConnectionState holds the joined room and local member as one pair.
// Both are present or both are absent.
type ConnectionState struct {
	mu   sync.RWMutex
	room core.Room
	me   core.LocalMember
}

func NewConnectionState() *ConnectionState {
	return &ConnectionState{}
}

// Set stores the pair. A nil half clears both.
func (s *ConnectionState) Set(room core.Room, me core.LocalMember) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if room == nil || me == nil {
		s.room, s.me = nil, nil
		return
	}
	s.room, s.me = room, me
}

// Take clears the pair and hands it to the caller. Only one caller wins.
func (s *ConnectionState) Take() (core.Room, core.LocalMember, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.room == nil || s.me == nil {
		return nil, nil, false
	}
	room, me := s.room, s.me
	s.room, s.me = nil, nil
	return room, me, true
}

func (s *ConnectionState) Room() (core.Room, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.room, s.room != nil
}

// Me returns the current local member. Callers re-read it after every
// blocking call instead of holding on to it.
func (s *ConnectionState) Me() (core.LocalMember, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.me, s.me != nil
}

func (s *ConnectionState) IsConnected() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.room != nil && s.me != nil
}
