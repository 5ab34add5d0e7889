package app

import (
	"sync"

	"github.com/dkeye/Conference/internal/domain"
	"github.com/rs/zerolog/log"
)

// StreamRegistry is the canonical set of participant streams: at most one
// local stream and remote streams keyed by peer id, in insertion order.
type StreamRegistry struct {
	mu     sync.RWMutex
	local  *domain.Stream
	remote []domain.Stream
}

func NewStreamRegistry() *StreamRegistry {
	return &StreamRegistry{}
}

func (r *StreamRegistry) SetLocal(s domain.Stream) {
	r.mu.Lock()
	defer r.mu.Unlock()
	s.IsMe = true
	r.local = &s
	log.Debug().Str("module", "app.registry").Str("peer", string(s.PeerID)).Msg("set local stream")
}

func (r *StreamRegistry) Local() (domain.Stream, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if r.local == nil {
		return domain.Stream{}, false
	}
	return *r.local, true
}

func (r *StreamRegistry) UpdateLocalMute(muted bool) (domain.Stream, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.local == nil {
		return domain.Stream{}, false
	}
	r.local.IsMute = muted
	return *r.local, true
}

// UpdateLocalVideo sets or clears (nil) the local video handle.
func (r *StreamRegistry) UpdateLocalVideo(h domain.VideoHandle) (domain.Stream, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.local == nil {
		return domain.Stream{}, false
	}
	r.local.Video = h
	return *r.local, true
}

// PutRemote inserts s, replacing any entry with the same peer id.
func (r *StreamRegistry) PutRemote(s domain.Stream) {
	r.mu.Lock()
	defer r.mu.Unlock()
	s.IsMe = false
	if i := r.indexOf(s.PeerID); i >= 0 {
		r.remote = append(r.remote[:i], r.remote[i+1:]...)
	}
	r.remote = append(r.remote, s)
	log.Debug().Str("module", "app.registry").Str("peer", string(s.PeerID)).Int("remote", len(r.remote)).Msg("put remote stream")
}

func (r *StreamRegistry) Remote(id domain.PeerID) (domain.Stream, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if i := r.indexOf(id); i >= 0 {
		return r.remote[i], true
	}
	return domain.Stream{}, false
}

func (r *StreamRegistry) RemoveRemote(id domain.PeerID) (domain.Stream, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	i := r.indexOf(id)
	if i < 0 {
		return domain.Stream{}, false
	}
	removed := r.remote[i]
	r.remote = append(r.remote[:i], r.remote[i+1:]...)
	log.Debug().Str("module", "app.registry").Str("peer", string(id)).Msg("removed remote stream")
	return removed, true
}

// UpdateRemoteMute reports false when id is unknown; the registry is left
// untouched in that case.
func (r *StreamRegistry) UpdateRemoteMute(id domain.PeerID, muted bool) (domain.Stream, bool) {
	return r.updateRemote(id, func(s *domain.Stream) { s.IsMute = muted })
}

func (r *StreamRegistry) UpdateRemoteVideo(id domain.PeerID, h domain.VideoHandle) (domain.Stream, bool) {
	return r.updateRemote(id, func(s *domain.Stream) { s.Video = h })
}

func (r *StreamRegistry) updateRemote(id domain.PeerID, fn func(*domain.Stream)) (domain.Stream, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	i := r.indexOf(id)
	if i < 0 {
		return domain.Stream{}, false
	}
	fn(&r.remote[i])
	return r.remote[i], true
}

// All returns remote streams in insertion order followed by the local one.
func (r *StreamRegistry) All() []domain.Stream {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]domain.Stream, 0, len(r.remote)+1)
	out = append(out, r.remote...)
	if r.local != nil {
		out = append(out, *r.local)
	}
	return out
}

func (r *StreamRegistry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	n := len(r.remote)
	if r.local != nil {
		n++
	}
	return n
}

func (r *StreamRegistry) Clear() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.local = nil
	r.remote = nil
	log.Debug().Str("module", "app.registry").Msg("cleared streams")
}

// indexOf must be called with r.mu held.
func (r *StreamRegistry) indexOf(id domain.PeerID) int {
	for i := range r.remote {
		if r.remote[i].PeerID == id {
			return i
		}
	}
	return -1
}
