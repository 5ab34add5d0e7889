// Package session keeps one Coordinator per browser session.
package session

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/dkeye/Conference/internal/app"
	"github.com/dkeye/Conference/internal/app/orch"
	"github.com/dkeye/Conference/internal/core"
	"github.com/dkeye/Conference/internal/domain"
	"github.com/rs/zerolog/log"
)

const closeTimeout = 10 * time.Second

// Factory builds a coordinator for a new session. release frees whatever
// the coordinator was built on and runs after the coordinator is closed.
type Factory func(ctx context.Context, sid core.SessionID) (c *orch.Coordinator, release func())

type sessionEntry struct {
	Coord    *orch.Coordinator
	RoomName domain.RoomName
	RoomKind domain.RoomKind
	Release  func()
	Cancel   context.CancelFunc
}

type Registry struct {
	ctx     context.Context
	factory Factory

	mu       sync.RWMutex
	sessions map[core.SessionID]*sessionEntry
}

func NewRegistry(ctx context.Context, factory Factory) *Registry {
	return &Registry{
		ctx:      ctx,
		factory:  factory,
		sessions: make(map[core.SessionID]*sessionEntry),
	}
}

// GetOrCreate returns the coordinator of sid, building it on first use.
func (r *Registry) GetOrCreate(sid core.SessionID) *orch.Coordinator {
	r.mu.RLock()
	e, ok := r.sessions[sid]
	r.mu.RUnlock()
	if ok {
		return e.Coord
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if e, ok = r.sessions[sid]; ok {
		return e.Coord
	}
	ctx, cancel := context.WithCancel(r.ctx)
	coord, release := r.factory(ctx, sid)
	e = &sessionEntry{Coord: coord, Release: release, Cancel: cancel}
	r.sessions[sid] = e
	go r.watch(ctx, sid, coord, coord.Events(8))
	log.Info().Str("module", "app.session").Str("sid", string(sid)).Msg("created session")
	return coord
}

func (r *Registry) Get(sid core.SessionID) (*orch.Coordinator, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if e, ok := r.sessions[sid]; ok {
		return e.Coord, true
	}
	return nil, false
}

// watch disconnects the session when its room is closed.
func (r *Registry) watch(ctx context.Context, sid core.SessionID, coord *orch.Coordinator, feed *app.Feed) {
	defer feed.Close()
	logger := log.With().Str("module", "app.session").Str("sid", string(sid)).Logger()
	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-feed.C():
			if !ok {
				return
			}
			if ev.Kind != app.EventRoomClosed {
				continue
			}
			logger.Info().Msg("room closed, disconnecting")
			if err := coord.Disconnect(ctx); err != nil && !errors.Is(err, app.ErrNowDisconnecting) {
				logger.Warn().Err(err).Msg("disconnect after room closed")
			}
			r.RemoveRoom(sid)
		}
	}
}

func (r *Registry) UpdateRoom(sid core.SessionID, kind domain.RoomKind, name domain.RoomName) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	e, ok := r.sessions[sid]
	if !ok {
		return false
	}
	e.RoomKind, e.RoomName = kind, name
	log.Info().Str("module", "app.session").Str("sid", string(sid)).Str("room", string(name)).Msg("updated room")
	return true
}

// RoomOf returns the room sid is connected to.
func (r *Registry) RoomOf(sid core.SessionID) (domain.RoomKind, domain.RoomName, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	e, ok := r.sessions[sid]
	if !ok || e.RoomName == "" {
		return 0, "", false
	}
	return e.RoomKind, e.RoomName, true
}

func (r *Registry) RemoveRoom(sid core.SessionID) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if e, ok := r.sessions[sid]; ok {
		e.RoomName = ""
	}
}

// Remove closes and forgets the session.
func (r *Registry) Remove(ctx context.Context, sid core.SessionID) error {
	r.mu.Lock()
	e, ok := r.sessions[sid]
	delete(r.sessions, sid)
	r.mu.Unlock()
	if !ok {
		return nil
	}
	log.Info().Str("module", "app.session").Str("sid", string(sid)).Msg("removing session")
	return closeEntry(ctx, e)
}

func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.sessions)
}

// Close closes every session.
func (r *Registry) Close() {
	r.mu.Lock()
	sessions := r.sessions
	r.sessions = make(map[core.SessionID]*sessionEntry)
	r.mu.Unlock()

	ctx, cancel := context.WithTimeout(context.Background(), closeTimeout)
	defer cancel()
	for sid, e := range sessions {
		if err := closeEntry(ctx, e); err != nil {
			log.Warn().Err(err).Str("module", "app.session").Str("sid", string(sid)).Msg("close session")
		}
	}
}

func closeEntry(ctx context.Context, e *sessionEntry) error {
	e.Cancel()
	err := e.Coord.Close(ctx)
	if e.Release != nil {
		e.Release()
	}
	return err
}
