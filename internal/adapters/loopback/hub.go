// Package loopback is an in-process room service. Every client of the same
// Hub sees the same rooms, which makes it usable both for tests and for a
// single-node deployment.
package loopback

import (
	"context"
	"errors"
	"sort"
	"sync"

	"github.com/dkeye/Conference/internal/core"
	"github.com/dkeye/Conference/internal/domain"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
)

var (
	ErrUnauthorized        = errors.New("invalid token")
	ErrNotSetUp            = errors.New("context is not set up")
	ErrRoomClosed          = errors.New("room is closed")
	ErrRoomKindMismatch    = errors.New("room exists with another kind")
	ErrAlreadyJoined       = errors.New("already joined")
	ErrNotJoined           = errors.New("not a member of the room")
	ErrPublicationNotFound = errors.New("publication not found")
	ErrOwnPublication      = errors.New("cannot subscribe to own publication")
	ErrAlreadySubscribed   = errors.New("already subscribed")
	ErrSubscriberLimit     = errors.New("subscriber limit reached")
	ErrNotPublisher        = errors.New("only the publisher can change a publication")
)

// RoomInfo describes a room for listings.
type RoomInfo struct {
	ID      string          `json:"id"`
	Name    domain.RoomName `json:"name"`
	Kind    string          `json:"kind"`
	Members int             `json:"members"`
}

// Hub is the room directory shared by all transports it hands out.
type Hub struct {
	ctx    context.Context
	cancel context.CancelFunc
	token  string

	mu    sync.RWMutex
	rooms map[domain.RoomName]*room
}

// NewHub creates a hub. An empty token accepts any client token.
func NewHub(parent context.Context, token string) *Hub {
	ctx, cancel := context.WithCancel(parent)
	return &Hub{
		ctx:    ctx,
		cancel: cancel,
		token:  token,
		rooms:  make(map[domain.RoomName]*room),
	}
}

// Transport returns a new client-side transport bound to h.
func (h *Hub) Transport() *Transport {
	return &Transport{hub: h}
}

func (h *Hub) authorize(token string) bool {
	return h.token == "" || h.token == token
}

func (h *Hub) getOrCreate(kind domain.RoomKind, name domain.RoomName) (*room, error) {
	h.mu.RLock()
	r, ok := h.rooms[name]
	h.mu.RUnlock()
	if !ok {
		h.mu.Lock()
		defer h.mu.Unlock()
		r, ok = h.rooms[name]
	}
	if ok {
		if r.kind != kind {
			return nil, ErrRoomKindMismatch
		}
		return r, nil
	}
	if h.ctx.Err() != nil {
		return nil, ErrRoomClosed
	}
	r = newRoom(h.ctx, uuid.NewString(), kind, name)
	h.rooms[name] = r
	log.Info().Str("module", "loopback").Str("room", string(name)).Str("kind", kind.String()).Msg("room created")
	return r, nil
}

// List returns the open rooms ordered by name.
func (h *Hub) List() []RoomInfo {
	h.mu.RLock()
	out := make([]RoomInfo, 0, len(h.rooms))
	for _, r := range h.rooms {
		out = append(out, r.info())
	}
	h.mu.RUnlock()
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// CloseRoom closes the room and notifies every client handle of it.
func (h *Hub) CloseRoom(name domain.RoomName) bool {
	h.mu.Lock()
	r, ok := h.rooms[name]
	if ok {
		delete(h.rooms, name)
	}
	h.mu.Unlock()
	if !ok {
		return false
	}
	r.close()
	log.Info().Str("module", "loopback").Str("room", string(name)).Msg("room closed")
	return true
}

// Close closes every room.
func (h *Hub) Close() {
	h.mu.Lock()
	rooms := h.rooms
	h.rooms = make(map[domain.RoomName]*room)
	h.mu.Unlock()
	for _, r := range rooms {
		r.close()
	}
	h.cancel()
}

func transportErr(code core.ErrorCode, op string, err error) error {
	return core.NewTransportError(code, op, err)
}

