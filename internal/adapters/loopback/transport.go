package loopback

import (
	"context"
	"sync"

	"github.com/dkeye/Conference/internal/core"
	"github.com/dkeye/Conference/internal/domain"
	"github.com/rs/zerolog/log"
)

// Transport is one client's connection to a Hub.
type Transport struct {
	hub *Hub

	mu      sync.Mutex
	ready   bool
	handles []*Room
}

var _ core.Transport = (*Transport)(nil)

func (t *Transport) Setup(ctx context.Context, token string, opts core.ContextOptions) error {
	if err := ctx.Err(); err != nil {
		return transportErr(core.CodeContextSetup, "setup", err)
	}
	if !t.hub.authorize(token) {
		return transportErr(core.CodeContextSetup, "setup", ErrUnauthorized)
	}
	t.mu.Lock()
	t.ready = true
	t.mu.Unlock()
	log.Debug().Str("module", "loopback").Str("log_level", opts.LogLevel).Msg("context set up")
	return nil
}

// Teardown disposes every room handle still open on t.
func (t *Transport) Teardown(ctx context.Context) error {
	t.mu.Lock()
	if !t.ready {
		t.mu.Unlock()
		return transportErr(core.CodeContextDispose, "teardown", ErrNotSetUp)
	}
	t.ready = false
	handles := t.handles
	t.handles = nil
	t.mu.Unlock()

	for _, h := range handles {
		if err := h.Dispose(ctx); err != nil {
			log.Warn().Err(err).Str("module", "loopback").Msg("dispose on teardown")
		}
	}
	return nil
}

func (t *Transport) FindOrCreate(ctx context.Context, kind domain.RoomKind, name domain.RoomName) (core.Room, error) {
	if err := ctx.Err(); err != nil {
		return nil, transportErr(core.CodeRoomFindOrCreate, "find_or_create", err)
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	if !t.ready {
		return nil, transportErr(core.CodeRoomFindOrCreate, "find_or_create", ErrNotSetUp)
	}
	r, err := t.hub.getOrCreate(kind, name)
	if err != nil {
		return nil, transportErr(core.CodeRoomFindOrCreate, "find_or_create", err)
	}
	h, err := r.attach()
	if err != nil {
		return nil, transportErr(core.CodeRoomFindOrCreate, "find_or_create", err)
	}
	t.handles = append(t.handles, h)
	return h, nil
}

// IsReady reports whether Setup succeeded and Teardown was not called since.
func (t *Transport) IsReady() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.ready
}
