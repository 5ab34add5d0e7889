package loopback

import (
	"context"
	"slices"
	"sync"

	"github.com/dkeye/Conference/internal/app/sfu"
	"github.com/dkeye/Conference/internal/core"
	"github.com/dkeye/Conference/internal/domain"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
)

// room is the state shared by every client handle of one room.
// members, publications and subscriptions are guarded by mu.
type room struct {
	id   string
	kind domain.RoomKind
	name domain.RoomName

	ctx    context.Context
	relays *sfu.RelayManager

	mu      sync.RWMutex
	members []*member
	handles map[*Room]struct{}
	closed  bool
}

func newRoom(ctx context.Context, id string, kind domain.RoomKind, name domain.RoomName) *room {
	return &room{
		id:      id,
		kind:    kind,
		name:    name,
		ctx:     ctx,
		relays:  sfu.NewRelayManager(),
		handles: make(map[*Room]struct{}),
	}
}

func (r *room) info() RoomInfo {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return RoomInfo{ID: r.id, Name: r.name, Kind: r.kind.String(), Members: len(r.members)}
}

func (r *room) attach() (*Room, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return nil, ErrRoomClosed
	}
	h := newHandle(r)
	r.handles[h] = struct{}{}
	return h, nil
}

// broadcast queues ev on every handle. Callers hold mu.
func (r *room) broadcast(ev event) {
	for h := range r.handles {
		h.enqueue(ev, h.me)
	}
}

func (r *room) close() {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return
	}
	r.closed = true
	r.broadcast(func(handler core.RoomEventHandler, h *Room, _ *member) {
		handler.OnRoomClosed(h)
	})
	r.members = nil
	r.relays.StopAll()
}

func (r *room) findPublication(id string) (*publication, bool) {
	for _, m := range r.members {
		for _, p := range m.pubs {
			if p.id == id {
				return p, true
			}
		}
	}
	return nil, false
}

func (r *room) subscriberCount(p *publication) int {
	n := 0
	for _, m := range r.members {
		for _, s := range m.subs {
			if s.pub == p {
				n++
			}
		}
	}
	return n
}

// cancelPublication removes p and every subscription to it. Callers hold mu.
func (r *room) cancelPublication(p *publication) {
	if p.state == core.PublicationCanceled {
		return
	}
	p.state = core.PublicationCanceled
	p.publisher.pubs = slices.DeleteFunc(p.publisher.pubs, func(x *publication) bool { return x == p })
	for _, m := range r.members {
		m.subs = slices.DeleteFunc(m.subs, func(s *subscription) bool { return s.pub == p })
	}
	r.relays.StopRelay(p.id)
	r.broadcast(func(handler core.RoomEventHandler, h *Room, viewer *member) {
		handler.OnStreamUnpublished(h, pubView{r: r, p: p, viewer: viewer})
	})
}

// removeMember cancels everything m owns and announces its departure.
// Callers hold mu.
func (r *room) removeMember(m *member) {
	for _, p := range slices.Clone(m.pubs) {
		r.cancelPublication(p)
	}
	for _, s := range m.subs {
		r.relays.MarkSubscriberDelete(s.pub.id, s.id)
	}
	m.subs = nil
	r.members = slices.DeleteFunc(r.members, func(x *member) bool { return x == m })
	r.broadcast(func(handler core.RoomEventHandler, h *Room, viewer *member) {
		handler.OnMemberLeft(h, memberView{r: r, m: m, viewer: viewer})
	})
	log.Info().Str("module", "loopback").Str("room", string(r.name)).Str("member", m.id).Msg("member left")
}

type event func(handler core.RoomEventHandler, h *Room, viewer *member)

type pending struct {
	ev     event
	viewer *member
}

// Room is one client's handle to a room. Events are delivered in order on
// the handle's own goroutine.
type Room struct {
	shared *room
	// me is guarded by shared.mu.
	me *member

	hmu     sync.RWMutex
	handler core.RoomEventHandler

	qmu   sync.Mutex
	queue []pending
	wake  chan struct{}
	done  chan struct{}
	once  sync.Once
}

var _ core.Room = (*Room)(nil)

func newHandle(r *room) *Room {
	h := &Room{
		shared: r,
		wake:   make(chan struct{}, 1),
		done:   make(chan struct{}),
	}
	go h.run()
	return h
}

func (h *Room) ID() string            { return h.shared.id }
func (h *Room) Name() domain.RoomName { return h.shared.name }
func (h *Room) Kind() domain.RoomKind { return h.shared.kind }

func (h *Room) SetEventHandler(handler core.RoomEventHandler) {
	h.hmu.Lock()
	h.handler = handler
	h.hmu.Unlock()
}

func (h *Room) currentHandler() core.RoomEventHandler {
	h.hmu.RLock()
	defer h.hmu.RUnlock()
	return h.handler
}

func (h *Room) Join(ctx context.Context, metadata string) (core.LocalMember, error) {
	if err := ctx.Err(); err != nil {
		return nil, transportErr(core.CodeRoomJoin, "join", err)
	}
	r := h.shared
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return nil, transportErr(core.CodeRoomJoin, "join", ErrRoomClosed)
	}
	if h.me != nil {
		return nil, transportErr(core.CodeRoomJoin, "join", ErrAlreadyJoined)
	}
	m := &member{id: uuid.NewString(), metadata: metadata}
	r.members = append(r.members, m)
	h.me = m
	r.broadcast(func(handler core.RoomEventHandler, h *Room, viewer *member) {
		handler.OnMemberJoined(h, memberView{r: r, m: m, viewer: viewer})
	})
	log.Info().Str("module", "loopback").Str("room", string(r.name)).Str("member", m.id).Msg("member joined")
	return localMember{memberView: memberView{r: r, m: m, viewer: m}, h: h}, nil
}

// Dispose leaves the room if still joined and stops event delivery.
func (h *Room) Dispose(ctx context.Context) error {
	h.once.Do(func() {
		r := h.shared
		r.mu.Lock()
		if h.me != nil && !r.closed {
			r.removeMember(h.me)
		}
		h.me = nil
		delete(r.handles, h)
		r.mu.Unlock()
		close(h.done)
	})
	return nil
}

func (h *Room) Members() []core.Member {
	r := h.shared
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]core.Member, 0, len(r.members))
	for _, m := range r.members {
		out = append(out, memberView{r: r, m: m, viewer: h.me})
	}
	return out
}

func (h *Room) enqueue(ev event, viewer *member) {
	h.qmu.Lock()
	h.queue = append(h.queue, pending{ev: ev, viewer: viewer})
	h.qmu.Unlock()
	select {
	case h.wake <- struct{}{}:
	default:
	}
}

func (h *Room) run() {
	for {
		select {
		case <-h.done:
			return
		case <-h.wake:
		}
		for {
			h.qmu.Lock()
			if len(h.queue) == 0 {
				h.qmu.Unlock()
				break
			}
			next := h.queue[0]
			h.queue = h.queue[1:]
			h.qmu.Unlock()

			if handler := h.currentHandler(); handler != nil {
				next.ev(handler, h, next.viewer)
			}
		}
	}
}
