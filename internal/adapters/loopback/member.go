package loopback

import (
	"context"
	"slices"

	"github.com/dkeye/Conference/internal/core"
	"github.com/google/uuid"
	"github.com/pion/webrtc/v4"
	"github.com/rs/zerolog/log"
)

type member struct {
	id       string
	metadata string
	pubs     []*publication
	subs     []*subscription
}

type publication struct {
	id             string
	kind           core.ContentKind
	publisher      *member
	state          core.PublicationState
	maxSubscribers int
	codec          webrtc.RTPCodecCapability
	relayed        bool
}

type subscription struct {
	id         string
	pub        *publication
	subscriber *member
	stream     core.MediaStream
}

// memberView is a member as seen by viewer.
type memberView struct {
	r      *room
	m      *member
	viewer *member
}

func (v memberView) ID() string       { return v.m.id }
func (v memberView) Metadata() string { return v.m.metadata }
func (v memberView) IsLocal() bool    { return v.viewer != nil && v.m == v.viewer }

func (v memberView) Publications() []core.Publication {
	v.r.mu.RLock()
	defer v.r.mu.RUnlock()
	out := make([]core.Publication, 0, len(v.m.pubs))
	for _, p := range v.m.pubs {
		out = append(out, pubView{r: v.r, p: p, viewer: v.viewer})
	}
	return out
}

type localMember struct {
	memberView
	h *Room
}

var _ core.LocalMember = localMember{}

// joined reports whether lm is still the member of its handle. Callers hold mu.
func (lm localMember) joined() bool {
	return !lm.r.closed && lm.h.me == lm.m
}

func (lm localMember) Publish(ctx context.Context, stream core.MediaStream, opts core.PublicationOptions) (core.Publication, error) {
	if err := ctx.Err(); err != nil {
		return nil, transportErr(core.CodeLocalPersonPublish, "publish", err)
	}
	r := lm.r
	r.mu.Lock()
	defer r.mu.Unlock()
	if !lm.joined() {
		return nil, transportErr(core.CodeLocalPersonPublish, "publish", ErrNotJoined)
	}
	p := &publication{
		id:             uuid.NewString(),
		kind:           stream.Kind(),
		publisher:      lm.m,
		state:          core.PublicationEnabled,
		maxSubscribers: opts.MaxSubscribers,
	}
	if rs, ok := stream.(RTPStream); ok {
		p.codec = rs.Codec()
		p.relayed = true
		r.relays.StartRelay(r.ctx, p.id, rs.Source())
	}
	lm.m.pubs = append(lm.m.pubs, p)
	r.broadcast(func(handler core.RoomEventHandler, h *Room, viewer *member) {
		handler.OnStreamPublished(h, pubView{r: r, p: p, viewer: viewer})
	})
	log.Debug().Str("module", "loopback").Str("member", lm.m.id).Str("publication", p.id).Str("content", p.kind.String()).Msg("published")
	return pubView{r: r, p: p, viewer: lm.m}, nil
}

func (lm localMember) Subscribe(ctx context.Context, publicationID string, _ core.SubscriptionOptions) (core.Subscription, error) {
	fail := func(err error) (core.Subscription, error) {
		return nil, transportErr(core.CodeLocalPersonSubscribe, "subscribe", err)
	}
	if err := ctx.Err(); err != nil {
		return fail(err)
	}
	r := lm.r
	r.mu.Lock()
	defer r.mu.Unlock()
	if !lm.joined() {
		return fail(ErrNotJoined)
	}
	p, ok := r.findPublication(publicationID)
	if !ok {
		return fail(ErrPublicationNotFound)
	}
	if p.publisher == lm.m {
		return fail(ErrOwnPublication)
	}
	if slices.ContainsFunc(lm.m.subs, func(s *subscription) bool { return s.pub == p }) {
		return fail(ErrAlreadySubscribed)
	}
	if p.maxSubscribers > 0 && r.subscriberCount(p) >= p.maxSubscribers {
		return fail(ErrSubscriberLimit)
	}

	s := &subscription{id: uuid.NewString(), pub: p, subscriber: lm.m}
	if p.kind == core.ContentAudio || p.kind == core.ContentVideo {
		rs := &remoteStream{id: uuid.NewString(), kind: p.kind}
		if p.relayed {
			track, err := webrtc.NewTrackLocalStaticRTP(p.codec, p.kind.String(), p.id)
			if err != nil {
				return fail(err)
			}
			if _, err := r.relays.AddSubscriber(p.id, s.id, track); err != nil {
				return fail(err)
			}
			rs.track = track
		}
		s.stream = rs
	}
	lm.m.subs = append(lm.m.subs, s)
	log.Debug().Str("module", "loopback").Str("member", lm.m.id).Str("publication", p.id).Msg("subscribed")
	return subView{r: r, s: s}, nil
}

func (lm localMember) Subscriptions() []core.Subscription {
	lm.r.mu.RLock()
	defer lm.r.mu.RUnlock()
	out := make([]core.Subscription, 0, len(lm.m.subs))
	for _, s := range lm.m.subs {
		out = append(out, subView{r: lm.r, s: s})
	}
	return out
}

// Leave is a no-op once the room is closed.
func (lm localMember) Leave(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return transportErr(core.CodeMemberLeave, "leave", err)
	}
	r := lm.r
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return nil
	}
	if lm.h.me != lm.m {
		return transportErr(core.CodeMemberLeave, "leave", ErrNotJoined)
	}
	r.removeMember(lm.m)
	lm.h.me = nil
	return nil
}

type pubView struct {
	r      *room
	p      *publication
	viewer *member
}

func (v pubView) ID() string                    { return v.p.id }
func (v pubView) ContentKind() core.ContentKind { return v.p.kind }

func (v pubView) Publisher() core.Member {
	return memberView{r: v.r, m: v.p.publisher, viewer: v.viewer}
}

func (v pubView) State() core.PublicationState {
	v.r.mu.RLock()
	defer v.r.mu.RUnlock()
	return v.p.state
}

func (v pubView) Enable(ctx context.Context) error {
	return v.setState(ctx, core.PublicationEnabled)
}

func (v pubView) Disable(ctx context.Context) error {
	return v.setState(ctx, core.PublicationDisabled)
}

func (v pubView) setState(ctx context.Context, state core.PublicationState) error {
	code, op := core.CodePublicationEnable, "enable"
	if state == core.PublicationDisabled {
		code, op = core.CodePublicationDisable, "disable"
	}
	if err := ctx.Err(); err != nil {
		return transportErr(code, op, err)
	}
	r := v.r
	r.mu.Lock()
	defer r.mu.Unlock()
	switch {
	case v.viewer != v.p.publisher:
		return transportErr(code, op, ErrNotPublisher)
	case v.p.state == core.PublicationCanceled:
		return transportErr(code, op, ErrPublicationNotFound)
	case v.p.state == state:
		return nil
	}
	v.p.state = state
	muted := state == core.PublicationDisabled
	r.relays.SetMuted(v.p.id, muted)
	p := v.p
	r.broadcast(func(handler core.RoomEventHandler, h *Room, viewer *member) {
		pv := pubView{r: r, p: p, viewer: viewer}
		if muted {
			handler.OnPublicationDisabled(h, pv)
		} else {
			handler.OnPublicationEnabled(h, pv)
		}
	})
	return nil
}

func (v pubView) Cancel(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return transportErr(core.CodePublicationCancel, "cancel", err)
	}
	r := v.r
	r.mu.Lock()
	defer r.mu.Unlock()
	if v.viewer != v.p.publisher {
		return transportErr(core.CodePublicationCancel, "cancel", ErrNotPublisher)
	}
	r.cancelPublication(v.p)
	return nil
}

type subView struct {
	r *room
	s *subscription
}

func (v subView) ID() string               { return v.s.id }
func (v subView) PublicationID() string    { return v.s.pub.id }
func (v subView) Stream() core.MediaStream { return v.s.stream }

// Cancel is a no-op when the subscription is already gone.
func (v subView) Cancel(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return transportErr(core.CodeSubscriptionCancel, "cancel", err)
	}
	r := v.r
	r.mu.Lock()
	defer r.mu.Unlock()
	m := v.s.subscriber
	m.subs = slices.DeleteFunc(m.subs, func(s *subscription) bool { return s == v.s })
	r.relays.MarkSubscriberDelete(v.s.pub.id, v.s.id)
	return nil
}
