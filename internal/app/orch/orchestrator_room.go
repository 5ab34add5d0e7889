package orch

import (
	"context"

	"github.com/dkeye/Conference/internal/app"
	"github.com/dkeye/Conference/internal/core"
	"github.com/dkeye/Conference/internal/domain"
	"github.com/rs/zerolog/log"
)

var _ core.RoomEventHandler = (*Coordinator)(nil)

// dispatch runs fn on its own goroutine when room is still the current
// room. Events from a room we already left, or arriving after Close, are
// dropped.
func (c *Coordinator) dispatch(room core.Room, event string, fn func(ctx context.Context)) {
	c.dmu.Lock()
	if c.closed {
		c.dmu.Unlock()
		log.Debug().Str("module", "orch").Str("event", event).Msg("dropping event after close")
		return
	}
	cur, ok := c.conn.Room()
	if !ok || cur != room {
		c.dmu.Unlock()
		log.Debug().Str("module", "orch").Str("event", event).Msg("dropping event for stale room")
		return
	}
	c.inflight.Add(1)
	c.dmu.Unlock()
	go func() {
		defer c.inflight.Done()
		ctx, cancel := context.WithTimeout(context.Background(), c.eventTimeout)
		defer cancel()
		fn(ctx)
	}()
}

// remotePublisher returns the publisher of pub unless it is us.
func remotePublisher(pub core.Publication) (core.Member, bool) {
	p := pub.Publisher()
	if p == nil || p.IsLocal() {
		return nil, false
	}
	return p, true
}

func (c *Coordinator) OnRoomClosed(room core.Room) {
	c.dispatch(room, "room_closed", func(context.Context) {
		log.Info().Str("module", "orch").Str("room", string(room.Name())).Msg("room closed")
		c.events.RoomClosed()
	})
}

func (c *Coordinator) OnPublicationEnabled(room core.Room, pub core.Publication) {
	c.onPublicationStateChanged(room, "publication_enabled", pub)
}

func (c *Coordinator) OnPublicationDisabled(room core.Room, pub core.Publication) {
	c.onPublicationStateChanged(room, "publication_disabled", pub)
}

func (c *Coordinator) onPublicationStateChanged(room core.Room, event string, pub core.Publication) {
	publisher, ok := remotePublisher(pub)
	if !ok || pub.ContentKind() != core.ContentAudio {
		return
	}
	c.dispatch(room, event, func(context.Context) {
		if s, ok := c.streams.UpdateRemoteMute(domain.PeerID(publisher.ID()), pub); ok {
			c.events.StreamChanged(s)
		}
	})
}

func (c *Coordinator) OnMemberJoined(room core.Room, member core.Member) {
	if member.IsLocal() {
		return
	}
	c.dispatch(room, "member_joined", func(ctx context.Context) {
		s, ok := c.streams.JoinMember(member)
		if !ok {
			return
		}
		log.Info().Str("module", "orch").Str("peer", member.ID()).Str("user", s.UserName).Msg("member joined")
		c.events.StreamAdded(s)

		// Publications may already be known when the join is handled late.
		for _, pub := range member.Publications() {
			updated, bound, err := c.streams.Subscribe(ctx, c.conn, member, pub)
			if err != nil {
				c.events.StatusError(app.StatusJoinMember, err)
				continue
			}
			if bound {
				c.events.StreamChanged(updated)
			}
		}
	})
}

func (c *Coordinator) OnMemberLeft(room core.Room, member core.Member) {
	if member.IsLocal() {
		return
	}
	c.dispatch(room, "member_left", func(context.Context) {
		if s, ok := c.streams.LeaveMember(domain.PeerID(member.ID())); ok {
			log.Info().Str("module", "orch").Str("peer", member.ID()).Msg("member left")
			c.events.StreamRemoved(s)
		}
	})
}

func (c *Coordinator) OnStreamPublished(room core.Room, pub core.Publication) {
	publisher, ok := remotePublisher(pub)
	if !ok {
		return
	}
	id := domain.PeerID(publisher.ID())
	c.dispatch(room, "stream_published", func(ctx context.Context) {
		if _, ok := c.conn.Me(); !ok {
			return
		}
		switch pub.ContentKind() {
		case core.ContentAudio:
			s, changed := c.streams.UpdateRemoteMute(id, pub)
			_, _, err := c.streams.Subscribe(ctx, c.conn, publisher, pub)
			if changed {
				c.events.StreamChanged(s)
			}
			if err != nil {
				c.events.StatusError(app.StatusReceiveAudio, err)
			}
		case core.ContentVideo:
			s, bound, err := c.streams.Subscribe(ctx, c.conn, publisher, pub)
			if err != nil {
				c.events.StatusError(app.StatusReceiveVideo, err)
				return
			}
			if bound {
				c.events.StreamChanged(s)
			}
		}
	})
}

func (c *Coordinator) OnStreamUnpublished(room core.Room, pub core.Publication) {
	publisher, ok := remotePublisher(pub)
	if !ok || pub.ContentKind() != core.ContentVideo {
		return
	}
	id := domain.PeerID(publisher.ID())
	c.dispatch(room, "stream_unpublished", func(ctx context.Context) {
		me, ok := c.conn.Me()
		if !ok {
			return
		}
		s, ok, err := c.streams.RemoveRemoteVideo(ctx, id, me, pub)
		if err != nil {
			c.events.StatusError(app.StatusRemoveVideo, err)
			return
		}
		if ok {
			c.events.StreamChanged(s)
		}
	})
}
