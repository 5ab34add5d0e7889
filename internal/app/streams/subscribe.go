package streams

import (
	"context"

	"github.com/dkeye/Conference/internal/app"
	"github.com/dkeye/Conference/internal/core"
	"github.com/dkeye/Conference/internal/domain"
	"github.com/rs/zerolog/log"
)

const MaxSubscribeAttempts = 2

// MemberSource yields the current local member, if still connected.
type MemberSource interface {
	Me() (core.LocalMember, bool)
}

// Subscribe subscribes to pub of member, retrying once. The local member is
// looked up again before each attempt. When both attempts fail because the
// publication is already subscribed, the call is a no-op.
//
// bound is true when a video stream was attached to the member's entry.
func (m *Manager) Subscribe(ctx context.Context, src MemberSource, member core.Member, pub core.Publication) (s domain.Stream, bound bool, err error) {
	var prev error
	for attempt := 1; ; attempt++ {
		me, ok := src.Me()
		if !ok {
			return domain.Stream{}, false, app.ErrCouldNotPrepareConnection
		}
		s, bound, err = m.subscribeOnce(ctx, me, member, pub)
		if err == nil {
			return s, bound, nil
		}
		if attempt >= MaxSubscribeAttempts {
			if isDuplicateSubscription(prev, err) {
				log.Debug().Str("module", "streams").Str("peer", member.ID()).Str("publication", pub.ID()).Msg("already subscribed")
				if s, ok := m.rebindVideo(src, member, pub); ok {
					return s, true, nil
				}
				return domain.Stream{}, false, nil
			}
			return domain.Stream{}, false, err
		}
		log.Warn().Err(err).Str("module", "streams").Str("peer", member.ID()).Str("publication", pub.ID()).Int("attempt", attempt).Msg("subscribe failed, retrying")
		prev = err
	}
}

func (m *Manager) subscribeOnce(ctx context.Context, me core.LocalMember, member core.Member, pub core.Publication) (domain.Stream, bool, error) {
	if pub.ContentKind() == core.ContentVideo {
		return m.AddRemoteVideo(ctx, domain.PeerID(member.ID()), me, pub)
	}
	_, err := m.subscribe(ctx, me, pub)
	return domain.Stream{}, false, err
}

// rebindVideo binds the stream of the video subscription that made the
// subscribe attempts fail as duplicates.
func (m *Manager) rebindVideo(src MemberSource, member core.Member, pub core.Publication) (domain.Stream, bool) {
	if pub.ContentKind() != core.ContentVideo {
		return domain.Stream{}, false
	}
	me, ok := src.Me()
	if !ok {
		return domain.Stream{}, false
	}
	return m.bindExistingVideo(domain.PeerID(member.ID()), me, pub)
}

func isDuplicateSubscription(first, second error) bool {
	return core.HasCode(first, core.CodeLocalPersonSubscribe) &&
		core.HasCode(second, core.CodeLocalPersonSubscribe)
}
