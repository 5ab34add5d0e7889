// Package streams turns transport publications and subscriptions into
// registry updates.
package streams

import (
	"context"
	"fmt"

	"github.com/dkeye/Conference/internal/app"
	"github.com/dkeye/Conference/internal/core"
	"github.com/dkeye/Conference/internal/domain"
	"github.com/rs/zerolog/log"
)

const DefaultMaxSubscribers = 99

type Manager struct {
	registry       *app.StreamRegistry
	mic            core.MicrophoneSource
	camera         core.CameraSource
	maxSubscribers int
}

func NewManager(registry *app.StreamRegistry, mic core.MicrophoneSource, camera core.CameraSource, maxSubscribers int) *Manager {
	if maxSubscribers <= 0 {
		maxSubscribers = DefaultMaxSubscribers
	}
	return &Manager{
		registry:       registry,
		mic:            mic,
		camera:         camera,
		maxSubscribers: maxSubscribers,
	}
}

func (m *Manager) Registry() *app.StreamRegistry { return m.registry }

// SetupLocalStream publishes the microphone and records the local stream.
func (m *Manager) SetupLocalStream(ctx context.Context, me core.LocalMember, userName string, muted bool) (domain.Stream, error) {
	if err := m.publishLocalAudio(ctx, me, muted); err != nil {
		return domain.Stream{}, err
	}
	s := domain.Stream{
		PeerID:   domain.PeerID(me.ID()),
		IsMe:     true,
		IsMute:   muted,
		UserName: userName,
	}
	m.registry.SetLocal(s)
	return s, nil
}

func (m *Manager) publishLocalAudio(ctx context.Context, me core.LocalMember, muted bool) error {
	stream, err := m.mic.CreateStream()
	if err != nil {
		return fmt.Errorf("%w: %w", app.ErrCannotGetLocalMedia, err)
	}
	pub, err := me.Publish(ctx, stream, core.PublicationOptions{MaxSubscribers: m.maxSubscribers})
	if err != nil {
		return err
	}
	log.Info().Str("module", "streams").Str("peer", me.ID()).Str("publication", pub.ID()).Bool("muted", muted).Msg("published local audio")
	if muted {
		return pub.Disable(ctx)
	}
	return nil
}

// Describe builds the stream of member from its metadata and publications.
// Members without a decodable username have no stream.
func Describe(member core.Member) (domain.Stream, bool) {
	name, ok := domain.DecodeMetadata(member.Metadata())
	if !ok {
		return domain.Stream{}, false
	}
	audio, _ := core.FirstPublication(member.Publications(), core.ContentAudio)
	return domain.Stream{
		PeerID:   domain.PeerID(member.ID()),
		IsMe:     member.IsLocal(),
		IsMute:   IsMuted(audio),
		UserName: name,
	}, true
}

// IsMuted derives the mute flag from an audio publication; no publication
// counts as muted.
func IsMuted(pub core.Publication) bool {
	return pub == nil || pub.State() != core.PublicationEnabled
}

// AddExistingMembers records every remote member already in the room.
func (m *Manager) AddExistingMembers(members []core.Member) []domain.Stream {
	out := make([]domain.Stream, 0, len(members))
	for _, member := range members {
		s, ok := m.JoinMember(member)
		if !ok {
			continue
		}
		out = append(out, s)
	}
	return out
}

// JoinMember records a remote member. Local members and members without a
// username are skipped.
func (m *Manager) JoinMember(member core.Member) (domain.Stream, bool) {
	if member.IsLocal() {
		return domain.Stream{}, false
	}
	s, ok := Describe(member)
	if !ok {
		log.Warn().Str("module", "streams").Str("peer", member.ID()).Msg("skipping member without username")
		return domain.Stream{}, false
	}
	m.registry.PutRemote(s)
	return s, true
}

func (m *Manager) LeaveMember(id domain.PeerID) (domain.Stream, bool) {
	return m.registry.RemoveRemote(id)
}

func (m *Manager) UpdateRemoteMute(id domain.PeerID, pub core.Publication) (domain.Stream, bool) {
	return m.registry.UpdateRemoteMute(id, IsMuted(pub))
}

// UpdateMute enables or disables the local audio publication.
func (m *Manager) UpdateMute(ctx context.Context, me core.LocalMember, muted bool) (domain.Stream, bool, error) {
	pub, ok := core.FirstPublication(me.Publications(), core.ContentAudio)
	if !ok {
		return domain.Stream{}, false, app.ErrPublicationNotFound
	}
	var err error
	if muted {
		err = pub.Disable(ctx)
	} else {
		err = pub.Enable(ctx)
	}
	if err != nil {
		return domain.Stream{}, false, err
	}
	s, ok := m.registry.UpdateLocalMute(muted)
	return s, ok, nil
}

// subscribe returns a nil subscription for own publications and for
// content that is neither audio nor video.
func (m *Manager) subscribe(ctx context.Context, me core.LocalMember, pub core.Publication) (core.Subscription, error) {
	if isLocalPublication(me, pub) {
		return nil, nil
	}
	switch pub.ContentKind() {
	case core.ContentAudio, core.ContentVideo:
		return me.Subscribe(ctx, pub.ID(), core.SubscriptionOptions{})
	default:
		return nil, nil
	}
}

func isLocalPublication(me core.LocalMember, pub core.Publication) bool {
	publisher := pub.Publisher()
	if publisher == nil {
		return false
	}
	return publisher.IsLocal() || publisher.ID() == me.ID()
}
