package core

import (
	"context"

	"github.com/dkeye/Conference/internal/domain"
)

// ContextOptions configures Transport.Setup.
type ContextOptions struct {
	LogLevel string
}

// Transport is the real-time room service a client talks to.
// Setup must succeed before FindOrCreate; Teardown releases it.
type Transport interface {
	Setup(ctx context.Context, token string, opts ContextOptions) error
	Teardown(ctx context.Context) error
	FindOrCreate(ctx context.Context, kind domain.RoomKind, name domain.RoomName) (Room, error)
}

// Room is a client's handle to a transport room.
type Room interface {
	ID() string
	Name() domain.RoomName
	Kind() domain.RoomKind

	Join(ctx context.Context, metadata string) (LocalMember, error)
	Dispose(ctx context.Context) error
	Members() []Member

	// SetEventHandler replaces the single handler registered for this room.
	// A nil handler stops delivery.
	SetEventHandler(h RoomEventHandler)
}

// Member is any participant of a room as seen from this client.
type Member interface {
	ID() string
	Metadata() string
	IsLocal() bool
	Publications() []Publication
}

// LocalMember is this client's own participant.
type LocalMember interface {
	Member

	Publish(ctx context.Context, stream MediaStream, opts PublicationOptions) (Publication, error)
	Subscribe(ctx context.Context, publicationID string, opts SubscriptionOptions) (Subscription, error)
	Subscriptions() []Subscription
	Leave(ctx context.Context) error
}

type PublicationOptions struct {
	MaxSubscribers int
}

type SubscriptionOptions struct{}

type PublicationState int

const (
	PublicationEnabled PublicationState = iota
	PublicationDisabled
	PublicationCanceled
)

func (s PublicationState) String() string {
	switch s {
	case PublicationEnabled:
		return "enabled"
	case PublicationDisabled:
		return "disabled"
	default:
		return "canceled"
	}
}

type Publication interface {
	ID() string
	// Publisher may be nil once the publisher left the room.
	Publisher() Member
	ContentKind() ContentKind
	State() PublicationState

	Enable(ctx context.Context) error
	Disable(ctx context.Context) error
	Cancel(ctx context.Context) error
}

type Subscription interface {
	ID() string
	PublicationID() string
	// Stream is nil for content the transport cannot render.
	Stream() MediaStream
	Cancel(ctx context.Context) error
}

// RoomEventHandler receives room notifications. Transports call it from
// their own goroutines, so implementations must not block.
type RoomEventHandler interface {
	OnRoomClosed(room Room)
	OnPublicationEnabled(room Room, pub Publication)
	OnPublicationDisabled(room Room, pub Publication)
	OnMemberJoined(room Room, member Member)
	OnMemberLeft(room Room, member Member)
	OnStreamPublished(room Room, pub Publication)
	OnStreamUnpublished(room Room, pub Publication)
}

// FirstPublication returns the first publication of kind, if any.
func FirstPublication(pubs []Publication, kind ContentKind) (Publication, bool) {
	for _, p := range pubs {
		if p.ContentKind() == kind {
			return p, true
		}
	}
	return nil, false
}
