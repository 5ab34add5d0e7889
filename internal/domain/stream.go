package domain

// PeerID identifies a room member for the lifetime of its membership.
type PeerID string

// VideoHandle is an opaque live video stream borrowed from a subscription
// or publication. Streams never own it.
type VideoHandle interface {
	ID() string
}

// Stream is the synchronized state of one conference participant.
type Stream struct {
	PeerID   PeerID `json:"peer_id"`
	IsMe     bool   `json:"is_me"`
	IsMute   bool   `json:"is_mute"`
	UserName string `json:"user_name"`

	Video VideoHandle `json:"-"`
}

// StreamKey is the comparable identity of a Stream. Handle identity is
// reduced to presence.
type StreamKey struct {
	PeerID   PeerID
	IsMe     bool
	IsMute   bool
	UserName string
	HasVideo bool
}

func (s Stream) HasVideo() bool { return s.Video != nil }

func (s Stream) Key() StreamKey {
	return StreamKey{
		PeerID:   s.PeerID,
		IsMe:     s.IsMe,
		IsMute:   s.IsMute,
		UserName: s.UserName,
		HasVideo: s.HasVideo(),
	}
}

// Equal reports whether two streams render the same.
func (s Stream) Equal(o Stream) bool { return s.Key() == o.Key() }
