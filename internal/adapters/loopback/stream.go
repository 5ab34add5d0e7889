package loopback

import (
	"github.com/dkeye/Conference/internal/app/sfu"
	"github.com/dkeye/Conference/internal/core"
	"github.com/pion/webrtc/v4"
)

// RTPStream is a published stream that carries real RTP media. Its packets
// are relayed to every subscriber.
type RTPStream interface {
	core.MediaStream
	Codec() webrtc.RTPCodecCapability
	Source() sfu.Source
}

// remoteStream is the subscriber side of a publication.
type remoteStream struct {
	id    string
	kind  core.ContentKind
	track *webrtc.TrackLocalStaticRTP
}

func (s *remoteStream) ID() string             { return s.id }
func (s *remoteStream) Kind() core.ContentKind { return s.kind }

// Track is the relayed RTP track, or nil when the publisher sends no media.
func (s *remoteStream) Track() *webrtc.TrackLocalStaticRTP { return s.track }
