package rtc

import (
	"context"
	"errors"
	"sync"

	"github.com/pion/webrtc/v4"
	"github.com/rs/zerolog/log"
)

var ErrGatheringTimeout = errors.New("ICE gathering did not complete")

// ViewerConnection is a send-only peer connection that lets a browser watch
// relayed room tracks.
type ViewerConnection struct {
	pc     *webrtc.PeerConnection
	viewer string
	cancel context.CancelFunc

	onClosed  func()
	closeOnce sync.Once
}

func DefaultWebRTCConfig(iceServers []string) webrtc.Configuration {
	if len(iceServers) == 0 {
		return webrtc.Configuration{}
	}
	return webrtc.Configuration{
		ICEServers: []webrtc.ICEServer{{URLs: iceServers}},
	}
}

func NewViewerConnection(cfg webrtc.Configuration, viewer string) (*ViewerConnection, error) {
	pc, err := webrtc.NewPeerConnection(cfg)
	if err != nil {
		return nil, err
	}
	return &ViewerConnection{pc: pc, viewer: viewer}, nil
}

// Start installs state callbacks. The connection closes itself once ctx is
// done or ICE fails.
func (c *ViewerConnection) Start(ctx context.Context) {
	ctx, cancel := context.WithCancel(ctx)
	c.cancel = cancel

	c.pc.OnICEConnectionStateChange(func(s webrtc.ICEConnectionState) {
		log.Info().Str("module", "webrtc").Str("viewer", c.viewer).Str("ice_state", s.String()).Msg("ICE state")
		if s == webrtc.ICEConnectionStateDisconnected ||
			s == webrtc.ICEConnectionStateFailed ||
			s == webrtc.ICEConnectionStateClosed {
			cancel()
		}
	})

	c.pc.OnConnectionStateChange(func(s webrtc.PeerConnectionState) {
		log.Info().Str("module", "webrtc").Str("viewer", c.viewer).Str("peer_connection_state", s.String()).Msg("Peer state")
	})

	go func() {
		<-ctx.Done()
		c.Close()
	}()
}

// AddTrack attaches a relayed track and drains its RTCP.
func (c *ViewerConnection) AddTrack(track *webrtc.TrackLocalStaticRTP) error {
	sender, err := c.pc.AddTrack(track)
	if err != nil {
		return err
	}
	go func() {
		buf := make([]byte, 1500)
		for {
			if _, _, err := sender.Read(buf); err != nil {
				return
			}
		}
	}()
	return nil
}

// Answer applies the browser offer and returns the answer with all ICE
// candidates gathered.
func (c *ViewerConnection) Answer(ctx context.Context, offer webrtc.SessionDescription) (*webrtc.SessionDescription, error) {
	if err := c.pc.SetRemoteDescription(offer); err != nil {
		return nil, err
	}
	answer, err := c.pc.CreateAnswer(nil)
	if err != nil {
		return nil, err
	}

	gatherComplete := webrtc.GatheringCompletePromise(c.pc)
	if err := c.pc.SetLocalDescription(answer); err != nil {
		return nil, err
	}
	select {
	case <-gatherComplete:
	case <-ctx.Done():
		return nil, ErrGatheringTimeout
	}
	return c.pc.LocalDescription(), nil
}

// OnClosed sets a callback run once the connection is closed.
func (c *ViewerConnection) OnClosed(fn func()) { c.onClosed = fn }

func (c *ViewerConnection) Close() {
	c.closeOnce.Do(func() {
		if c.cancel != nil {
			c.cancel()
		}
		if err := c.pc.Close(); err != nil {
			log.Error().Err(err).Str("module", "webrtc").Str("viewer", c.viewer).Msg("close error")
		} else {
			log.Info().Str("module", "webrtc").Str("viewer", c.viewer).Msg("closed")
		}
		if c.onClosed != nil {
			c.onClosed()
		}
	})
}
