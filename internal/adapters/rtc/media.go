package rtc

import (
	"context"
	"io"
	"math/rand/v2"
	"sync"
	"time"

	"github.com/dkeye/Conference/internal/app/sfu"
	"github.com/dkeye/Conference/internal/core"
	"github.com/google/uuid"
	"github.com/pion/rtp"
	"github.com/pion/webrtc/v4"
	"github.com/rs/zerolog/log"
)

const (
	opusFrameInterval = 20 * time.Millisecond
	opusClockRate     = 48000
	videoClockRate    = 90000

	opusPayloadType = 111
	vp8PayloadType  = 96
)

// Opus comfort-noise frame.
var opusSilence = []byte{0xf8, 0xff, 0xfe}

var (
	OpusCodec = webrtc.RTPCodecCapability{MimeType: webrtc.MimeTypeOpus, ClockRate: opusClockRate, Channels: 2}
	VP8Codec  = webrtc.RTPCodecCapability{MimeType: webrtc.MimeTypeVP8, ClockRate: videoClockRate}
)

// LocalStream is a locally generated media stream. Its packets are written
// to Track and are also readable through Source for relaying.
type LocalStream struct {
	id    string
	kind  core.ContentKind
	codec webrtc.RTPCodecCapability
	track *webrtc.TrackLocalStaticRTP
	gen   *generator
}

func newLocalStream(ctx context.Context, kind core.ContentKind, codec webrtc.RTPCodecCapability, cfg generatorConfig) (*LocalStream, error) {
	id := uuid.NewString()
	track, err := webrtc.NewTrackLocalStaticRTP(codec, kind.String(), id)
	if err != nil {
		return nil, err
	}
	s := &LocalStream{id: id, kind: kind, codec: codec, track: track}
	s.gen = newGenerator(cfg, track)
	go s.gen.run(ctx)
	return s, nil
}

func (s *LocalStream) ID() string                         { return s.id }
func (s *LocalStream) Kind() core.ContentKind             { return s.kind }
func (s *LocalStream) Codec() webrtc.RTPCodecCapability   { return s.codec }
func (s *LocalStream) Source() sfu.Source                 { return s.gen }
func (s *LocalStream) Track() *webrtc.TrackLocalStaticRTP { return s.track }

// Stop ends the stream. Readers of Source get io.EOF.
func (s *LocalStream) Stop() { s.gen.stop() }

type generatorConfig struct {
	payloadType uint8
	interval    time.Duration
	tsStep      uint32
	payload     func(seq uint16) []byte
}

// generator emits one packet per interval until stopped.
type generator struct {
	cfg   generatorConfig
	track *webrtc.TrackLocalStaticRTP

	packets chan *rtp.Packet
	done    chan struct{}
	once    sync.Once
}

func newGenerator(cfg generatorConfig, track *webrtc.TrackLocalStaticRTP) *generator {
	return &generator{
		cfg:     cfg,
		track:   track,
		packets: make(chan *rtp.Packet, 64),
		done:    make(chan struct{}),
	}
}

func (g *generator) run(ctx context.Context) {
	ticker := time.NewTicker(g.cfg.interval)
	defer ticker.Stop()

	ssrc := rand.Uint32()
	seq := uint16(rand.Uint32())
	ts := rand.Uint32()
	for {
		select {
		case <-ctx.Done():
			g.stop()
			return
		case <-g.done:
			return
		case <-ticker.C:
		}
		pkt := &rtp.Packet{
			Header: rtp.Header{
				Version:        2,
				Marker:         true,
				PayloadType:    g.cfg.payloadType,
				SequenceNumber: seq,
				Timestamp:      ts,
				SSRC:           ssrc,
			},
			Payload: g.cfg.payload(seq),
		}
		if err := g.track.WriteRTP(pkt); err != nil {
			log.Debug().Err(err).Str("module", "rtc").Msg("local track write")
		}
		select {
		case g.packets <- pkt:
		default:
		}
		seq++
		ts += g.cfg.tsStep
	}
}

func (g *generator) ReadRTP() (*rtp.Packet, error) {
	select {
	case pkt := <-g.packets:
		return pkt, nil
	case <-g.done:
		return nil, io.EOF
	}
}

func (g *generator) stop() {
	g.once.Do(func() { close(g.done) })
}
