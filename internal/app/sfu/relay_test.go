package sfu

import (
	"context"
	"io"
	"testing"
	"time"

	"github.com/pion/rtp"
	"github.com/pion/webrtc/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type chanSource chan *rtp.Packet

func (c chanSource) ReadRTP() (*rtp.Packet, error) {
	pkt, ok := <-c
	if !ok {
		return nil, io.EOF
	}
	return pkt, nil
}

func newTrack(t *testing.T) *webrtc.TrackLocalStaticRTP {
	t.Helper()
	track, err := webrtc.NewTrackLocalStaticRTP(webrtc.RTPCodecCapability{MimeType: webrtc.MimeTypeOpus}, "audio", "test")
	require.NoError(t, err)
	return track
}

func packet(seq uint16) *rtp.Packet {
	return &rtp.Packet{Header: rtp.Header{Version: 2, SequenceNumber: seq}, Payload: []byte{0xf8}}
}

func TestOutTrackStates(t *testing.T) {
	ot := NewOutTrack(nil)
	assert.Equal(t, TrackStateOk, ot.GetState())
	ot.MarkMuted()
	assert.Equal(t, TrackStateMuted, ot.GetState())
	ot.MarkOk()
	assert.Equal(t, TrackStateOk, ot.GetState())
	ot.MarkDelete()
	ot.MarkOk()
	assert.Equal(t, TrackStateDelete, ot.GetState(), "deleted tracks stay deleted")
}

func TestRelayManagerSubscribers(t *testing.T) {
	m := NewRelayManager()
	defer m.StopAll()
	src := make(chanSource, 4)

	_, err := m.AddSubscriber("pub", "sub", newTrack(t))
	assert.ErrorIs(t, err, ErrRelayNotFound)

	m.StartRelay(context.Background(), "pub", src)
	require.True(t, m.HasRelay("pub"))

	ot, err := m.AddSubscriber("pub", "sub", newTrack(t))
	require.NoError(t, err)
	assert.Equal(t, TrackStateOk, ot.GetState())

	m.SetMuted("pub", true)
	assert.Equal(t, TrackStateMuted, ot.GetState())
	late, err := m.AddSubscriber("pub", "late", newTrack(t))
	require.NoError(t, err)
	assert.Equal(t, TrackStateMuted, late.GetState(), "joins muted")
	m.SetMuted("pub", false)
	assert.Equal(t, TrackStateOk, ot.GetState())

	m.MarkSubscriberDelete("pub", "sub")
	assert.Equal(t, TrackStateDelete, ot.GetState())

	relay, _ := m.relay("pub")
	src <- packet(1)
	require.Eventually(t, func() bool { return relay.Subscribers() == 1 }, time.Second, 5*time.Millisecond)
}

func TestRelayEndsWithSource(t *testing.T) {
	m := NewRelayManager()
	src := make(chanSource)
	m.StartRelay(context.Background(), "pub", src)
	ot, err := m.AddSubscriber("pub", "sub", newTrack(t))
	require.NoError(t, err)

	relay, _ := m.relay("pub")
	close(src)
	select {
	case <-relay.done:
	case <-time.After(time.Second):
		t.Fatal("relay loop did not stop")
	}
	assert.Equal(t, TrackStateDelete, ot.GetState())
}

func TestStopRelay(t *testing.T) {
	m := NewRelayManager()
	src := make(chanSource, 1)
	defer close(src)
	m.StartRelay(context.Background(), "pub", src)
	ot, err := m.AddSubscriber("pub", "sub", newTrack(t))
	require.NoError(t, err)

	m.StopRelay("pub")
	assert.False(t, m.HasRelay("pub"))
	assert.Equal(t, TrackStateDelete, ot.GetState())
	m.StopRelay("pub")
}
