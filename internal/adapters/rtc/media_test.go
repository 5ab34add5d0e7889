package rtc

import (
	"context"
	"io"
	"testing"
	"time"

	"github.com/dkeye/Conference/internal/core"
	"github.com/dkeye/Conference/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func devices() []core.CameraDevice {
	return []core.CameraDevice{
		{ID: "front", Name: "Front", Position: core.CameraFront},
		{ID: "back", Name: "Back", Position: core.CameraBack},
	}
}

func TestCameraCaptureLifecycle(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	cam := NewCamera(ctx, devices(), 5*time.Millisecond)

	_, err := cam.CreateStream()
	assert.ErrorIs(t, err, ErrNotCapturing)
	assert.ErrorIs(t, cam.Change(ctx, devices()[1]), ErrNotCapturing)
	assert.ErrorIs(t, cam.StartCapturing(ctx, core.CameraDevice{ID: "usb"}), ErrUnknownCamera)

	require.NoError(t, cam.StartCapturing(ctx, devices()[0]))
	cur, ok := cam.Current()
	require.True(t, ok)
	assert.Equal(t, "front", cur.ID)

	ms, err := cam.CreateStream()
	require.NoError(t, err)
	stream := ms.(*LocalStream)
	assert.Equal(t, core.ContentVideo, stream.Kind())
	assert.Equal(t, VP8Codec.MimeType, stream.Codec().MimeType)

	first, err := stream.Source().ReadRTP()
	require.NoError(t, err)
	second, err := stream.Source().ReadRTP()
	require.NoError(t, err)
	assert.Equal(t, first.SequenceNumber+1, second.SequenceNumber)
	assert.Equal(t, first.SSRC, second.SSRC)
	assert.Equal(t, uint8(vp8PayloadType), first.PayloadType)

	require.NoError(t, cam.Change(ctx, devices()[1]))
	cur, _ = cam.Current()
	assert.Equal(t, core.CameraBack, cur.Position)

	cam.StopCapturing()
	_, ok = cam.Current()
	assert.False(t, ok)
	require.Eventually(t, func() bool {
		_, err := stream.Source().ReadRTP()
		return err == io.EOF
	}, time.Second, time.Millisecond)
}

func TestMicrophoneReplacesStream(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	mic := NewMicrophone(ctx)

	first, err := mic.CreateStream()
	require.NoError(t, err)
	assert.Equal(t, core.ContentAudio, first.Kind())
	pkt, err := first.(*LocalStream).Source().ReadRTP()
	require.NoError(t, err)
	assert.Equal(t, opusSilence, pkt.Payload)

	_, err = mic.CreateStream()
	require.NoError(t, err)
	require.Eventually(t, func() bool {
		_, err := first.(*LocalStream).Source().ReadRTP()
		return err == io.EOF
	}, time.Second, time.Millisecond)

	mic.Close()
}

func TestAudioRoute(t *testing.T) {
	a := NewAudioRoute()
	assert.Equal(t, domain.SpeakerReceiver, a.CurrentSpeaker())
	require.NoError(t, a.SetSpeaker(domain.SpeakerLoud))
	assert.Equal(t, domain.SpeakerLoud, a.CurrentSpeaker())
}

func TestViewerConnectionAcceptsTrack(t *testing.T) {
	conn, err := NewViewerConnection(DefaultWebRTCConfig(nil), "viewer")
	require.NoError(t, err)
	closed := make(chan struct{})
	conn.OnClosed(func() { close(closed) })

	ms, err := NewMicrophone(context.Background()).CreateStream()
	require.NoError(t, err)
	defer ms.(*LocalStream).Stop()
	require.NoError(t, conn.AddTrack(ms.(*LocalStream).Track()))

	conn.Close()
	conn.Close()
	select {
	case <-closed:
	case <-time.After(time.Second):
		t.Fatal("OnClosed not called")
	}
}
