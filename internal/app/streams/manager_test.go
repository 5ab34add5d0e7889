package streams

import (
	"context"
	"errors"
	"testing"

	"github.com/dkeye/Conference/internal/app"
	"github.com/dkeye/Conference/internal/core"
	"github.com/dkeye/Conference/internal/core/coretest"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSetupLocalStreamMuted(t *testing.T) {
	m := newTestManager()
	me := newFakeLocal("me")

	s, err := m.SetupLocalStream(context.Background(), me, "me", true)
	require.NoError(t, err)
	assert.True(t, s.IsMe)
	assert.True(t, s.IsMute)
	assert.Equal(t, "me", s.UserName)

	pub, ok := core.FirstPublication(me.Publications(), core.ContentAudio)
	require.True(t, ok)
	assert.Equal(t, core.PublicationDisabled, pub.State())

	local, ok := m.Registry().Local()
	require.True(t, ok)
	assert.True(t, local.Equal(s))
}

func TestSetupLocalStreamMicFailure(t *testing.T) {
	denied := errors.New("permission denied")
	m := NewManager(app.NewStreamRegistry(), &coretest.Microphone{Err: denied}, coretest.FrontBack(), 0)

	_, err := m.SetupLocalStream(context.Background(), newFakeLocal("me"), "me", false)
	assert.ErrorIs(t, err, app.ErrCannotGetLocalMedia)
	assert.ErrorIs(t, err, denied)
	_, ok := m.Registry().Local()
	assert.False(t, ok)
}

func TestDescribe(t *testing.T) {
	noName := &fakeMember{id: "x", metadata: "{}"}
	_, ok := Describe(noName)
	assert.False(t, ok)

	silent := &fakeMember{id: "a", metadata: `{"userName":"alice"}`}
	s, ok := Describe(silent)
	require.True(t, ok)
	assert.True(t, s.IsMute, "no audio publication counts as muted")

	talking := &fakeMember{id: "b", metadata: `{"userName":"bob"}`}
	talking.pubs = []core.Publication{&fakePub{id: "a1", kind: core.ContentAudio, publisher: talking}}
	s, ok = Describe(talking)
	require.True(t, ok)
	assert.False(t, s.IsMute)
	assert.Equal(t, "bob", s.UserName)
}

func TestJoinMemberSkipsLocalAndNameless(t *testing.T) {
	m := newTestManager()
	_, ok := m.JoinMember(newFakeLocal("me"))
	assert.False(t, ok)
	_, ok = m.JoinMember(&fakeMember{id: "x"})
	assert.False(t, ok)
	assert.Zero(t, m.Registry().Len())

	added := m.AddExistingMembers([]core.Member{
		newFakeLocal("me"),
		&fakeMember{id: "a", metadata: `{"userName":"alice"}`},
		&fakeMember{id: "b", metadata: `{"userName":"bob"}`},
	})
	assert.Len(t, added, 2)
	assert.Equal(t, 2, m.Registry().Len())
}

func TestUpdateMute(t *testing.T) {
	m := newTestManager()
	me := newFakeLocal("me")
	_, _, err := m.UpdateMute(context.Background(), me, true)
	assert.ErrorIs(t, err, app.ErrPublicationNotFound)

	_, err = m.SetupLocalStream(context.Background(), me, "me", false)
	require.NoError(t, err)
	s, ok, err := m.UpdateMute(context.Background(), me, true)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.True(t, s.IsMute)
}

func TestToggleCameraCapture(t *testing.T) {
	cam := coretest.FrontBack()
	m := NewManager(app.NewStreamRegistry(), &coretest.Microphone{}, cam, 0)
	me := newFakeLocal("me")
	_, err := m.SetupLocalStream(context.Background(), me, "me", false)
	require.NoError(t, err)

	s, ok, err := m.ToggleCameraCapture(context.Background(), me)
	require.NoError(t, err)
	require.True(t, ok)
	assert.True(t, s.HasVideo())
	dev, capturing := cam.Current()
	require.True(t, capturing)
	assert.Equal(t, core.CameraFront, dev.Position, "front camera preferred")

	require.NoError(t, m.SwitchCamera(context.Background()))
	dev, _ = cam.Current()
	assert.Equal(t, core.CameraBack, dev.Position)

	s, ok, err = m.ToggleCameraCapture(context.Background(), me)
	require.NoError(t, err)
	require.True(t, ok)
	assert.False(t, s.HasVideo())
	_, capturing = cam.Current()
	assert.False(t, capturing)
	_, hasVideo := core.FirstPublication(me.Publications(), core.ContentVideo)
	assert.False(t, hasVideo)
}

func TestToggleCameraCaptureWithoutCameras(t *testing.T) {
	m := NewManager(app.NewStreamRegistry(), &coretest.Microphone{}, &coretest.Camera{}, 0)
	me := newFakeLocal("me")
	_, _, err := m.ToggleCameraCapture(context.Background(), me)
	assert.ErrorIs(t, err, app.ErrNoSupportedCameras)
}

func TestSwitchCameraWithoutCapture(t *testing.T) {
	m := newTestManager()
	assert.ErrorIs(t, m.SwitchCamera(context.Background()), app.ErrNotFoundOtherCamera)
}
