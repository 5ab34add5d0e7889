package orch

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/dkeye/Conference/internal/adapters/loopback"
	"github.com/dkeye/Conference/internal/app"
	"github.com/dkeye/Conference/internal/core"
	"github.com/dkeye/Conference/internal/core/coretest"
	"github.com/dkeye/Conference/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var errInjected = errors.New("injected failure")

// faults switches individual transport calls of one client to fail and
// counts the cleanup calls it sees.
type faults struct {
	publish   atomic.Bool
	subscribe atomic.Bool
	cancel    atomic.Bool

	leaves   atomic.Int32
	disposes atomic.Int32
}

type faultyTransport struct {
	core.Transport
	f *faults
}

func (t *faultyTransport) FindOrCreate(ctx context.Context, kind domain.RoomKind, name domain.RoomName) (core.Room, error) {
	room, err := t.Transport.FindOrCreate(ctx, kind, name)
	if err != nil {
		return nil, err
	}
	return &faultyRoom{Room: room, f: t.f}, nil
}

type faultyRoom struct {
	core.Room
	f *faults
}

func (r *faultyRoom) Join(ctx context.Context, metadata string) (core.LocalMember, error) {
	me, err := r.Room.Join(ctx, metadata)
	if err != nil {
		return nil, err
	}
	return &faultyMember{LocalMember: me, f: r.f}, nil
}

func (r *faultyRoom) Dispose(ctx context.Context) error {
	r.f.disposes.Add(1)
	return r.Room.Dispose(ctx)
}

// SetEventHandler reports events against r so the coordinator sees them
// as coming from its current room.
func (r *faultyRoom) SetEventHandler(h core.RoomEventHandler) {
	if h == nil {
		r.Room.SetEventHandler(nil)
		return
	}
	r.Room.SetEventHandler(&roomRelay{h: h, room: r})
}

type roomRelay struct {
	h    core.RoomEventHandler
	room core.Room
}

func (x *roomRelay) OnRoomClosed(core.Room) { x.h.OnRoomClosed(x.room) }
func (x *roomRelay) OnPublicationEnabled(_ core.Room, p core.Publication) {
	x.h.OnPublicationEnabled(x.room, p)
}
func (x *roomRelay) OnPublicationDisabled(_ core.Room, p core.Publication) {
	x.h.OnPublicationDisabled(x.room, p)
}
func (x *roomRelay) OnMemberJoined(_ core.Room, m core.Member) { x.h.OnMemberJoined(x.room, m) }
func (x *roomRelay) OnMemberLeft(_ core.Room, m core.Member)   { x.h.OnMemberLeft(x.room, m) }
func (x *roomRelay) OnStreamPublished(_ core.Room, p core.Publication) {
	x.h.OnStreamPublished(x.room, p)
}
func (x *roomRelay) OnStreamUnpublished(_ core.Room, p core.Publication) {
	x.h.OnStreamUnpublished(x.room, p)
}

type faultyMember struct {
	core.LocalMember
	f *faults
}

func (m *faultyMember) Publish(ctx context.Context, stream core.MediaStream, opts core.PublicationOptions) (core.Publication, error) {
	if m.f.publish.Load() {
		return nil, core.NewTransportError(core.CodeLocalPersonPublish, "publish", errInjected)
	}
	return m.LocalMember.Publish(ctx, stream, opts)
}

// Subscribe fails with a code other than the duplicate one, so retries
// end in an error.
func (m *faultyMember) Subscribe(ctx context.Context, publicationID string, opts core.SubscriptionOptions) (core.Subscription, error) {
	if m.f.subscribe.Load() {
		return nil, core.NewTransportError(core.CodeRemotePersonSubscribe, "subscribe", errInjected)
	}
	return m.LocalMember.Subscribe(ctx, publicationID, opts)
}

func (m *faultyMember) Subscriptions() []core.Subscription {
	subs := m.LocalMember.Subscriptions()
	if !m.f.cancel.Load() {
		return subs
	}
	out := make([]core.Subscription, len(subs))
	for i, s := range subs {
		out[i] = stuckSubscription{s}
	}
	return out
}

func (m *faultyMember) Leave(ctx context.Context) error {
	m.f.leaves.Add(1)
	return m.LocalMember.Leave(ctx)
}

type stuckSubscription struct {
	core.Subscription
}

func (stuckSubscription) Cancel(context.Context) error {
	return core.NewTransportError(core.CodeSubscriptionCancel, "cancel", errInjected)
}

func newFaultyClient(t *testing.T, hub *loopback.Hub) (*client, *faults) {
	t.Helper()
	f := &faults{}
	ct := &countingTransport{Transport: &faultyTransport{Transport: hub.Transport(), f: f}}
	cam := coretest.FrontBack()
	router := &coretest.AudioRouter{}
	c := New(ct, &coretest.Microphone{}, cam, router, Options{})
	t.Cleanup(func() { _ = c.Close(context.Background()) })
	return &client{Coordinator: c, transport: ct, camera: cam, router: router}, f
}

// next returns the next event on feed whatever its kind.
func next(t *testing.T, feed *app.Feed) app.Event {
	t.Helper()
	select {
	case ev, ok := <-feed.C():
		require.True(t, ok, "feed closed")
		return ev
	case <-time.After(waitFor):
		t.Fatal("no event")
		return app.Event{}
	}
}

func requireStatus(t *testing.T, ev app.Event, kind app.StatusKind) {
	t.Helper()
	require.Equal(t, app.EventStatusError, ev.Kind)
	require.NotNil(t, ev.Status)
	assert.Equal(t, kind, ev.Status.Kind)
	assert.ErrorIs(t, ev.Status, errInjected)
}

// memberNamed looks name up among the members c currently sees.
func memberNamed(t *testing.T, c *client, name string) (core.Room, core.Member) {
	t.Helper()
	room, ok := c.conn.Room()
	require.True(t, ok, "not connected")
	for _, m := range room.Members() {
		if n, ok := domain.DecodeMetadata(m.Metadata()); ok && n == name && !m.IsLocal() {
			return room, m
		}
	}
	t.Fatalf("no member %q", name)
	return nil, nil
}

func publicationOf(t *testing.T, m core.Member, kind core.ContentKind) core.Publication {
	t.Helper()
	pub, ok := core.FirstPublication(m.Publications(), kind)
	require.True(t, ok, "no %s publication", kind)
	return pub
}

// pair connects alice through a faulty transport and bob through a plain
// one, and waits until alice has handled bob's arrival.
func pair(t *testing.T) (a *client, f *faults, b *client) {
	t.Helper()
	hub := newHub(t)
	a, f = newFaultyClient(t, hub)
	connect(t, a, "alice")
	b = newClient(t, hub, "")
	connect(t, b, "bob")
	require.Eventually(t, func() bool {
		_, ok := remote(a, "bob")
		return ok
	}, waitFor, tick)
	settle(a)
	return a, f, b
}

func TestConnectFailureAfterJoinDisconnects(t *testing.T) {
	hub := newHub(t)
	c, f := newFaultyClient(t, hub)
	f.publish.Store(true)

	err := c.Connect(context.Background(), domain.RoomMesh, "Test-1", settings("alice"))
	var te *core.TransportError
	require.ErrorAs(t, err, &te)
	assert.Same(t, te, err)
	assert.Equal(t, core.CodeLocalPersonPublish, te.Code)
	assert.ErrorIs(t, err, errInjected)

	assert.False(t, c.IsConnected())
	_, ok := c.conn.Room()
	assert.False(t, ok)
	_, ok = c.conn.Me()
	assert.False(t, ok)
	assert.Empty(t, c.Streams())
	assert.Equal(t, int32(1), f.leaves.Load())
	assert.Equal(t, int32(1), f.disposes.Load())
	assert.Equal(t, int32(1), c.transport.teardowns.Load())

	rooms := hub.List()
	require.Len(t, rooms, 1)
	assert.Zero(t, rooms[0].Members)
	assert.ErrorIs(t, c.Disconnect(context.Background()), app.ErrNowDisconnecting)
}

func TestConnectSubscribeFailureDisconnects(t *testing.T) {
	hub := newHub(t)
	b := newClient(t, hub, "")
	connect(t, b, "bob")
	a, f := newFaultyClient(t, hub)
	f.subscribe.Store(true)

	err := a.Connect(context.Background(), domain.RoomMesh, "Test-1", settings("alice"))
	assert.True(t, core.HasCode(err, core.CodeRemotePersonSubscribe))
	assert.False(t, a.IsConnected())
	assert.Equal(t, int32(1), f.leaves.Load())
	assert.Equal(t, int32(1), a.transport.teardowns.Load())
}

func TestReceiveAudioFailureFollowsChange(t *testing.T) {
	a, f, _ := pair(t)
	room, bob := memberNamed(t, a, "bob")
	pub := publicationOf(t, bob, core.ContentAudio)
	feed := a.Events(8)
	f.subscribe.Store(true)

	a.OnStreamPublished(room, pub)

	ev := next(t, feed)
	require.Equal(t, app.EventStreamChanged, ev.Kind)
	assert.Equal(t, "bob", ev.Stream.UserName)
	requireStatus(t, next(t, feed), app.StatusReceiveAudio)
}

func TestReceiveAudioDuplicateStillReportsChange(t *testing.T) {
	a, _, _ := pair(t)
	room, bob := memberNamed(t, a, "bob")
	pub := publicationOf(t, bob, core.ContentAudio)
	feed := a.Events(8)

	a.OnStreamPublished(room, pub)
	settle(a)

	ev := next(t, feed)
	require.Equal(t, app.EventStreamChanged, ev.Kind)
	assert.Empty(t, feed.C())
}

func TestReceiveVideoFailureIsReported(t *testing.T) {
	a, f, b := pair(t)
	feed := a.Events(8)
	f.subscribe.Store(true)

	_, _, err := b.SwitchShareVideo(context.Background())
	require.NoError(t, err)

	requireStatus(t, nextOf(t, feed, app.EventStatusError), app.StatusReceiveVideo)
	s, ok := remote(a, "bob")
	require.True(t, ok)
	assert.False(t, s.HasVideo())
}

func TestJoinMemberFailureIsReported(t *testing.T) {
	a, f, _ := pair(t)
	room, bob := memberNamed(t, a, "bob")
	feed := a.Events(8)
	f.subscribe.Store(true)

	a.OnMemberJoined(room, bob)

	ev := next(t, feed)
	require.Equal(t, app.EventStreamAdded, ev.Kind)
	assert.Equal(t, "bob", ev.Stream.UserName)
	requireStatus(t, next(t, feed), app.StatusJoinMember)
}

func TestRemoveVideoFailureIsReported(t *testing.T) {
	a, f, b := pair(t)
	_, _, err := b.SwitchShareVideo(context.Background())
	require.NoError(t, err)
	require.Eventually(t, func() bool {
		s, ok := remote(a, "bob")
		return ok && s.HasVideo()
	}, waitFor, tick)
	settle(a)

	room, bob := memberNamed(t, a, "bob")
	pub := publicationOf(t, bob, core.ContentVideo)
	feed := a.Events(8)
	f.cancel.Store(true)

	a.OnStreamUnpublished(room, pub)

	requireStatus(t, next(t, feed), app.StatusRemoveVideo)
	s, ok := remote(a, "bob")
	require.True(t, ok)
	assert.True(t, s.HasVideo())
}

func TestVideoPublishedBeforeJoinIsBound(t *testing.T) {
	hub := newHub(t)
	a := newClient(t, hub, "")
	connect(t, a, "alice")
	b := newClient(t, hub, "")
	connect(t, b, "bob")
	_, _, err := b.SwitchShareVideo(context.Background())
	require.NoError(t, err)
	require.Eventually(t, func() bool {
		s, ok := remote(a, "bob")
		return ok && s.HasVideo()
	}, waitFor, tick)
	settle(a)

	// Replay the publish ahead of the join, as a transport may deliver them.
	room, bob := memberNamed(t, a, "bob")
	pub := publicationOf(t, bob, core.ContentVideo)
	_, ok := a.streams.LeaveMember(domain.PeerID(bob.ID()))
	require.True(t, ok)

	a.OnStreamPublished(room, pub)
	settle(a)
	_, ok = remote(a, "bob")
	require.False(t, ok)

	feed := a.Events(8)
	a.OnMemberJoined(room, bob)
	nextOf(t, feed, app.EventStreamAdded)
	ev := nextOf(t, feed, app.EventStreamChanged)
	assert.True(t, ev.Stream.HasVideo())
	settle(a)

	s, ok := remote(a, "bob")
	require.True(t, ok)
	assert.True(t, s.HasVideo())

	me, ok := a.conn.Me()
	require.True(t, ok)
	n := 0
	for _, sub := range me.Subscriptions() {
		if sub.PublicationID() == pub.ID() {
			n++
		}
	}
	assert.Equal(t, 1, n)
}

func TestEventsAfterCloseAreDropped(t *testing.T) {
	c := newClient(t, newHub(t), "")
	connect(t, c, "alice")
	room, ok := c.conn.Room()
	require.True(t, ok)
	feed := c.Events(8)

	c.stopDispatch()
	c.OnRoomClosed(room)
	settle(c)
	assert.Empty(t, feed.C())
}

func TestCloseWhileEventsArrive(t *testing.T) {
	c := newClient(t, newHub(t), "")
	connect(t, c, "alice")
	room, ok := c.conn.Room()
	require.True(t, ok)

	done := make(chan struct{})
	go func() {
		defer close(done)
		for i := 0; i < 200; i++ {
			c.OnRoomClosed(room)
		}
	}()
	require.NoError(t, c.Close(context.Background()))
	<-done

	c.OnRoomClosed(room)
	c.inflight.Wait()
	assert.False(t, c.IsConnected())
}
