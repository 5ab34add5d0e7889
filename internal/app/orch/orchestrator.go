package orch

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"github.com/dkeye/Conference/internal/app"
	"github.com/dkeye/Conference/internal/app/streams"
	"github.com/dkeye/Conference/internal/core"
	"github.com/dkeye/Conference/internal/domain"
	"github.com/rs/zerolog/log"
)

const defaultEventTimeout = 30 * time.Second

type Options struct {
	Token          string
	ContextOptions core.ContextOptions
	MaxSubscribers int
	// EventPolicy handles slow event feeds. Defaults to app.LossyPolicy.
	EventPolicy  app.Policy
	EventTimeout time.Duration
}

// Coordinator drives one client's connection to a conference room and keeps
// its stream registry in sync with the room.
type Coordinator struct {
	transport core.Transport
	router    core.AudioRouter

	conn     *app.ConnectionState
	settings *app.SettingsStore
	streams  *streams.Manager
	events   *app.EventBus

	token        string
	ctxOpts      core.ContextOptions
	eventTimeout time.Duration

	connecting atomic.Bool

	// dmu orders dispatch against Close: no handler starts once closed is set.
	dmu      sync.Mutex
	closed   bool
	inflight sync.WaitGroup
}

func New(transport core.Transport, mic core.MicrophoneSource, camera core.CameraSource, router core.AudioRouter, opts Options) *Coordinator {
	if opts.EventTimeout <= 0 {
		opts.EventTimeout = defaultEventTimeout
	}
	registry := app.NewStreamRegistry()
	return &Coordinator{
		transport:    transport,
		router:       router,
		conn:         app.NewConnectionState(),
		settings:     app.NewSettingsStore(),
		streams:      streams.NewManager(registry, mic, camera, opts.MaxSubscribers),
		events:       app.NewEventBus(opts.EventPolicy),
		token:        opts.Token,
		ctxOpts:      opts.ContextOptions,
		eventTimeout: opts.EventTimeout,
	}
}

// Connect joins the room and synchronizes the streams already in it.
func (c *Coordinator) Connect(ctx context.Context, kind domain.RoomKind, name domain.RoomName, settings domain.CallSettings) error {
	if c.conn.IsConnected() || !c.connecting.CompareAndSwap(false, true) {
		return app.ErrAlreadyConnected
	}
	defer c.connecting.Store(false)

	logger := log.With().Str("module", "orch").Str("room", string(name)).Str("kind", kind.String()).Logger()

	metadata, err := domain.EncodeMetadata(settings.UserName)
	if err != nil {
		return err
	}
	if err := c.transport.Setup(ctx, c.token, c.ctxOpts); err != nil {
		return transportError(err)
	}
	room, err := c.transport.FindOrCreate(ctx, kind, name)
	if err != nil {
		c.teardownQuietly(ctx)
		return transportError(err)
	}
	room.SetEventHandler(c)

	me, err := room.Join(ctx, metadata)
	if err != nil {
		room.SetEventHandler(nil)
		if derr := room.Dispose(ctx); derr != nil {
			logger.Warn().Err(derr).Msg("dispose after failed join")
		}
		c.teardownQuietly(ctx)
		return transportError(err)
	}
	c.conn.Set(room, me)
	logger.Info().Str("peer", me.ID()).Msg("joined")

	if err := c.prepare(ctx, settings); err != nil {
		logger.Error().Err(err).Msg("connect failed, disconnecting")
		if derr := c.Disconnect(ctx); derr != nil {
			logger.Warn().Err(derr).Msg("disconnect after failed connect")
		}
		return transportError(err)
	}
	logger.Info().Int("streams", c.streams.Registry().Len()).Msg("connected")
	return nil
}

// prepare runs after join. The local member is read again at every step
// since a concurrent Disconnect may have cleared it.
func (c *Coordinator) prepare(ctx context.Context, settings domain.CallSettings) error {
	me, ok := c.conn.Me()
	if !ok {
		return app.ErrCouldNotPrepareConnection
	}
	if _, err := c.streams.SetupLocalStream(ctx, me, settings.UserName, settings.Muted); err != nil {
		return err
	}

	room, ok := c.conn.Room()
	if !ok {
		return app.ErrCouldNotPrepareConnection
	}
	members := room.Members()
	c.streams.AddExistingMembers(members)
	if err := c.subscribeExistingMembers(ctx, members); err != nil {
		return err
	}

	c.settings.SetMuted(settings.Muted)
	speaker := settings.Speaker
	c.SwitchOutputAudio(&speaker)
	return nil
}

func (c *Coordinator) subscribeExistingMembers(ctx context.Context, members []core.Member) error {
	for _, member := range members {
		if member.IsLocal() {
			continue
		}
		for _, pub := range member.Publications() {
			s, bound, err := c.streams.Subscribe(ctx, c.conn, member, pub)
			if err != nil {
				return err
			}
			if bound {
				c.events.StreamChanged(s)
			}
		}
	}
	return nil
}

// Disconnect leaves the room. Only the first call after a connect does the
// work; later calls get app.ErrNowDisconnecting.
func (c *Coordinator) Disconnect(ctx context.Context) error {
	room, me, ok := c.conn.Take()
	if !ok {
		return app.ErrNowDisconnecting
	}
	logger := log.With().Str("module", "orch").Str("room", string(room.Name())).Str("peer", me.ID()).Logger()

	room.SetEventHandler(nil)
	if err := me.Leave(ctx); err != nil {
		logger.Warn().Err(err).Msg("leave failed, ignoring")
	}
	if err := room.Dispose(ctx); err != nil {
		logger.Warn().Err(err).Msg("dispose failed, ignoring")
	}
	c.streams.StopCapturing()
	c.streams.Registry().Clear()

	if err := c.transport.Teardown(ctx); err != nil {
		return transportError(err)
	}
	logger.Info().Msg("disconnected")
	return nil
}

func (c *Coordinator) teardownQuietly(ctx context.Context) {
	if err := c.transport.Teardown(ctx); err != nil {
		log.Warn().Err(err).Str("module", "orch").Msg("teardown after failed connect")
	}
}

// Close disconnects if needed and closes every event feed. The coordinator
// must not be used afterwards.
func (c *Coordinator) Close(ctx context.Context) error {
	c.stopDispatch()
	var err error
	if c.conn.IsConnected() {
		if derr := c.Disconnect(ctx); derr != nil && !errors.Is(derr, app.ErrNowDisconnecting) {
			err = derr
		}
	}
	c.inflight.Wait()
	c.events.Close()
	return err
}

func (c *Coordinator) stopDispatch() {
	c.dmu.Lock()
	c.closed = true
	c.dmu.Unlock()
}

// Events registers a new observer feed.
func (c *Coordinator) Events(buffer int) *app.Feed { return c.events.Subscribe(buffer) }

func (c *Coordinator) Streams() []domain.Stream { return c.streams.Registry().All() }

func (c *Coordinator) LocalStream() (domain.Stream, bool) { return c.streams.Registry().Local() }

func (c *Coordinator) IsConnected() bool { return c.conn.IsConnected() }

func (c *Coordinator) IsMuted() bool { return c.settings.IsMuted() }

func (c *Coordinator) OutputSpeaker() domain.OutputSpeaker { return c.settings.Speaker() }

func (c *Coordinator) HasShareVideo() bool {
	s, ok := c.LocalStream()
	return ok && s.HasVideo()
}

// transportError surfaces the transport error from err's chain, if any.
func transportError(err error) error {
	var te *core.TransportError
	if errors.As(err, &te) {
		return te
	}
	return err
}
