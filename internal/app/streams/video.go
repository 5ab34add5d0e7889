package streams

import (
	"context"

	"github.com/dkeye/Conference/internal/app"
	"github.com/dkeye/Conference/internal/core"
	"github.com/dkeye/Conference/internal/domain"
	"github.com/rs/zerolog/log"
)

// AddRemoteVideo subscribes to a video publication and binds the stream
// to the publisher's entry. A subscription made while the entry did not exist
// yet is reused rather than subscribed again.
func (m *Manager) AddRemoteVideo(ctx context.Context, id domain.PeerID, me core.LocalMember, pub core.Publication) (domain.Stream, bool, error) {
	if s, ok := m.bindExistingVideo(id, me, pub); ok {
		return s, true, nil
	}
	sub, err := m.subscribe(ctx, me, pub)
	if err != nil {
		return domain.Stream{}, false, err
	}
	if sub == nil {
		return domain.Stream{}, false, nil
	}
	return m.bindVideo(id, sub)
}

// bindExistingVideo binds the stream of our live subscription to pub, if any.
func (m *Manager) bindExistingVideo(id domain.PeerID, me core.LocalMember, pub core.Publication) (domain.Stream, bool) {
	for _, sub := range me.Subscriptions() {
		if sub.PublicationID() != pub.ID() {
			continue
		}
		s, ok, _ := m.bindVideo(id, sub)
		return s, ok
	}
	return domain.Stream{}, false
}

func (m *Manager) bindVideo(id domain.PeerID, sub core.Subscription) (domain.Stream, bool, error) {
	stream := sub.Stream()
	if stream == nil || stream.Kind() != core.ContentVideo {
		return domain.Stream{}, false, nil
	}
	s, ok := m.registry.UpdateRemoteVideo(id, stream)
	return s, ok, nil
}

// RemoveRemoteVideo cancels our subscription to pub and clears the handle.
func (m *Manager) RemoveRemoteVideo(ctx context.Context, id domain.PeerID, me core.LocalMember, pub core.Publication) (domain.Stream, bool, error) {
	for _, sub := range me.Subscriptions() {
		if sub.PublicationID() != pub.ID() {
			continue
		}
		if err := sub.Cancel(ctx); err != nil {
			return domain.Stream{}, false, err
		}
		break
	}
	s, ok := m.registry.UpdateRemoteVideo(id, nil)
	return s, ok, nil
}

// ToggleCameraCapture cancels the local video publication when there is one,
// otherwise starts the camera and publishes it.
func (m *Manager) ToggleCameraCapture(ctx context.Context, me core.LocalMember) (domain.Stream, bool, error) {
	canceled, err := m.cancelCapturingIfNeeded(ctx, me)
	if err != nil {
		return domain.Stream{}, false, err
	}
	if !canceled {
		if err := m.publishCamera(ctx, me); err != nil {
			return domain.Stream{}, false, err
		}
	}
	s, ok := m.registry.Local()
	return s, ok, nil
}

func (m *Manager) cancelCapturingIfNeeded(ctx context.Context, me core.LocalMember) (bool, error) {
	pub, ok := core.FirstPublication(me.Publications(), core.ContentVideo)
	if !ok {
		return false, nil
	}
	if err := pub.Cancel(ctx); err != nil {
		return false, err
	}
	m.camera.StopCapturing()
	m.registry.UpdateLocalVideo(nil)
	log.Info().Str("module", "streams").Str("publication", pub.ID()).Msg("stopped sharing video")
	return true, nil
}

func (m *Manager) publishCamera(ctx context.Context, me core.LocalMember) error {
	dev, ok := preferredCamera(m.camera.SupportedCameras())
	if !ok {
		return app.ErrNoSupportedCameras
	}
	if err := m.camera.StartCapturing(ctx, dev); err != nil {
		return err
	}
	stream, err := m.camera.CreateStream()
	if err != nil {
		m.camera.StopCapturing()
		return err
	}
	pub, err := me.Publish(ctx, stream, core.PublicationOptions{MaxSubscribers: m.maxSubscribers})
	if err != nil {
		m.camera.StopCapturing()
		return err
	}
	m.registry.UpdateLocalVideo(stream)
	log.Info().Str("module", "streams").Str("camera", dev.ID).Str("publication", pub.ID()).Msg("sharing video")
	return nil
}

// preferredCamera picks the first front camera, falling back to the first
// back camera.
func preferredCamera(devices []core.CameraDevice) (core.CameraDevice, bool) {
	for _, pos := range []core.CameraPosition{core.CameraFront, core.CameraBack} {
		for _, d := range devices {
			if d.Position == pos {
				return d, true
			}
		}
	}
	return core.CameraDevice{}, false
}

// SwitchCamera moves capture to the opposite-facing device.
func (m *Manager) SwitchCamera(ctx context.Context) error {
	cur, ok := m.camera.Current()
	if !ok {
		return app.ErrNotFoundOtherCamera
	}
	want := cur.Position.Opposite()
	if want == core.CameraUnspecified {
		return app.ErrNotFoundOtherCamera
	}
	for _, d := range m.camera.SupportedCameras() {
		if d.Position == want {
			return m.camera.Change(ctx, d)
		}
	}
	return app.ErrNotFoundOtherCamera
}

func (m *Manager) StopCapturing() {
	m.camera.StopCapturing()
}
