package orch

import (
	"context"

	"github.com/dkeye/Conference/internal/domain"
	"github.com/rs/zerolog/log"
)

// SwitchMute toggles the local microphone. ok is false when nothing changed.
func (c *Coordinator) SwitchMute(ctx context.Context) (domain.Stream, bool, error) {
	if !c.conn.IsConnected() {
		return domain.Stream{}, false, nil
	}
	muted := !c.settings.IsMuted()

	me, ok := c.conn.Me()
	if !ok {
		return domain.Stream{}, false, nil
	}
	s, ok, err := c.streams.UpdateMute(ctx, me, muted)
	if err != nil || !ok {
		return domain.Stream{}, false, err
	}
	c.settings.SetMuted(s.IsMute)
	c.events.StreamChanged(s)
	return s, true, nil
}

// SwitchOutputAudio routes audio to target, or to the other route when
// target is nil.
func (c *Coordinator) SwitchOutputAudio(target *domain.OutputSpeaker) (domain.OutputSpeaker, bool) {
	if !c.conn.IsConnected() {
		return c.settings.Speaker(), false
	}
	next := c.settings.Speaker().Toggle()
	if target != nil {
		next = *target
	}
	c.settings.SetSpeaker(next)
	if err := c.router.SetSpeaker(next); err != nil {
		log.Warn().Err(err).Str("module", "orch").Str("speaker", next.String()).Msg("unable to set audio route")
	}
	return next, true
}

// SwitchShareVideo starts or stops publishing the camera.
func (c *Coordinator) SwitchShareVideo(ctx context.Context) (domain.Stream, bool, error) {
	me, ok := c.conn.Me()
	if !ok {
		return domain.Stream{}, false, nil
	}
	s, ok, err := c.streams.ToggleCameraCapture(ctx, me)
	if err != nil || !ok {
		return domain.Stream{}, false, err
	}
	c.events.StreamChanged(s)
	return s, true, nil
}

// SwitchCamera flips between the front and back camera while capturing.
func (c *Coordinator) SwitchCamera(ctx context.Context) error {
	return c.streams.SwitchCamera(ctx)
}
