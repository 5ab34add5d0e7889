package sfu

import (
	"context"
	"errors"
	"sync"

	"github.com/pion/webrtc/v4"
	"github.com/rs/zerolog/log"
)

var ErrRelayNotFound = errors.New("relay not found")

// RelayManager owns the relays of a room, keyed by publication ID.
type RelayManager struct {
	mu     sync.RWMutex
	relays map[string]*Relay
}

func NewRelayManager() *RelayManager {
	return &RelayManager{
		relays: make(map[string]*Relay),
	}
}

// StartRelay creates a relay for pubID and starts forwarding from src.
func (m *RelayManager) StartRelay(ctx context.Context, pubID string, src Source) {
	logger := log.With().
		Str("module", "relay").
		Str("publication", pubID).
		Logger()

	relayCtx, cancel := context.WithCancel(ctx)
	relay := NewRelay(src, cancel)

	m.mu.Lock()
	if old, ok := m.relays[pubID]; ok {
		logger.Info().Msg("replacing existing relay for publication")
		old.markAllDelete()
		old.cancel()
	}
	m.relays[pubID] = relay
	m.mu.Unlock()

	logger.Info().Msg("starting relay loop")

	go relay.loop(relayCtx, &logger)
}

// AddSubscriber attaches an out track for subID to the relay of pubID.
func (m *RelayManager) AddSubscriber(pubID, subID string, track *webrtc.TrackLocalStaticRTP) (*OutTrack, error) {
	relay, ok := m.relay(pubID)
	if !ok {
		return nil, ErrRelayNotFound
	}
	ot := NewOutTrack(track)
	relay.AddOutTrack(subID, ot)
	return ot, nil
}

// MarkSubscriberDelete detaches subID from the relay of pubID.
func (m *RelayManager) MarkSubscriberDelete(pubID, subID string) {
	relay, ok := m.relay(pubID)
	if !ok {
		return
	}
	if ot, ok := relay.outTrack(subID); ok {
		ot.MarkDelete()
	}
}

func (m *RelayManager) SetMuted(pubID string, muted bool) {
	if relay, ok := m.relay(pubID); ok {
		relay.SetMuted(muted)
	}
}

// StopRelay stops the relay of pubID and removes it from the manager.
func (m *RelayManager) StopRelay(pubID string) {
	m.mu.Lock()
	relay, ok := m.relays[pubID]
	if ok {
		delete(m.relays, pubID)
	}
	m.mu.Unlock()
	if !ok {
		return
	}
	relay.markAllDelete()
	relay.cancel()
}

// StopAll stops every relay.
func (m *RelayManager) StopAll() {
	m.mu.Lock()
	relays := m.relays
	m.relays = make(map[string]*Relay)
	m.mu.Unlock()
	for _, relay := range relays {
		relay.markAllDelete()
		relay.cancel()
	}
}

func (m *RelayManager) HasRelay(pubID string) bool {
	_, ok := m.relay(pubID)
	return ok
}

func (m *RelayManager) relay(pubID string) (*Relay, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	relay, ok := m.relays[pubID]
	return relay, ok
}
