package domain

import (
	"fmt"
	"strings"
)

type RoomName string

// RoomKind selects the transport-level room flavor.
type RoomKind int

const (
	// RoomMesh connects members directly to each other.
	RoomMesh RoomKind = iota
	// RoomRelayed routes media through the server.
	RoomRelayed
)

func (k RoomKind) String() string {
	switch k {
	case RoomMesh:
		return "mesh"
	case RoomRelayed:
		return "relayed"
	default:
		return fmt.Sprintf("RoomKind(%d)", int(k))
	}
}

// ParseRoomKind accepts "mesh"/"p2p" and "relayed"/"sfu".
func ParseRoomKind(s string) (RoomKind, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "mesh", "p2p":
		return RoomMesh, nil
	case "relayed", "sfu":
		return RoomRelayed, nil
	}
	return 0, fmt.Errorf("unknown room kind %q", s)
}

// OutputSpeaker is an audio output route.
type OutputSpeaker int

const (
	// SpeakerReceiver is the handset (telephone) speaker.
	SpeakerReceiver OutputSpeaker = iota
	// SpeakerLoud is the built-in loudspeaker.
	SpeakerLoud
)

func (s OutputSpeaker) String() string {
	if s == SpeakerLoud {
		return "speaker"
	}
	return "receiver"
}

// Toggle returns the other known route.
func (s OutputSpeaker) Toggle() OutputSpeaker {
	if s == SpeakerLoud {
		return SpeakerReceiver
	}
	return SpeakerLoud
}

func ParseOutputSpeaker(s string) (OutputSpeaker, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "receiver", "telephone":
		return SpeakerReceiver, nil
	case "speaker", "loud":
		return SpeakerLoud, nil
	}
	return 0, fmt.Errorf("unknown output speaker %q", s)
}

// CallSettings are applied once a connection is established.
type CallSettings struct {
	UserName string
	Muted    bool
	Speaker  OutputSpeaker
	Outgoing bool
}
