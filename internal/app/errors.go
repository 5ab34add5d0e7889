package app

import (
	"errors"
	"fmt"
)

// Connection errors.
var (
	ErrAlreadyConnected          = errors.New("already connected")
	ErrNowDisconnecting          = errors.New("now disconnecting")
	ErrCouldNotPrepareConnection = errors.New("could not prepare connection")
	ErrCannotGetLocalMedia       = errors.New("cannot get local media")
	ErrPublicationNotFound       = errors.New("could not find any publications")
)

// Media errors.
var (
	ErrNotFoundOtherCamera = errors.New("no opposite camera found")
	ErrNoSupportedCameras  = errors.New("no supported cameras")
)

type StatusKind int

const (
	StatusReceiveAudio StatusKind = iota
	StatusReceiveVideo
	StatusRemoveVideo
	StatusJoinMember
)

func (k StatusKind) String() string {
	switch k {
	case StatusReceiveAudio:
		return "receive audio error"
	case StatusReceiveVideo:
		return "receive video error"
	case StatusRemoveVideo:
		return "remove video error"
	case StatusJoinMember:
		return "join member error"
	default:
		return fmt.Sprintf("StatusKind(%d)", int(k))
	}
}

// StatusError is a failure that happened while reacting to a room event.
// It is reported through the event bus, never returned.
type StatusError struct {
	Kind StatusKind
	Err  error
}

func (e *StatusError) Error() string {
	if e.Err == nil {
		return e.Kind.String()
	}
	return e.Kind.String() + ": " + e.Err.Error()
}

func (e *StatusError) Unwrap() error { return e.Err }
