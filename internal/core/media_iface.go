package core

import (
	"context"

	"github.com/dkeye/Conference/internal/domain"
)

type ContentKind int

const (
	ContentOther ContentKind = iota
	ContentAudio
	ContentVideo
)

func (k ContentKind) String() string {
	switch k {
	case ContentAudio:
		return "audio"
	case ContentVideo:
		return "video"
	default:
		return "other"
	}
}

// MediaStream is a local or remote media stream. Video streams double as
// domain.VideoHandle.
type MediaStream interface {
	ID() string
	Kind() ContentKind
}

type MicrophoneSource interface {
	CreateStream() (MediaStream, error)
}

type CameraPosition int

const (
	CameraUnspecified CameraPosition = iota
	CameraFront
	CameraBack
)

func (p CameraPosition) String() string {
	switch p {
	case CameraFront:
		return "front"
	case CameraBack:
		return "back"
	default:
		return "unspecified"
	}
}

// Opposite returns the other facing, or CameraUnspecified.
func (p CameraPosition) Opposite() CameraPosition {
	switch p {
	case CameraFront:
		return CameraBack
	case CameraBack:
		return CameraFront
	default:
		return CameraUnspecified
	}
}

type CameraDevice struct {
	ID       string         `json:"id"`
	Name     string         `json:"name"`
	Position CameraPosition `json:"position"`
}

// CameraSource is the process-wide capture device. Callers must not issue
// overlapping operations.
type CameraSource interface {
	SupportedCameras() []CameraDevice
	// Current returns the active device while capturing.
	Current() (CameraDevice, bool)
	StartCapturing(ctx context.Context, dev CameraDevice) error
	Change(ctx context.Context, dev CameraDevice) error
	StopCapturing()
	CreateStream() (MediaStream, error)
}

// AudioRouter switches the OS audio output route.
type AudioRouter interface {
	SetSpeaker(s domain.OutputSpeaker) error
	CurrentSpeaker() domain.OutputSpeaker
}
