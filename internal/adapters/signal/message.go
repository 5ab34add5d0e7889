package signal

import (
	"github.com/dkeye/Conference/internal/app"
	"github.com/dkeye/Conference/internal/app/orch"
	"github.com/dkeye/Conference/internal/domain"
)

// StreamView is the wire form of a domain.Stream.
type StreamView struct {
	domain.Stream
	HasVideo bool `json:"has_video"`
}

func NewStreamView(s domain.Stream) StreamView {
	return StreamView{Stream: s, HasVideo: s.HasVideo()}
}

func NewStreamViews(streams []domain.Stream) []StreamView {
	out := make([]StreamView, 0, len(streams))
	for _, s := range streams {
		out = append(out, NewStreamView(s))
	}
	return out
}

type Message struct {
	Type    string       `json:"type"`
	Stream  *StreamView  `json:"stream,omitempty"`
	Streams []StreamView `json:"streams,omitempty"`
	Status  string       `json:"status,omitempty"`
	Error   string       `json:"error,omitempty"`

	Connected *bool  `json:"connected,omitempty"`
	Muted     *bool  `json:"muted,omitempty"`
	Speaker   string `json:"speaker,omitempty"`
}

func eventMessage(ev app.Event) Message {
	msg := Message{Type: ev.Kind.String()}
	switch ev.Kind {
	case app.EventStreamChanged, app.EventStreamAdded, app.EventStreamRemoved:
		v := NewStreamView(ev.Stream)
		msg.Stream = &v
	case app.EventStatusError:
		if ev.Status != nil {
			msg.Status = ev.Status.Kind.String()
			if ev.Status.Err != nil {
				msg.Error = ev.Status.Err.Error()
			}
		}
	}
	return msg
}

func snapshotMessage(coord *orch.Coordinator) Message {
	connected, muted := coord.IsConnected(), coord.IsMuted()
	return Message{
		Type:      "snapshot",
		Streams:   NewStreamViews(coord.Streams()),
		Connected: &connected,
		Muted:     &muted,
		Speaker:   coord.OutputSpeaker().String(),
	}
}
