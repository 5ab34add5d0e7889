package app

import (
	"sync"

	"github.com/dkeye/Conference/internal/domain"
	"github.com/rs/zerolog/log"
)

type EventKind int

const (
	EventStreamChanged EventKind = iota
	EventStreamAdded
	EventStreamRemoved
	EventStatusError
	EventRoomClosed
)

func (k EventKind) String() string {
	switch k {
	case EventStreamChanged:
		return "stream_changed"
	case EventStreamAdded:
		return "stream_added"
	case EventStreamRemoved:
		return "stream_removed"
	case EventStatusError:
		return "status_error"
	case EventRoomClosed:
		return "room_closed"
	default:
		return "unknown"
	}
}

// Event is one notification. Stream is set for stream events, Status for
// EventStatusError.
type Event struct {
	Kind   EventKind
	Stream domain.Stream
	Status *StatusError
}

// Feed is one observer registration.
type Feed struct {
	id  uint64
	ch  chan Event
	bus *EventBus
}

// C delivers events until the feed is closed.
func (f *Feed) C() <-chan Event { return f.ch }

// Close unsubscribes the feed. Safe to call more than once.
func (f *Feed) Close() {
	if f.bus != nil {
		f.bus.unsubscribe(f.id)
	}
}

// EventBus fans events out to feeds without blocking the publisher.
type EventBus struct {
	mu     sync.RWMutex
	feeds  map[uint64]*Feed
	nextID uint64
	policy Policy
	closed bool
}

func NewEventBus(policy Policy) *EventBus {
	if policy == nil {
		policy = LossyPolicy{}
	}
	return &EventBus{
		feeds:  make(map[uint64]*Feed),
		policy: policy,
	}
}

// Subscribe registers a feed with the given buffer. After Close it returns
// an already closed feed.
func (b *EventBus) Subscribe(buffer int) *Feed {
	if buffer < 1 {
		buffer = 1
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	b.nextID++
	f := &Feed{id: b.nextID, ch: make(chan Event, buffer), bus: b}
	if b.closed {
		close(f.ch)
		return f
	}
	b.feeds[f.id] = f
	return f
}

func (b *EventBus) unsubscribe(id uint64) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if f, ok := b.feeds[id]; ok {
		delete(b.feeds, id)
		close(f.ch)
	}
}

// Publish delivers ev to every feed. Nothing is delivered after Close.
func (b *EventBus) Publish(ev Event) {
	var slow []uint64
	b.mu.RLock()
	if b.closed {
		b.mu.RUnlock()
		return
	}
	for id, f := range b.feeds {
		select {
		case f.ch <- ev:
		default:
			if b.policy.OnBackPressure(f, ev) == CloseFeed {
				slow = append(slow, id)
			}
		}
	}
	b.mu.RUnlock()

	for _, id := range slow {
		log.Warn().Str("module", "app.events").Uint64("feed", id).Msg("closing slow feed")
		b.unsubscribe(id)
	}
}

func (b *EventBus) StreamChanged(s domain.Stream) {
	b.Publish(Event{Kind: EventStreamChanged, Stream: s})
}

func (b *EventBus) StreamAdded(s domain.Stream) {
	b.Publish(Event{Kind: EventStreamAdded, Stream: s})
}

func (b *EventBus) StreamRemoved(s domain.Stream) {
	b.Publish(Event{Kind: EventStreamRemoved, Stream: s})
}

func (b *EventBus) StatusError(kind StatusKind, err error) {
	log.Error().Err(err).Str("module", "app.events").Str("status", kind.String()).Msg("status error")
	b.Publish(Event{Kind: EventStatusError, Status: &StatusError{Kind: kind, Err: err}})
}

func (b *EventBus) RoomClosed() {
	b.Publish(Event{Kind: EventRoomClosed})
}

// Close closes every feed and stops delivery for good.
func (b *EventBus) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return
	}
	b.closed = true
	for id, f := range b.feeds {
		delete(b.feeds, id)
		close(f.ch)
	}
}
