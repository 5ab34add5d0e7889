package core

// SessionID identifies a browser session hosting one client.
type SessionID string

// Frame is one encoded event message.
type Frame []byte

// SignalConnection delivers event frames to a session's browser. TrySend
// never blocks; a full queue is reported as an error. The adapter that
// opened the connection closes it.
type SignalConnection interface {
	TrySend(Frame) error
	Close()
}
