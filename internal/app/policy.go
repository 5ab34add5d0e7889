package app

type BackpressureAction int

const (
	// DropEvent skips the event for the slow feed only.
	DropEvent BackpressureAction = iota
	// CloseFeed unsubscribes the slow feed.
	CloseFeed
)

// Policy decides what happens when a feed's buffer is full.
type Policy interface {
	OnBackPressure(feed *Feed, ev Event) BackpressureAction
}

// SimplePolicy closes slow feeds, the same way slow members get kicked.
type SimplePolicy struct{}

func (SimplePolicy) OnBackPressure(*Feed, Event) BackpressureAction {
	return CloseFeed
}

// LossyPolicy keeps slow feeds and drops what they cannot take.
type LossyPolicy struct{}

func (LossyPolicy) OnBackPressure(*Feed, Event) BackpressureAction {
	return DropEvent
}
