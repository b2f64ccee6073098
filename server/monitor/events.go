package monitor

import "sync"

// ItemChangeOrigin tells listeners why the item list changed.
type ItemChangeOrigin int

const (
	// OriginQueue means the backend view changed (poll, purge, retrieval)
	OriginQueue ItemChangeOrigin = iota

	// OriginFilter means only the display filter changed
	OriginFilter
)

// String returns the origin name.
func (o ItemChangeOrigin) String() string {
	if o == OriginFilter {
		return "Filter"
	}
	return "Queue"
}

// ErrorEvent reports a failure. Fatal errors leave the system unusable and
// should be escalated by the host.
type ErrorEvent struct {
	Message string
	Err     error
	Fatal   bool
}

// WarningEvent reports a recoverable problem, such as a backend that could not be reached.
type WarningEvent struct {
	Message string
	Err     error
}

// Listener receives monitoring events. Listeners are called synchronously from
// the goroutine that raised the event and must not block.
type Listener interface {
	ItemsChanged(origin ItemChangeOrigin)
	LoadingStarted()
	LoadingFinished()
	Error(event ErrorEvent)
	Warning(event WarningEvent)
}

// BaseListener implements Listener with no-ops. Embed it to handle a subset of events.
type BaseListener struct{}

func (BaseListener) ItemsChanged(ItemChangeOrigin) {}
func (BaseListener) LoadingStarted()               {}
func (BaseListener) LoadingFinished()              {}
func (BaseListener) Error(ErrorEvent)              {}
func (BaseListener) Warning(WarningEvent)          {}

// EventBus fans events out to every subscribed listener.
type EventBus struct {
	mu        sync.RWMutex
	nextID    int
	listeners []subscription
}

type subscription struct {
	id       int
	listener Listener
}

// NewEventBus creates an empty event bus.
func NewEventBus() *EventBus {
	return &EventBus{}
}

// Subscribe registers a listener and returns a function that removes it.
func (b *EventBus) Subscribe(listener Listener) func() {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.nextID++
	id := b.nextID
	b.listeners = append(b.listeners, subscription{id: id, listener: listener})

	return func() {
		b.mu.Lock()
		defer b.mu.Unlock()

		for i, s := range b.listeners {
			if s.id == id {
				b.listeners = append(b.listeners[:i:i], b.listeners[i+1:]...)
				return
			}
		}
	}
}

func (b *EventBus) snapshot() []Listener {
	b.mu.RLock()
	defer b.mu.RUnlock()

	listeners := make([]Listener, len(b.listeners))
	for i, s := range b.listeners {
		listeners[i] = s.listener
	}
	return listeners
}

func (b *EventBus) ItemsChanged(origin ItemChangeOrigin) {
	for _, l := range b.snapshot() {
		l.ItemsChanged(origin)
	}
}

func (b *EventBus) LoadingStarted() {
	for _, l := range b.snapshot() {
		l.LoadingStarted()
	}
}

func (b *EventBus) LoadingFinished() {
	for _, l := range b.snapshot() {
		l.LoadingFinished()
	}
}

func (b *EventBus) Error(event ErrorEvent) {
	for _, l := range b.snapshot() {
		l.Error(event)
	}
}

func (b *EventBus) Warning(event WarningEvent) {
	for _, l := range b.snapshot() {
		l.Warning(event)
	}
}
