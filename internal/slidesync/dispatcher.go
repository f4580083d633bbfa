package slidesync

import (
	"log/slog"
	"sync"
	"time"
)

// EventType tags an engine notification.
type EventType string

const (
	EventLoadStart           EventType = "LOAD_START"
	EventLoadComplete        EventType = "LOAD_COMPLETE"
	EventLoadError           EventType = "LOAD_ERROR"
	EventSyncStart           EventType = "SYNC_START"
	EventSyncStop            EventType = "SYNC_STOP"
	EventRecognitionStart    EventType = "RECOGNITION_START"
	EventRecognitionResult   EventType = "RECOGNITION_RESULT"
	EventRecognitionEnd      EventType = "RECOGNITION_END"
	EventDisplayChange       EventType = "DISPLAY_CHANGE"
	EventSlideChangeStart    EventType = "SLIDE_CHANGE_START"
	EventSlideChangeComplete EventType = "SLIDE_CHANGE_COMPLETE"
	EventPlaybackComplete    EventType = "PLAYBACK_COMPLETE"
	EventCleared             EventType = "CLEARED"
)

// eventTypes is the closed set of tags the dispatcher accepts.
var eventTypes = []EventType{
	EventLoadStart,
	EventLoadComplete,
	EventLoadError,
	EventSyncStart,
	EventSyncStop,
	EventRecognitionStart,
	EventRecognitionResult,
	EventRecognitionEnd,
	EventDisplayChange,
	EventSlideChangeStart,
	EventSlideChangeComplete,
	EventPlaybackComplete,
	EventCleared,
}

// EventTypes returns every tag the dispatcher accepts.
func EventTypes() []EventType {
	out := make([]EventType, len(eventTypes))
	copy(out, eventTypes)
	return out
}

// Event is delivered to generic subscribers. Payload depends on Type:
// LoadStarted, *Deck, error, RecognitionResult, DisplayEvent, int64 (playback
// time) or nil.
type Event struct {
	Type      EventType
	Timestamp time.Time
	Payload   any
}

// Handler receives generic events.
type Handler func(Event)

// DisplayHandler receives display changes through the fast path.
type DisplayHandler func(DisplayEvent)

// SubscriptionID identifies a registered callback for later removal.
// The zero value is never issued.
type SubscriptionID uint64

type subscriber struct {
	id SubscriptionID
	fn Handler
}

type displaySubscriber struct {
	id SubscriptionID
	fn DisplayHandler
}

// Dispatcher is a per-tag subscriber registry. Delivery is synchronous and in
// registration order; a panicking subscriber is recovered and logged without
// affecting the others.
type Dispatcher struct {
	log *slog.Logger

	mu      sync.RWMutex
	nextID  SubscriptionID
	subs    map[EventType][]subscriber
	display []displaySubscriber
	closed  bool
}

// NewDispatcher returns a dispatcher with a subscriber list for every EventType.
func NewDispatcher(log *slog.Logger) *Dispatcher {
	if log == nil {
		log = slog.Default()
	}
	subs := make(map[EventType][]subscriber, len(eventTypes))
	for _, t := range eventTypes {
		subs[t] = nil
	}
	return &Dispatcher{log: log, subs: subs}
}

// On registers fn for the given tag. It returns 0 for unknown tags and after Close.
func (d *Dispatcher) On(t EventType, fn Handler) SubscriptionID {
	if fn == nil {
		return 0
	}
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.closed {
		return 0
	}
	list, ok := d.subs[t]
	if !ok {
		d.log.Warn("subscribe to unknown event", slog.String("event", string(t)))
		return 0
	}
	d.nextID++
	d.subs[t] = append(list, subscriber{id: d.nextID, fn: fn})
	return d.nextID
}

// Off removes a subscription. Unknown IDs are ignored.
func (d *Dispatcher) Off(t EventType, id SubscriptionID) {
	d.mu.Lock()
	defer d.mu.Unlock()

	list := d.subs[t]
	for i, s := range list {
		if s.id == id {
			d.subs[t] = append(list[:i:i], list[i+1:]...)
			return
		}
	}
}

// OnDisplayChange registers fn on the display fast path.
func (d *Dispatcher) OnDisplayChange(fn DisplayHandler) SubscriptionID {
	if fn == nil {
		return 0
	}
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.closed {
		return 0
	}
	d.nextID++
	d.display = append(d.display, displaySubscriber{id: d.nextID, fn: fn})
	return d.nextID
}

// OffDisplayChange removes a fast-path subscription.
func (d *Dispatcher) OffDisplayChange(id SubscriptionID) {
	d.mu.Lock()
	defer d.mu.Unlock()

	for i, s := range d.display {
		if s.id == id {
			d.display = append(d.display[:i:i], d.display[i+1:]...)
			return
		}
	}
}

// Emit delivers an event to every subscriber of its tag.
func (d *Dispatcher) Emit(t EventType, payload any) {
	d.mu.RLock()
	list := d.subs[t]
	d.mu.RUnlock()

	if len(list) == 0 {
		return
	}
	evt := Event{Type: t, Timestamp: time.Now().UTC(), Payload: payload}
	for _, s := range list {
		d.call(t, func() { s.fn(evt) })
	}
}

// EmitDisplay delivers a DISPLAY_CHANGE to generic subscribers and to the
// display fast path.
func (d *Dispatcher) EmitDisplay(ev DisplayEvent) {
	d.Emit(EventDisplayChange, ev)

	d.mu.RLock()
	list := d.display
	d.mu.RUnlock()

	for _, s := range list {
		d.call(EventDisplayChange, func() { s.fn(ev) })
	}
}

// SubscriberCount reports how many callbacks are registered for t.
func (d *Dispatcher) SubscriberCount(t EventType) int {
	d.mu.RLock()
	defer d.mu.RUnlock()
	n := len(d.subs[t])
	if t == EventDisplayChange {
		n += len(d.display)
	}
	return n
}

// Close drops every subscriber. Later On/Off calls are no-ops.
func (d *Dispatcher) Close() {
	d.mu.Lock()
	defer d.mu.Unlock()

	d.closed = true
	for t := range d.subs {
		d.subs[t] = nil
	}
	d.display = nil
}

func (d *Dispatcher) call(t EventType, fn func()) {
	defer func() {
		if r := recover(); r != nil {
			d.log.Error("event subscriber panicked",
				slog.String("event", string(t)),
				slog.Any("panic", r))
		}
	}()
	fn()
}
