// Package slidesync maps a playback clock or a stream of speech-recognition
// results onto "which slide is visible" decisions and notifies subscribers
// when that decision changes.
//
// All state is owned by an Engine and guarded by its mutex. Subscribers are
// called after the mutex is released, so a callback may query the engine.
package slidesync

import (
	"log/slog"
	"net/http"
	"sync"
	"time"
)

// Engine composes the deck loader, the timeline synchronizer, the realtime
// matcher and the event dispatcher behind one lifecycle.
type Engine struct {
	log    *slog.Logger
	cfg    SyncConfig
	bus    *Dispatcher
	client *http.Client

	mu           sync.Mutex
	mode         Mode
	deck         *Deck
	realtime     []*SlideItem
	current      *SlideItem
	previous     *SlideItem
	lastSyncTime int64
	hasSyncTime  bool
	lastPushAt   time.Time
	staleLogged  bool
	completed    bool
	loadGen      uint64
	syncStop     chan struct{}
	destroyed    bool
}

// New returns an engine in the given mode. Zero intervals in cfg fall back to
// the defaults; a nil logger uses slog.Default.
func New(mode Mode, cfg SyncConfig, log *slog.Logger) *Engine {
	if log == nil {
		log = slog.Default()
	}
	if _, ok := ParseMode(string(mode)); !ok {
		mode = ModePlayer
	}
	cfg = cfg.normalize()
	return &Engine{
		log:    log,
		cfg:    cfg,
		bus:    NewDispatcher(log),
		client: &http.Client{Timeout: cfg.FetchTimeout},
		mode:   mode,
	}
}

// pending is an event recorded under the lock and delivered after it is released.
type pending struct {
	t       EventType
	payload any
}

func (e *Engine) flush(events []pending) {
	for _, p := range events {
		if p.t == EventDisplayChange {
			e.bus.EmitDisplay(p.payload.(DisplayEvent))
			continue
		}
		e.bus.Emit(p.t, p.payload)
	}
}

// changeLocked moves the current pointer to next and records the display
// events. Caller must hold e.mu.
func (e *Engine) changeLocked(next *SlideItem, at int64, reason Reason) []pending {
	e.previous = e.current
	e.current = next

	ev := DisplayEvent{
		CurrentSlide:  next,
		PreviousSlide: e.previous,
		CurrentTime:   at,
		Timestamp:     time.Now().UTC(),
		IsManual:      reason == ReasonManual,
		Reason:        reason,
	}
	if e.cfg.SmoothTransition {
		ev.TransitionDuration = e.cfg.DefaultTransitionDuration.Milliseconds()
		if next != nil && next.Transition != nil && next.Transition.Duration > 0 {
			ev.TransitionDuration = next.Transition.Duration
		}
	}
	return []pending{
		{t: EventSlideChangeStart, payload: ev},
		{t: EventDisplayChange, payload: ev},
		{t: EventSlideChangeComplete, payload: ev},
	}
}

// On subscribes fn to events of type t.
func (e *Engine) On(t EventType, fn Handler) SubscriptionID { return e.bus.On(t, fn) }

// Off removes a subscription made with On.
func (e *Engine) Off(t EventType, id SubscriptionID) { e.bus.Off(t, id) }

// OnDisplayChange subscribes fn to the display fast path.
func (e *Engine) OnDisplayChange(fn DisplayHandler) SubscriptionID {
	return e.bus.OnDisplayChange(fn)
}

// OffDisplayChange removes a subscription made with OnDisplayChange.
func (e *Engine) OffDisplayChange(id SubscriptionID) { e.bus.OffDisplayChange(id) }

// beginLoad issues a new load token and announces the load.
func (e *Engine) beginLoad(source string) (uint64, error) {
	e.mu.Lock()
	if e.destroyed {
		e.mu.Unlock()
		return 0, ErrDestroyed
	}
	e.loadGen++
	token := e.loadGen
	e.mu.Unlock()

	e.log.Debug("deck load started", slog.String("source", source), slog.Uint64("token", token))
	e.bus.Emit(EventLoadStart, LoadStarted{Source: source})
	return token, nil
}

// finishLoad parses data read for the load identified by token and installs
// the deck unless a newer load or a clear happened in the meantime.
func (e *Engine) finishLoad(token uint64, source string, data []byte, readErr error) (*Deck, error) {
	if readErr != nil {
		return nil, e.failLoad(token, source, &LoadError{Source: source, Err: readErr})
	}

	deck, err := ParseDeck(source, data)
	if err != nil {
		return nil, e.failLoad(token, source, err)
	}

	e.mu.Lock()
	if token != e.loadGen {
		e.mu.Unlock()
		e.log.Info("discarding superseded deck load", slog.String("source", source), slog.Uint64("token", token))
		return nil, ErrLoadSuperseded
	}
	e.deck = deck
	e.resetLocked()
	e.mu.Unlock()

	e.log.Info("deck loaded",
		slog.String("source", source),
		slog.String("title", deck.Title),
		slog.Int("items", len(deck.Items)),
		slog.Int64("total_duration_ms", deck.TotalDuration))
	e.bus.Emit(EventLoadComplete, deck)
	return deck, nil
}

func (e *Engine) failLoad(token uint64, source string, err error) error {
	e.mu.Lock()
	stale := token != e.loadGen
	e.mu.Unlock()
	if stale {
		return ErrLoadSuperseded
	}
	e.log.Warn("deck load failed", slog.String("source", source), slog.String("error", err.Error()))
	e.bus.Emit(EventLoadError, err)
	return err
}

// resetLocked drops per-deck runtime state. Caller must hold e.mu.
func (e *Engine) resetLocked() {
	e.realtime = nil
	e.current = nil
	e.previous = nil
	e.lastSyncTime = 0
	e.hasSyncTime = false
	e.lastPushAt = time.Time{}
	e.staleLogged = false
	e.completed = false
}

// StartSync starts the repeating resync timer. It is a no-op when already running.
func (e *Engine) StartSync() {
	e.mu.Lock()
	if e.syncStop != nil || e.destroyed {
		e.mu.Unlock()
		return
	}
	stop := make(chan struct{})
	e.syncStop = stop
	interval := e.cfg.SyncInterval
	e.mu.Unlock()

	go e.syncLoop(stop, interval)

	e.log.Debug("sync started", slog.Duration("interval", interval))
	e.bus.Emit(EventSyncStart, nil)
}

// StopSync stops the resync timer. No new tick starts after it returns, but
// a tick that already resolved may still be delivering its events.
func (e *Engine) StopSync() {
	e.mu.Lock()
	if e.syncStop == nil {
		e.mu.Unlock()
		return
	}
	close(e.syncStop)
	e.syncStop = nil
	e.mu.Unlock()

	e.log.Debug("sync stopped")
	e.bus.Emit(EventSyncStop, nil)
}

func (e *Engine) syncLoop(stop chan struct{}, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			e.tick(stop)
		}
	}
}

// tick re-resolves against the last pushed time. It never reads a clock for
// the playback position itself.
func (e *Engine) tick(stop chan struct{}) {
	e.mu.Lock()
	if e.syncStop != stop || !e.hasSyncTime {
		e.mu.Unlock()
		return
	}
	if e.syncStaleLocked() && !e.staleLogged {
		e.staleLogged = true
		e.log.Warn("sync running on stale playback time",
			slog.Int64("last_time_ms", e.lastSyncTime),
			slog.Duration("age", time.Since(e.lastPushAt)))
	}
	_, events := e.resolveLocked(e.lastSyncTime)
	e.mu.Unlock()

	e.flush(events)
}

// Clear drops the deck, injected slides, slide pointers and last sync time.
// An in-flight load is superseded. The timer keeps running.
func (e *Engine) Clear() {
	e.mu.Lock()
	e.deck = nil
	e.loadGen++
	e.resetLocked()
	e.mu.Unlock()

	e.bus.Emit(EventCleared, nil)
}

// Destroy stops the timer, clears state and releases every subscriber.
func (e *Engine) Destroy() {
	e.StopSync()
	e.Clear()

	e.mu.Lock()
	e.destroyed = true
	e.mu.Unlock()

	e.bus.Close()
}

// SetMode switches between Player and Realtime selection rules. The next
// resolution uses the new rules; nothing is re-resolved immediately.
func (e *Engine) SetMode(m Mode) {
	if _, ok := ParseMode(string(m)); !ok {
		return
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	e.mode = m
}

// Mode returns the current selection mode.
func (e *Engine) Mode() Mode {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.mode
}

// Config returns the resolved configuration.
func (e *Engine) Config() SyncConfig { return e.cfg }

// Deck returns the loaded deck or nil.
func (e *Engine) Deck() *Deck {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.deck
}

// CurrentSlide returns the visible slide or nil.
func (e *Engine) CurrentSlide() *SlideItem {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.current
}

// PreviousSlide returns the slide visible before the last change or nil.
func (e *Engine) PreviousSlide() *SlideItem {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.previous
}

// TotalSlides returns the number of items in the loaded deck.
func (e *Engine) TotalSlides() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.deck == nil {
		return 0
	}
	return len(e.deck.Items)
}

// CurrentSlideIndex returns the position of the current slide in the deck,
// or -1 when nothing is visible or the visible slide is an injected one.
func (e *Engine) CurrentSlideIndex() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.indexLocked(e.current)
}

// IsPlaying reports whether the resync timer is running.
func (e *Engine) IsPlaying() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.syncStop != nil
}

// RealtimeSlides returns a copy of the injected slide list in append order.
func (e *Engine) RealtimeSlides() []*SlideItem {
	e.mu.Lock()
	defer e.mu.Unlock()
	out := make([]*SlideItem, len(e.realtime))
	copy(out, e.realtime)
	return out
}

// LastSyncTime returns the most recently pushed playback time.
func (e *Engine) LastSyncTime() (int64, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.lastSyncTime, e.hasSyncTime
}

// LastSyncAge returns how long ago playback time was last pushed, or 0 if never.
func (e *Engine) LastSyncAge() time.Duration {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.lastPushAt.IsZero() {
		return 0
	}
	return time.Since(e.lastPushAt)
}

// IsSyncStale reports whether the timer is running on a playback time older
// than StaleAfter.
func (e *Engine) IsSyncStale() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.syncStaleLocked()
}

func (e *Engine) syncStaleLocked() bool {
	if e.syncStop == nil || e.lastPushAt.IsZero() {
		return false
	}
	return time.Since(e.lastPushAt) > e.cfg.StaleAfter
}

// indexLocked finds s by identity in the original deck items.
func (e *Engine) indexLocked(s *SlideItem) int {
	if e.deck == nil || s == nil {
		return -1
	}
	for i, it := range e.deck.Items {
		if it == s {
			return i
		}
	}
	return -1
}
