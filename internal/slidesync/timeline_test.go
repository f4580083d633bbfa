package slidesync

import (
	"log/slog"
	"os"
	"testing"
	"time"
)

func recordDisplay(e *Engine) *[]DisplayEvent {
	var got []DisplayEvent
	e.OnDisplayChange(func(ev DisplayEvent) { got = append(got, ev) })
	return &got
}

func TestUpdatePlaybackTime_resolves_window(t *testing.T) {
	e := newTestEngine(t, ModePlayer)
	deck := loadDeck(t, e, threeItemDeck)

	tests := []struct {
		at   int64
		want *SlideItem
	}{
		{0, deck.Items[0]},
		{4999, deck.Items[0]},
		{5000, deck.Items[0]}, // shared boundary: first match wins
		{5001, deck.Items[1]},
		{12000, deck.Items[2]},
		{15000, deck.Items[2]},
		{15001, nil},
	}
	for _, tc := range tests {
		if got := e.UpdatePlaybackTime(tc.at); got != tc.want {
			t.Errorf("at %d: got %v, want %v", tc.at, got, tc.want)
		}
	}
	if e.CurrentSlide() != nil {
		t.Error("past the end nothing should be visible")
	}
}

func TestUpdatePlaybackTime_idempotent(t *testing.T) {
	e := newTestEngine(t, ModePlayer)
	deck := loadDeck(t, e, threeItemDeck)
	got := recordDisplay(e)

	e.UpdatePlaybackTime(1000)
	e.UpdatePlaybackTime(2000)
	e.UpdatePlaybackTime(3000)

	if len(*got) != 1 {
		t.Fatalf("expected 1 display change, got %d", len(*got))
	}
	ev := (*got)[0]
	if ev.Reason != ReasonTime || ev.IsManual {
		t.Errorf("reason=%q manual=%v", ev.Reason, ev.IsManual)
	}
	if ev.CurrentSlide != deck.Items[0] || ev.PreviousSlide != nil || ev.CurrentTime != 1000 {
		t.Errorf("unexpected event %+v", ev)
	}

	e.UpdatePlaybackTime(6000)
	if len(*got) != 2 || (*got)[1].PreviousSlide != deck.Items[0] || (*got)[1].CurrentSlide != deck.Items[1] {
		t.Errorf("second change wrong: %+v", *got)
	}
	if e.PreviousSlide() != deck.Items[0] {
		t.Error("previous pointer should hold the old current slide")
	}
}

func TestUpdatePlaybackTime_preload_and_delay(t *testing.T) {
	log := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelError}))
	cfg := DefaultSyncConfig()
	cfg.PreloadTime = 500 * time.Millisecond
	cfg.DelayTime = 200 * time.Millisecond
	e := New(ModePlayer, cfg, log)
	deck := loadDeck(t, e, `{"title": "t", "items": [
		{"title": "a", "content": "x", "startTime": 1000, "endTime": 2000},
		{"title": "b", "content": "y", "startTime": 4000, "endTime": 5000}
	]}`)

	if got := e.UpdatePlaybackTime(500); got != deck.Items[0] {
		t.Errorf("preload: got %v", got)
	}
	if got := e.UpdatePlaybackTime(2200); got != deck.Items[0] {
		t.Errorf("delay: got %v", got)
	}
	if got := e.UpdatePlaybackTime(2201); got != nil {
		t.Errorf("gap: got %v", got)
	}
	if got := e.UpdatePlaybackTime(3500); got != deck.Items[1] {
		t.Errorf("preload second: got %v", got)
	}
}

func TestUpdatePlaybackTime_player_includes_injected(t *testing.T) {
	e := newTestEngine(t, ModePlayer)
	deck := loadDeck(t, e, `{"title": "t", "items": [
		{"title": "a", "content": "x", "startTime": 0, "endTime": 1000},
		{"title": "b", "content": "y", "startTime": 20000, "endTime": 21000}
	]}`)

	injected := e.AddRealtimeSlide(deck.Items[1], 5000, 10000)
	if e.CurrentSlide() != nil {
		t.Error("player mode must not promote injected slides on append")
	}
	if got := e.UpdatePlaybackTime(7000); got != injected {
		t.Errorf("got %v, want injected slide", got)
	}
	if got := e.UpdatePlaybackTime(500); got != deck.Items[0] {
		t.Errorf("got %v, want first deck item", got)
	}
}

func TestUpdatePlaybackTime_player_first_match_wins(t *testing.T) {
	e := newTestEngine(t, ModePlayer)
	deck := loadDeck(t, e, threeItemDeck)

	// Overlaps item 0 and starts at the same time: the deck item sorts first.
	e.AddRealtimeSlide(deck.Items[2], 0, 5000)
	if got := e.UpdatePlaybackTime(100); got != deck.Items[0] {
		t.Errorf("got %v, want deck item 0", got)
	}
}

func TestUpdatePlaybackTime_playback_complete(t *testing.T) {
	e := newTestEngine(t, ModePlayer)
	loadDeck(t, e, threeItemDeck)
	var completions []int64
	e.On(EventPlaybackComplete, func(ev Event) { completions = append(completions, ev.Payload.(int64)) })

	e.UpdatePlaybackTime(14000)
	e.UpdatePlaybackTime(15000)
	e.UpdatePlaybackTime(16000)
	if len(completions) != 1 || completions[0] != 15000 {
		t.Fatalf("completions %v, want [15000]", completions)
	}

	e.UpdatePlaybackTime(1000)
	e.UpdatePlaybackTime(15500)
	if len(completions) != 2 {
		t.Errorf("completion should re-arm after seeking back, got %v", completions)
	}
}

func TestUpdatePlaybackTime_slide_change_brackets(t *testing.T) {
	e := newTestEngine(t, ModePlayer)
	loadDeck(t, e, threeItemDeck)
	var seq []EventType
	for _, et := range []EventType{EventSlideChangeStart, EventDisplayChange, EventSlideChangeComplete} {
		e.On(et, func(ev Event) { seq = append(seq, ev.Type) })
	}

	e.UpdatePlaybackTime(100)

	want := []EventType{EventSlideChangeStart, EventDisplayChange, EventSlideChangeComplete}
	if len(seq) != len(want) {
		t.Fatalf("events %v, want %v", seq, want)
	}
	for i := range want {
		if seq[i] != want[i] {
			t.Errorf("event %d: %s, want %s", i, seq[i], want[i])
		}
	}
}

func TestSync_timer_reapplies_last_time(t *testing.T) {
	log := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelError}))
	cfg := DefaultSyncConfig()
	cfg.SyncInterval = 5 * time.Millisecond
	e := New(ModePlayer, cfg, log)
	deck := loadDeck(t, e, threeItemDeck)

	var started, stopped int
	e.On(EventSyncStart, func(Event) { started++ })
	e.On(EventSyncStop, func(Event) { stopped++ })

	e.UpdatePlaybackTime(1000)
	if _, err := e.GoToSlide(2); err != nil {
		t.Fatal(err)
	}

	timeChanges := make(chan DisplayEvent, 8)
	e.OnDisplayChange(func(ev DisplayEvent) {
		if ev.Reason == ReasonTime {
			timeChanges <- ev
		}
	})

	e.StartSync()
	e.StartSync()
	if !e.IsPlaying() {
		t.Fatal("IsPlaying should be true after StartSync")
	}

	select {
	case ev := <-timeChanges:
		if ev.CurrentSlide != deck.Items[0] || ev.CurrentTime != 1000 {
			t.Errorf("timer resolved %+v", ev)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("timer did not re-resolve the pushed time")
	}

	e.StopSync()
	e.StopSync()
	if e.IsPlaying() {
		t.Error("IsPlaying should be false after StopSync")
	}
	if started != 1 || stopped != 1 {
		t.Errorf("started=%d stopped=%d, want 1 and 1", started, stopped)
	}
}

func TestSync_staleness(t *testing.T) {
	log := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelError}))
	cfg := DefaultSyncConfig()
	cfg.SyncInterval = 5 * time.Millisecond
	cfg.StaleAfter = 20 * time.Millisecond
	e := New(ModePlayer, cfg, log)
	loadDeck(t, e, threeItemDeck)

	if e.IsSyncStale() {
		t.Error("not stale before any push")
	}
	e.UpdatePlaybackTime(1000)
	e.StartSync()
	defer e.StopSync()

	time.Sleep(60 * time.Millisecond)
	if !e.IsSyncStale() {
		t.Errorf("expected stale after %v without a push (age %v)", cfg.StaleAfter, e.LastSyncAge())
	}

	e.UpdatePlaybackTime(1100)
	if e.IsSyncStale() {
		t.Error("a fresh push should clear staleness")
	}
}

func TestSync_no_tick_starts_after_stop(t *testing.T) {
	log := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelError}))
	cfg := DefaultSyncConfig()
	cfg.SyncInterval = 2 * time.Millisecond
	e := New(ModePlayer, cfg, log)
	deck := loadDeck(t, e, threeItemDeck)

	e.UpdatePlaybackTime(1000)
	e.StartSync()
	time.Sleep(10 * time.Millisecond)
	e.StopSync()

	changes := recordDisplay(e)
	// a tick resolving under the new mode would drop the current slide
	e.SetMode(ModeRealtime)
	time.Sleep(20 * time.Millisecond)

	if len(*changes) != 0 {
		t.Errorf("timer acted after StopSync returned: %+v", *changes)
	}
	if e.CurrentSlide() != deck.Items[0] {
		t.Errorf("current %v, want the first item", e.CurrentSlide())
	}
}
