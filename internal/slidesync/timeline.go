package slidesync

import (
	"log/slog"
	"sort"
	"time"
)

// UpdatePlaybackTime records timeMs as the latest playback position and
// returns the slide that should be visible at it, or nil. A DISPLAY_CHANGE is
// emitted only when the resolved slide differs from the current one.
func (e *Engine) UpdatePlaybackTime(timeMs int64) *SlideItem {
	e.mu.Lock()
	e.lastSyncTime = timeMs
	e.hasSyncTime = true
	e.lastPushAt = time.Now()
	e.staleLogged = false
	slide, events := e.resolveLocked(timeMs)
	e.mu.Unlock()

	e.flush(events)
	return slide
}

// resolveLocked applies the current mode's selection rule at t.
// Caller must hold e.mu.
func (e *Engine) resolveLocked(t int64) (*SlideItem, []pending) {
	var (
		next   *SlideItem
		reason Reason
		events []pending
	)
	switch e.mode {
	case ModeRealtime:
		next = selectRealtime(e.realtime, t)
		reason = ReasonVoice
	default:
		next = selectPlayer(e.candidatesLocked(), t, e.cfg.PreloadTime.Milliseconds(), e.cfg.DelayTime.Milliseconds())
		reason = ReasonTime
		events = e.playbackCompleteLocked(t)
	}

	if next != e.current {
		e.log.Debug("display change",
			slog.String("reason", string(reason)),
			slog.Int64("time_ms", t),
			slog.Int("index", e.indexLocked(next)))
		events = append(e.changeLocked(next, t, reason), events...)
	}
	return next, events
}

// candidatesLocked merges deck items and injected slides sorted by start time.
// The sort is stable so deck items precede injected slides that start together.
func (e *Engine) candidatesLocked() []*SlideItem {
	var n int
	if e.deck != nil {
		n = len(e.deck.Items)
	}
	out := make([]*SlideItem, 0, n+len(e.realtime))
	if e.deck != nil {
		out = append(out, e.deck.Items...)
	}
	out = append(out, e.realtime...)
	sort.SliceStable(out, func(i, j int) bool { return out[i].StartTime < out[j].StartTime })
	return out
}

// playbackCompleteLocked fires PLAYBACK_COMPLETE once per pass over the end of
// the deck. Caller must hold e.mu.
func (e *Engine) playbackCompleteLocked(t int64) []pending {
	if e.deck == nil || e.deck.TotalDuration <= 0 {
		return nil
	}
	if t < e.deck.TotalDuration {
		e.completed = false
		return nil
	}
	if e.completed {
		return nil
	}
	e.completed = true
	return []pending{{t: EventPlaybackComplete, payload: t}}
}

// selectPlayer returns the first candidate whose window widened by preload
// and delay contains t. candidates must be sorted by StartTime.
func selectPlayer(candidates []*SlideItem, t, preload, delay int64) *SlideItem {
	for _, s := range candidates {
		if t >= s.StartTime-preload && t <= s.EndTime+delay {
			return s
		}
	}
	return nil
}
