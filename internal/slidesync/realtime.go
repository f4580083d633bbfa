package slidesync

import (
	"log/slog"
	"strings"

	"github.com/google/uuid"
)

const (
	// MinRecognitionConfidence is the lowest confidence a speech result may
	// carry and still be matched.
	MinRecognitionConfidence = 0.7
	// RealtimeSlideWindow is the lifetime in milliseconds of an injected slide.
	RealtimeSlideWindow int64 = 5000
)

// selectRealtime returns the most recently appended injected slide whose raw
// window contains t.
func selectRealtime(injected []*SlideItem, t int64) *SlideItem {
	for i := len(injected) - 1; i >= 0; i-- {
		s := injected[i]
		if t >= s.StartTime && t <= s.EndTime {
			return s
		}
	}
	return nil
}

// ProcessSpeechRecognition matches recognized text against the deck and, on a
// match, injects a copy of the matched item for [timestampMs, timestampMs+5000].
// Results below MinRecognitionConfidence (or NaN) are ignored without any side
// effect; callers that need to tell that apart from "no match" must check
// confidence themselves. A match against a deck that was replaced or cleared
// while matching ran is dropped.
func (e *Engine) ProcessSpeechRecognition(text string, confidence float64, timestampMs int64) *SlideItem {
	if !(confidence >= MinRecognitionConfidence) {
		return nil
	}
	if strings.TrimSpace(text) == "" {
		return nil
	}

	e.mu.Lock()
	deck, token := e.deck, e.loadGen
	e.mu.Unlock()
	if deck == nil {
		return nil
	}

	src, kind := matchSpeech(deck.Items, text)
	if src == nil {
		e.log.Debug("speech matched no slide", slog.String("text", text))
		return nil
	}
	return e.addRealtimeSlide(token, src, timestampMs, timestampMs+RealtimeSlideWindow, RecognitionResult{
		Source:      src,
		Text:        text,
		Confidence:  confidence,
		TimestampMS: timestampMs,
		MatchedBy:   kind,
	})
}

// matchSpeech searches items for the recognized text. Keywords are tried on
// every item first; only then is the item's title and content checked for
// containing the whole recognized text.
func matchSpeech(items []*SlideItem, text string) (*SlideItem, MatchKind) {
	spoken := strings.ToLower(text)
	for _, it := range items {
		for _, kw := range it.Keywords {
			kw = strings.ToLower(strings.TrimSpace(kw))
			if kw != "" && strings.Contains(spoken, kw) {
				return it, MatchKeyword
			}
		}
	}
	for _, it := range items {
		body := strings.ToLower(it.Title + " " + it.Content)
		if strings.Contains(body, spoken) {
			return it, MatchContent
		}
	}
	return nil, ""
}

// AddRealtimeSlide appends a copy of item stamped with [startMs, endMs] to the
// injected list and emits RECOGNITION_RESULT. In Realtime mode the new slide
// becomes current immediately. The original item is never modified.
func (e *Engine) AddRealtimeSlide(item *SlideItem, startMs, endMs int64) *SlideItem {
	if item == nil {
		return nil
	}
	e.mu.Lock()
	token := e.loadGen
	e.mu.Unlock()
	return e.addRealtimeSlide(token, item, startMs, endMs, RecognitionResult{
		Source:      item,
		TimestampMS: startMs,
		MatchedBy:   MatchDirect,
	})
}

// addRealtimeSlide injects a copy of src unless the deck state identified by
// token has since been replaced, cleared or destroyed.
func (e *Engine) addRealtimeSlide(token uint64, src *SlideItem, startMs, endMs int64, res RecognitionResult) *SlideItem {
	if endMs < startMs {
		endMs = startMs
	}
	injected := *src
	injected.ID = uuid.NewString()
	injected.StartTime = startMs
	injected.EndTime = endMs
	injected.Duration = endMs - startMs
	slide := &injected
	res.Slide = slide

	e.mu.Lock()
	if token != e.loadGen || e.destroyed {
		e.mu.Unlock()
		e.log.Debug("dropping realtime slide for a replaced deck", slog.String("title", src.Title))
		return nil
	}
	e.realtime = append(e.realtime, slide)
	events := []pending{{t: EventRecognitionResult, payload: res}}
	if e.mode == ModeRealtime && e.current != slide {
		events = append(events, e.changeLocked(slide, startMs, ReasonVoice)...)
	}
	e.mu.Unlock()

	e.log.Debug("realtime slide injected",
		slog.String("id", slide.ID),
		slog.String("title", slide.Title),
		slog.String("matched_by", string(res.MatchedBy)),
		slog.Int64("start_ms", startMs),
		slog.Int64("end_ms", endMs))
	e.flush(events)
	return slide
}

// BeginRecognition announces that the external recognizer started a session.
func (e *Engine) BeginRecognition() { e.bus.Emit(EventRecognitionStart, nil) }

// EndRecognition announces that the external recognizer finished a session.
func (e *Engine) EndRecognition() { e.bus.Emit(EventRecognitionEnd, nil) }
