package slidesync

import "time"

// Mode selects what drives slide selection.
type Mode string

const (
	// ModePlayer resolves the visible slide from a pushed playback clock.
	ModePlayer Mode = "player"
	// ModeRealtime resolves the visible slide from speech-recognition matches.
	ModeRealtime Mode = "realtime"
)

// ParseMode maps a user-facing mode name to a Mode. Unknown names report ok=false.
func ParseMode(s string) (Mode, bool) {
	switch Mode(s) {
	case ModePlayer:
		return ModePlayer, true
	case ModeRealtime:
		return ModeRealtime, true
	}
	return "", false
}

// Reason explains why the visible slide changed.
type Reason string

const (
	ReasonTime   Reason = "time"
	ReasonVoice  Reason = "voice"
	ReasonManual Reason = "manual"
	ReasonAuto   Reason = "auto"
)

// Transition describes how a slide enters the screen.
type Transition struct {
	Type     string `json:"type,omitempty"`
	Duration int64  `json:"duration,omitempty"`
}

// SlideItem is one timed, displayable unit of a deck.
// All times are milliseconds on the playback timeline.
type SlideItem struct {
	// ID is only set on injected realtime slides.
	ID           string      `json:"id,omitempty"`
	Sequence     int         `json:"sequence"`
	Title        string      `json:"title"`
	Content      string      `json:"content"`
	StartTime    int64       `json:"startTime"`
	EndTime      int64       `json:"endTime"`
	Duration     int64       `json:"duration"`
	Keywords     []string    `json:"keywords,omitempty"`
	SemanticTags []string    `json:"semanticTags,omitempty"`
	Transition   *Transition `json:"transition,omitempty"`
	ImageURL     string      `json:"imageUrl,omitempty"`
	VideoURL     string      `json:"videoUrl,omitempty"`
	Link         string      `json:"link,omitempty"`
	Notes        string      `json:"notes,omitempty"`
}

// Deck is a validated slide collection with fully resolved item timing.
type Deck struct {
	Title         string       `json:"title"`
	Description   string       `json:"description,omitempty"`
	Author        string       `json:"author,omitempty"`
	Language      string       `json:"language,omitempty"`
	Format        string       `json:"format,omitempty"`
	Items         []*SlideItem `json:"items"`
	TotalDuration int64        `json:"totalDuration"`
}

// DisplayEvent is the snapshot delivered to subscribers on every display change.
type DisplayEvent struct {
	CurrentSlide       *SlideItem `json:"currentSlide"`
	PreviousSlide      *SlideItem `json:"previousSlide"`
	CurrentTime        int64      `json:"currentTime"`
	Timestamp          time.Time  `json:"timestamp"`
	IsManual           bool       `json:"isManual"`
	Reason             Reason     `json:"reason"`
	TransitionDuration int64      `json:"transitionDuration"`
}

// MatchKind records which pass of the speech matcher produced a slide.
type MatchKind string

const (
	MatchKeyword MatchKind = "keyword"
	MatchContent MatchKind = "content"
	MatchDirect  MatchKind = "direct"
)

// RecognitionResult is the payload of RECOGNITION_RESULT.
type RecognitionResult struct {
	Slide       *SlideItem `json:"slide"`
	Source      *SlideItem `json:"source,omitempty"`
	Text        string     `json:"text,omitempty"`
	Confidence  float64    `json:"confidence,omitempty"`
	TimestampMS int64      `json:"timestampMs"`
	MatchedBy   MatchKind  `json:"matchedBy"`
}

// LoadStarted is the payload of LOAD_START.
type LoadStarted struct {
	Source string `json:"source"`
}

// SyncConfig tunes the synchronizer. It has no identity.
type SyncConfig struct {
	SyncInterval              time.Duration
	PreloadTime               time.Duration
	DelayTime                 time.Duration
	SmoothTransition          bool
	DefaultTransitionDuration time.Duration

	// StaleAfter is how long the timer may run on an unchanged pushed time
	// before the sync is reported stale.
	StaleAfter time.Duration
	// FetchTimeout bounds LoadFromURL requests.
	FetchTimeout time.Duration
	// MaxDeckBytes caps how much of any deck source is read.
	MaxDeckBytes int64
}

const (
	DefaultSyncInterval       = 100 * time.Millisecond
	DefaultTransitionDuration = 300 * time.Millisecond
	DefaultStaleAfter         = 2 * time.Second
	DefaultFetchTimeout       = 10 * time.Second

	DefaultMaxDeckBytes int64 = 8 << 20
)

// DefaultSyncConfig returns the configuration used when the caller supplies none.
func DefaultSyncConfig() SyncConfig {
	return SyncConfig{
		SyncInterval:              DefaultSyncInterval,
		SmoothTransition:          true,
		DefaultTransitionDuration: DefaultTransitionDuration,
		StaleAfter:                DefaultStaleAfter,
		FetchTimeout:              DefaultFetchTimeout,
		MaxDeckBytes:              DefaultMaxDeckBytes,
	}
}

// DeckLimit returns MaxDeckBytes, or DefaultMaxDeckBytes when it is unset.
func (c SyncConfig) DeckLimit() int64 {
	if c.MaxDeckBytes <= 0 {
		return DefaultMaxDeckBytes
	}
	return c.MaxDeckBytes
}

// normalize fills non-positive intervals with defaults. Offsets may be zero.
func (c SyncConfig) normalize() SyncConfig {
	if c.SyncInterval <= 0 {
		c.SyncInterval = DefaultSyncInterval
	}
	if c.StaleAfter <= 0 {
		c.StaleAfter = DefaultStaleAfter
	}
	if c.FetchTimeout <= 0 {
		c.FetchTimeout = DefaultFetchTimeout
	}
	c.MaxDeckBytes = c.DeckLimit()
	if c.PreloadTime < 0 {
		c.PreloadTime = 0
	}
	if c.DelayTime < 0 {
		c.DelayTime = 0
	}
	if c.DefaultTransitionDuration < 0 {
		c.DefaultTransitionDuration = 0
	}
	return c
}
