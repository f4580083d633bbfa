package session

import (
	"sync"
	"time"

	"slide-sync/internal/slidesync"
)

// SessionID uniquely identifies a live sync session.
type SessionID string

// Session binds one engine to an ID for the HTTP surface.
type Session struct {
	ID        SessionID
	Engine    *slidesync.Engine
	CreatedAt time.Time

	done     chan struct{}
	doneOnce sync.Once
}

func newSession(id SessionID, engine *slidesync.Engine) *Session {
	return &Session{
		ID:        id,
		Engine:    engine,
		CreatedAt: time.Now().UTC(),
		done:      make(chan struct{}),
	}
}

// Done is closed once the session has been destroyed.
func (s *Session) Done() <-chan struct{} { return s.done }

func (s *Session) close() {
	s.doneOnce.Do(func() { close(s.done) })
}

// Snapshot is the query surface of a session at one instant.
type Snapshot struct {
	ID            SessionID            `json:"id"`
	Mode          slidesync.Mode       `json:"mode"`
	DeckTitle     string               `json:"deckTitle,omitempty"`
	Index         int                  `json:"index"`
	Total         int                  `json:"total"`
	Playing       bool                 `json:"playing"`
	Stale         bool                 `json:"stale"`
	Injected      int                  `json:"injected"`
	CurrentSlide  *slidesync.SlideItem `json:"currentSlide"`
	PreviousSlide *slidesync.SlideItem `json:"previousSlide"`
}
