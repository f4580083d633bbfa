package slidesync

import (
	"errors"
	"fmt"
)

var (
	// ErrNoDeck is returned by operations that need a loaded deck.
	ErrNoDeck = errors.New("no deck loaded")

	// ErrLoadSuperseded is returned when a load finishes after a newer load
	// (or a clear) has started. Its result is discarded.
	ErrLoadSuperseded = errors.New("load superseded by a newer load")

	// ErrDestroyed is returned by loads attempted after Destroy.
	ErrDestroyed = errors.New("engine destroyed")

	// ErrDeckTooLarge is wrapped in a LoadError when a deck source exceeds
	// SyncConfig.MaxDeckBytes.
	ErrDeckTooLarge = errors.New("deck too large")
)

// LoadError reports a network, file-read or parse failure while loading a deck.
type LoadError struct {
	Source string
	Err    error
}

func (e *LoadError) Error() string {
	return fmt.Sprintf("load deck from %s: %v", e.Source, e.Err)
}

func (e *LoadError) Unwrap() error { return e.Err }

// ValidationError reports well-formed input that is not a valid deck.
// Index is the offending item position, or -1 for deck-level problems.
type ValidationError struct {
	Index  int
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	switch {
	case e.Index >= 0 && e.Field != "":
		return fmt.Sprintf("invalid deck: item %d: %s: %s", e.Index, e.Field, e.Reason)
	case e.Index >= 0:
		return fmt.Sprintf("invalid deck: item %d: %s", e.Index, e.Reason)
	case e.Field != "":
		return fmt.Sprintf("invalid deck: %s: %s", e.Field, e.Reason)
	default:
		return "invalid deck: " + e.Reason
	}
}

// NavigationError reports an out-of-range manual navigation target.
type NavigationError struct {
	Index int
	Total int
}

func (e *NavigationError) Error() string {
	return fmt.Sprintf("slide index %d out of range [0, %d)", e.Index, e.Total)
}

// Unwrap lets errors.Is match ErrNoDeck when there was nothing to navigate.
func (e *NavigationError) Unwrap() error {
	if e.Total == 0 {
		return ErrNoDeck
	}
	return nil
}
