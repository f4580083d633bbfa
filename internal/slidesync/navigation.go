package slidesync

// GoToSlide makes deck item index visible regardless of the sync timer.
// An out-of-range index returns *NavigationError and changes nothing.
func (e *Engine) GoToSlide(index int) (*SlideItem, error) {
	e.mu.Lock()
	slide, events, err := e.goToLocked(index)
	e.mu.Unlock()
	if err != nil {
		return nil, err
	}
	e.flush(events)
	return slide, nil
}

// GoToNextSlide steps forward from the current slide's position in the deck.
// With no deck slide visible it goes to the first item.
func (e *Engine) GoToNextSlide() (*SlideItem, error) {
	e.mu.Lock()
	slide, events, err := e.goToLocked(e.indexLocked(e.current) + 1)
	e.mu.Unlock()
	if err != nil {
		return nil, err
	}
	e.flush(events)
	return slide, nil
}

// GoToPreviousSlide steps back from the current slide's position in the deck.
func (e *Engine) GoToPreviousSlide() (*SlideItem, error) {
	e.mu.Lock()
	slide, events, err := e.goToLocked(e.indexLocked(e.current) - 1)
	e.mu.Unlock()
	if err != nil {
		return nil, err
	}
	e.flush(events)
	return slide, nil
}

// goToLocked navigates within the original deck items only; injected slides
// are not addressable by index. Caller must hold e.mu.
func (e *Engine) goToLocked(index int) (*SlideItem, []pending, error) {
	total := 0
	if e.deck != nil {
		total = len(e.deck.Items)
	}
	if index < 0 || index >= total {
		return nil, nil, &NavigationError{Index: index, Total: total}
	}
	slide := e.deck.Items[index]
	return slide, e.changeLocked(slide, e.lastSyncTime, ReasonManual), nil
}
