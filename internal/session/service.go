package session

import (
	"context"
	"io"
	"log/slog"

	"slide-sync/internal/platform/metrics"
	"slide-sync/internal/slidesync"

	"github.com/google/uuid"
)

// Service owns the engines behind each session and keeps metrics in step with
// their events.
type Service struct {
	repo    Repository
	cfg     slidesync.SyncConfig
	log     *slog.Logger
	metrics *metrics.Metrics
}

// NewService returns a Service creating engines with cfg. Metrics may be nil.
func NewService(repo Repository, cfg slidesync.SyncConfig, log *slog.Logger, m *metrics.Metrics) *Service {
	return &Service{repo: repo, cfg: cfg, log: log, metrics: m}
}

// CreateSession starts a new engine in the given mode.
func (s *Service) CreateSession(mode slidesync.Mode) (*Session, error) {
	id := SessionID(uuid.NewString())
	engine := slidesync.New(mode, s.cfg, s.log.With(slog.String("session_id", string(id))))
	sess := newSession(id, engine)
	s.instrument(sess)

	if err := s.repo.Add(sess); err != nil {
		engine.Destroy()
		return nil, err
	}
	s.log.Info("session created", slog.String("session_id", string(id)), slog.String("mode", string(engine.Mode())))
	return sess, nil
}

// instrument subscribes the metrics recorders to the session's engine.
func (s *Service) instrument(sess *Session) {
	if s.metrics == nil {
		return
	}
	e := sess.Engine
	e.OnDisplayChange(func(ev slidesync.DisplayEvent) {
		s.metrics.IncDisplayChange(string(ev.Reason))
	})
	e.On(slidesync.EventLoadComplete, func(slidesync.Event) { s.metrics.IncDeckLoad("ok") })
	e.On(slidesync.EventLoadError, func(slidesync.Event) { s.metrics.IncDeckLoad("error") })
	e.On(slidesync.EventPlaybackComplete, func(slidesync.Event) { s.metrics.IncPlaybackComplete() })
}

// Get returns the session or ErrSessionNotFound.
func (s *Service) Get(id SessionID) (*Session, error) {
	sess, ok := s.repo.Get(id)
	if !ok {
		return nil, ErrSessionNotFound
	}
	return sess, nil
}

// DestroySession stops and removes a session. Watchers see Done closed.
func (s *Service) DestroySession(id SessionID) error {
	sess, ok := s.repo.Remove(id)
	if !ok {
		return ErrSessionNotFound
	}
	sess.Engine.Destroy()
	sess.close()
	s.log.Info("session destroyed", slog.String("session_id", string(id)))
	return nil
}

// Shutdown destroys every session.
func (s *Service) Shutdown() {
	for _, sess := range s.repo.List() {
		_ = s.DestroySession(sess.ID)
	}
}

// MaxDeckBytes is the largest deck body a session will read.
func (s *Service) MaxDeckBytes() int64 {
	return s.cfg.DeckLimit()
}

// LoadDeck loads a deck from a request body.
func (s *Service) LoadDeck(id SessionID, body io.Reader) (*slidesync.Deck, error) {
	sess, err := s.Get(id)
	if err != nil {
		return nil, err
	}
	return sess.Engine.LoadFromReader(body)
}

// LoadDeckURL fetches and loads a deck from url.
func (s *Service) LoadDeckURL(ctx context.Context, id SessionID, url string) (*slidesync.Deck, error) {
	sess, err := s.Get(id)
	if err != nil {
		return nil, err
	}
	return sess.Engine.LoadFromURL(ctx, url)
}

// PushTime forwards a playback position.
func (s *Service) PushTime(id SessionID, timeMs int64) (*slidesync.SlideItem, error) {
	sess, err := s.Get(id)
	if err != nil {
		return nil, err
	}
	return sess.Engine.UpdatePlaybackTime(timeMs), nil
}

// PushSpeech forwards a speech-recognition result. accepted is false when the
// result was dropped for low confidence rather than for not matching.
func (s *Service) PushSpeech(id SessionID, text string, confidence float64, timestampMs int64) (slide *slidesync.SlideItem, accepted bool, err error) {
	sess, err := s.Get(id)
	if err != nil {
		return nil, false, err
	}
	accepted = confidence >= slidesync.MinRecognitionConfidence
	slide = sess.Engine.ProcessSpeechRecognition(text, confidence, timestampMs)

	if s.metrics != nil {
		switch {
		case !accepted:
			s.metrics.IncRecognition("rejected")
		case slide == nil:
			s.metrics.IncRecognition("unmatched")
		default:
			s.metrics.IncRecognition("matched")
		}
	}
	return slide, accepted, nil
}

// GoTo shows deck item index.
func (s *Service) GoTo(id SessionID, index int) (*slidesync.SlideItem, error) {
	sess, err := s.Get(id)
	if err != nil {
		return nil, err
	}
	return sess.Engine.GoToSlide(index)
}

// Next steps to the following deck item.
func (s *Service) Next(id SessionID) (*slidesync.SlideItem, error) {
	sess, err := s.Get(id)
	if err != nil {
		return nil, err
	}
	return sess.Engine.GoToNextSlide()
}

// Previous steps to the preceding deck item.
func (s *Service) Previous(id SessionID) (*slidesync.SlideItem, error) {
	sess, err := s.Get(id)
	if err != nil {
		return nil, err
	}
	return sess.Engine.GoToPreviousSlide()
}

// StartSync starts the session's resync timer.
func (s *Service) StartSync(id SessionID) error {
	sess, err := s.Get(id)
	if err != nil {
		return err
	}
	sess.Engine.StartSync()
	return nil
}

// StopSync stops the session's resync timer.
func (s *Service) StopSync(id SessionID) error {
	sess, err := s.Get(id)
	if err != nil {
		return err
	}
	sess.Engine.StopSync()
	return nil
}

// Clear resets the session's deck and slide state.
func (s *Service) Clear(id SessionID) error {
	sess, err := s.Get(id)
	if err != nil {
		return err
	}
	sess.Engine.Clear()
	return nil
}

// SetMode switches the session between player and realtime selection.
func (s *Service) SetMode(id SessionID, mode slidesync.Mode) error {
	sess, err := s.Get(id)
	if err != nil {
		return err
	}
	sess.Engine.SetMode(mode)
	return nil
}

// Snapshot returns the query surface of a session.
func (s *Service) Snapshot(id SessionID) (Snapshot, error) {
	sess, err := s.Get(id)
	if err != nil {
		return Snapshot{}, err
	}
	return snapshotOf(sess), nil
}

func snapshotOf(sess *Session) Snapshot {
	e := sess.Engine
	snap := Snapshot{
		ID:            sess.ID,
		Mode:          e.Mode(),
		Index:         e.CurrentSlideIndex(),
		Total:         e.TotalSlides(),
		Playing:       e.IsPlaying(),
		Stale:         e.IsSyncStale(),
		Injected:      len(e.RealtimeSlides()),
		CurrentSlide:  e.CurrentSlide(),
		PreviousSlide: e.PreviousSlide(),
	}
	if d := e.Deck(); d != nil {
		snap.DeckTitle = d.Title
	}
	return snap
}

// ActiveSessionCount reports the number of live sessions.
func (s *Service) ActiveSessionCount() int {
	return s.repo.ActiveSessionCount()
}

// StaleSessionCount reports sessions whose timer runs on a stale time.
func (s *Service) StaleSessionCount() int {
	n := 0
	for _, sess := range s.repo.List() {
		if sess.Engine.IsSyncStale() {
			n++
		}
	}
	return n
}
