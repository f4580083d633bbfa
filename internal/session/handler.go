package session

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"slide-sync/internal/slidesync"

	"github.com/go-chi/chi/v5"
)

// Handler exposes session HTTP endpoints using go-chi.
type Handler struct {
	svc *Service
	log *slog.Logger
}

// NewHandler returns a Handler that uses the given Service and Logger.
func NewHandler(svc *Service, log *slog.Logger) *Handler {
	return &Handler{svc: svc, log: log}
}

// Routes registers every session endpoint on r.
func (h *Handler) Routes(r chi.Router) {
	r.Post("/sessions", h.CreateSession)
	r.Route("/sessions/{session_id}", func(r chi.Router) {
		r.Delete("/", h.DestroySession)
		r.Get("/current", h.GetCurrent)
		r.Get("/events", h.StreamEvents)
		r.Put("/deck", h.LoadDeck)
		r.Put("/mode", h.SetMode)
		r.Post("/time", h.PushTime)
		r.Post("/speech", h.PushSpeech)
		r.Post("/slides/{index}", h.GoToSlide)
		r.Post("/next", h.NextSlide)
		r.Post("/previous", h.PreviousSlide)
		r.Post("/sync/start", h.StartSync)
		r.Post("/sync/stop", h.StopSync)
		r.Post("/clear", h.Clear)
	})
}

type createResponse struct {
	ID   SessionID      `json:"id"`
	Mode slidesync.Mode `json:"mode"`
}

type timeRequest struct {
	TimeMs *int64 `json:"timeMs"`
}

type speechRequest struct {
	Text        string  `json:"text"`
	Confidence  float64 `json:"confidence"`
	TimestampMs int64   `json:"timestampMs"`
}

type modeRequest struct {
	Mode string `json:"mode"`
}

type slideResponse struct {
	Slide *slidesync.SlideItem `json:"slide"`
}

type speechResponse struct {
	Slide    *slidesync.SlideItem `json:"slide"`
	Accepted bool                 `json:"accepted"`
}

type errorResponse struct {
	Error string `json:"error"`
	Index *int   `json:"index,omitempty"`
	Field string `json:"field,omitempty"`
}

// CreateSession handles POST /sessions?mode=player|realtime.
func (h *Handler) CreateSession(w http.ResponseWriter, r *http.Request) {
	mode := slidesync.ModePlayer
	if q := r.URL.Query().Get("mode"); q != "" {
		m, ok := slidesync.ParseMode(q)
		if !ok {
			h.writeJSON(w, http.StatusBadRequest, errorResponse{Error: "unknown mode " + strconv.Quote(q)})
			return
		}
		mode = m
	}

	sess, err := h.svc.CreateSession(mode)
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusCreated, createResponse{ID: sess.ID, Mode: sess.Engine.Mode()})
}

// DestroySession handles DELETE /sessions/{session_id}.
func (h *Handler) DestroySession(w http.ResponseWriter, r *http.Request) {
	if err := h.svc.DestroySession(sessionID(r)); err != nil {
		h.writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// GetCurrent handles GET /sessions/{session_id}/current.
func (h *Handler) GetCurrent(w http.ResponseWriter, r *http.Request) {
	snap, err := h.svc.Snapshot(sessionID(r))
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, snap)
}

// LoadDeck handles PUT /sessions/{session_id}/deck.
// With ?url= the deck is fetched from that locator; otherwise the body is the deck.
func (h *Handler) LoadDeck(w http.ResponseWriter, r *http.Request) {
	id := sessionID(r)

	var (
		deck *slidesync.Deck
		err  error
	)
	if url := r.URL.Query().Get("url"); url != "" {
		deck, err = h.svc.LoadDeckURL(r.Context(), id, url)
	} else {
		deck, err = h.svc.LoadDeck(id, http.MaxBytesReader(w, r.Body, h.svc.MaxDeckBytes()))
	}
	if err != nil {
		var le *slidesync.LoadError
		if errors.As(err, &le) && !deckTooLarge(err) && r.URL.Query().Get("url") != "" {
			h.log.Info("deck fetch failed", slog.String("session_id", string(id)), slog.String("error", err.Error()))
			h.writeJSON(w, http.StatusBadGateway, errorResponse{Error: err.Error()})
			return
		}
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, deck)
}

// SetMode handles PUT /sessions/{session_id}/mode. Body: { "mode": "realtime" }.
func (h *Handler) SetMode(w http.ResponseWriter, r *http.Request) {
	var req modeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeJSON(w, http.StatusBadRequest, errorResponse{Error: "invalid body"})
		return
	}
	mode, ok := slidesync.ParseMode(req.Mode)
	if !ok {
		h.writeJSON(w, http.StatusBadRequest, errorResponse{Error: "unknown mode " + strconv.Quote(req.Mode)})
		return
	}
	if err := h.svc.SetMode(sessionID(r), mode); err != nil {
		h.writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// PushTime handles POST /sessions/{session_id}/time. Body: { "timeMs": 12000 }.
func (h *Handler) PushTime(w http.ResponseWriter, r *http.Request) {
	var req timeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.TimeMs == nil {
		h.writeJSON(w, http.StatusBadRequest, errorResponse{Error: "timeMs is required"})
		return
	}
	slide, err := h.svc.PushTime(sessionID(r), *req.TimeMs)
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, slideResponse{Slide: slide})
}

// PushSpeech handles POST /sessions/{session_id}/speech.
// Body: { "text": "...", "confidence": 0.9, "timestampMs": 1000 }.
func (h *Handler) PushSpeech(w http.ResponseWriter, r *http.Request) {
	var req speechRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeJSON(w, http.StatusBadRequest, errorResponse{Error: "invalid body"})
		return
	}
	if req.Confidence < 0 || req.Confidence > 1 {
		h.writeJSON(w, http.StatusBadRequest, errorResponse{Error: "confidence must be within [0, 1]"})
		return
	}
	slide, accepted, err := h.svc.PushSpeech(sessionID(r), req.Text, req.Confidence, req.TimestampMs)
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, speechResponse{Slide: slide, Accepted: accepted})
}

// GoToSlide handles POST /sessions/{session_id}/slides/{index}.
func (h *Handler) GoToSlide(w http.ResponseWriter, r *http.Request) {
	index, err := strconv.Atoi(chi.URLParam(r, "index"))
	if err != nil {
		h.writeJSON(w, http.StatusBadRequest, errorResponse{Error: "index must be an integer"})
		return
	}
	slide, err := h.svc.GoTo(sessionID(r), index)
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, slideResponse{Slide: slide})
}

// NextSlide handles POST /sessions/{session_id}/next.
func (h *Handler) NextSlide(w http.ResponseWriter, r *http.Request) {
	slide, err := h.svc.Next(sessionID(r))
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, slideResponse{Slide: slide})
}

// PreviousSlide handles POST /sessions/{session_id}/previous.
func (h *Handler) PreviousSlide(w http.ResponseWriter, r *http.Request) {
	slide, err := h.svc.Previous(sessionID(r))
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, slideResponse{Slide: slide})
}

// StartSync handles POST /sessions/{session_id}/sync/start.
func (h *Handler) StartSync(w http.ResponseWriter, r *http.Request) {
	h.noContent(w, h.svc.StartSync(sessionID(r)))
}

// StopSync handles POST /sessions/{session_id}/sync/stop.
func (h *Handler) StopSync(w http.ResponseWriter, r *http.Request) {
	h.noContent(w, h.svc.StopSync(sessionID(r)))
}

// Clear handles POST /sessions/{session_id}/clear.
func (h *Handler) Clear(w http.ResponseWriter, r *http.Request) {
	h.noContent(w, h.svc.Clear(sessionID(r)))
}

func sessionID(r *http.Request) SessionID {
	return SessionID(chi.URLParam(r, "session_id"))
}

func (h *Handler) noContent(w http.ResponseWriter, err error) {
	if err != nil {
		h.writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// writeError maps service and engine errors onto HTTP statuses.
func (h *Handler) writeError(w http.ResponseWriter, err error) {
	var (
		ve *slidesync.ValidationError
		le *slidesync.LoadError
		ne *slidesync.NavigationError
	)
	switch {
	case errors.Is(err, ErrSessionNotFound):
		h.writeJSON(w, http.StatusNotFound, errorResponse{Error: err.Error()})
	case deckTooLarge(err):
		h.writeJSON(w, http.StatusRequestEntityTooLarge, errorResponse{Error: err.Error()})
	case errors.As(err, &ve):
		resp := errorResponse{Error: ve.Error(), Field: ve.Field}
		if ve.Index >= 0 {
			resp.Index = &ve.Index
		}
		h.writeJSON(w, http.StatusBadRequest, resp)
	case errors.As(err, &le):
		h.writeJSON(w, http.StatusBadRequest, errorResponse{Error: le.Error()})
	case errors.As(err, &ne):
		h.writeJSON(w, http.StatusConflict, errorResponse{Error: ne.Error()})
	case errors.Is(err, slidesync.ErrLoadSuperseded):
		h.writeJSON(w, http.StatusConflict, errorResponse{Error: err.Error()})
	case errors.Is(err, slidesync.ErrDestroyed):
		h.writeJSON(w, http.StatusGone, errorResponse{Error: err.Error()})
	default:
		h.log.Error("session request failed", slog.String("error", err.Error()))
		h.writeJSON(w, http.StatusInternalServerError, errorResponse{Error: "internal error"})
	}
}

func deckTooLarge(err error) bool {
	var mbe *http.MaxBytesError
	return errors.Is(err, slidesync.ErrDeckTooLarge) || errors.As(err, &mbe)
}

func (h *Handler) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		h.log.Debug("write response failed", slog.String("error", err.Error()))
	}
}
