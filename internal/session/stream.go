package session

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"slide-sync/internal/slidesync"

	"nhooyr.io/websocket"
	"nhooyr.io/websocket/wsjson"
)

const (
	streamBuffer       = 32
	streamWriteTimeout = 5 * time.Second
)

// StreamEvents handles GET /sessions/{session_id}/events.
// It upgrades to a websocket and writes one JSON DisplayEvent per display
// change. The first message describes the state at connect time with reason
// "auto". Events are dropped, not queued without bound, for slow watchers.
func (h *Handler) StreamEvents(w http.ResponseWriter, r *http.Request) {
	id := sessionID(r)
	sess, err := h.svc.Get(id)
	if err != nil {
		h.writeError(w, err)
		return
	}

	c, err := websocket.Accept(w, r, nil)
	if err != nil {
		h.log.Info("websocket accept failed", slog.String("session_id", string(id)), slog.String("error", err.Error()))
		return
	}
	defer c.Close(websocket.StatusInternalError, "")

	events := make(chan slidesync.DisplayEvent, streamBuffer)
	subID := sess.Engine.OnDisplayChange(func(ev slidesync.DisplayEvent) {
		select {
		case events <- ev:
		default:
			h.log.Warn("dropping display event for slow watcher", slog.String("session_id", string(id)))
		}
	})
	defer sess.Engine.OffDisplayChange(subID)

	ctx := c.CloseRead(r.Context())

	initial := slidesync.DisplayEvent{
		CurrentSlide:  sess.Engine.CurrentSlide(),
		PreviousSlide: sess.Engine.PreviousSlide(),
		Timestamp:     time.Now().UTC(),
		Reason:        slidesync.ReasonAuto,
	}
	if t, ok := sess.Engine.LastSyncTime(); ok {
		initial.CurrentTime = t
	}
	if err := writeEvent(ctx, c, initial); err != nil {
		return
	}

	h.log.Debug("watcher connected", slog.String("session_id", string(id)))
	for {
		select {
		case <-ctx.Done():
			c.Close(websocket.StatusNormalClosure, "")
			return
		case <-sess.Done():
			c.Close(websocket.StatusGoingAway, "session destroyed")
			return
		case ev := <-events:
			if err := writeEvent(ctx, c, ev); err != nil {
				h.log.Debug("watcher write failed", slog.String("session_id", string(id)), slog.String("error", err.Error()))
				return
			}
		}
	}
}

func writeEvent(ctx context.Context, c *websocket.Conn, ev slidesync.DisplayEvent) error {
	ctx, cancel := context.WithTimeout(ctx, streamWriteTimeout)
	defer cancel()
	return wsjson.Write(ctx, c, ev)
}
