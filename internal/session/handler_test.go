package session

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"slide-sync/internal/slidesync"

	"github.com/go-chi/chi/v5"
	"nhooyr.io/websocket"
	"nhooyr.io/websocket/wsjson"
)

func newTestRouter(t *testing.T) (*Service, http.Handler) {
	t.Helper()
	svc := newTestService(t, nil)
	h := NewHandler(svc, svc.log)
	r := chi.NewRouter()
	h.Routes(r)
	return svc, r
}

func do(t *testing.T, h http.Handler, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, path, nil)
	} else {
		req = httptest.NewRequest(method, path, bytes.NewBufferString(body))
		req.Header.Set("Content-Type", "application/json")
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func createSession(t *testing.T, h http.Handler, mode string) SessionID {
	t.Helper()
	rec := do(t, h, http.MethodPost, "/sessions?mode="+mode, "")
	if rec.Code != http.StatusCreated {
		t.Fatalf("create: status %d body %s", rec.Code, rec.Body.String())
	}
	var resp createResponse
	if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
		t.Fatal(err)
	}
	if string(resp.Mode) != mode {
		t.Fatalf("mode %q, want %q", resp.Mode, mode)
	}
	return resp.ID
}

func decodeSlide(t *testing.T, rec *httptest.ResponseRecorder) *slidesync.SlideItem {
	t.Helper()
	var resp slideResponse
	if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
		t.Fatal(err)
	}
	return resp.Slide
}

func TestHandler_CreateSession_unknown_mode(t *testing.T) {
	_, h := newTestRouter(t)
	rec := do(t, h, http.MethodPost, "/sessions?mode=karaoke", "")
	if rec.Code != http.StatusBadRequest {
		t.Errorf("status %d, want 400", rec.Code)
	}
}

func TestHandler_player_flow(t *testing.T) {
	_, h := newTestRouter(t)
	id := createSession(t, h, "player")
	base := "/sessions/" + string(id)

	if rec := do(t, h, http.MethodPut, base+"/deck", testDeck); rec.Code != http.StatusOK {
		t.Fatalf("load deck: status %d body %s", rec.Code, rec.Body.String())
	}

	rec := do(t, h, http.MethodPost, base+"/time", `{"timeMs": 7000}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("time: status %d", rec.Code)
	}
	if s := decodeSlide(t, rec); s == nil || s.Title != "Budget" {
		t.Errorf("slide at 7000 = %v, want Budget", s)
	}

	rec = do(t, h, http.MethodPost, base+"/time", `{"timeMs": 99000}`)
	if s := decodeSlide(t, rec); s != nil {
		t.Errorf("slide past the end = %v, want null", s)
	}

	rec = do(t, h, http.MethodPost, base+"/slides/2", "")
	if s := decodeSlide(t, rec); rec.Code != http.StatusOK || s == nil || s.Title != "Dates" {
		t.Errorf("goto 2: status %d slide %v", rec.Code, s)
	}

	rec = do(t, h, http.MethodPost, base+"/previous", "")
	if s := decodeSlide(t, rec); s == nil || s.Title != "Budget" {
		t.Errorf("previous = %v, want Budget", s)
	}

	rec = do(t, h, http.MethodGet, base+"/current", "")
	var snap Snapshot
	if err := json.NewDecoder(rec.Body).Decode(&snap); err != nil {
		t.Fatal(err)
	}
	if snap.Index != 1 || snap.Total != 3 || snap.DeckTitle != "Launch plan" {
		t.Errorf("snapshot %+v", snap)
	}
}

func TestHandler_realtime_speech(t *testing.T) {
	_, h := newTestRouter(t)
	id := createSession(t, h, "realtime")
	base := "/sessions/" + string(id)
	do(t, h, http.MethodPut, base+"/deck", testDeck)

	rec := do(t, h, http.MethodPost, base+"/speech", `{"text": "our budget is tight", "confidence": 0.92, "timestampMs": 1000}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("speech: status %d", rec.Code)
	}
	var resp speechResponse
	if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
		t.Fatal(err)
	}
	if !resp.Accepted || resp.Slide == nil || resp.Slide.Title != "Budget" {
		t.Errorf("speech response %+v", resp)
	}
	if resp.Slide != nil && (resp.Slide.StartTime != 1000 || resp.Slide.EndTime != 6000) {
		t.Errorf("injected window [%d, %d], want [1000, 6000]", resp.Slide.StartTime, resp.Slide.EndTime)
	}

	rec = do(t, h, http.MethodPost, base+"/speech", `{"text": "budget", "confidence": 1.5}`)
	if rec.Code != http.StatusBadRequest {
		t.Errorf("out of range confidence: status %d, want 400", rec.Code)
	}
}

func TestHandler_errors(t *testing.T) {
	_, h := newTestRouter(t)
	id := createSession(t, h, "player")
	base := "/sessions/" + string(id)

	tests := []struct {
		name   string
		method string
		path   string
		body   string
		want   int
	}{
		{"unknown session", http.MethodPost, "/sessions/nope/next", "", http.StatusNotFound},
		{"goto without deck", http.MethodPost, base + "/slides/0", "", http.StatusConflict},
		{"non-numeric index", http.MethodPost, base + "/slides/x", "", http.StatusBadRequest},
		{"missing timeMs", http.MethodPost, base + "/time", `{}`, http.StatusBadRequest},
		{"malformed deck", http.MethodPut, base + "/deck", `{"title":`, http.StatusBadRequest},
		{"invalid deck item", http.MethodPut, base + "/deck", `{"title":"t","items":[{"title":"","content":"c"}]}`, http.StatusBadRequest},
		{"unknown mode", http.MethodPut, base + "/mode", `{"mode":"karaoke"}`, http.StatusBadRequest},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := do(t, h, tt.method, tt.path, tt.body)
			if rec.Code != tt.want {
				t.Errorf("status %d, want %d (body %s)", rec.Code, tt.want, rec.Body.String())
			}
		})
	}
}

func TestHandler_invalid_deck_reports_field(t *testing.T) {
	_, h := newTestRouter(t)
	id := createSession(t, h, "player")

	rec := do(t, h, http.MethodPut, "/sessions/"+string(id)+"/deck",
		`{"title":"t","items":[{"title":"a","content":"b"},{"title":"ok","content":"   "}]}`)
	var resp errorResponse
	if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
		t.Fatal(err)
	}
	if resp.Index == nil || *resp.Index != 1 || resp.Field != "content" {
		t.Errorf("error response %+v", resp)
	}
}

func TestHandler_LoadDeck_url(t *testing.T) {
	deckSrv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/deck.json" {
			http.NotFound(w, r)
			return
		}
		w.Write([]byte(testDeck))
	}))
	defer deckSrv.Close()

	_, h := newTestRouter(t)
	id := createSession(t, h, "player")
	base := "/sessions/" + string(id)

	if rec := do(t, h, http.MethodPut, base+"/deck?url="+deckSrv.URL+"/deck.json", ""); rec.Code != http.StatusOK {
		t.Errorf("url load: status %d body %s", rec.Code, rec.Body.String())
	}
	if rec := do(t, h, http.MethodPut, base+"/deck?url="+deckSrv.URL+"/missing.json", ""); rec.Code != http.StatusBadGateway {
		t.Errorf("failed fetch: status %d, want 502", rec.Code)
	}
}

func TestHandler_sync_and_destroy(t *testing.T) {
	svc, h := newTestRouter(t)
	id := createSession(t, h, "player")
	base := "/sessions/" + string(id)

	if rec := do(t, h, http.MethodPost, base+"/sync/start", ""); rec.Code != http.StatusNoContent {
		t.Fatalf("sync start: status %d", rec.Code)
	}
	sess, _ := svc.Get(id)
	if !sess.Engine.IsPlaying() {
		t.Error("engine should be playing")
	}
	do(t, h, http.MethodPost, base+"/sync/stop", "")
	if sess.Engine.IsPlaying() {
		t.Error("engine should be stopped")
	}
	if rec := do(t, h, http.MethodPut, base+"/mode", `{"mode":"realtime"}`); rec.Code != http.StatusNoContent {
		t.Errorf("set mode: status %d", rec.Code)
	}
	if sess.Engine.Mode() != slidesync.ModeRealtime {
		t.Errorf("mode %q", sess.Engine.Mode())
	}
	if rec := do(t, h, http.MethodDelete, base+"/", ""); rec.Code != http.StatusNoContent {
		t.Errorf("delete: status %d", rec.Code)
	}
	if rec := do(t, h, http.MethodGet, base+"/current", ""); rec.Code != http.StatusNotFound {
		t.Errorf("after delete: status %d, want 404", rec.Code)
	}
}

func TestHandler_StreamEvents(t *testing.T) {
	svc, h := newTestRouter(t)
	srv := httptest.NewServer(h)
	defer srv.Close()

	id := createSession(t, h, "player")
	base := "/sessions/" + string(id)
	do(t, h, http.MethodPut, base+"/deck", testDeck)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	wsURL := "ws" + strings.TrimPrefix(srv.URL, "http") + base + "/events"
	c, _, err := websocket.Dial(ctx, wsURL, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer c.Close(websocket.StatusNormalClosure, "")

	var first slidesync.DisplayEvent
	if err := wsjson.Read(ctx, c, &first); err != nil {
		t.Fatalf("read initial: %v", err)
	}
	if first.Reason != slidesync.ReasonAuto || first.CurrentSlide != nil {
		t.Errorf("initial event %+v", first)
	}

	if rec := do(t, h, http.MethodPost, base+"/slides/1", ""); rec.Code != http.StatusOK {
		t.Fatalf("goto: status %d", rec.Code)
	}
	var ev slidesync.DisplayEvent
	if err := wsjson.Read(ctx, c, &ev); err != nil {
		t.Fatalf("read change: %v", err)
	}
	if !ev.IsManual || ev.Reason != slidesync.ReasonManual || ev.CurrentSlide == nil || ev.CurrentSlide.Title != "Budget" {
		t.Errorf("change event %+v", ev)
	}

	if err := svc.DestroySession(id); err != nil {
		t.Fatal(err)
	}
	if err := wsjson.Read(ctx, c, &ev); websocket.CloseStatus(err) != websocket.StatusGoingAway {
		t.Errorf("read after destroy: %v, want going away", err)
	}
}

func newLimitedRouter(t *testing.T, maxBytes int64) http.Handler {
	t.Helper()
	cfg := slidesync.DefaultSyncConfig()
	cfg.MaxDeckBytes = maxBytes
	log := newTestService(t, nil).log
	h := NewHandler(NewService(NewInMemoryRepository(), cfg, log, nil), log)
	r := chi.NewRouter()
	h.Routes(r)
	return r
}

func TestHandler_LoadDeck_too_large(t *testing.T) {
	deckSrv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(testDeck))
	}))
	defer deckSrv.Close()

	h := newLimitedRouter(t, int64(len(testDeck))-1)
	id := createSession(t, h, "player")
	base := "/sessions/" + string(id)

	if rec := do(t, h, http.MethodPut, base+"/deck", testDeck); rec.Code != http.StatusRequestEntityTooLarge {
		t.Errorf("body: status %d, want 413 (body %s)", rec.Code, rec.Body.String())
	}
	if rec := do(t, h, http.MethodPut, base+"/deck?url="+deckSrv.URL, ""); rec.Code != http.StatusRequestEntityTooLarge {
		t.Errorf("url: status %d, want 413 (body %s)", rec.Code, rec.Body.String())
	}
	if rec := do(t, h, http.MethodGet, base+"/current", ""); rec.Code != http.StatusOK {
		t.Fatalf("current: status %d", rec.Code)
	} else {
		var snap Snapshot
		json.NewDecoder(rec.Body).Decode(&snap)
		if snap.Total != 0 {
			t.Errorf("oversized deck was installed: %+v", snap)
		}
	}
}

func TestHandler_LoadDeck_url_invalid_shape(t *testing.T) {
	deckSrv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"title": "t", "items": [{"title": "a", "content": "x", "transition": "fade"}]}`))
	}))
	defer deckSrv.Close()

	_, h := newTestRouter(t)
	id := createSession(t, h, "player")

	rec := do(t, h, http.MethodPut, "/sessions/"+string(id)+"/deck?url="+deckSrv.URL, "")
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status %d, want 400 (body %s)", rec.Code, rec.Body.String())
	}
	var resp errorResponse
	if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
		t.Fatal(err)
	}
	if resp.Index == nil || *resp.Index != 0 || resp.Field != "transition" {
		t.Errorf("error response %+v", resp)
	}
}
