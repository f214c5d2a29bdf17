package server

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/zenexasolutions/Fight/internal/ai"
	"github.com/zenexasolutions/Fight/internal/app"
	"github.com/zenexasolutions/Fight/internal/audio"
	"github.com/zenexasolutions/Fight/internal/fighter"
	"github.com/zenexasolutions/Fight/internal/session"
)

type stubGateway struct{}

func (stubGateway) AnalyzeMatchup(context.Context, fighter.Profile, fighter.Profile) ai.Result[ai.Analysis] {
	return ai.Fallback(ai.DefaultAnalysis(), errors.New("offline"))
}

func (stubGateway) GeneratePoster(context.Context, fighter.Profile, fighter.Profile) ai.Result[ai.Poster] {
	return ai.Absent[ai.Poster](errors.New("offline"))
}

func (stubGateway) FindVenues(context.Context, string) ai.Result[ai.VenueReport] {
	return ai.OK(ai.VenueReport{
		Text:  "The Iron Pit. Bring teeth.",
		Links: []ai.VenueLink{{Title: "The Iron Pit", URI: "https://maps.example/iron"}},
	})
}

func (stubGateway) Speak(context.Context, string) ai.Result[ai.Speech] {
	return ai.Absent[ai.Speech](errors.New("offline"))
}

func (stubGateway) StartRefChat(string) ai.RefChat { return stubChat{} }

func (stubGateway) Describe() []ai.Capability {
	return []ai.Capability{{Name: "ref_chat", Model: "stub-model"}}
}

type stubChat struct{}

func (stubChat) Send(context.Context, string) ai.Result[string] { return ai.OK("Hit the bag.") }

type testEnv struct {
	ctrl    *app.Controller
	hub     *Hub
	library *audio.Library
	handler http.Handler
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	return newTestEnvWith(t, Options{})
}

func newTestEnvWith(t *testing.T, opts Options) *testEnv {
	t.Helper()

	log := zap.NewNop()
	roster := fighter.DefaultRoster()
	hub := NewHub(log)
	library := audio.NewLibrary(16)

	ctrl, err := app.NewController(session.NewMemory(time.Hour), stubGateway{}, roster, AudioSink(library, hub), log, app.Options{
		ScanDelay: 10 * time.Millisecond,
		Listener:  hub.StateListener(roster),
		CoinFlip:  func() bool { return false },
	})
	if err != nil {
		t.Fatalf("new controller: %v", err)
	}
	t.Cleanup(ctrl.Close)

	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	go hub.Run(ctx)

	srv := New(ctrl, hub, library, stubGateway{}, log, opts)
	return &testEnv{ctrl: ctrl, hub: hub, library: library, handler: srv.Handler()}
}

func (e *testEnv) do(t *testing.T, method, path, body string) (*httptest.ResponseRecorder, map[string]any) {
	t.Helper()

	var reader io.Reader
	if body != "" {
		reader = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")

	rec := httptest.NewRecorder()
	e.handler.ServeHTTP(rec, req)

	var decoded map[string]any
	if rec.Body.Len() > 0 && strings.HasPrefix(rec.Header().Get("Content-Type"), "application/json") {
		if err := json.Unmarshal(rec.Body.Bytes(), &decoded); err != nil {
			t.Fatalf("decode %s %s: %v", method, path, err)
		}
	}
	return rec, decoded
}

func (e *testEnv) create(t *testing.T) string {
	t.Helper()

	rec, body := e.do(t, http.MethodPost, "/api/sessions", "")
	if rec.Code != http.StatusCreated {
		t.Fatalf("create: expected 201, got %d: %s", rec.Code, rec.Body.String())
	}
	id, _ := body["id"].(string)
	if id == "" {
		t.Fatalf("create: missing id in %v", body)
	}
	return id
}

func (e *testEnv) state(t *testing.T, id string) app.State {
	t.Helper()

	s, err := e.ctrl.State(context.Background(), id)
	if err != nil {
		t.Fatalf("state: %v", err)
	}
	return s
}

func TestHealthAndStatus(t *testing.T) {
	env := newTestEnv(t)

	rec, body := env.do(t, http.MethodGet, "/health", "")
	if rec.Code != http.StatusOK || body["status"] != "healthy" {
		t.Fatalf("unexpected health response %d %v", rec.Code, body)
	}

	rec, body = env.do(t, http.MethodGet, "/api/status", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("unexpected status code %d", rec.Code)
	}
	caps, _ := body["capabilities"].([]any)
	if len(caps) != 1 || body["roster"] != float64(4) {
		t.Fatalf("unexpected status body %v", body)
	}
}

func TestRightSwipeOverHTTP(t *testing.T) {
	env := newTestEnv(t)
	id := env.create(t)

	if rec, _ := env.do(t, http.MethodPost, "/api/sessions/"+id+"/view", `{"view":"swiping"}`); rec.Code != http.StatusOK {
		t.Fatalf("navigate: %d %s", rec.Code, rec.Body.String())
	}

	rec, body := env.do(t, http.MethodPost, "/api/sessions/"+id+"/swipe", `{"direction":"right"}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("swipe: %d %s", rec.Code, rec.Body.String())
	}
	screen, _ := body["screen"].(map[string]any)
	if screen["busy"] != true {
		t.Fatalf("expected busy screen right after swiping, got %v", screen)
	}

	env.ctrl.Wait()

	s := env.state(t, id)
	if len(s.Matches) != 1 || s.Matches[0].FighterB.ID != "1" || !s.MatchModalOpen {
		t.Fatalf("unexpected state after matchup %+v", s)
	}
	if s.MatchAnalysis == nil || s.MatchAnalysis.Analysis != ai.FallbackAnalysis {
		t.Fatalf("expected fallback analysis, got %+v", s.MatchAnalysis)
	}

	rec, body = env.do(t, http.MethodPost, "/api/sessions/"+id+"/modal/close", `{"toRef":true}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("close modal: %d", rec.Code)
	}
	if st, _ := body["state"].(map[string]any); st["view"] != "ref" || st["isMatchModalOpen"] != false {
		t.Fatalf("expected ref view with closed modal, got %v", st)
	}
}

func TestChatOverHTTP(t *testing.T) {
	env := newTestEnv(t)
	id := env.create(t)
	env.do(t, http.MethodPost, "/api/sessions/"+id+"/view", `{"view":"ref"}`)

	rec, _ := env.do(t, http.MethodPost, "/api/sessions/"+id+"/chat", `{"text":"Find gyms nearby"}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("chat: %d %s", rec.Code, rec.Body.String())
	}
	env.ctrl.Wait()

	s := env.state(t, id)
	if len(s.Transcript) != 2 || s.Transcript[1].Text() != "The Iron Pit. Bring teeth." {
		t.Fatalf("unexpected transcript %+v", s.Transcript)
	}
	if len(s.VenueLinks) != 1 || s.VenueLinks[0].Title != "The Iron Pit" {
		t.Fatalf("unexpected links %+v", s.VenueLinks)
	}

	env.do(t, http.MethodPost, "/api/sessions/"+id+"/chat/input", `{"text":"   "}`)
	rec, _ = env.do(t, http.MethodPost, "/api/sessions/"+id+"/chat", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("blank chat: %d", rec.Code)
	}
	env.ctrl.Wait()
	if got := len(env.state(t, id).Transcript); got != 2 {
		t.Fatalf("blank input must not append, got %d messages", got)
	}

	env.do(t, http.MethodPost, "/api/sessions/"+id+"/chat", `{"text":"Schedule my match"}`)
	env.ctrl.Wait()
	if s := env.state(t, id); len(s.Transcript) != 4 || s.Transcript[3].Text() != "Hit the bag." {
		t.Fatalf("unexpected transcript %+v", s.Transcript)
	}
}

func TestOnboardingOverHTTP(t *testing.T) {
	env := newTestEnv(t)
	id := env.create(t)
	env.do(t, http.MethodPost, "/api/sessions/"+id+"/view", `{"view":"onboarding"}`)

	if rec, _ := env.do(t, http.MethodPost, "/api/sessions/"+id+"/onboarding/finish", ""); rec.Code != http.StatusConflict {
		t.Fatalf("finish before scan: expected 409, got %d", rec.Code)
	}

	if rec, _ := env.do(t, http.MethodPost, "/api/sessions/"+id+"/onboarding/scan", ""); rec.Code != http.StatusOK {
		t.Fatalf("scan: %d", rec.Code)
	}

	deadline := time.Now().Add(2 * time.Second)
	for env.state(t, id).OnboardingStep != app.StepGranted {
		if time.Now().After(deadline) {
			t.Fatal("scan did not complete")
		}
		time.Sleep(5 * time.Millisecond)
	}

	rec, body := env.do(t, http.MethodPost, "/api/sessions/"+id+"/onboarding/finish", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("finish: %d", rec.Code)
	}
	if screen, _ := body["screen"].(map[string]any); screen["title"] != "TARGETS ACQUIRED" {
		t.Fatalf("expected swiping screen, got %v", screen)
	}
}

func TestErrorMapping(t *testing.T) {
	env := newTestEnv(t)
	id := env.create(t)

	cases := []struct {
		name   string
		method string
		path   string
		body   string
		want   int
	}{
		{name: "unknown session", method: http.MethodGet, path: "/api/sessions/nope", want: http.StatusNotFound},
		{name: "bad direction", method: http.MethodPost, path: "/api/sessions/" + id + "/swipe", body: `{"direction":"up"}`, want: http.StatusBadRequest},
		{name: "malformed", method: http.MethodPost, path: "/api/sessions/" + id + "/swipe", body: `{"direction":`, want: http.StatusBadRequest},
		{name: "unknown field", method: http.MethodPost, path: "/api/sessions/" + id + "/view", body: `{"screen":"ref"}`, want: http.StatusBadRequest},
		{name: "missing view", method: http.MethodPost, path: "/api/sessions/" + id + "/view", want: http.StatusBadRequest},
		{name: "swipe from landing", method: http.MethodPost, path: "/api/sessions/" + id + "/swipe", body: `{"direction":"left"}`, want: http.StatusConflict},
		{name: "voice without index", method: http.MethodPost, path: "/api/sessions/" + id + "/voice", body: `{}`, want: http.StatusBadRequest},
		{name: "voice bad index", method: http.MethodPost, path: "/api/sessions/" + id + "/voice", body: `{"index":3}`, want: http.StatusBadRequest},
		{name: "missing clip", method: http.MethodGet, path: "/api/sessions/" + id + "/audio/nope", want: http.StatusNotFound},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			rec, body := env.do(t, tc.method, tc.path, tc.body)
			if rec.Code != tc.want {
				t.Fatalf("expected %d, got %d: %s", tc.want, rec.Code, rec.Body.String())
			}
			if msg, _ := body["error"].(string); msg == "" {
				t.Fatalf("expected error body, got %v", body)
			}
		})
	}
}

func TestStatusFor(t *testing.T) {
	cases := []struct {
		err  error
		want int
	}{
		{err: fmt.Errorf("x: %w", session.ErrNotFound), want: http.StatusNotFound},
		{err: fmt.Errorf("x: %w", app.ErrBusy), want: http.StatusConflict},
		{err: fmt.Errorf("x: %w", app.ErrInvalidTransition), want: http.StatusConflict},
		{err: fmt.Errorf("x: %w", app.ErrInvalidAction), want: http.StatusBadRequest},
		{err: errors.New("redis down"), want: http.StatusInternalServerError},
	}

	for _, tc := range cases {
		if got := statusFor(tc.err); got != tc.want {
			t.Fatalf("%v: expected %d, got %d", tc.err, tc.want, got)
		}
	}
}

func TestDeleteSession(t *testing.T) {
	env := newTestEnv(t)
	id := env.create(t)

	if rec, _ := env.do(t, http.MethodDelete, "/api/sessions/"+id, ""); rec.Code != http.StatusNoContent {
		t.Fatalf("delete: expected 204, got %d", rec.Code)
	}
	if rec, _ := env.do(t, http.MethodGet, "/api/sessions/"+id, ""); rec.Code != http.StatusNotFound {
		t.Fatalf("get after delete: expected 404, got %d", rec.Code)
	}
}

func TestEventsStreamStatesAndAudio(t *testing.T) {
	env := newTestEnv(t)
	ts := httptest.NewServer(env.handler)
	defer ts.Close()

	id := env.create(t)
	env.do(t, http.MethodPost, "/api/sessions/"+id+"/view", `{"view":"swiping"}`)

	wsURL := "ws" + strings.TrimPrefix(ts.URL, "http") + "/api/sessions/" + id + "/events"
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close()

	read := func() Event {
		t.Helper()
		_ = conn.SetReadDeadline(time.Now().Add(2 * time.Second))
		var ev Event
		if err := conn.ReadJSON(&ev); err != nil {
			t.Fatalf("read event: %v", err)
		}
		return ev
	}

	first := read()
	if first.Type != "state" || first.State == nil || first.State.View != app.ViewSwiping {
		t.Fatalf("unexpected initial event %+v", first)
	}

	// Registration happens before the handler returns, so events published
	// from here on reach this client.
	resp, err := http.Post(ts.URL+"/api/sessions/"+id+"/swipe", "application/json", bytes.NewBufferString(`{"direction":"left"}`))
	if err != nil {
		t.Fatalf("swipe: %v", err)
	}
	resp.Body.Close()

	var clip *ClipRef
	for i := 0; i < 8 && clip == nil; i++ {
		if ev := read(); ev.Type == "audio" {
			clip = ev.Clip
		}
	}
	if clip == nil || clip.Label != "swipe" {
		t.Fatalf("expected swipe tone event, got %+v", clip)
	}

	audioResp, err := http.Get(ts.URL + clip.URL)
	if err != nil {
		t.Fatalf("fetch clip: %v", err)
	}
	defer audioResp.Body.Close()

	wav, _ := io.ReadAll(audioResp.Body)
	if audioResp.StatusCode != http.StatusOK || audioResp.Header.Get("Content-Type") != "audio/wav" || !bytes.HasPrefix(wav, []byte("RIFF")) {
		t.Fatalf("unexpected clip response %d %q", audioResp.StatusCode, audioResp.Header.Get("Content-Type"))
	}
}

func TestOriginPolicy(t *testing.T) {
	const arena = "https://arena.example"

	env := newTestEnvWith(t, Options{AllowedOrigins: []string{arena}})
	ts := httptest.NewServer(env.handler)
	defer ts.Close()

	req := httptest.NewRequest(http.MethodOptions, "/api/sessions", nil)
	req.Header.Set("Origin", arena)
	req.Header.Set("Access-Control-Request-Method", http.MethodPost)
	rec := httptest.NewRecorder()
	env.handler.ServeHTTP(rec, req)

	if got := rec.Header().Get("Access-Control-Allow-Origin"); got != arena {
		t.Fatalf("expected preflight to allow %s, got %q", arena, got)
	}
	if got := rec.Header().Get("Access-Control-Allow-Credentials"); got != "" {
		t.Fatalf("credentials must not be allowed, got %q", got)
	}

	id := env.create(t)
	wsURL := "ws" + strings.TrimPrefix(ts.URL, "http") + "/api/sessions/" + id + "/events"

	tests := []struct {
		name   string
		origin string
		ok     bool
	}{
		{name: "listed origin", origin: arena, ok: true},
		{name: "no origin", origin: "", ok: true},
		{name: "foreign origin", origin: "https://evil.example", ok: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			header := http.Header{}
			if tt.origin != "" {
				header.Set("Origin", tt.origin)
			}

			conn, resp, err := websocket.DefaultDialer.Dial(wsURL, header)
			if tt.ok {
				if err != nil {
					t.Fatalf("dial: %v", err)
				}
				conn.Close()
				return
			}

			if err == nil {
				conn.Close()
				t.Fatal("expected handshake to be refused")
			}
			if resp == nil || resp.StatusCode != http.StatusForbidden {
				t.Fatalf("expected 403, got %v", resp)
			}
		})
	}
}

func TestOriginAllowed(t *testing.T) {
	tests := []struct {
		origins []string
		origin  string
		want    bool
	}{
		{origins: []string{"*"}, origin: "https://any.example", want: true},
		{origins: []string{"https://Arena.example"}, origin: "https://arena.example", want: true},
		{origins: []string{"https://arena.example"}, origin: "https://arena.example.evil", want: false},
		{origins: nil, origin: "https://arena.example", want: false},
		{origins: nil, origin: "", want: true},
	}

	for _, tt := range tests {
		r := httptest.NewRequest(http.MethodGet, "/", nil)
		if tt.origin != "" {
			r.Header.Set("Origin", tt.origin)
		}
		if got := originAllowed(tt.origins)(r); got != tt.want {
			t.Errorf("originAllowed(%v)(%q) = %v, want %v", tt.origins, tt.origin, got, tt.want)
		}
	}
}

func TestPublishDropsWhenBehind(t *testing.T) {
	hub := NewHub(zap.NewNop())
	for i := 0; i < cap(hub.broadcast)+5; i++ {
		hub.Publish("s", Event{Type: "state"})
	}
	if got := len(hub.broadcast); got != cap(hub.broadcast) {
		t.Fatalf("expected a full buffer, got %d", got)
	}
}
