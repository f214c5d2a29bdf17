package server

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"
	"github.com/rs/cors"
	"go.uber.org/zap"

	"github.com/zenexasolutions/Fight/internal/ai"
	"github.com/zenexasolutions/Fight/internal/app"
	"github.com/zenexasolutions/Fight/internal/audio"
	"github.com/zenexasolutions/Fight/internal/logger"
	"github.com/zenexasolutions/Fight/internal/session"
)

const maxBodyBytes = 1 << 16

// Describer reports the capabilities behind the AI gateway.
type Describer interface {
	Describe() []ai.Capability
}

type Options struct {
	AllowedOrigins []string
}

// Server exposes the controller over HTTP and websockets.
type Server struct {
	ctrl     *app.Controller
	hub      *Hub
	library  *audio.Library
	status   Describer
	logger   *zap.Logger
	validate *validator.Validate
	upgrader *websocket.Upgrader
	opts     Options
}

func New(ctrl *app.Controller, hub *Hub, library *audio.Library, status Describer, log *zap.Logger, opts Options) *Server {
	if log == nil {
		log = zap.NewNop()
	}
	if len(opts.AllowedOrigins) == 0 {
		opts.AllowedOrigins = []string{"*"}
	}
	return &Server{
		ctrl:     ctrl,
		hub:      hub,
		library:  library,
		status:   status,
		logger:   log,
		validate: validator.New(),
		upgrader: newUpgrader(opts.AllowedOrigins),
		opts:     opts,
	}
}

// Handler returns the routed handler wrapped with CORS.
func (s *Server) Handler() http.Handler {
	r := mux.NewRouter()

	r.HandleFunc("/health", s.handleHealth).Methods(http.MethodGet)
	r.HandleFunc("/api/status", s.handleStatus).Methods(http.MethodGet)

	api := r.PathPrefix("/api/sessions").Subrouter()
	api.HandleFunc("", s.handleCreate).Methods(http.MethodPost)
	api.HandleFunc("/{id}", s.handleGet).Methods(http.MethodGet)
	api.HandleFunc("/{id}", s.handleDelete).Methods(http.MethodDelete)
	api.HandleFunc("/{id}/view", s.handleView).Methods(http.MethodPost)
	api.HandleFunc("/{id}/swipe", s.handleSwipe).Methods(http.MethodPost)
	api.HandleFunc("/{id}/modal/close", s.handleCloseModal).Methods(http.MethodPost)
	api.HandleFunc("/{id}/chat/input", s.handleChatInput).Methods(http.MethodPost)
	api.HandleFunc("/{id}/chat", s.handleChat).Methods(http.MethodPost)
	api.HandleFunc("/{id}/voice", s.handleVoice).Methods(http.MethodPost)
	api.HandleFunc("/{id}/onboarding/scan", s.handleScan).Methods(http.MethodPost)
	api.HandleFunc("/{id}/onboarding/finish", s.handleFinish).Methods(http.MethodPost)
	api.HandleFunc("/{id}/audio/{clip}", s.handleAudio).Methods(http.MethodGet)
	api.HandleFunc("/{id}/events", s.handleEvents).Methods(http.MethodGet)

	return cors.New(cors.Options{
		AllowedOrigins: s.opts.AllowedOrigins,
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodDelete, http.MethodOptions},
		AllowedHeaders: []string{"Content-Type"},
	}).Handler(r)
}

// sessionResponse is the body of every successful session call.
type sessionResponse struct {
	ID     string     `json:"id"`
	State  app.State  `json:"state"`
	Screen app.Screen `json:"screen"`
}

type viewRequest struct {
	View string `json:"view" validate:"required,oneof=landing onboarding swiping matches ref profile"`
}

type swipeRequest struct {
	Direction string `json:"direction" validate:"required,oneof=left right"`
}

type closeModalRequest struct {
	ToRef bool `json:"toRef"`
}

type chatInputRequest struct {
	Text string `json:"text" validate:"max=2000"`
}

type chatRequest struct {
	Text *string `json:"text" validate:"omitempty,max=2000"`
}

type voiceRequest struct {
	Index *int `json:"index" validate:"required,min=-1"`
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "healthy"})
}

func (s *Server) handleStatus(w http.ResponseWriter, _ *http.Request) {
	var caps []ai.Capability
	if s.status != nil {
		caps = s.status.Describe()
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"status":       "ok",
		"capabilities": caps,
		"roster":       s.ctrl.Roster().Len(),
	})
}

func (s *Server) handleCreate(w http.ResponseWriter, r *http.Request) {
	id, state, err := s.ctrl.Create(r.Context())
	if err != nil {
		s.fail(w, r, err)
		return
	}
	s.respond(w, http.StatusCreated, id, state)
}

func (s *Server) handleGet(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	state, err := s.ctrl.State(r.Context(), id)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	s.respond(w, http.StatusOK, id, state)
}

func (s *Server) handleDelete(w http.ResponseWriter, r *http.Request) {
	if err := s.ctrl.Delete(r.Context(), mux.Vars(r)["id"]); err != nil {
		s.fail(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleView(w http.ResponseWriter, r *http.Request) {
	var req viewRequest
	if !s.decode(w, r, &req) {
		return
	}
	s.dispatch(w, r, app.Navigate{View: app.View(req.View)})
}

func (s *Server) handleSwipe(w http.ResponseWriter, r *http.Request) {
	var req swipeRequest
	if !s.decode(w, r, &req) {
		return
	}
	s.dispatch(w, r, app.Swipe{Direction: app.Direction(req.Direction)})
}

func (s *Server) handleCloseModal(w http.ResponseWriter, r *http.Request) {
	var req closeModalRequest
	if !s.decode(w, r, &req) {
		return
	}
	s.dispatch(w, r, app.CloseMatchModal{ToRef: req.ToRef})
}

func (s *Server) handleChatInput(w http.ResponseWriter, r *http.Request) {
	var req chatInputRequest
	if !s.decode(w, r, &req) {
		return
	}
	s.dispatch(w, r, app.SetChatInput{Text: req.Text})
}

// handleChat optionally replaces the pending input, then sends it.
func (s *Server) handleChat(w http.ResponseWriter, r *http.Request) {
	var req chatRequest
	if !s.decode(w, r, &req) {
		return
	}

	if req.Text != nil {
		if _, err := s.ctrl.Dispatch(r.Context(), mux.Vars(r)["id"], app.SetChatInput{Text: *req.Text}); err != nil {
			s.fail(w, r, err)
			return
		}
	}
	s.dispatch(w, r, app.SendChat{})
}

func (s *Server) handleVoice(w http.ResponseWriter, r *http.Request) {
	var req voiceRequest
	if !s.decode(w, r, &req) {
		return
	}
	s.dispatch(w, r, app.SpeakMessage{Index: *req.Index})
}

func (s *Server) handleScan(w http.ResponseWriter, r *http.Request) {
	s.dispatch(w, r, app.BeginScan{})
}

func (s *Server) handleFinish(w http.ResponseWriter, r *http.Request) {
	s.dispatch(w, r, app.FinishOnboarding{})
}

func (s *Server) handleAudio(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	clip, ok := s.library.Get(vars["id"], vars["clip"])
	if !ok {
		writeError(w, http.StatusNotFound, "clip not found")
		return
	}

	w.Header().Set("Content-Type", "audio/wav")
	w.Header().Set("Cache-Control", "no-store")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(clip.WAV)
}

func (s *Server) handleEvents(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	state, err := s.ctrl.State(r.Context(), id)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	s.hub.serve(w, r, s.upgrader, id, stateEvent(state, s.ctrl.Roster()))
}

func (s *Server) dispatch(w http.ResponseWriter, r *http.Request, action app.Action) {
	id := mux.Vars(r)["id"]
	state, err := s.ctrl.Dispatch(r.Context(), id, action)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	s.respond(w, http.StatusOK, id, state)
}

// decode reads an optional JSON body into dst and validates it. It writes the
// error response itself and reports whether the handler may continue.
func (s *Server) decode(w http.ResponseWriter, r *http.Request, dst any) bool {
	dec := json.NewDecoder(io.LimitReader(r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()

	if err := dec.Decode(dst); err != nil && !errors.Is(err, io.EOF) {
		writeError(w, http.StatusBadRequest, fmt.Sprintf("invalid body: %v", err))
		return false
	}

	if err := s.validate.Struct(dst); err != nil {
		writeError(w, http.StatusBadRequest, validationMessage(err))
		return false
	}
	return true
}

func validationMessage(err error) string {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return err.Error()
	}

	msgs := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		msgs = append(msgs, fmt.Sprintf("%s failed on %s", strings.ToLower(fe.Field()), fe.Tag()))
	}
	return strings.Join(msgs, "; ")
}

func (s *Server) respond(w http.ResponseWriter, status int, id string, state app.State) {
	writeJSON(w, status, sessionResponse{ID: id, State: state, Screen: app.Render(state, s.ctrl.Roster())})
}

func (s *Server) fail(w http.ResponseWriter, r *http.Request, err error) {
	status := statusFor(err)
	if status == http.StatusInternalServerError {
		logger.WithSession(s.logger, mux.Vars(r)["id"]).Error("request failed",
			zap.String("path", r.URL.Path),
			zap.Error(err),
		)
	}
	writeError(w, status, err.Error())
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, session.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, app.ErrBusy), errors.Is(err, app.ErrInvalidTransition):
		return http.StatusConflict
	case errors.Is(err, app.ErrInvalidAction):
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
