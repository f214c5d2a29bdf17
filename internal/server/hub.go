package server

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/zenexasolutions/Fight/internal/app"
	"github.com/zenexasolutions/Fight/internal/audio"
	"github.com/zenexasolutions/Fight/internal/fighter"
	"github.com/zenexasolutions/Fight/internal/logger"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	sendBufferSize = 64
)

// Event is what websocket clients receive.
type Event struct {
	Type   string      `json:"type"`
	State  *app.State  `json:"state,omitempty"`
	Screen *app.Screen `json:"screen,omitempty"`
	Clip   *ClipRef    `json:"clip,omitempty"`
}

// ClipRef points at a WAV clip that can be fetched over HTTP.
type ClipRef struct {
	ID    string `json:"id"`
	Label string `json:"label"`
	URL   string `json:"url"`
}

type envelope struct {
	sessionID string
	payload   []byte
}

// Hub fans session events out to the websocket clients watching that session.
type Hub struct {
	clients    map[*client]bool
	register   chan *client
	unregister chan *client
	broadcast  chan envelope
	done       chan struct{}
	logger     *zap.Logger
}

type client struct {
	hub       *Hub
	conn      *websocket.Conn
	send      chan []byte
	sessionID string
}

func NewHub(log *zap.Logger) *Hub {
	if log == nil {
		log = zap.NewNop()
	}
	return &Hub{
		clients:    make(map[*client]bool),
		register:   make(chan *client),
		unregister: make(chan *client),
		broadcast:  make(chan envelope, 256),
		done:       make(chan struct{}),
		logger:     log,
	}
}

// Run owns the client set until ctx is done.
func (h *Hub) Run(ctx context.Context) {
	defer close(h.done)

	for {
		select {
		case <-ctx.Done():
			for c := range h.clients {
				delete(h.clients, c)
				close(c.send)
			}
			return

		case c := <-h.register:
			h.clients[c] = true
			logger.WithSession(h.logger, c.sessionID).Debug("websocket client connected")

		case c := <-h.unregister:
			if _, ok := h.clients[c]; ok {
				delete(h.clients, c)
				close(c.send)
				logger.WithSession(h.logger, c.sessionID).Debug("websocket client disconnected")
			}

		case msg := <-h.broadcast:
			for c := range h.clients {
				if c.sessionID != msg.sessionID {
					continue
				}
				select {
				case c.send <- msg.payload:
				default:
					delete(h.clients, c)
					close(c.send)
				}
			}
		}
	}
}

// Publish queues event for every client of sessionID. Events are dropped when
// the hub falls behind.
func (h *Hub) Publish(sessionID string, event Event) {
	payload, err := json.Marshal(event)
	if err != nil {
		h.logger.Error("encode event", zap.String("type", event.Type), zap.Error(err))
		return
	}

	select {
	case h.broadcast <- envelope{sessionID: sessionID, payload: payload}:
	default:
		logger.WithSession(h.logger, sessionID).Warn("event dropped", zap.String("type", event.Type))
	}
}

// StateListener publishes every committed state together with its screen.
func (h *Hub) StateListener(roster *fighter.Roster) app.Listener {
	return func(sessionID string, state app.State) {
		h.Publish(sessionID, stateEvent(state, roster))
	}
}

func stateEvent(state app.State, roster *fighter.Roster) Event {
	screen := app.Render(state, roster)
	return Event{Type: "state", State: &state, Screen: &screen}
}

// AudioSink stores clips in lib and announces them on the hub.
func AudioSink(lib *audio.Library, hub *Hub) audio.Sink {
	return audio.SinkFunc(func(_ context.Context, clip audio.Clip) error {
		lib.Put(clip)
		hub.Publish(clip.SessionID, Event{
			Type: "audio",
			Clip: &ClipRef{
				ID:    clip.ID,
				Label: clip.Label,
				URL:   "/api/sessions/" + clip.SessionID + "/audio/" + clip.ID,
			},
		})
		return nil
	})
}

func newUpgrader(origins []string) *websocket.Upgrader {
	return &websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin:     originAllowed(origins),
	}
}

// originAllowed accepts requests without an Origin header, any origin when
// "*" is listed, and otherwise only the listed origins.
func originAllowed(origins []string) func(*http.Request) bool {
	allowed := make(map[string]bool, len(origins))
	for _, o := range origins {
		allowed[strings.ToLower(strings.TrimSpace(o))] = true
	}

	return func(r *http.Request) bool {
		origin := r.Header.Get("Origin")
		if origin == "" || allowed["*"] {
			return true
		}
		return allowed[strings.ToLower(origin)]
	}
}

// serve upgrades the request and attaches the connection to sessionID. The
// first message on the socket is initial.
func (h *Hub) serve(w http.ResponseWriter, r *http.Request, up *websocket.Upgrader, sessionID string, initial Event) {
	conn, err := up.Upgrade(w, r, nil)
	if err != nil {
		logger.WithSession(h.logger, sessionID).Warn("websocket upgrade failed", zap.Error(err))
		return
	}

	c := &client{hub: h, conn: conn, send: make(chan []byte, sendBufferSize), sessionID: sessionID}

	if payload, err := json.Marshal(initial); err == nil {
		c.send <- payload
	}

	select {
	case h.register <- c:
	case <-h.done:
		_ = conn.Close()
		return
	case <-r.Context().Done():
		_ = conn.Close()
		return
	}

	go c.writePump()
	go c.readPump()
}

// readPump only watches for the peer going away; clients act over HTTP.
func (c *client) readPump() {
	defer func() {
		select {
		case c.hub.unregister <- c:
		case <-c.hub.done:
		}
		_ = c.conn.Close()
	}()

	c.conn.SetReadLimit(512)
	_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				logger.WithSession(c.hub.logger, c.sessionID).Debug("websocket read failed", zap.Error(err))
			}
			return
		}
	}
}

func (c *client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		_ = c.conn.Close()
	}()

	for {
		select {
		case message, ok := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				_ = c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, message); err != nil {
				logger.WithSession(c.hub.logger, c.sessionID).Debug("websocket write failed", zap.Error(err))
				return
			}

		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
