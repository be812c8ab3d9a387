// Package control exposes the session over HTTP: a trigger endpoint, a
// status snapshot and a WebSocket stream of status changes.
package control

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"github.com/lexiqai/voice-widget/internal/session"
)

const (
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = (pongWait * 9) / 10
)

// Session is the part of the controller the handlers drive
type Session interface {
	Trigger(ctx context.Context) (session.Action, error)
	Status() session.Status
	Subscribe() (<-chan session.Status, func())
}

// TriggerResponse is the body returned by POST /trigger
type TriggerResponse struct {
	Action session.Action `json:"action"`
	Error  string         `json:"error,omitempty"`
	Status session.Status `json:"status"`
}

// Message is the WebSocket envelope in both directions
type Message struct {
	Event  string          `json:"event"`
	Status *session.Status `json:"status,omitempty"`
	Action session.Action  `json:"action,omitempty"`
	Error  string          `json:"error,omitempty"`
}

const (
	EventStatus        = "status"
	EventTrigger       = "trigger"
	EventTriggerResult = "trigger_result"
)

// Handlers serves the control API for one session
type Handlers struct {
	session  Session
	logger   zerolog.Logger
	upgrader websocket.Upgrader
}

// NewHandlers creates the control API handlers
func NewHandlers(s Session, logger zerolog.Logger) *Handlers {
	return &Handlers{
		session: s,
		logger:  logger.With().Str("component", "control").Logger(),
		upgrader: websocket.Upgrader{
			// Local widget UI only; the server binds to the loopback interface
			CheckOrigin:     func(r *http.Request) bool { return true },
			ReadBufferSize:  1024,
			WriteBufferSize: 4096,
		},
	}
}

// Register mounts the handlers on mux
func (h *Handlers) Register(mux *http.ServeMux) {
	mux.HandleFunc("/trigger", h.HandleTrigger)
	mux.HandleFunc("/status", h.HandleStatus)
	mux.HandleFunc("/ws/status", h.HandleStatusWS)
}

// HandleTrigger applies one trigger action
func (h *Handlers) HandleTrigger(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.Header().Set("Allow", http.MethodPost)
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	action, err := h.session.Trigger(r.Context())
	resp := TriggerResponse{Action: action, Status: h.session.Status()}

	code := http.StatusOK
	if err != nil {
		resp.Error = err.Error()
		code = triggerErrorStatus(err)
		h.logger.Debug().Err(err).Str("action", string(action)).Msg("Trigger not applied")
	}

	writeJSON(w, code, resp)
}

// HandleStatus returns the current status snapshot
func (h *Handlers) HandleStatus(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.Header().Set("Allow", http.MethodGet)
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	writeJSON(w, http.StatusOK, h.session.Status())
}

// HandleStatusWS streams status changes and accepts trigger messages
func (h *Handlers) HandleStatusWS(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		// Upgrade already wrote the HTTP error
		h.logger.Warn().Err(err).Msg("Failed to upgrade connection to WebSocket")
		return
	}

	updates, unsubscribe := h.session.Subscribe()
	c := &statusConn{conn: conn, logger: h.logger, done: make(chan struct{})}

	h.logger.Info().Str("remote_addr", r.RemoteAddr).Msg("Status stream connected")

	go c.readLoop(h.session)
	c.writeLoop(updates)

	unsubscribe()
	_ = conn.Close()
	h.logger.Info().Str("remote_addr", r.RemoteAddr).Msg("Status stream closed")
}

// statusConn serializes writes to one WebSocket connection
type statusConn struct {
	conn   *websocket.Conn
	logger zerolog.Logger
	mu     sync.Mutex
	done   chan struct{}
}

func (c *statusConn) write(msg Message) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
	return c.conn.WriteJSON(msg)
}

func (c *statusConn) ping() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeWait))
}

func (c *statusConn) readLoop(s Session) {
	defer close(c.done)

	_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		var msg Message
		if err := c.conn.ReadJSON(&msg); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				c.logger.Warn().Err(err).Msg("WebSocket read error")
			}
			return
		}

		switch msg.Event {
		case EventTrigger:
			action, err := s.Trigger(context.Background())
			result := Message{Event: EventTriggerResult, Action: action}
			if err != nil {
				result.Error = err.Error()
			}
			if err := c.write(result); err != nil {
				return
			}
		default:
			c.logger.Debug().Str("event", msg.Event).Msg("Ignoring unknown WebSocket event")
		}
	}
}

func (c *statusConn) writeLoop(updates <-chan session.Status) {
	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()

	for {
		select {
		case status, ok := <-updates:
			if !ok {
				c.mu.Lock()
				_ = c.conn.WriteControl(websocket.CloseMessage,
					websocket.FormatCloseMessage(websocket.CloseGoingAway, "session closed"),
					time.Now().Add(writeWait))
				c.mu.Unlock()
				return
			}
			if err := c.write(Message{Event: EventStatus, Status: &status}); err != nil {
				return
			}
		case <-ticker.C:
			if err := c.ping(); err != nil {
				return
			}
		case <-c.done:
			return
		}
	}
}

func triggerErrorStatus(err error) int {
	switch {
	case errors.Is(err, session.ErrBusy):
		return http.StatusConflict
	case errors.Is(err, session.ErrClosed), errors.Is(err, session.ErrMicrophoneAccessDenied):
		return http.StatusServiceUnavailable
	}
	return http.StatusInternalServerError
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}
