package dispatch

import (
	"log/slog"
	"sync"

	"github.com/gorilla/websocket"
)

// Event names on the real-time wire. Fixed for client compatibility.
const (
	EventRideRequest  = "ride-request"
	EventRideAccepted = "ride-accepted"
	EventRideUpdate   = "ride-update"
	EventRideTaken    = "ride-taken"
)

// Channel is a best-effort push mechanism keyed by connection id. A false
// return means the connection was not live at send time; callers continue to
// the next recipient rather than blocking or retrying.
type Channel interface {
	Send(connectionID, event string, payload any) bool
}

// Envelope is the wire frame for every pushed event.
type Envelope struct {
	Event string `json:"event"`
	Data  any    `json:"data"`
}

// wsSession serializes writes to one websocket connection.
type wsSession struct {
	conn *websocket.Conn
	mu   sync.Mutex
}

func (s *wsSession) send(e Envelope) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.conn.WriteJSON(e)
}

// WSHub implements Channel over gorilla websocket sessions.
type WSHub struct {
	mu       sync.RWMutex
	sessions map[string]*wsSession
	logger   *slog.Logger
}

func NewWSHub(logger *slog.Logger) *WSHub {
	return &WSHub{sessions: make(map[string]*wsSession), logger: logger}
}

func (h *WSHub) Add(connectionID string, conn *websocket.Conn) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.sessions[connectionID] = &wsSession{conn: conn}
}

func (h *WSHub) Remove(connectionID string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if s, ok := h.sessions[connectionID]; ok {
		_ = s.conn.Close()
		delete(h.sessions, connectionID)
	}
}

func (h *WSHub) Send(connectionID, event string, payload any) bool {
	h.mu.RLock()
	s, ok := h.sessions[connectionID]
	h.mu.RUnlock()
	if !ok {
		return false
	}
	if err := s.send(Envelope{Event: event, Data: payload}); err != nil {
		h.logger.Warn("ws send failed", "connection_id", connectionID, "event", event, "error", err)
		return false
	}
	return true
}
