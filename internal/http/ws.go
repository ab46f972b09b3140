package httpapi

import (
	"encoding/json"
	"net/http"

	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"

	"github.com/example/ride-dispatch/internal/models"
	"github.com/example/ride-dispatch/internal/observability"
)

var upgrader = websocket.Upgrader{}

// wsMessage is an inbound client frame.
type wsMessage struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data"`
}

// handleWS upgrades a rider or captain session. Each connection gets a fresh
// connection id; registering it supersedes any previous session for the same
// identity. Captain sessions additionally drive presence: join marks them
// online, location-update moves them, disconnect clears reachability while
// keeping the last location.
func (s *Server) handleWS(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	role, id := vars["role"], vars["id"]
	if role != "rider" && role != "captain" {
		http.Error(w, "unknown role", http.StatusBadRequest)
		return
	}
	if role == "captain" && s.Captains != nil {
		ok, err := s.Captains.CaptainExists(r.Context(), id)
		if err != nil {
			http.Error(w, "directory unavailable", http.StatusBadGateway)
			return
		}
		if !ok {
			http.Error(w, "unknown captain", http.StatusForbidden)
			return
		}
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		http.Error(w, "upgrade failed", http.StatusBadRequest)
		return
	}

	connID := newID()
	s.Hub.Add(connID, conn)
	_, superseded := s.Registry.Register(id, connID)
	if role == "captain" {
		s.Geo.SetConnection(id, connID)
		// a reconnect replaces a session that was already counted
		if !superseded {
			observability.CaptainsOnline.Inc()
		}
	}
	s.logger.Info("ws connected", "role", role, "id", id, "connection_id", connID)

	go s.readLoop(role, id, connID, conn)
}

func (s *Server) readLoop(role, id, connID string, conn *websocket.Conn) {
	defer func() {
		s.Hub.Remove(connID)
		if _, removed := s.Registry.Unregister(connID); removed && role == "captain" {
			// only the live session's disconnect clears reachability; a
			// superseded session going away must not take the new one offline
			s.Geo.Disconnect(id)
			observability.CaptainsOnline.Dec()
		}
		s.logger.Info("ws disconnected", "role", role, "id", id, "connection_id", connID)
	}()

	for {
		var msg wsMessage
		if err := conn.ReadJSON(&msg); err != nil {
			return
		}
		switch msg.Event {
		case "location-update":
			if role != "captain" {
				continue
			}
			var loc models.Coord
			if err := json.Unmarshal(msg.Data, &loc); err != nil {
				s.logger.Warn("bad location update", "captain_id", id, "error", err)
				continue
			}
			s.Geo.UpdateLocation(id, loc)
			if s.Kafka != nil {
				_ = s.Kafka.PublishLocation(models.CaptainPresence{CaptainID: id, Loc: loc, ConnectionID: connID, Online: true})
			}
		case "online":
			if role != "captain" {
				continue
			}
			var body struct {
				Online bool `json:"online"`
			}
			if err := json.Unmarshal(msg.Data, &body); err != nil {
				continue
			}
			s.Geo.SetOnline(id, body.Online)
			s.logger.Info("captain availability", "captain_id", id, "online", body.Online)
		default:
			s.logger.Debug("ignoring ws event", "event", msg.Event, "id", id)
		}
	}
}
