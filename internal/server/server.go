// Package server is the HTTP surface of a room host: the event ingress that
// feeds the authoritative reducer pipeline, a websocket channel for awareness
// state, a room listing for tooling, and a health check.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"time"

	"github.com/gorilla/mux"

	"github.com/dyluth/drey/internal/modules/lifecycle"
	"github.com/dyluth/drey/internal/room"
	"github.com/dyluth/drey/pkg/collab"
)

// Server routes transport traffic into the room manager.
type Server struct {
	manager *room.Manager
	router  *mux.Router
}

// New builds the server and its routes.
func New(manager *room.Manager) *Server {
	s := &Server{
		manager: manager,
		router:  mux.NewRouter(),
	}

	s.router.HandleFunc("/healthz", s.handleHealth).Methods(http.MethodGet)
	s.router.HandleFunc("/rooms", s.handleRooms).Methods(http.MethodGet)
	s.router.HandleFunc("/rooms/{room}/events", s.handleEvent).Methods(http.MethodPost)
	s.router.HandleFunc("/rooms/{room}/awareness/ws", s.handleAwareness).Methods(http.MethodGet)

	return s
}

// ServeHTTP implements http.Handler.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

// eventRequest is the wire form of a dispatched event. The host stamps ID
// and time itself; client clocks are not trusted.
type eventRequest struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload,omitempty"`
	UserID  string          `json:"user_id,omitempty"`
}

func (s *Server) handleEvent(w http.ResponseWriter, r *http.Request) {
	roomID := mux.Vars(r)["room"]
	rm, err := s.manager.Get(roomID)
	if err != nil {
		writeJSONError(w, http.StatusNotFound, err)
		return
	}

	var req eventRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSONError(w, http.StatusBadRequest, err)
		return
	}
	if req.Type == "" {
		writeJSONError(w, http.StatusBadRequest, errors.New("event type is required"))
		return
	}

	event := collab.MustEvent(req.Type, nil)
	event.Payload = req.Payload

	err = rm.Dispatch(r.Context(), event, collab.RequestContext{
		UserID: req.UserID,
	})
	if err != nil {
		// The reducer rejected the action; the caller sees the failure, and
		// any mutations committed before the failure stand.
		writeJSONError(w, http.StatusUnprocessableEntity, err)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]string{"status": "ok", "event_id": event.ID})
}

// roomInfo is one room in the /rooms listing.
type roomInfo struct {
	ID           string `json:"id"`
	Users        int    `json:"users"`
	Status       string `json:"status"`
	LastActivity string `json:"last_activity,omitempty"`
}

func (s *Server) handleRooms(w http.ResponseWriter, r *http.Request) {
	infos := make([]roomInfo, 0)
	for _, id := range s.manager.IDs() {
		rm, ok := s.manager.Lookup(id)
		if !ok {
			continue
		}

		info := roomInfo{
			ID:     id,
			Users:  len(rm.Awareness().UserList()),
			Status: string(lifecycle.StatusArmed),
		}

		var meta lifecycle.Meta
		found, err := rm.Store().SharedMap(lifecycle.MetaContainer).Get(r.Context(), lifecycle.MetaKey, &meta)
		if err == nil && found {
			info.Status = string(meta.Status)
			if meta.Disabled {
				info.Status = "disabled"
			}
			if !meta.LastActivity.IsZero() {
				info.LastActivity = meta.LastActivity.Format(time.RFC3339)
			}
		}

		infos = append(infos, info)
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(infos)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()

	status := "healthy"
	code := http.StatusOK
	for _, id := range s.manager.IDs() {
		rm, ok := s.manager.Lookup(id)
		if !ok {
			continue
		}
		if err := rm.Store().Ping(ctx); err != nil {
			log.Printf("[server] room=%s store unreachable: %v", id, err)
			status = "unhealthy"
			code = http.StatusServiceUnavailable
			break
		}
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(map[string]string{"status": status})
}

func writeJSONError(w http.ResponseWriter, code int, err error) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(map[string]string{"error": err.Error()})
}
