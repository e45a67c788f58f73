package server

import (
	"context"
	"encoding/json"
	"log"
	"net/http"
	"sync"

	"github.com/google/uuid"
	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"

	"github.com/dyluth/drey/pkg/collab"
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

// awarenessUpdate is what a client sends over the awareness socket: its full
// presence state, last write wins.
type awarenessUpdate struct {
	State collab.State `json:"state"`
}

// awarenessSnapshot is pushed to every client whenever the user list or
// selection tracking changes.
type awarenessSnapshot struct {
	Users      []collab.User                    `json:"users"`
	Selections map[string][]collab.SelectionRef `json:"selections"`
}

// handleAwareness serves the presence channel for one connection. Presence
// never touches the shared document: it flows over this socket only, and
// every trace of the connection is cleared when the socket closes.
func (s *Server) handleAwareness(w http.ResponseWriter, r *http.Request) {
	roomID := mux.Vars(r)["room"]
	rm, err := s.manager.Get(roomID)
	if err != nil {
		writeJSONError(w, http.StatusNotFound, err)
		return
	}

	ws, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("[server] room=%s awareness upgrade failed: %v", roomID, err)
		return
	}
	defer ws.Close()

	connID := uuid.New().String()
	awareness := rm.Awareness()

	// Serialize writes: listener goroutine and snapshot pushes share the socket.
	var writeMu sync.Mutex
	push := func() {
		snapshot := awarenessSnapshot{
			Users:      awareness.UserList(),
			Selections: awareness.SelectionTracking(),
		}
		data, err := json.Marshal(snapshot)
		if err != nil {
			return
		}
		writeMu.Lock()
		defer writeMu.Unlock()
		if err := ws.WriteMessage(websocket.TextMessage, data); err != nil {
			log.Printf("[server] room=%s conn=%s awareness write failed: %v", roomID, connID, err)
		}
	}

	removeUsers := awareness.OnUserList(push)
	removeSelections := awareness.OnSelection(push)

	// Initial snapshot so a joining client sees the current presence.
	push()

	var lastUserID string
	for {
		_, msg, err := ws.ReadMessage()
		if err != nil {
			break
		}
		var update awarenessUpdate
		if err := json.Unmarshal(msg, &update); err != nil {
			log.Printf("[server] room=%s conn=%s bad awareness update: %v", roomID, connID, err)
			continue
		}
		lastUserID = update.State.User.Name
		awareness.SetState(connID, update.State)
	}

	// Disconnect: stop pushing to the dead socket, clear presence, then tell
	// the reducers. user:leave is on the watchdog's exemption list, so a
	// leaving user cannot keep a room alive.
	removeUsers()
	removeSelections()
	awareness.Clear(connID)
	leave := collab.MustEvent(collab.EventUserLeave, collab.UserLeavePayload{
		ConnectionID: connID,
		UserID:       lastUserID,
	})
	if err := rm.Dispatch(context.Background(), leave, collab.RequestContext{ConnectionID: connID}); err != nil {
		log.Printf("[server] room=%s conn=%s user:leave dispatch failed: %v", roomID, connID, err)
	}
}
