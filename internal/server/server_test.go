package server

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dyluth/drey/internal/modules/chat"
	"github.com/dyluth/drey/internal/room"
	"github.com/dyluth/drey/pkg/collab"
)

func setupServer(t *testing.T) (*httptest.Server, *room.Room) {
	t.Helper()

	rm, err := room.New(room.Options{
		ID:            "test-room",
		Store:         collab.NewMemoryStore(),
		WatchdogDelay: time.Hour,
	})
	require.NoError(t, err)
	t.Cleanup(func() { rm.Close() })

	manager := room.NewManager(nil)
	require.NoError(t, manager.Add(rm))

	ts := httptest.NewServer(New(manager))
	t.Cleanup(ts.Close)

	return ts, rm
}

func postEvent(t *testing.T, ts *httptest.Server, roomID string, body any) *http.Response {
	t.Helper()
	data, err := json.Marshal(body)
	require.NoError(t, err)

	resp, err := http.Post(
		fmt.Sprintf("%s/rooms/%s/events", ts.URL, roomID),
		"application/json",
		bytes.NewReader(data),
	)
	require.NoError(t, err)
	t.Cleanup(func() { resp.Body.Close() })
	return resp
}

func TestHandleEvent(t *testing.T) {
	t.Run("dispatches into the room", func(t *testing.T) {
		ts, rm := setupServer(t)

		resp := postEvent(t, ts, "test-room", map[string]any{
			"type": chat.EventPost,
			"payload": chat.PostPayload{
				Message: chat.Message{ID: "m1", Thread: "general", Body: "hello"},
			},
			"user_id": "cam",
		})
		require.Equal(t, http.StatusOK, resp.StatusCode)

		var ok struct {
			Status  string `json:"status"`
			EventID string `json:"event_id"`
		}
		require.NoError(t, json.NewDecoder(resp.Body).Decode(&ok))
		assert.Equal(t, "ok", ok.Status)
		assert.NotEmpty(t, ok.EventID, "host stamps the event id")

		exports, _ := rm.Exports("chat")
		messages := exports.(chat.Exports).Messages
		var msg chat.Message
		found, err := messages.Get(context.Background(), 0, &msg)
		require.NoError(t, err)
		require.True(t, found)
		assert.Equal(t, "cam", msg.Author, "request user id reaches the reducer")
	})

	t.Run("unknown room is 404", func(t *testing.T) {
		ts, _ := setupServer(t)

		resp := postEvent(t, ts, "ghost", map[string]any{"type": "chat:post"})
		assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	})

	t.Run("missing type is 400", func(t *testing.T) {
		ts, _ := setupServer(t)

		resp := postEvent(t, ts, "test-room", map[string]any{"payload": map[string]any{}})
		assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	})

	t.Run("malformed body is 400", func(t *testing.T) {
		ts, _ := setupServer(t)

		resp, err := http.Post(ts.URL+"/rooms/test-room/events", "application/json",
			bytes.NewReader([]byte("{not json")))
		require.NoError(t, err)
		defer resp.Body.Close()
		assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	})

	t.Run("reducer rejection is 422", func(t *testing.T) {
		ts, _ := setupServer(t)

		// chat:post without an id fails validation inside the reducer.
		resp := postEvent(t, ts, "test-room", map[string]any{
			"type":    chat.EventPost,
			"payload": chat.PostPayload{Message: chat.Message{Body: "orphan"}},
		})
		assert.Equal(t, http.StatusUnprocessableEntity, resp.StatusCode)

		var errBody struct {
			Error string `json:"error"`
		}
		require.NoError(t, json.NewDecoder(resp.Body).Decode(&errBody))
		assert.Contains(t, errBody.Error, "chat message needs an id")
	})

	t.Run("unknown tag is accepted as a no-op", func(t *testing.T) {
		ts, _ := setupServer(t)

		resp := postEvent(t, ts, "test-room", map[string]any{"type": "nobody:owns-this"})
		assert.Equal(t, http.StatusOK, resp.StatusCode)
	})
}

func TestHandleRooms(t *testing.T) {
	ts, rm := setupServer(t)

	rm.Awareness().SetState("c1", collab.State{User: collab.User{Name: "cam"}})

	resp, err := http.Get(ts.URL + "/rooms")
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var infos []roomInfo
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&infos))
	require.Len(t, infos, 1)
	assert.Equal(t, "test-room", infos[0].ID)
	assert.Equal(t, 1, infos[0].Users)
	assert.Equal(t, "armed", infos[0].Status)
}

func TestHandleHealth(t *testing.T) {
	ts, _ := setupServer(t)

	resp, err := http.Get(ts.URL + "/healthz")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}
