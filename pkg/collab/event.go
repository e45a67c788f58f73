package collab

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Event tags owned by the engine itself rather than a feature module.
const (
	// EventPeriodic is the synthetic tick emitted by the room's tick source.
	// Every reducer sees it; the inactivity watchdog evaluates deadlines on it.
	EventPeriodic = "periodic"

	// EventUserLeave is emitted when a connection disconnects, after its
	// awareness entries have been cleared.
	EventUserLeave = "user:leave"
)

// Event is a typed user action (or synthetic engine event) flowing through
// the reducer pipeline. Events are immutable once dispatched and carry only
// the data needed to make their mutation deterministic.
//
// Type follows the "<module>:<verb>" convention so independently developed
// reducers cannot collide.
type Event struct {
	ID      string          `json:"id"`
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload,omitempty"`
	Time    time.Time       `json:"time"`
}

// NewEvent builds an event with a fresh ID, the current time, and the given
// payload marshalled to JSON. A nil payload is allowed.
func NewEvent(eventType string, payload any) (Event, error) {
	e := Event{
		ID:   uuid.New().String(),
		Type: eventType,
		Time: time.Now().UTC(),
	}
	if payload != nil {
		raw, err := json.Marshal(payload)
		if err != nil {
			return Event{}, fmt.Errorf("failed to marshal payload for %q: %w", eventType, err)
		}
		e.Payload = raw
	}
	return e, nil
}

// MustEvent is NewEvent for payloads known to marshal; it panics otherwise.
// Intended for literals in reducers and tests.
func MustEvent(eventType string, payload any) Event {
	e, err := NewEvent(eventType, payload)
	if err != nil {
		panic(err)
	}
	return e
}

// Decode unmarshals the event payload into out.
func (e Event) Decode(out any) error {
	if len(e.Payload) == 0 {
		return fmt.Errorf("event %q has no payload", e.Type)
	}
	if err := json.Unmarshal(e.Payload, out); err != nil {
		return fmt.Errorf("failed to decode %q payload: %w", e.Type, err)
	}
	return nil
}

// Namespace returns the module prefix of the event tag ("chat" for
// "chat:post"), or the whole tag for engine-native events like "periodic".
func (e Event) Namespace() string {
	if i := strings.Index(e.Type, ":"); i >= 0 {
		return e.Type[:i]
	}
	return e.Type
}

// PeriodicPayload is the payload of EventPeriodic ticks.
type PeriodicPayload struct {
	IntervalMs int64 `json:"interval_ms"`
}

// UserLeavePayload is the payload of EventUserLeave events.
type UserLeavePayload struct {
	ConnectionID string `json:"connection_id"`
	UserID       string `json:"user_id,omitempty"`
}

// RequestContext carries the caller identity and connection metadata of a
// dispatch, plus any per-deployment extras (resolved lazily to avoid
// load-order cycles between modules).
type RequestContext struct {
	UserID       string
	ConnectionID string
	Extra        map[string]any
}
