package room

import (
	"fmt"
	"sort"
	"sync"
)

// OpenFunc builds a room for an ID. The manager calls it at most once per ID.
type OpenFunc func(id string) (*Room, error)

// Manager tracks the rooms hosted by this process. Rooms run independently;
// nothing here coordinates across them.
type Manager struct {
	mu    sync.Mutex
	rooms map[string]*Room
	open  OpenFunc
}

// NewManager creates a manager. open may be nil for a fixed room set added
// via Add.
func NewManager(open OpenFunc) *Manager {
	return &Manager{
		rooms: make(map[string]*Room),
		open:  open,
	}
}

// Add registers an already-built room.
func (m *Manager) Add(r *Room) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, exists := m.rooms[r.ID()]; exists {
		return fmt.Errorf("room %q already registered", r.ID())
	}
	m.rooms[r.ID()] = r
	return nil
}

// Get returns the room with the given ID, opening it on first use when an
// OpenFunc was supplied.
func (m *Manager) Get(id string) (*Room, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if r, ok := m.rooms[id]; ok {
		return r, nil
	}
	if m.open == nil {
		return nil, fmt.Errorf("unknown room %q", id)
	}

	r, err := m.open(id)
	if err != nil {
		return nil, err
	}
	m.rooms[id] = r
	return r, nil
}

// Lookup returns the room without opening it.
func (m *Manager) Lookup(id string) (*Room, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.rooms[id]
	return r, ok
}

// IDs returns the IDs of all live rooms, sorted.
func (m *Manager) IDs() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	ids := make([]string, 0, len(m.rooms))
	for id := range m.rooms {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// Close tears down every room. The first error is returned; teardown
// continues regardless.
func (m *Manager) Close() error {
	m.mu.Lock()
	rooms := make([]*Room, 0, len(m.rooms))
	for _, r := range m.rooms {
		rooms = append(rooms, r)
	}
	m.rooms = make(map[string]*Room)
	m.mu.Unlock()

	var firstErr error
	for _, r := range rooms {
		if err := r.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}
