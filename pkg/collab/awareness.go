package collab

import (
	"sort"
	"sync"
)

// User identifies a connected participant as shown to other participants.
type User struct {
	Name  string `json:"name"`
	Color string `json:"color"`
}

// Cursor is a participant's pointer position inside a view.
type Cursor struct {
	ViewID string  `json:"view_id"`
	X      float64 `json:"x"`
	Y      float64 `json:"y"`
}

// Selection is the set of nodes a participant has selected in a view.
type Selection struct {
	ViewID string   `json:"view_id"`
	Nodes  []string `json:"nodes"`
}

// State is one connection's ephemeral presence entry. Last write wins per
// connection; the whole entry disappears when the connection does.
type State struct {
	User      User       `json:"user"`
	Cursor    *Cursor    `json:"cursor,omitempty"`
	Selection *Selection `json:"selection,omitempty"`
}

// SelectionRef records that a user has a given node selected.
type SelectionRef struct {
	User   User   `json:"user"`
	ViewID string `json:"view_id"`
}

// Awareness holds one room's ephemeral per-connection presence state.
// It is entirely decoupled from the shared document: never persisted, never
// replayed, cleared automatically when the owning connection disconnects.
// Losing all of it on restart is acceptable by contract.
//
// Listeners fire only when the derived view they track actually changed,
// not on every state write.
type Awareness struct {
	mu     sync.Mutex
	states map[string]State

	lastUsers      []User
	lastSelections map[string][]SelectionRef

	userListeners      observers
	selectionListeners observers
}

// NewAwareness creates an empty presence store.
func NewAwareness() *Awareness {
	return &Awareness{
		states:         make(map[string]State),
		lastSelections: make(map[string][]SelectionRef),
	}
}

// SetState replaces the presence entry for a connection.
func (a *Awareness) SetState(connID string, st State) {
	a.mu.Lock()
	a.states[connID] = st
	usersChanged, selectionsChanged := a.recomputeLocked()
	a.mu.Unlock()

	a.fire(usersChanged, selectionsChanged)
}

// Clear removes every trace of a connection. The transport layer calls this
// on disconnect; no stale entries survive.
func (a *Awareness) Clear(connID string) {
	a.mu.Lock()
	if _, ok := a.states[connID]; !ok {
		a.mu.Unlock()
		return
	}
	delete(a.states, connID)
	usersChanged, selectionsChanged := a.recomputeLocked()
	a.mu.Unlock()

	a.fire(usersChanged, selectionsChanged)
}

// States returns a copy of all current entries keyed by connection ID.
func (a *Awareness) States() map[string]State {
	a.mu.Lock()
	defer a.mu.Unlock()
	out := make(map[string]State, len(a.states))
	for k, v := range a.states {
		out[k] = v
	}
	return out
}

// UserList returns the current participants, sorted by name and deduplicated.
func (a *Awareness) UserList() []User {
	a.mu.Lock()
	defer a.mu.Unlock()
	return append([]User(nil), a.lastUsers...)
}

// SelectionTracking returns, per node ID, the users that currently have that
// node selected.
func (a *Awareness) SelectionTracking() map[string][]SelectionRef {
	a.mu.Lock()
	defer a.mu.Unlock()
	out := make(map[string][]SelectionRef, len(a.lastSelections))
	for k, v := range a.lastSelections {
		out[k] = append([]SelectionRef(nil), v...)
	}
	return out
}

// OnUserList registers a listener called whenever the user list changes.
// The returned function removes it.
func (a *Awareness) OnUserList(fn func()) (remove func()) {
	return a.userListeners.add(fn)
}

// OnSelection registers a listener called whenever selection tracking
// changes. The returned function removes it.
func (a *Awareness) OnSelection(fn func()) (remove func()) {
	return a.selectionListeners.add(fn)
}

func (a *Awareness) fire(users, selections bool) {
	if users {
		a.userListeners.notify()
	}
	if selections {
		a.selectionListeners.notify()
	}
}

// recomputeLocked rebuilds the derived views and reports which ones changed.
func (a *Awareness) recomputeLocked() (usersChanged, selectionsChanged bool) {
	users := a.extractUsersLocked()
	if !userListsEqual(a.lastUsers, users) {
		a.lastUsers = users
		usersChanged = true
	}

	selections := a.extractSelectionsLocked()
	if !selectionsEqual(a.lastSelections, selections) {
		a.lastSelections = selections
		selectionsChanged = true
	}
	return usersChanged, selectionsChanged
}

func (a *Awareness) extractUsersLocked() []User {
	seen := make(map[User]struct{})
	users := make([]User, 0, len(a.states))
	for _, st := range a.states {
		if st.User.Name == "" {
			continue
		}
		if _, dup := seen[st.User]; dup {
			continue
		}
		seen[st.User] = struct{}{}
		users = append(users, st.User)
	}
	sort.Slice(users, func(i, j int) bool {
		if users[i].Name != users[j].Name {
			return users[i].Name < users[j].Name
		}
		return users[i].Color < users[j].Color
	})
	return users
}

func (a *Awareness) extractSelectionsLocked() map[string][]SelectionRef {
	// Iterate connections in a stable order so equal states always produce
	// identical tracking maps.
	connIDs := make([]string, 0, len(a.states))
	for id := range a.states {
		connIDs = append(connIDs, id)
	}
	sort.Strings(connIDs)

	tracking := make(map[string][]SelectionRef)
	for _, id := range connIDs {
		st := a.states[id]
		if st.Selection == nil || st.User.Name == "" {
			continue
		}
		for _, nodeID := range st.Selection.Nodes {
			tracking[nodeID] = append(tracking[nodeID], SelectionRef{
				User:   st.User,
				ViewID: st.Selection.ViewID,
			})
		}
	}
	return tracking
}

func userListsEqual(a, b []User) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

func selectionsEqual(a, b map[string][]SelectionRef) bool {
	if len(a) != len(b) {
		return false
	}
	for node, refs := range a {
		other, ok := b[node]
		if !ok || len(refs) != len(other) {
			return false
		}
		for i := range refs {
			if refs[i] != other[i] {
				return false
			}
		}
	}
	return true
}
