package collab

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAwarenessStates(t *testing.T) {
	t.Run("last write wins per connection", func(t *testing.T) {
		a := NewAwareness()
		a.SetState("c1", State{User: User{Name: "cam"}, Cursor: &Cursor{ViewID: "board", X: 1}})
		a.SetState("c1", State{User: User{Name: "cam"}, Cursor: &Cursor{ViewID: "board", X: 2}})

		states := a.States()
		require.Contains(t, states, "c1")
		require.NotNil(t, states["c1"].Cursor)
		assert.Equal(t, 2.0, states["c1"].Cursor.X)
	})

	t.Run("clear removes every trace of a connection", func(t *testing.T) {
		a := NewAwareness()
		a.SetState("c1", State{
			User:      User{Name: "cam"},
			Selection: &Selection{ViewID: "board", Nodes: []string{"n1"}},
		})

		a.Clear("c1")

		assert.Empty(t, a.States())
		assert.Empty(t, a.UserList())
		assert.Empty(t, a.SelectionTracking())
	})

	t.Run("clear of unknown connection is a no-op", func(t *testing.T) {
		a := NewAwareness()
		calls := 0
		a.OnUserList(func() { calls++ })

		a.Clear("ghost")
		assert.Equal(t, 0, calls)
	})
}

func TestAwarenessUserList(t *testing.T) {
	t.Run("sorted by name", func(t *testing.T) {
		a := NewAwareness()
		a.SetState("c2", State{User: User{Name: "zoe"}})
		a.SetState("c1", State{User: User{Name: "alex"}})

		assert.Equal(t, []User{{Name: "alex"}, {Name: "zoe"}}, a.UserList())
	})

	t.Run("duplicate identities collapse", func(t *testing.T) {
		// Same user from two tabs appears once.
		a := NewAwareness()
		a.SetState("tab1", State{User: User{Name: "cam", Color: "#f00"}})
		a.SetState("tab2", State{User: User{Name: "cam", Color: "#f00"}})

		assert.Len(t, a.UserList(), 1)

		a.Clear("tab1")
		assert.Len(t, a.UserList(), 1, "other tab keeps the user present")
	})

	t.Run("connections without an identity are invisible", func(t *testing.T) {
		a := NewAwareness()
		a.SetState("c1", State{Cursor: &Cursor{ViewID: "board"}})

		assert.Empty(t, a.UserList())
	})
}

func TestAwarenessListeners(t *testing.T) {
	t.Run("fires only when the user list actually changes", func(t *testing.T) {
		a := NewAwareness()
		calls := 0
		a.OnUserList(func() { calls++ })

		a.SetState("c1", State{User: User{Name: "cam"}})
		assert.Equal(t, 1, calls)

		// Cursor churn does not touch the user list.
		a.SetState("c1", State{User: User{Name: "cam"}, Cursor: &Cursor{X: 10}})
		a.SetState("c1", State{User: User{Name: "cam"}, Cursor: &Cursor{X: 20}})
		assert.Equal(t, 1, calls)

		a.Clear("c1")
		assert.Equal(t, 2, calls)
	})

	t.Run("selection listener tracks selection changes only", func(t *testing.T) {
		a := NewAwareness()
		calls := 0
		a.OnSelection(func() { calls++ })

		a.SetState("c1", State{User: User{Name: "cam"}})
		assert.Equal(t, 0, calls)

		a.SetState("c1", State{
			User:      User{Name: "cam"},
			Selection: &Selection{ViewID: "board", Nodes: []string{"n1"}},
		})
		assert.Equal(t, 1, calls)

		// Same selection rewritten: no change, no call.
		a.SetState("c1", State{
			User:      User{Name: "cam"},
			Selection: &Selection{ViewID: "board", Nodes: []string{"n1"}},
		})
		assert.Equal(t, 1, calls)
	})

	t.Run("removed listener stops firing", func(t *testing.T) {
		a := NewAwareness()
		calls := 0
		remove := a.OnUserList(func() { calls++ })

		a.SetState("c1", State{User: User{Name: "cam"}})
		remove()
		a.SetState("c2", State{User: User{Name: "zoe"}})

		assert.Equal(t, 1, calls)
	})
}

func TestSelectionTracking(t *testing.T) {
	a := NewAwareness()
	a.SetState("c1", State{
		User:      User{Name: "alex"},
		Selection: &Selection{ViewID: "board", Nodes: []string{"n1", "n2"}},
	})
	a.SetState("c2", State{
		User:      User{Name: "zoe"},
		Selection: &Selection{ViewID: "doc", Nodes: []string{"n1"}},
	})

	tracking := a.SelectionTracking()
	require.Contains(t, tracking, "n1")
	require.Contains(t, tracking, "n2")

	assert.Equal(t, []SelectionRef{
		{User: User{Name: "alex"}, ViewID: "board"},
		{User: User{Name: "zoe"}, ViewID: "doc"},
	}, tracking["n1"])
	assert.Equal(t, []SelectionRef{
		{User: User{Name: "alex"}, ViewID: "board"},
	}, tracking["n2"])
}
