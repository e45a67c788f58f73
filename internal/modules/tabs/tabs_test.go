package tabs

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dyluth/drey/internal/modules/base"
	"github.com/dyluth/drey/pkg/collab"
	"github.com/dyluth/drey/pkg/module"
)

func setupTabs(t *testing.T) (*collab.Processor, collab.SharedMap) {
	t.Helper()

	store := collab.NewMemoryStore()
	awareness := collab.NewAwareness()
	processor := collab.NewProcessor("test-room", store, awareness)

	exports, err := module.LoadModules([]module.Entry{
		{Descriptor: base.Collab(store, awareness)},
		{Descriptor: base.Reducers(processor)},
		{Descriptor: Module()},
	})
	require.NoError(t, err)

	return processor, exports["tabs"].(Exports).Layout
}

func readLayout(t *testing.T, layout collab.SharedMap) Layout {
	t.Helper()
	var l Layout
	found, err := layout.Get(context.Background(), LayoutKey, &l)
	require.NoError(t, err)
	require.True(t, found)
	return l
}

func dispatch(t *testing.T, p *collab.Processor, eventType string, payload any) error {
	t.Helper()
	return p.Dispatch(context.Background(), collab.MustEvent(eventType, payload), collab.RequestContext{})
}

func TestOpen(t *testing.T) {
	t.Run("appends and activates", func(t *testing.T) {
		p, layout := setupTabs(t)

		require.NoError(t, dispatch(t, p, EventOpen, OpenPayload{Tab: Tab{ID: "t1", Title: "Notes"}}))
		require.NoError(t, dispatch(t, p, EventOpen, OpenPayload{Tab: Tab{ID: "t2", Title: "Board"}}))

		l := readLayout(t, layout)
		require.Len(t, l.Tabs, 2)
		assert.Equal(t, "t2", l.Active)
	})

	t.Run("re-opening an open tab just activates it", func(t *testing.T) {
		p, layout := setupTabs(t)

		require.NoError(t, dispatch(t, p, EventOpen, OpenPayload{Tab: Tab{ID: "t1", Title: "Notes"}}))
		require.NoError(t, dispatch(t, p, EventOpen, OpenPayload{Tab: Tab{ID: "t2", Title: "Board"}}))
		require.NoError(t, dispatch(t, p, EventOpen, OpenPayload{Tab: Tab{ID: "t1", Title: "Renamed"}}))

		l := readLayout(t, layout)
		require.Len(t, l.Tabs, 2, "no duplicate entries")
		assert.Equal(t, "t1", l.Active)
		assert.Equal(t, "Notes", l.Tabs[0].Title, "existing entry untouched")
	})

	t.Run("rejects a tab without an id", func(t *testing.T) {
		p, _ := setupTabs(t)
		assert.Error(t, dispatch(t, p, EventOpen, OpenPayload{Tab: Tab{Title: "anonymous"}}))
	})
}

func TestClose(t *testing.T) {
	t.Run("closing the active tab falls back to the last remaining one", func(t *testing.T) {
		p, layout := setupTabs(t)
		require.NoError(t, dispatch(t, p, EventOpen, OpenPayload{Tab: Tab{ID: "t1"}}))
		require.NoError(t, dispatch(t, p, EventOpen, OpenPayload{Tab: Tab{ID: "t2"}}))
		require.NoError(t, dispatch(t, p, EventOpen, OpenPayload{Tab: Tab{ID: "t3"}}))

		require.NoError(t, dispatch(t, p, EventClose, ClosePayload{ID: "t3"}))

		l := readLayout(t, layout)
		require.Len(t, l.Tabs, 2)
		assert.Equal(t, "t2", l.Active)
	})

	t.Run("closing an inactive tab keeps the active one", func(t *testing.T) {
		p, layout := setupTabs(t)
		require.NoError(t, dispatch(t, p, EventOpen, OpenPayload{Tab: Tab{ID: "t1"}}))
		require.NoError(t, dispatch(t, p, EventOpen, OpenPayload{Tab: Tab{ID: "t2"}}))

		require.NoError(t, dispatch(t, p, EventClose, ClosePayload{ID: "t1"}))

		l := readLayout(t, layout)
		assert.Equal(t, "t2", l.Active)
	})

	t.Run("closing the last tab leaves no active tab", func(t *testing.T) {
		p, layout := setupTabs(t)
		require.NoError(t, dispatch(t, p, EventOpen, OpenPayload{Tab: Tab{ID: "t1"}}))

		require.NoError(t, dispatch(t, p, EventClose, ClosePayload{ID: "t1"}))

		l := readLayout(t, layout)
		assert.Empty(t, l.Tabs)
		assert.Empty(t, l.Active)
	})
}

func TestActivate(t *testing.T) {
	t.Run("activates an open tab", func(t *testing.T) {
		p, layout := setupTabs(t)
		require.NoError(t, dispatch(t, p, EventOpen, OpenPayload{Tab: Tab{ID: "t1"}}))
		require.NoError(t, dispatch(t, p, EventOpen, OpenPayload{Tab: Tab{ID: "t2"}}))

		require.NoError(t, dispatch(t, p, EventActivate, ActivatePayload{ID: "t1"}))

		assert.Equal(t, "t1", readLayout(t, layout).Active)
	})

	t.Run("activating an unknown tab fails", func(t *testing.T) {
		p, _ := setupTabs(t)
		require.NoError(t, dispatch(t, p, EventOpen, OpenPayload{Tab: Tab{ID: "t1"}}))

		err := dispatch(t, p, EventActivate, ActivatePayload{ID: "ghost"})
		require.Error(t, err)
		assert.Contains(t, err.Error(), "unknown tab")
	})
}
