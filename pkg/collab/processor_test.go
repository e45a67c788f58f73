package collab

import (
	"context"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// recordingReducer appends every event it sees to a shared trace, optionally
// cascading or failing on specific tags.
type recordingReducer struct {
	name       string
	trace      *[]string
	cascadeOn  map[string][]Event
	failOn     map[string]error
	namespaces []string
}

func (r *recordingReducer) Reduce(ctx context.Context, rc *ReduceContext) error {
	*r.trace = append(*r.trace, r.name+":"+rc.Event.Type)
	if err, ok := r.failOn[rc.Event.Type]; ok {
		return err
	}
	for _, e := range r.cascadeOn[rc.Event.Type] {
		rc.Cascade(e)
	}
	return nil
}

// scopedReducer is a recordingReducer with a namespace declaration.
type scopedReducer struct {
	recordingReducer
}

func (r *scopedReducer) Namespaces() []string { return r.namespaces }

func newProcessor(t *testing.T) (*Processor, *MemoryStore) {
	t.Helper()
	store := NewMemoryStore()
	return NewProcessor("test-room", store, NewAwareness()), store
}

func TestDispatch(t *testing.T) {
	ctx := context.Background()

	t.Run("every reducer sees the event in registration order", func(t *testing.T) {
		p, _ := newProcessor(t)
		var trace []string
		p.Register(&recordingReducer{name: "first", trace: &trace})
		p.Register(&recordingReducer{name: "second", trace: &trace})

		require.NoError(t, p.Dispatch(ctx, MustEvent("chat:post", nil), RequestContext{}))
		assert.Equal(t, []string{"first:chat:post", "second:chat:post"}, trace)
	})

	t.Run("unknown tag is a silent no-op", func(t *testing.T) {
		p, _ := newProcessor(t)
		var trace []string
		p.Register(&recordingReducer{name: "r", trace: &trace})

		err := p.Dispatch(ctx, MustEvent("nobody:owns-this", nil), RequestContext{})
		assert.NoError(t, err)
		assert.Equal(t, []string{"r:nobody:owns-this"}, trace)
	})

	t.Run("cascaded events drain before dispatch returns", func(t *testing.T) {
		p, _ := newProcessor(t)
		var trace []string
		p.Register(&recordingReducer{
			name:  "caster",
			trace: &trace,
			cascadeOn: map[string][]Event{
				"a:start": {MustEvent("b:derived", nil)},
			},
		})
		p.Register(&recordingReducer{name: "watcher", trace: &trace})

		require.NoError(t, p.Dispatch(ctx, MustEvent("a:start", nil), RequestContext{}))

		// FIFO: the whole reducer list finishes a:start before b:derived runs.
		assert.Equal(t, []string{
			"caster:a:start",
			"watcher:a:start",
			"caster:b:derived",
			"watcher:b:derived",
		}, trace)
	})

	t.Run("transitive cascades drain in breadth order", func(t *testing.T) {
		p, _ := newProcessor(t)
		var trace []string
		p.Register(&recordingReducer{
			name:  "r",
			trace: &trace,
			cascadeOn: map[string][]Event{
				"a:1": {MustEvent("a:2", nil), MustEvent("a:3", nil)},
				"a:2": {MustEvent("a:4", nil)},
			},
		})

		require.NoError(t, p.Dispatch(ctx, MustEvent("a:1", nil), RequestContext{}))
		assert.Equal(t, []string{"r:a:1", "r:a:2", "r:a:3", "r:a:4"}, trace)
	})

	t.Run("cascaded events inherit the request context", func(t *testing.T) {
		p, _ := newProcessor(t)
		var users []string
		p.Register(reducerFunc(func(ctx context.Context, rc *ReduceContext) error {
			users = append(users, rc.Request.UserID)
			if rc.Event.Type == "a:start" {
				rc.Cascade(MustEvent("a:derived", nil))
			}
			return nil
		}))

		require.NoError(t, p.Dispatch(ctx, MustEvent("a:start", nil), RequestContext{UserID: "cam"}))
		assert.Equal(t, []string{"cam", "cam"}, users)
	})

	t.Run("reducer error aborts the cascade and surfaces wrapped", func(t *testing.T) {
		p, _ := newProcessor(t)
		var trace []string
		boom := fmt.Errorf("boom")
		p.Register(&recordingReducer{
			name:  "caster",
			trace: &trace,
			cascadeOn: map[string][]Event{
				"a:start": {MustEvent("a:doomed", nil), MustEvent("a:never", nil)},
			},
			failOn: map[string]error{"a:doomed": boom},
		})

		err := p.Dispatch(ctx, MustEvent("a:start", nil), RequestContext{})
		require.Error(t, err)
		assert.ErrorIs(t, err, boom)
		assert.Contains(t, err.Error(), `reducing "a:doomed"`)
		assert.NotContains(t, trace, "caster:a:never", "queue is abandoned after a failure")
	})

	t.Run("no rollback on reducer error", func(t *testing.T) {
		p, store := newProcessor(t)
		m := store.SharedMap("things")
		p.Register(reducerFunc(func(ctx context.Context, rc *ReduceContext) error {
			if err := rc.Store.SharedMap("things").Set(ctx, "written", "yes"); err != nil {
				return err
			}
			return fmt.Errorf("late failure")
		}))

		err := p.Dispatch(ctx, MustEvent("a:act", nil), RequestContext{})
		require.Error(t, err)

		var out string
		found, getErr := m.Get(ctx, "written", &out)
		require.NoError(t, getErr)
		assert.True(t, found, "mutations committed before the failure stand")
	})

	t.Run("whole cascade notifies observers once per dirty container", func(t *testing.T) {
		p, store := newProcessor(t)
		m := store.SharedMap("things")
		calls := 0
		m.Observe(func() { calls++ })

		p.Register(reducerFunc(func(ctx context.Context, rc *ReduceContext) error {
			if err := rc.Store.SharedMap("things").Set(ctx, rc.Event.Type, 1); err != nil {
				return err
			}
			if rc.Event.Type == "a:start" {
				rc.Cascade(MustEvent("a:derived", nil))
			}
			return nil
		}))

		require.NoError(t, p.Dispatch(ctx, MustEvent("a:start", nil), RequestContext{}))

		// Two events mutated the container inside one dispatch; observers
		// hear about it once.
		assert.Equal(t, 1, calls)
	})
}

func TestNamespaceRouting(t *testing.T) {
	ctx := context.Background()

	t.Run("scoped reducer skips foreign namespaces", func(t *testing.T) {
		p, _ := newProcessor(t)
		var trace []string
		p.Register(&scopedReducer{recordingReducer{
			name: "chat", trace: &trace, namespaces: []string{"chat"},
		}})
		p.Register(&recordingReducer{name: "all", trace: &trace})

		require.NoError(t, p.Dispatch(ctx, MustEvent("graph:new-node", nil), RequestContext{}))
		assert.Equal(t, []string{"all:graph:new-node"}, trace)
	})

	t.Run("scoped reducer sees its own namespace", func(t *testing.T) {
		p, _ := newProcessor(t)
		var trace []string
		p.Register(&scopedReducer{recordingReducer{
			name: "chat", trace: &trace, namespaces: []string{"chat"},
		}})

		require.NoError(t, p.Dispatch(ctx, MustEvent("chat:post", nil), RequestContext{}))
		assert.Equal(t, []string{"chat:chat:post"}, trace)
	})

	t.Run("engine-native tags always fan out", func(t *testing.T) {
		p, _ := newProcessor(t)
		var trace []string
		p.Register(&scopedReducer{recordingReducer{
			name: "chat", trace: &trace, namespaces: []string{"chat"},
		}})

		require.NoError(t, p.Dispatch(ctx, MustEvent(EventPeriodic, PeriodicPayload{IntervalMs: 5000}), RequestContext{}))
		require.NoError(t, p.Dispatch(ctx, MustEvent(EventUserLeave, UserLeavePayload{ConnectionID: "c1"}), RequestContext{}))

		assert.Equal(t, []string{"chat:periodic", "chat:user:leave"}, trace)
	})
}

func TestBatch(t *testing.T) {
	ctx := context.Background()
	p, _ := newProcessor(t)
	var trace []string
	p.Register(&recordingReducer{
		name:   "r",
		trace:  &trace,
		failOn: map[string]error{"a:bad": fmt.Errorf("rejected")},
	})

	err := p.Batch(ctx, []Event{
		MustEvent("a:1", nil),
		MustEvent("a:bad", nil),
		MustEvent("a:2", nil),
	}, RequestContext{})
	require.Error(t, err)
	assert.Equal(t, []string{"r:a:1", "r:a:bad"}, trace, "batch stops at the first error")
}

func TestEventNamespace(t *testing.T) {
	assert.Equal(t, "chat", Event{Type: "chat:post"}.Namespace())
	assert.Equal(t, "user", Event{Type: "user:leave"}.Namespace())
	assert.Equal(t, "periodic", Event{Type: "periodic"}.Namespace())
}

// reducerFunc adapts a function to the Reducer interface for tests.
type reducerFunc func(ctx context.Context, rc *ReduceContext) error

func (f reducerFunc) Reduce(ctx context.Context, rc *ReduceContext) error { return f(ctx, rc) }
