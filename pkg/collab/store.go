package collab

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
)

// Store is the shared-document backend for one room. Containers are created
// lazily by name and reused for the life of the room; asking twice for the
// same name returns the same container.
//
// The store is a black box to reducers: they interact only through the
// container contracts below. The memory implementation backs tests and
// single-node rooms; the Redis implementation adds replication of both data
// and change notifications to replica processes.
type Store interface {
	SharedMap(name string) SharedMap
	SharedArray(name string) SharedArray

	// Transaction runs fn and then flushes change notifications: every
	// container mutated inside fn notifies its observers exactly once,
	// after fn returns, regardless of how many mutations it received.
	// The processor wraps each dispatch cascade in one transaction.
	Transaction(ctx context.Context, fn func() error) error

	// Ping reports whether the backend is reachable. Used by health checks.
	Ping(ctx context.Context) error

	Close() error
}

// SharedMap is a string-keyed container of JSON-serializable records.
//
// Values cross the container boundary as JSON: Set marshals the whole value
// (there are no partial patches) and Get unmarshals a fresh copy into out.
// Holding a reference to a value a reducer previously read therefore can
// never alias the authoritative state.
type SharedMap interface {
	Name() string

	// Get unmarshals the value for key into out and reports whether the key
	// existed. out is left untouched when it did not.
	Get(ctx context.Context, key string, out any) (bool, error)

	// Set replaces the whole value stored under key.
	Set(ctx context.Context, key string, v any) error

	Delete(ctx context.Context, key string) error

	Keys(ctx context.Context) ([]string, error)

	// Copy returns a structurally independent snapshot of the container,
	// for building local read-only projections without re-entering the
	// store on every read.
	Copy(ctx context.Context) (map[string]json.RawMessage, error)

	// Observe registers a change callback and returns its cancel function.
	// Observers receive at least one call after a mutation settles; multiple
	// mutations within one transaction are coalesced into a single call.
	Observe(fn func()) (cancel func())
}

// SharedArray is an ordered container of JSON-serializable records with
// bulk delete-by-predicate. Same copy-on-read contract as SharedMap.
type SharedArray interface {
	Name() string

	Push(ctx context.Context, items ...any) error

	// Get unmarshals the i-th element into out; reports false when i is out
	// of range.
	Get(ctx context.Context, i int, out any) (bool, error)

	Len(ctx context.Context) (int, error)

	// DeleteMatching removes every element for which match returns true.
	DeleteMatching(ctx context.Context, match func(json.RawMessage) bool) error

	Copy(ctx context.Context) ([]json.RawMessage, error)

	Observe(fn func()) (cancel func())
}

// Mutate performs the read-copy-mutate-write sequence on one map entry:
// the stored value is unmarshalled into a fresh T (the zero value when the
// key is absent), fn mutates it, and the result is written back whole.
// Reducers should never update a record any other way.
func Mutate[T any](ctx context.Context, m SharedMap, key string, fn func(*T) error) error {
	var v T
	if _, err := m.Get(ctx, key, &v); err != nil {
		return fmt.Errorf("mutate %s[%q]: %w", m.Name(), key, err)
	}
	if err := fn(&v); err != nil {
		return err
	}
	if err := m.Set(ctx, key, v); err != nil {
		return fmt.Errorf("mutate %s[%q]: %w", m.Name(), key, err)
	}
	return nil
}

// observers is the shared observe/unobserve bookkeeping for containers.
// Callbacks are tracked by registration handle, not function identity.
type observers struct {
	mu  sync.Mutex
	fns []*func()
}

func (o *observers) add(fn func()) (cancel func()) {
	p := &fn
	o.mu.Lock()
	o.fns = append(o.fns, p)
	o.mu.Unlock()
	return func() {
		o.mu.Lock()
		defer o.mu.Unlock()
		for i, q := range o.fns {
			if q == p {
				o.fns = append(o.fns[:i], o.fns[i+1:]...)
				return
			}
		}
	}
}

// notify calls every registered callback. Callbacks run outside the lock so
// they may observe or re-register freely.
func (o *observers) notify() {
	o.mu.Lock()
	fns := append([]*func(){}, o.fns...)
	o.mu.Unlock()
	for _, p := range fns {
		(*p)()
	}
}
