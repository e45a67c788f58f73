package collab

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"sync"
)

// MemoryStore is the in-process Store implementation. It backs unit tests and
// single-node rooms that do not need replication. Change notifications follow
// the same coalescing contract as the Redis store: one call per dirty
// container once the enclosing transaction settles.
type MemoryStore struct {
	mu     sync.Mutex
	maps   map[string]*memMap
	arrays map[string]*memArray

	txnDepth int
	dirty    []*observers
}

// NewMemoryStore creates an empty in-process store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		maps:   make(map[string]*memMap),
		arrays: make(map[string]*memArray),
	}
}

// SharedMap returns the map container with the given name, creating it on
// first use.
func (s *MemoryStore) SharedMap(name string) SharedMap {
	s.mu.Lock()
	defer s.mu.Unlock()
	m, ok := s.maps[name]
	if !ok {
		m = &memMap{store: s, name: name, data: make(map[string]json.RawMessage)}
		s.maps[name] = m
	}
	return m
}

// SharedArray returns the array container with the given name, creating it on
// first use.
func (s *MemoryStore) SharedArray(name string) SharedArray {
	s.mu.Lock()
	defer s.mu.Unlock()
	a, ok := s.arrays[name]
	if !ok {
		a = &memArray{store: s, name: name}
		s.arrays[name] = a
	}
	return a
}

// Transaction runs fn and then notifies the observers of every container fn
// mutated, once per container.
func (s *MemoryStore) Transaction(ctx context.Context, fn func() error) error {
	s.mu.Lock()
	s.txnDepth++
	s.mu.Unlock()

	err := fn()

	s.mu.Lock()
	s.txnDepth--
	flush := s.txnDepth == 0
	s.mu.Unlock()

	if flush {
		s.flush()
	}
	return err
}

// Ping always succeeds for the in-process store.
func (s *MemoryStore) Ping(ctx context.Context) error { return nil }

// Close is a no-op for the in-process store.
func (s *MemoryStore) Close() error { return nil }

// flagChange records that a container changed. Outside a transaction the
// notification fires immediately; inside, it is deferred to the flush.
func (s *MemoryStore) flagChange(obs *observers) {
	s.mu.Lock()
	for _, d := range s.dirty {
		if d == obs {
			s.mu.Unlock()
			return
		}
	}
	s.dirty = append(s.dirty, obs)
	flush := s.txnDepth == 0
	s.mu.Unlock()

	if flush {
		s.flush()
	}
}

func (s *MemoryStore) flush() {
	s.mu.Lock()
	dirty := s.dirty
	s.dirty = nil
	s.mu.Unlock()

	// Observers run outside the store lock so they may read containers.
	for _, obs := range dirty {
		obs.notify()
	}
}

//
// map container
//

type memMap struct {
	store *MemoryStore
	name  string
	data  map[string]json.RawMessage
	obs   observers
}

func (m *memMap) Name() string { return m.name }

func (m *memMap) Get(ctx context.Context, key string, out any) (bool, error) {
	m.store.mu.Lock()
	raw, ok := m.data[key]
	m.store.mu.Unlock()
	if !ok {
		return false, nil
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return true, fmt.Errorf("map %q key %q: %w", m.name, key, err)
	}
	return true, nil
}

func (m *memMap) Set(ctx context.Context, key string, v any) error {
	raw, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("map %q key %q: %w", m.name, key, err)
	}
	m.store.mu.Lock()
	m.data[key] = raw
	m.store.mu.Unlock()
	m.store.flagChange(&m.obs)
	return nil
}

func (m *memMap) Delete(ctx context.Context, key string) error {
	m.store.mu.Lock()
	_, existed := m.data[key]
	delete(m.data, key)
	m.store.mu.Unlock()
	if existed {
		m.store.flagChange(&m.obs)
	}
	return nil
}

func (m *memMap) Keys(ctx context.Context) ([]string, error) {
	m.store.mu.Lock()
	keys := make([]string, 0, len(m.data))
	for k := range m.data {
		keys = append(keys, k)
	}
	m.store.mu.Unlock()
	sort.Strings(keys)
	return keys, nil
}

func (m *memMap) Copy(ctx context.Context) (map[string]json.RawMessage, error) {
	m.store.mu.Lock()
	defer m.store.mu.Unlock()
	snapshot := make(map[string]json.RawMessage, len(m.data))
	for k, v := range m.data {
		snapshot[k] = append(json.RawMessage(nil), v...)
	}
	return snapshot, nil
}

func (m *memMap) Observe(fn func()) (cancel func()) {
	return m.obs.add(fn)
}

//
// array container
//

type memArray struct {
	store *MemoryStore
	name  string
	data  []json.RawMessage
	obs   observers
}

func (a *memArray) Name() string { return a.name }

func (a *memArray) Push(ctx context.Context, items ...any) error {
	if len(items) == 0 {
		return nil
	}
	raws := make([]json.RawMessage, 0, len(items))
	for _, item := range items {
		raw, err := json.Marshal(item)
		if err != nil {
			return fmt.Errorf("array %q: %w", a.name, err)
		}
		raws = append(raws, raw)
	}
	a.store.mu.Lock()
	a.data = append(a.data, raws...)
	a.store.mu.Unlock()
	a.store.flagChange(&a.obs)
	return nil
}

func (a *memArray) Get(ctx context.Context, i int, out any) (bool, error) {
	a.store.mu.Lock()
	if i < 0 || i >= len(a.data) {
		a.store.mu.Unlock()
		return false, nil
	}
	raw := a.data[i]
	a.store.mu.Unlock()
	if err := json.Unmarshal(raw, out); err != nil {
		return true, fmt.Errorf("array %q index %d: %w", a.name, i, err)
	}
	return true, nil
}

func (a *memArray) Len(ctx context.Context) (int, error) {
	a.store.mu.Lock()
	defer a.store.mu.Unlock()
	return len(a.data), nil
}

func (a *memArray) DeleteMatching(ctx context.Context, match func(json.RawMessage) bool) error {
	a.store.mu.Lock()
	kept := a.data[:0]
	removed := 0
	for _, raw := range a.data {
		if match(raw) {
			removed++
			continue
		}
		kept = append(kept, raw)
	}
	a.data = kept
	a.store.mu.Unlock()
	if removed > 0 {
		a.store.flagChange(&a.obs)
	}
	return nil
}

func (a *memArray) Copy(ctx context.Context) ([]json.RawMessage, error) {
	a.store.mu.Lock()
	defer a.store.mu.Unlock()
	snapshot := make([]json.RawMessage, 0, len(a.data))
	for _, v := range a.data {
		snapshot = append(snapshot, append(json.RawMessage(nil), v...))
	}
	return snapshot, nil
}

func (a *memArray) Observe(fn func()) (cancel func()) {
	return a.obs.add(fn)
}
