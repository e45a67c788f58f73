package collab

import (
	"context"
	"fmt"
	"log"
	"sync"
)

// Processor is the reducer pipeline for one room. It is the room's single
// authoritative writer: Dispatch calls are serialized, each event runs
// through every registered reducer in registration order, and events
// cascaded by reducers are drained before Dispatch returns.
type Processor struct {
	room      string
	store     Store
	awareness *Awareness

	mu       sync.Mutex // serializes Dispatch; the single-writer guarantee
	reducers []registeredReducer
}

type registeredReducer struct {
	reducer Reducer
	// namespaces is nil for reducers that see all traffic.
	namespaces map[string]struct{}
}

// NewProcessor creates a pipeline bound to a room's store and awareness.
func NewProcessor(room string, store Store, awareness *Awareness) *Processor {
	return &Processor{
		room:      room,
		store:     store,
		awareness: awareness,
	}
}

// Register appends a reducer to the pipeline. Registration order is handling
// order; modules register during load, so the curated module order decides it.
func (p *Processor) Register(r Reducer) {
	p.mu.Lock()
	defer p.mu.Unlock()

	rr := registeredReducer{reducer: r}
	if nr, ok := r.(NamespaceReducer); ok {
		rr.namespaces = make(map[string]struct{})
		for _, ns := range nr.Namespaces() {
			rr.namespaces[ns] = struct{}{}
		}
	}
	p.reducers = append(p.reducers, rr)
}

// wants reports whether a reducer should see an event with the given
// namespace. Engine-native tags always fan out to everyone so that multiple
// modules can listen to a shared tag independently.
func (rr registeredReducer) wants(namespace string) bool {
	if rr.namespaces == nil {
		return true
	}
	if namespace == EventPeriodic || namespace == "user" {
		return true
	}
	_, ok := rr.namespaces[namespace]
	return ok
}

// Dispatch feeds an event through the pipeline and drains every event it
// transitively cascades before returning. When Dispatch returns nil, the
// event and all its cascades have fully applied their mutations and each
// mutated container has notified its observers.
//
// A reducer error aborts the remainder of the dispatch, cascade queue
// included, and is returned to the caller. Mutations already committed are
// NOT rolled back; reducers must validate their inputs before mutating.
func (p *Processor) Dispatch(ctx context.Context, event Event, req RequestContext) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if event.Type != EventPeriodic {
		log.Printf("[collab] room=%s dispatch type=%s id=%s user=%s", p.room, event.Type, event.ID, req.UserID)
	}

	queue := []Event{event}

	err := p.store.Transaction(ctx, func() error {
		for len(queue) > 0 {
			current := queue[0]
			queue = queue[1:]

			ns := current.Namespace()
			for _, rr := range p.reducers {
				if !rr.wants(ns) {
					continue
				}
				rc := &ReduceContext{
					Event:     current,
					Request:   req,
					Store:     p.store,
					Awareness: p.awareness,
					cascade: func(e Event) {
						queue = append(queue, e)
					},
				}
				if err := rr.reducer.Reduce(ctx, rc); err != nil {
					return fmt.Errorf("reducing %q: %w", current.Type, err)
				}
			}
		}
		return nil
	})
	if err != nil {
		log.Printf("[collab] room=%s dispatch failed type=%s id=%s: %v", p.room, event.Type, event.ID, err)
		return err
	}
	return nil
}

// Batch dispatches events one after another, stopping at the first error.
func (p *Processor) Batch(ctx context.Context, events []Event, req RequestContext) error {
	for _, e := range events {
		if err := p.Dispatch(ctx, e, req); err != nil {
			return err
		}
	}
	return nil
}

// Room returns the room identifier this pipeline serves.
func (p *Processor) Room() string { return p.room }
