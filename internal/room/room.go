// Package room assembles one collaboration room: its shared-document store,
// awareness, reducer pipeline, and feature modules, plus the periodic tick
// source driving the inactivity watchdog.
package room

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/dyluth/drey/internal/modules/base"
	"github.com/dyluth/drey/internal/modules/chat"
	"github.com/dyluth/drey/internal/modules/graph"
	"github.com/dyluth/drey/internal/modules/lifecycle"
	"github.com/dyluth/drey/internal/modules/tabs"
	"github.com/dyluth/drey/internal/modules/whiteboard"
	"github.com/dyluth/drey/pkg/collab"
	"github.com/dyluth/drey/pkg/module"
)

// Options configures a room.
type Options struct {
	ID    string
	Store collab.Store

	// WatchdogDelay is the inactivity window before the stopper fires.
	WatchdogDelay time.Duration

	// TickInterval drives the periodic synthetic event. Zero disables the
	// ticker (tests dispatch ticks by hand).
	TickInterval time.Duration

	// Stopper tears down the room's external compute. May be nil.
	Stopper lifecycle.Stopper

	// WatchdogDisabled creates the room with shutdown checks frozen.
	WatchdogDisabled bool

	// ExtraModules are appended to the standard module list, after it.
	ExtraModules []module.Entry
}

// Room is one live collaboration session.
type Room struct {
	id           string
	store        collab.Store
	awareness    *collab.Awareness
	processor    *collab.Processor
	exports      map[string]any
	tickInterval time.Duration
}

// New builds the room: it creates the pipeline and loads the standard module
// list (collab, reducers, graph, chat, whiteboard, tabs, lifecycle) in
// curated dependency order, followed by any extra modules. A load failure is
// a configuration error and aborts the room.
func New(opts Options) (*Room, error) {
	if opts.ID == "" {
		return nil, fmt.Errorf("room id cannot be empty")
	}
	if opts.Store == nil {
		return nil, fmt.Errorf("room %q: store is required", opts.ID)
	}

	awareness := collab.NewAwareness()
	processor := collab.NewProcessor(opts.ID, opts.Store, awareness)

	entries := []module.Entry{
		{Descriptor: base.Collab(opts.Store, awareness)},
		{Descriptor: base.Reducers(processor)},
		{Descriptor: graph.Module()},
		{Descriptor: chat.Module()},
		{Descriptor: whiteboard.Module()},
		{Descriptor: tabs.Module()},
		{Descriptor: lifecycle.Module(lifecycle.Options{
			RoomID:        opts.ID,
			Delay:         opts.WatchdogDelay,
			Stopper:       opts.Stopper,
			StartDisabled: opts.WatchdogDisabled,
		})},
	}
	entries = append(entries, opts.ExtraModules...)

	exports, err := module.LoadModules(entries)
	if err != nil {
		return nil, fmt.Errorf("room %q: %w", opts.ID, err)
	}

	log.Printf("[room] room=%s loaded %d modules", opts.ID, len(entries))

	return &Room{
		id:           opts.ID,
		store:        opts.Store,
		awareness:    awareness,
		processor:    processor,
		exports:      exports,
		tickInterval: opts.TickInterval,
	}, nil
}

// ID returns the room identifier.
func (r *Room) ID() string { return r.id }

// Store returns the room's shared-document store.
func (r *Room) Store() collab.Store { return r.store }

// Awareness returns the room's presence store.
func (r *Room) Awareness() *collab.Awareness { return r.awareness }

// Exports returns the exports a module published during load.
func (r *Room) Exports(name string) (any, bool) {
	e, ok := r.exports[name]
	return e, ok
}

// Dispatch feeds an event into the room's pipeline.
func (r *Room) Dispatch(ctx context.Context, e collab.Event, req collab.RequestContext) error {
	return r.processor.Dispatch(ctx, e, req)
}

// RunTicker emits the periodic synthetic event until ctx is cancelled.
// It blocks; run it in its own goroutine.
func (r *Room) RunTicker(ctx context.Context) {
	if r.tickInterval <= 0 {
		return
	}

	ticker := time.NewTicker(r.tickInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			tick := collab.MustEvent(collab.EventPeriodic, collab.PeriodicPayload{
				IntervalMs: r.tickInterval.Milliseconds(),
			})
			if err := r.Dispatch(ctx, tick, collab.RequestContext{}); err != nil {
				log.Printf("[room] room=%s periodic tick failed: %v", r.id, err)
			}
		}
	}
}

// Close releases the room's store.
func (r *Room) Close() error {
	return r.store.Close()
}
