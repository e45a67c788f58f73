// Package lifecycle implements the inactivity watchdog: a reducer that rearms
// a shutdown deadline on qualifying events, evaluates it on the periodic
// tick, and requests external teardown of the room's compute at most once.
//
// The whole protocol is built from nothing but the reducer/container pair:
// mutate a record, read a record, call a side effect. State lives in the
// shared document, so the at-most-once guard survives a host restart and is
// inspectable from any replica.
package lifecycle

import (
	"context"
	"log"
	"strings"
	"time"

	"github.com/dyluth/drey/internal/modules/base"
	"github.com/dyluth/drey/pkg/collab"
	"github.com/dyluth/drey/pkg/module"
)

// MetaContainer is the shared map holding the watchdog record.
const MetaContainer = "lifecycle:meta"

// MetaKey is the single key in MetaContainer.
const MetaKey = "meta"

// EventDisable permanently freezes shutdown checks for the room's remaining
// lifetime. There is no re-enable path.
const EventDisable = "lifecycle:disable"

// Status is the watchdog state machine. ShutdownRequested is terminal.
type Status string

const (
	StatusArmed             Status = "armed"
	StatusExpired           Status = "expired"
	StatusShutdownRequested Status = "shutdown_requested"
)

// Meta is the watchdog record. Invariant: Deadline = LastActivity + delay,
// recomputed whenever LastActivity advances.
type Meta struct {
	LastActivity time.Time `json:"last_activity"`
	Deadline     time.Time `json:"deadline"`
	Status       Status    `json:"status"`
	Disabled     bool      `json:"disabled"`
}

// Stopper is the external "stop this room's compute" side effect. It must be
// safely callable even if the room is already stopped; the watchdog promises
// at most one call per room lifetime on its side.
type Stopper interface {
	Stop(ctx context.Context, roomID string) error
}

// StopperFunc adapts a function to the Stopper interface.
type StopperFunc func(ctx context.Context, roomID string) error

func (f StopperFunc) Stop(ctx context.Context, roomID string) error { return f(ctx, roomID) }

// Options configures the watchdog module for one room.
type Options struct {
	RoomID string

	// Delay is the inactivity window; Deadline = LastActivity + Delay.
	Delay time.Duration

	// Stopper is invoked when the deadline passes. Nil disables the side
	// effect (the record still transitions, useful in tests and replicas).
	Stopper Stopper

	// StartDisabled creates the room with shutdown checks frozen.
	StartDisabled bool
}

// Exports is published by the lifecycle module.
type Exports struct {
	Meta collab.SharedMap
}

// Module builds the lifecycle module descriptor.
func Module(opts Options) module.Descriptor {
	return module.Descriptor{
		Name:         "lifecycle",
		Version:      "0.1.0",
		Dependencies: []string{base.CollabName, base.ReducersName},
		Load: func(lc *module.LoadContext) error {
			c, r, err := base.FromContext(lc)
			if err != nil {
				return err
			}

			meta := c.Store.SharedMap(MetaContainer)
			r.Register(&Watchdog{
				roomID:        opts.RoomID,
				delay:         opts.Delay,
				stopper:       opts.Stopper,
				startDisabled: opts.StartDisabled,
				meta:          meta,
			})

			return lc.Exports(Exports{Meta: meta})
		},
	}
}

// exempt tags do not count as activity: the tick itself, presence-leave, and
// the watchdog's own namespace.
func exempt(eventType string) bool {
	return eventType == collab.EventPeriodic ||
		eventType == collab.EventUserLeave ||
		strings.HasPrefix(eventType, "lifecycle:")
}

// Watchdog is the reducer. It deliberately does not declare namespaces:
// rearming requires seeing every event in the room.
type Watchdog struct {
	roomID        string
	delay         time.Duration
	stopper       Stopper
	startDisabled bool
	meta          collab.SharedMap
}

func (w *Watchdog) Reduce(ctx context.Context, rc *collab.ReduceContext) error {
	switch {
	case rc.Event.Type == collab.EventPeriodic:
		return w.tick(ctx, rc.Event.Time)
	case rc.Event.Type == EventDisable:
		return w.disable(ctx)
	case exempt(rc.Event.Type):
		return nil
	default:
		return w.rearm(ctx, rc.Event.Time)
	}
}

// rearm advances the deadline. The monotonicity guard ignores events whose
// time is not strictly later than the stored activity, so reordered or
// duplicated delivery cannot regress the deadline.
func (w *Watchdog) rearm(ctx context.Context, activity time.Time) error {
	var meta Meta
	found, err := w.meta.Get(ctx, MetaKey, &meta)
	if err != nil {
		return err
	}

	if !found {
		meta = Meta{Status: StatusArmed, Disabled: w.startDisabled}
	}
	if meta.Status == StatusShutdownRequested {
		// Terminal; the room is going away.
		return nil
	}
	if found && !activity.After(meta.LastActivity) {
		return nil
	}

	meta.LastActivity = activity
	meta.Deadline = activity.Add(w.delay)
	meta.Status = StatusArmed
	return w.meta.Set(ctx, MetaKey, meta)
}

// tick evaluates the deadline. The at-most-once guard is the persisted
// Status field: the transition into StatusShutdownRequested happens exactly
// once, and the stop side effect fires on that transition only. A stopper
// failure is logged and never retried; a stuck room needs an operator.
func (w *Watchdog) tick(ctx context.Context, now time.Time) error {
	var meta Meta
	found, err := w.meta.Get(ctx, MetaKey, &meta)
	if err != nil {
		return err
	}
	if !found || meta.Disabled {
		return nil
	}
	if now.Before(meta.Deadline) {
		return nil
	}

	if meta.Status == StatusShutdownRequested {
		log.Printf("[lifecycle] room=%s shutdown already requested but room still alive", w.roomID)
		return nil
	}

	if meta.Status == StatusArmed || meta.Status == "" {
		meta.Status = StatusExpired
		if err := w.meta.Set(ctx, MetaKey, meta); err != nil {
			return err
		}
	}

	// Record the terminal transition before invoking the side effect so a
	// failing stop call cannot turn into a hot retry loop. A crash between
	// the two writes leaves StatusExpired, which the next tick picks up.
	meta.Status = StatusShutdownRequested
	if err := w.meta.Set(ctx, MetaKey, meta); err != nil {
		return err
	}

	log.Printf("[lifecycle] room=%s inactive since %s, requesting shutdown",
		w.roomID, meta.LastActivity.Format(time.RFC3339))

	if w.stopper != nil {
		if err := w.stopper.Stop(ctx, w.roomID); err != nil {
			log.Printf("[lifecycle] room=%s stop side effect failed (will not retry): %v", w.roomID, err)
		}
	}
	return nil
}

// disable permanently freezes shutdown checks for this room.
func (w *Watchdog) disable(ctx context.Context) error {
	return collab.Mutate(ctx, w.meta, MetaKey, func(m *Meta) error {
		if m.Status == "" {
			m.Status = StatusArmed
		}
		m.Disabled = true
		return nil
	})
}
