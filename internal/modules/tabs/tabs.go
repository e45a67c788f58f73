// Package tabs implements the tab-layout feature module: a single shared
// layout record listing the open tabs and the active one.
package tabs

import (
	"context"
	"fmt"

	"github.com/dyluth/drey/internal/modules/base"
	"github.com/dyluth/drey/pkg/collab"
	"github.com/dyluth/drey/pkg/module"
)

// LayoutContainer is the shared map holding the layout record.
const LayoutContainer = "tabs:layout"

// LayoutKey is the single key in LayoutContainer.
const LayoutKey = "layout"

// Event tags owned by this module.
const (
	EventOpen     = "tabs:open"
	EventClose    = "tabs:close"
	EventActivate = "tabs:activate"
)

// Tab is one open tab.
type Tab struct {
	ID     string `json:"id"`
	Title  string `json:"title"`
	NodeID string `json:"node_id,omitempty"`
}

// Layout is the whole tab state for a room.
type Layout struct {
	Tabs   []Tab  `json:"tabs"`
	Active string `json:"active,omitempty"`
}

// OpenPayload is the payload of EventOpen.
type OpenPayload struct {
	Tab Tab `json:"tab"`
}

// ClosePayload is the payload of EventClose.
type ClosePayload struct {
	ID string `json:"id"`
}

// ActivatePayload is the payload of EventActivate.
type ActivatePayload struct {
	ID string `json:"id"`
}

// Exports is published by the tabs module.
type Exports struct {
	Layout collab.SharedMap
}

// Module builds the tabs module descriptor.
func Module() module.Descriptor {
	return module.Descriptor{
		Name:         "tabs",
		Version:      "0.1.0",
		Dependencies: []string{base.CollabName, base.ReducersName},
		Load: func(lc *module.LoadContext) error {
			c, r, err := base.FromContext(lc)
			if err != nil {
				return err
			}

			layout := c.Store.SharedMap(LayoutContainer)
			r.Register(&reducer{layout: layout})

			return lc.Exports(Exports{Layout: layout})
		},
	}
}

type reducer struct {
	layout collab.SharedMap
}

func (t *reducer) Namespaces() []string { return []string{"tabs"} }

func (t *reducer) Reduce(ctx context.Context, rc *collab.ReduceContext) error {
	switch rc.Event.Type {
	case EventOpen:
		return t.open(ctx, rc)
	case EventClose:
		return t.close(ctx, rc)
	case EventActivate:
		return t.activate(ctx, rc)
	default:
		return nil
	}
}

func (t *reducer) open(ctx context.Context, rc *collab.ReduceContext) error {
	var p OpenPayload
	if err := rc.Event.Decode(&p); err != nil {
		return err
	}
	if p.Tab.ID == "" {
		return fmt.Errorf("tab needs an id")
	}

	return collab.Mutate(ctx, t.layout, LayoutKey, func(l *Layout) error {
		for _, tab := range l.Tabs {
			if tab.ID == p.Tab.ID {
				// Re-opening an open tab just activates it.
				l.Active = p.Tab.ID
				return nil
			}
		}
		l.Tabs = append(l.Tabs, p.Tab)
		l.Active = p.Tab.ID
		return nil
	})
}

func (t *reducer) close(ctx context.Context, rc *collab.ReduceContext) error {
	var p ClosePayload
	if err := rc.Event.Decode(&p); err != nil {
		return err
	}

	return collab.Mutate(ctx, t.layout, LayoutKey, func(l *Layout) error {
		kept := l.Tabs[:0]
		for _, tab := range l.Tabs {
			if tab.ID != p.ID {
				kept = append(kept, tab)
			}
		}
		l.Tabs = kept
		if l.Active == p.ID {
			l.Active = ""
			if len(l.Tabs) > 0 {
				l.Active = l.Tabs[len(l.Tabs)-1].ID
			}
		}
		return nil
	})
}

func (t *reducer) activate(ctx context.Context, rc *collab.ReduceContext) error {
	var p ActivatePayload
	if err := rc.Event.Decode(&p); err != nil {
		return err
	}

	return collab.Mutate(ctx, t.layout, LayoutKey, func(l *Layout) error {
		for _, tab := range l.Tabs {
			if tab.ID == p.ID {
				l.Active = p.ID
				return nil
			}
		}
		return fmt.Errorf("cannot activate unknown tab %q", p.ID)
	})
}
