// Package whiteboard implements the drawing-board feature module: shapes in
// a shared map, optionally anchored to graph nodes.
package whiteboard

import (
	"context"
	"fmt"

	"github.com/dyluth/drey/internal/modules/base"
	"github.com/dyluth/drey/internal/modules/graph"
	"github.com/dyluth/drey/pkg/collab"
	"github.com/dyluth/drey/pkg/module"
)

// ShapesContainer is the shared map holding every shape, keyed by shape ID.
const ShapesContainer = "whiteboard:shapes"

// Event tags owned by this module.
const (
	EventAddShape    = "whiteboard:add-shape"
	EventMoveShape   = "whiteboard:move-shape"
	EventDeleteShape = "whiteboard:delete-shape"
)

// Shape is one drawing element.
type Shape struct {
	ID     string  `json:"id"`
	Kind   string  `json:"kind"` // rect, ellipse, arrow, text...
	X      float64 `json:"x"`
	Y      float64 `json:"y"`
	Width  float64 `json:"width,omitempty"`
	Height float64 `json:"height,omitempty"`
	Text   string  `json:"text,omitempty"`
	// NodeID anchors the shape to a graph node; deleting the shape deletes
	// the node as well.
	NodeID string `json:"node_id,omitempty"`
}

// AddShapePayload is the payload of EventAddShape.
type AddShapePayload struct {
	Shape Shape `json:"shape"`
}

// MoveShapePayload is the payload of EventMoveShape.
type MoveShapePayload struct {
	ID string  `json:"id"`
	X  float64 `json:"x"`
	Y  float64 `json:"y"`
}

// DeleteShapePayload is the payload of EventDeleteShape.
type DeleteShapePayload struct {
	ID string `json:"id"`
}

// Exports is published by the whiteboard module.
type Exports struct {
	Shapes collab.SharedMap
}

// Module builds the whiteboard module descriptor.
func Module() module.Descriptor {
	return module.Descriptor{
		Name:         "whiteboard",
		Version:      "0.1.0",
		Dependencies: []string{base.CollabName, base.ReducersName, "graph"},
		Load: func(lc *module.LoadContext) error {
			c, r, err := base.FromContext(lc)
			if err != nil {
				return err
			}

			shapes := c.Store.SharedMap(ShapesContainer)
			r.Register(&reducer{shapes: shapes})

			return lc.Exports(Exports{Shapes: shapes})
		},
	}
}

type reducer struct {
	shapes collab.SharedMap
}

func (w *reducer) Namespaces() []string { return []string{"whiteboard"} }

func (w *reducer) Reduce(ctx context.Context, rc *collab.ReduceContext) error {
	switch rc.Event.Type {
	case EventAddShape:
		return w.addShape(ctx, rc)
	case EventMoveShape:
		return w.moveShape(ctx, rc)
	case EventDeleteShape:
		return w.deleteShape(ctx, rc)
	default:
		return nil
	}
}

func (w *reducer) addShape(ctx context.Context, rc *collab.ReduceContext) error {
	var p AddShapePayload
	if err := rc.Event.Decode(&p); err != nil {
		return err
	}
	if p.Shape.ID == "" || p.Shape.Kind == "" {
		return fmt.Errorf("shape needs an id and a kind")
	}
	return w.shapes.Set(ctx, p.Shape.ID, p.Shape)
}

func (w *reducer) moveShape(ctx context.Context, rc *collab.ReduceContext) error {
	var p MoveShapePayload
	if err := rc.Event.Decode(&p); err != nil {
		return err
	}

	var shape Shape
	found, err := w.shapes.Get(ctx, p.ID, &shape)
	if err != nil {
		return err
	}
	if !found {
		// Moving a shape another client already deleted is not an error.
		return nil
	}

	return collab.Mutate(ctx, w.shapes, p.ID, func(s *Shape) error {
		s.X = p.X
		s.Y = p.Y
		return nil
	})
}

func (w *reducer) deleteShape(ctx context.Context, rc *collab.ReduceContext) error {
	var p DeleteShapePayload
	if err := rc.Event.Decode(&p); err != nil {
		return err
	}

	var shape Shape
	found, err := w.shapes.Get(ctx, p.ID, &shape)
	if err != nil {
		return err
	}
	if !found {
		return nil
	}

	if err := w.shapes.Delete(ctx, p.ID); err != nil {
		return err
	}
	if shape.NodeID != "" {
		rc.Cascade(collab.MustEvent(graph.EventDeleteNode, graph.DeleteNodePayload{
			ID: shape.NodeID,
		}))
	}
	return nil
}
