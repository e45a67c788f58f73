// Package graph implements the core graph module: the shared node/edge
// document that most other feature modules anchor their content to.
package graph

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/dyluth/drey/internal/modules/base"
	"github.com/dyluth/drey/pkg/collab"
	"github.com/dyluth/drey/pkg/module"
)

// Shared container names.
const (
	NodesContainer = "graph:nodes"
	EdgesContainer = "graph:edges"
)

// Event tags owned by this module.
const (
	EventNewNode    = "graph:new-node"
	EventDeleteNode = "graph:delete-node"
	EventNewEdge    = "graph:new-edge"
)

// Node is one vertex of the room's graph document.
type Node struct {
	ID   string         `json:"id"`
	Name string         `json:"name"`
	Type string         `json:"type"`
	Root bool           `json:"root,omitempty"`
	Data map[string]any `json:"data,omitempty"`
}

// Edge connects two nodes.
type Edge struct {
	ID   string `json:"id"`
	From string `json:"from"`
	To   string `json:"to"`
}

// NewNodePayload is the payload of EventNewNode.
type NewNodePayload struct {
	Node  Node   `json:"node"`
	Edges []Edge `json:"edges,omitempty"`
}

// DeleteNodePayload is the payload of EventDeleteNode.
type DeleteNodePayload struct {
	ID string `json:"id"`
}

// NewEdgePayload is the payload of EventNewEdge.
type NewEdgePayload struct {
	Edge Edge `json:"edge"`
}

// Exports is published by the graph module.
type Exports struct {
	// Nodes and Edges expose the module's containers to modules that build
	// projections over the graph.
	Nodes collab.SharedMap
	Edges collab.SharedArray
}

// Module builds the graph module descriptor.
func Module() module.Descriptor {
	return module.Descriptor{
		Name:         "graph",
		Version:      "0.1.0",
		Dependencies: []string{base.CollabName, base.ReducersName},
		Load: func(lc *module.LoadContext) error {
			c, r, err := base.FromContext(lc)
			if err != nil {
				return err
			}

			nodes := c.Store.SharedMap(NodesContainer)
			edges := c.Store.SharedArray(EdgesContainer)
			r.Register(&reducer{nodes: nodes, edges: edges})

			return lc.Exports(Exports{Nodes: nodes, Edges: edges})
		},
	}
}

type reducer struct {
	nodes collab.SharedMap
	edges collab.SharedArray
}

func (g *reducer) Namespaces() []string { return []string{"graph"} }

func (g *reducer) Reduce(ctx context.Context, rc *collab.ReduceContext) error {
	switch rc.Event.Type {
	case EventNewNode:
		return g.newNode(ctx, rc)
	case EventDeleteNode:
		return g.deleteNode(ctx, rc)
	case EventNewEdge:
		return g.newEdge(ctx, rc)
	default:
		return nil
	}
}

func (g *reducer) newNode(ctx context.Context, rc *collab.ReduceContext) error {
	var p NewNodePayload
	if err := rc.Event.Decode(&p); err != nil {
		return err
	}
	if p.Node.ID == "" {
		return fmt.Errorf("new node without an id")
	}

	if err := g.nodes.Set(ctx, p.Node.ID, p.Node); err != nil {
		return err
	}
	if len(p.Edges) > 0 {
		items := make([]any, 0, len(p.Edges))
		for _, e := range p.Edges {
			items = append(items, e)
		}
		if err := g.edges.Push(ctx, items...); err != nil {
			return err
		}
	}
	return nil
}

func (g *reducer) deleteNode(ctx context.Context, rc *collab.ReduceContext) error {
	var p DeleteNodePayload
	if err := rc.Event.Decode(&p); err != nil {
		return err
	}
	if p.ID == "" {
		return fmt.Errorf("delete node without an id")
	}

	// Drop every edge from or to the node, then the node itself.
	if err := g.edges.DeleteMatching(ctx, func(raw json.RawMessage) bool {
		var e Edge
		if err := json.Unmarshal(raw, &e); err != nil {
			return false
		}
		return e.From == p.ID || e.To == p.ID
	}); err != nil {
		return err
	}
	return g.nodes.Delete(ctx, p.ID)
}

func (g *reducer) newEdge(ctx context.Context, rc *collab.ReduceContext) error {
	var p NewEdgePayload
	if err := rc.Event.Decode(&p); err != nil {
		return err
	}
	if p.Edge.From == "" || p.Edge.To == "" {
		return fmt.Errorf("edge must name both endpoints")
	}
	return g.edges.Push(ctx, p.Edge)
}
