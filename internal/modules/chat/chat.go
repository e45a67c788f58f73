// Package chat implements the chat feature module: threaded messages stored
// in a shared array, with thread anchors cascaded into the graph document.
package chat

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/dyluth/drey/internal/modules/base"
	"github.com/dyluth/drey/internal/modules/graph"
	"github.com/dyluth/drey/pkg/collab"
	"github.com/dyluth/drey/pkg/module"
)

// MessagesContainer is the shared array holding every message in the room.
const MessagesContainer = "chat:messages"

// Event tags owned by this module.
const (
	EventPost  = "chat:post"
	EventClear = "chat:clear"
)

// Message is one chat message.
type Message struct {
	ID     string `json:"id"`
	Thread string `json:"thread"`
	Author string `json:"author"`
	Body   string `json:"body"`
	SentAt string `json:"sent_at"`
}

// PostPayload is the payload of EventPost. When OpenThread is set the post
// starts a new thread and an anchor node is cascaded into the graph.
type PostPayload struct {
	Message    Message `json:"message"`
	OpenThread bool    `json:"open_thread,omitempty"`
}

// ClearPayload is the payload of EventClear.
type ClearPayload struct {
	Thread string `json:"thread"`
}

// ThreadNodeID names the graph node anchoring a chat thread.
func ThreadNodeID(thread string) string {
	return "chat:" + thread
}

// Exports is published by the chat module.
type Exports struct {
	Messages collab.SharedArray
}

// Module builds the chat module descriptor.
func Module() module.Descriptor {
	return module.Descriptor{
		Name:         "chat",
		Version:      "0.1.0",
		Dependencies: []string{base.CollabName, base.ReducersName, "graph"},
		Load: func(lc *module.LoadContext) error {
			c, r, err := base.FromContext(lc)
			if err != nil {
				return err
			}

			messages := c.Store.SharedArray(MessagesContainer)
			r.Register(&reducer{messages: messages})

			return lc.Exports(Exports{Messages: messages})
		},
	}
}

type reducer struct {
	messages collab.SharedArray
}

func (c *reducer) Namespaces() []string { return []string{"chat"} }

func (c *reducer) Reduce(ctx context.Context, rc *collab.ReduceContext) error {
	switch rc.Event.Type {
	case EventPost:
		return c.post(ctx, rc)
	case EventClear:
		return c.clear(ctx, rc)
	default:
		return nil
	}
}

func (c *reducer) post(ctx context.Context, rc *collab.ReduceContext) error {
	var p PostPayload
	if err := rc.Event.Decode(&p); err != nil {
		return err
	}
	msg := p.Message
	if msg.ID == "" || msg.Thread == "" {
		return fmt.Errorf("chat message needs an id and a thread")
	}
	if msg.Author == "" {
		msg.Author = rc.Request.UserID
	}
	if msg.SentAt == "" {
		// Stored once at reduction time so every later read agrees.
		msg.SentAt = rc.Event.Time.Format("2006-01-02T15:04:05.000Z07:00")
	}

	if err := c.messages.Push(ctx, msg); err != nil {
		return err
	}

	if p.OpenThread {
		rc.Cascade(collab.MustEvent(graph.EventNewNode, graph.NewNodePayload{
			Node: graph.Node{
				ID:   ThreadNodeID(msg.Thread),
				Name: msg.Thread,
				Type: "chat-thread",
			},
		}))
	}
	return nil
}

func (c *reducer) clear(ctx context.Context, rc *collab.ReduceContext) error {
	var p ClearPayload
	if err := rc.Event.Decode(&p); err != nil {
		return err
	}
	if p.Thread == "" {
		return fmt.Errorf("chat clear needs a thread")
	}

	if err := c.messages.DeleteMatching(ctx, func(raw json.RawMessage) bool {
		var m Message
		if err := json.Unmarshal(raw, &m); err != nil {
			return false
		}
		return m.Thread == p.Thread
	}); err != nil {
		return err
	}

	rc.Cascade(collab.MustEvent(graph.EventDeleteNode, graph.DeleteNodePayload{
		ID: ThreadNodeID(p.Thread),
	}))
	return nil
}
