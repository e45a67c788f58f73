package collab

import "context"

// Reducer is a stateless event handler. All state a reducer needs lives in
// shared containers so that it survives a host restart and replicates.
//
// Reduce must be total over (event, current shared state): a tag the reducer
// does not own is a deliberate no-op, never an error. Reducers are
// independently developed per module and must tolerate unrelated traffic.
type Reducer interface {
	Reduce(ctx context.Context, rc *ReduceContext) error
}

// NamespaceReducer is optionally implemented by reducers that only ever act
// on tags under known module prefixes. The processor uses the declaration to
// skip the reducer for foreign namespaces; this is purely a routing
// optimization and changes no observable behavior. Engine-native tags
// ("periodic", "user:*") are always delivered to every reducer, and reducers
// that do not implement this interface see all traffic.
type NamespaceReducer interface {
	Reducer
	Namespaces() []string
}

// ReduceContext is handed to each reducer invocation.
type ReduceContext struct {
	// Event is the event being reduced. Immutable.
	Event Event

	// Request carries the caller identity and connection metadata of the
	// originating dispatch. Cascaded events inherit it.
	Request RequestContext

	// Store is the room's shared-document backend.
	Store Store

	// Awareness is the room's ephemeral presence state. Reducers rarely
	// touch it; it is here for the ones that do (e.g. emitting user:leave
	// bookkeeping).
	Awareness *Awareness

	cascade func(Event)
}

// Cascade enqueues a derived event. It runs through the entire reducer list
// after the current event finishes, and is guaranteed to complete before the
// outer Dispatch call returns.
func (rc *ReduceContext) Cascade(e Event) {
	rc.cascade(e)
}
