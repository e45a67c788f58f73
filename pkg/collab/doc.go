// Package collab implements Drey's event-reduction engine: the typed event
// model, the shared-document containers every feature module mutates through,
// the ephemeral awareness (presence) store, and the processor that feeds
// events sequentially through every registered reducer.
//
// One Processor exists per collaboration room and is the room's single
// authoritative writer. Reducers execute to completion, one event at a time,
// with no interleaving between dispatch calls; events cascaded by a reducer
// are drained before the outer dispatch returns. All durable state lives in
// shared containers so that reducers stay stateless and the room survives a
// host restart with nothing lost but awareness.
package collab
