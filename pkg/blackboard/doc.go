// Package blackboard provides type-safe Go definitions and the shared state
// store for the Hark decision pipeline.
//
// # Overview
//
// The blackboard is the central shared state where every pipeline component
// (perception, decision, output, learning) reads what the viewer is doing and
// where the orchestrating core records what happened. It follows the
// Blackboard architectural pattern: independent components collaborate by
// reading and writing well-defined structures in one place.
//
// # Core Concepts
//
// RawEvents are producer-supplied and untyped. Perception turns them into
// NormalizedEvents, which are immutable: payload and metadata are only reachable
// through copying accessors, and the category-specific Details variant is the
// typed view downstream code should use.
//
// Decisions are produced exactly once per normalized event. OutputRequests are
// what a decision wants to say; OutputMessages are what the output gate actually
// emitted, always carrying a semantic hash.
//
// # Shared State
//
// Store owns a State value. All mutations go through Store.Update with a named
// caller so the audit trail shows who changed what. Observers are notified
// synchronously after each mutation; a failing observer is recorded in
// State.Health and never propagates to the caller.
//
// # Usage Example
//
//	store := blackboard.NewStore(blackboard.Identity{UserID: "u-1", Role: blackboard.RoleUser})
//	unsubscribe := store.Subscribe(func(c blackboard.Change) error {
//		log.Printf("%s changed state", c.Caller)
//		return nil
//	})
//	defer unsubscribe()
//
//	store.SetActivity("ui", "calculating")
//	viewer := store.Viewer()
package blackboard
