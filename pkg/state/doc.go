// Package state implements a reactive state engine.
//
// An Engine folds intents from several concurrently running sources into a
// single stream of immutable snapshots:
//
//	sources ──► FIFO queue ──► reducer ──► snapshots ──► subscribers
//	                                           │
//	                                           └──► effects (best effort)
//
// Sources are must-succeed: an error returned by a source fails the engine
// and ends every subscription with that error. Effects are best-effort: their
// failures are logged, counted and published as telemetry events, and never
// reach subscribers.
//
// Intents are reduced one at a time in arrival order across all sources.
// Every subscriber receives the latest snapshot on subscribe and then every
// later one; a slow subscriber sees coalesced snapshots, never out of order.
//
// Dispose is synchronous and idempotent. Once it returns, no snapshot is
// delivered and no intent is accepted. In-flight effect work is cancelled
// through its context but not awaited.
//
// Example:
//
//	e := state.New(0, func(s, n int) int { return s + n },
//		state.WithSource[int]("ticks", ticks),
//	)
//	if err := e.Start(ctx); err != nil {
//		return err
//	}
//	defer e.Dispose()
//	for s := range e.States(ctx) {
//		fmt.Println(s)
//	}
package state
