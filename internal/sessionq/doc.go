// Package sessionq reconciles out-of-order session-resumption events
// against eventually-available chat rooms.
//
// The remote protocol can emit a session-handle update before the
// local room it targets exists. The queue holds such updates and
// retries them with exponential backoff until the room appears, the
// update is superseded, or the attempt cap is reached.
//
// Semantics:
//
//   - One pending update per room: a new enqueue for the same room
//     replaces the old one and resets its attempt counter (last write
//     wins; a stale superseded update is dropped, never applied).
//   - A single consumer goroutine processes items one at a time, so
//     read-modify-writes against the storage service never interleave.
//   - A missing room or a failed persist is a failed attempt, not a
//     crash: the item is re-queued with doubled delay until the cap,
//     then abandoned and logged. Nothing is ever thrown to a caller;
//     the queue is push-driven.
//
// The queue performs no expiry sweeps. Handle validity is computed by
// readers from lastConnected age.
package sessionq
