// Package service is the single API surface the rest of the system
// talks to for persistence.
//
// # Tier chain
//
// The service composes an explicit ordered list of storage tiers:
// the structured SQLite store, the legacy flat store, and an in-memory
// map. One dispatcher tries each tier in turn. A tier that fails is
// marked unhealthy for the rest of the session and skipped on every
// subsequent call; tiers are only re-probed at Initialize. Only when
// every tier has failed does the caller see ErrAllTiersExhausted.
//
// A write never silently disappears: it lands on the first healthy
// tier or the whole chain's failure is surfaced.
//
// # Consistency caveat
//
// A UI-driven write and a session-queue write racing on the same room
// resolve by last write wins. The service does not merge session
// sub-records; this is accepted, documented behavior.
//
// # Lifecycle
//
// Initialize probes the tiers, optionally runs the one-time legacy
// migration, and reports what happened. StorageInfo and Health expose
// the degradation state for diagnostics; everything below
// ErrAllTiersExhausted is silent.
package service
