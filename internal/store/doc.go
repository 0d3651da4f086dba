// Package store is the structured SQLite tier of the chatstore
// persistence layer.
//
// # Architecture
//
// The package is split into a Connection Manager and per-entity APIs:
//
//   - Conn: owns the single shared *sql.DB. It opens lazily, shares an
//     in-flight open between concurrent callers, reopens after
//     invalidation, and provides the WithReadTx/WithWriteTx helpers all
//     mutation goes through.
//   - DB: the entity APIs (chat rooms, messages, settings,
//     transcriptions, metadata) built on Conn. Every operation runs
//     under a bounded fixed-delay retry policy.
//
// # Data Models
//
//   - ChatRoom: room metadata plus a Session sub-record holding the
//     resumption handle. Owns Messages by foreign key.
//   - Message: a single user or assistant turn, ordered by timestamp
//     within its room.
//   - Setting: key to tagged-union value (string, bool, number, json).
//   - Transcription: transient speech-to-text entries per room.
//
// # SQLite Configuration
//
// The store uses SQLite (modernc.org/sqlite) with WAL mode:
//
//	PRAGMA journal_mode=WAL;
//	PRAGMA foreign_keys=ON;
//
// Timestamps that back ordered indexes are stored as integer Unix
// milliseconds so ORDER BY is exact at sub-second resolution.
//
// # Schema Upgrades
//
// The on-disk schema version lives in the metadata table. Registered
// upgrade steps are applied strictly in version order on open; every
// statement is idempotent (CREATE ... IF NOT EXISTS) so a step is safe
// to re-run against a partially-upgraded store. An upgrade failure
// aborts the whole open.
//
// # Error Handling
//
// Sentinel errors classify failures for callers:
//
//   - ErrNotFound: requested entity does not exist
//   - ErrBackendUnavailable: the SQLite backend cannot be used at all
//   - ErrConnectionFailed: open or upgrade failed
//   - ErrTransactionBlocked: transaction blocked by another writer
//   - ErrTransactionAborted: transaction failed to commit
//   - ErrQuotaExceeded: the database or disk is full
//
// All methods accept context.Context for cancellation support.
package store
