// Package migrate moves data from the legacy flat store into the
// structured SQLite store, exactly once.
//
// The migrator is deliberately conservative:
//
//   - It only runs when the legacy store has recognizable keys AND the
//     structured store is still empty for those entity types, so it
//     never re-migrates over organically accumulated data.
//   - Each sub-migration (chat rooms, settings, transcriptions) fails
//     per item; one bad record never aborts the batch.
//   - Before touching anything it snapshots the whole legacy payload
//     into a timestamped metadata record, best effort.
//   - Clearing the legacy store afterwards is opt-in, runs only on
//     overall success, and removes exactly the keys that were migrated
//     so data the migrator did not understand survives.
//
// Running MigrateAll twice with unchanged inputs is a no-op on the
// second run: everything counts as skipped.
package migrate
