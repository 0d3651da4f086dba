// Package legacy implements the flat key/value store that predates the
// structured SQLite store.
//
// The store is a single JSON file mapping string keys to raw JSON
// values, the layout the original client kept before the structured
// store existed:
//
//   - "chat_rooms": array of rooms with their messages embedded
//   - "setting:<name>": one entry per setting
//   - "transcriptions": array of transcription entries
//
// It serves two roles: the migration source read exactly once by the
// migrator, and the secondary tier the storage service degrades to
// when SQLite is unavailable. For the second role it implements the
// full entity operation set on top of the flat layout.
//
// Writes rewrite the whole file through a temp-file rename so a crash
// mid-write never corrupts the store.
package legacy
