// Package memstore is the in-memory tier of last resort.
//
// It holds deep copies of every entity in plain maps behind a mutex.
// Nothing survives a process restart; the storage service only lands
// here after both persistent tiers have failed, and an error from this
// tier is fatal to the caller.
package memstore
