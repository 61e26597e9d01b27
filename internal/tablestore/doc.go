// Package tablestore provides an in-memory table store mirrored to a single
// JSON file.
//
// # Overview
//
// A [Store] maps table names to ordered sequences of [Record]. Tables are
// created implicitly by [Store.Insert]. Records are schema-agnostic maps whose
// only structural requirement is an "id" field assigned by the caller; the
// store never generates ids and never checks them for uniqueness.
//
// # Lookup
//
// [Store.FindByID], [Store.Update] and [Store.Delete] scan the table linearly
// and act on the first record whose id equals the target. Numeric ids compare
// by value regardless of their Go representation, so an id decoded from JSON
// as float64 matches an int passed by the caller.
//
// # Persistence
//
// Every successful mutation encodes a full snapshot of the store and hands it
// to a single writer goroutine. The writer keeps only the newest pending
// snapshot and replaces the backing file atomically (temp file + rename).
// Snapshots are written in mutation order; a later state is never overwritten
// by an earlier one. Write failures are logged and reported to the
// [Observer]; they never fail the mutation, and the in-memory state stays
// authoritative until the next successful write. [Store.Flush] waits for
// pending writes, [Store.Close] flushes and stops the writer.
//
// # File Format
//
//	{
//	  "<table>": [ { "id": <value>, ...fields }, ... ],
//	  ...
//	}
//
// A missing file loads as an empty store. A file that does not parse loads as
// an empty store too, after logging the failure.
package tablestore
