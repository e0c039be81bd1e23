// Package store defines the persistence contract the repository is written
// against.
//
// A Query is an immutable description of a read: an optional predicate, an
// ordering, a window and a tracking mode. A Provider executes queries and
// buffers writes until Commit. Three providers ship with the module:
// store/memory (optionally snapshotted to disk via store/jsonfile) and
// store/sqlite.
//
// Reads are non-tracking by default: returned values are detached copies and
// changing them has no effect on storage. Tracking reads register the returned
// values so that the next Commit writes their current state back.
package store
