// Package fieldpath resolves dotted field paths such as "customer.address.city"
// against Go types and reads the values they address.
//
// Resolution walks one segment at a time. Struct segments match the json tag
// name first, then the Go field name (case-insensitively). String-keyed maps
// consume a segment as a key. Once a path crosses an interface-typed value the
// remaining segments are resolved against the concrete value at access time,
// which is how map[string]any documents are traversed.
//
// Resolved accessors are cached per (type, path) pair and are safe for
// concurrent use.
package fieldpath
