// Package storage holds the SQLite plumbing shared by the catalog,
// generation, and queue stores: connection setup with the standard
// pragmas, embedded-migration application, busy retry, and null/time
// conversion helpers. All stores share one database file; each owns its
// tables through prefixed migration versions.
package storage
