// Package daemon assembles the lookbook services into a single-instance
// background process: the shared SQLite database, the generation lifecycle,
// the workflow manager, and the HTTP API server.
package daemon
