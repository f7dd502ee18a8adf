// Package server exposes the daemon's HTTP API and the WebSocket feed of
// generation progress events.
package server
