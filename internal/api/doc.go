// Package api defines the JSON surface shared by the daemon's HTTP
// server and the CLI's typed client.
package api
