// Package workflow runs the render-task queue: a worker pool claims
// pending tasks, executes them with heartbeats, retries transient
// failures with backoff, and reclaims tasks left behind by dead workers.
package workflow
