// Package queue persists render tasks, one durable row per generation
// run. A partial unique index keeps at most one active task per
// generation; attempts, stall counts, and heartbeats drive the retry and
// reclaim policy enforced by the workflow manager.
package queue
