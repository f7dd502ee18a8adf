// Package services defines shared utilities consumed by the generation
// lifecycle, the render worker, and external integrations.
//
// Key responsibilities:
//   - Context helpers that stamp generation IDs, shot types, user IDs, and
//     correlation identifiers for logging and tracing.
//   - Structured error markers plus the Wrap helper that translate failures
//     into consistent handling (reject vs retry vs record-and-continue).
//
// Use these helpers when wiring new lifecycle logic so operational behaviour
// (error handling, observability, retries) stays uniform across the pipeline.
package services
