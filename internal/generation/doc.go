// Package generation owns the lookbook run lifecycle: building and
// editing shot prompts, queueing render tasks, executing them against an
// image provider, and tracking per-visual state through to a terminal
// status. A run completes as long as at least one shot renders; it fails
// only when every shot fails or infrastructure gives out.
package generation
