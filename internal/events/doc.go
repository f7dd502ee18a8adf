// Package events is the in-process progress bus for generation runs.
package events
