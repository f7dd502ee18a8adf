// Package catalog persists garment records and style sources, the two
// read-side inputs to prompt synthesis.
package catalog
