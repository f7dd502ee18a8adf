// Package archive builds and caches the downloadable zip bundle for a
// finished generation run.
package archive
