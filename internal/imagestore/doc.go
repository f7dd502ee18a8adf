// Package imagestore stores rendered shot images in a local directory
// and reads them back by filename or remote URL.
package imagestore
