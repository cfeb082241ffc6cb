// Package archive packages a mirrored directory into a ZIP archive.
//
// Entries are the regular files of the tree, named by slash-separated
// relative path and sorted, compressed with klauspost's Deflate at a
// configurable level. The archive can be streamed to any writer or built
// as a temp file first.
package archive
