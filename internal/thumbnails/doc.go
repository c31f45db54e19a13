// Package thumbnails maintains the derived thumbnail cache.
//
// Thumbnails are 400x400 center crops encoded as JPEG and stored at
// .thumbnails/ab/cd/<hash>.jpg, keyed by content hash so a file keeps its
// thumbnail across renames. Videos, and images the Go decoders cannot
// read, are rendered through a [FrameExtractor] first.
//
// A [Worker] pre-generates thumbnails for newly imported files. Its queue
// is bounded and never blocks the importer.
package thumbnails
