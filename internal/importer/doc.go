// Package importer copies media from outside the library into its
// canonical layout.
//
// Each source file is hashed and skipped when the digest is already
// indexed. Otherwise it gets a capture date (embedded metadata, falling
// back to the modification time), a canonical name under YYYY/YYYY-MM-DD
// and an index row. The copy then has its capture date written, and the
// row is updated with the digest of the rewritten bytes. If the write
// fails, or the rewritten bytes turn out to duplicate another record, the
// copy and its row are removed and the file is reported as rejected with a
// category derived from the error's type.
//
// Sources are never modified. Imported files are queued for thumbnail
// generation.
package importer
