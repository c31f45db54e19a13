// Package mediatypes provides shared type definitions for media file handling
// across the media library.
//
// This package exists as a dependency-free foundation that can be imported by other
// packages without creating import cycles.
//
// # Kinds
//
// Every indexed file is either a photo or a video, decided by extension:
//
//	kind := mediatypes.KindOf("2019/2019-03-03/img_20190303_ab12cd34.jpg")
//	if kind == mediatypes.KindUnknown {
//	    // not on the allowlist, ignored by sync and import
//	}
//
// Kind.Prefix gives the canonical filename prefix ("img" or "vid").
//
// # Metadata writes
//
// Some legacy containers (mpg, vob, avi, ...) carry no reliable embedded
// creation time. SupportsDateWrite reports false for them so date edits fail
// fast instead of silently doing nothing.
package mediatypes
