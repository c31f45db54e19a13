package mediatypes

import (
	"path/filepath"
	"strings"
)

// Kind is the media kind stored in the index's file_type column.
type Kind string

const (
	// KindPhoto is a still image.
	KindPhoto Kind = "photo"
	// KindVideo is a video container.
	KindVideo Kind = "video"
	// KindUnknown marks an extension outside the allowlist.
	KindUnknown Kind = ""
)

// Prefix returns the canonical filename prefix for the kind.
func (k Kind) Prefix() string {
	if k == KindVideo {
		return "vid"
	}
	return "img"
}

// Valid reports whether k is one of the stored kinds.
func (k Kind) Valid() bool {
	return k == KindPhoto || k == KindVideo
}

// PhotoExtensions maps file extensions to whether they are indexed photo formats.
var PhotoExtensions = map[string]bool{
	".jpg":  true,
	".jpeg": true,
	".heic": true,
	".heif": true,
	".png":  true,
	".gif":  true,
	".bmp":  true,
	".tiff": true,
	".tif":  true,
	".webp": true,
	".avif": true,
	".jp2":  true,
	".raw":  true,
	".cr2":  true,
	".nef":  true,
	".arw":  true,
	".dng":  true,
}

// VideoExtensions maps file extensions to whether they are indexed video formats.
var VideoExtensions = map[string]bool{
	".mov":  true,
	".mp4":  true,
	".m4v":  true,
	".mkv":  true,
	".wmv":  true,
	".webm": true,
	".flv":  true,
	".3gp":  true,
	".mpg":  true,
	".mpeg": true,
	".vob":  true,
	".ts":   true,
	".mts":  true,
	".avi":  true,
}

// NoEmbeddedDateExtensions lists video containers whose capture date cannot
// be rewritten reliably. Writes to these fail fast.
var NoEmbeddedDateExtensions = map[string]bool{
	".mpg":  true,
	".mpeg": true,
	".vob":  true,
	".ts":   true,
	".mts":  true,
	".avi":  true,
	".wmv":  true,
}

// MimeTypes maps file extensions to their MIME types.
var MimeTypes = map[string]string{
	".jpg":  "image/jpeg",
	".jpeg": "image/jpeg",
	".png":  "image/png",
	".gif":  "image/gif",
	".bmp":  "image/bmp",
	".webp": "image/webp",
	".tiff": "image/tiff",
	".tif":  "image/tiff",
	".heic": "image/heic",
	".heif": "image/heif",
	".avif": "image/avif",
	".jp2":  "image/jp2",
	".dng":  "image/x-adobe-dng",

	".mp4":  "video/mp4",
	".mkv":  "video/x-matroska",
	".avi":  "video/x-msvideo",
	".mov":  "video/quicktime",
	".wmv":  "video/x-ms-wmv",
	".flv":  "video/x-flv",
	".webm": "video/webm",
	".m4v":  "video/x-m4v",
	".mpeg": "video/mpeg",
	".mpg":  "video/mpeg",
	".3gp":  "video/3gpp",
	".ts":   "video/mp2t",
	".mts":  "video/mp2t",
}

// Ext returns the lowercase extension of name including the leading dot.
func Ext(name string) string {
	return strings.ToLower(filepath.Ext(name))
}

// GetKind returns the Kind for a given file extension.
// The extension should be lowercase and include the leading dot (e.g., ".jpg").
func GetKind(ext string) Kind {
	if PhotoExtensions[ext] {
		return KindPhoto
	}
	if VideoExtensions[ext] {
		return KindVideo
	}
	return KindUnknown
}

// KindOf classifies a file name or path by its extension.
func KindOf(name string) Kind {
	return GetKind(Ext(name))
}

// GetMimeType returns the MIME type for a given file extension.
// Returns "application/octet-stream" if the extension is not recognized.
func GetMimeType(ext string) string {
	if mime, ok := MimeTypes[ext]; ok {
		return mime
	}
	return "application/octet-stream"
}

// IsMediaFile returns true if the extension is on the index allowlist.
func IsMediaFile(ext string) bool {
	return GetKind(ext) != KindUnknown
}

// SupportsDateWrite reports whether a capture date can be embedded in files
// with this extension.
func SupportsDateWrite(ext string) bool {
	return IsMediaFile(ext) && !NoEmbeddedDateExtensions[ext]
}

// IsHidden reports whether a file or directory name is hidden (dot-prefixed).
func IsHidden(name string) bool {
	return strings.HasPrefix(name, ".")
}
