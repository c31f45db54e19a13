package library

import (
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"media-library/internal/filesystem"
	"media-library/internal/mediatypes"
)

// DateLayout is the capture-date format stored in the index and written
// into EXIF fields.
const DateLayout = "2006:01:02 15:04:05"

const fragmentLen = 8

// ParseDate parses a capture date in DateLayout.
func ParseDate(s string) (time.Time, error) {
	t, err := time.Parse(DateLayout, strings.TrimSpace(s))
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid date %q (want YYYY:MM:DD HH:MM:SS): %w", s, err)
	}
	return t, nil
}

// FormatDate formats t in DateLayout.
func FormatDate(t time.Time) string {
	return t.Format(DateLayout)
}

// ISODate converts a capture date to the ISO 8601 form video containers use.
func ISODate(date string) (string, error) {
	t, err := ParseDate(date)
	if err != nil {
		return "", err
	}
	return t.Format("2006-01-02T15:04:05"), nil
}

// DateFolder returns the slash-separated YYYY/YYYY-MM-DD folder for a date.
func DateFolder(date string) (string, error) {
	t, err := ParseDate(date)
	if err != nil {
		return "", err
	}
	return t.Format("2006") + "/" + t.Format("2006-01-02"), nil
}

func compactDate(date string) (string, error) {
	t, err := ParseDate(date)
	if err != nil {
		return "", err
	}
	return t.Format("20060102"), nil
}

// CanonicalName builds <prefix>_<YYYYMMDD>_<fragment><ext> for a new file.
func CanonicalName(kind mediatypes.Kind, date, hash, ext string) (string, error) {
	day, err := compactDate(date)
	if err != nil {
		return "", err
	}
	fragment := hash
	if len(fragment) > fragmentLen {
		fragment = fragment[:fragmentLen]
	}
	return fmt.Sprintf("%s_%s_%s%s", kind.Prefix(), day, fragment, strings.ToLower(ext)), nil
}

// ParseFilename splits a canonical name into prefix, date, hash part and
// extension. The hash part keeps any collision counter, so
// img_20260122_abc12345_2.jpg yields hash part "abc12345_2".
func ParseFilename(name string) (prefix, date, hashPart, ext string, ok bool) {
	parts := strings.Split(name, "_")
	if len(parts) < 3 {
		return "", "", "", "", false
	}
	remainder := strings.Join(parts[2:], "_")
	ext = filepath.Ext(remainder)
	hashPart = strings.TrimSuffix(remainder, ext)
	if parts[0] == "" || hashPart == "" {
		return "", "", "", "", false
	}
	return parts[0], parts[1], hashPart, ext, true
}

// RenameForDate derives the file name for oldName after its capture date
// changes. Canonical names keep their prefix and hash part; anything else
// becomes img_<YYYYMMDD>_<first 8 chars of the old base name><ext>.
func RenameForDate(oldName, date string) (string, error) {
	day, err := compactDate(date)
	if err != nil {
		return "", err
	}

	if prefix, _, hashPart, ext, ok := ParseFilename(oldName); ok {
		return fmt.Sprintf("%s_%s_%s%s", prefix, day, hashPart, ext), nil
	}

	ext := filepath.Ext(oldName)
	base := strings.TrimSuffix(oldName, ext)
	if len(base) > fragmentLen {
		base = base[:fragmentLen]
	}
	return fmt.Sprintf("img_%s_%s%s", day, base, ext), nil
}

// ResolveCollision returns name, or name with a _1, _2, ... counter before
// the extension, choosing the first that does not exist in dir.
func ResolveCollision(dir, name string) string {
	if !filesystem.Exists(filepath.Join(dir, name)) {
		return name
	}
	ext := filepath.Ext(name)
	base := strings.TrimSuffix(name, ext)
	for n := 1; ; n++ {
		candidate := fmt.Sprintf("%s_%d%s", base, n, ext)
		if !filesystem.Exists(filepath.Join(dir, candidate)) {
			return candidate
		}
	}
}
