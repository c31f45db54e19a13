package metadata

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os/exec"
)

// ErrorKind classifies a metadata failure.
type ErrorKind int

// Error kinds. KindFailed is the zero value for anything unclassified.
const (
	KindFailed ErrorKind = iota
	KindNotFound
	KindToolMissing
	KindCorrupted
	KindConflict
	KindTimeout
	KindUnsupported
	KindPermission
)

func (k ErrorKind) String() string {
	switch k {
	case KindNotFound:
		return "not_found"
	case KindToolMissing:
		return "missing_tool"
	case KindCorrupted:
		return "corrupted"
	case KindConflict:
		return "conflict"
	case KindTimeout:
		return "timeout"
	case KindUnsupported:
		return "unsupported"
	case KindPermission:
		return "permission"
	default:
		return "failed"
	}
}

// Error is returned by every Extractor and Writer operation that fails.
type Error struct {
	Kind ErrorKind
	Tool string
	Path string
	Err  error
}

func (e *Error) Error() string {
	if e.Tool != "" {
		return fmt.Sprintf("%s %s (%s): %v", e.Tool, e.Path, e.Kind, e.Err)
	}
	return fmt.Sprintf("%s (%s): %v", e.Path, e.Kind, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

// KindOf returns the kind of a metadata error, KindFailed for any other
// non-nil error.
func KindOf(err error) ErrorKind {
	var me *Error
	if errors.As(err, &me) {
		return me.Kind
	}
	return KindFailed
}

// classify maps a tool invocation failure to an Error. ctxErr is the
// invocation context's error after the call returned.
func classify(tool, path string, err, ctxErr error) *Error {
	kind := KindFailed
	var exitErr *exec.ExitError
	switch {
	case errors.Is(ctxErr, context.DeadlineExceeded):
		kind = KindTimeout
	case errors.Is(err, exec.ErrNotFound), errors.Is(err, fs.ErrNotExist):
		kind = KindToolMissing
	case errors.As(err, &exitErr):
		kind = KindCorrupted
	case errors.Is(err, fs.ErrPermission):
		kind = KindPermission
	}
	return &Error{Kind: kind, Tool: tool, Path: path, Err: err}
}

// checkFile verifies path is a readable regular file before a tool runs.
func checkFile(tool, path string, stat func(string) (fs.FileInfo, error)) error {
	info, err := stat(path)
	switch {
	case errors.Is(err, fs.ErrNotExist):
		return &Error{Kind: KindNotFound, Tool: tool, Path: path, Err: err}
	case errors.Is(err, fs.ErrPermission):
		return &Error{Kind: KindPermission, Tool: tool, Path: path, Err: err}
	case err != nil:
		return &Error{Kind: KindFailed, Tool: tool, Path: path, Err: err}
	case !info.Mode().IsRegular():
		return &Error{Kind: KindUnsupported, Tool: tool, Path: path, Err: fmt.Errorf("not a regular file")}
	}
	return nil
}
