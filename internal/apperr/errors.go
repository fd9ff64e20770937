// Package apperr defines the error taxonomy shared across the sync engine.
package apperr

import (
	"errors"
	"fmt"
	"sort"
	"strings"
)

var (
	ErrNotFound     = errors.New("not found")
	ErrConflict     = errors.New("conflict")
	ErrNotSupported = errors.New("not supported")
)

// FrontmatterError reports a frontmatter schema violation. It names every
// offending field so callers can surface actionable messages.
type FrontmatterError struct {
	Path   string            // file the frontmatter came from, may be empty
	Fields map[string]string // field name -> violation
}

func (e *FrontmatterError) Error() string {
	names := make([]string, 0, len(e.Fields))
	for f := range e.Fields {
		names = append(names, f)
	}
	sort.Strings(names)

	parts := make([]string, 0, len(names))
	for _, f := range names {
		parts = append(parts, fmt.Sprintf("%s: %s", f, e.Fields[f]))
	}
	if e.Path != "" {
		return fmt.Sprintf("frontmatter: %s: %s", e.Path, strings.Join(parts, "; "))
	}
	return "frontmatter: " + strings.Join(parts, "; ")
}

// IdentityMismatchError reports that the UUID embedded in a remote record
// disagrees with the local document's spec_id. Without force this is a hard
// failure.
type IdentityMismatchError struct {
	LocalID  string
	RemoteID string
	Number   int // platform-native id the record was fetched by
}

func (e *IdentityMismatchError) Error() string {
	return fmt.Sprintf("identity mismatch: record #%d embeds %s, local document has %s",
		e.Number, e.RemoteID, e.LocalID)
}

// FileOperationError wraps a disk I/O failure. Identity persistence failures
// during a scan carry this type and are logged rather than propagated.
type FileOperationError struct {
	Op   string // "read", "write"
	Path string
	Err  error
}

func (e *FileOperationError) Error() string {
	return fmt.Sprintf("file %s %s: %v", e.Op, e.Path, e.Err)
}

func (e *FileOperationError) Unwrap() error { return e.Err }
