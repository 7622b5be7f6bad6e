// Package codec holds the shared result and error types used by every
// on-device format reader and writer.
package codec

import (
	"errors"
	"fmt"
)

// ErrFormat is the sentinel wrapped by every FormatError.
var ErrFormat = errors.New("malformed data")

// ErrMissingData is the sentinel wrapped by every MissingDataError.
var ErrMissingData = errors.New("missing data")

// FormatError reports a malformed file or frame. Line is 1-based for text
// formats; Offset is the byte offset for binary formats. Whichever does not
// apply is zero.
type FormatError struct {
	Path   string
	Line   int
	Offset int64
	Msg    string
}

func (e *FormatError) Error() string {
	switch {
	case e.Line > 0:
		return fmt.Sprintf("%s:%d: %s", e.Path, e.Line, e.Msg)
	case e.Offset > 0:
		return fmt.Sprintf("%s: offset %d: %s", e.Path, e.Offset, e.Msg)
	default:
		return fmt.Sprintf("%s: %s", e.Path, e.Msg)
	}
}

func (e *FormatError) Unwrap() error { return ErrFormat }

// MissingDataError reports an absent file. Optional files (alternatives,
// whitelist) are downgraded by callers to a warning and an empty collection.
type MissingDataError struct {
	Path     string
	Optional bool
}

func (e *MissingDataError) Error() string {
	return fmt.Sprintf("%s: file not present", e.Path)
}

func (e *MissingDataError) Unwrap() error { return ErrMissingData }

// ItemError records a recoverable per-item failure inside a partial parse
// (EPG events, XMLTV programmes, scraped satellites).
type ItemError struct {
	Item string
	Err  error
}

func (e ItemError) Error() string {
	return fmt.Sprintf("%s: %v", e.Item, e.Err)
}

func (e ItemError) Unwrap() error { return e.Err }
