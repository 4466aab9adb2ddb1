package source

import (
	"errors"
	"fmt"
)

var (
	// ErrCorruptDocument is returned when bytes cannot be parsed as a valid
	// paginated document.
	ErrCorruptDocument = errors.New("corrupt document")

	// ErrEncrypted is returned when page content is not accessible without a
	// password. Passwords are not prompted for; this is fatal to the caller.
	ErrEncrypted = errors.New("document is encrypted")

	// ErrClosed is returned for operations on a closed source.
	ErrClosed = errors.New("document source is closed")
)

// IndexError is returned when a page index is outside [0, pageCount).
type IndexError struct {
	Index     int
	PageCount int
}

func (e *IndexError) Error() string {
	return fmt.Sprintf("page index %d out of range [0, %d)", e.Index, e.PageCount)
}

// RenderError reports a per-page rasterization failure. It is reported for
// the failing page only; batch callers decide whether to continue.
type RenderError struct {
	Index int
	Err   error
}

func (e *RenderError) Error() string {
	return fmt.Sprintf("render page %d: %v", e.Index, e.Err)
}

func (e *RenderError) Unwrap() error { return e.Err }

// ConversionError reports a failed office-to-PDF conversion. The wrapped
// cause is context.DeadlineExceeded when the converter timed out.
type ConversionError struct {
	Format Format
	Err    error
}

func (e *ConversionError) Error() string {
	return fmt.Sprintf("convert %s to pdf: %v", e.Format, e.Err)
}

func (e *ConversionError) Unwrap() error { return e.Err }
